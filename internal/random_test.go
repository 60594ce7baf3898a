package internal

import (
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestNewSessionIDUnique(t *testing.T) {
	seen := make(map[string]struct{}, 256)
	for i := 0; i < 256; i++ {
		id, err := NewSessionID()
		if err != nil {
			t.Fatalf("new session id: %v", err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate session id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestNewSessionTokenFormat(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	tok, err := NewSessionToken("sess", "abc-123", now)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}

	parts := strings.Split(tok, "_")
	if len(parts) != 4 {
		t.Fatalf("expected 4 parts, got %q", tok)
	}
	if parts[0] != "sess" || parts[1] != "abc-123" {
		t.Fatalf("unexpected prefix/id in %q", tok)
	}
	if ms, err := strconv.ParseInt(parts[2], 10, 64); err != nil || ms != now.UnixMilli() {
		t.Fatalf("unexpected timestamp part %q", parts[2])
	}
	if len(parts[3]) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(parts[3]))
	}

	other, err := NewSessionToken("sess", "abc-123", now)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if other == tok {
		t.Fatal("tokens for the same session and time must differ")
	}
}

func TestNewSessionTokenRejectsBadInput(t *testing.T) {
	if _, err := NewSessionToken("", "id", time.Now()); err == nil {
		t.Fatal("expected error for empty prefix")
	}
	if _, err := NewSessionToken("a_b", "id", time.Now()); err == nil {
		t.Fatal("expected error for prefix with separator")
	}
	if _, err := NewSessionToken("sess", "", time.Now()); err == nil {
		t.Fatal("expected error for empty session id")
	}
}
