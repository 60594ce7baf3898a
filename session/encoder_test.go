package session

import (
	"strings"
	"testing"
	"time"
)

func TestIdentityRoundTripKeepsFields(t *testing.T) {
	in := identity{
		UserID:    "user-42",
		TenantID:  "tenant-a",
		Role:      "admin",
		Email:     "user@example.com",
		Token:     "sess_abc_1700000000000_deadbeef",
		IPAddress: "10.0.0.7",
		UserAgent: "curl/8.0",
		CreatedAt: time.UnixMilli(1700000000123).UTC(),
	}
	raw, err := encodeIdentity(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := decodeIdentity(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != in {
		t.Fatalf("identity mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestIdentityRejectsUnknownVersion(t *testing.T) {
	raw, err := encodeIdentity(identity{UserID: "u"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw[0] = 9
	if _, err := decodeIdentity(raw); err == nil {
		t.Fatal("expected version error")
	}
}

func TestIdentityRejectsTrailingBytes(t *testing.T) {
	raw, err := encodeIdentity(identity{UserID: "u"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw = append(raw, 0x01)
	if _, err := decodeIdentity(raw); err == nil {
		t.Fatal("expected trailing bytes error")
	}
}

func TestIdentityRejectsOversizedShortField(t *testing.T) {
	_, err := encodeIdentity(identity{Role: strings.Repeat("r", maxShortField+1)})
	if err == nil {
		t.Fatal("expected role length error")
	}
}
