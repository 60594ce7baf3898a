package session

import (
	"testing"
	"time"
)

// FuzzIdentityDecode feeds arbitrary bytes to the identity decoder.
// Goal: no panics, and anything that decodes re-encodes to the same bytes.
func FuzzIdentityDecode(f *testing.F) {
	encoded, err := encodeIdentity(identity{
		UserID:    "user1",
		TenantID:  "tenant1",
		Role:      "member",
		Email:     "a@b.c",
		Token:     "sess_x_1_00",
		IPAddress: "127.0.0.1",
		UserAgent: "go-test",
		CreatedAt: time.UnixMilli(1700000000000),
	})
	if err == nil {
		f.Add(encoded)
		if len(encoded) > 10 {
			f.Add(encoded[:10])
		}
	}

	f.Add([]byte{})
	f.Add([]byte{0})
	f.Add([]byte{1})
	f.Add([]byte{255, 255, 255})

	f.Fuzz(func(t *testing.T, data []byte) {
		id, err := decodeIdentity(data)
		if err != nil {
			return
		}
		again, err := encodeIdentity(id)
		if err != nil {
			t.Fatalf("re-encode decoded identity: %v", err)
		}
		if string(again) != string(data) {
			t.Fatalf("re-encode mismatch: %x vs %x", again, data)
		}
	})
}
