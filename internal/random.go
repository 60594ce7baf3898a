package internal

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const tokenRandomSize = 16

// NewSessionID returns a random (version 4) UUID string.
func NewSessionID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewSessionToken builds "<prefix>_<sessionID>_<unixMillis>_<32 hex chars>".
// The token is a lookup key only; nothing parses it for meaning.
func NewSessionToken(prefix, sessionID string, now time.Time) (string, error) {
	if prefix == "" || strings.Contains(prefix, "_") {
		return "", errors.New("invalid session token prefix")
	}
	if sessionID == "" {
		return "", errors.New("session id required")
	}

	var raw [tokenRandomSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(len(prefix) + len(sessionID) + 20 + 2*tokenRandomSize + 3)
	b.WriteString(prefix)
	b.WriteByte('_')
	b.WriteString(sessionID)
	b.WriteByte('_')
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 10))
	b.WriteByte('_')
	b.WriteString(hex.EncodeToString(raw[:]))
	return b.String(), nil
}
