package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	identityFormatVersionCurrent = 1

	maxShortField = 255
	maxLongField  = 65535
)

// identity is the immutable part of a session encoded into a single blob.
type identity struct {
	UserID    string
	TenantID  string
	Role      string
	Email     string
	Token     string
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}

func identityOf(s *Session) identity {
	return identity{
		UserID:    s.UserID,
		TenantID:  s.TenantID,
		Role:      s.Role,
		Email:     s.Email,
		Token:     s.Token,
		IPAddress: s.IPAddress,
		UserAgent: s.UserAgent,
		CreatedAt: s.CreatedAt,
	}
}

func encodeIdentity(id identity) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(identityFormatVersionCurrent)

	short := []struct {
		name  string
		value string
	}{
		{"userID", id.UserID},
		{"tenantID", id.TenantID},
		{"role", id.Role},
		{"token", id.Token},
		{"ipAddress", id.IPAddress},
	}
	for _, f := range short {
		if len(f.value) > maxShortField {
			return nil, fmt.Errorf("%s too long", f.name)
		}
		buf.WriteByte(byte(len(f.value)))
		buf.WriteString(f.value)
	}

	long := []struct {
		name  string
		value string
	}{
		{"email", id.Email},
		{"userAgent", id.UserAgent},
	}
	for _, f := range long {
		if len(f.value) > maxLongField {
			return nil, fmt.Errorf("%s too long", f.name)
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(f.value))); err != nil {
			return nil, err
		}
		buf.WriteString(f.value)
	}

	if err := binary.Write(&buf, binary.BigEndian, id.CreatedAt.UnixMilli()); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeIdentity(data []byte) (identity, error) {
	var id identity
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return id, err
	}
	if version != identityFormatVersionCurrent {
		return id, errors.New("unsupported session identity version")
	}

	shortTargets := []*string{&id.UserID, &id.TenantID, &id.Role, &id.Token, &id.IPAddress}
	for _, target := range shortTargets {
		n, err := reader.ReadByte()
		if err != nil {
			return id, err
		}
		v, err := readString(reader, int(n))
		if err != nil {
			return id, err
		}
		*target = v
	}

	longTargets := []*string{&id.Email, &id.UserAgent}
	for _, target := range longTargets {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return id, err
		}
		v, err := readString(reader, int(n))
		if err != nil {
			return id, err
		}
		*target = v
	}

	var created int64
	if err := binary.Read(reader, binary.BigEndian, &created); err != nil {
		return id, err
	}
	id.CreatedAt = time.UnixMilli(created).UTC()

	if reader.Len() != 0 {
		return id, errors.New("trailing bytes in session identity")
	}

	return id, nil
}

func readString(r *bytes.Reader, n int) (string, error) {
	if n == 0 {
		return "", nil
	}
	if n > r.Len() {
		return "", io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
