package secret

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const (
	// RawSize is the number of random bytes behind every generated secret.
	RawSize = 64
	// EncodedSize is the length of a generated secret after hex encoding.
	EncodedSize = RawSize * 2
	// MinSeedLength is the shortest externally supplied secret accepted as a seed.
	MinSeedLength = 32
)

// ErrGenerate is returned when the entropy source fails.
var ErrGenerate = errors.New("secret generation failed")

// Generator produces new signing secrets. Implementations must be safe for
// concurrent use.
type Generator interface {
	Generate() ([]byte, error)
}

// GeneratorFunc adapts a function to [Generator].
type GeneratorFunc func() ([]byte, error)

func (f GeneratorFunc) Generate() ([]byte, error) {
	return f()
}

// RandomGenerator reads from Reader, or crypto/rand when Reader is nil.
type RandomGenerator struct {
	Reader io.Reader
}

// Generate returns EncodedSize hex characters. The returned slice is owned by
// the caller and may be wiped after use.
func (g RandomGenerator) Generate() ([]byte, error) {
	reader := g.Reader
	if reader == nil {
		reader = rand.Reader
	}

	var raw [RawSize]byte
	if _, err := io.ReadFull(reader, raw[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerate, err)
	}

	out := make([]byte, EncodedSize)
	hex.Encode(out, raw[:])
	wipe(raw[:])
	return out, nil
}

// Generate returns a fresh secret from crypto/rand as a string.
func Generate() (string, error) {
	b, err := RandomGenerator{}.Generate()
	if err != nil {
		return "", err
	}
	s := string(b)
	wipe(b)
	return s, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
