package secret

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/awnumar/memguard"
)

// MaxPrevious bounds the number of retired secrets that still validate.
const MaxPrevious = 3

var (
	// ErrKeyringClosed is returned by Rotate after Destroy.
	ErrKeyringClosed = errors.New("keyring destroyed")
	// ErrDuplicateSecret is returned when a new secret is already valid.
	ErrDuplicateSecret = errors.New("secret already present in keyring")
	// ErrEmptySecret is returned for zero-length secret input.
	ErrEmptySecret = errors.New("empty secret")
)

type entry struct {
	enclave     *memguard.Enclave
	sum         [32]byte
	fingerprint string
}

func newEntry(b []byte) (*entry, error) {
	if len(b) == 0 {
		return nil, ErrEmptySecret
	}
	sum := digest(b)
	e := &entry{
		sum:         sum,
		fingerprint: hex.EncodeToString(sum[:])[:fingerprintLength],
	}
	// NewEnclave wipes b.
	e.enclave = memguard.NewEnclave(b)
	return e, nil
}

func (e *entry) reveal() string {
	if e == nil || e.enclave == nil {
		return ""
	}
	lb, err := e.enclave.Open()
	if err != nil {
		return ""
	}
	defer lb.Destroy()
	return string(lb.Bytes())
}

func (e *entry) matches(sum [32]byte) bool {
	return subtle.ConstantTimeCompare(e.sum[:], sum[:]) == 1
}

// ring is an immutable snapshot. A rotation builds a new ring and swaps it in.
type ring struct {
	current   *entry
	previous  []*entry
	rotatedAt time.Time
}

func (r *ring) all() []*entry {
	out := make([]*entry, 0, 1+len(r.previous))
	out = append(out, r.current)
	return append(out, r.previous...)
}

func (r *ring) contains(sum [32]byte) bool {
	found := false
	for _, e := range r.all() {
		// visit every entry so timing does not depend on position
		if e.matches(sum) {
			found = true
		}
	}
	return found
}

// Keyring holds the current signing secret and a most-recent-first list of
// previous secrets. Reads are lock-free against an atomic snapshot; Rotate and
// Destroy are serialized.
type Keyring struct {
	mu    sync.Mutex
	state atomic.Pointer[ring]
}

// NewKeyring seeds a keyring. Empty and duplicate previous entries are
// dropped and the list is truncated to MaxPrevious. All input slices are
// wiped.
func NewKeyring(current []byte, previous [][]byte, rotatedAt time.Time) (*Keyring, error) {
	cur, err := newEntry(current)
	if err != nil {
		return nil, err
	}

	r := &ring{current: cur, rotatedAt: rotatedAt}
	for _, p := range previous {
		if len(p) == 0 {
			continue
		}
		if len(r.previous) == MaxPrevious || r.contains(digest(p)) {
			wipe(p)
			continue
		}
		e, err := newEntry(p)
		if err != nil {
			continue
		}
		r.previous = append(r.previous, e)
	}

	k := &Keyring{}
	k.state.Store(r)
	return k, nil
}

// Rotate installs next as the current secret. The old current secret becomes
// the most recent previous one unless clearHistory is set, in which case no
// previous secret survives. rotatedAt is forced to be strictly after the
// prior rotation. next is wiped.
func (k *Keyring) Rotate(next []byte, at time.Time, clearHistory bool) (time.Time, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	old := k.state.Load()
	if old == nil {
		wipe(next)
		return time.Time{}, ErrKeyringClosed
	}
	if len(next) == 0 {
		return time.Time{}, ErrEmptySecret
	}
	if old.contains(digest(next)) {
		wipe(next)
		return time.Time{}, ErrDuplicateSecret
	}

	cur, err := newEntry(next)
	if err != nil {
		return time.Time{}, err
	}

	if !at.After(old.rotatedAt) {
		at = old.rotatedAt.Add(time.Nanosecond)
	}

	r := &ring{current: cur, rotatedAt: at}
	if !clearHistory {
		previous := make([]*entry, 0, MaxPrevious)
		previous = append(previous, old.current)
		for _, e := range old.previous {
			if len(previous) == MaxPrevious {
				break
			}
			previous = append(previous, e)
		}
		r.previous = previous
	}

	k.state.Store(r)
	return at, nil
}

// Current returns the active secret, or "" after Destroy.
func (k *Keyring) Current() string {
	r := k.state.Load()
	if r == nil {
		return ""
	}
	return r.current.reveal()
}

// CurrentFingerprint returns the fingerprint of the active secret.
func (k *Keyring) CurrentFingerprint() string {
	r := k.state.Load()
	if r == nil {
		return ""
	}
	return r.current.fingerprint
}

// All returns the current secret followed by previous secrets, most recent
// first. The result comes from a single snapshot.
func (k *Keyring) All() []string {
	r := k.state.Load()
	if r == nil {
		return nil
	}
	entries := r.all()
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.reveal())
	}
	return out
}

// Lookup returns the valid secret with the given fingerprint.
func (k *Keyring) Lookup(fingerprint string) (string, bool) {
	r := k.state.Load()
	if r == nil || fingerprint == "" {
		return "", false
	}
	for _, e := range r.all() {
		if subtle.ConstantTimeCompare([]byte(e.fingerprint), []byte(fingerprint)) == 1 {
			return e.reveal(), true
		}
	}
	return "", false
}

// Contains reports whether candidate is the current or a previous secret.
func (k *Keyring) Contains(candidate string) bool {
	if candidate == "" {
		return false
	}
	r := k.state.Load()
	if r == nil {
		return false
	}
	return r.contains(digest([]byte(candidate)))
}

// PreviousCount returns the number of retained previous secrets.
func (k *Keyring) PreviousCount() int {
	r := k.state.Load()
	if r == nil {
		return 0
	}
	return len(r.previous)
}

// RotatedAt returns when the current secret was installed.
func (k *Keyring) RotatedAt() time.Time {
	r := k.state.Load()
	if r == nil {
		return time.Time{}
	}
	return r.rotatedAt
}

// Destroy drops every enclave. It is idempotent; afterwards readers see an
// empty keyring and Rotate fails with ErrKeyringClosed. Enclave contents are
// encrypted at rest; memguard.Purge at process exit wipes the session key.
func (k *Keyring) Destroy() {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.state.Store(nil)
}

// Destroyed reports whether Destroy has been called.
func (k *Keyring) Destroyed() bool {
	return k.state.Load() == nil
}
