package keysink

import (
	"context"
	"errors"
	"time"
)

// Notice describes one completed rotation.
type Notice struct {
	Reason        string    `json:"reason"`
	RotatedAt     time.Time `json:"rotated_at"`
	RotationCount uint64    `json:"rotation_count"`
	Environment   string    `json:"environment,omitempty"`
	Emergency     bool      `json:"emergency"`
	// Fingerprint identifies the new current secret without revealing it.
	Fingerprint string `json:"fingerprint"`
	// Secret is the new current secret. It is never serialized; only sinks
	// that store keys read it.
	Secret string `json:"-"`
}

// Notifier receives rotation notices.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(ctx context.Context, n Notice) error

func (f NotifierFunc) Notify(ctx context.Context, n Notice) error {
	return f(ctx, n)
}

// Multi notifies every non-nil notifier in order and joins their errors.
// One failing notifier does not prevent the others from running.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notice) error {
	var errs []error
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
