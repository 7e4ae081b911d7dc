// Package revocation implements the TTL-bounded denylist consulted on every
// authenticated request. Entries expire on their own once the token they deny
// would have expired anyway, so no cleanup job exists.
package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/carecoord/authcore/internal/shared"
)

// Ledger denylists token and session identifiers.
type Ledger struct {
	store   Store
	timeout time.Duration
	now     func() time.Time
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithClock sets the clock entry lifetimes are measured against. It must be
// the clock that produced the expiry instants passed to Denylist.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLedger wraps store; every call is bounded by timeout.
func NewLedger(store Store, timeout time.Duration, opts ...Option) *Ledger {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	l := &Ledger{store: store, timeout: timeout, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Denylist rejects id until the given instant. Past instants are a no-op.
func (l *Ledger) Denylist(ctx context.Context, id string, until time.Time) error {
	if id == "" {
		return nil
	}
	ttl := until.Sub(l.now())
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.store.Deny(ctx, id, ttl); err != nil {
		return fmt.Errorf("revocation: denylist: %w", shared.Unavailable(err))
	}
	return nil
}

// IsDenied reports whether any of ids is denylisted. Failures never mean "allow".
func (l *Ledger) IsDenied(ctx context.Context, ids ...string) (bool, error) {
	filtered := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			filtered = append(filtered, id)
		}
	}
	if len(filtered) == 0 {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	denied, err := l.store.AnyDenied(ctx, filtered...)
	if err != nil {
		return false, fmt.Errorf("revocation: lookup: %w", shared.Unavailable(err))
	}
	return denied, nil
}
