// Package idgen generates event ids.
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ULID generates monotonic ULIDs: ids produced by one generator sort
// strictly in generation order, even within the same millisecond.
type ULID struct {
	mu      sync.Mutex
	now     func() time.Time
	entropy *ulid.MonotonicEntropy
}

// NewULID creates a generator using the wall clock.
func NewULID() *ULID {
	return NewULIDWithClock(time.Now)
}

// NewULIDWithClock creates a generator reading time from now.
func NewULIDWithClock(now func() time.Time) *ULID {
	return &ULID{now: now, entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NewID returns the next id.
func (g *ULID) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}

// Valid reports whether id is a well-formed ULID.
func Valid(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}
