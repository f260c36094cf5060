package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const contentionTries = 4

// isTransient reports SQLite lock contention that a retry can resolve.
// modernc.org/sqlite embeds the result codes in the error text.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range []string{
		"SQLITE_BUSY",
		"SQLITE_LOCKED",
		"IOERR_SHORT_READ",
		"database is locked",
		"database table is locked",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// retryOnContention runs fn with exponential backoff and jitter while it
// fails with a transient error. Any other error is returned as is.
func retryOnContention(ctx context.Context, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := fn()
		if err != nil && !isTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(contentionTries))
	return err
}
