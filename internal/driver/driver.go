// Package driver defines the boundary to the automation backend that
// actually drives a browser. The engine only sees these interfaces.
package driver

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrElementNotFound = errors.New("element not found")
	ErrSessionClosed   = errors.New("session closed")
)

// Session is one live browser session. Every method blocks until the
// backend reports the outcome or ctx is done.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	Extract(ctx context.Context, selector string) (string, error)
	Wait(ctx context.Context, d time.Duration) error
	Close(ctx context.Context) error
}

// Driver opens sessions
type Driver interface {
	Start(ctx context.Context) (Session, error)
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
