package headless

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned by Noop.
var ErrUnavailable = errors.New("headless browser not configured")

// Noop stands in for a Renderer when browser rendering is disabled.
type Noop struct{}

// NewNoop creates a new Noop renderer.
func NewNoop() *Noop {
	return &Noop{}
}

// Render always fails with ErrUnavailable.
func (Noop) Render(context.Context, string, time.Duration) (string, error) {
	return "", ErrUnavailable
}

// Close is a no-op.
func (Noop) Close() {}
