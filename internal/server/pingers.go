package server

import (
	"context"
	"fmt"
)

// pingFunc adapts a plain health check function to the Pinger interface.
type pingFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewPinger wraps fn as a Pinger reported under name. Both the Qdrant store
// and the document storage clients expose a Ping method that fits.
func NewPinger(name string, fn func(ctx context.Context) error) Pinger {
	return &pingFunc{name: name, fn: fn}
}

// Name returns the dependency label used in readiness responses.
func (p *pingFunc) Name() string { return p.name }

// Ping runs the check.
func (p *pingFunc) Ping(ctx context.Context) error {
	if err := p.fn(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", p.name, err)
	}
	return nil
}
