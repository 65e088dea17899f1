// Package mock provides a test double for the explain.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Result: explain.Result{Explanation: "Harmonic rigidity."}}
//	res, err := p.Explain(ctx, req)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/veritasvoice/pkg/provider/explain"
)

// Provider is a mock implementation of explain.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Explain when Err is nil.
	Result explain.Result

	// Err, if non-nil, is returned from Explain.
	Err error

	// Delay makes Explain block before answering. If ctx ends first, Explain
	// returns ctx.Err().
	Delay time.Duration

	// Requests records every Explain invocation in order.
	Requests []explain.Request
}

// Explain records req and returns Result, Err.
func (p *Provider) Explain(ctx context.Context, req explain.Request) (explain.Result, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	delay, res, err := p.Delay, p.Result, p.Err
	p.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return explain.Result{}, ctx.Err()
		case <-timer.C:
		}
	}
	if err != nil {
		return explain.Result{}, err
	}
	return res, nil
}

// CallCount returns the number of Explain invocations. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}

var _ explain.Provider = (*Provider)(nil)
