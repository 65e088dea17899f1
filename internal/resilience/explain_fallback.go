package resilience

import (
	"context"

	"github.com/MrWong99/veritasvoice/pkg/provider/explain"
)

// ExplainFallback implements [explain.Provider] with failover across several
// explanation backends, each behind its own circuit breaker.
type ExplainFallback struct {
	group *FallbackGroup[explain.Provider]
}

var _ explain.Provider = (*ExplainFallback)(nil)

// NewExplainFallback creates an [ExplainFallback] with primary as the
// preferred backend.
func NewExplainFallback(primary explain.Provider, primaryName string, cfg FallbackConfig) *ExplainFallback {
	return &ExplainFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional backend, tried after all earlier ones.
func (f *ExplainFallback) AddFallback(name string, p explain.Provider) {
	f.group.AddFallback(name, p)
}

// Explain asks the first healthy backend. When every breaker is open it
// returns an error wrapping both [ErrAllFailed] and [ErrCircuitOpen] without
// any network call.
func (f *ExplainFallback) Explain(ctx context.Context, req explain.Request) (explain.Result, error) {
	return ExecuteWithResult(f.group, func(p explain.Provider) (explain.Result, error) {
		return p.Explain(ctx, req)
	})
}

// Status returns the breaker state of every backend in order.
func (f *ExplainFallback) Status() []EntryStatus { return f.group.Status() }

// Available reports whether any backend would currently accept a call.
func (f *ExplainFallback) Available() bool { return f.group.Available() }
