// Package health provides HTTP liveness and readiness handlers.
//
//   - /healthz: liveness probe; always returns 200 OK.
//   - /readyz: readiness probe; returns 200 unless a required [Checker]
//     fails. Optional checkers only downgrade the status to "degraded".
//
// Responses are JSON objects with a top-level "status" field ("ok",
// "degraded" or "fail") and a "checks" map holding each checker's result.
package health

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MrWong99/veritasvoice/internal/resilience"
)

// checkTimeout is the maximum time a single readiness check may take before
// the context is cancelled.
const checkTimeout = 5 * time.Second

// Status values reported in [Result.Status].
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// Checker is a named readiness check. Check returns nil when the dependency
// is healthy.
type Checker struct {
	// Name is the key of this check in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error

	// Optional marks dependencies the service can run without. A failing
	// optional check reports "degraded" and keeps the 200 status.
	Optional bool
}

// Result is the JSON body of the health endpoints.
type Result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the health endpoints. The checker list is fixed at
// construction time, so Handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that evaluates the given checkers, in order, on
// each readiness request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz is the liveness probe. A process that can serve HTTP is alive.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, Result{Status: StatusOK})
}

// Readyz runs every checker with a [checkTimeout] deadline derived from the
// request context.
func (h *Handler) Readyz(c *gin.Context) {
	res := h.Evaluate(c.Request.Context())
	code := http.StatusOK
	if res.Status == StatusFail {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, res)
}

// Evaluate runs all checkers and aggregates their results.
func (h *Handler) Evaluate(ctx context.Context) Result {
	res := Result{Status: StatusOK, Checks: make(map[string]string, len(h.checkers))}
	for _, chk := range h.checkers {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := chk.Check(cctx)
		cancel()

		switch {
		case err == nil:
			res.Checks[chk.Name] = StatusOK
		case chk.Optional:
			res.Checks[chk.Name] = "degraded: " + err.Error()
			if res.Status == StatusOK {
				res.Status = StatusDegraded
			}
		default:
			res.Checks[chk.Name] = "fail: " + err.Error()
			res.Status = StatusFail
		}
	}
	return res
}

// Register adds the /healthz and /readyz routes to r.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
}

// ErrExplainerUnavailable is reported when every explanation backend has an
// open circuit.
var ErrExplainerUnavailable = errors.New("all explanation backends have open circuits")

// ExplainerChecker reports whether at least one explanation backend in fb
// accepts calls. It is optional: verdicts are computed locally, so the
// service stays ready and answers with templated explanations.
func ExplainerChecker(fb *resilience.ExplainFallback) Checker {
	return Checker{
		Name:     "explainer",
		Optional: true,
		Check: func(context.Context) error {
			if !fb.Available() {
				return ErrExplainerUnavailable
			}
			return nil
		},
	}
}
