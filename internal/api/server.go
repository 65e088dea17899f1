// Package api exposes the VeritasVoice HTTP surface: the authenticated
// detect endpoint, status and health probes, and the metrics scrape.
package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/MrWong99/veritasvoice/internal/health"
	"github.com/MrWong99/veritasvoice/internal/observe"
)

// Route paths.
const (
	PathRoot    = "/"
	PathHealth  = "/health"
	PathHealthz = "/healthz"
	PathReadyz  = "/readyz"
	PathDetect  = "/api/v1/detect"
)

// DefaultMaxAudioBytes caps decoded audio when [Options.MaxAudioBytes] is 0.
const DefaultMaxAudioBytes = 10 << 20

// Options configures a [Server].
type Options struct {
	// Keys holds the accepted x-api-key values. Required.
	Keys *KeyStore

	// Health serves /healthz and /readyz. Nil means no readiness checks.
	Health *health.Handler

	// MetricsHandler serves MetricsPath when non-nil.
	MetricsHandler http.Handler
	MetricsPath    string

	// AllowedOrigins lists CORS origins. Empty or "*" allows any origin.
	AllowedOrigins []string

	// MaxAudioBytes caps the decoded audio size. Default: 10 MiB.
	MaxAudioBytes int
}

// Server routes HTTP requests to the analyzer.
type Server struct {
	analyzer      Analyzer
	keys          *KeyStore
	maxAudioBytes int
	engine        *gin.Engine
}

// NewServer builds the router. Call [Server.Handler] to serve it.
func NewServer(a Analyzer, opts Options) *Server {
	if opts.Keys == nil {
		opts.Keys = NewKeyStore()
	}
	if opts.Health == nil {
		opts.Health = health.New()
	}
	if opts.MaxAudioBytes <= 0 {
		opts.MaxAudioBytes = DefaultMaxAudioBytes
	}

	s := &Server{
		analyzer:      a,
		keys:          opts.Keys,
		maxAudioBytes: opts.MaxAudioBytes,
	}

	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, rec any) {
		observe.Logger(c.Request.Context()).Error("panic in handler", "panic", rec, "path", c.Request.URL.Path)
		abortError(c, http.StatusInternalServerError, msgInternal)
	}))
	r.Use(cors.New(corsConfig(opts.AllowedOrigins)))
	r.HandleMethodNotAllowed = true
	r.NoRoute(func(c *gin.Context) {
		abortError(c, http.StatusNotFound, "Not Found")
	})
	r.NoMethod(func(c *gin.Context) {
		abortError(c, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.GET(PathRoot, s.status)
	r.GET(PathHealth, s.status)
	opts.Health.Register(r)
	if opts.MetricsHandler != nil && opts.MetricsPath != "" {
		r.GET(opts.MetricsPath, gin.WrapH(opts.MetricsHandler))
	}

	v1 := r.Group("/api/v1", RequireAPIKey(s.keys), limitBody(s.maxAudioBytes))
	{
		v1.POST("/detect", s.detect)
	}

	s.engine = r
	return s
}

// Handler returns the router as an [http.Handler].
func (s *Server) Handler() http.Handler { return s.engine }

// Keys returns the key store used by the auth middleware.
func (s *Server) Keys() *KeyStore { return s.keys }

// Routes lists the fixed route paths, for metric labelling.
func Routes(metricsPath string) []string {
	routes := []string{PathRoot, PathHealth, PathHealthz, PathReadyz, PathDetect}
	if metricsPath != "" {
		routes = append(routes, metricsPath)
	}
	return routes
}

// limitBody caps the request body: the base64 payload plus JSON overhead.
func limitBody(maxAudioBytes int) gin.HandlerFunc {
	limit := int64(maxAudioBytes)*2 + 64<<10
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", APIKeyHeader},
		ExposeHeaders: []string{AuditSignatureHeader, "X-Correlation-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
