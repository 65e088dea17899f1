package app

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/veritasvoice/internal/api"
	"github.com/MrWong99/veritasvoice/internal/config"
	"github.com/MrWong99/veritasvoice/internal/observe"
	"github.com/MrWong99/veritasvoice/internal/resilience"
	"github.com/MrWong99/veritasvoice/pkg/provider/explain"
	explainmock "github.com/MrWong99/veritasvoice/pkg/provider/explain/mock"
	"github.com/MrWong99/veritasvoice/pkg/provider/llm"
	llmmock "github.com/MrWong99/veritasvoice/pkg/provider/llm/mock"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func testConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

func hashChain(format string, n int) []byte {
	var out []byte
	for i := 0; len(out) < n; i++ {
		sum := sha256.Sum256([]byte(fmt.Sprintf(format, i)))
		out = append(out, sum[:]...)
	}
	return out[:n]
}

func detect(t *testing.T, h http.Handler, key string, audio []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(map[string]string{
		"language":    "en",
		"audioBase64": base64.StdEncoding.EncodeToString(audio),
	})
	req := httptest.NewRequest(http.MethodPost, api.PathDetect, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.APIKeyHeader, key)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_WithInjectedExplainer(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "server:\n  api_keys: [k1]\n")
	p := &explainmock.Provider{Result: explain.Result{Explanation: "Vocoder artifacts."}}
	a, err := New(cfg, WithExplainer(p), WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec := detect(t, a.Handler(), "k1", hashChain("app-%d", 4000))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "Vocoder artifacts.") {
		t.Errorf("body = %s", rec.Body)
	}
	if a.ExplainerStatus() != nil {
		t.Error("ExplainerStatus should be nil for an injected explainer")
	}
}

func TestNew_BuildsFallbackChainFromConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, `
server:
  api_keys: [k1]
providers:
  explainer:
    name: primary
    model: m1
  fallbacks:
    - name: secondary
      model: m2
      options:
        temperature: 0.3
    - name: unregistered
      model: m3
resilience:
  max_failures: 1
  reset_timeout: 1h
`)

	primary := &llmmock.Provider{CompleteErr: errors.New("quota")}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content: `{"explanation":"Asymmetric transients.","transcription":"hi"}`,
	}}
	reg := config.NewRegistry()
	reg.RegisterLLM("primary", func(config.ProviderEntry) (llm.Provider, error) { return primary, nil })
	reg.RegisterLLM("secondary", func(config.ProviderEntry) (llm.Provider, error) { return secondary, nil })

	a, err := New(cfg, WithRegistry(reg), WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	status := a.ExplainerStatus()
	if len(status) != 2 || status[0].Name != "primary" || status[1].Name != "secondary" {
		t.Fatalf("ExplainerStatus = %+v, want primary and secondary", status)
	}

	rec := detect(t, a.Handler(), "k1", hashChain("chain-%d", 4000))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "Asymmetric transients.") {
		t.Errorf("body = %s, want secondary explanation", rec.Body)
	}
	if calls := secondary.Calls(); len(calls) != 1 || calls[0].Req.Temperature != 0.3 {
		t.Errorf("secondary calls = %+v, want one call at temperature 0.3", calls)
	}
	if a.ExplainerStatus()[0].State != resilience.StateOpen {
		t.Errorf("primary breaker = %v, want open", a.ExplainerStatus()[0].State)
	}

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, api.PathReadyz, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("readyz = %d, want 200 while a fallback is closed", rec.Code)
	}
}

func TestNew_PrimaryConstructionFails(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "providers:\n  explainer:\n    name: ghost\n")
	_, err := New(cfg, WithRegistry(config.NewRegistry()), WithMetrics(testMetrics(t)))
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestApplyConfig(t *testing.T) {
	t.Parallel()

	old := testConfig(t, "server:\n  log_level: info\n  api_keys: [old-key]\n")
	updated := testConfig(t, "server:\n  log_level: debug\n  api_keys: [new-key]\nanalysis:\n  explain_timeout: 2s\n")

	lv := new(slog.LevelVar)
	a, err := New(old, WithMetrics(testMetrics(t)), WithLevelVar(lv))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.ApplyConfig(old, updated)

	if lv.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", lv.Level())
	}
	if a.Analyzer().Settings().ExplainTimeout != 2*time.Second {
		t.Errorf("ExplainTimeout = %v, want 2s", a.Analyzer().Settings().ExplainTimeout)
	}
	audio := hashChain("reload-%d", 200)
	if rec := detect(t, a.Handler(), "old-key", audio); rec.Code != http.StatusUnauthorized {
		t.Errorf("old key status = %d, want 401", rec.Code)
	}
	if rec := detect(t, a.Handler(), "new-key", audio); rec.Code != http.StatusOK {
		t.Errorf("new key status = %d, want 200", rec.Code)
	}
}

func TestServe_GracefulShutdown(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "server:\n  api_keys: [k]\n")
	a, err := New(cfg, WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + api.PathHealth)
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"ok"`) {
		t.Errorf("GET /health = %d %s", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve = %v, want nil after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()

	for in, want := range map[config.LogLevel]slog.Level{
		config.LogDebug: slog.LevelDebug,
		config.LogInfo:  slog.LevelInfo,
		config.LogWarn:  slog.LevelWarn,
		config.LogError: slog.LevelError,
		"":              slog.LevelInfo,
	} {
		if got := SlogLevel(in); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestOptHelpers(t *testing.T) {
	t.Parallel()

	opts := map[string]any{"org": "acme", "n": 5, "f": 0.5, "timeout": "30s", "bad": "soon"}
	if got := optString(opts, "org"); got != "acme" {
		t.Errorf("optString = %q", got)
	}
	if got := optString(nil, "org"); got != "" {
		t.Errorf("optString(nil) = %q", got)
	}
	if v, ok := optFloat(opts, "n"); !ok || v != 5 {
		t.Errorf("optFloat(int) = %v, %v", v, ok)
	}
	if v, ok := optFloat(opts, "f"); !ok || v != 0.5 {
		t.Errorf("optFloat(float) = %v, %v", v, ok)
	}
	if _, ok := optFloat(opts, "org"); ok {
		t.Error("optFloat(string) should not be ok")
	}
	if got := optDuration(opts, "timeout"); got != 30*time.Second {
		t.Errorf("optDuration = %v", got)
	}
	if got := optDuration(opts, "bad"); got != 0 {
		t.Errorf("optDuration(bad) = %v", got)
	}
}
