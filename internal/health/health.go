// Package health serves the client's operational HTTP surface.
//
// Three routes are registered:
//
//   - /healthz: liveness; 200 while the process can serve HTTP.
//   - /readyz: 200 only when every [Checker] passes, 503 otherwise.
//   - /metrics: the Prometheus exposition of the OTel meter provider.
//
// Probe responses are JSON with a "status" of "ok" or "fail" and a "checks"
// map keyed by checker name.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/phantomlink/pkg/ghostapi"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is one named readiness probe. Check returns nil when the dependency
// is usable and must honour context cancellation.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe and metrics routes. The checker list is fixed at
// construction.
type Handler struct {
	checkers []Checker
	gatherer prometheus.Gatherer
}

// Option configures a [Handler].
type Option func(*Handler)

// WithGatherer sets the registry /metrics exposes. The default is
// prometheus.DefaultGatherer, which the OTel Prometheus exporter registers
// with unless told otherwise.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) {
		if g != nil {
			h.gatherer = g
		}
	}
}

// WithCheckers appends readiness checkers.
func WithCheckers(checkers ...Checker) Option {
	return func(h *Handler) { h.checkers = append(h.checkers, checkers...) }
}

// New returns a [Handler]. Checkers run sequentially in registration order.
func New(opts ...Option) *Handler {
	h := &Handler{gatherer: prometheus.DefaultGatherer}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Healthz always reports ok.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz runs every checker with its own [checkTimeout] deadline.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := result{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()
		if err != nil {
			res.Checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "ok"
	}
	writeJSON(w, status, res)
}

// Register adds all routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("health: encode response", "err", err)
	}
}

// ── checkers ─────────────────────────────────────────────────────────────────

// Prober is the part of [ghostapi.API] the API checker needs.
type Prober interface {
	Me(ctx context.Context) (string, error)
}

// APICheck reports whether the backend answers. An anonymous or expired
// session still counts as reachable; only transport failures, 5xx responses
// and an open circuit breaker fail the check.
func APICheck(api Prober) Checker {
	return Checker{
		Name: "api",
		Check: func(ctx context.Context) error {
			_, err := api.Me(ctx)
			if err == nil || errors.Is(err, ghostapi.ErrUnauthenticated) {
				return nil
			}
			var re *ghostapi.RemoteError
			if errors.As(err, &re) && re.Status > 0 && re.Status < 500 {
				return nil
			}
			return err
		},
	}
}

// ── server ───────────────────────────────────────────────────────────────────

// Serve listens on addr and serves h until ctx is cancelled, then shuts the
// server down gracefully. It returns nil after a clean shutdown.
func Serve(ctx context.Context, addr string, h *Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("health: listen %q: %w", addr, err)
	}
	return serve(ctx, ln, h)
}

func serve(ctx context.Context, ln net.Listener, h *Handler) error {
	mux := http.NewServeMux()
	h.Register(mux)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	slog.Info("health: serving", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("health: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("health: shutdown: %w", err)
	}
	<-errCh
	return nil
}
