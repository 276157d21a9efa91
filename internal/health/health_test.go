package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrWong99/phantomlink/pkg/ghostapi"
	apimock "github.com/MrWong99/phantomlink/pkg/ghostapi/mock"
)

func okCheck(name string) Checker {
	return Checker{Name: name, Check: func(context.Context) error { return nil }}
}

func failCheck(name, msg string) Checker {
	return Checker{Name: name, Check: func(context.Context) error { return errors.New(msg) }}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) result {
	t.Helper()
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return body
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	New().Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if got := decode(t, rec).Status; got != "ok" {
		t.Errorf("status = %q, want ok", got)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:       "all pass",
			checkers:   []Checker{okCheck("api"), okCheck("store")},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"api": "ok", "store": "ok"},
		},
		{
			name:       "one fails",
			checkers:   []Checker{failCheck("api", "connection refused"), okCheck("store")},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"api": "fail: connection refused", "store": "ok"},
		},
		{
			name:       "all fail",
			checkers:   []Checker{failCheck("api", "timeout"), failCheck("store", "locked")},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"api": "fail: timeout", "store": "fail: locked"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			New(WithCheckers(tc.checkers...)).Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

			if rec.Code != tc.wantCode {
				t.Errorf("status code = %d, want %d", rec.Code, tc.wantCode)
			}
			body := decode(t, rec)
			if body.Status != tc.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tc.wantStatus)
			}
			for name, want := range tc.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %q = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_CheckerSeesDeadline(t *testing.T) {
	t.Parallel()
	var hadDeadline bool
	h := New(WithCheckers(Checker{Name: "deadline", Check: func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	}}))
	h.Readyz(httptest.NewRecorder(), httptest.NewRequest("GET", "/readyz", nil))
	if !hadDeadline {
		t.Error("checker context has no deadline")
	}
}

func TestReadyz_CancelledRequest(t *testing.T) {
	t.Parallel()
	h := New(WithCheckers(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestAPICheck(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"logged in", nil, false},
		{"anonymous", fmt.Errorf("ghostapi: me: %w", ghostapi.ErrUnauthenticated), false},
		{"client error", &ghostapi.RemoteError{Op: "GET /me", Status: 404}, false},
		{"server error", &ghostapi.RemoteError{Op: "GET /me", Status: 502}, true},
		{"no response", &ghostapi.RemoteError{Op: "GET /me", Err: errors.New("dial tcp: refused")}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			api := &apimock.API{Username: "casper", MeErr: tc.err}
			err := APICheck(api).Check(context.Background())
			if (err != nil) != tc.wantErr {
				t.Errorf("Check() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestRegister_Routes(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "phantomlink_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	mux := http.NewServeMux()
	New(WithGatherer(reg), WithCheckers(okCheck("api"))).Register(mux)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", rec.Code)
			}
			if path == "/metrics" && !strings.Contains(rec.Body.String(), "phantomlink_test_total 1") {
				t.Errorf("metrics body missing counter:\n%s", rec.Body.String())
			}
		})
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, ln, New(WithGatherer(prometheus.NewRegistry()))) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	var resp *http.Response
	for range 50 {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestServe_BadAddress(t *testing.T) {
	t.Parallel()
	if err := Serve(context.Background(), "no-port-here", New()); err == nil {
		t.Error("Serve with a bad address succeeded")
	}
}
