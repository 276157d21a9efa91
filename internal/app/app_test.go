package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/phantomlink/internal/app"
	"github.com/MrWong99/phantomlink/internal/config"
	"github.com/MrWong99/phantomlink/internal/localstore"
	"github.com/MrWong99/phantomlink/internal/view"
	"github.com/MrWong99/phantomlink/pkg/audio"
	"github.com/MrWong99/phantomlink/pkg/ghostapi"
	ghostmock "github.com/MrWong99/phantomlink/pkg/ghostapi/mock"
)

// testConfig returns the default config pointed at an unreachable backend.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.API.BaseURL = "http://127.0.0.1:1"
	return cfg
}

func testAPI() *ghostmock.API {
	return &ghostmock.API{
		Username:       "medium",
		LocationResult: ghostapi.Location{City: "Salem", State: "Oregon"},
	}
}

func newApp(t *testing.T, cfg *config.Config, opts ...app.Option) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), cfg, nil, opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func TestNew_WithMocks(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(),
		app.WithAPI(testAPI()),
		app.WithStore(localstore.New(localstore.NewMemory())),
	)
	if a.Controller() == nil {
		t.Fatal("Controller() = nil")
	}
	if a.Spoken().Available() {
		t.Error("Spoken().Available() = true without speech providers")
	}
}

func TestNew_RequiresBaseURL(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.API.BaseURL = ""
	_, err := app.New(context.Background(), cfg, nil,
		app.WithStore(localstore.New(localstore.NewMemory())))
	if err == nil {
		t.Fatal("New() without base URL: want error")
	}
}

func TestNew_BadSoundPlayer(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Sounds.Player = "   "
	_, err := app.New(context.Background(), cfg, nil,
		app.WithAPI(testAPI()),
		app.WithStore(localstore.New(localstore.NewMemory())))
	if !errors.Is(err, audio.ErrNoCommand) {
		t.Fatalf("New() error = %v, want ErrNoCommand", err)
	}
}

func TestNew_SQLiteStorage(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "state.db")

	a, err := app.New(context.Background(), cfg, nil, app.WithAPI(testAPI()))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown() error: %v", err)
	}
}

func TestShutdown_PersistsCookies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := localstore.New(localstore.NewMemory())
	if err := store.SaveCookies(ctx, []*http.Cookie{{Name: "session", Value: "abc"}}); err != nil {
		t.Fatalf("SaveCookies: %v", err)
	}

	a, err := app.New(ctx, testConfig(), nil, app.WithStore(store))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	// Clear the store so only the shutdown write can restore it.
	if err := store.SaveCookies(ctx, nil); err != nil {
		t.Fatalf("SaveCookies(nil): %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	got, err := store.Cookies(ctx)
	if err != nil {
		t.Fatalf("Cookies: %v", err)
	}
	if len(got) != 1 || got[0].Name != "session" || got[0].Value != "abc" {
		t.Errorf("persisted cookies = %v, want session=abc", got)
	}
}

// sqliteCookies opens the state file at path on its own handle and returns the
// stored cookies.
func sqliteCookies(t *testing.T, path string) []*http.Cookie {
	t.Helper()
	ctx := context.Background()
	db, err := localstore.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer db.Close()
	got, err := localstore.New(db).Cookies(ctx)
	if err != nil {
		t.Fatalf("Cookies: %v", err)
	}
	return got
}

func saveSQLiteCookies(t *testing.T, path string, cookies []*http.Cookie) {
	t.Helper()
	ctx := context.Background()
	db, err := localstore.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer db.Close()
	if err := localstore.New(db).SaveCookies(ctx, cookies); err != nil {
		t.Fatalf("SaveCookies: %v", err)
	}
}

func TestShutdown_PersistsCookiesToSQLite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "state.db")
	saveSQLiteCookies(t, cfg.Storage.Path, []*http.Cookie{{Name: "session", Value: "abc"}})

	a, err := app.New(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	// Wipe the file so only the shutdown write can bring the cookie back.
	saveSQLiteCookies(t, cfg.Storage.Path, nil)
	if got := sqliteCookies(t, cfg.Storage.Path); len(got) != 0 {
		t.Fatalf("cookies after wipe = %v, want none", got)
	}

	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	got := sqliteCookies(t, cfg.Storage.Path)
	if len(got) != 1 || got[0].Name != "session" || got[0].Value != "abc" {
		t.Errorf("persisted cookies = %v, want session=abc", got)
	}
}

func TestShutdown_LogoutClearsSQLiteCookies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "state.db")
	saveSQLiteCookies(t, cfg.Storage.Path, []*http.Cookie{{Name: "session", Value: "abc"}})

	a, err := app.New(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	// The backend is unreachable; the local session is dropped regardless.
	_ = a.Controller().Logout(ctx)
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if got := sqliteCookies(t, cfg.Storage.Path); len(got) != 0 {
		t.Errorf("cookies after logout = %v, want none", got)
	}
}

func TestShutdown_ExpiredContext(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(), nil,
		app.WithStore(localstore.New(localstore.NewMemory())))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Shutdown(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Shutdown() error = %v, want context.Canceled", err)
	}
}

func TestHealthHandler_Ready(t *testing.T) {
	t.Parallel()

	api := testAPI()
	a := newApp(t, testConfig(),
		app.WithAPI(api),
		app.WithStore(localstore.New(localstore.NewMemory())),
	)

	rec := httptest.NewRecorder()
	a.HealthHandler().Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz status = %d, want 200; body %s", rec.Code, rec.Body)
	}

	api.MeErr = errors.New("dial tcp: connection refused")
	rec = httptest.NewRecorder()
	a.HealthHandler().Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz status with unreachable backend = %d, want 503", rec.Code)
	}
}

func TestApplyConfig(t *testing.T) {
	t.Parallel()

	lv := new(slog.LevelVar)
	old := testConfig()
	a := newApp(t, old,
		app.WithAPI(testAPI()),
		app.WithStore(localstore.New(localstore.NewMemory())),
		app.WithLevelVar(lv),
	)

	next := testConfig()
	next.Server.LogLevel = config.LogDebug
	next.Server.ListenAddr = ":9090"
	next.Conversation.Typed.PositiveThreshold = 0.8
	next.Conversation.Typed.NegativeThreshold = -0.8

	d := a.ApplyConfig(old, next)
	if lv.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", lv.Level())
	}
	if !d.ThresholdsChanged || !d.ConversationChanged {
		t.Errorf("diff = %+v, want threshold and conversation changes", d)
	}
	if !slices.Contains(d.RestartRequired, "server.listen_addr") {
		t.Errorf("RestartRequired = %v, want server.listen_addr", d.RestartRequired)
	}
}

func TestApplyConfig_ConcurrentReads(t *testing.T) {
	t.Parallel()

	old := testConfig()
	a := newApp(t, old,
		app.WithAPI(testAPI()),
		app.WithStore(localstore.New(localstore.NewMemory())),
		app.WithLevelVar(new(slog.LevelVar)),
	)

	next := testConfig()
	next.Server.LogLevel = config.LogWarn

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if c := a.Config(); c != old && c != next {
					t.Errorf("Config() = %p, want old or next", c)
					return
				}
			}
		}()
	}
	a.ApplyConfig(old, next)
	wg.Wait()

	if got := a.Config(); got != next {
		t.Errorf("Config() after ApplyConfig = %p, want %p", got, next)
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := app.SlogLevel(tt.in); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(),
		app.WithAPI(testAPI()),
		app.WithStore(localstore.New(localstore.NewMemory())),
	)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx, app.RunOptions{
			Start:   view.Home,
			Program: []tea.ProgramOption{tea.WithInput(strings.NewReader("")), tea.WithOutput(io.Discard)},
		})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return within 5s after cancellation")
	}
}
