// Package app wires the PhantomLink client together.
//
// New builds every subsystem from the config: local state, the backend
// client with its breaker and instrumented transport, sound clips, speech
// capabilities and the session controller. Run drives the terminal UI and the
// optional health listener; Shutdown tears everything down and persists the
// session cookies.
//
// Tests inject doubles through the With* options. Anything not injected is
// created from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/phantomlink/internal/config"
	"github.com/MrWong99/phantomlink/internal/health"
	"github.com/MrWong99/phantomlink/internal/input"
	"github.com/MrWong99/phantomlink/internal/lifecycle"
	"github.com/MrWong99/phantomlink/internal/localstore"
	"github.com/MrWong99/phantomlink/internal/observe"
	"github.com/MrWong99/phantomlink/internal/resilience"
	"github.com/MrWong99/phantomlink/internal/scheduler"
	"github.com/MrWong99/phantomlink/internal/speech"
	"github.com/MrWong99/phantomlink/internal/tui"
	"github.com/MrWong99/phantomlink/internal/view"
	"github.com/MrWong99/phantomlink/pkg/audio"
	"github.com/MrWong99/phantomlink/pkg/ghostapi"
)

// App owns every subsystem of one client run.
type App struct {
	// cfg is replaced by ApplyConfig on the watcher goroutine; read it through
	// Config once New has returned.
	cfgMu     sync.RWMutex
	cfg       *config.Config
	providers *Providers

	store   *localstore.Store
	api     ghostapi.API
	breaker *resilience.CircuitBreaker
	sched   scheduler.Scheduler
	metrics *observe.Metrics
	level   *slog.LevelVar
	sounds  *lifecycle.Sounds
	caps    input.Capabilities

	bus    *tui.Bus
	ctrl   *lifecycle.Controller
	typed  *input.Typed
	spoken *input.Spoken

	// closers run last-in first-out during Shutdown; the store closes last.
	closers []func(context.Context) error

	stopOnce sync.Once
}

// Option injects a subsystem instead of building it from the config.
type Option func(*App)

// WithAPI injects the backend client.
func WithAPI(api ghostapi.API) Option {
	return func(a *App) { a.api = api }
}

// WithStore injects the local state store.
func WithStore(s *localstore.Store) Option {
	return func(a *App) { a.store = s }
}

// WithScheduler replaces the wall-clock scheduler.
func WithScheduler(s scheduler.Scheduler) Option {
	return func(a *App) { a.sched = s }
}

// WithMetrics records to m instead of the global meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets config reloads change the log level.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithSounds injects the sound clips.
func WithSounds(s lifecycle.Sounds) Option {
	return func(a *App) { a.sounds = &s }
}

// WithCapabilities injects the speech capabilities.
func WithCapabilities(c input.Capabilities) Option {
	return func(a *App) { a.caps = c }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New builds an App. providers may be nil when no speech is configured.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.sched == nil {
		a.sched = scheduler.New()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Local state ───────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Backend client ────────────────────────────────────────────────
	if err := a.initAPI(ctx); err != nil {
		a.runClosers(ctx)
		return nil, fmt.Errorf("app: init api: %w", err)
	}

	// ── 3. Sounds and speech ─────────────────────────────────────────────
	if err := a.initSounds(); err != nil {
		a.runClosers(ctx)
		return nil, fmt.Errorf("app: init sounds: %w", err)
	}
	if err := a.initSpeech(); err != nil {
		a.runClosers(ctx)
		return nil, fmt.Errorf("app: init speech: %w", err)
	}

	// ── 4. Session controller and input channels ─────────────────────────
	a.bus = tui.NewBus()
	a.ctrl = lifecycle.New(a.api, a.store, a.sched,
		lifecycle.WithConfig(cfg.Conversation.Lifecycle()),
		lifecycle.WithSounds(*a.sounds),
		lifecycle.WithListener(a.bus.Snapshot),
		lifecycle.WithNoticeListener(a.bus.Notice),
		lifecycle.WithMetrics(a.metrics),
	)
	a.typed = input.NewTyped(a.ctrl)
	a.spoken = input.NewSpoken(a.ctrl, a.caps,
		input.WithStateListener(a.bus.Listening),
		input.WithNotice(func(err error) { a.ctrl.Notify("speech", err) }),
		input.WithMetrics(a.metrics),
	)
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	var (
		kv  localstore.KV
		err error
	)
	switch sc := a.cfg.Storage; {
	case sc.DSN != "":
		kv, err = localstore.OpenPostgres(ctx, sc.DSN, sc.Profile)
	case sc.Path != "":
		kv, err = localstore.OpenSQLite(ctx, sc.Path)
	default:
		slog.Info("no storage configured, state is kept in memory")
		a.store = localstore.New(localstore.NewMemory())
		return nil
	}
	if err != nil {
		return err
	}
	a.store = localstore.New(kv)
	a.closers = append(a.closers, func(context.Context) error { return a.store.Close() })
	return nil
}

func (a *App) initAPI(ctx context.Context) error {
	if a.api != nil {
		return nil
	}
	if a.cfg.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}

	cookies, err := a.store.Cookies(ctx)
	if err != nil {
		slog.Warn("could not restore session cookies", "err", err)
	}

	cb := a.cfg.API.CircuitBreaker
	a.breaker = resilience.New(resilience.Config{
		Name:         "ghostapi",
		MaxFailures:  cb.MaxFailures,
		ResetTimeout: cb.ResetTimeout,
		HalfOpenMax:  cb.HalfOpenMax,
		IsFailure:    ghostapi.IsBreakerFailure,
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("circuit breaker state change", "name", name, "from", from, "to", to)
		},
	})

	client, err := ghostapi.New(a.cfg.API.BaseURL,
		ghostapi.WithTransport(&observe.Transport{Metrics: a.metrics}),
		ghostapi.WithTimeout(a.cfg.API.Timeout),
		ghostapi.WithBreaker(a.breaker),
		ghostapi.WithCookies(cookies),
	)
	if err != nil {
		return err
	}
	a.api = client
	a.closers = append(a.closers, a.saveCookies)
	return nil
}

// cookieSource is implemented by [ghostapi.Client].
type cookieSource interface {
	Cookies() []*http.Cookie
}

// saveCookies persists the backend session so the next run stays logged in.
func (a *App) saveCookies(ctx context.Context) error {
	src, ok := a.api.(cookieSource)
	if !ok {
		return nil
	}
	return a.store.SaveCookies(ctx, src.Cookies())
}

func (a *App) initSounds() error {
	if a.sounds != nil {
		return nil
	}
	a.sounds = &lifecycle.Sounds{}
	sc := a.cfg.Sounds
	if sc.Player == "" {
		return nil
	}
	player, err := audio.ParseCommand(sc.Player)
	if err != nil {
		return fmt.Errorf("sounds.player: %w", err)
	}
	clip := func(file string, loop bool) audio.Clip {
		if file == "" {
			return nil
		}
		return audio.NewCommandClip(player, file, loop)
	}
	a.sounds.Positive = clip(sc.Positive, false)
	a.sounds.Negative = clip(sc.Negative, false)
	a.sounds.Loading = clip(sc.Loading, true)
	return nil
}

func (a *App) initSpeech() error {
	if a.caps != nil {
		return nil
	}
	sc := a.cfg.Speech
	host := speech.Host{}

	if a.providers.STT != nil {
		cmd, err := audio.ParseCommand(sc.Source)
		if err != nil {
			return fmt.Errorf("speech.source: %w", err)
		}
		src := audio.NewCommandSource(cmd, audio.Format{SampleRate: sc.SampleRate, Channels: 1})
		host.Rec = speech.NewRecognizer(src, a.providers.STT, sc.Language)
	}
	if a.providers.TTS != nil {
		cmd, err := audio.ParseCommand(sc.Sink)
		if err != nil {
			return fmt.Errorf("speech.sink: %w", err)
		}
		host.Syn = speech.NewSynthesizer(a.providers.TTS, audio.NewCommandSink(cmd), a.sched,
			speech.WithPreferredVoice(sc.PreferredVoice),
			speech.WithVoiceParams(sc.Language, sc.Rate, sc.Pitch),
			speech.WithVoicePoll(sc.VoicePoll),
		)
	}
	a.caps = host
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Controller returns the session controller.
func (a *App) Controller() *lifecycle.Controller { return a.ctrl }

// Spoken returns the spoken input channel.
func (a *App) Spoken() *input.Spoken { return a.spoken }

// ─── Run ─────────────────────────────────────────────────────────────────────

// RunOptions selects what the terminal UI shows first.
type RunOptions struct {
	// Start is the first view: view.Home, view.Ghosts or view.History.
	Start view.Kind

	// Mode, when set, starts a search in that mode once mode selection is
	// reached.
	Mode *input.Mode

	// Program holds extra bubbletea options, e.g. input and output overrides.
	Program []tea.ProgramOption
}

// Run shows the terminal UI and serves the health listener, if configured,
// until the UI exits or ctx is cancelled.
func (a *App) Run(ctx context.Context, ro RunOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := []tui.Option{tui.WithStartView(ro.Start), tui.WithListener(a.spoken)}
	if ro.Mode != nil {
		opts = append(opts, tui.WithAutoStart(*ro.Mode))
	}
	model := tui.New(ctx, a.ctrl, a.typed, a.bus, opts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		popts := append([]tea.ProgramOption{tea.WithContext(gctx), tea.WithAltScreen()}, ro.Program...)
		_, err := tea.NewProgram(model, popts...).Run()
		if ctx.Err() != nil && (errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled)) {
			return nil
		}
		return err
	})
	if addr := a.Config().Server.ListenAddr; addr != "" {
		g.Go(func() error { return health.Serve(gctx, addr, a.HealthHandler()) })
	}
	return g.Wait()
}

// HealthHandler returns the readiness-checked health handler.
func (a *App) HealthHandler() *health.Handler {
	return health.New(health.WithCheckers(
		health.APICheck(a.api),
		health.Checker{Name: "storage", Check: a.store.Ping},
	))
}

// ─── Config reload ───────────────────────────────────────────────────────────

// ApplyConfig hot-applies the reloadable parts of next: the log level, the
// conversation thresholds and the search hints. Sections that need a restart
// are logged.
func (a *App) ApplyConfig(old, next *config.Config) config.ConfigDiff {
	d := config.Diff(old, next)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.ConversationChanged {
		a.ctrl.Reconfigure(next.Conversation.Lifecycle())
		slog.Info("conversation settings reloaded", "thresholds_changed", d.ThresholdsChanged, "hints_changed", d.HintsChanged)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
	a.cfgMu.Lock()
	a.cfg = next
	a.cfgMu.Unlock()
	return d
}

// Config returns the configuration most recently applied.
func (a *App) Config() *config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

// SlogLevel maps a config log level to its slog level.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops every timer and sound, persists the session cookies and
// closes the store. Remaining closers are skipped once ctx expires.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		slog.Debug("shutting down", "closers", len(a.closers))
		a.ctrl.Close()
		a.bus.Close()
		err = a.runClosers(ctx)
	})
	return err
}

func (a *App) runClosers(ctx context.Context) error {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			slog.Warn("shutdown deadline exceeded", "remaining", i+1)
			return ctx.Err()
		}
		if err := a.closers[i](ctx); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
		}
	}
	return nil
}
