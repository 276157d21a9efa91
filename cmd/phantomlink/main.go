// Command phantomlink talks to the ghosts of PhantomLink from the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/phantomlink/internal/app"
	"github.com/MrWong99/phantomlink/internal/config"
	"github.com/MrWong99/phantomlink/internal/input"
	"github.com/MrWong99/phantomlink/internal/observe"
	"github.com/MrWong99/phantomlink/internal/tui"
	"github.com/MrWong99/phantomlink/internal/view"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "phantomlink: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// flags are the options shared by every command.
type flags struct {
	config  string
	logFile string
	mode    string
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:   "phantomlink",
		Short: "Talk to the ghosts haunting the places around you",
		Long: `PhantomLink connects you with ghosts bound to nearby places.

Run without a sub-command to open the interactive client. Share your
location, pick a ghost, then type or speak to it.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd.Context(), f, view.Home, nil)
		},
	}
	root.PersistentFlags().StringVarP(&f.config, "config", "c", "phantomlink.yaml", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&f.logFile, "log-file", "", "write logs to this file (interactive commands log nowhere by default)")

	chat := &cobra.Command{
		Use:   "chat",
		Short: "Start a conversation right away",
		Long: `Opens the client and starts the ghost search as soon as mode
selection is reached. Use --mode speech to talk instead of type.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := input.ParseMode(f.mode)
			if err != nil {
				return err
			}
			return runInteractive(cmd.Context(), f, view.Home, &m)
		},
	}
	chat.Flags().StringVarP(&f.mode, "mode", "m", "text", "conversation mode: text or speech")

	ghosts := &cobra.Command{
		Use:   "ghosts",
		Short: "Browse the ghosts near your location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd.Context(), f, view.Ghosts, nil)
		},
	}

	history := &cobra.Command{
		Use:   "history",
		Short: "Read your saved conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd.Context(), f, view.History, nil)
		},
	}

	share := &cobra.Command{
		Use:   "share-location LATITUDE LONGITUDE",
		Short: "Share your coordinates so nearby ghosts can find you",
		Long: `Sends your coordinates to PhantomLink. Put -- before negative
values so they are not read as flags:

  phantomlink share-location -- -33.86 151.21`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShareLocation(cmd.Context(), cmd.OutOrStdout(), f, args[0]+","+args[1])
		},
	}

	whoami := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user and their location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWhoami(cmd.Context(), cmd.OutOrStdout(), f)
		},
	}

	logout := &cobra.Command{
		Use:   "logout",
		Short: "End the PhantomLink session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogout(cmd.Context(), cmd.OutOrStdout(), f)
		},
	}

	root.AddCommand(chat, ghosts, history, share, whoami, logout)
	return root
}

// ── Commands ──────────────────────────────────────────────────────────────────

func runInteractive(ctx context.Context, f *flags, start view.Kind, mode *input.Mode) error {
	s, err := startSession(ctx, f, true)
	if err != nil {
		return err
	}
	defer s.close()

	w, err := config.NewWatcher(f.config, func(old, next *config.Config) {
		s.app.ApplyConfig(old, next)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer w.Stop()
	}

	return s.app.Run(ctx, app.RunOptions{Start: start, Mode: mode})
}

func runShareLocation(ctx context.Context, out io.Writer, f *flags, coords string) error {
	lat, lon, err := tui.ParseCoordinates(coords)
	if err != nil {
		return err
	}
	s, err := startSession(ctx, f, false)
	if err != nil {
		return err
	}
	defer s.close()

	loc, err := s.app.Controller().ShareLocation(ctx, lat, lon)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Location shared: %s\n", loc)
	return nil
}

func runWhoami(ctx context.Context, out io.Writer, f *flags) error {
	s, err := startSession(ctx, f, false)
	if err != nil {
		return err
	}
	defer s.close()

	d, err := s.app.Controller().EnterView(ctx, view.Home)
	if err != nil {
		return err
	}
	if !d.Flags.Authenticated {
		fmt.Fprintln(out, "Not signed in.")
		return nil
	}
	fmt.Fprintf(out, "Signed in as %s\n", d.Flags.Username)
	if !d.Location.IsZero() {
		fmt.Fprintf(out, "Location: %s\n", d.Location)
	} else if !d.Flags.LocationShared {
		fmt.Fprintln(out, "Location not shared yet.")
	}
	return nil
}

func runLogout(ctx context.Context, out io.Writer, f *flags) error {
	s, err := startSession(ctx, f, false)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.app.Controller().Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "Logged out.")
	return nil
}

// ── Session setup ─────────────────────────────────────────────────────────────

// session is one fully wired client run.
type session struct {
	app     *app.App
	closers []func()
}

func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// startSession loads the config, sets up logging and telemetry, builds the
// speech providers and the application. Interactive sessions keep logs off the
// terminal unless --log-file is given.
func startSession(ctx context.Context, f *flags, interactive bool) (*session, error) {
	cfg, err := config.Load(f.config)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", f.config)
		}
		return nil, err
	}

	s := &session{}
	ok := false
	defer func() {
		if !ok {
			s.close()
		}
	}()

	// ── Logger ────────────────────────────────────────────────────────────
	var logOut io.Writer = os.Stderr
	switch {
	case f.logFile != "":
		lf, err := os.OpenFile(f.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		s.closers = append(s.closers, func() { _ = lf.Close() })
		logOut = lf
	case interactive:
		logOut = io.Discard
	}
	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level})))

	slog.Info("phantomlink starting",
		"version", version,
		"config", f.config,
		"api", cfg.API.BaseURL,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────
	tcfg := observe.ProviderConfig{ServiceVersion: version}
	if f.logFile != "" {
		tcfg.TraceExporter = observe.NewLogExporter(nil)
	}
	shutdownTelemetry, err := observe.InitProvider(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	s.closers = append(s.closers, func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(tctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	})

	// ── Providers ─────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg)
	providers, err := app.BuildProviders(cfg, reg)
	if err != nil {
		return nil, err
	}

	// ── Application ───────────────────────────────────────────────────────
	a, err := app.New(ctx, cfg, providers, app.WithLevelVar(level))
	if err != nil {
		return nil, err
	}
	s.app = a
	s.closers = append(s.closers, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := a.Shutdown(sctx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
		slog.Info("goodbye")
	})

	ok = true
	return s, nil
}
