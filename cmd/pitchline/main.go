// Command pitchline is the main entry point for the pitchline call broker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/pitchline-ai/pitchline/internal/call"
	"github.com/pitchline-ai/pitchline/internal/coach"
	"github.com/pitchline-ai/pitchline/internal/config"
	"github.com/pitchline-ai/pitchline/internal/engine"
	"github.com/pitchline-ai/pitchline/internal/engine/anyllm"
	enginemock "github.com/pitchline-ai/pitchline/internal/engine/mock"
	engineopenai "github.com/pitchline-ai/pitchline/internal/engine/openai"
	"github.com/pitchline-ai/pitchline/internal/health"
	"github.com/pitchline-ai/pitchline/internal/httpapi"
	"github.com/pitchline-ai/pitchline/internal/observe"
	"github.com/pitchline-ai/pitchline/internal/relay"
	"github.com/pitchline-ai/pitchline/internal/resilience"
	"github.com/pitchline-ai/pitchline/internal/store"
	"github.com/pitchline-ai/pitchline/internal/twiml"
)

// version is stamped via -ldflags at release builds.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "pitchline.yaml", "path to the YAML configuration file")
	watchConfig := flag.Bool("watch-config", false, "hot-reload persona and log level when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "pitchline: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "pitchline: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("pitchline starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownObs, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "pitchline",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownObs(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Persona ───────────────────────────────────────────────────────────────
	persona, err := buildPersona(cfg)
	if err != nil {
		slog.Error("failed to build persona", "err", err)
		return 1
	}

	// ── Engine providers ──────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	primary, err := reg.CreateEngine(cfg.Engine.Provider)
	if err != nil {
		slog.Error("failed to create engine provider", "name", cfg.Engine.Provider.Name, "err", err)
		return 1
	}
	opener := engine.NewFallbackOpener(primary, persona, resilience.FallbackConfig{})
	slog.Info("engine provider created", "name", primary.Name(), "model", cfg.Engine.Provider.Model)

	if cfg.Engine.Fallback != nil {
		fb, err := reg.CreateEngine(*cfg.Engine.Fallback)
		if err != nil {
			slog.Error("failed to create fallback provider", "name", cfg.Engine.Fallback.Name, "err", err)
			return 1
		}
		opener.AddFallback(fb)
		slog.Info("fallback provider created", "name", fb.Name(), "model", cfg.Engine.Fallback.Model)
	}

	// ── Storage ───────────────────────────────────────────────────────────────
	st, pool, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise storage", "err", err)
		return 1
	}
	if pool != nil {
		defer pool.Close()
	}

	// ── Coach ─────────────────────────────────────────────────────────────────
	var analyzer coach.Analyzer
	if cfg.Coach.Provider.Name != "" {
		analyzer, err = reg.CreateCoach(cfg.Coach.Provider)
		if err != nil {
			slog.Error("failed to create coach provider", "name", cfg.Coach.Provider.Name, "err", err)
			return 1
		}
		slog.Info("coach provider created", "name", cfg.Coach.Provider.Name, "model", cfg.Coach.Provider.Model)
	} else {
		slog.Warn("coaching disabled: no coach provider configured")
	}

	// ── Call lifecycle ────────────────────────────────────────────────────────
	callReg := call.NewRegistry(opener, metrics)
	coordinator := call.NewCoordinator(callReg, store.CallWriter{Store: st}, call.Metadata{
		PersonaName:  persona.Name,
		PersonaRole:  persona.Role,
		PersonaLabel: persona.Label,
	}, metrics, logger)

	turnTimeout := time.Duration(cfg.Engine.TurnTimeoutSeconds) * time.Second
	relayHandler := relay.NewHandler(callReg, coordinator, turnTimeout, metrics, logger)

	// ── HTTP surface ──────────────────────────────────────────────────────────
	healthHandler := health.New(buildCheckers(cfg, st)...)

	handlers := httpapi.New(httpapi.Config{
		PublicURL: cfg.Server.PublicURL,
		RelayPath: cfg.Relay.Path,
		Relay: twiml.RelayConfig{
			TTSProvider:       cfg.Relay.TTSProvider,
			Voice:             cfg.Relay.Voice,
			Language:          cfg.Relay.Language,
			TextNormalization: cfg.Relay.TextNormalization,
		},
	}, callReg, coordinator, st, analyzer, relayHandler, healthHandler, logger)

	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = ":8080"
	}
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           handlers.Router(metrics),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Config hot reload (optional) ──────────────────────────────────────────
	if *watchConfig {
		watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
			applyReload(old, new, logLevel, opener)
		})
		if err != nil {
			slog.Error("failed to start config watcher", "err", err)
			return 1
		}
		defer watcher.Stop()
		slog.Info("config watcher started", "path", *configPath)
	}

	// ── Serve ─────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if cfg.Server.TLS != nil {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	slog.Info("server ready — press Ctrl+C to shut down", "addr", listenAddr)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// The "openai" engine uses the native SDK; the remaining model vendors go
// through the any-llm abstraction; "mock" is for local development without
// API keys.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterEngine("openai", func(entry config.ProviderEntry) (engine.Provider, error) {
		var opts []engineopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, engineopenai.WithBaseURL(entry.BaseURL))
		}
		return engineopenai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{"anthropic", "gemini", "deepseek", "mistral", "groq"} {
		reg.RegisterEngine(providerName, func(entry config.ProviderEntry) (engine.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterEngine("ollama", func(entry config.ProviderEntry) (engine.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	reg.RegisterEngine("mock", func(config.ProviderEntry) (engine.Provider, error) {
		return &enginemock.Provider{}, nil
	})

	reg.RegisterCoach("openai", func(entry config.ProviderEntry) (coach.Analyzer, error) {
		var opts []coach.Option
		if entry.BaseURL != "" {
			opts = append(opts, coach.WithBaseURL(entry.BaseURL))
		}
		return coach.New(entry.APIKey, entry.Model, opts...)
	})
}

// buildPersona resolves the configured persona into the engine's form.
func buildPersona(cfg *config.Config) (engine.Persona, error) {
	prompt, err := cfg.Persona.ResolveSystemPrompt()
	if err != nil {
		return engine.Persona{}, err
	}

	label := cfg.Persona.Label
	if label == "" {
		label = cfg.Persona.Name
	}

	return engine.Persona{
		Name:                cfg.Persona.Name,
		Role:                cfg.Persona.Role,
		Label:               label,
		SystemPrompt:        prompt,
		GreetingInstruction: cfg.Persona.GreetingInstruction,
		Temperature:         cfg.Engine.Temperature,
		MaxReplyTokens:      cfg.Engine.MaxReplyTokens,
	}, nil
}

// buildStore creates the configured transcript store. The returned pool is
// non-nil only for the postgres backend and must be closed by the caller.
func buildStore(ctx context.Context, cfg *config.Config) (store.Store, *pgxpool.Pool, error) {
	switch cfg.Storage.Backend {
	case config.StoragePostgres:
		pool, err := pgxpool.New(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		pg := store.NewPostgresStore(pool)
		if err := pg.InitSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		slog.Info("storage ready", "backend", "postgres")
		return pg, pool, nil

	default:
		dir := cfg.Storage.Dir
		if dir == "" {
			dir = "transcripts"
		}
		fs, err := store.NewFileStore(dir)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("storage ready", "backend", "file", "dir", dir)
		return fs, nil, nil
	}
}

// buildCheckers assembles the readiness checks for /readyz.
func buildCheckers(cfg *config.Config, st store.Store) []health.Checker {
	checkers := []health.Checker{
		{
			Name: "store",
			Check: func(ctx context.Context) error {
				if pg, ok := st.(*store.PostgresStore); ok {
					return pg.Ping(ctx)
				}
				_, err := st.ListTranscripts(ctx, 1)
				return err
			},
		},
		{
			Name: "engine",
			Check: func(context.Context) error {
				if cfg.Engine.Provider.Name == "" {
					return errors.New("no engine provider configured")
				}
				return nil
			},
		},
	}
	return checkers
}

// applyReload applies hot-reloadable config changes.
func applyReload(old, new *config.Config, logLevel *slog.LevelVar, opener *engine.FallbackOpener) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}

	if d.LogLevelChanged {
		logLevel.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.PersonaChanged {
		persona, err := buildPersona(new)
		if err != nil {
			slog.Warn("persona reload skipped", "err", err)
		} else {
			opener.UpdatePersona(persona)
			slog.Info("persona reloaded; applies to new calls", "name", persona.Name)
		}
	}

	if d.RelayChanged {
		slog.Warn("relay voice settings changed; restart required to apply")
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
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
