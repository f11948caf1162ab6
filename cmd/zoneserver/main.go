package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/pdazone/engine/internal/api"
	"github.com/pdazone/engine/internal/config"
	"github.com/pdazone/engine/internal/database"
	"github.com/pdazone/engine/internal/dispatcher"
	"github.com/pdazone/engine/internal/engine"
	"github.com/pdazone/engine/internal/handlers"
	"github.com/pdazone/engine/internal/identity"
	"github.com/pdazone/engine/internal/influx"
	"github.com/pdazone/engine/internal/janitor"
	"github.com/pdazone/engine/internal/logging"
	intOtel "github.com/pdazone/engine/internal/otel"
	"github.com/pdazone/engine/internal/seed"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	Version   string = "0.0.1"
	BuildDate string = "unknown"

	ServiceName string = "zoneserver"
)

const shutdownTimeout = 10 * time.Second

// runtime holds the process-wide sinks shared by every subcommand.
type runtime struct {
	sessionStart time.Time
	logsDir      string
	logFile      *os.File
	slog         *logging.SlogManager
	logger       *slog.Logger
	zlog         zerolog.Logger
	otel         *intOtel.Provider
	gelf         *gelf.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command = strings.ToLower(args[0])
		args = args[1:]
	}

	rt, err := setup(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}

	switch command {
	case "serve":
		err = serve(ctx, rt)
	case "migrate":
		err = migrate(rt, args)
	case "version":
		fmt.Printf("%s %s (built %s)\n", ServiceName, Version, BuildDate)
	default:
		err = fmt.Errorf("unknown command %q, expected serve, migrate or version", command)
	}

	rt.close()
	if err != nil {
		rt.logger.Error("Exiting with error", "error", err)
		os.Exit(1)
	}
}

// setup loads the config and wires the log sinks. A missing config file is
// not fatal; defaults and ZONE_ environment variables still apply.
func setup(ctx context.Context) (*runtime, error) {
	rt := &runtime{sessionStart: time.Now(), slog: logging.NewSlogManager()}
	rt.slog.Setup(logging.Options{Level: "info"})
	rt.logger = rt.slog.Logger()

	configDir := os.Getenv("ZONE_CONFIG_DIR")
	if configDir == "" {
		configDir = "."
	}
	if err := config.Load(configDir); err != nil {
		rt.logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		rt.logger.Info("Loaded config", "dir", configDir)
	}

	rt.logsDir = config.GetString("logsDir")
	logFile, err := logging.OpenLogFile(rt.logsDir, ServiceName, rt.sessionStart)
	if err != nil {
		return nil, err
	}
	rt.logFile = logFile

	otelCfg := intOtel.FromConfig(config.GetOTelConfig())
	otelCfg.LogWriter = logFile
	rt.otel, err = intOtel.New(ctx, otelCfg)
	if err != nil {
		rt.logger.Error("Failed to initialize OTel provider", "error", err)
		rt.otel = nil
	}

	if gl := config.GetGraylogConfig(); gl.Enabled {
		rt.gelf, err = gelf.NewWriter(gl.Address)
		if err != nil {
			rt.logger.Error("Failed to connect to Graylog", "error", err, "address", gl.Address)
		}
	}

	opts := logging.Options{Level: config.GetString("logLevel"), File: logFile}
	if rt.otel != nil {
		opts.Provider = rt.otel.LoggerProvider()
	}
	if rt.gelf != nil {
		opts.Graylog = rt.gelf
	}
	rt.slog.Setup(opts)
	rt.logger = rt.slog.Logger().With("service", ServiceName, "version", Version)
	rt.logger.Info("Logging to file", "path", logFile.Name())

	level, err := zerolog.ParseLevel(strings.ToLower(config.GetString("logLevel")))
	if err != nil {
		level = zerolog.InfoLevel
	}
	var zw io.Writer = zerolog.MultiLevelWriter(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}, logFile)
	rt.zlog = zerolog.New(zw).Level(level).With().Timestamp().Str("service", ServiceName).Logger()
	return rt, nil
}

func (rt *runtime) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for sink, n := range rt.slog.SinkFailures() {
		rt.logger.Warn("Log sink dropped records", "sink", sink, "failures", n)
	}
	if err := rt.slog.Flush(ctx); err != nil {
		rt.logger.Warn("Failed to flush logs", "error", err)
	}
	if rt.otel != nil {
		if err := rt.otel.Shutdown(ctx); err != nil {
			rt.logger.Warn("Failed to shut down OTel", "error", err)
		}
	}
	if rt.gelf != nil {
		_ = rt.gelf.Close()
	}
	if rt.logFile != nil {
		_ = rt.logFile.Close()
	}
}

// serve runs the zone server until ctx is cancelled.
func serve(ctx context.Context, rt *runtime) error {
	log := rt.logger
	log.Info("Starting up...")

	store, err := createStorageBackend(config.GetStorageConfig(), rt.logsDir, rt.sessionStart, log)
	if err != nil {
		return err
	}
	if err := store.Init(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Failed to close storage", "error", err)
		}
	}()

	telemetry := influx.NewManager(config.GetInfluxConfig(), rt.zlog,
		filepath.Join(rt.logsDir, fmt.Sprintf("%s_telemetry_%s.lp.gz", ServiceName, rt.sessionStart.Format("20060102_150405"))))
	if err := telemetry.Connect(ctx); err != nil {
		log.Warn("Telemetry disabled", "error", err)
	}
	defer func() {
		if err := telemetry.Close(); err != nil {
			log.Warn("Failed to close telemetry", "error", err)
		}
	}()

	e, err := engine.New(store, config.GetEngineConfig(),
		engine.WithLogger(log), engine.WithTelemetry(telemetry))
	if err != nil {
		return err
	}

	d, err := dispatcher.New(logging.NewDispatcherLogger(rt.zlog))
	if err != nil {
		return err
	}
	defer d.Close()

	svc, err := handlers.NewService(e)
	if err != nil {
		return err
	}
	svc.Register(d)
	sweeper := janitor.New(e, log)
	sweeper.Register(d)

	if _, err := seed.LoadAndApply(ctx, d, store, config.GetSeedFile(), log); err != nil {
		return fmt.Errorf("failed to load world file: %w", err)
	}

	ids, err := identity.FromConfig()
	if err != nil {
		return err
	}

	httpCfg := config.GetHTTPConfig()
	srv := &http.Server{
		Addr:         httpCfg.Address,
		Handler:      api.NewServer(d, ids, log),
		ReadTimeout:  httpCfg.ReadTimeout,
		WriteTimeout: httpCfg.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Listening", "address", httpCfg.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("Shutting down...")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return sweeper.Run(gctx, d, config.GetJanitorInterval())
	})
	g.Go(func() error {
		return telemetry.Run(gctx)
	})

	return g.Wait()
}

// migrate creates the schema. With no arguments it migrates the configured
// Postgres database; "sqlite <path>" writes an empty SQLite file instead.
func migrate(rt *runtime, args []string) error {
	m := database.NewManager(rt.zlog)
	defer m.Close()

	if len(args) == 2 && args[0] == "sqlite" {
		if err := m.ConnectSqlite(""); err != nil {
			return err
		}
		m.SqliteFilePath = args[1]
		if err := m.Setup(); err != nil {
			return err
		}
		return m.DumpMemoryToDisk()
	}
	if len(args) != 0 {
		return fmt.Errorf("usage: migrate [sqlite <path>]")
	}

	if err := m.ConnectPostgres(config.GetDBConfig()); err != nil {
		return err
	}
	return m.Setup()
}
