package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/viewmark/extension/internal/api"
	"github.com/viewmark/extension/internal/config"
	"github.com/viewmark/extension/internal/dispatcher"
	"github.com/viewmark/extension/internal/handlers"
	"github.com/viewmark/extension/internal/influx"
	"github.com/viewmark/extension/internal/logging"
	"github.com/viewmark/extension/internal/monitor"
	intOtel "github.com/viewmark/extension/internal/otel"
	"github.com/viewmark/extension/internal/parser"
	"github.com/viewmark/extension/internal/runloop"
	"github.com/viewmark/extension/internal/session"
	"github.com/viewmark/extension/internal/storage"
	"github.com/viewmark/extension/internal/store"
	"github.com/viewmark/extension/internal/transition"
	"github.com/viewmark/extension/internal/worker"
	"github.com/viewmark/extension/pkg/hostbridge"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentEngineVersion string = "0.0.1"
	BuildDate            string = "unknown"

	EngineName string = "viewmark"
)

// global variables
var (
	SessionStartTime time.Time = time.Now()

	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	// EngineLogFile receives the session log
	EngineLogFile *os.File

	// Core engine state
	loop          *runloop.Loop
	bookmarkStore *store.Store
	sessionCtx    *session.Context
	camTransition *transition.Transition

	// Services
	handlerService  *handlers.Service
	workerManager   *worker.Manager
	monitorService  *monitor.Service
	queues          *worker.Queues
	eventDispatcher *dispatcher.Dispatcher
	influxManager   *influx.Manager

	// Storage backend
	storageBackend storage.Backend
)

func main() {
	configDir := flag.String("config", ".", "directory containing viewmark.cfg.json")
	demo := flag.Bool("demo", false, "run the scripted demo against a simulated viewport")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("%s %s (built %s)\n", EngineName, CurrentEngineVersion, BuildDate)
		return
	}

	if err := setup(*configDir); err != nil {
		fmt.Fprintf(os.Stderr, "setup failed: %v\n", err)
		os.Exit(1)
	}
	defer shutdown()

	checkServerStatus()

	if *demo {
		runDemo()
		return
	}

	Logger.Info("Engine initialized, no host attached. Run with -demo for the scripted driver.")
}

func setup(configDir string) error {
	var err error

	// Initialize slog manager with stderr until the log file exists
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(os.Stderr, viper.GetString("logLevel"), nil)
	Logger = SlogManager.Logger()

	if err = config.Load(configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config")
	}

	logsDir := viper.GetString("logsDir")
	if _, err := os.Stat(logsDir); os.IsNotExist(err) {
		os.Mkdir(logsDir, 0755)
	}

	logFilePath := logging.LogFilePath(logsDir, EngineName, SessionStartTime)
	EngineLogFile, err = os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", logFilePath)
	}
	Logger.Info("Begin logging in logs directory", "path", logFilePath)

	// Initialize OTel provider if enabled (after log file is created)
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    EngineLogFile,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			Logger.Info("OTel provider initialized", "file", logFilePath)
		}
	}

	// Core engine state, created before logging re-setup so the context
	// handler can read live session attributes
	loop = runloop.New()
	bookmarkStore = store.New(loop)
	sessionCtx = session.NewContext()
	sessionCtx.SetProjectName(viper.GetString("project.name"))
	camTransition = transition.New()

	// Re-setup logging with file output and optional OTel/GELF
	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	setupOpts := []logging.SetupOption{
		logging.WithContext(func() []slog.Attr {
			return []slog.Attr{
				slog.String("project", sessionCtx.ProjectName()),
				slog.String("context", string(sessionCtx.ContextKey())),
			}
		}),
	}
	if viper.GetBool("graylog.enabled") {
		gelfWriter, gerr := logging.DialGelf(viper.GetString("graylog.address"))
		if gerr != nil {
			Logger.Warn("Failed to dial Graylog", "error", gerr)
		} else {
			setupOpts = append(setupOpts, logging.WithGelf(gelfWriter))
		}
	}
	SlogManager.Setup(EngineLogFile, viper.GetString("logLevel"), otelLogProvider, setupOpts...)
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", logFilePath)

	// zerolog stays in the database and influx layers
	zlog := zerolog.New(EngineLogFile).With().Timestamp().Logger()

	if viper.GetBool("influx.enabled") {
		influxManager = influx.NewManager(zlog, filepath.Join(logsDir, "influx_backup.lp.gz"))
		if err := influxManager.Connect(); err != nil {
			Logger.Warn("InfluxDB unavailable, usage telemetry disabled", "error", err)
			influxManager = nil
		}
	}

	eventDispatcher, err = dispatcher.New(Logger)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	hostbridge.SetVersion(CurrentEngineVersion)
	hostbridge.SetDispatcher(eventDispatcher)

	return startServices(zlog)
}

func startServices(zlog zerolog.Logger) error {
	queues = worker.NewQueues()

	workerManager = worker.NewManager(worker.Dependencies{
		Store:      bookmarkStore,
		Session:    sessionCtx,
		LogManager: SlogManager,
		Influx:     influxManager,
	}, queues)

	handlerService = handlers.NewService(handlers.Dependencies{
		Store:              bookmarkStore,
		Loop:               loop,
		Transition:         camTransition,
		Parser:             parser.New(Logger),
		Session:            sessionCtx,
		LogManager:         SlogManager,
		Worker:             workerManager,
		Influx:             influxManager,
		TransitionDuration: config.GetTransitionConfig().Duration,
		EngineVersion:      CurrentEngineVersion,
	})
	handlerService.RegisterHandlers(eventDispatcher)

	// Storage backend from config
	storageCfg := config.GetStorageConfig()
	backend, err := storage.NewBackend(storageCfg, storage.BackendInfo{
		ProjectName:   sessionCtx.ProjectName(),
		EngineVersion: CurrentEngineVersion,
		Logger:        zlog,
	})
	if err != nil {
		return fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to initialize %s storage backend: %w", storageCfg.Type, err)
	}
	storageBackend = backend
	workerManager.SetBackend(storageBackend)
	handlerService.SetBackend(storageBackend)
	Logger.Info("Storage backend initialized", "type", storageCfg.Type)

	// Restore the persisted layout; a malformed snapshot leaves the
	// store empty and the session running
	if layout, err := storageBackend.LoadLayout(); err != nil {
		Logger.Warn("Could not load persisted layout", "error", err)
	} else if err := bookmarkStore.Restore(layout); err != nil {
		Logger.Warn("Persisted layout malformed, starting empty", "error", err)
	}

	// Every coalesced store change schedules a persistence pass
	bookmarkStore.Subscribe(func() {
		workerManager.EnqueueSave()
	})

	workerManager.Start(worker.DefaultFlushInterval)

	monitorService = monitor.NewService(monitor.Dependencies{
		Store:            bookmarkStore,
		Session:          sessionCtx,
		LogManager:       SlogManager,
		WorkerManager:    workerManager,
		Queues:           queues,
		Influx:           influxManager,
		StatusDir:        viper.GetString("logsDir"),
		TransitionActive: func() bool { return camTransition.State() == transition.Animating },
	})
	if !monitorService.IsRunning() {
		monitorService.Start()
	}

	return nil
}

func shutdown() {
	if monitorService != nil {
		monitorService.Stop()
	}
	if workerManager != nil {
		workerManager.Stop()
	}
	if storageBackend != nil {
		if err := storageBackend.Close(); err != nil {
			Logger.Error("Error closing storage backend", "error", err)
		}
	}
	if SlogManager != nil {
		SlogManager.Flush(context.Background())
	}
	if OTelProvider != nil {
		OTelProvider.Shutdown(context.Background())
	}
	if EngineLogFile != nil {
		EngineLogFile.Close()
	}
}

// checkServerStatus logs whether the layout share server is reachable.
func checkServerStatus() {
	client := api.New(viper.GetString("api.serverUrl"), viper.GetString("api.apiKey"))
	if err := client.Healthcheck(); err != nil {
		Logger.Info("Layout share server is offline")
	} else {
		Logger.Info("Layout share server is online")
	}
}
