package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// SlogManager owns the engine's slog pipeline: stdout and session log
// file always, plus optional OTel and GELF sinks. Setup may be called
// twice, once for bootstrap (stderr only) and again when the log file
// and exporters exist.
type SlogManager struct {
	logger      *slog.Logger
	logProvider *sdklog.LoggerProvider
}

func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupOption configures optional log destinations.
type SetupOption func(*setupConfig)

type setupConfig struct {
	gelf    io.Writer
	context ContextProvider
}

// WithGelf adds a GELF (Graylog) destination receiving JSON records.
func WithGelf(w io.Writer) SetupOption {
	return func(c *setupConfig) {
		c.gelf = w
	}
}

// WithContext injects dynamic attributes (active context, project) into
// every record.
func WithContext(provider ContextProvider) SetupOption {
	return func(c *setupConfig) {
		c.context = provider
	}
}

// Setup wires the handler chain. A nil provider disables the OTel sink,
// a nil file skips the file sink; stdout always logs. Timestamps are
// normalized to UTC RFC3339 across all sinks.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider, opts ...SetupOption) {
	cfg := &setupConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	m.logProvider = provider

	handlerOpts := &slog.HandlerOptions{
		Level: parseLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	sinks := []slog.Handler{slog.NewTextHandler(os.Stdout, handlerOpts)}
	if file != nil {
		sinks = append(sinks, slog.NewTextHandler(file, handlerOpts))
	}
	if cfg.gelf != nil {
		sinks = append(sinks, slog.NewJSONHandler(cfg.gelf, handlerOpts))
	}
	if provider != nil {
		sinks = append(sinks, otelslog.NewHandler("viewmark-engine", otelslog.WithLoggerProvider(provider)))
	}

	var handler slog.Handler = newFanout(sinks...)
	if cfg.context != nil {
		handler = NewContextHandler(handler, cfg.context)
	}

	m.logger = slog.New(handler)
	m.logger.Info("Logging initialized", "level", level)
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces pending OTel log export.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider == nil {
		return nil
	}
	return m.logProvider.ForceFlush(ctx)
}

// WriteLog records a raw host-side log request at the named level,
// tagging the record with the originating host function.
func (m *SlogManager) WriteLog(functionName, data, level string) {
	if m.logger == nil {
		return
	}
	switch parseLevel(level) {
	case slog.LevelDebug:
		m.logger.Debug(data, "function", functionName)
	case slog.LevelWarn:
		m.logger.Warn(data, "function", functionName)
	case slog.LevelError:
		m.logger.Error(data, "function", functionName)
	default:
		m.logger.Info(data, "function", functionName)
	}
}
