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

// consoleOut is where the console handler writes. Tests swap it.
var consoleOut io.Writer = os.Stdout

// Options selects the sinks of a SlogManager.
type Options struct {
	// Level is one of DEBUG, INFO, WARN, ERROR. Unknown values mean INFO.
	Level string
	// File receives plain text records when set.
	File io.Writer
	// Graylog receives JSON records, one per write, when set. A *gelf.Writer
	// turns every write into a GELF message.
	Graylog io.Writer
	// Provider enables the OTel bridge when set.
	Provider *sdklog.LoggerProvider
	// Quiet drops the console handler.
	Quiet bool
}

// SlogManager owns the process logger. Records fan out to every configured
// sink and carry the request attributes stored in their context.
type SlogManager struct {
	logger *slog.Logger

	// OTel provider for flushing
	logProvider *sdklog.LoggerProvider
	sinks       *sinkHandler
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup builds the logger from opts, replacing any earlier one.
func (m *SlogManager) Setup(opts Options) {
	lvl := parseLevel(opts.Level)
	m.logProvider = opts.Provider

	handlerOpts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var sinks []Sink
	if !opts.Quiet {
		sinks = append(sinks, Sink{"console", slog.NewTextHandler(consoleOut, handlerOpts)})
	}
	if opts.File != nil {
		sinks = append(sinks, Sink{"file", slog.NewTextHandler(opts.File, handlerOpts)})
	}
	if opts.Graylog != nil {
		sinks = append(sinks, Sink{"graylog", slog.NewJSONHandler(opts.Graylog, handlerOpts)})
	}
	if opts.Provider != nil {
		sinks = append(sinks, Sink{"otel", otelslog.NewHandler("zoneserver", otelslog.WithLoggerProvider(opts.Provider))})
	}

	m.sinks = newSinkHandler(sinks...)
	m.logger = slog.New(NewContextHandler(m.sinks))
	m.logger.Info("Logging initialized", "level", lvl.String())
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// SinkFailures reports how many records each sink failed to write.
func (m *SlogManager) SinkFailures() map[string]int {
	if m.sinks == nil {
		return nil
	}
	return m.sinks.failures.snapshot()
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}
