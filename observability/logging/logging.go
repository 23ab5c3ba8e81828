package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options tunes the structured logger. Zero values log JSON at info level to
// stdout. Format "text" switches to a colourised console handler for local runs.
type Options struct {
	Service string
	Env     string
	Level   string
	Format  string
	Output  io.Writer
}

// ParseLevel maps textual levels ("debug", "info", "warn", "error") onto slog
// levels. Unknown values fall back to info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a JSON logger without touching process-wide state. Keys are
// renamed to timestamp, severity and message so log shippers can index them
// without extra parsing rules.
func New(opts Options) *slog.Logger {
	handler, attrs := newHandler(opts)
	return slog.New(handler).With(attrArgs(attrs)...)
}

// Setup configures the standard library logger to emit structured JSON and returns
// the underlying slog.Logger. All log lines include the service name and
// environment when provided.
func Setup(service, env string) *slog.Logger {
	return SetupWithOptions(Options{Service: service, Env: env})
}

// SetupWithOptions is Setup with an explicit level and writer.
func SetupWithOptions(opts Options) *slog.Logger {
	handler, attrs := newHandler(opts)
	base := slog.New(handler).With(attrArgs(attrs)...)
	slog.SetDefault(base)

	stdBridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}

// Component scopes a logger to a named subsystem such as "router" or "rpc".
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("component", name))
}

func newHandler(opts Options) (slog.Handler, []slog.Attr) {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(strings.TrimSpace(opts.Format), "text") {
		return tint.NewHandler(out, &tint.Options{
			Level:      ParseLevel(opts.Level),
			TimeFormat: time.RFC3339,
			NoColor:    out != os.Stdout && out != os.Stderr,
			ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
				return redactAttr(attr)
			},
		}), serviceAttrs(opts)
	}
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: ParseLevel(opts.Level),
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return redactAttr(attr)
		},
	})

	return handler, serviceAttrs(opts)
}

func serviceAttrs(opts Options) []slog.Attr {
	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(opts.Service))}
	if env := strings.TrimSpace(opts.Env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	return attrs
}

func attrArgs(attrs []slog.Attr) []any {
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	return args
}

// RotatingFile returns a size-rotated log file writer. Rotated files are
// gzipped and pruned after maxBackups generations.
func RotatingFile(path string, maxSizeMB, maxBackups int) io.WriteCloser {
	if maxSizeMB <= 0 {
		maxSizeMB = 100
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		LocalTime:  false,
		Compress:   true,
	}
}
