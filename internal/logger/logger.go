// Package logger wraps logrus with component-tagging and caller-correction
// conventions used throughout the pipeline. There is no CloudWatch sink:
// metrics/tracing exporters are treated as an external collaborator, so
// runtime reports stay local (structured log lines) and live counters are
// exposed through internal/metrics instead.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Fields aliases logrus.Fields so callers never import logrus directly.
type Fields map[string]interface{}

// Log wraps *logrus.Logger with the helpers used across the codebase.
type Log struct {
	*logrus.Logger
}

// Entry wraps *logrus.Entry so chained With* calls keep returning our type.
type Entry struct {
	*logrus.Entry
}

var global *Log

func init() {
	global = New()
}

// New builds a logger with JSON output at info level, honoring LOG_LEVEL.
func New() *Log {
	l := logrus.New()
	l.SetReportCaller(true)
	l.SetLevel(levelFromEnv())
	l.SetFormatter(jsonFormatter())
	l.AddHook(&callerHook{})
	return &Log{Logger: l}
}

// Get returns the process-wide default logger.
func Get() *Log { return global }

func levelFromEnv() logrus.Level {
	v := strings.ToLower(os.Getenv("LOG_LEVEL"))
	if v == "" {
		return logrus.InfoLevel
	}
	if lvl, err := logrus.ParseLevel(v); err == nil {
		return lvl
	}
	return logrus.InfoLevel
}

func jsonFormatter() *logrus.JSONFormatter {
	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
		CallerPrettyfier: prettyCaller,
	}
}

func prettyCaller(f *runtime.Frame) (string, string) {
	return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
}

// Configure re-applies level/format/output settings once config has
// loaded; New() above gives a usable logger before that point.
func (l *Log) Configure(level, format, output string) error {
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = env
	}
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	l.SetLevel(lvl)

	switch format {
	case "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339, CallerPrettyfier: prettyCaller})
	case "json", "":
		l.SetFormatter(jsonFormatter())
	default:
		return fmt.Errorf("invalid log format %q", format)
	}

	switch output {
	case "", "stdout":
		l.SetOutput(os.Stdout)
	case "stderr":
		l.SetOutput(os.Stderr)
	default:
		l.SetOutput(&lumberjack.Logger{Filename: output, MaxSize: 100, MaxAge: 14, Compress: true})
	}
	return nil
}

func (l *Log) WithComponent(component string) *Entry {
	return &Entry{Entry: l.Logger.WithField("component", component)}
}

func (l *Log) WithFields(f Fields) *Entry {
	return &Entry{Entry: l.Logger.WithFields(logrus.Fields(f))}
}

func (l *Log) WithError(err error) *Entry {
	return &Entry{Entry: l.Logger.WithError(err)}
}

func (e *Entry) WithComponent(component string) *Entry {
	return &Entry{Entry: e.Entry.WithField("component", component)}
}

func (e *Entry) WithFields(f Fields) *Entry {
	return &Entry{Entry: e.Entry.WithFields(logrus.Fields(f))}
}

func (e *Entry) WithError(err error) *Entry {
	return &Entry{Entry: e.Entry.WithError(err)}
}
