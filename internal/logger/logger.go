package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Special values of Config.Output. Anything else is a file path rotated by
// lumberjack.
const (
	OutputStdout  = "stdout"
	OutputStderr  = "stderr"
	OutputDiscard = "discard"
)

type Config struct {
	Level      string
	Format     string
	Output     string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// Logger hands out component-scoped logrus entries.
type Logger struct {
	log *logrus.Logger
}

func New(cfg Config) *Logger {
	log := logrus.New()
	log.SetFormatter(formatter(cfg))
	log.SetOutput(output(cfg))

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	return &Logger{log: log}
}

func formatter(cfg Config) logrus.Formatter {
	if strings.EqualFold(cfg.Format, "json") {
		return &logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano}
	}
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339Nano,
		ForceColors:     cfg.Output == "" || cfg.Output == OutputStdout,
	}
}

func output(cfg Config) io.Writer {
	switch cfg.Output {
	case "", OutputStdout:
		return os.Stdout
	case OutputStderr:
		return os.Stderr
	case OutputDiscard:
		return io.Discard
	}
	return &lumberjack.Logger{
		Filename:   cfg.Output,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}
}

// Logrus exposes the underlying logger for libraries that accept one.
func (l *Logger) Logrus() *logrus.Logger {
	return l.log
}

func (l *Logger) WithComponent(component string) *logrus.Entry {
	return l.log.WithField("component", component)
}

func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.log.WithFields(fields)
}

func (l *Logger) WithError(err error) *logrus.Entry {
	return l.log.WithError(err)
}
