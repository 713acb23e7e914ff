package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/julianstephens/horizon/internal/constants"
)

var (
	// Logger is the global logger instance
	Logger *log.Logger
)

// Config holds logger configuration
type Config struct {
	Debug     bool
	ConfigDir string
	// Output replaces the rotating log file when set.
	Output io.Writer
}

// LogPath returns the log file location for a config directory.
func LogPath(configDir string) string {
	return filepath.Join(configDir, "logs", constants.AppName+".log")
}

// Init initializes the global logger with the given configuration
func Init(cfg Config) error {
	var out io.Writer = cfg.Output
	if out == nil {
		logFile := LogPath(cfg.ConfigDir)
		if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
			return err
		}
		out = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
	}

	level := log.WarnLevel
	if cfg.Debug {
		level = log.DebugLevel
		// debug output is mirrored to stderr
		out = io.MultiWriter(os.Stderr, out)
	}

	Logger = log.NewWithOptions(out, log.Options{
		ReportCaller:    cfg.Debug,
		ReportTimestamp: true,
		Level:           level,
		Prefix:          constants.AppName,
	})

	return nil
}

// With returns a sub-logger carrying the given key/value pairs. It returns
// nil when the global logger has not been initialized.
func With(keyvals ...interface{}) *log.Logger {
	if Logger == nil {
		return nil
	}
	return Logger.With(keyvals...)
}

// Debug logs a debug message
func Debug(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Debug(msg, keyvals...)
	}
}

// Info logs an info message
func Info(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Info(msg, keyvals...)
	}
}

// Warn logs a warning message
func Warn(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Warn(msg, keyvals...)
	}
}

// Error logs an error message
func Error(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Error(msg, keyvals...)
	}
}

// Fatal logs a fatal error and exits
func Fatal(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Fatal(msg, keyvals...)
	}
	os.Exit(1)
}

// Printf adapts the global logger to printf-style sinks such as badger's
// logger. Messages are tagged with the given component name.
type Printf struct {
	Component string
}

func (p Printf) emit(level log.Level, format string, args ...interface{}) {
	if Logger == nil {
		return
	}
	msg := strings.TrimSpace(fmt.Sprintf(format, args...))
	Logger.Log(level, msg, "component", p.Component)
}

func (p Printf) Errorf(format string, args ...interface{}) {
	p.emit(log.ErrorLevel, format, args...)
}

func (p Printf) Warningf(format string, args ...interface{}) {
	p.emit(log.WarnLevel, format, args...)
}

func (p Printf) Infof(format string, args ...interface{}) {
	p.emit(log.InfoLevel, format, args...)
}

func (p Printf) Debugf(format string, args ...interface{}) {
	p.emit(log.DebugLevel, format, args...)
}
