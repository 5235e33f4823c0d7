// Package logging defines the Logger interface used by all components.
// It also includes functions for setting the global log level and a per-component log level.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mut           sync.RWMutex
	globalLevel   = zap.NewAtomicLevelAt(zap.InfoLevel)
	packageLevels = make(map[string]zap.AtomicLevel)
)

// Logger is the logging interface used by the components. It is satisfied by *zap.SugaredLogger.
type Logger interface {
	DPanic(args ...any)
	DPanicf(template string, args ...any)
	Debug(args ...any)
	Debugf(template string, args ...any)
	Error(args ...any)
	Errorf(template string, args ...any)
	Fatal(args ...any)
	Fatalf(template string, args ...any)
	Info(args ...any)
	Infof(template string, args ...any)
	Panic(args ...any)
	Panicf(template string, args ...any)
	Warn(args ...any)
	Warnf(template string, args ...any)
}

// ParseLevel parses one of debug, info, warn, error, dpanic, panic or fatal.
func ParseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return l, fmt.Errorf("invalid log level '%s'", level)
	}
	return l, nil
}

// SetLogLevel sets the global log level.
func SetLogLevel(levelStr string) error {
	level, err := ParseLevel(levelStr)
	if err != nil {
		return err
	}
	globalLevel.SetLevel(level)
	return nil
}

// SetPackageLogLevel sets a log level for loggers whose name starts with the given component name,
// overriding the global level. It only affects loggers created after the call.
func SetPackageLogLevel(component, levelStr string) error {
	level, err := ParseLevel(levelStr)
	if err != nil {
		return err
	}
	mut.Lock()
	defer mut.Unlock()
	if atom, ok := packageLevels[component]; ok {
		atom.SetLevel(level)
		return nil
	}
	packageLevels[component] = zap.NewAtomicLevelAt(level)
	return nil
}

// SetPackageLogLevels parses a list of component:level strings and applies them.
func SetPackageLogLevels(entries []string) error {
	for _, entry := range entries {
		component, level, ok := strings.Cut(entry, ":")
		if !ok {
			return fmt.Errorf("log level must be given as component:level, got '%s'", entry)
		}
		if err := SetPackageLogLevel(component, level); err != nil {
			return err
		}
	}
	return nil
}

func levelFor(name string) zap.AtomicLevel {
	mut.RLock()
	defer mut.RUnlock()

	best := ""
	for component := range packageLevels {
		if strings.HasPrefix(name, component) && len(component) > len(best) {
			best = component
		}
	}
	if best == "" {
		return globalLevel
	}
	return packageLevels[best]
}

// New returns a new logger for stderr with the given name.
// The logger writes JSON if the FLOODING_LOG_TYPE environment variable is set to json.
func New(name string) Logger {
	var config zap.Config
	if strings.ToLower(os.Getenv("FLOODING_LOG_TYPE")) == "json" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
			config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
	}
	config.Level = levelFor(name)
	l, err := config.Build()
	if err != nil {
		panic(err)
	}
	return l.Sugar().Named(name)
}

// NewWithDest returns a new logger for the given destination with the given name.
func NewWithDest(dest io.Writer, name string) Logger {
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), zapcore.AddSync(dest), levelFor(name))
	return zap.New(core).Sugar().Named(name)
}
