// Package logging implements support for structured logging.
//
// This package is a thin layer over go-kit/log: loggers are obtained per
// module, may be created before the backend is initialized and honour
// per-module log levels resolved by longest module prefix.
package logging

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/pflag"
)

var (
	backend = logBackend{
		baseLogger:   log.NewNopLogger(),
		defaultLevel: LevelError,
	}

	_ pflag.Value = (*Level)(nil)
	_ pflag.Value = (*Format)(nil)
)

// Format is a logging format.
type Format uint

const (
	// FmtLogfmt is the "logfmt" logging format.
	FmtLogfmt Format = iota
	// FmtJSON is the JSON logging format.
	FmtJSON
)

var formatNames = []string{
	FmtLogfmt: "logfmt",
	FmtJSON:   "JSON",
}

// String returns the string representation of a Format.
func (f *Format) String() string {
	if int(*f) >= len(formatNames) {
		panic("logging: unsupported format")
	}
	return formatNames[*f]
}

// Set sets the Format to the value specified by the provided string.
func (f *Format) Set(s string) error {
	for v, name := range formatNames {
		if strings.EqualFold(name, s) {
			*f = Format(v)
			return nil
		}
	}
	return fmt.Errorf("logging: invalid log format: '%s'", s)
}

// Type returns the list of supported Formats.
func (f *Format) Type() string {
	return "[" + strings.Join(formatNames, ",") + "]"
}

func (f Format) newLogger(w io.Writer) (log.Logger, error) {
	switch f {
	case FmtLogfmt:
		return log.NewLogfmtLogger(w), nil
	case FmtJSON:
		return log.NewJSONLogger(w), nil
	default:
		return nil, fmt.Errorf("logging: unsupported log format: %d", f)
	}
}

// Level is a log level.
type Level uint

const (
	// LevelDebug is the log level for debug messages.
	LevelDebug Level = iota
	// LevelInfo is the log level for informative messages.
	LevelInfo
	// LevelWarn is the log level for warning messages.
	LevelWarn
	// LevelError is the log level for error messages.
	LevelError
)

var levelNames = []string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

// String returns the string representation of a Level.
func (l *Level) String() string {
	if int(*l) >= len(levelNames) {
		panic("logging: unsupported log level")
	}
	return levelNames[*l]
}

// Set sets the Level to the value specified by the provided string.
func (l *Level) Set(s string) error {
	for v, name := range levelNames {
		if strings.EqualFold(name, s) {
			*l = Level(v)
			return nil
		}
	}
	return fmt.Errorf("logging: invalid log level: '%s'", s)
}

// Type returns the list of supported Levels.
func (l *Level) Type() string {
	return "[" + strings.Join(levelNames, ",") + "]"
}

func (l Level) value() level.Value {
	switch l {
	case LevelDebug:
		return level.DebugValue()
	case LevelInfo:
		return level.InfoValue()
	case LevelWarn:
		return level.WarnValue()
	default:
		return level.ErrorValue()
	}
}

// ParseModuleLevels parses per-module log levels keyed by module prefix.
func ParseModuleLevels(levels map[string]string) (map[string]Level, error) {
	parsed := make(map[string]Level, len(levels))
	for module, s := range levels {
		var lvl Level
		if err := lvl.Set(s); err != nil {
			return nil, fmt.Errorf("logging: module '%s': %w", module, err)
		}
		parsed[module] = lvl
	}
	return parsed, nil
}

// Logger is a logger instance.
type Logger struct {
	logger log.Logger
	level  Level
	module string
}

func (l *Logger) log(lvl Level, msg string, keyvals []interface{}) {
	if lvl < l.level {
		return
	}
	keyvals = append([]interface{}{level.Key(), lvl.value(), "msg", msg}, keyvals...)
	_ = l.logger.Log(keyvals...)
}

// Debug logs the message and key value pairs at the Debug log level.
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.log(LevelDebug, msg, keyvals)
}

// Info logs the message and key value pairs at the Info log level.
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.log(LevelInfo, msg, keyvals)
}

// Warn logs the message and key value pairs at the Warn log level.
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.log(LevelWarn, msg, keyvals)
}

// Error logs the message and key value pairs at the Error log level.
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.log(LevelError, msg, keyvals)
}

// With returns a clone of the logger with the provided key/value pairs
// added as context to every subsequent log line.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	return &Logger{
		logger: log.With(l.logger, keyvals...),
		level:  l.level,
		module: l.module,
	}
}

// GetLogger creates a new logger instance with the specified module.
//
// This may be called from any point, including before Initialize is
// called, allowing for the construction of a package level Logger.
func GetLogger(module string) *Logger {
	return backend.getLogger(module)
}

// Initialize initializes the logging backend to write to the provided
// Writer with the given format, default level and per-module levels keyed
// by module prefix. If the Writer is nil, all log output is discarded.
func Initialize(w io.Writer, format Format, defaultLvl Level, moduleLvls map[string]Level) error {
	backend.Lock()
	defer backend.Unlock()

	if backend.initialized {
		return fmt.Errorf("logging: already initialized")
	}

	logger := backend.baseLogger
	if w != nil {
		var err error
		if logger, err = format.newLogger(log.NewSyncWriter(w)); err != nil {
			return err
		}
	}

	backend.baseLogger = log.With(logger, "ts", log.DefaultTimestampUTC)
	backend.moduleLevels = moduleLvls
	backend.defaultLevel = defaultLvl
	backend.initialized = true

	// Loggers handed out before initialization write through a swap logger.
	for _, l := range backend.early {
		l.swap.Swap(backend.baseLogger)
		l.logger.level = backend.levelFor(l.logger.module)
	}
	backend.early = nil

	return nil
}

type earlyLogger struct {
	swap   *log.SwapLogger
	logger *Logger
}

type logBackend struct {
	sync.Mutex

	baseLogger   log.Logger
	early        []*earlyLogger
	defaultLevel Level
	moduleLevels map[string]Level

	initialized bool
}

// levelFor returns the level of the longest configured module prefix
// matching the module, or the default level.
func (b *logBackend) levelFor(module string) Level {
	lvl, matched := b.defaultLevel, -1
	for prefix, l := range b.moduleLevels {
		if len(prefix) > matched && strings.HasPrefix(module, prefix) {
			lvl, matched = l, len(prefix)
		}
	}
	return lvl
}

func (b *logBackend) getLogger(module string) *Logger {
	// log.DefaultCaller plus the Logger method and Logger.log frames.
	const callerDepth = 5

	b.Lock()
	defer b.Unlock()

	var swap *log.SwapLogger
	logger := b.baseLogger
	if !b.initialized {
		swap = &log.SwapLogger{}
		logger = swap
	}

	var keyvals []interface{}
	if module != "" {
		keyvals = append(keyvals, "module", module)
	}
	keyvals = append(keyvals, "caller", log.Caller(callerDepth))

	l := &Logger{
		logger: log.WithPrefix(logger, keyvals...),
		level:  b.levelFor(module),
		module: module,
	}
	if swap != nil {
		b.early = append(b.early, &earlyLogger{swap: swap, logger: l})
	}

	return l
}
