package logging

import (
	"io"

	"github.com/go-kit/log"
)

// NewJSONLogger creates a new logger which logs JSON-serialized logs directly
// to the given writer, bypassing the global backend.
func NewJSONLogger(w io.Writer, module string) *Logger {
	var keyvals []interface{}
	if module != "" {
		keyvals = append(keyvals, "module", module)
	}
	return &Logger{
		logger: log.WithPrefix(log.NewJSONLogger(log.NewSyncWriter(w)), keyvals...),
		level:  LevelDebug,
		module: module,
	}
}
