package sandbox

import (
	"strings"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// makeConsoleFunc creates a console function that captures its output and
// forwards it to the runtime logger
func (r *Runtime) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		msg := strings.Join(parts, " ")

		r.consoleMu.Lock()
		if r.console != nil {
			if limit := r.config.MaxConsole; limit > 0 && len(r.console) >= limit {
				r.console = r.console[1:]
			}
			r.console = append(r.console, LogEntry{
				Level:   level,
				Message: msg,
				Time:    time.Now(),
			})
		}
		r.consoleMu.Unlock()

		logger := r.Logger()
		fields := []zap.Field{zap.String("source", "console")}
		switch level {
		case "error":
			logger.Error(msg, fields...)
		case "warn":
			logger.Warn(msg, fields...)
		case "info":
			logger.Info(msg, fields...)
		default:
			logger.Debug(msg, fields...)
		}

		return goja.Undefined()
	}
}

// Console returns a copy of the captured console output
func (r *Runtime) Console() []LogEntry {
	r.consoleMu.Lock()
	defer r.consoleMu.Unlock()
	return append([]LogEntry(nil), r.console...)
}

// ClearConsole drops captured console output
func (r *Runtime) ClearConsole() {
	r.consoleMu.Lock()
	defer r.consoleMu.Unlock()
	if r.console != nil {
		r.console = r.console[:0]
	}
}
