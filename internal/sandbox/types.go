package sandbox

import (
	"time"

	"github.com/dop251/goja"
)

// Config defines runtime limits
type Config struct {
	Timeout          time.Duration // Per-evaluation and per-await budget; 0 disables
	MaxCallStackSize int           // goja call stack limit; 0 keeps the engine default
	EnableConsole    bool          // Expose console.log/warn/error/info/debug
	MaxConsole       int           // Console entries retained per runtime
}

// DefaultConfig returns the limits used when none are configured
func DefaultConfig() Config {
	return Config{
		Timeout:          5 * time.Second,
		MaxCallStackSize: 1024,
		EnableConsole:    true,
		MaxConsole:       1000,
	}
}

// LogEntry is one captured console call
type LogEntry struct {
	Level   string    // log, info, warn, error, debug
	Message string    // Arguments joined with spaces
	Time    time.Time // Capture time
}

// Task is work run on the event loop with exclusive access to the VM
type Task func(vm *goja.Runtime) error

// Extension installs host APIs into a runtime's global scope.
// Register runs with the runtime lock held and must not call With or Eval.
type Extension interface {
	Name() string
	Register(rt *Runtime, vm *goja.Runtime) error
}
