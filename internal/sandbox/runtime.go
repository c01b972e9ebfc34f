package sandbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/guesthost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/guesthost/internal/shared/id"
)

// Runtime is one guest VM plus its event loop.
//
// The VM is single threaded: Eval, With, Tick and the tasks they run all
// hold mu. Tasks and timers can be posted from any goroutine.
type Runtime struct {
	vm         *goja.Runtime
	config     Config
	base       *zap.Logger
	metrics    *monitoring.Metrics
	extensions []Extension

	// replaced on Reset; readable without mu
	id     atomic.Value // id.RuntimeID
	events atomic.Pointer[loop]
	logger atomic.Pointer[zap.Logger]

	mu     sync.Mutex
	vmMu   sync.Mutex // guards the vm pointer for Close
	closed atomic.Bool

	// ctx is cancelled by Close; host operations started by guests use it
	ctx    context.Context
	cancel context.CancelFunc

	console   []LogEntry
	consoleMu sync.Mutex
}

// Option configures a Runtime
type Option func(*Runtime)

// WithLogger sets the logger; console output is written to it at debug level
func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) { r.base = l }
}

// WithMetrics records evaluations and live runtimes
func WithMetrics(m *monitoring.Metrics) Option {
	return func(r *Runtime) { r.metrics = m }
}

// WithExtensions installs host APIs into the global scope
func WithExtensions(exts ...Extension) Option {
	return func(r *Runtime) { r.extensions = append(r.extensions, exts...) }
}

// New creates a runtime
func New(config Config, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		config: config,
		base:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.init(); err != nil {
		r.cancel()
		return nil, err
	}

	r.metrics.IncRuntimes()
	return r, nil
}

// init builds a fresh VM and loop under a new ID. Caller holds mu.
func (r *Runtime) init() error {
	rid := id.NewRuntimeID()
	vm := goja.New()
	if r.config.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(r.config.MaxCallStackSize)
	}

	r.vmMu.Lock()
	r.vm = vm
	r.vmMu.Unlock()
	r.id.Store(rid)
	r.events.Store(newLoop())
	r.logger.Store(r.base.With(zap.String("runtime", rid.String())))

	r.consoleMu.Lock()
	r.console = []LogEntry{}
	r.consoleMu.Unlock()

	if err := r.setupGlobals(); err != nil {
		return err
	}
	for _, ext := range r.extensions {
		if err := ext.Register(r, r.vm); err != nil {
			return fmt.Errorf("failed to register %s extension: %w", ext.Name(), err)
		}
	}
	return nil
}

// setupGlobals removes module loaders and installs console and timers
func (r *Runtime) setupGlobals() error {
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := r.vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	if r.config.EnableConsole {
		console := r.vm.NewObject()
		for _, level := range []string{"log", "info", "warn", "error", "debug"} {
			if err := console.Set(level, r.makeConsoleFunc(level)); err != nil {
				return err
			}
		}
		if err := r.vm.Set("console", console); err != nil {
			return err
		}
	}

	return r.installTimers(r.vm, r.events.Load())
}

// ID returns the runtime's current identity. It changes on Reset.
func (r *Runtime) ID() id.RuntimeID {
	return r.id.Load().(id.RuntimeID)
}

// Config returns the runtime limits
func (r *Runtime) Config() Config {
	return r.config
}

// Logger returns the runtime-scoped logger
func (r *Runtime) Logger() *zap.Logger {
	return r.logger.Load()
}

// Metrics returns the metrics sink, which may be nil
func (r *Runtime) Metrics() *monitoring.Metrics {
	return r.metrics
}

// Context is cancelled when the runtime is closed. Host operations started
// on behalf of the guest should derive from it.
func (r *Runtime) Context() context.Context {
	return r.ctx
}

// Closed reports whether Close has been called
func (r *Runtime) Closed() bool {
	return r.closed.Load()
}

// guard runs fn with a watchdog that interrupts the VM when the configured
// timeout elapses or ctx ends. Caller holds mu.
func (r *Runtime) guard(ctx context.Context, op string, fn func() error) error {
	var timeout <-chan time.Time
	if r.config.Timeout > 0 {
		t := time.NewTimer(r.config.Timeout)
		defer t.Stop()
		timeout = t.C
	}

	stop := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-timeout:
			r.vm.Interrupt(errExecutionTimeout)
		case <-ctx.Done():
			r.vm.Interrupt(ctx.Err())
		case <-stop:
		}
	}()

	err := fn()
	close(stop)
	<-exited
	r.vm.ClearInterrupt()

	return r.convertError(op, err)
}

// Eval runs src as a script named name and returns its completion value
func (r *Runtime) Eval(ctx context.Context, name, src string) (goja.Value, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return nil, ErrRuntimeClosed
	}

	start := time.Now()
	var val goja.Value
	err := r.guard(ctx, "eval", func() error {
		var err error
		val, err = r.vm.RunScript(name, src)
		return err
	})
	r.metrics.RecordEval(time.Since(start))

	if err != nil {
		r.Logger().Debug("Evaluation failed", zap.String("script", name), zap.Error(err))
		return nil, err
	}
	return val, nil
}

// With gives fn exclusive access to the VM. Calls made through fn are not
// bounded by the watchdog; use Eval or Call for guest code.
func (r *Runtime) With(fn func(vm *goja.Runtime) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return ErrRuntimeClosed
	}
	return r.convertError("call", fn(r.vm))
}

// Guarded is With under the watchdog
func (r *Runtime) Guarded(ctx context.Context, fn func(vm *goja.Runtime) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return ErrRuntimeClosed
	}
	return r.guard(ctx, "call", func() error { return fn(r.vm) })
}

// Enqueue posts a task to the event loop from any goroutine.
// It reports false when the runtime is closed.
func (r *Runtime) Enqueue(task Task) bool {
	if r.closed.Load() {
		return false
	}
	return r.events.Load().post(task)
}

// Hold registers an in-flight host operation and returns the function that
// settles it. Settle may be called from any goroutine; its task runs on the
// loop like any other.
func (r *Runtime) Hold() (settle func(Task)) {
	return r.events.Load().hold()
}

// Pending reports queued tasks, active timers and held operations
func (r *Runtime) Pending() int {
	return r.events.Load().pending()
}

// Tick runs every ready task, blocking until at least one is ready or ctx
// ends. A task that throws stops the tick; remaining tasks stay queued.
func (r *Runtime) Tick(ctx context.Context) error {
	if r.closed.Load() {
		return ErrRuntimeClosed
	}
	tasks, err := r.events.Load().wait(ctx)
	if err != nil {
		return err
	}
	return r.run(ctx, tasks)
}

// RunPending runs the tasks that are ready now without blocking
func (r *Runtime) RunPending(ctx context.Context) (int, error) {
	if r.closed.Load() {
		return 0, ErrRuntimeClosed
	}
	tasks := r.events.Load().drain()
	return len(tasks), r.run(ctx, tasks)
}

func (r *Runtime) run(ctx context.Context, tasks []Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return ErrRuntimeClosed
	}

	for i, task := range tasks {
		err := r.guard(ctx, "task", func() error { return task(r.vm) })
		if err != nil {
			r.events.Load().requeue(tasks[i+1:])
			r.Logger().Warn("Event loop task failed", zap.Error(err))
			return err
		}
	}
	return nil
}

// RunLoop ticks until nothing is pending or ctx ends
func (r *Runtime) RunLoop(ctx context.Context) error {
	for r.Pending() > 0 {
		if err := r.Tick(ctx); err != nil {
			return err
		}
	}
	return nil
}

// BlockOn runs fn on its own goroutine and waits for it, bounded by the
// runtime timeout. On timeout fn keeps running but its result is dropped.
func (r *Runtime) BlockOn(fn func(ctx context.Context) error) error {
	if r.closed.Load() {
		return ErrRuntimeClosed
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if r.config.Timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), r.config.Timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return &TimeoutError{Op: "block", After: r.config.Timeout}
	}
}

// Reset replaces the VM and loop. The runtime gets a new ID, so values
// wrapped before the reset no longer belong to it.
func (r *Runtime) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return ErrRuntimeClosed
	}
	r.events.Load().close()
	return r.init()
}

// Close stops the runtime. Running guest code is interrupted and later use
// of the runtime or its values fails with ErrRuntimeClosed.
func (r *Runtime) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	r.cancel()
	r.vmMu.Lock()
	r.vm.Interrupt(ErrRuntimeClosed)
	r.vmMu.Unlock()
	r.events.Load().close()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.consoleMu.Lock()
	r.console = nil
	r.consoleMu.Unlock()

	r.metrics.DecRuntimes()
	r.Logger().Debug("Runtime closed")
	return nil
}
