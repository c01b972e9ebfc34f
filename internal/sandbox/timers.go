package sandbox

import (
	"math"
	"time"

	"github.com/dop251/goja"
)

const queueMicrotaskSource = `(function (global) {
	global.queueMicrotask = function queueMicrotask(callback) {
		if (typeof callback !== "function") {
			throw new TypeError("queueMicrotask requires a function");
		}
		Promise.resolve().then(function () { callback(); });
	};
})(this);`

func (r *Runtime) installTimers(vm *goja.Runtime, l *loop) error {
	if err := vm.Set("setTimeout", r.makeSetTimer(vm, l, false)); err != nil {
		return err
	}
	if err := vm.Set("setInterval", r.makeSetTimer(vm, l, true)); err != nil {
		return err
	}
	cancel := func(call goja.FunctionCall) goja.Value {
		if id := call.Argument(0); !goja.IsUndefined(id) && !goja.IsNull(id) {
			l.clearTimer(id.ToInteger())
		}
		return goja.Undefined()
	}
	if err := vm.Set("clearTimeout", cancel); err != nil {
		return err
	}
	if err := vm.Set("clearInterval", cancel); err != nil {
		return err
	}
	_, err := vm.RunString(queueMicrotaskSource)
	return err
}

func (r *Runtime) makeSetTimer(vm *goja.Runtime, l *loop, repeat bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("timer callback must be a function"))
		}

		delay := call.Argument(1).ToFloat()
		if math.IsNaN(delay) || delay < 0 {
			delay = 0
		}
		var args []goja.Value
		if len(call.Arguments) > 2 {
			args = append(args, call.Arguments[2:]...)
		}

		interval := time.Duration(delay * float64(time.Millisecond))
		if repeat && interval < time.Millisecond {
			interval = time.Millisecond
		}
		tm := &timer{
			fn:       fn,
			args:     args,
			interval: interval,
			repeat:   repeat,
		}
		id := l.addTimer(tm)
		l.arm(tm, fireTimer(l))
		return vm.ToValue(id)
	}
}

// fireTimer builds the tasks that run timer callbacks on l
func fireTimer(l *loop) func(id int64) Task {
	var fire func(id int64) Task
	fire = func(id int64) Task {
		return func(vm *goja.Runtime) error {
			tm, ok := l.takeTimer(id)
			if !ok {
				return nil
			}
			_, err := tm.fn(goja.Undefined(), tm.args...)
			if tm.repeat && l.hasTimer(id) {
				l.arm(tm, fire)
			}
			return err
		}
	}
	return fire
}
