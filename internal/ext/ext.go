package ext

import (
	"context"
	"errors"
	"io/fs"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"

	"github.com/GriffinCanCode/guesthost/internal/hostapi"
	"github.com/GriffinCanCode/guesthost/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/guesthost/internal/permissions"
	"github.com/GriffinCanCode/guesthost/internal/sandbox"
)

// Error names guests can branch on
const (
	ErrNamePermissionDenied = "PermissionDenied"
	ErrNameNotFound         = "NotFound"
	ErrNameAlreadyExists    = "AlreadyExists"
	ErrNameTimedOut         = "TimedOut"
	ErrNameInterrupted      = "Interrupted"
	ErrNameUnavailable      = "Unavailable"
	ErrNameError            = "Error"
)

// All returns every extension bound to one permission container.
// The fetch client is shared by the fetch and WebSocket extensions.
func All(c *hostapi.Container, client *FetchClient) []sandbox.Extension {
	return []sandbox.Extension{
		NewFS(c),
		NewEnv(c),
		NewSys(c),
		NewPerf(c),
		NewFetch(c, client),
		NewWebSocket(c, client.config.Timeout),
		NewExec(c),
		NewCrypto(),
		NewHTML(),
		NewStats(),
	}
}

// namespace returns host.<name>, creating the host object on first use
func namespace(vm *goja.Runtime, name string) (*goja.Object, error) {
	var host *goja.Object
	if v := vm.GlobalObject().Get("host"); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
		host = v.ToObject(vm)
	} else {
		host = vm.NewObject()
		if err := vm.Set("host", host); err != nil {
			return nil, err
		}
	}
	ns := vm.NewObject()
	if err := host.Set(name, ns); err != nil {
		return nil, err
	}
	return ns, nil
}

// errorName classifies a host error for the guest
func errorName(err error) string {
	switch {
	case errors.Is(err, permissions.ErrPermissionDenied):
		return ErrNamePermissionDenied
	case errors.Is(err, fs.ErrNotExist):
		return ErrNameNotFound
	case errors.Is(err, fs.ErrExist):
		return ErrNameAlreadyExists
	case errors.Is(err, context.DeadlineExceeded):
		return ErrNameTimedOut
	case errors.Is(err, context.Canceled):
		return ErrNameInterrupted
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		return ErrNameUnavailable
	default:
		return ErrNameError
	}
}

// guestError converts a host error into an Error object. Denials carry
// their category so guests can tell what to request.
func guestError(vm *goja.Runtime, err error) *goja.Object {
	obj := vm.NewGoError(err)
	_ = obj.Set("name", errorName(err))
	if category, ok := permissions.CategoryOf(err); ok {
		_ = obj.Set("category", string(category))
	}
	return obj
}

// throw raises err in the guest; only call it from a function the guest invoked
func throw(vm *goja.Runtime, err error) {
	panic(guestError(vm, err))
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, permissions.ErrPermissionDenied):
		return "denied"
	default:
		return "error"
	}
}

// record counts a synchronous host call and throws on failure
func record(rt *sandbox.Runtime, vm *goja.Runtime, op string, err error) {
	rt.Metrics().RecordHostCall(op, status(err))
	if err != nil {
		throw(vm, err)
	}
}

// async runs work on its own goroutine and returns a promise that settles
// on the event loop. The runtime counts the operation as pending until then.
func async[T any](rt *sandbox.Runtime, vm *goja.Runtime, op string,
	work func(ctx context.Context) (T, error),
	convert func(vm *goja.Runtime, v T) (goja.Value, error),
) goja.Value {
	promise, resolve, reject := vm.NewPromise()
	settle := rt.Hold()
	ctx := rt.Context()

	go func() {
		v, err := work(ctx)
		rt.Metrics().RecordHostCall(op, status(err))
		settle(func(vm *goja.Runtime) error {
			if err != nil {
				return reject(guestError(vm, err))
			}
			out, err := convert(vm, v)
			if err != nil {
				return reject(guestError(vm, err))
			}
			return resolve(out)
		})
	}()
	return vm.ToValue(promise)
}

// resolved returns a promise already fulfilled with v
func resolved(vm *goja.Runtime, v goja.Value) (goja.Value, error) {
	promise, resolve, _ := vm.NewPromise()
	if err := resolve(v); err != nil {
		return nil, err
	}
	return vm.ToValue(promise), nil
}

func stringArg(vm *goja.Runtime, call goja.FunctionCall, i int, name string) string {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		panic(vm.NewTypeError("%s is required", name))
	}
	return v.String()
}

// options decodes an optional options object into dst using its json tags
func options(vm *goja.Runtime, v goja.Value, dst interface{}) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return
	}
	data, err := sonic.Marshal(v.Export())
	if err == nil {
		err = sonic.Unmarshal(data, dst)
	}
	if err != nil {
		panic(vm.NewTypeError("invalid options: %v", err))
	}
}

// toObject converts a tagged struct into a plain guest object
func toObject(vm *goja.Runtime, v interface{}) goja.Value {
	var m map[string]interface{}
	data, err := sonic.Marshal(v)
	if err == nil {
		err = sonic.Unmarshal(data, &m)
	}
	if err != nil {
		panic(vm.NewGoError(err))
	}
	return vm.ToValue(m)
}
