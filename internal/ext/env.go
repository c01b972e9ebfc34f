package ext

import (
	"os"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/guesthost/internal/sandbox"
)

// EnvPermissions is what the environment extension needs
type EnvPermissions interface {
	CheckEnv(name string) error
}

// Env exposes host.env.get. Unset variables read as undefined.
type Env struct {
	perms  EnvPermissions
	lookup func(string) (string, bool)
}

func NewEnv(perms EnvPermissions) *Env {
	return &Env{perms: perms, lookup: os.LookupEnv}
}

func (e *Env) Name() string { return "env" }

func (e *Env) Register(rt *sandbox.Runtime, vm *goja.Runtime) error {
	ns, err := namespace(vm, "env")
	if err != nil {
		return err
	}
	return ns.Set("get", func(call goja.FunctionCall) goja.Value {
		name := stringArg(vm, call, 0, "name")
		record(rt, vm, "host.env.get", e.perms.CheckEnv(name))
		if v, ok := e.lookup(name); ok {
			return vm.ToValue(v)
		}
		return goja.Undefined()
	})
}
