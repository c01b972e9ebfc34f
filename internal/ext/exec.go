package ext

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/dop251/goja"

	"github.com/GriffinCanCode/guesthost/internal/sandbox"
)

// MaxExecOutput bounds captured stdout and stderr, each
const MaxExecOutput = 1 << 20

// ExecPermissions is what the process extension needs
type ExecPermissions interface {
	CheckExec() error
}

// ExecOptions are the guest's options to host.exec.run
type ExecOptions struct {
	Cwd       string            `json:"cwd"`
	Env       map[string]string `json:"env"`
	PTY       bool              `json:"pty"`
	TimeoutMS int               `json:"timeout"`
}

// ExecResult is what host.exec.run resolves with. A non-zero exit is a
// result, not an error.
type ExecResult struct {
	Code    int    `json:"code"`
	Success bool   `json:"success"`
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
}

// Exec exposes host.exec.run, gated by the exec grant
type Exec struct {
	perms ExecPermissions
}

func NewExec(perms ExecPermissions) *Exec {
	return &Exec{perms: perms}
}

func (e *Exec) Name() string { return "exec" }

func (e *Exec) Register(rt *sandbox.Runtime, vm *goja.Runtime) error {
	ns, err := namespace(vm, "exec")
	if err != nil {
		return err
	}
	return ns.Set("run", func(call goja.FunctionCall) goja.Value {
		name := stringArg(vm, call, 0, "command")
		var args []string
		if v := call.Argument(1); !goja.IsUndefined(v) && !goja.IsNull(v) {
			if err := vm.ExportTo(v, &args); err != nil {
				panic(vm.NewTypeError("args must be an array of strings"))
			}
		}
		var opts ExecOptions
		options(vm, call.Argument(2), &opts)

		return async(rt, vm, "host.exec.run",
			func(ctx context.Context) (ExecResult, error) {
				if err := e.perms.CheckExec(); err != nil {
					return ExecResult{}, err
				}
				return Run(ctx, name, args, opts)
			},
			func(vm *goja.Runtime, res ExecResult) (goja.Value, error) {
				return toObject(vm, res), nil
			},
		)
	})
}

// Run executes name with args. With PTY set the child gets a terminal and
// its combined output is reported as stdout.
func Run(ctx context.Context, name string, args []string, opts ExecOptions) (ExecResult, error) {
	if opts.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = opts.Cwd
	if len(opts.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range opts.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	var stdout, stderr limitedBuffer
	stdout.limit, stderr.limit = MaxExecOutput, MaxExecOutput

	var err error
	if opts.PTY {
		err = runPTY(cmd, &stdout)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		err = cmd.Run()
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		if ctx.Err() != nil {
			return ExecResult{}, ctx.Err()
		}
	default:
		return ExecResult{}, err
	}

	code := cmd.ProcessState.ExitCode()
	return ExecResult{
		Code:    code,
		Success: code == 0,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}, nil
}

func runPTY(cmd *exec.Cmd, out io.Writer) error {
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return err
	}
	defer ptmx.Close()

	// the master reports EIO once the child side closes
	if _, err := io.Copy(out, ptmx); err != nil && !errors.Is(err, syscall.EIO) {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return err
	}
	return cmd.Wait()
}

// limitedBuffer keeps the first limit bytes and discards the rest
type limitedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}
