package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

var (
	ErrTimeout       = errors.New("timed out")
	ErrRuntimeClosed = errors.New("runtime is closed")
	ErrPoolClosed    = errors.New("runtime pool is closed")
)

// errExecutionTimeout is the interrupt value used by the watchdog
var errExecutionTimeout = errors.New("execution timeout exceeded")

// TimeoutError reports that an operation exceeded the runtime budget
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("%s timed out after %s", e.Op, e.After)
	}
	return fmt.Sprintf("%s timed out", e.Op)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// GuestException is a value thrown or rejected by guest code
type GuestException struct {
	Name    string
	Message string
	Stack   string
}

func (e *GuestException) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("uncaught %s: %s", e.Name, e.Message)
	}
	return "uncaught " + e.Message
}

// NewGuestException converts a thrown or rejected guest value.
// Error objects keep their name, message and stack; anything else is
// stringified.
func NewGuestException(v goja.Value) *GuestException {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return &GuestException{Message: fmt.Sprint(v)}
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return &GuestException{Message: v.String()}
	}

	exc := &GuestException{}
	if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
		exc.Message = m.String()
	} else {
		exc.Message = obj.String()
	}
	if n := obj.Get("name"); n != nil && !goja.IsUndefined(n) {
		exc.Name = n.String()
	}
	if s := obj.Get("stack"); s != nil && !goja.IsUndefined(s) {
		exc.Stack = s.String()
	}
	return exc
}

// convertError maps engine errors onto the package's error types
func (r *Runtime) convertError(op string, err error) error {
	if err == nil {
		return nil
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			switch {
			case errors.Is(cause, errExecutionTimeout):
				return &TimeoutError{Op: op, After: r.config.Timeout}
			case errors.Is(cause, context.DeadlineExceeded):
				return &TimeoutError{Op: op}
			case errors.Is(cause, ErrRuntimeClosed):
				return ErrRuntimeClosed
			default:
				return cause
			}
		}
		return fmt.Errorf("%s interrupted: %v", op, interrupted.Value())
	}

	var exception *goja.Exception
	if errors.As(err, &exception) {
		exc := NewGuestException(exception.Value())
		if exc.Stack == "" {
			exc.Stack = exception.String()
		}
		return exc
	}

	var stackOverflow *goja.StackOverflowError
	if errors.As(err, &stackOverflow) {
		return &GuestException{Name: "RangeError", Message: stackOverflow.Error()}
	}

	return err
}
