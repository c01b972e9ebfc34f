package jsvalue

import (
	"context"
	"errors"
	"time"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/guesthost/internal/sandbox"
	"github.com/GriffinCanCode/guesthost/internal/shared/id"
)

// State is a promise's settlement state
type State int

const (
	Pending State = iota
	Fulfilled
	Rejected
)

func (s State) String() string {
	switch s {
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return "pending"
	}
}

// PollResult is the outcome of a non-blocking inspection. Value is set
// when State is Fulfilled; Err when Rejected or when decoding failed.
// Errors about the handle itself are returned by Poll, not stored here.
type PollResult[T any] struct {
	State State
	Value T
	Err   error
}

// Promise is a guest promise whose result decodes into T
type Promise[T any] struct {
	ref Value
	p   *goja.Promise
}

// NewPromise wraps v, which must be a promise
func NewPromise[T any](rt *sandbox.Runtime, v Value) (*Promise[T], error) {
	var p *Promise[T]
	err := v.with(rt, func(*goja.Runtime) error {
		if obj, ok := v.v.(*goja.Object); ok {
			if gp, ok := obj.Export().(*goja.Promise); ok {
				p = &Promise[T]{ref: v, p: gp}
				return nil
			}
		}
		return &DecodeError{Expected: "promise", Got: typeOf(v.v)}
	})
	return p, err
}

func (p *Promise[T]) value() Value { return p.ref }

// Owner returns the ID of the runtime the promise belongs to
func (p *Promise[T]) Owner() id.RuntimeID { return p.ref.owner }

// inspect reads the state and, once settled, the decoded result
func (p *Promise[T]) inspect(rt *sandbox.Runtime) (PollResult[T], error) {
	var res PollResult[T]
	err := p.ref.with(rt, func(*goja.Runtime) error {
		switch p.p.State() {
		case goja.PromiseStateFulfilled:
			res.State = Fulfilled
			res.Value, res.Err = decode[T](p.p.Result())
		case goja.PromiseStateRejected:
			res.State = Rejected
			res.Err = sandbox.NewGuestException(p.p.Result())
		default:
			res.State = Pending
		}
		return nil
	})
	return res, err
}

// Poll reports the current state without driving the event loop. The
// error is set when the handle cannot be used with rt; the result is then
// the zero value and says nothing about the promise.
func (p *Promise[T]) Poll(rt *sandbox.Runtime) (PollResult[T], error) {
	return p.inspect(rt)
}

// IsPending reports whether the promise has not settled yet
func (p *Promise[T]) IsPending(rt *sandbox.Runtime) (bool, error) {
	res, err := p.inspect(rt)
	if err != nil {
		return false, err
	}
	return res.State == Pending, nil
}

// Await drives the event loop until the promise settles, ctx ends or the
// runtime timeout elapses
func (p *Promise[T]) Await(ctx context.Context, rt *sandbox.Runtime) (T, error) {
	var zero T
	start := time.Now()
	timeout := rt.Config().Timeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for {
		res, err := p.inspect(rt)
		if err != nil {
			return zero, err
		}
		switch res.State {
		case Fulfilled:
			rt.Metrics().RecordPromise("resolved", time.Since(start))
			return res.Value, res.Err
		case Rejected:
			rt.Metrics().RecordPromise("rejected", time.Since(start))
			return zero, res.Err
		}

		if err := rt.Tick(ctx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sandbox.ErrTimeout) {
				rt.Metrics().RecordPromise("timeout", time.Since(start))
				return zero, &sandbox.TimeoutError{Op: "await", After: timeout}
			}
			return zero, err
		}
	}
}

// Value blocks until the promise settles. It runs Await on its own
// goroutine, so callers that cannot suspend may use it.
func (p *Promise[T]) Value(rt *sandbox.Runtime) (T, error) {
	var (
		zero T
		out  T
	)
	err := rt.BlockOn(func(ctx context.Context) error {
		v, err := p.Await(ctx, rt)
		if err == nil {
			out = v
		}
		return err
	})
	if err != nil {
		return zero, err
	}
	return out, nil
}
