// Package jsvalue gives host code typed, runtime-pinned handles to guest
// values.
//
// Every handle records the ID of the runtime that produced it and checks it
// on each access. Using a handle with another runtime fails with
// ErrRuntimeMismatch; using it after the runtime was closed fails with
// sandbox.ErrRuntimeClosed. A pooled runtime gets a new ID when it is reset,
// so handles never survive a trip through the pool.
//
// Promise[T] bridges guest promises to host code:
//
//	p, err := jsvalue.NewPromise[int](rt, v)
//	n, err := p.Await(ctx, rt)  // drives the event loop until settled
//	n, err = p.Value(rt)        // same, for callers that cannot suspend
//	res, err := p.Poll(rt)      // inspects state without driving the loop
//
// Await and Value are bounded by the runtime timeout. A promise that never
// settles yields a *sandbox.TimeoutError; the guest keeps running and its
// eventual result is dropped.
//
// Property keys that are not valid UTF-8 (lone surrogates) cannot be named
// from Go and are left out of Keys, ToMap and Len.
package jsvalue
