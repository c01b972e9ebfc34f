/*
Package sandbox runs guest JavaScript in goja runtimes.

# Overview

A Runtime owns one goja VM and the event loop that feeds it. Guest code
never runs concurrently with itself: Eval, With, Guarded and Tick all take
the runtime lock. Host goroutines communicate with the guest only by
posting Tasks, either directly with Enqueue or by settling a Hold.

# Event loop

The loop is a macrotask queue. setTimeout and setInterval arm Go timers
that post their callbacks to it; host operations such as fetch register a
Hold and post their continuation when done. goja drains promise jobs after
every task, so microtasks (queueMicrotask, promise reactions) run before
the next macrotask.

Tick runs whatever is ready, or blocks until something is. Callers that
wait on a guest promise tick until it settles:

	for !settled() {
		if err := rt.Tick(ctx); err != nil {
			return err
		}
	}

# Limits

Every guest entry point runs under a watchdog that interrupts the VM when
Config.Timeout elapses or the caller's context ends. Interrupts surface as
*TimeoutError; guest throws surface as *GuestException.

# Identity

Each runtime carries a prefixed ULID. Reset (used by Pool between
acquisitions) replaces the VM and assigns a new ID, and Close marks the
runtime dead, so wrappers created from an old VM can detect misuse.
*/
package sandbox
