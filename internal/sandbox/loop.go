package sandbox

import (
	"context"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// loop is the macrotask queue of one runtime. Tasks may be posted from
// any goroutine; they only run inside Runtime.Tick, under the runtime lock.
// goja drains the microtask queue after each task returns.
type loop struct {
	mu     sync.Mutex
	queue  []Task
	holds  int
	timers map[int64]*timer
	nextID int64
	closed bool

	wake chan struct{}
	done chan struct{}
}

type timer struct {
	id       int64
	fn       goja.Callable
	args     []goja.Value
	interval time.Duration
	repeat   bool
	t        *time.Timer
}

func newLoop() *loop {
	return &loop{
		timers: make(map[int64]*timer),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (l *loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// post appends a task; it reports false once the loop is closed
func (l *loop) post(t Task) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, t)
	l.mu.Unlock()
	l.signal()
	return true
}

// requeue puts unrun tasks back at the head of the queue
func (l *loop) requeue(tasks []Task) {
	if len(tasks) == 0 {
		return
	}
	l.mu.Lock()
	l.queue = append(append([]Task(nil), tasks...), l.queue...)
	l.mu.Unlock()
	l.signal()
}

func (l *loop) drain() []Task {
	l.mu.Lock()
	defer l.mu.Unlock()
	tasks := l.queue
	l.queue = nil
	return tasks
}

// wait returns the ready tasks, blocking until there are some
func (l *loop) wait(ctx context.Context) ([]Task, error) {
	for {
		if tasks := l.drain(); len(tasks) > 0 {
			return tasks, nil
		}
		select {
		case <-l.wake:
		case <-l.done:
			return nil, ErrRuntimeClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// hold counts an in-flight host operation; the returned function settles
// it by posting its continuation. Extra calls are ignored.
func (l *loop) hold() func(Task) {
	l.mu.Lock()
	l.holds++
	l.mu.Unlock()

	var once sync.Once
	return func(t Task) {
		once.Do(func() {
			l.mu.Lock()
			l.holds--
			if !l.closed {
				l.queue = append(l.queue, t)
			}
			l.mu.Unlock()
			l.signal()
		})
	}
}

// pending counts queued tasks, active timers and held operations
func (l *loop) pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue) + len(l.timers) + l.holds
}

func (l *loop) addTimer(tm *timer) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	tm.id = l.nextID
	l.timers[tm.id] = tm
	return tm.id
}

// arm schedules tm to post fire(id) after its interval
func (l *loop) arm(tm *timer, fire func(id int64) Task) {
	id := tm.id
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	tm.t = time.AfterFunc(tm.interval, func() {
		l.post(fire(id))
	})
}

// takeTimer looks up a due timer; one-shot timers are removed
func (l *loop) takeTimer(id int64) (*timer, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tm, ok := l.timers[id]
	if ok && !tm.repeat {
		delete(l.timers, id)
	}
	return tm, ok
}

func (l *loop) hasTimer(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.timers[id]
	return ok
}

func (l *loop) clearTimer(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if tm, ok := l.timers[id]; ok {
		if tm.t != nil {
			tm.t.Stop()
		}
		delete(l.timers, id)
	}
}

func (l *loop) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	for id, tm := range l.timers {
		if tm.t != nil {
			tm.t.Stop()
		}
		delete(l.timers, id)
	}
	l.queue = nil
	close(l.done)
}
