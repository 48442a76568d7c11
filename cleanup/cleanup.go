// Package cleanup provides a single process-wide signal dispatcher holding
// a stack of active cleanup callbacks. Registering per-run handlers against
// this dispatcher, instead of adding and removing OS signal handlers per
// run, keeps repeated in-process invocations from leaking handlers.
package cleanup

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/agentstack/agent-acceptor/exitcodes"
)

// Handle is one registered cleanup callback. Its function runs exactly
// once, whether triggered by normal completion, an error path, or a
// termination signal racing a finally-style defer.
type Handle struct {
	name string
	fn   func()
	once sync.Once
	d    *Dispatcher
}

// Run executes the callback if it has not run yet and removes it from the
// dispatcher's stack. Idempotent.
func (h *Handle) Run() {
	h.once.Do(func() {
		h.d.remove(h)
		h.fn()
	})
}

// Dispatcher owns the signal subscription and the LIFO stack of cleanup
// callbacks. One dispatcher serves the whole process.
type Dispatcher struct {
	mu    sync.Mutex
	stack []*Handle

	installOnce sync.Once
	signalOnce  sync.Once
	sigCh       chan os.Signal

	cancelMu sync.Mutex
	cancels  []*cancelEntry

	log    *zap.SugaredLogger
	exitFn func(code int)
}

// NewDispatcher creates a dispatcher. exitFn defaults to os.Exit; tests
// substitute their own.
func NewDispatcher(log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		log:    log,
		exitFn: os.Exit,
	}
}

var (
	defaultMu         sync.Mutex
	defaultDispatcher *Dispatcher
)

// Default returns the process-wide dispatcher, creating it on first use.
func Default(log *zap.SugaredLogger) *Dispatcher {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultDispatcher == nil {
		defaultDispatcher = NewDispatcher(log)
	}
	return defaultDispatcher
}

// Install subscribes the dispatcher to SIGINT and SIGTERM. Safe to call
// repeatedly; the subscription happens once.
func (d *Dispatcher) Install() {
	d.installOnce.Do(func() {
		d.sigCh = make(chan os.Signal, 1)
		signal.Notify(d.sigCh, syscall.SIGINT, syscall.SIGTERM)
		go d.wait()
	})
}

// Register pushes a cleanup callback onto the stack and returns its handle.
// Callers run the handle on normal completion; the dispatcher runs whatever
// is still on the stack when a termination signal arrives.
func (d *Dispatcher) Register(name string, fn func()) *Handle {
	h := &Handle{name: name, fn: fn, d: d}
	d.mu.Lock()
	d.stack = append(d.stack, h)
	d.mu.Unlock()
	return h
}

// cancelEntry tracks one derived context so its cancel func can be dropped
// from the dispatcher once it has run.
type cancelEntry struct {
	cancel context.CancelFunc
}

// WithCancel derives a context that is cancelled when a termination signal
// is observed, letting in-flight work stop between tests while cleanup runs.
// The returned cancel also removes the entry from the dispatcher, so
// repeated in-process runs do not accumulate dead cancel funcs.
func (d *Dispatcher) WithCancel(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	e := &cancelEntry{cancel: cancel}
	d.cancelMu.Lock()
	d.cancels = append(d.cancels, e)
	d.cancelMu.Unlock()
	return ctx, func() {
		d.removeCancel(e)
		cancel()
	}
}

func (d *Dispatcher) removeCancel(e *cancelEntry) {
	d.cancelMu.Lock()
	defer d.cancelMu.Unlock()
	for i, cur := range d.cancels {
		if cur == e {
			d.cancels = append(d.cancels[:i], d.cancels[i+1:]...)
			return
		}
	}
}

func (d *Dispatcher) wait() {
	sig := <-d.sigCh
	d.log.Warnw("termination signal received, running cleanup", "signal", sig)
	d.Trigger()
	d.exitFn(exitcodes.ForSignal(sig))
}

// Trigger cancels derived contexts and drains the cleanup stack, newest
// first. Used by the signal path; exposed for tests.
func (d *Dispatcher) Trigger() {
	d.signalOnce.Do(func() {
		d.cancelMu.Lock()
		for _, e := range d.cancels {
			e.cancel()
		}
		d.cancels = nil
		d.cancelMu.Unlock()

		for {
			h := d.pop()
			if h == nil {
				return
			}
			d.log.Debugw("running cleanup callback", "name", h.name)
			h.Run()
		}
	})
}

func (d *Dispatcher) pop() *Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.stack) == 0 {
		return nil
	}
	h := d.stack[len(d.stack)-1]
	d.stack = d.stack[:len(d.stack)-1]
	return h
}

func (d *Dispatcher) remove(h *Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, cur := range d.stack {
		if cur == h {
			d.stack = append(d.stack[:i], d.stack[i+1:]...)
			return
		}
	}
}

// Depth returns the number of callbacks currently on the stack.
func (d *Dispatcher) Depth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.stack)
}
