package dispatch

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/snapbooth/kiosk/internal/domain/event"
	"go.uber.org/zap"
)

// ErrStopped is returned when work is submitted after Stop.
var ErrStopped = errors.New("dispatch: loop stopped")

// Loop is the single owner goroutine for all payment state. Hardware
// adapters publish events from their own goroutines; UI commands are
// submitted as closures. Everything drains through one buffered queue and
// executes strictly in arrival order, one item at a time, so handlers never
// run concurrently. Work submitted while a handler is executing is queued
// behind it, which is what makes re-entrant dispatch safe.
type Loop struct {
	mu        sync.RWMutex
	subs      map[string][]event.Handler
	queue     chan task
	startOnce sync.Once
	stopOnce  sync.Once
	stopped   atomic.Bool
	cancel    context.CancelFunc
	log       *zap.Logger
}

type task struct {
	event event.Event
	fn    func(ctx context.Context)
	done  chan struct{}
}

const queueDepth = 256

func NewLoop(logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		subs:  make(map[string][]event.Handler),
		queue: make(chan task, queueDepth),
		log:   logger.With(zap.String("component", "dispatch")),
	}
}

func (l *Loop) Subscribe(eventName string, h event.Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs[eventName] = append(l.subs[eventName], h)
}

func (l *Loop) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
		l.cancel = cancel
		go l.run(bg)
		l.log.Info("dispatch_loop_started")
	})
}

func (l *Loop) Stop(ctx context.Context) {
	l.stopOnce.Do(func() {
		l.stopped.Store(true)
		if l.cancel != nil {
			l.cancel()
		}
		l.log.Info("dispatch_loop_stopped")
	})
	_ = ctx
}

// Publish enqueues an event for its subscribers and returns without waiting
// for it to run. Safe to call from any goroutine, including the dispatch
// goroutine itself.
func (l *Loop) Publish(ctx context.Context, e event.Event) error {
	if e == nil {
		return nil
	}
	return l.submit(ctx, task{event: e})
}

// Call enqueues fn and blocks until it has run. This is how UI commands get
// call-return semantics while still executing on the owner goroutine. Must
// not be called from the dispatch goroutine.
func (l *Loop) Call(ctx context.Context, fn func(ctx context.Context)) error {
	done := make(chan struct{})
	if err := l.submit(ctx, task{fn: fn, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sync is a queue barrier: it returns once everything enqueued before it has
// executed. Used by tests to await asynchronous hardware events.
func (l *Loop) Sync(ctx context.Context) error {
	return l.Call(ctx, func(context.Context) {})
}

func (l *Loop) submit(ctx context.Context, t task) error {
	if l.stopped.Load() {
		return ErrStopped
	}
	select {
	case l.queue <- t:
		return nil
	case <-ctx.Done():
		l.log.Warn("dispatch_enqueue_aborted", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

func (l *Loop) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-l.queue:
			l.execute(ctx, t)
		}
	}
}

func (l *Loop) execute(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("dispatch_handler_panic",
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
		}
		if t.done != nil {
			close(t.done)
		}
	}()

	if t.fn != nil {
		t.fn(ctx)
		return
	}

	name := t.event.EventName()

	l.mu.RLock()
	handlers := append([]event.Handler(nil), l.subs[name]...)
	l.mu.RUnlock()

	if len(handlers) == 0 {
		l.log.Debug("event_dropped_no_subscriber", zap.String("event", name))
		return
	}

	for _, h := range handlers {
		if err := h(ctx, t.event); err != nil {
			l.log.Warn("event_handler_error",
				zap.String("event", name),
				zap.Error(err),
			)
		}
	}
}
