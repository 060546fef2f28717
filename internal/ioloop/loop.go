package ioloop

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/brannigan/iocore/internal/ref"
)

// Loop is the single-goroutine dispatch core (the original's
// EventLoop2): one poller, one op_set, one thread_set. Every Handle
// call runs on the goroutine running Run. Stop, thread stops, and
// event sends (including StartThread's StartEvent) cross in through
// the poller's Post primitive; StartThread's thread-set insert and
// RegisterSocket's source registration happen directly on the
// caller's goroutine, under the sets' own mutexes.
type Loop struct {
	ID     string
	log    *slog.Logger
	poller Poller

	ops     *opSet
	threads *threadSet

	mu      sync.Mutex
	sources []*socketSource

	runErr error
}

// NewLoop constructs a loop with the platform poller for the running
// OS. log must not be nil; callers that don't care about loop-level
// diagnostics should pass slog.New(slog.DiscardHandler) equivalent.
func NewLoop(log *slog.Logger) (*Loop, error) {
	poller, err := newPoller()
	if err != nil {
		return nil, fmt.Errorf("ioloop: new poller: %w", err)
	}
	id := uuid.NewString()
	return &Loop{
		ID:      id,
		log:     log.With("loop_id", id),
		poller:  poller,
		ops:     newOpSet(),
		threads: newThreadSet(),
	}, nil
}

func (l *Loop) logger() *slog.Logger { return l.log }

// Run blocks, dispatching completions until Stop is called or a
// Thread's Handle returns an error. It must be called from exactly one
// goroutine for the lifetime of the loop.
func (l *Loop) Run() error {
	defer l.poller.Close()
	for {
		completions, err := l.poller.Wait()
		if err != nil {
			return fmt.Errorf("ioloop: poller wait: %w", err)
		}
		stop := false
		for _, c := range completions {
			switch {
			case c.Op != nil:
				if l.dispatchOp(c.Op) {
					stop = true
				}
			case c.Source != nil:
				if c.Readable {
					c.Source.handlePollIn()
				}
				if c.Writable {
					c.Source.handlePollOut()
				}
			}
		}
		if stop {
			return l.runErr
		}
	}
}

func (l *Loop) dispatchOp(op *operation) (stop bool) {
	found := l.ops.pop(op)
	if found == nil {
		return false
	}
	switch found.kind {
	case opClose:
		l.ops.clear()
		l.threads.clear()
		l.mu.Lock()
		for _, src := range l.sources {
			src.readQueue.Init()
			src.writeQueue.Init()
		}
		l.mu.Unlock()
		return true
	case opSendEvent:
		thread, ok := found.target.Upgrade()
		if !ok {
			return false
		}
		if err := thread.Handle(found.event); err != nil {
			l.fail(err)
		}
	case opStopThread:
		if thread, ok := found.target.Upgrade(); ok {
			l.threads.pop(thread)
		}
	}
	return false
}

// fail is invoked only from the loop's own goroutine, when a Thread's
// Handle call returns a non-nil error — the fatal tier of the error
// taxonomy. It records the error and arranges for Run to return it.
func (l *Loop) fail(err error) {
	l.log.Error("thread handler returned error, stopping loop", "error", err)
	l.runErr = err
	op := &operation{kind: opClose}
	if l.ops.tryPush(op) {
		if postErr := l.poller.Post(op); postErr != nil {
			l.log.Error("failed to post internal close", "error", postErr)
		}
	}
}

// Stop requests the loop terminate. It is safe to call from any
// goroutine, including from within a Thread's own Handle method. Every
// pending operation and every registered thread is dropped at once;
// none of their completions will be delivered.
func (l *Loop) Stop() {
	op := &operation{kind: opClose}
	if !l.ops.tryPush(op) {
		return
	}
	l.ops.close()
	if err := l.poller.Post(op); err != nil {
		l.log.Error("failed to post close", "error", err)
	}
}

// StartThread registers t with the loop and delivers its StartEvent.
// Safe to call from any goroutine; registration itself is synchronous
// (so the returned ThreadRef is valid immediately) but the StartEvent
// delivery is routed through the ordinary send path so it is observed
// on the loop's own goroutine like any other event.
func (l *Loop) StartThread(t Thread) ThreadRef {
	strong := ref.New[Thread](t)
	l.threads.push(strong)
	tref := ThreadRef{weak: strong.Weak(), loop: l}
	if ss, ok := t.(selfSetter); ok {
		ss.setSelf(tref)
	}
	if err := l.sendEvent(StartEvent{}, tref.weak); err != nil {
		l.log.Error("failed to post start event", "error", err)
	}
	return tref
}

// sendEvent is the loop-local half of Base.Send / StartThread: it
// always posts, regardless of whether the caller happens to be running
// on this loop's own goroutine, matching the original's
// EventThread2::send (no same-loop fast path; that optimization exists
// only in SocketSource's completion delivery).
func (l *Loop) sendEvent(event Event, target ref.Weak[Thread]) error {
	op := &operation{kind: opSendEvent, event: event, target: target}
	if !l.ops.tryPush(op) {
		return nil
	}
	return l.poller.Post(op)
}

func (l *Loop) stopThread(target ThreadRef) {
	op := &operation{kind: opStopThread, target: target.weak}
	if !l.ops.tryPush(op) {
		return
	}
	if err := l.poller.Post(op); err != nil {
		l.log.Error("failed to post stop-thread", "error", err)
	}
}

// RegisterSocket adopts socket into the loop, putting it under the
// poller's readiness watch and returning the handle Threads use to
// drive it. The socket is switched to non-blocking mode and has
// TCP_NODELAY set as part of registration; callers must not use it
// directly afterward.
func (l *Loop) RegisterSocket(socket RawSocket) (EventSocket, error) {
	if err := socket.SetNonBlocking(); err != nil {
		return EventSocket{}, err
	}
	if err := socket.SetNoDelay(); err != nil {
		return EventSocket{}, err
	}
	src := newSocketSource(l, socket)
	if err := l.poller.RegisterSource(src); err != nil {
		return EventSocket{}, fmt.Errorf("ioloop: register source: %w", err)
	}
	l.mu.Lock()
	l.sources = append(l.sources, src)
	l.mu.Unlock()
	return EventSocket{loop: l, source: src}, nil
}
