package ioloop

import "github.com/brannigan/iocore/internal/ref"

// Thread is a cooperative actor bound to one Loop. Handle is invoked on
// the loop's own goroutine; it must never block — suspension is
// expressed by returning and arming another operation (Read, Write,
// Accept, Send) that will re-enter Handle on completion.
//
// Implementations must embed Base (by value) and use pointer
// receivers: Thread identity in the loop's thread set is the pointer
// itself.
type Thread interface {
	Handle(event Event) error
}

type selfSetter interface {
	setSelf(ThreadRef)
}

// ThreadRef is a weak, loop-qualified handle to a Thread. Operations
// and cross-actor sends carry a ThreadRef rather than a bare weak
// reference so a completion observed on one loop can always be routed
// to the correct destination loop's queue, whether or not it is the
// loop that produced the completion.
type ThreadRef struct {
	weak ref.Weak[Thread]
	loop *Loop
}

// Upgrade resolves the referenced Thread if it is still alive.
func (r ThreadRef) Upgrade() (Thread, bool) {
	if r.loop == nil {
		return nil, false
	}
	return r.weak.Upgrade()
}

// Loop returns the loop that owns the referenced thread.
func (r ThreadRef) Loop() *Loop { return r.loop }

// Valid reports whether this ThreadRef was ever bound.
func (r ThreadRef) Valid() bool { return r.loop != nil }

// Base supplies the plumbing every Thread needs: a non-owning pointer
// back to its Loop, and a weak handle to itself so it can hand out
// weak references to operations it initiates (the Go analogue of the
// original's SharedFromThis<EventThread2>).
type Base struct {
	loop *Loop
	self ThreadRef
}

// NewBase binds a Base to its owning loop. StartThread binds the loop
// as well, so this is only needed where Loop() is used before the
// thread is registered.
func NewBase(loop *Loop) Base {
	return Base{loop: loop}
}

func (b *Base) setSelf(r ThreadRef) {
	b.self = r
	b.loop = r.loop
}

// Loop returns the owning event loop.
func (b *Base) Loop() *Loop { return b.loop }

// Self returns a weak, loop-qualified reference to this thread,
// suitable for handing to an EventSocket call or Send.
func (b *Base) Self() ThreadRef { return b.self }

// Stop removes this thread from its loop. Any operation already in
// flight that targets this thread will silently find it gone and skip
// delivery instead of calling Handle.
func (b *Base) Stop() { b.loop.stopThread(b.self) }

// Send delivers event to target by posting it onto target's own loop
// queue, preserving the invariant that Handle only ever runs on the
// goroutine of the loop that owns the thread. Delivery is FIFO per
// (sender, receiver) pair.
func (b *Base) Send(event Event, target ThreadRef) error {
	return target.loop.sendEvent(event, target.weak)
}
