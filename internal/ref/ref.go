// Package ref implements the strong/weak ownership pair the event loop
// uses to hand out references to threads and sources without keeping a
// dropped object alive across a pending completion.
//
// Go's garbage collector already makes classic use-after-free
// impossible, so this is not a manual allocator like the C++ original
// (core/Shared.h) — it is purely a liveness flag. A Weak[T] upgrade
// fails once the owning Strong[T] has been explicitly closed, even
// though the underlying value is still reachable memory.
package ref

import "sync/atomic"

// Strong owns a value and can be closed exactly once. Closing a Strong
// causes every Weak derived from it to fail future Upgrade calls.
type Strong[T any] struct {
	value  T
	closed *atomic.Bool
}

// New wraps value in a Strong reference.
func New[T any](value T) Strong[T] {
	return Strong[T]{value: value, closed: new(atomic.Bool)}
}

// Get returns the owned value.
func (s Strong[T]) Get() T { return s.value }

// Close marks the reference dead. Idempotent.
func (s Strong[T]) Close() { s.closed.Store(true) }

// Closed reports whether Close has been called.
func (s Strong[T]) Closed() bool { return s.closed.Load() }

// Weak derives a weak reference that can observe the Strong's closure
// without extending its lifetime semantics.
func (s Strong[T]) Weak() Weak[T] {
	return Weak[T]{value: s.value, closed: s.closed}
}

// Weak is a non-owning handle. Upgrade fails (ok == false) once the
// originating Strong has been closed.
type Weak[T any] struct {
	value  T
	closed *atomic.Bool
}

// Upgrade returns the referenced value and true if the owner is still
// alive, or the zero value and false if it has been closed.
func (w Weak[T]) Upgrade() (T, bool) {
	if w.closed == nil || w.closed.Load() {
		var zero T
		return zero, false
	}
	return w.value, true
}

// Valid reports whether this Weak was ever bound to a Strong.
func (w Weak[T]) Valid() bool { return w.closed != nil }
