package ioloop

// EventSocket is the handle a Thread uses to drive a registered
// RawSocket without ever calling it directly: every call arms an
// operation on the owning loop and returns immediately, with the
// eventual AcceptEvent/ReadEvent/WriteEvent/ErrorEvent delivered back
// to the requesting thread's Handle method. This is the Go shape of
// the original's EventSocket2 handle.
type EventSocket struct {
	loop   *Loop
	source *socketSource
}

// Raw exposes the underlying socket for calls a poller implementation
// itself needs (SetNonBlocking, SetNoDelay, Bind, Listen, Connect,
// Shutdown) that are not part of the async Accept/Read/Write surface.
func (s EventSocket) Raw() RawSocket { return s.socket() }

func (s EventSocket) socket() RawSocket { return s.source.socket }

// Accept arms one pending accept; the requester receives an
// AcceptEvent carrying the new connection, or an ErrorEvent.
func (s EventSocket) Accept(requester ThreadRef) {
	op := &operation{kind: opAccept, requester: requester}
	s.loop.ops.tryPush(op)
	s.source.enqueueRead(op)
}

// Read arms one pending read. A ReadEvent with a zero-length Bytes
// slice signals the peer closed its write side.
func (s EventSocket) Read(requester ThreadRef) {
	op := &operation{kind: opRead, requester: requester}
	s.loop.ops.tryPush(op)
	s.source.enqueueRead(op)
}

// Write arms one pending write of buf. Partial writes are retried
// internally against successive writable signals until buf is fully
// flushed, at which point the requester receives a WriteEvent.
func (s EventSocket) Write(requester ThreadRef, buf []byte) {
	op := &operation{kind: opWrite, requester: requester, buffer: buf, remaining: buf}
	s.loop.ops.tryPush(op)
	s.source.enqueueWrite(op)
}

// Close releases the underlying socket and drops any operations still
// queued against it. Safe to call even if operations are in flight;
// they are simply abandoned, matching the drop semantics of a
// weak reference whose target went away.
func (s EventSocket) Close() error {
	s.source.readQueue.Init()
	s.source.writeQueue.Init()
	return s.socket().Close()
}
