package ioloop

import "container/list"

// socketSource is the per-socket readiness multiplexer (the original's
// SocketSource): one instance per registered RawSocket, holding a
// separate FIFO of pending operations for each direction. A readiness
// (or, on Windows, synthesized completion) signal drains its queue
// until the socket would block or the queue empties, exactly matching
// §4.1's "Readiness variant" drain rule.
type socketSource struct {
	loop   *Loop
	socket RawSocket

	readQueue  list.List // of *operation (opAccept, opRead)
	writeQueue list.List // of *operation (opWrite)
}

func newSocketSource(loop *Loop, socket RawSocket) *socketSource {
	return &socketSource{loop: loop, socket: socket}
}

// enqueueRead arms an Accept or Read operation and, if the read
// direction was idle, attempts it immediately so a socket that is
// already readable does not wait for the next poll tick.
func (src *socketSource) enqueueRead(op *operation) {
	wasEmpty := src.readQueue.Len() == 0
	src.readQueue.PushBack(op)
	if wasEmpty {
		src.drainRead()
	}
}

func (src *socketSource) enqueueWrite(op *operation) {
	wasEmpty := src.writeQueue.Len() == 0
	src.writeQueue.PushBack(op)
	if wasEmpty {
		src.drainWrite()
	}
}

// handlePollIn is invoked by the loop's dispatch step when the poller
// reports the socket is readable.
func (src *socketSource) handlePollIn() { src.drainRead() }

// handlePollOut is invoked by the loop's dispatch step when the poller
// reports the socket is writable.
func (src *socketSource) handlePollOut() { src.drainWrite() }

func (src *socketSource) drainRead() {
	for {
		front := src.readQueue.Front()
		if front == nil {
			return
		}
		op := front.Value.(*operation)
		switch op.kind {
		case opAccept:
			conn, err := src.socket.Accept()
			if err == ErrWouldBlock {
				return
			}
			src.readQueue.Remove(front)
			if err != nil {
				src.deliverError(op, err)
				continue
			}
			src.deliver(op, AcceptEvent{Socket: conn})
		case opRead:
			buf := make([]byte, 64*1024)
			n, err := src.socket.Read(buf)
			if err == ErrWouldBlock {
				return
			}
			src.readQueue.Remove(front)
			if err != nil {
				src.deliverError(op, err)
				continue
			}
			src.deliver(op, ReadEvent{Bytes: buf[:n]})
		default:
			src.readQueue.Remove(front)
		}
	}
}

func (src *socketSource) drainWrite() {
	for {
		front := src.writeQueue.Front()
		if front == nil {
			return
		}
		op := front.Value.(*operation)
		if op.kind != opWrite {
			src.writeQueue.Remove(front)
			continue
		}
		n, err := src.socket.Write(op.remaining)
		if err == ErrWouldBlock {
			return
		}
		if err != nil {
			src.writeQueue.Remove(front)
			src.deliverError(op, err)
			continue
		}
		op.remaining = op.remaining[n:]
		if len(op.remaining) > 0 {
			// Partial write: stay at the front of the queue and wait
			// for the next writable signal.
			return
		}
		src.writeQueue.Remove(front)
		src.deliver(op, WriteEvent{BytesWritten: len(op.buffer)})
	}
}

// deliver routes a completed operation's event to its requester. If
// the requester's loop is the loop that owns this source, the call is
// made synchronously, passing the event by reference on the stack —
// the original's same-loop fast path (SocketSource compares
// m_eventLoop against the requesting thread's loop). A cross-loop
// requester is delivered to via its own loop's post queue instead.
func (src *socketSource) deliver(op *operation, event Event) {
	src.loop.ops.pop(op)
	thread, ok := op.requester.Upgrade()
	if !ok {
		return
	}
	if op.requester.Loop() == src.loop {
		if err := thread.Handle(event); err != nil {
			src.loop.fail(err)
		}
		return
	}
	_ = op.requester.Loop().sendEvent(event, op.requester.weak)
}

func (src *socketSource) deliverError(op *operation, err error) {
	src.loop.ops.pop(op)
	thread, ok := op.requester.Upgrade()
	if !ok {
		return
	}
	src.loop.logger().Warn("socket operation failed", "error", err)
	if op.requester.Loop() == src.loop {
		_ = thread.Handle(ErrorEvent{Err: err})
		return
	}
	_ = op.requester.Loop().sendEvent(ErrorEvent{Err: err}, op.requester.weak)
}
