package ioloop

import "errors"

// ErrWouldBlock is returned by a RawSocket's Accept/Read/Write when the
// underlying non-blocking syscall would otherwise block. Pollers treat
// it as "stop draining this direction, re-arm and wait for readiness".
var ErrWouldBlock = errors.New("ioloop: operation would block")

// RawSocket is the host socket abstraction the loop and its pollers are
// built on: a thin, blocking-by-default wrapper over the platform's raw
// socket syscalls. Loop.RegisterSocket switches a RawSocket into
// non-blocking mode; code above that layer never touches
// blocking/non-blocking state directly. On Linux, sockets returned by
// Accept are already non-blocking.
type RawSocket interface {
	SetNonBlocking() error
	SetNoDelay() error
	Bind(host string, port int) error
	Listen(backlog int) error
	// Accept returns ErrWouldBlock if no connection is pending and the
	// socket is non-blocking.
	Accept() (RawSocket, error)
	Connect(host string, port int) error
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
	Shutdown() error
	Close() error
	Fd() uintptr
}

// OpenTCPSocket opens a new blocking IPv4 TCP socket using the best
// native mechanism for the current platform.
func OpenTCPSocket() (RawSocket, error) {
	return newTCPSocket()
}
