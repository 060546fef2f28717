//go:build linux

package ioloop

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// tcpSocket is the Linux RawSocket, a direct wrapper over a raw file
// descriptor. It deliberately bypasses net.Conn so the epoll poller in
// poller_linux.go owns the fd's readiness and non-blocking I/O itself,
// mirroring the original core's SocketSource driving read/write/accept
// syscalls after epoll_wait reports readiness.
type tcpSocket struct {
	fd int
}

func newTCPSocket() (RawSocket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("ioloop: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("ioloop: setsockopt SO_REUSEADDR: %w", err)
	}
	return &tcpSocket{fd: fd}, nil
}

func newTCPSocketFromFd(fd int) *tcpSocket {
	return &tcpSocket{fd: fd}
}

func resolveIPv4(host string, port int) (*unix.SockaddrInet4, error) {
	if host == "" {
		host = "0.0.0.0"
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("ioloop: resolve %q: %w", host, err)
	}
	var v4 net.IP
	for _, ip := range ips {
		if v4 = ip.To4(); v4 != nil {
			break
		}
	}
	if v4 == nil {
		return nil, fmt.Errorf("ioloop: no IPv4 address for %q", host)
	}
	addr := &unix.SockaddrInet4{Port: port}
	copy(addr.Addr[:], v4)
	return addr, nil
}

func (s *tcpSocket) SetNonBlocking() error {
	if err := unix.SetNonblock(s.fd, true); err != nil {
		return fmt.Errorf("ioloop: set non-blocking: %w", err)
	}
	return nil
}

func (s *tcpSocket) SetNoDelay() error {
	if err := unix.SetsockoptInt(s.fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return fmt.Errorf("ioloop: set TCP_NODELAY: %w", err)
	}
	return nil
}

func (s *tcpSocket) Bind(host string, port int) error {
	addr, err := resolveIPv4(host, port)
	if err != nil {
		return err
	}
	if err := unix.Bind(s.fd, addr); err != nil {
		return fmt.Errorf("ioloop: bind: %w", err)
	}
	return nil
}

func (s *tcpSocket) Listen(backlog int) error {
	if err := unix.Listen(s.fd, backlog); err != nil {
		return fmt.Errorf("ioloop: listen: %w", err)
	}
	return nil
}

func (s *tcpSocket) Accept() (RawSocket, error) {
	nfd, _, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, ErrWouldBlock
		}
		return nil, fmt.Errorf("ioloop: accept: %w", err)
	}
	return newTCPSocketFromFd(nfd), nil
}

func (s *tcpSocket) Connect(host string, port int) error {
	addr, err := resolveIPv4(host, port)
	if err != nil {
		return err
	}
	if err := unix.Connect(s.fd, addr); err != nil {
		return fmt.Errorf("ioloop: connect %s:%d: %w", host, port, err)
	}
	return nil
}

func (s *tcpSocket) Read(buf []byte) (int, error) {
	n, err := unix.Read(s.fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		return 0, fmt.Errorf("ioloop: read: %w", err)
	}
	return n, nil
}

func (s *tcpSocket) Write(buf []byte) (int, error) {
	n, err := unix.Write(s.fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		return 0, fmt.Errorf("ioloop: write: %w", err)
	}
	return n, nil
}

func (s *tcpSocket) Shutdown() error {
	if err := unix.Shutdown(s.fd, unix.SHUT_RDWR); err != nil {
		return fmt.Errorf("ioloop: shutdown: %w", err)
	}
	return nil
}

func (s *tcpSocket) Close() error {
	if err := unix.Close(s.fd); err != nil {
		return fmt.Errorf("ioloop: close: %w", err)
	}
	return nil
}

func (s *tcpSocket) Fd() uintptr { return uintptr(s.fd) }
