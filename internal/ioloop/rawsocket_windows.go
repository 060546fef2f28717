//go:build windows

package ioloop

import (
	"fmt"
	"net"

	"golang.org/x/sys/windows"
)

// fionbio is the winsock ioctl code for toggling non-blocking mode.
// It is a fixed protocol constant, not exported by x/sys/windows.
const fionbio = 0x8004667e

// tcpSocket is the Windows RawSocket, a direct wrapper over a raw
// winsock handle. Like its Linux counterpart it bypasses net.Conn so
// the poller owns readiness and I/O itself.
type tcpSocket struct {
	h windows.Handle
}

func newTCPSocket() (RawSocket, error) {
	h, err := windows.Socket(windows.AF_INET, windows.SOCK_STREAM, windows.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("ioloop: socket: %w", err)
	}
	if err := windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_REUSEADDR, 1); err != nil {
		windows.Closesocket(h)
		return nil, fmt.Errorf("ioloop: setsockopt SO_REUSEADDR: %w", err)
	}
	return &tcpSocket{h: h}, nil
}

func newTCPSocketFromHandle(h windows.Handle) *tcpSocket {
	return &tcpSocket{h: h}
}

func resolveIPv4(host string, port int) (*windows.SockaddrInet4, error) {
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
	addr := &windows.SockaddrInet4{Port: port}
	copy(addr.Addr[:], v4)
	return addr, nil
}

func (s *tcpSocket) SetNonBlocking() error {
	arg := uint32(1)
	if err := windows.Ioctlsocket(s.h, fionbio, &arg); err != nil {
		return fmt.Errorf("ioloop: set non-blocking: %w", err)
	}
	return nil
}

func (s *tcpSocket) SetNoDelay() error {
	if err := windows.SetsockoptInt(s.h, windows.IPPROTO_TCP, windows.TCP_NODELAY, 1); err != nil {
		return fmt.Errorf("ioloop: set TCP_NODELAY: %w", err)
	}
	return nil
}

func (s *tcpSocket) Bind(host string, port int) error {
	addr, err := resolveIPv4(host, port)
	if err != nil {
		return err
	}
	if err := windows.Bind(s.h, addr); err != nil {
		return fmt.Errorf("ioloop: bind: %w", err)
	}
	return nil
}

func (s *tcpSocket) Listen(backlog int) error {
	if err := windows.Listen(s.h, backlog); err != nil {
		return fmt.Errorf("ioloop: listen: %w", err)
	}
	return nil
}

func (s *tcpSocket) Accept() (RawSocket, error) {
	nh, err := windows.Accept(s.h)
	if err != nil {
		if err == windows.WSAEWOULDBLOCK {
			return nil, ErrWouldBlock
		}
		return nil, fmt.Errorf("ioloop: accept: %w", err)
	}
	return newTCPSocketFromHandle(nh), nil
}

func (s *tcpSocket) Connect(host string, port int) error {
	addr, err := resolveIPv4(host, port)
	if err != nil {
		return err
	}
	if err := windows.Connect(s.h, addr); err != nil {
		return fmt.Errorf("ioloop: connect %s:%d: %w", host, port, err)
	}
	return nil
}

func (s *tcpSocket) Read(buf []byte) (int, error) {
	n, err := windows.Recv(s.h, buf, 0)
	if err != nil {
		if err == windows.WSAEWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		return 0, fmt.Errorf("ioloop: read: %w", err)
	}
	return n, nil
}

func (s *tcpSocket) Write(buf []byte) (int, error) {
	n, err := windows.Send(s.h, buf, 0)
	if err != nil {
		if err == windows.WSAEWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		return 0, fmt.Errorf("ioloop: write: %w", err)
	}
	return n, nil
}

func (s *tcpSocket) Shutdown() error {
	if err := windows.Shutdown(s.h, windows.SHUT_RDWR); err != nil {
		return fmt.Errorf("ioloop: shutdown: %w", err)
	}
	return nil
}

func (s *tcpSocket) Close() error {
	if err := windows.Closesocket(s.h); err != nil {
		return fmt.Errorf("ioloop: close: %w", err)
	}
	return nil
}

func (s *tcpSocket) Fd() uintptr { return uintptr(s.h) }
