//go:build linux

package ioloop

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// epollPoller is the Linux readiness backend: one epoll instance for
// every registered socket source plus one dedicated eventfd per
// pending administrative operation, used purely to wake epoll_wait
// immediately (the original's post-to-eventfd trick).
type epollPoller struct {
	epfd int

	mu      sync.Mutex
	sources map[int32]*socketSource
	opFds   map[int32]*operation
}

func newPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("ioloop: epoll_create1: %w", err)
	}
	return &epollPoller{
		epfd:    epfd,
		sources: make(map[int32]*socketSource),
		opFds:   make(map[int32]*operation),
	}, nil
}

func (p *epollPoller) RegisterSource(src *socketSource) error {
	fd := int32(src.socket.Fd())
	p.mu.Lock()
	p.sources[fd] = src
	p.mu.Unlock()
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLOUT, Fd: fd}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, int(fd), &ev); err != nil {
		return fmt.Errorf("epoll_ctl add: %w", err)
	}
	return nil
}

// Post arranges for op to surface out of the next Wait call. Each post
// gets its own one-shot eventfd rather than sharing a single wakeup fd
// so multiple concurrently posted operations are each individually
// identifiable when epoll_wait returns.
func (p *epollPoller) Post(op *operation) error {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return fmt.Errorf("eventfd: %w", err)
	}
	p.mu.Lock()
	p.opFds[int32(fd)] = op
	p.mu.Unlock()
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLONESHOT, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("epoll_ctl add (post): %w", err)
	}
	buf := []byte{1, 0, 0, 0, 0, 0, 0, 0}
	if _, err := unix.Write(fd, buf); err != nil {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

func (p *epollPoller) Wait() ([]completion, error) {
	events := make([]unix.EpollEvent, 64)
	var n int
	var err error
	for {
		n, err = unix.EpollWait(p.epfd, events, -1)
		if err == unix.EINTR {
			continue
		}
		break
	}
	if err != nil {
		return nil, fmt.Errorf("epoll_wait: %w", err)
	}
	out := make([]completion, 0, n)
	for i := 0; i < n; i++ {
		fd := events[i].Fd
		p.mu.Lock()
		if op, ok := p.opFds[fd]; ok {
			delete(p.opFds, fd)
			p.mu.Unlock()
			_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
			_ = unix.Close(int(fd))
			out = append(out, completion{Op: op})
			continue
		}
		src, ok := p.sources[fd]
		p.mu.Unlock()
		if !ok {
			continue
		}
		mask := events[i].Events
		out = append(out, completion{
			Source:   src,
			Readable: mask&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0,
			Writable: mask&(unix.EPOLLOUT|unix.EPOLLERR) != 0,
		})
	}
	return out, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}
