//go:build linux

package netpoll

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// Poller is an epoll instance paired with an eventfd used for wake-ups.
//
// mu orders Wake against Close so a wake never lands on a descriptor number
// the kernel has already handed to someone else.
type Poller struct {
	epfd   int
	wakefd int
	raw    []unix.EpollEvent

	mu     sync.RWMutex
	closed atomic.Bool
}

// New creates a poller with room for maxEvents ready descriptors per Wait.
func New(maxEvents int) (*Poller, error) {
	if maxEvents <= 0 {
		maxEvents = 128
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	p := &Poller{
		epfd:   epfd,
		wakefd: wakefd,
		raw:    make([]unix.EpollEvent, maxEvents),
	}
	if err := p.Add(wakefd, Readable); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, err
	}
	return p, nil
}

// WakeFd returns the descriptor that becomes readable after Wake.
func (p *Poller) WakeFd() int {
	return p.wakefd
}

// Add starts watching fd for events.
func (p *Poller) Add(fd int, events Events) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, events)
}

// Modify replaces the watched events for fd.
func (p *Poller) Modify(fd int, events Events) error {
	return p.ctl(unix.EPOLL_CTL_MOD, fd, events)
}

// Remove stops watching fd.
func (p *Poller) Remove(fd int) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll_ctl del fd %d: %w", fd, err)
	}
	return nil
}

func (p *Poller) ctl(op int, fd int, events Events) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	ev := unix.EpollEvent{Events: toEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, op, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl fd %d: %w", fd, err)
	}
	return nil
}

// Wait blocks until at least one descriptor is ready or timeout elapses and
// appends the ready events to dst. A negative timeout waits forever and a
// positive one is rounded up to whole milliseconds. Interrupted waits are retried.
func (p *Poller) Wait(dst []Event, timeout time.Duration) ([]Event, error) {
	msec := -1
	if timeout >= 0 {
		msec = int((timeout + time.Millisecond - 1) / time.Millisecond)
	}

	for {
		if p.closed.Load() {
			return dst, ErrPollerClosed
		}
		n, err := unix.EpollWait(p.epfd, p.raw, msec)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return dst, fmt.Errorf("epoll_wait: %w", err)
		}
		for i := 0; i < n; i++ {
			dst = append(dst, Event{Fd: int(p.raw[i].Fd), Events: fromEpoll(p.raw[i].Events)})
		}
		return dst, nil
	}
}

// Wake makes a concurrent or future Wait return. Safe from any goroutine.
func (p *Poller) Wake() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed.Load() {
		return ErrPollerClosed
	}
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(p.wakefd, buf[:])
	// EAGAIN means the counter is saturated, so a wake-up is already pending.
	if err != nil && err != unix.EAGAIN {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

// DrainWake resets the wake counter after the wake descriptor fired.
func (p *Poller) DrainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(p.wakefd, buf[:])
		if err != unix.EINTR {
			return
		}
	}
}

// Close releases the epoll and eventfd descriptors.
func (p *Poller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed.CompareAndSwap(false, true) {
		return nil // Already closed, idempotent
	}
	err := unix.Close(p.wakefd)
	if cerr := unix.Close(p.epfd); err == nil {
		err = cerr
	}
	return err
}

func toEpoll(e Events) uint32 {
	var out uint32
	if e.Has(Readable) {
		out |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if e.Has(Writable) {
		out |= unix.EPOLLOUT
	}
	return out
}

func fromEpoll(raw uint32) Events {
	var out Events
	if raw&unix.EPOLLIN != 0 {
		out |= Readable
	}
	if raw&unix.EPOLLOUT != 0 {
		out |= Writable
	}
	if raw&(unix.EPOLLHUP|unix.EPOLLERR|unix.EPOLLRDHUP) != 0 {
		out |= Hangup
	}
	return out
}
