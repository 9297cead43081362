//go:build darwin

package taskpool

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// maxDynamicFDLimit bounds how far the fds slice will grow on demand.
const maxDynamicFDLimit = 1 << 20

// kqueuePoller implements platformPoller on Darwin via kqueue, grounded on
// eventloop's Darwin FastPoller: a growable fd-indexed slice rather than a
// fixed array, since BSD fd numbering has no tight a-priori ceiling.
type kqueuePoller struct {
	kq       int32
	eventBuf [256]unix.Kevent_t
	fds      []fdEntry
	fdMu     sync.RWMutex
	closed   atomic.Bool
}

func newPlatformPoller() platformPoller {
	return &kqueuePoller{}
}

func (p *kqueuePoller) Init() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(kq)
	p.kq = int32(kq)
	p.fds = make([]fdEntry, 1024)
	return nil
}

func (p *kqueuePoller) Close() error {
	p.closed.Store(true)
	if p.kq > 0 {
		return unix.Close(int(p.kq))
	}
	return nil
}

func (p *kqueuePoller) growLocked(fd int) {
	if fd < len(p.fds) {
		return
	}
	size := fd*2 + 1
	if size > maxDynamicFDLimit {
		size = maxDynamicFDLimit
	}
	grown := make([]fdEntry, size)
	copy(grown, p.fds)
	p.fds = grown
}

func (p *kqueuePoller) RegisterFD(fd int, events IOEvents, cb ioCallback) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if fd < 0 || fd >= maxDynamicFDLimit {
		return ErrFDOutOfRange
	}

	p.fdMu.Lock()
	p.growLocked(fd)
	if p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDAlreadyRegistered
	}
	p.fds[fd] = fdEntry{callback: cb, events: events, active: true}
	p.fdMu.Unlock()

	changes := eventsToKevents(fd, events, unix.EV_ADD|unix.EV_ENABLE)
	if len(changes) > 0 {
		if _, err := unix.Kevent(int(p.kq), changes, nil, nil); err != nil {
			p.fdMu.Lock()
			p.fds[fd] = fdEntry{}
			p.fdMu.Unlock()
			return err
		}
	}
	return nil
}

func (p *kqueuePoller) UnregisterFD(fd int) error {
	p.fdMu.Lock()
	if fd < 0 || fd >= len(p.fds) || !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	prev := p.fds[fd]
	p.fds[fd] = fdEntry{}
	p.fdMu.Unlock()

	changes := eventsToKevents(fd, prev.events, unix.EV_DELETE)
	if len(changes) > 0 {
		_, _ = unix.Kevent(int(p.kq), changes, nil, nil)
	}
	return nil
}

func (p *kqueuePoller) ModifyFD(fd int, events IOEvents) error {
	p.fdMu.Lock()
	if fd < 0 || fd >= len(p.fds) || !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	prev := p.fds[fd].events
	p.fds[fd].events = events
	p.fdMu.Unlock()

	var changes []unix.Kevent_t
	changes = append(changes, eventsToKevents(fd, prev, unix.EV_DELETE)...)
	changes = append(changes, eventsToKevents(fd, events, unix.EV_ADD|unix.EV_ENABLE)...)
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(int(p.kq), changes, nil, nil)
	return err
}

func (p *kqueuePoller) PollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrPollerClosed
	}
	var ts unix.Timespec
	tsPtr := &ts
	if timeoutMs < 0 {
		tsPtr = nil
	} else {
		ts.Sec = int64(timeoutMs / 1000)
		ts.Nsec = int64((timeoutMs % 1000) * 1_000_000)
	}

	n, err := unix.Kevent(int(p.kq), nil, p.eventBuf[:], tsPtr)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Ident)
		p.fdMu.RLock()
		var entry fdEntry
		if fd >= 0 && fd < len(p.fds) {
			entry = p.fds[fd]
		}
		p.fdMu.RUnlock()
		if entry.active && entry.callback != nil {
			entry.callback(keventToEvents(p.eventBuf[i]))
		}
	}
	return n, nil
}

func eventsToKevents(fd int, events IOEvents, flags uint16) []unix.Kevent_t {
	var out []unix.Kevent_t
	if events&EventRead != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if events&EventWrite != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return out
}

func keventToEvents(ev unix.Kevent_t) IOEvents {
	var events IOEvents
	switch ev.Filter {
	case unix.EVFILT_READ:
		events |= EventRead
	case unix.EVFILT_WRITE:
		events |= EventWrite
	}
	if ev.Flags&unix.EV_EOF != 0 {
		events |= EventHangup
	}
	if ev.Flags&unix.EV_ERROR != 0 {
		events |= EventError
	}
	return events
}
