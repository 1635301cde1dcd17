// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

//go:build freebsd || dragonfly || darwin
// +build freebsd dragonfly darwin

package poller

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/linuxfd/linuxfd/internal/netutil"
	"github.com/linuxfd/linuxfd/internal/sigset"
	"github.com/linuxfd/linuxfd/metrics"
)

// Wait timeout sentinels. Indefinite is Linux's; IndefiniteCompat is the
// historical alternative some programs still pass.
const (
	Indefinite       = -1
	IndefiniteCompat = -2
)

// Wait fills events with up to len(events) ready registrations and returns
// how many it wrote. A sigmask, when non-nil, is installed on the calling
// thread for the duration of the kernel wait.
//
// Raw kernel events are harvested in batches and post-processed; events
// the synthesis suppresses (spurious write readiness on unconnected
// sockets, quiescent one-shot registrations, stale generations) do not
// count against the caller's budget and do not end an indefinite wait.
func (ps *PollSet) Wait(events []Event, timeoutMs int, sigmask *sigset.Set) (int, error) {
	if len(events) == 0 {
		return 0, unix.EINVAL
	}
	if timeoutMs < 0 && timeoutMs != Indefinite && timeoutMs != IndefiniteCompat {
		return 0, unix.EINVAL
	}
	metrics.Add(metrics.PollWaits, 1)

	var restore func()
	if sigmask != nil {
		var err error
		restore, err = pushSigmask(sigmask)
		if err != nil {
			return 0, err
		}
		defer restore()
	}

	batch := len(events)
	if batch > ps.batch {
		batch = ps.batch
	}
	kevs := make([]unix.Kevent_t, batch)

	var deadline time.Time
	if timeoutMs > 0 {
		deadline = time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	}

	for {
		ts, ok := ps.nextTimeout(timeoutMs, deadline)
		if !ok {
			metrics.Add(metrics.PollWaitTimeouts, 1)
			return 0, nil
		}
		n, err := ps.kq.Poll(kevs, ts)
		if err != nil {
			return 0, err
		}
		if n == 0 {
			metrics.Add(metrics.PollWaitTimeouts, 1)
			return 0, nil
		}
		metrics.Add(metrics.PollEventsRaw, uint64(n))
		if m := ps.translate(kevs[:n], events); m > 0 {
			metrics.Add(metrics.PollEventsDelivered, uint64(m))
			return m, nil
		}
		// Every raw event was suppressed; go back to waiting with
		// whatever time is left.
	}
}

// nextTimeout derives the timespec for the next kernel wait. ok=false
// means the deadline already passed.
func (ps *PollSet) nextTimeout(timeoutMs int, deadline time.Time) (*unix.Timespec, bool) {
	switch {
	case timeoutMs == Indefinite || timeoutMs == IndefiniteCompat:
		return nil, true
	case timeoutMs == 0:
		return &unix.Timespec{}, true
	default:
		left := time.Until(deadline)
		if left <= 0 {
			return nil, false
		}
		ts := unix.NsecToTimespec(left.Nanoseconds())
		return &ts, true
	}
}

// translate post-processes one batch of raw events into Linux-style
// events, merging multiple filters of the same target into one report.
func (ps *PollSet) translate(kevs []unix.Kevent_t, out []Event) int {
	n := 0
	slot := make(map[int]int, len(kevs)) // target fd -> index in out

	for i := range kevs {
		kev := &kevs[i]
		fd := int(kev.Ident)

		ps.mu.Lock()
		reg, ok := ps.regs[fd]
		if !ok || reg.gen != uint64(GetUdata(kev)) {
			ps.mu.Unlock()
			// A registration that no longer exists: the target was
			// closed and recycled, or removed concurrently. Drop
			// the orphaned filter.
			metrics.Add(metrics.PollStaleRegistrations, 1)
			ps.kq.ApplyDiscard([]unix.Kevent_t{{
				Ident:  kev.Ident,
				Filter: kev.Filter,
				Flags:  unix.EV_DELETE,
			}})
			continue
		}
		j, merged := slot[fd]
		if reg.fired && !merged {
			// Quiescent one-shot from an earlier batch; nothing more
			// until MOD re-arms it.
			ps.mu.Unlock()
			metrics.Add(metrics.PollEventsSuppressed, 1)
			continue
		}
		requested := reg.events
		kind := reg.kind
		data := reg.data
		hupSeen := reg.hupSeen
		ps.mu.Unlock()

		mask := ps.synthesize(kev, fd, kind, requested, hupSeen)
		if kev.Filter == unix.EVFILT_WRITE && mask&Hup != 0 && !hupSeen {
			ps.mu.Lock()
			reg.hupSeen = true
			ps.mu.Unlock()
		}
		// Error and hang-up pass through unconditionally, everything
		// else only if the registration asked for it.
		mask &= requested | Err | Hup
		if mask == 0 {
			metrics.Add(metrics.PollEventsSuppressed, 1)
			continue
		}

		if merged {
			// A second filter of the same target in this batch folds
			// into the event already being reported.
			out[j].Events |= mask
			continue
		}
		if n == len(out) {
			// Caller's budget is full; the kernel still holds the
			// remaining readiness state and re-reports it.
			continue
		}
		slot[fd] = n
		out[n] = Event{Events: mask, Data: data}
		n++

		if requested&OneShot != 0 {
			ps.mu.Lock()
			reg.fired = true
			ps.mu.Unlock()
			ps.disarm(reg)
		}
	}
	return n
}

// synthesize maps one raw kqueue event to the Linux bits it stands for.
func (ps *PollSet) synthesize(kev *unix.Kevent_t, fd int, kind fdKind, requested uint32, hupSeen bool) uint32 {
	var mask uint32

	if kev.Flags&unix.EV_ERROR != 0 {
		mask |= Err
	}

	switch kev.Filter {
	case unix.EVFILT_READ:
		mask |= ps.synthesizeRead(kev, fd, kind, requested)
	case unix.EVFILT_WRITE:
		mask |= ps.synthesizeWrite(kev, fd, kind, hupSeen)
	case exceptFilter:
		if hasExceptFilter {
			mask |= Pri
		}
	}
	return mask
}

func (ps *PollSet) synthesizeRead(kev *unix.Kevent_t, fd int, kind fdKind, requested uint32) uint32 {
	switch kind {
	case kindListener:
		// Pending connections; nothing but readable applies.
		return In
	case kindPollSet, kindTimer, kindSignal, kindCounter:
		// A kqueue-backed context is readable while it has pending
		// events. The inner set is never unwound here.
		return In
	case kindStream, kindDgram:
		var mask uint32
		if kev.Flags&unix.EV_EOF != 0 {
			mask |= Hup | RdHup
			if kev.Data > 0 {
				mask |= In
			}
			if kev.Fflags != 0 {
				// The filter carries the socket error once the
				// peer is gone.
				mask |= Err
			}
		} else {
			mask |= In
		}
		if requested&Pri != 0 && !hasExceptFilter &&
			netutil.OOBInline(fd) && netutil.AtMark(fd) {
			// In-band fallback: the priority bit stays asserted
			// until the byte at the mark is consumed.
			mask |= Pri
		}
		return mask
	case kindFifo:
		if kev.Flags&unix.EV_EOF != 0 {
			mask := Hup
			if kev.Data > 0 {
				mask |= In
			}
			return mask
		}
		return In
	default:
		return In
	}
}

func (ps *PollSet) synthesizeWrite(kev *unix.Kevent_t, fd int, kind fdKind, hupSeen bool) uint32 {
	switch kind {
	case kindStream:
		if kev.Flags&unix.EV_EOF == 0 {
			return Out
		}
		soErr, err := netutil.SockErr(fd)
		if err != nil {
			// The query itself failing contributes the error bit;
			// it must never abort the wait.
			return Out | Hup | Err
		}
		if soErr == 0 && !netutil.IsConnected(fd) && !hupSeen {
			// A freshly created, never-connected stream socket
			// raises one spurious write event. Hide it; a real
			// transition reports on the next event. Once a
			// hang-up was delivered the level-held condition keeps
			// reporting even though the SO_ERROR query above
			// consumed the error.
			metrics.Add(metrics.PollEventsSuppressed, 1)
			return 0
		}
		mask := Out | Hup
		if soErr != 0 {
			mask |= Err
		}
		return mask
	case kindFifo:
		if kev.Flags&unix.EV_EOF != 0 {
			// Reader side gone.
			return Out | Err
		}
		return Out
	default:
		return Out
	}
}
