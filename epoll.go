// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

//go:build freebsd || dragonfly || darwin
// +build freebsd dragonfly darwin

package linuxfd

import (
	"math"

	"golang.org/x/sys/unix"

	"github.com/linuxfd/linuxfd/internal/poller"
	"github.com/linuxfd/linuxfd/internal/registry"
	"github.com/linuxfd/linuxfd/internal/sigset"
)

// Event mask bits. The numeric values are Linux's and identical on every
// supported platform.
const (
	EPOLLIN      = poller.In
	EPOLLPRI     = poller.Pri
	EPOLLOUT     = poller.Out
	EPOLLERR     = poller.Err
	EPOLLHUP     = poller.Hup
	EPOLLRDHUP   = poller.RdHup
	EPOLLONESHOT = poller.OneShot
	EPOLLET      = poller.ET
)

// Control opcodes.
const (
	EPOLL_CTL_ADD = int(poller.OpAdd)
	EPOLL_CTL_DEL = int(poller.OpDel)
	EPOLL_CTL_MOD = int(poller.OpMod)
)

// EPOLL_CLOEXEC is accepted for EpollCreate1. Emulated descriptors are
// close-on-exec regardless, matching how the Go runtime opens descriptors.
const EPOLL_CLOEXEC = 0x80000

// maxWaitEvents caps how many events one wait may ask for, the same bound
// Linux derives from the event structure size.
const maxWaitEvents = math.MaxInt32 / 12

// EpollEvent is one readiness report: an event mask and the opaque cookie
// registered with the target.
type EpollEvent = poller.Event

// Sigset mirrors the host's sigset_t, used by the masked wait and the
// signal descriptor.
type Sigset = sigset.Set

// EpollCreate creates a polling set. The historical size hint is ignored
// but must be positive.
func EpollCreate(size int) (int, error) {
	if size <= 0 {
		return -1, unix.EINVAL
	}
	return EpollCreate1(0)
}

// EpollCreate1 creates a polling set.
func EpollCreate1(flags int) (int, error) {
	if flags&^EPOLL_CLOEXEC != 0 {
		return -1, unix.EINVAL
	}
	ps, err := poller.New()
	if err != nil {
		return -1, err
	}
	registry.Register(ps.FD(), ps)
	return ps.FD(), nil
}

// EpollCtl adds, modifies or removes fd's registration in epfd.
func EpollCtl(epfd, op, fd int, event *EpollEvent) error {
	ps, release, err := acquirePollSet(epfd)
	if err != nil {
		return err
	}
	defer release()
	return ps.Ctl(poller.Op(op), fd, event)
}

// EpollWait collects up to len(events) ready registrations. It returns
// the number written, 0 on timeout. timeoutMs of -1 waits indefinitely;
// -2 is accepted as indefinite for backward compatibility.
func EpollWait(epfd int, events []EpollEvent, timeoutMs int) (int, error) {
	return EpollPwait(epfd, events, timeoutMs, nil)
}

// EpollPwait is EpollWait with a signal mask atomically installed for the
// duration of the wait. Delivery of an unblocked signal interrupts the
// wait with EINTR and no events.
func EpollPwait(epfd int, events []EpollEvent, timeoutMs int, sigmask *Sigset) (int, error) {
	if len(events) == 0 || len(events) > maxWaitEvents {
		return -1, unix.EINVAL
	}
	ps, release, err := acquirePollSet(epfd)
	if err != nil {
		return -1, err
	}
	defer release()
	n, err := ps.Wait(events, timeoutMs, sigmask)
	if err != nil {
		return -1, err
	}
	return n, nil
}

func acquirePollSet(epfd int) (*poller.PollSet, func(), error) {
	ctx, release, err := registry.Acquire(epfd)
	if err != nil {
		return nil, nil, unix.EBADF
	}
	ps, ok := ctx.(*poller.PollSet)
	if !ok {
		release()
		return nil, nil, unix.EINVAL
	}
	return ps, release, nil
}
