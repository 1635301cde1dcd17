// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

//go:build freebsd || dragonfly || darwin
// +build freebsd dragonfly darwin

package poller

import (
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/linuxfd/linuxfd/internal/safejob"
)

// Kqueue owns one kernel event queue. Every emulated context is backed by
// exactly one Kqueue; the descriptor number handed back to user code is the
// kqueue's own, which is what makes the contexts nest in each other and in
// foreign polling mechanisms.
type Kqueue struct {
	fd       int
	closeJob safejob.OnceJob
}

// NewKqueue opens a kernel event queue.
func NewKqueue() (*Kqueue, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, os.NewSyscallError("kqueue", err)
	}
	// Provide FD_CLOEXEC flag for consistency with Go runtime.
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &Kqueue{fd: fd}, nil
}

// FD returns the kqueue's descriptor number.
func (kq *Kqueue) FD() int {
	return kq.fd
}

// Close closes the kqueue exactly once. The kernel drops every filter
// registered on it.
func (kq *Kqueue) Close() error {
	if !kq.closeJob.Begin() {
		return nil
	}
	return os.NewSyscallError("close", unix.Close(kq.fd))
}

// Apply submits a change list and surfaces the first per-change error.
// Every change must carry EV_RECEIPT so the kernel reports each result as
// a receipt instead of mixing pending events into the output list.
func (kq *Kqueue) Apply(changes []unix.Kevent_t) error {
	for i := range changes {
		changes[i].Flags |= unix.EV_RECEIPT
	}
	out := make([]unix.Kevent_t, len(changes))
	if _, err := unix.Kevent(kq.fd, changes, out, nil); err != nil {
		return err
	}
	for i := range out {
		if out[i].Flags&unix.EV_ERROR != 0 && out[i].Data != 0 {
			return unix.Errno(out[i].Data)
		}
	}
	return nil
}

// ApplyDiscard submits a change list and ignores per-change errors. Used
// for rollback and for removing filters that may already be gone.
func (kq *Kqueue) ApplyDiscard(changes []unix.Kevent_t) {
	for i := range changes {
		changes[i].Flags |= unix.EV_RECEIPT
	}
	out := make([]unix.Kevent_t, len(changes))
	_, _ = unix.Kevent(kq.fd, changes, out, nil)
}

// Poll harvests up to len(events) pending events. A nil timeout blocks
// indefinitely. EINTR is returned to the caller, never retried here.
func (kq *Kqueue) Poll(events []unix.Kevent_t, timeout *unix.Timespec) (int, error) {
	n, err := unix.Kevent(kq.fd, nil, events, timeout)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// PollOne is Poll for a single event with a zero timeout, the shape every
// context read path uses.
func (kq *Kqueue) PollOne(kev *unix.Kevent_t) (bool, error) {
	var timeout unix.Timespec
	events := unsafe.Slice(kev, 1)
	n, err := unix.Kevent(kq.fd, nil, events, &timeout)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// AddUserFilter registers an EVFILT_USER notification channel under ident.
// With clear set the event resets after each harvest, otherwise it stays
// asserted until Deleted.
func (kq *Kqueue) AddUserFilter(ident uint64, clear bool) error {
	flags := uint16(unix.EV_ADD)
	if clear {
		flags |= unix.EV_CLEAR
	}
	err := kq.Apply([]unix.Kevent_t{{
		Ident:  ident,
		Filter: unix.EVFILT_USER,
		Flags:  flags,
	}})
	return errors.Wrap(err, "add user filter")
}

// DeleteUserFilter removes the EVFILT_USER channel under ident, dropping
// any pending trigger with it.
func (kq *Kqueue) DeleteUserFilter(ident uint64) {
	kq.ApplyDiscard([]unix.Kevent_t{{
		Ident:  ident,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_DELETE,
	}})
}

// PostUser fires the EVFILT_USER channel under ident, carrying data in the
// event's user-data slot. Safe to call from any thread, the kernel does
// the synchronisation.
func (kq *Kqueue) PostUser(ident uint64, data uint64) error {
	kev := unix.Kevent_t{
		Ident:  ident,
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}
	SetUdata(&kev, uintptr(data))
	for {
		_, err := unix.Kevent(kq.fd, []unix.Kevent_t{kev}, nil, nil)
		if err != unix.EINTR {
			return os.NewSyscallError("kevent", err)
		}
	}
}

// SetUdata stores v in the kevent's Udata slot. Udata is a pointer field
// on every kqueue platform; the emulation smuggles plain integers
// (generation counters, expiration totals) through it.
func SetUdata(kev *unix.Kevent_t, v uintptr) {
	*(*uintptr)(unsafe.Pointer(&kev.Udata)) = v
}

// GetUdata reads back a value stored with SetUdata.
func GetUdata(kev *unix.Kevent_t) uintptr {
	return *(*uintptr)(unsafe.Pointer(&kev.Udata))
}
