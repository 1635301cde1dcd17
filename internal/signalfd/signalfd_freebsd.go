// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

//go:build freebsd
// +build freebsd

// Package signalfd implements the signal descriptor context: it blocks a
// signal set and turns deliveries into readable fixed-size records. The
// kqueue's signal filter supplies readiness; the record itself is fetched
// synchronously off the signal queue when the user reads.
package signalfd

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/linuxfd/linuxfd/internal/locker"
	"github.com/linuxfd/linuxfd/internal/poller"
	"github.com/linuxfd/linuxfd/internal/registry"
	"github.com/linuxfd/linuxfd/internal/rtimer"
	"github.com/linuxfd/linuxfd/internal/sigset"
	"github.com/linuxfd/linuxfd/log"
)

// Siginfo is the fixed 128-byte record one read returns, laid out the way
// Linux lays it out.
type Siginfo struct {
	Signo   uint32
	Errno   int32
	Code    int32
	Pid     uint32
	Uid     uint32
	Fd      int32
	Tid     uint32
	Band    uint32
	Overrun uint32
	Trapno  uint32
	Status  int32
	Int     int32
	Ptr     uint64
	Utime   uint64
	Stime   uint64
	Addr    uint64
	AddrLsb uint16
	_       [46]byte
}

// RecordSize is the wire size of one Siginfo.
const RecordSize = int(unsafe.Sizeof(Siginfo{}))

// Context is one signal descriptor.
type Context struct {
	kq       *poller.Kqueue
	readLock locker.Locker
	mask     sigset.Set
	nonblock bool
}

// New creates a signal context for mask. The set is blocked on the
// calling thread so deliveries queue instead of running default actions.
func New(mask *sigset.Set, nonblock bool) (*Context, error) {
	kq, err := poller.NewKqueue()
	if err != nil {
		return nil, err
	}
	ctx := &Context{kq: kq, nonblock: nonblock}
	if err := ctx.configure(mask); err != nil {
		kq.Close()
		return nil, err
	}
	return ctx, nil
}

// SetMask replaces the watched signal set, the way re-creating the
// descriptor over an existing one does on Linux.
func (ctx *Context) SetMask(mask *sigset.Set, nonblock bool) error {
	ctx.readLock.Lock()
	defer ctx.readLock.Unlock()
	ctx.nonblock = nonblock
	ctx.removeFilters()
	return ctx.configure(mask)
}

func (ctx *Context) configure(mask *sigset.Set) error {
	if err := rtimer.SigprocmaskThread(rtimer.SigBlock, mask, nil); err != nil {
		return err
	}
	var changes []unix.Kevent_t
	for sig := 1; sig <= sigset.Max; sig++ {
		if mask.Has(sig) {
			changes = append(changes, unix.Kevent_t{
				Ident:  uint64(sig),
				Filter: unix.EVFILT_SIGNAL,
				Flags:  unix.EV_ADD,
			})
		}
	}
	if len(changes) == 0 {
		ctx.mask = *mask
		return nil
	}
	if err := ctx.kq.Apply(changes); err != nil {
		return err
	}
	ctx.mask = *mask
	return nil
}

func (ctx *Context) removeFilters() {
	var changes []unix.Kevent_t
	for sig := 1; sig <= sigset.Max; sig++ {
		if ctx.mask.Has(sig) {
			changes = append(changes, unix.Kevent_t{
				Ident:  uint64(sig),
				Filter: unix.EVFILT_SIGNAL,
				Flags:  unix.EV_DELETE,
			})
		}
	}
	if len(changes) > 0 {
		ctx.kq.ApplyDiscard(changes)
	}
}

// FD returns the descriptor user code holds for this context.
func (ctx *Context) FD() int {
	return ctx.kq.FD()
}

// Kind implements registry.Context.
func (ctx *Context) Kind() registry.Kind {
	return registry.KindSignal
}

// Teardown implements registry.Context. The signals stay blocked: callers
// that want default dispositions back unblock them explicitly, same as
// after closing the Linux descriptor.
func (ctx *Context) Teardown() {
	if err := ctx.kq.Close(); err != nil {
		log.Errorf("signalfd teardown: %v", err)
	}
}

// Read fills p with one pending signal record.
func (ctx *Context) Read(p []byte) (int, error) {
	if len(p) < RecordSize {
		return 0, unix.EINVAL
	}
	ctx.readLock.Lock()
	defer ctx.readLock.Unlock()

	for {
		var kev unix.Kevent_t
		ok, err := ctx.kq.PollOne(&kev)
		if err != nil {
			return 0, err
		}
		if !ok {
			if ctx.nonblock {
				return 0, unix.EAGAIN
			}
			var kevs [1]unix.Kevent_t
			if _, err := ctx.kq.Poll(kevs[:], nil); err != nil && err != unix.EINTR {
				return 0, err
			}
			continue
		}

		var info rtimer.Siginfo
		var zero unix.Timespec
		sig, err := rtimer.Sigtimedwait(&ctx.mask, &info, &zero)
		if err == unix.EAGAIN {
			// The readiness event outlived its signal; keep polling.
			continue
		}
		if err != nil {
			return 0, err
		}
		encodeSiginfo(p, sig, &info)
		return RecordSize, nil
	}
}

func encodeSiginfo(p []byte, sig int, info *rtimer.Siginfo) {
	rec := Siginfo{
		Signo:  uint32(sig),
		Errno:  info.Errno,
		Code:   info.Code,
		Pid:    uint32(info.Pid),
		Uid:    info.Uid,
		Status: info.Status,
		Int:    int32(info.Value),
		Ptr:    uint64(info.Value),
		Addr:   uint64(info.Addr),
	}
	*(*Siginfo)(unsafe.Pointer(&p[0])) = rec
}
