// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

//go:build freebsd || dragonfly || darwin
// +build freebsd dragonfly darwin

// Package eventfd implements the counter descriptor context: a 64-bit
// counter with sum or semaphore semantics. Readability is mirrored into
// the context's kqueue through a level-held user-filter trigger, which is
// what lets a polling set watch the descriptor like any other.
package eventfd

import (
	"math"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/linuxfd/linuxfd/internal/poller"
	"github.com/linuxfd/linuxfd/internal/registry"
	"github.com/linuxfd/linuxfd/internal/safejob"
	"github.com/linuxfd/linuxfd/log"
)

// counterMax is the largest value the counter may hold; one below the
// all-ones value, which write rejects outright.
const counterMax = math.MaxUint64 - 1

const userIdent = 0

// Context is one counter descriptor.
type Context struct {
	kq *poller.Kqueue

	// job guards the counter and the trigger state together; counter
	// value and kqueue assertion must move in step.
	job       safejob.ExclusiveBlockJob
	value     uint64
	asserted  bool
	semaphore bool
	nonblock  bool
}

// New creates a counter context holding initval.
func New(initval uint32, semaphore, nonblock bool) (*Context, error) {
	kq, err := poller.NewKqueue()
	if err != nil {
		return nil, err
	}
	ctx := &Context{
		kq:        kq,
		value:     uint64(initval),
		semaphore: semaphore,
		nonblock:  nonblock,
	}
	if err := kq.AddUserFilter(userIdent, false); err != nil {
		kq.Close()
		return nil, err
	}
	if ctx.value > 0 {
		if err := ctx.assert(); err != nil {
			kq.Close()
			return nil, err
		}
	}
	return ctx, nil
}

// FD returns the descriptor user code holds for this counter.
func (ctx *Context) FD() int {
	return ctx.kq.FD()
}

// Kind implements registry.Context.
func (ctx *Context) Kind() registry.Kind {
	return registry.KindCounter
}

// Teardown implements registry.Context.
func (ctx *Context) Teardown() {
	ctx.job.Close()
	if err := ctx.kq.Close(); err != nil {
		log.Errorf("eventfd teardown: %v", err)
	}
}

// assert raises the readability trigger. Without EV_CLEAR the trigger
// stays up across harvests, giving level semantics to any watcher.
func (ctx *Context) assert() error {
	if ctx.asserted {
		return nil
	}
	if err := ctx.kq.PostUser(userIdent, 0); err != nil {
		return err
	}
	ctx.asserted = true
	return nil
}

// deassert drops the trigger by recycling the filter; a re-added user
// filter starts untriggered.
func (ctx *Context) deassert() {
	if !ctx.asserted {
		return
	}
	ctx.kq.DeleteUserFilter(userIdent)
	if err := ctx.kq.AddUserFilter(userIdent, false); err != nil {
		log.Errorf("eventfd: re-add user filter: %v", err)
	}
	ctx.asserted = false
}

// Read drains the counter: the whole value in sum mode, one unit in
// semaphore mode, returned as 8 host-endian bytes.
func (ctx *Context) Read(p []byte) (int, error) {
	if len(p) < 8 {
		return 0, unix.EINVAL
	}
	for {
		if !ctx.job.Begin() {
			return 0, unix.EBADF
		}
		if ctx.value > 0 {
			break
		}
		ctx.job.End()
		if ctx.nonblock {
			return 0, unix.EAGAIN
		}
		// Level trigger: this returns as soon as a writer raises the
		// counter.
		var kevs [1]unix.Kevent_t
		if _, err := ctx.kq.Poll(kevs[:], nil); err != nil && err != unix.EINTR {
			return 0, err
		}
	}
	defer ctx.job.End()

	var n uint64
	if ctx.semaphore {
		n = 1
		ctx.value--
	} else {
		n = ctx.value
		ctx.value = 0
	}
	if ctx.value == 0 {
		ctx.deassert()
	}
	*(*uint64)(unsafe.Pointer(&p[0])) = n
	return 8, nil
}

// Write adds the 8-byte value in p to the counter.
func (ctx *Context) Write(p []byte) (int, error) {
	if len(p) < 8 {
		return 0, unix.EINVAL
	}
	v := *(*uint64)(unsafe.Pointer(&p[0]))
	if v == math.MaxUint64 {
		return 0, unix.EINVAL
	}
	if !ctx.job.Begin() {
		return 0, unix.EBADF
	}
	defer ctx.job.End()
	if v > counterMax-ctx.value {
		return 0, unix.EAGAIN
	}
	ctx.value += v
	if ctx.value > 0 {
		if err := ctx.assert(); err != nil {
			return 0, err
		}
	}
	return 8, nil
}
