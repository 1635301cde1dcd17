// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

// Package registry keeps the process-wide mapping from file descriptor to
// the emulated context that owns it. Lifetime of an entry is ref-counted
// against in-flight operations so that a context is never torn down while
// another goroutine is inside its kqueue wait.
package registry

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Kind tags the context variants the registry can hold.
type Kind int

// Context kinds.
const (
	KindPollSet Kind = iota
	KindTimer
	KindSignal
	KindCounter
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindPollSet:
		return "pollset"
	case KindTimer:
		return "timer"
	case KindSignal:
		return "signal"
	case KindCounter:
		return "counter"
	default:
		return "unknown"
	}
}

// Context is a per-descriptor emulation context. Teardown releases every
// kernel resource the context owns, the backing kqueue included, and is
// called exactly once, by the registry, after the last reference is gone.
type Context interface {
	Kind() Kind
	Teardown()
}

type entry struct {
	ctx  Context
	refs int
	dead bool
}

var (
	mu      sync.Mutex
	entries = make(map[int]*entry)
)

// Register binds fd to ctx. The entry starts with one base reference that
// is dropped by Deregister.
func Register(fd int, ctx Context) {
	mu.Lock()
	entries[fd] = &entry{ctx: ctx, refs: 1}
	mu.Unlock()
}

// LookupKind reports the kind of fd if it is one of ours.
func LookupKind(fd int) (Kind, bool) {
	mu.Lock()
	e, ok := entries[fd]
	if ok && e.dead {
		ok = false
	}
	mu.Unlock()
	if !ok {
		return 0, false
	}
	return e.ctx.Kind(), true
}

// Acquire takes a reference on fd's context for the duration of one routed
// operation. The returned release function must be called when the
// operation finishes. Acquire fails with unix.EBADF once Deregister ran,
// even while older operations are still in flight.
func Acquire(fd int) (Context, func(), error) {
	mu.Lock()
	e, ok := entries[fd]
	if !ok || e.dead {
		mu.Unlock()
		return nil, nil, unix.EBADF
	}
	e.refs++
	mu.Unlock()
	return e.ctx, func() { release(e) }, nil
}

// Deregister marks fd dead and drops the base reference. The context is
// torn down once the last in-flight operation releases. Returns false if
// fd was not registered, so the caller can fall through to the host close.
func Deregister(fd int) bool {
	mu.Lock()
	e, ok := entries[fd]
	if !ok || e.dead {
		mu.Unlock()
		return false
	}
	e.dead = true
	delete(entries, fd)
	mu.Unlock()
	release(e)
	return true
}

func release(e *entry) {
	mu.Lock()
	e.refs--
	last := e.refs == 0 && e.dead
	mu.Unlock()
	if last {
		e.ctx.Teardown()
	}
}
