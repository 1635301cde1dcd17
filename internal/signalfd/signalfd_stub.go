// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

//go:build dragonfly || darwin
// +build dragonfly darwin

// Package signalfd implements the signal descriptor context. This host
// lacks a queued signal fetch (sigtimedwait), so the context cannot be
// provided here.
package signalfd

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/linuxfd/linuxfd/internal/registry"
	"github.com/linuxfd/linuxfd/internal/sigset"
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
type Context struct{}

// New is unsupported on this host.
func New(mask *sigset.Set, nonblock bool) (*Context, error) {
	return nil, unix.ENOTSUP
}

// SetMask is unsupported on this host.
func (ctx *Context) SetMask(mask *sigset.Set, nonblock bool) error {
	return unix.ENOTSUP
}

// FD is unsupported on this host.
func (ctx *Context) FD() int { return -1 }

// Kind implements registry.Context.
func (ctx *Context) Kind() registry.Kind { return registry.KindSignal }

// Teardown implements registry.Context.
func (ctx *Context) Teardown() {}

// Read is unsupported on this host.
func (ctx *Context) Read(p []byte) (int, error) {
	return 0, unix.ENOTSUP
}
