// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

// Package poller provides the polling-set engine that emulates Linux
// readiness notification on top of kqueue. A polling set keeps a table of
// registrations, translates each requested event mask into kqueue filters,
// and post-processes raw kernel events back into Linux-style masks,
// synthesising the conditions kqueue does not signal directly.
package poller

import "fmt"

// Event mask bits, numerically identical to Linux's epoll layout on every
// supported platform.
const (
	In      uint32 = 0x001
	Pri     uint32 = 0x002
	Out     uint32 = 0x004
	Err     uint32 = 0x008
	Hup     uint32 = 0x010
	RdHup   uint32 = 0x2000
	OneShot uint32 = 1 << 30
	ET      uint32 = 1 << 31
)

// requestable is the set of bits a registration may ask for. Err and Hup
// are accepted and ignored: they are always reported.
const requestable = In | Pri | Out | Err | Hup | RdHup | OneShot | ET

// Op defines the operation of PollSet.Ctl. The numeric values match
// Linux's control opcodes.
type Op int

// Control opcodes.
const (
	OpAdd Op = 1
	OpDel Op = 2
	OpMod Op = 3
)

// String implements fmt.Stringer.
func (o Op) String() string {
	switch o {
	case OpAdd:
		return "ADD"
	case OpDel:
		return "DEL"
	case OpMod:
		return "MOD"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Event is one readiness report: the synthesised mask plus the opaque
// cookie the registration carries.
type Event struct {
	Events uint32
	Data   uint64
}
