// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

//go:build dragonfly || darwin
// +build dragonfly darwin

package timerfd

import "golang.org/x/sys/unix"

// This host has no POSIX realtime timers with thread-directed delivery,
// so requests that need the complex shape (absolute times, realtime
// clocks, unequal initial delay and period) are refused.
type complexState struct{}

func (ctx *Context) upgradeToComplex() error {
	return unix.ENOTSUP
}

func (ctx *Context) settimeComplex(flags int, next *Itimerspec, old *Itimerspec) error {
	return unix.ENOTSUP
}

func (ctx *Context) gettimeComplex(cur *Itimerspec) error {
	return unix.ENOTSUP
}

func (ctx *Context) teardownComplex() {}
