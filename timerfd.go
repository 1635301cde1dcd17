// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

//go:build freebsd || dragonfly || darwin
// +build freebsd dragonfly darwin

package linuxfd

import (
	"golang.org/x/sys/unix"

	"github.com/linuxfd/linuxfd/internal/registry"
	"github.com/linuxfd/linuxfd/internal/timerfd"
)

// Clock ids, Linux's numeric values.
const (
	CLOCK_REALTIME  = 0
	CLOCK_MONOTONIC = 1
)

// Timer descriptor flags.
const (
	TFD_TIMER_ABSTIME = 1
	TFD_NONBLOCK      = 0x800
	TFD_CLOEXEC       = 0x80000
)

// Itimerspec is a timer arming request: initial expiration and period.
type Itimerspec = timerfd.Itimerspec

// TimerfdCreate creates a timer descriptor on the given clock. Reads on
// the descriptor never block, so TFD_NONBLOCK is accepted as a no-op.
func TimerfdCreate(clockid, flags int) (int, error) {
	if flags&^(TFD_NONBLOCK|TFD_CLOEXEC) != 0 {
		return -1, unix.EINVAL
	}
	var clock timerfd.Clock
	switch clockid {
	case CLOCK_MONOTONIC:
		clock = timerfd.ClockMonotonic
	case CLOCK_REALTIME:
		clock = timerfd.ClockRealtime
	default:
		return -1, unix.EINVAL
	}
	ctx, err := timerfd.New(clock)
	if err != nil {
		return -1, err
	}
	registry.Register(ctx.FD(), ctx)
	return ctx.FD(), nil
}

// TimerfdSettime arms or disarms the timer. flags recognises only
// TFD_TIMER_ABSTIME. old, if non-nil, receives the previously armed spec.
func TimerfdSettime(fd, flags int, next, old *Itimerspec) error {
	ctx, release, err := acquireTimer(fd)
	if err != nil {
		return err
	}
	defer release()
	return ctx.Settime(flags, next, old)
}

// TimerfdGettime reports the time until the next expiration and the
// period.
func TimerfdGettime(fd int, cur *Itimerspec) error {
	ctx, release, err := acquireTimer(fd)
	if err != nil {
		return err
	}
	defer release()
	return ctx.Gettime(cur)
}

func acquireTimer(fd int) (*timerfd.Context, func(), error) {
	ctx, release, err := registry.Acquire(fd)
	if err != nil {
		return nil, nil, unix.EBADF
	}
	tc, ok := ctx.(*timerfd.Context)
	if !ok {
		release()
		return nil, nil, unix.EINVAL
	}
	return tc, release, nil
}
