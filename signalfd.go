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
	"github.com/linuxfd/linuxfd/internal/signalfd"
)

// Signal descriptor flags.
const (
	SFD_NONBLOCK = 0x800
	SFD_CLOEXEC  = 0x80000
)

// SignalfdSiginfo is the fixed-size record one read on a signal
// descriptor returns.
type SignalfdSiginfo = signalfd.Siginfo

// SignalfdRecordSize is the wire size of one SignalfdSiginfo.
const SignalfdRecordSize = signalfd.RecordSize

// Signalfd creates a signal descriptor for mask, or reconfigures the
// existing descriptor fd when fd is not -1.
func Signalfd(fd int, mask *Sigset, flags int) (int, error) {
	if mask == nil {
		return -1, unix.EFAULT
	}
	if flags&^(SFD_NONBLOCK|SFD_CLOEXEC) != 0 {
		return -1, unix.EINVAL
	}
	nonblock := flags&SFD_NONBLOCK != 0

	if fd == -1 {
		ctx, err := signalfd.New(mask, nonblock)
		if err != nil {
			return -1, err
		}
		registry.Register(ctx.FD(), ctx)
		return ctx.FD(), nil
	}

	ctx, release, err := registry.Acquire(fd)
	if err != nil {
		return -1, unix.EBADF
	}
	defer release()
	sc, ok := ctx.(*signalfd.Context)
	if !ok {
		return -1, unix.EINVAL
	}
	if err := sc.SetMask(mask, nonblock); err != nil {
		return -1, err
	}
	return fd, nil
}

// SignalfdNew creates a signal descriptor for mask.
func SignalfdNew(mask *Sigset, flags int) (int, error) {
	return Signalfd(-1, mask, flags)
}
