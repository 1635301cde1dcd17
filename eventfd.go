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

	"github.com/linuxfd/linuxfd/internal/eventfd"
	"github.com/linuxfd/linuxfd/internal/registry"
)

// Counter descriptor flags.
const (
	EFD_SEMAPHORE = 1
	EFD_NONBLOCK  = 0x800
	EFD_CLOEXEC   = 0x80000
)

// Eventfd creates a counter descriptor holding initval.
func Eventfd(initval uint32, flags int) (int, error) {
	if flags&^(EFD_SEMAPHORE|EFD_NONBLOCK|EFD_CLOEXEC) != 0 {
		return -1, unix.EINVAL
	}
	ctx, err := eventfd.New(initval, flags&EFD_SEMAPHORE != 0, flags&EFD_NONBLOCK != 0)
	if err != nil {
		return -1, err
	}
	registry.Register(ctx.FD(), ctx)
	return ctx.FD(), nil
}
