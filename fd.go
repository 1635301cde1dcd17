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
	"github.com/linuxfd/linuxfd/internal/signalfd"
	"github.com/linuxfd/linuxfd/internal/timerfd"
	"github.com/linuxfd/linuxfd/metrics"
)

// Close closes fd. Emulated descriptors are deregistered and their
// context torn down once in-flight operations drain; anything else goes
// to the host's close.
func Close(fd int) error {
	if registry.Deregister(fd) {
		metrics.Add(metrics.RoutedCloses, 1)
		return nil
	}
	return unix.Close(fd)
}

// Read reads from fd. A timer descriptor yields an 8-byte expiration
// count, a signal descriptor one SignalfdSiginfo record, a counter
// descriptor its 8-byte value. Reading a polling set is invalid.
func Read(fd int, p []byte) (int, error) {
	ctx, release, err := registry.Acquire(fd)
	if err != nil {
		return unix.Read(fd, p)
	}
	defer release()
	metrics.Add(metrics.RoutedReads, 1)
	switch c := ctx.(type) {
	case *timerfd.Context:
		return c.Read(p)
	case *signalfd.Context:
		return c.Read(p)
	case *eventfd.Context:
		return c.Read(p)
	default:
		return 0, unix.EINVAL
	}
}

// Write writes to fd. Only counter descriptors are writable among the
// emulated kinds; anything foreign goes to the host's write.
func Write(fd int, p []byte) (int, error) {
	ctx, release, err := registry.Acquire(fd)
	if err != nil {
		return unix.Write(fd, p)
	}
	defer release()
	metrics.Add(metrics.RoutedWrites, 1)
	if c, ok := ctx.(*eventfd.Context); ok {
		return c.Write(p)
	}
	return 0, unix.EINVAL
}
