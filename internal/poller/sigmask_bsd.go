// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

//go:build freebsd || dragonfly
// +build freebsd dragonfly

package poller

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/linuxfd/linuxfd/internal/sigset"
)

// sigSetmask is the host's SIG_SETMASK, from signal.h.
const sigSetmask = 3

// pushSigmask atomically installs mask as the calling thread's signal mask
// and pins the goroutine to that thread so the kernel wait happens under
// it. The returned restore puts the previous mask back and unpins.
//
// The sigprocmask syscall acts on the calling thread when invoked
// directly, which is exactly the scope a masked wait needs.
func pushSigmask(mask *sigset.Set) (func(), error) {
	runtime.LockOSThread()
	var old sigset.Set
	if err := sigprocmask(sigSetmask, mask, &old); err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}
	return func() {
		_ = sigprocmask(sigSetmask, &old, nil)
		runtime.UnlockOSThread()
	}, nil
}

func sigprocmask(how int, set, old *sigset.Set) error {
	_, _, e := unix.Syscall(unix.SYS_SIGPROCMASK,
		uintptr(how),
		uintptr(unsafe.Pointer(set)),
		uintptr(unsafe.Pointer(old)))
	if e != 0 {
		return e
	}
	return nil
}
