// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

//go:build freebsd
// +build freebsd

// Package rtimer wraps the host's POSIX realtime timer and signal-wait
// syscalls. The standard library exposes none of these, so the package
// goes through the raw syscall numbers; the structures mirror the
// kernel's ABI.
package rtimer

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/linuxfd/linuxfd/internal/sigset"
)

// Timer delivery targets a specific kernel thread.
const sigevThreadID = 4

// The realtime signals the emulation reserves: SIGRTMIN carries timer
// expirations, SIGRTMIN+1 tells a helper thread to exit.
const (
	SigDeliver   = 65
	SigTerminate = 66
)

// sigprocmask how-values, from the host's signal.h.
const (
	SigBlock   = 1
	SigUnblock = 2
	SigSetmask = 3
)

// Sigevent mirrors the host's struct sigevent. ThreadID overlays the
// first member of the notification union.
type Sigevent struct {
	Notify   int32
	Signo    int32
	Value    uintptr
	ThreadID int32
	_        [60]byte
}

// ItimerSpec mirrors the host's struct itimerspec.
type ItimerSpec struct {
	Interval unix.Timespec
	Value    unix.Timespec
}

// Siginfo mirrors the host's siginfo_t.
type Siginfo struct {
	Signo  int32
	Errno  int32
	Code   int32
	Pid    int32
	Uid    uint32
	Status int32
	Addr   uintptr
	Value  uintptr
	_      [40]byte
}

// TimerCreate creates a per-process timer on clockid that delivers signo
// to the kernel thread tid on each expiration.
func TimerCreate(clockid int, signo int, tid int32) (int32, error) {
	sev := Sigevent{
		Notify:   sigevThreadID,
		Signo:    int32(signo),
		ThreadID: tid,
	}
	var id int32
	_, _, e := unix.Syscall(unix.SYS_KTIMER_CREATE,
		uintptr(clockid),
		uintptr(unsafe.Pointer(&sev)),
		uintptr(unsafe.Pointer(&id)))
	if e != 0 {
		return 0, e
	}
	return id, nil
}

// TimerSettime arms or disarms the timer. flags carries the host's
// TIMER_ABSTIME when the value is an absolute time.
func TimerSettime(id int32, flags int, value *ItimerSpec, old *ItimerSpec) error {
	_, _, e := unix.Syscall6(unix.SYS_KTIMER_SETTIME,
		uintptr(id),
		uintptr(flags),
		uintptr(unsafe.Pointer(value)),
		uintptr(unsafe.Pointer(old)),
		0, 0)
	if e != 0 {
		return e
	}
	return nil
}

// TimerGettime reads the time remaining until the next expiration.
func TimerGettime(id int32, cur *ItimerSpec) error {
	_, _, e := unix.Syscall(unix.SYS_KTIMER_GETTIME,
		uintptr(id),
		uintptr(unsafe.Pointer(cur)),
		0)
	if e != 0 {
		return e
	}
	return nil
}

// TimerGetoverrun reports how many expirations were missed since the last
// delivered signal.
func TimerGetoverrun(id int32) (int, error) {
	n, _, e := unix.Syscall(unix.SYS_KTIMER_GETOVERRUN, uintptr(id), 0, 0)
	if e != 0 {
		return 0, e
	}
	return int(n), nil
}

// TimerDelete destroys the timer.
func TimerDelete(id int32) error {
	_, _, e := unix.Syscall(unix.SYS_KTIMER_DELETE, uintptr(id), 0, 0)
	if e != 0 {
		return e
	}
	return nil
}

// ThrSelf returns the calling kernel thread's id.
func ThrSelf() (int32, error) {
	var tid int64
	_, _, e := unix.Syscall(unix.SYS_THR_SELF, uintptr(unsafe.Pointer(&tid)), 0, 0)
	if e != 0 {
		return 0, e
	}
	return int32(tid), nil
}

// ThrKill delivers sig to the kernel thread tid.
func ThrKill(tid int32, sig int) error {
	_, _, e := unix.Syscall(unix.SYS_THR_KILL, uintptr(tid), uintptr(sig), 0)
	if e != 0 {
		return e
	}
	return nil
}

// Sigwaitinfo blocks until a signal in set is pending, removes it from
// the queue and returns its number.
func Sigwaitinfo(set *sigset.Set, info *Siginfo) (int, error) {
	n, _, e := unix.Syscall(unix.SYS_SIGWAITINFO,
		uintptr(unsafe.Pointer(set)),
		uintptr(unsafe.Pointer(info)),
		0)
	if e != 0 {
		return 0, e
	}
	return int(n), nil
}

// Sigtimedwait is Sigwaitinfo with a timeout; a zero timeout polls.
func Sigtimedwait(set *sigset.Set, info *Siginfo, timeout *unix.Timespec) (int, error) {
	n, _, e := unix.Syscall(unix.SYS_SIGTIMEDWAIT,
		uintptr(unsafe.Pointer(set)),
		uintptr(unsafe.Pointer(info)),
		uintptr(unsafe.Pointer(timeout)))
	if e != 0 {
		return 0, e
	}
	return int(n), nil
}

// SigprocmaskThread manipulates the calling thread's signal mask. The raw
// syscall is per-thread, which is what both the helper thread and the
// signal context need.
func SigprocmaskThread(how int, set, old *sigset.Set) error {
	_, _, e := unix.Syscall(unix.SYS_SIGPROCMASK,
		uintptr(how),
		uintptr(unsafe.Pointer(set)),
		uintptr(unsafe.Pointer(old)))
	if e != 0 {
		return e
	}
	return nil
}

