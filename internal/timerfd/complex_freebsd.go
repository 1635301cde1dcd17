// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

//go:build freebsd
// +build freebsd

package timerfd

import (
	"runtime"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"

	"github.com/linuxfd/linuxfd/internal/poller"
	"github.com/linuxfd/linuxfd/internal/rtimer"
	"github.com/linuxfd/linuxfd/internal/sigset"
	"github.com/linuxfd/linuxfd/log"
	"github.com/linuxfd/linuxfd/metrics"
)

// complexState is the realtime-timer shape: one POSIX interval timer whose
// expirations are delivered, as a realtime signal, to one dedicated kernel
// thread, which forwards running totals through the context's kqueue.
type complexState struct {
	timerID  atomic.Int32
	hasTimer bool
	tid      int32
	done     chan struct{}
}

func hostClock(c Clock) int {
	if c == ClockRealtime {
		return unix.CLOCK_REALTIME
	}
	return unix.CLOCK_MONOTONIC
}

// upgradeToComplex moves the context to the realtime-timer shape. Partial
// failures unwind completely: the helper is terminated and joined, the
// user filter removed, and the originating error returned.
func (ctx *Context) upgradeToComplex() error {
	if ctx.kind == kindSimple {
		ctx.kq.ApplyDiscard([]unix.Kevent_t{{
			Ident:  userIdent,
			Filter: unix.EVFILT_TIMER,
			Flags:  unix.EV_DELETE,
		}})
		ctx.kind = kindUndetermined
	}

	// Hold the read path while the helper publishes its thread id, so a
	// concurrent reader cannot consume the publication event.
	ctx.readLock.Lock()
	defer ctx.readLock.Unlock()

	if err := ctx.kq.AddUserFilter(userIdent, true); err != nil {
		return err
	}
	done := make(chan struct{})
	go ctx.worker(done)

	var tid int32
	for {
		var kevs [1]unix.Kevent_t
		n, err := ctx.kq.Poll(kevs[:], nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			// The helper is blocked publishing into this kqueue;
			// the publication must be harvested before bailing.
			log.Errorf("timer upgrade: harvest thread id: %v", err)
			continue
		}
		if n == 1 && kevs[0].Filter == unix.EVFILT_USER {
			tid = int32(poller.GetUdata(&kevs[0]))
			break
		}
	}
	if tid == 0 {
		// The helper could not set itself up and already exited.
		<-done
		ctx.kq.DeleteUserFilter(userIdent)
		return unix.EAGAIN
	}

	id, err := rtimer.TimerCreate(hostClock(ctx.clock), rtimer.SigDeliver, tid)
	if err != nil {
		_ = rtimer.ThrKill(tid, rtimer.SigTerminate)
		<-done
		ctx.kq.DeleteUserFilter(userIdent)
		return err
	}

	ctx.complex.timerID.Store(id)
	ctx.complex.hasTimer = true
	ctx.complex.tid = tid
	ctx.complex.done = done
	ctx.delivered = 0
	ctx.kind = kindComplex
	metrics.Add(metrics.TimerUpgrades, 1)
	return nil
}

// worker runs on its own kernel thread for the context's whole complex
// lifetime. All signals are blocked; the delivery and terminate signals
// are consumed synchronously with sigwaitinfo, so no handler is shared
// with the rest of the process.
func (ctx *Context) worker(done chan struct{}) {
	defer close(done)
	// The thread is sacrificed on exit: its signal mask has diverged
	// from what the runtime expects.
	runtime.LockOSThread()

	var all sigset.Set
	all.Fill()
	if err := rtimer.SigprocmaskThread(rtimer.SigBlock, &all, nil); err != nil {
		log.Errorf("timer helper: block signals: %v", err)
		_ = ctx.kq.PostUser(userIdent, 0)
		return
	}
	tid, err := rtimer.ThrSelf()
	if err != nil || tid == 0 {
		log.Errorf("timer helper: thr_self: %v", err)
		_ = ctx.kq.PostUser(userIdent, 0)
		return
	}

	var waitSet sigset.Set
	waitSet.Add(rtimer.SigDeliver)
	waitSet.Add(rtimer.SigTerminate)

	if err := ctx.kq.PostUser(userIdent, uint64(uint32(tid))); err != nil {
		log.Errorf("timer helper: publish thread id: %v", err)
		return
	}

	var total uint64
	var info rtimer.Siginfo
	for {
		sig, err := rtimer.Sigwaitinfo(&waitSet, &info)
		if err == unix.EINTR {
			continue
		}
		if err != nil || sig != rtimer.SigDeliver {
			return
		}
		overrun, oerr := rtimer.TimerGetoverrun(ctx.complex.timerID.Load())
		if oerr != nil {
			overrun = 0
		}
		total += uint64(1 + overrun)
		metrics.Add(metrics.TimerHelperDeliveries, 1)
		if err := ctx.kq.PostUser(userIdent, total); err != nil {
			log.Warnf("timer helper: post total: %v", err)
		}
	}
}

func (ctx *Context) settimeComplex(flags int, next *Itimerspec, old *Itimerspec) error {
	var hostOld rtimer.ItimerSpec
	hostNext := rtimer.ItimerSpec{Interval: next.Interval, Value: next.Value}
	var oldp *rtimer.ItimerSpec
	if old != nil {
		oldp = &hostOld
	}
	if zeroTimespec(next.Value) {
		metrics.Add(metrics.TimerDisarms, 1)
	}
	if err := rtimer.TimerSettime(ctx.complex.timerID.Load(), flags, &hostNext, oldp); err != nil {
		return err
	}
	if old != nil {
		*old = Itimerspec{Interval: hostOld.Interval, Value: hostOld.Value}
	}
	return nil
}

func (ctx *Context) gettimeComplex(cur *Itimerspec) error {
	var host rtimer.ItimerSpec
	if err := rtimer.TimerGettime(ctx.complex.timerID.Load(), &host); err != nil {
		return err
	}
	*cur = Itimerspec{Interval: host.Interval, Value: host.Value}
	return nil
}

func (ctx *Context) teardownComplex() {
	if ctx.complex.hasTimer {
		if err := rtimer.TimerDelete(ctx.complex.timerID.Load()); err != nil {
			log.Warnf("timer teardown: delete realtime timer: %v", err)
		}
	}
	if ctx.complex.tid != 0 {
		_ = rtimer.ThrKill(ctx.complex.tid, rtimer.SigTerminate)
	}
	if ctx.complex.done != nil {
		<-ctx.complex.done
	}
}
