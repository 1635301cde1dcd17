// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

//go:build freebsd || dragonfly || darwin
// +build freebsd dragonfly darwin

// Package timerfd implements the timer descriptor state machine. A timer
// context starts undetermined and settles into one of two shapes on first
// arming: a single kqueue timer filter when the request is relative and
// either one-shot or a pure periodic, or a POSIX realtime timer serviced
// by a helper thread for everything else. Once upgraded to the latter it
// never goes back.
package timerfd

import (
	"math"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/linuxfd/linuxfd/internal/locker"
	"github.com/linuxfd/linuxfd/internal/poller"
	"github.com/linuxfd/linuxfd/internal/registry"
	"github.com/linuxfd/linuxfd/internal/safejob"
	"github.com/linuxfd/linuxfd/log"
	"github.com/linuxfd/linuxfd/metrics"
)

// Clock selects the time base of a timer context.
type Clock int

// Supported clocks.
const (
	ClockMonotonic Clock = iota
	ClockRealtime
)

// AbsTime is the only recognised arming flag: the value is an absolute
// time on the context's clock.
const AbsTime = 1

// Itimerspec is the arming request: initial expiration and period.
type Itimerspec struct {
	Interval unix.Timespec
	Value    unix.Timespec
}

type ctxKind int

const (
	kindUndetermined ctxKind = iota
	kindSimple
	kindComplex
)

// The single kevent ident used on a timer context's private kqueue, for
// both the timer filter and the helper thread's user filter.
const userIdent = 0

// Context is one timer descriptor.
type Context struct {
	kq    *poller.Kqueue
	clock Clock

	// job serializes arming and state-machine upgrades; readLock
	// serializes the read path so concurrent readers cannot race on
	// advancing the delivered total.
	job      safejob.ExclusiveBlockJob
	readLock locker.Locker

	kind   ctxKind
	simple struct {
		spec    Itimerspec
		armedAt time.Time
		armed   bool
	}
	delivered uint64 // complex state: last total a read handed out
	complex   complexState
}

// New creates a timer context on the given clock. A realtime clock cannot
// be hosted on a kqueue timer filter, so it upgrades immediately.
func New(clock Clock) (*Context, error) {
	kq, err := poller.NewKqueue()
	if err != nil {
		return nil, err
	}
	ctx := &Context{kq: kq, clock: clock}
	if clock == ClockRealtime {
		if err := ctx.upgradeToComplex(); err != nil {
			kq.Close()
			return nil, err
		}
	}
	return ctx, nil
}

// FD returns the descriptor user code holds for this timer.
func (ctx *Context) FD() int {
	return ctx.kq.FD()
}

// Kind implements registry.Context.
func (ctx *Context) Kind() registry.Kind {
	return registry.KindTimer
}

// Teardown implements registry.Context.
func (ctx *Context) Teardown() {
	ctx.job.Close()
	if ctx.kind == kindComplex {
		ctx.teardownComplex()
	}
	if err := ctx.kq.Close(); err != nil {
		log.Errorf("timer teardown: %v", err)
	}
}

// Settime arms or disarms the timer, optionally returning the previously
// armed spec through old.
func (ctx *Context) Settime(flags int, next *Itimerspec, old *Itimerspec) error {
	if next == nil {
		return unix.EFAULT
	}
	if flags&^AbsTime != 0 {
		return unix.EINVAL
	}
	if !validTimespec(next.Value) || !validTimespec(next.Interval) {
		return unix.EINVAL
	}
	if !ctx.job.Begin() {
		return unix.EBADF
	}
	defer ctx.job.End()
	metrics.Add(metrics.TimerArms, 1)

	if ctx.kind != kindComplex && needsComplex(flags, next) {
		if err := ctx.upgradeToComplex(); err != nil {
			return err
		}
	}
	if ctx.kind == kindComplex {
		return ctx.settimeComplex(flags, next, old)
	}

	if old != nil {
		*old = ctx.simple.spec
	}
	if zeroTimespec(next.Value) {
		// Disarm. Removing the filter also drops any expiration
		// still queued. Harmless on a never-armed context.
		metrics.Add(metrics.TimerDisarms, 1)
		ctx.kq.ApplyDiscard([]unix.Kevent_t{{
			Ident:  userIdent,
			Filter: unix.EVFILT_TIMER,
			Flags:  unix.EV_DELETE,
		}})
		ctx.simple.armed = false
	} else {
		micros, err := microsFromTimespec(next.Value)
		if err != nil {
			return err
		}
		fflags, data := timerEvent(micros)
		kflags := uint16(unix.EV_ADD)
		if zeroTimespec(next.Interval) {
			kflags |= unix.EV_ONESHOT
		}
		if err := ctx.kq.Apply([]unix.Kevent_t{{
			Ident:  userIdent,
			Filter: unix.EVFILT_TIMER,
			Flags:  kflags,
			Fflags: fflags,
			Data:   data,
		}}); err != nil {
			return err
		}
		ctx.simple.armed = true
		ctx.simple.armedAt = time.Now()
	}
	ctx.simple.spec = *next
	ctx.kind = kindSimple
	return nil
}

// needsComplex reports whether the request is beyond what a kqueue timer
// filter can express: absolute times, and periodics whose initial delay
// differs from the period.
func needsComplex(flags int, next *Itimerspec) bool {
	if flags&AbsTime != 0 {
		return true
	}
	return !zeroTimespec(next.Interval) && next.Interval != next.Value
}

// Gettime reports the time until the next expiration and the period.
func (ctx *Context) Gettime(cur *Itimerspec) error {
	if cur == nil {
		return unix.EFAULT
	}
	if !ctx.job.Begin() {
		return unix.EBADF
	}
	defer ctx.job.End()

	if ctx.kind == kindComplex {
		return ctx.gettimeComplex(cur)
	}
	*cur = Itimerspec{}
	if ctx.kind != kindSimple || !ctx.simple.armed {
		return nil
	}
	cur.Interval = ctx.simple.spec.Interval
	elapsed := time.Since(ctx.simple.armedAt)
	value := durationFromTimespec(ctx.simple.spec.Value)
	if elapsed < value {
		cur.Value = timespecFromDuration(value - elapsed)
		return nil
	}
	interval := durationFromTimespec(ctx.simple.spec.Interval)
	if interval > 0 {
		cur.Value = timespecFromDuration(interval - (elapsed-value)%interval)
	}
	return nil
}

// Read returns the count of expirations since the last successful read as
// 8 host-endian bytes. With no expirations accrued it fails with EAGAIN;
// it never blocks.
func (ctx *Context) Read(p []byte) (int, error) {
	if len(p) < 8 {
		return 0, unix.EINVAL
	}
	metrics.Add(metrics.TimerReads, 1)

	ctx.readLock.Lock()
	defer ctx.readLock.Unlock()

	for {
		var kev unix.Kevent_t
		ok, err := ctx.kq.PollOne(&kev)
		if err != nil {
			return 0, err
		}
		if !ok {
			metrics.Add(metrics.TimerReadsEmpty, 1)
			return 0, unix.EAGAIN
		}

		var expired uint64
		if ctx.kind == kindComplex {
			total := uint64(poller.GetUdata(&kev))
			if total > ctx.delivered {
				expired = total - ctx.delivered
				ctx.delivered = total
			}
			// A duplicate event carries a total a previous read
			// already consumed; poll again.
		} else {
			expired = uint64(kev.Data)
		}
		if expired != 0 {
			*(*uint64)(unsafe.Pointer(&p[0])) = expired
			return 8, nil
		}
	}
}

func validTimespec(ts unix.Timespec) bool {
	return ts.Sec >= 0 && ts.Nsec >= 0 && ts.Nsec < int64(time.Second)
}

func zeroTimespec(ts unix.Timespec) bool {
	return ts.Sec == 0 && ts.Nsec == 0
}

// microsFromTimespec converts to microseconds, rounding sub-microsecond
// remainders up, and reports EOVERFLOW when the conversion cannot be
// represented.
func microsFromTimespec(ts unix.Timespec) (int64, error) {
	if ts.Sec > math.MaxInt64/int64(time.Second/time.Microsecond) {
		return 0, unix.EOVERFLOW
	}
	micros := ts.Sec * int64(time.Second/time.Microsecond)
	add := ts.Nsec / 1000
	if micros > math.MaxInt64-add {
		return 0, unix.EOVERFLOW
	}
	micros += add
	if ts.Nsec%1000 != 0 {
		if micros == math.MaxInt64 {
			return 0, unix.EOVERFLOW
		}
		micros++
	}
	return micros, nil
}

func durationFromTimespec(ts unix.Timespec) time.Duration {
	return time.Duration(ts.Sec)*time.Second + time.Duration(ts.Nsec)
}

func timespecFromDuration(d time.Duration) unix.Timespec {
	return unix.NsecToTimespec(d.Nanoseconds())
}
