// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

//go:build freebsd
// +build freebsd

package timerfd_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/linuxfd/linuxfd/internal/timerfd"
)

func TestRealtimeClockUpgradesAtCreate(t *testing.T) {
	ctx := newTimer(t, timerfd.ClockRealtime)

	// Absolute arming at the current time with a short period; over
	// ~600ms the deltas must sum to at least 3, each one non-zero.
	var now unix.Timespec
	require.Nil(t, unix.ClockGettime(unix.CLOCK_REALTIME, &now))
	spec := &timerfd.Itimerspec{
		Value:    unix.Timespec{Sec: now.Sec, Nsec: now.Nsec},
		Interval: relative(100 * time.Millisecond),
	}
	require.Nil(t, ctx.Settime(timerfd.AbsTime, spec, nil))

	deadline := time.Now().Add(600 * time.Millisecond)
	var total uint64
	for time.Now().Before(deadline) {
		n, err := readCount(t, ctx)
		if err == unix.EAGAIN {
			time.Sleep(20 * time.Millisecond)
			continue
		}
		require.Nil(t, err)
		require.NotZero(t, n, "a successful read always reports progress")
		total += n
	}
	assert.GreaterOrEqual(t, total, uint64(3))
}

func TestUnequalPeriodUpgrades(t *testing.T) {
	ctx := newTimer(t, timerfd.ClockMonotonic)

	// Initial delay differs from the period: the kqueue timer filter
	// cannot express this, so the context goes complex and still counts
	// correctly.
	spec := &timerfd.Itimerspec{
		Value:    relative(30 * time.Millisecond),
		Interval: relative(60 * time.Millisecond),
	}
	require.Nil(t, ctx.Settime(0, spec, nil))

	time.Sleep(200 * time.Millisecond)
	n, err := readCount(t, ctx)
	require.Nil(t, err)
	// One initial expiration at 30ms plus at least two periods.
	assert.GreaterOrEqual(t, n, uint64(3))

	// Once complex, a later plain arming stays complex and keeps
	// working.
	require.Nil(t, ctx.Settime(0, &timerfd.Itimerspec{Value: relative(20 * time.Millisecond)}, nil))
	time.Sleep(50 * time.Millisecond)
	n, err = readCount(t, ctx)
	require.Nil(t, err)
	assert.GreaterOrEqual(t, n, uint64(1))
}

func TestComplexOldSpec(t *testing.T) {
	ctx := newTimer(t, timerfd.ClockRealtime)

	armed := &timerfd.Itimerspec{
		Value:    relative(300 * time.Millisecond),
		Interval: relative(300 * time.Millisecond),
	}
	require.Nil(t, ctx.Settime(0, armed, nil))

	var old timerfd.Itimerspec
	require.Nil(t, ctx.Settime(0, &timerfd.Itimerspec{}, &old))
	assert.Equal(t, armed.Interval, old.Interval)
	left := time.Duration(old.Value.Sec)*time.Second + time.Duration(old.Value.Nsec)
	assert.Greater(t, left, time.Duration(0))
	assert.LessOrEqual(t, left, 300*time.Millisecond)
}

func TestGettimeComplex(t *testing.T) {
	ctx := newTimer(t, timerfd.ClockRealtime)

	require.Nil(t, ctx.Settime(0, &timerfd.Itimerspec{Value: relative(400 * time.Millisecond)}, nil))
	var cur timerfd.Itimerspec
	require.Nil(t, ctx.Gettime(&cur))
	left := time.Duration(cur.Value.Sec)*time.Second + time.Duration(cur.Value.Nsec)
	assert.Greater(t, left, time.Duration(0))
	assert.LessOrEqual(t, left, 400*time.Millisecond)
}
