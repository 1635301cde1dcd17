// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

//go:build freebsd || dragonfly || darwin
// +build freebsd dragonfly darwin

package eventfd_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/linuxfd/linuxfd/internal/eventfd"
)

func newCounter(t *testing.T, initval uint32, semaphore bool) *eventfd.Context {
	t.Helper()
	ctx, err := eventfd.New(initval, semaphore, true)
	require.Nil(t, err)
	t.Cleanup(ctx.Teardown)
	return ctx
}

func read64(t *testing.T, ctx *eventfd.Context) (uint64, error) {
	t.Helper()
	buf := make([]byte, 8)
	n, err := ctx.Read(buf)
	if err != nil {
		return 0, err
	}
	require.Equal(t, 8, n)
	return binary.LittleEndian.Uint64(buf), nil
}

func write64(t *testing.T, ctx *eventfd.Context, v uint64) error {
	t.Helper()
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	_, err := ctx.Write(buf)
	return err
}

func TestSumSemantics(t *testing.T) {
	ctx := newCounter(t, 3, false)

	require.Nil(t, write64(t, ctx, 4))
	n, err := read64(t, ctx)
	require.Nil(t, err)
	assert.Equal(t, uint64(7), n, "reads drain the whole counter in sum mode")

	_, err = read64(t, ctx)
	assert.Equal(t, unix.EAGAIN, err)
}

func TestSemaphoreSemantics(t *testing.T) {
	ctx := newCounter(t, 2, true)

	for i := 0; i < 2; i++ {
		n, err := read64(t, ctx)
		require.Nil(t, err)
		assert.Equal(t, uint64(1), n)
	}
	_, err := read64(t, ctx)
	assert.Equal(t, unix.EAGAIN, err)
}

func TestWriteValidation(t *testing.T) {
	ctx := newCounter(t, 0, false)

	assert.Equal(t, unix.EINVAL, write64(t, ctx, math.MaxUint64))
	_, err := ctx.Write(make([]byte, 4))
	assert.Equal(t, unix.EINVAL, err)
	_, err = ctx.Read(make([]byte, 4))
	assert.Equal(t, unix.EINVAL, err)
}

func TestWriteOverflow(t *testing.T) {
	ctx := newCounter(t, 0, false)

	require.Nil(t, write64(t, ctx, math.MaxUint64-1))
	assert.Equal(t, unix.EAGAIN, write64(t, ctx, 1), "the counter saturates below the all-ones value")

	n, err := read64(t, ctx)
	require.Nil(t, err)
	assert.Equal(t, uint64(math.MaxUint64-1), n)
}
