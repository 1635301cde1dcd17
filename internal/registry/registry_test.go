// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/linuxfd/linuxfd/internal/registry"
)

type fakeContext struct {
	kind     registry.Kind
	torndown int
}

func (f *fakeContext) Kind() registry.Kind { return f.kind }
func (f *fakeContext) Teardown()           { f.torndown++ }

func TestRegisterLookupDeregister(t *testing.T) {
	ctx := &fakeContext{kind: registry.KindTimer}
	registry.Register(1000, ctx)

	k, ok := registry.LookupKind(1000)
	require.True(t, ok)
	assert.Equal(t, registry.KindTimer, k)

	require.True(t, registry.Deregister(1000))
	assert.Equal(t, 1, ctx.torndown)

	_, ok = registry.LookupKind(1000)
	assert.False(t, ok)
	assert.False(t, registry.Deregister(1000), "second close falls through to the host")
}

func TestAcquireDefersTeardown(t *testing.T) {
	ctx := &fakeContext{kind: registry.KindPollSet}
	registry.Register(1001, ctx)

	got, release, err := registry.Acquire(1001)
	require.Nil(t, err)
	assert.Same(t, ctx, got)

	// Close with the operation still in flight: the context must stay
	// alive until the operation releases.
	require.True(t, registry.Deregister(1001))
	assert.Equal(t, 0, ctx.torndown)

	_, _, err = registry.Acquire(1001)
	assert.Equal(t, unix.EBADF, err, "new operations observe a terminated descriptor")

	release()
	assert.Equal(t, 1, ctx.torndown)
}

func TestAcquireUnknown(t *testing.T) {
	_, _, err := registry.Acquire(99999)
	assert.Equal(t, unix.EBADF, err)
}
