// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

//go:build freebsd || dragonfly || darwin
// +build freebsd dragonfly darwin

package linuxfd_test

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	reuseport "github.com/kavu/go_reuseport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/linuxfd/linuxfd"
	"github.com/linuxfd/linuxfd/internal/netutil"
)

func newEpoll(t *testing.T) int {
	t.Helper()
	epfd, err := linuxfd.EpollCreate1(linuxfd.EPOLL_CLOEXEC)
	require.Nil(t, err)
	t.Cleanup(func() { linuxfd.Close(epfd) })
	return epfd
}

func TestEpollCreateValidation(t *testing.T) {
	_, err := linuxfd.EpollCreate(0)
	assert.Equal(t, unix.EINVAL, err)
	_, err = linuxfd.EpollCreate(-1)
	assert.Equal(t, unix.EINVAL, err)
	_, err = linuxfd.EpollCreate1(0x4)
	assert.Equal(t, unix.EINVAL, err, "unknown flag bits are rejected")

	epfd, err := linuxfd.EpollCreate(8)
	require.Nil(t, err)
	require.Nil(t, linuxfd.Close(epfd))
}

func TestSimpleReadable(t *testing.T) {
	epfd := newEpoll(t)
	fds := make([]int, 2)
	require.Nil(t, unix.Pipe(fds))
	r, w := fds[0], fds[1]
	defer unix.Close(r)
	defer unix.Close(w)

	ev := linuxfd.EpollEvent{Events: linuxfd.EPOLLIN, Data: 0xfeedface}
	require.Nil(t, linuxfd.EpollCtl(epfd, linuxfd.EPOLL_CTL_ADD, r, &ev))

	_, err := unix.Write(w, []byte{'x'})
	require.Nil(t, err)

	events := make([]linuxfd.EpollEvent, 1)
	n, err := linuxfd.EpollWait(epfd, events, -1)
	require.Nil(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, linuxfd.EPOLLIN, events[0].Events)
	assert.Equal(t, uint64(0xfeedface), events[0].Data)
}

func TestWaitValidation(t *testing.T) {
	epfd := newEpoll(t)
	events := make([]linuxfd.EpollEvent, 1)

	_, err := linuxfd.EpollWait(epfd, nil, 0)
	assert.Equal(t, unix.EINVAL, err)
	_, err = linuxfd.EpollWait(epfd, events, -5)
	assert.Equal(t, unix.EINVAL, err)

	closed, err := linuxfd.EpollCreate1(0)
	require.Nil(t, err)
	require.Nil(t, linuxfd.Close(closed))
	_, err = linuxfd.EpollWait(closed, events, 0)
	assert.Equal(t, unix.EBADF, err)
	err = linuxfd.EpollCtl(closed, linuxfd.EPOLL_CTL_ADD, 0, &linuxfd.EpollEvent{})
	assert.Equal(t, unix.EBADF, err)
}

func TestCloseReturnsDescriptors(t *testing.T) {
	before, err := unix.Dup(0)
	require.Nil(t, err)
	require.Nil(t, unix.Close(before))

	var fds []int
	for i := 0; i < 64; i++ {
		epfd, err := linuxfd.EpollCreate1(0)
		require.Nil(t, err)
		fds = append(fds, epfd)
	}
	for _, epfd := range fds {
		require.Nil(t, linuxfd.Close(epfd))
	}

	after, err := unix.Dup(0)
	require.Nil(t, err)
	require.Nil(t, unix.Close(after))
	assert.Equal(t, before, after, "descriptor table returns to its starting point")
}

func TestNestedPollSet(t *testing.T) {
	outer := newEpoll(t)
	inner := newEpoll(t)

	fds := make([]int, 2)
	require.Nil(t, unix.Pipe(fds))
	r, w := fds[0], fds[1]
	defer unix.Close(r)
	defer unix.Close(w)

	require.Nil(t, linuxfd.EpollCtl(inner, linuxfd.EPOLL_CTL_ADD, r,
		&linuxfd.EpollEvent{Events: linuxfd.EPOLLIN}))
	require.Nil(t, linuxfd.EpollCtl(outer, linuxfd.EPOLL_CTL_ADD, inner,
		&linuxfd.EpollEvent{Events: linuxfd.EPOLLIN, Data: 99}))

	events := make([]linuxfd.EpollEvent, 1)
	n, err := linuxfd.EpollWait(outer, events, 0)
	require.Nil(t, err)
	assert.Equal(t, 0, n, "inner set idle, outer reports nothing")

	_, err = unix.Write(w, []byte{'x'})
	require.Nil(t, err)

	n, err = linuxfd.EpollWait(outer, events, -1)
	require.Nil(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, linuxfd.EPOLLIN, events[0].Events)
	assert.Equal(t, uint64(99), events[0].Data)
}

func TestEventfdPollable(t *testing.T) {
	epfd := newEpoll(t)
	efd, err := linuxfd.Eventfd(0, linuxfd.EFD_NONBLOCK)
	require.Nil(t, err)
	defer linuxfd.Close(efd)

	require.Nil(t, linuxfd.EpollCtl(epfd, linuxfd.EPOLL_CTL_ADD, efd,
		&linuxfd.EpollEvent{Events: linuxfd.EPOLLIN}))

	events := make([]linuxfd.EpollEvent, 1)
	n, err := linuxfd.EpollWait(epfd, events, 0)
	require.Nil(t, err)
	assert.Equal(t, 0, n, "empty counter is not readable")

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, 2)
	_, err = linuxfd.Write(efd, buf)
	require.Nil(t, err)

	n, err = linuxfd.EpollWait(epfd, events, -1)
	require.Nil(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, linuxfd.EPOLLIN, events[0].Events)

	_, err = linuxfd.Read(efd, buf)
	require.Nil(t, err)
	assert.Equal(t, uint64(2), binary.LittleEndian.Uint64(buf))

	n, err = linuxfd.EpollWait(epfd, events, 0)
	require.Nil(t, err)
	assert.Equal(t, 0, n, "drained counter stops reporting readable")
}

func TestInterception(t *testing.T) {
	epfd := newEpoll(t)
	buf := make([]byte, 8)

	_, err := linuxfd.Read(epfd, buf)
	assert.Equal(t, unix.EINVAL, err, "reading a polling set is invalid")
	_, err = linuxfd.Write(epfd, buf)
	assert.Equal(t, unix.EINVAL, err)

	tfd, err := linuxfd.TimerfdCreate(linuxfd.CLOCK_MONOTONIC, 0)
	require.Nil(t, err)
	defer linuxfd.Close(tfd)
	_, err = linuxfd.Write(tfd, buf)
	assert.Equal(t, unix.EINVAL, err, "timer descriptors are not writable")

	// Foreign descriptors fall through to the host.
	fds := make([]int, 2)
	require.Nil(t, unix.Pipe(fds))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])
	n, err := linuxfd.Write(fds[1], []byte("ok"))
	require.Nil(t, err)
	assert.Equal(t, 2, n)
	n, err = linuxfd.Read(fds[0], buf)
	require.Nil(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "ok", string(buf[:2]))
}

func TestTimerfdThroughAPI(t *testing.T) {
	_, err := linuxfd.TimerfdCreate(7, 0)
	assert.Equal(t, unix.EINVAL, err, "unknown clocks are rejected")
	_, err = linuxfd.TimerfdCreate(linuxfd.CLOCK_MONOTONIC, 0x40)
	assert.Equal(t, unix.EINVAL, err)

	tfd, err := linuxfd.TimerfdCreate(linuxfd.CLOCK_MONOTONIC, linuxfd.TFD_NONBLOCK)
	require.Nil(t, err)
	defer linuxfd.Close(tfd)

	spec := linuxfd.Itimerspec{Value: unix.NsecToTimespec((50 * time.Millisecond).Nanoseconds())}
	require.Nil(t, linuxfd.TimerfdSettime(tfd, 0, &spec, nil))

	buf := make([]byte, 8)
	_, err = linuxfd.Read(tfd, buf[:4])
	assert.Equal(t, unix.EINVAL, err, "short reads are rejected")

	time.Sleep(80 * time.Millisecond)
	n, err := linuxfd.Read(tfd, buf)
	require.Nil(t, err)
	require.Equal(t, 8, n)
	assert.Equal(t, uint64(1), binary.LittleEndian.Uint64(buf))

	_, err = linuxfd.Read(tfd, buf)
	assert.Equal(t, unix.EAGAIN, err)
}

func TestTimerfdInEpoll(t *testing.T) {
	epfd := newEpoll(t)
	tfd, err := linuxfd.TimerfdCreate(linuxfd.CLOCK_MONOTONIC, 0)
	require.Nil(t, err)
	defer linuxfd.Close(tfd)

	require.Nil(t, linuxfd.EpollCtl(epfd, linuxfd.EPOLL_CTL_ADD, tfd,
		&linuxfd.EpollEvent{Events: linuxfd.EPOLLIN, Data: 3}))

	spec := linuxfd.Itimerspec{Value: unix.NsecToTimespec((30 * time.Millisecond).Nanoseconds())}
	require.Nil(t, linuxfd.TimerfdSettime(tfd, 0, &spec, nil))

	events := make([]linuxfd.EpollEvent, 1)
	n, err := linuxfd.EpollWait(epfd, events, 2000)
	require.Nil(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, linuxfd.EPOLLIN, events[0].Events)
	assert.Equal(t, uint64(3), events[0].Data)

	buf := make([]byte, 8)
	_, err = linuxfd.Read(tfd, buf)
	require.Nil(t, err)
	assert.Equal(t, uint64(1), binary.LittleEndian.Uint64(buf))
}

func TestListenerReadiness(t *testing.T) {
	epfd := newEpoll(t)

	ln, err := reuseport.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	defer ln.Close()
	lfd, err := netutil.GetFD(ln)
	require.Nil(t, err)

	require.Nil(t, linuxfd.EpollCtl(epfd, linuxfd.EPOLL_CTL_ADD, lfd,
		&linuxfd.EpollEvent{Events: linuxfd.EPOLLIN | linuxfd.EPOLLOUT}))

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.Nil(t, err)
	defer conn.Close()

	events := make([]linuxfd.EpollEvent, 1)
	n, err := linuxfd.EpollWait(epfd, events, 2000)
	require.Nil(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, linuxfd.EPOLLIN, events[0].Events,
		"a listening socket with a pending connection reports readable only")
}

func TestConnectingSocketFailure(t *testing.T) {
	epfd := newEpoll(t)

	// Grab a port that is free and then closed again, so the connect
	// attempt is refused.
	probe, err := reuseport.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	addr := probe.Addr().(*net.TCPAddr)
	require.Nil(t, probe.Close())

	sock, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	require.Nil(t, err)
	defer unix.Close(sock)
	require.Nil(t, unix.SetNonblock(sock, true))

	var sa unix.SockaddrInet4
	copy(sa.Addr[:], addr.IP.To4())
	sa.Port = addr.Port
	err = unix.Connect(sock, &sa)
	if err != nil && err != unix.EINPROGRESS && err != unix.ECONNREFUSED {
		t.Fatalf("connect: %v", err)
	}

	require.Nil(t, linuxfd.EpollCtl(epfd, linuxfd.EPOLL_CTL_ADD, sock,
		&linuxfd.EpollEvent{Events: linuxfd.EPOLLIN | linuxfd.EPOLLOUT | linuxfd.EPOLLRDHUP}))

	events := make([]linuxfd.EpollEvent, 1)
	n, err := linuxfd.EpollWait(epfd, events, 2000)
	require.Nil(t, err)
	require.Equal(t, 1, n)
	assert.NotZero(t, events[0].Events&linuxfd.EPOLLOUT)
	assert.NotZero(t, events[0].Events&linuxfd.EPOLLERR)
	assert.NotZero(t, events[0].Events&linuxfd.EPOLLHUP)

	// Assembling the event consumed SO_ERROR, but the hang-up is a
	// level-held condition and keeps reporting.
	n, err = linuxfd.EpollWait(epfd, events, 2000)
	require.Nil(t, err)
	require.Equal(t, 1, n)
	assert.NotZero(t, events[0].Events&linuxfd.EPOLLOUT)
	assert.NotZero(t, events[0].Events&linuxfd.EPOLLHUP)
}
