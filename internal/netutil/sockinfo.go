// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

// Package netutil provides socket interrogation helpers.
//
// Event synthesis needs to know things kqueue does not report directly:
// whether a socket is listening, whether it ever connected, what SO_ERROR
// holds, whether the read pointer sits at the out-of-band mark. All of the
// queries here are best-effort, the callers treat failures as "unknown".

//go:build freebsd || dragonfly || darwin
// +build freebsd dragonfly darwin

package netutil

import (
	"golang.org/x/sys/unix"
)

// SockType returns the SO_TYPE of fd (unix.SOCK_STREAM, unix.SOCK_DGRAM, ...).
func SockType(fd int) (int, error) {
	return unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TYPE)
}

// SockErr fetches and clears the pending SO_ERROR of fd.
func SockErr(fd int) (int, error) {
	return unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
}

// IsListening reports whether fd is a listening socket.
func IsListening(fd int) bool {
	v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ACCEPTCONN)
	return err == nil && v != 0
}

// IsConnected reports whether fd has a peer. A freshly created stream
// socket, and one whose connect attempt already failed, both report false.
func IsConnected(fd int) bool {
	_, err := unix.Getpeername(fd)
	return err == nil
}

// AtMark reports whether fd's read pointer is at the out-of-band mark.
func AtMark(fd int) bool {
	v, err := unix.IoctlGetInt(fd, unix.SIOCATMARK)
	return err == nil && v != 0
}

// OOBInline reports whether fd delivers out-of-band data in band.
func OOBInline(fd int) bool {
	v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_OOBINLINE)
	return err == nil && v != 0
}
