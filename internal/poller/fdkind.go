// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

//go:build freebsd || dragonfly || darwin
// +build freebsd dragonfly darwin

package poller

import (
	"golang.org/x/sys/unix"

	"github.com/linuxfd/linuxfd/internal/netutil"
	"github.com/linuxfd/linuxfd/internal/registry"
)

// fdKind records what sits behind a registered descriptor. Linux reports
// readiness with per-kind conventions (a listener never reports writable,
// a fifo with a dead writer hangs up, an unconnected stream socket hides
// its first spurious write event), so the polling set classifies every
// target once, at registration time.
type fdKind int

const (
	kindOther fdKind = iota
	kindStream
	kindDgram
	kindListener
	kindFifo
	kindPollSet
	kindTimer
	kindSignal
	kindCounter
)

// emulated reports whether the target is itself one of our kqueue-backed
// contexts. Those are observed purely as readability watches.
func (k fdKind) emulated() bool {
	return k == kindPollSet || k == kindTimer || k == kindSignal || k == kindCounter
}

// identity is the (device, inode) pair captured at registration time.
// Descriptor numbers are recycled by the kernel; the pair tells a live
// registration from one whose descriptor was closed and reused.
type identity struct {
	dev uint64
	ino uint64
}

// classify stats fd and maps it to a kind. Targets a polling set cannot
// watch (regular files, directories) are rejected with EINVAL; a closed
// descriptor reports EBADF.
func classify(fd int) (fdKind, identity, error) {
	if k, ok := registry.LookupKind(fd); ok {
		var kind fdKind
		switch k {
		case registry.KindPollSet:
			kind = kindPollSet
		case registry.KindTimer:
			kind = kindTimer
		case registry.KindSignal:
			kind = kindSignal
		default:
			kind = kindCounter
		}
		return kind, identity{}, nil
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return kindOther, identity{}, unix.EBADF
	}
	ident := identity{dev: uint64(st.Dev), ino: uint64(st.Ino)}

	switch uint32(st.Mode) & unix.S_IFMT {
	case unix.S_IFSOCK:
		typ, err := netutil.SockType(fd)
		if err != nil {
			return kindOther, ident, nil
		}
		if typ == unix.SOCK_STREAM || typ == unix.SOCK_SEQPACKET {
			if netutil.IsListening(fd) {
				return kindListener, ident, nil
			}
			return kindStream, ident, nil
		}
		return kindDgram, ident, nil
	case unix.S_IFIFO:
		return kindFifo, ident, nil
	case unix.S_IFCHR:
		return kindOther, ident, nil
	case unix.S_IFREG, unix.S_IFDIR:
		return kindOther, ident, unix.EINVAL
	default:
		return kindOther, ident, nil
	}
}

// sameFile reports whether fd still refers to the file a registration of
// the given kind captured. Emulated contexts are tracked by the registry,
// not by inode; sockets on some hosts report a zero identity from fstat,
// for which the open-descriptor-of-the-same-class check is the best
// available.
func sameFile(fd int, kind fdKind, ident identity) bool {
	if kind.emulated() {
		cur, _, err := classify(fd)
		return err == nil && cur == kind
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return false
	}
	if ident == (identity{}) {
		cur, _, err := classify(fd)
		return err == nil && cur == kind
	}
	return uint64(st.Dev) == ident.dev && uint64(st.Ino) == ident.ino
}
