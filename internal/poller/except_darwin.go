// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

//go:build darwin
// +build darwin

package poller

import "golang.org/x/sys/unix"

// The host has a dedicated exception filter; priority data is observed
// out of band through it.
const (
	hasExceptFilter       = true
	exceptFilter    int16 = unix.EVFILT_EXCEPT
)

func exceptChange(reg *registration, flags uint16) unix.Kevent_t {
	kev := unix.Kevent_t{
		Ident:  keventIdent(reg.fd),
		Filter: unix.EVFILT_EXCEPT,
		Flags:  flags,
		Fflags: unix.NOTE_OOB,
	}
	SetUdata(&kev, uintptr(reg.gen))
	return kev
}
