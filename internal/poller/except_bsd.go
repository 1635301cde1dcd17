// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

//go:build freebsd || dragonfly
// +build freebsd dragonfly

package poller

import "golang.org/x/sys/unix"

// No exception filter on this host; priority data is detected in band via
// SO_OOBINLINE and SIOCATMARK on the read path.
const (
	hasExceptFilter       = false
	exceptFilter    int16 = 0
)

func exceptChange(reg *registration, flags uint16) unix.Kevent_t {
	// Unreachable: filtersFor never selects the exception filter here.
	return unix.Kevent_t{}
}
