// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

//go:build darwin
// +build darwin

package poller

import (
	"golang.org/x/sys/unix"

	"github.com/linuxfd/linuxfd/internal/sigset"
)

// Raw per-thread sigprocmask is not available to user code on this host,
// so masked waits are refused rather than silently unmasked.
func pushSigmask(mask *sigset.Set) (func(), error) {
	return nil, unix.ENOTSUP
}
