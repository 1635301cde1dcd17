// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

//go:build dragonfly
// +build dragonfly

package timerfd

// The timer filter counts milliseconds on this host; round partial
// milliseconds up so a timer never fires early.
func timerEvent(micros int64) (fflags uint32, data int64) {
	return 0, (micros + 999) / 1000
}
