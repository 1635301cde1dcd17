// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

// Package linuxfd emulates Linux's readiness-notification descriptor
// families (epoll, timerfd, signalfd, eventfd) on kernels that expose the
// BSD kqueue multiplexer instead. The emulation is source compatible:
// descriptors are real kernel descriptors, the event mask bits carry
// Linux's numeric values, and errors come back as plain unix.Errno values
// so callers compare them the way they compare errno.
//
// Every emulated descriptor is the file descriptor of a private kqueue,
// which is what lets the descriptors nest in each other and register in
// foreign polling mechanisms. Close, Read and Write route descriptors
// they recognise to the owning context and fall through to the host
// syscalls for everything else.
package linuxfd
