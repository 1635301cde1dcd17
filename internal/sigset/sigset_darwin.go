// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

//go:build darwin
// +build darwin

// Package sigset mirrors the host's sigset_t so signal sets can be handed
// to the raw sigprocmask and sigwait syscalls.
package sigset

// Set is the host's sigset_t: 32 signals in one word.
type Set struct {
	Val [1]uint32
}

// Max is the highest signal number a Set can hold.
const Max = 32

// Fill sets every signal in s.
func (s *Set) Fill() {
	s.Val[0] = ^uint32(0)
}

// Add adds sig to s.
func (s *Set) Add(sig int) {
	s.Val[0] |= 1 << (uint(sig-1) % 32)
}

// Has reports whether s contains sig.
func (s *Set) Has(sig int) bool {
	return s.Val[0]&(1<<(uint(sig-1)%32)) != 0
}
