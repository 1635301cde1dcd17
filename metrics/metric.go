// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

// Package metrics provides runtime monitoring data of the emulation layer,
// such as how often waits return without events or how many kernel events
// needed post-processing, which is a good tool for performance tuning.
package metrics

import (
	"fmt"
	"time"

	"go.uber.org/atomic"
)

// All metrics definitions.
const (
	// Polling-set metrics
	PollWaits = iota
	PollWaitTimeouts
	PollEventsRaw
	PollEventsDelivered
	PollEventsSuppressed
	PollCtlAdds
	PollCtlMods
	PollCtlDels
	PollStaleRegistrations

	// Timer metrics
	TimerArms
	TimerDisarms
	TimerUpgrades
	TimerReads
	TimerReadsEmpty
	TimerHelperDeliveries

	// Descriptor routing metrics
	RoutedCloses
	RoutedReads
	RoutedWrites

	Max
)

var metrics [Max]atomic.Uint64

// Add metrics counter.
func Add(name int, delta uint64) {
	if name >= Max {
		return
	}
	metrics[name].Add(delta)
}

// Get one metric counter.
func Get(name int) uint64 {
	if name >= Max {
		return 0
	}
	return metrics[name].Load()
}

// GetAll get all metrics.
func GetAll() [Max]uint64 {
	var m [Max]uint64
	for i := range metrics {
		m[i] = metrics[i].Load()
	}
	return m
}

// ShowMetricsOfPeriod shows metric info of duration d from now on.
// It will block d duration, and then prints metrics info.
func ShowMetricsOfPeriod(d time.Duration) {
	old := GetAll()
	<-time.After(d)
	cur := GetAll()
	var m [Max]uint64
	for i := range metrics {
		m[i] = cur[i] - old[i]
	}
	showAll(m)
}

// ShowMetrics shows metric info in console.
func ShowMetrics() {
	showAll(GetAll())
}

func showAll(m [Max]uint64) {
	fmt.Println("######### linuxfd metrics (", time.Now().Format("2006-01-02 15:04:05"), ") ###########")
	showPollMetrics(m)
	showTimerMetrics(m)
	fmt.Printf("%-59s: %d\n", "# number of routed close calls", m[RoutedCloses])
	fmt.Printf("%-59s: %d\n", "# number of routed read calls", m[RoutedReads])
	fmt.Printf("%-59s: %d\n", "# number of routed write calls", m[RoutedWrites])
	fmt.Printf("\n")
}

func showPollMetrics(m [Max]uint64) {
	fmt.Printf("%-59s: %d\n", "# poll - number of wait calls", m[PollWaits])
	fmt.Printf("%-59s: %d\n", "# poll - number of waits that timed out", m[PollWaitTimeouts])
	fmt.Printf("%-59s: %d\n", "# poll - number of raw kernel events", m[PollEventsRaw])
	fmt.Printf("%-59s: %d\n", "# poll - number of events delivered", m[PollEventsDelivered])
	fmt.Printf("%-59s: %d\n", "# poll - number of events suppressed", m[PollEventsSuppressed])
	fmt.Printf("%-59s: %d\n", "# poll - number of ADD operations", m[PollCtlAdds])
	fmt.Printf("%-59s: %d\n", "# poll - number of MOD operations", m[PollCtlMods])
	fmt.Printf("%-59s: %d\n", "# poll - number of DEL operations", m[PollCtlDels])
	fmt.Printf("%-59s: %d\n", "# poll - number of stale registrations detected", m[PollStaleRegistrations])
}

func showTimerMetrics(m [Max]uint64) {
	fmt.Printf("%-59s: %d\n", "# timer - number of arm requests", m[TimerArms])
	fmt.Printf("%-59s: %d\n", "# timer - number of disarm requests", m[TimerDisarms])
	fmt.Printf("%-59s: %d\n", "# timer - number of simple-to-complex upgrades", m[TimerUpgrades])
	fmt.Printf("%-59s: %d\n", "# timer - number of read calls", m[TimerReads])
	fmt.Printf("%-59s: %d\n", "# timer - number of empty reads", m[TimerReadsEmpty])
	fmt.Printf("%-59s: %d\n", "# timer - number of helper-thread deliveries", m[TimerHelperDeliveries])
}
