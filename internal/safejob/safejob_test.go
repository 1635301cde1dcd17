// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

package safejob_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/linuxfd/linuxfd/internal/safejob"
)

func TestExclusiveBlockJob(t *testing.T) {
	job := &safejob.ExclusiveBlockJob{}
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if job.Begin() {
				counter++
				job.End()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, counter)
	assert.False(t, job.Closed())

	job.Close()
	assert.True(t, job.Closed())
	assert.False(t, job.Begin(), "a closed job refuses entry")
}

func TestOnceJob(t *testing.T) {
	job := &safejob.OnceJob{}
	assert.True(t, job.Begin())
	assert.False(t, job.Begin(), "only the first entry wins")
	assert.True(t, job.Closed())
}
