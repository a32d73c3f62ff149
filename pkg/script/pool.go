// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package script

import (
	"context"
	"sync"
	"time"
)

type Runner interface {
	Runner()
}

type RunnerFactory interface {
	NewRunner() Runner
}

// RunnerPool keeps a bounded set of script VMs; goja runtimes are not safe
// for concurrent use, so every evaluation checks a runner out and back in.
type RunnerPool struct {
	pool               chan Runner
	runnerFactory      RunnerFactory
	activeRunnersCount int
	activeRunnersMu    *sync.Mutex
	maxVmPoolSize      int // max amount of active runners
	minVmPoolSize      int // min amount of active runners
}

func NewRunnerPool(ctx context.Context, runnerFactory RunnerFactory, maxVmPoolSize int, minVmPoolSize int) *RunnerPool {
	if maxVmPoolSize < minVmPoolSize {
		panic("vm pool min size is smaller than vm pool max size")
	}

	runtime := RunnerPool{
		pool:               make(chan Runner, maxVmPoolSize),
		runnerFactory:      runnerFactory,
		activeRunnersCount: 0,
		activeRunnersMu:    &sync.Mutex{},
		maxVmPoolSize:      maxVmPoolSize,
		minVmPoolSize:      minVmPoolSize,
	}

	// start min amount of runners
	for i := 0; i < minVmPoolSize; i++ {
		runtime.activeRunnersMu.Lock()
		runtime.pool <- runtime.runnerFactory.NewRunner()
		runtime.activeRunnersCount++
		runtime.activeRunnersMu.Unlock()
	}

	// shrink back to min size every 10 minutes when idle
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				for len(runtime.pool) > minVmPoolSize {
					runtime.activeRunnersMu.Lock()
					<-runtime.pool
					runtime.activeRunnersCount--
					runtime.activeRunnersMu.Unlock()
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return &runtime
}

func (r *RunnerPool) GetRunnerFromPool() Runner {
	var runner Runner
	select {
	case runner = <-r.pool:
	default:
		r.activeRunnersMu.Lock()
		if r.activeRunnersCount < r.maxVmPoolSize {
			runner = r.runnerFactory.NewRunner()
			r.activeRunnersCount++
		}
		r.activeRunnersMu.Unlock()
		if runner == nil {
			runner = <-r.pool
		}
	}
	return runner
}

func (r *RunnerPool) ReturnRunnerToPool(runner Runner) {
	select {
	case r.pool <- runner:
	default:
		// delete runner if pool is full
		r.activeRunnersMu.Lock()
		r.activeRunnersCount--
		r.activeRunnersMu.Unlock()
	}
}
