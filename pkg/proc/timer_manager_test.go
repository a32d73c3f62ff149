// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package proc

import (
	"context"
	"testing"
	"time"

	"github.com/pbinitiative/zenproc/pkg/proc/runtime"
	"github.com/stretchr/testify/assert"
)

func TestTimerManagerFiresDueTimer(t *testing.T) {
	processed := make(chan runtime.Timer, 1)
	tm := newTimerManager(
		func(ctx context.Context, timer runtime.Timer) { processed <- timer },
		func(ctx context.Context, end time.Time) ([]runtime.Timer, error) { return nil, nil },
		time.Minute,
	)
	tm.start()
	defer tm.stop()

	tm.registerTimer(runtime.Timer{Key: 1, DueAt: time.Now().Add(10 * time.Millisecond)})

	select {
	case fired := <-processed:
		assert.Equal(t, int64(1), fired.Key)
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}

	// the fired timer is no longer held
	assert.Eventually(t, func() bool {
		tm.mu.Lock()
		defer tm.mu.Unlock()
		return len(tm.waitingTimers) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestTimerManagerSkipsTimersBeyondPollWindow(t *testing.T) {
	tm := newTimerManager(
		func(ctx context.Context, timer runtime.Timer) {},
		func(ctx context.Context, end time.Time) ([]runtime.Timer, error) { return nil, nil },
		time.Minute,
	)
	tm.start()
	defer tm.stop()

	// due after the next poll, the poll loop will pick it up instead
	tm.registerTimer(runtime.Timer{Key: 2, DueAt: time.Now().Add(time.Hour)})

	tm.mu.Lock()
	assert.Empty(t, tm.waitingTimers)
	tm.mu.Unlock()
}

func TestTimerManagerDeduplicatesByKey(t *testing.T) {
	tm := newTimerManager(
		func(ctx context.Context, timer runtime.Timer) {},
		func(ctx context.Context, end time.Time) ([]runtime.Timer, error) { return nil, nil },
		time.Minute,
	)
	tm.start()
	defer tm.stop()

	timer := runtime.Timer{Key: 3, DueAt: time.Now().Add(time.Second)}
	tm.registerTimer(timer)
	tm.registerTimer(timer)

	tm.mu.Lock()
	assert.Len(t, tm.waitingTimers, 1)
	tm.mu.Unlock()

	// removal cancels the armed goroutine
	tm.removeTimer(timer)
	tm.mu.Lock()
	assert.Empty(t, tm.waitingTimers)
	tm.mu.Unlock()
}
