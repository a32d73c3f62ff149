// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package proc

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zenproc/pkg/proc/runtime"
)

// processTimerFunc executes the due timer and continues the owning
// process instance
type processTimerFunc func(ctx context.Context, timer runtime.Timer)

// pollTimerFunc must return the timers in created state due before end;
// timerManager de-duplicates against the timers it is already holding
type pollTimerFunc func(ctx context.Context, end time.Time) ([]runtime.Timer, error)

type waitingTimer struct {
	cancel context.CancelFunc
	timer  runtime.Timer
}

type timerManager struct {
	pollTimerDelay   time.Duration
	nextPoll         time.Time
	mu               sync.Mutex
	ctx              context.Context
	ctxCancelFunc    context.CancelFunc
	due              chan runtime.Timer
	logger           hclog.Logger
	processTimerFunc processTimerFunc
	pollTimerFunc    pollTimerFunc
	waitingTimers    []waitingTimer
}

func newTimerManager(processTimerFunc processTimerFunc, pollTimerFunc pollTimerFunc, pollTimerDelay time.Duration) *timerManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &timerManager{
		ctx:              ctx,
		ctxCancelFunc:    cancel,
		pollTimerDelay:   pollTimerDelay,
		due:              make(chan runtime.Timer),
		pollTimerFunc:    pollTimerFunc,
		processTimerFunc: processTimerFunc,
		logger:           hclog.Default().Named("timer-manager"),
	}
}

// registerTimer arms the timer when its due date falls into the current
// poll cycle; later timers are picked up by the poll loop.
func (tm *timerManager) registerTimer(timer runtime.Timer) {
	if timer.DueAt.After(tm.nextPoll) {
		return
	}
	tm.addWaitingTimer(timer)
}

func (tm *timerManager) removeTimer(timer runtime.Timer) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.waitingTimers = slices.DeleteFunc(tm.waitingTimers, func(wt waitingTimer) bool {
		if wt.timer.Key == timer.Key {
			wt.cancel()
			return true
		}
		return false
	})
}

func (tm *timerManager) addWaitingTimer(timer runtime.Timer) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for _, wt := range tm.waitingTimers {
		if wt.timer.Key == timer.Key {
			return
		}
	}
	timerCtx, timerCancel := context.WithCancel(context.Background())
	tm.waitingTimers = append(tm.waitingTimers, waitingTimer{
		cancel: timerCancel,
		timer:  timer,
	})
	go func() {
		t := time.NewTimer(time.Until(timer.DueAt))
		defer t.Stop()
		select {
		case <-t.C:
			tm.due <- timer
		case <-timerCtx.Done():
		case <-tm.ctx.Done():
		}
	}()
}

func (tm *timerManager) run() {
	pollTicker := time.NewTicker(tm.pollTimerDelay)
	defer pollTicker.Stop()
	for {
		select {
		case <-tm.ctx.Done():
			return
		case timer := <-tm.due:
			tm.processTimerFunc(context.Background(), timer)
			tm.mu.Lock()
			tm.waitingTimers = slices.DeleteFunc(tm.waitingTimers, func(wt waitingTimer) bool {
				return wt.timer.Key == timer.Key
			})
			tm.mu.Unlock()
		case t := <-pollTicker.C:
			tm.nextPoll = t.Add(tm.pollTimerDelay)
			dueTimers, err := tm.pollTimerFunc(tm.ctx, tm.nextPoll)
			if err != nil {
				tm.logger.Error(fmt.Sprintf("Failed to poll timers for processing: %s", err))
				continue
			}
			for _, dueTimer := range dueTimers {
				tm.addWaitingTimer(dueTimer)
			}
		}
	}
}

func (tm *timerManager) start() {
	tm.nextPoll = time.Now().Add(tm.pollTimerDelay)
	go tm.run()
}

func (tm *timerManager) stop() {
	tm.ctxCancelFunc()
}
