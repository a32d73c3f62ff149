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
	"time"

	"github.com/senseyeio/duration"

	"github.com/pbinitiative/zenproc/pkg/proc/model"
	"github.com/pbinitiative/zenproc/pkg/proc/runtime"
)

// createTimer schedules a timer event definition for the execution it
// guards; the timer row is committed with the operation batch and only
// handed to the timer manager after a successful flush.
func (engine *Engine) createTimer(ctx context.Context, st *instanceState, owningScope *runtime.Execution, guarded *runtime.Execution, eventDef *model.EventDefinition) (*runtime.Timer, error) {
	durationVal, err := duration.ParseISO8601(eventDef.Duration)
	if err != nil {
		return nil, &EngineError{Msg: fmt.Sprintf("Error parsing 'duration' value from event with ID=%s. Error:%s", eventDef.Id, err.Error())}
	}
	now := time.Now()
	dueAt := durationVal.Shift(now)
	timer := &runtime.Timer{
		Key:                 engine.generateKey(),
		ElementId:           eventDef.Id,
		ProcessInstanceKey:  st.instance.Key,
		ExecutionKey:        owningScope.Key,
		GuardedExecutionKey: guarded.Key,
		Interrupting:        eventDef.Interrupting,
		TimerState:          runtime.TimerStateCreated,
		CreatedAt:           now,
		DueAt:               dueAt,
		Duration:            dueAt.Sub(now),
	}
	st.timers = append(st.timers, timer)
	return timer, nil
}

// processTimer is the timer manager callback; it fires the timer through
// the same trigger path conditional subscriptions use.
func (engine *Engine) processTimer(ctx context.Context, timer runtime.Timer) {
	ctx, span := engine.tracer.Start(ctx, fmt.Sprintf("timer:%d", timer.Key))
	defer span.End()

	op := engine.newOperation()
	st, err := engine.loadState(ctx, op, timer.ProcessInstanceKey)
	if err != nil {
		engine.logger.Error(fmt.Sprintf("failed to load process instance %d for timer %d: %s", timer.ProcessInstanceKey, timer.Key, err))
		return
	}
	var current *runtime.Timer
	for _, candidate := range st.timers {
		if candidate.Key == timer.Key {
			current = candidate
			break
		}
	}
	if current == nil || current.TimerState != runtime.TimerStateCreated {
		return
	}
	current.TimerState = runtime.TimerStateTriggered

	if err := engine.triggerTimer(ctx, op, st, current); err != nil {
		engine.logger.Error(fmt.Sprintf("failed to trigger timer %d: %s", timer.Key, err))
		return
	}
	if err := engine.commit(ctx, op); err != nil {
		engine.logger.Error(fmt.Sprintf("failed to commit timer %d: %s", timer.Key, err))
	}
}

func (engine *Engine) triggerTimer(ctx context.Context, op *operation, st *instanceState, timer *runtime.Timer) error {
	engine.metrics.TimersTriggered.Add(ctx, 1)
	owning := st.execution(timer.ExecutionKey)
	if owning == nil || owning.IsEnded() {
		return nil
	}
	if timer.Interrupting {
		guarded := st.execution(timer.GuardedExecutionKey)
		if guarded != nil && !guarded.IsEnded() {
			if guarded.Key == owning.Key {
				// scope owned timer: cancel the scope's content, the scope
				// itself hosts the handler
				children := st.children(owning.Key)
				for i := len(children) - 1; i >= 0; i-- {
					if err := engine.terminateExecution(ctx, op, st, children[i]); err != nil {
						return err
					}
				}
			} else if err := engine.terminateExecution(ctx, op, st, guarded); err != nil {
				return err
			}
		}
	}

	eventDef := st.definition.Definitions.FindEventDefinition(timer.ElementId)
	st.beginScopeEntry()
	if eventDef != nil && eventDef.Handler != nil {
		execution, boundary, err := engine.createActivityExecution(ctx, st, owning, eventDef.Handler, true)
		if err != nil {
			return err
		}
		if err := engine.runActivityBehavior(ctx, op, st, execution, eventDef.Handler); err != nil {
			return err
		}
		if err := engine.evaluateSubscriptionsOnce(ctx, op, st, boundary); err != nil {
			return err
		}
	}
	if err := engine.endScopeEntry(ctx, op, st); err != nil {
		return err
	}
	return engine.tryCompleteScope(ctx, op, st, owning)
}

func (engine *Engine) pollTimers(ctx context.Context, end time.Time) ([]runtime.Timer, error) {
	return engine.persistence.FindTimersTo(ctx, end)
}
