// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package proc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pbinitiative/zenproc/pkg/proc/model"
	"github.com/pbinitiative/zenproc/pkg/proc/runtime"
)

type enteredActivity struct {
	execution     *runtime.Execution
	activity      *model.Activity
	subscriptions []*runtime.EventSubscription
}

// enterScopeChildren starts all child activities of a scope. Executions
// and their boundary subscriptions are created for every child first, the
// behaviors run second; a behavior completing synchronously therefore
// never observes a sibling that does not exist yet and cannot complete
// the scope prematurely.
func (engine *Engine) enterScopeChildren(ctx context.Context, op *operation, st *instanceState, scope *runtime.Execution, activities []*model.Activity) error {
	concurrent := len(activities) > 1
	entered := make([]enteredActivity, 0, len(activities))
	for _, activity := range activities {
		execution, subscriptions, err := engine.createActivityExecution(ctx, st, scope, activity, concurrent)
		if err != nil {
			return err
		}
		entered = append(entered, enteredActivity{execution: execution, activity: activity, subscriptions: subscriptions})
	}
	for _, entry := range entered {
		if err := engine.runActivityBehavior(ctx, op, st, entry.execution, entry.activity); err != nil {
			return err
		}
		if err := engine.evaluateSubscriptionsOnce(ctx, op, st, entry.subscriptions); err != nil {
			return err
		}
	}
	return nil
}

// createActivityExecution allocates the execution node and registers the
// activity's boundary events with the enclosing scope.
func (engine *Engine) createActivityExecution(ctx context.Context, st *instanceState, parent *runtime.Execution, activity *model.Activity, concurrent bool) (*runtime.Execution, []*runtime.EventSubscription, error) {
	isScope := activity.Type == model.ElementTypeScope ||
		activity.Type == model.ElementTypeCallActivity ||
		activity.MultiInstance != nil
	execution := &runtime.Execution{
		Key:                  engine.generateKey(),
		ProcessInstanceKey:   st.instance.Key,
		ProcessDefinitionKey: st.definition.Key,
		ParentKey:            parent.Key,
		ElementId:            activity.Id,
		State:                runtime.ActivityStateActive,
		IsScope:              isScope,
		IsConcurrent:         concurrent,
		Suspended:            parent.Suspended,
		CreatedAt:            time.Now(),
	}
	if isScope {
		execution.Variables = map[string]interface{}{}
	}
	st.track(execution)

	owningScope := st.scopeOf(parent)
	var subscriptions []*runtime.EventSubscription
	for _, eventDef := range activity.Boundary {
		if eventDef.Type == model.EventTypeTimer {
			if _, err := engine.createTimer(ctx, st, owningScope, execution, eventDef); err != nil {
				return nil, nil, err
			}
			continue
		}
		subscription, err := engine.subscribeEvent(ctx, st, owningScope, execution, eventDef)
		if err != nil {
			return nil, nil, err
		}
		subscriptions = append(subscriptions, subscription)
	}
	return execution, subscriptions, nil
}

// runActivityBehavior dispatches over the closed set of activity kinds.
func (engine *Engine) runActivityBehavior(ctx context.Context, op *operation, st *instanceState, execution *runtime.Execution, activity *model.Activity) error {
	if activity.MultiInstance != nil {
		return engine.enterMultiInstance(ctx, op, st, execution, activity)
	}
	switch activity.Type {
	case model.ElementTypeTask:
		return engine.invokeTaskHandler(ctx, op, st, execution, activity)
	case model.ElementTypeScope:
		return engine.enterScope(ctx, op, st, execution, activity)
	case model.ElementTypeCallActivity:
		return engine.enterCallActivity(ctx, op, st, execution, activity)
	default:
		panic(fmt.Sprintf("[invariant check] unsupported element: id=%s, type=%s", activity.Id, activity.Type))
	}
}

func (engine *Engine) enterScope(ctx context.Context, op *operation, st *instanceState, execution *runtime.Execution, activity *model.Activity) error {
	st.beginScopeEntry()
	for _, eventDef := range activity.Events {
		if eventDef.Type == model.EventTypeTimer {
			if _, err := engine.createTimer(ctx, st, execution, execution, eventDef); err != nil {
				return err
			}
			continue
		}
		if _, err := engine.subscribeEvent(ctx, st, execution, execution, eventDef); err != nil {
			return err
		}
	}
	if activity.IoMapping.PropagateAllParentVariables {
		parentScope := st.scopeOf(st.execution(execution.ParentKey))
		if parentScope != nil {
			if err := engine.setVariables(ctx, op, st, execution, st.visibleVariables(parentScope, false), false); err != nil {
				return err
			}
		}
	}
	if err := engine.enterScopeChildren(ctx, op, st, execution, activity.Children); err != nil {
		return err
	}
	if err := engine.endScopeEntry(ctx, op, st); err != nil {
		return err
	}
	if err := engine.evaluateScopeEntry(ctx, op, st, execution); err != nil {
		return err
	}
	return engine.tryCompleteScope(ctx, op, st, execution)
}

// CompleteActivity finishes a waiting task execution with the given result
// variables; the externally driven counterpart of registered task handlers.
func (engine *Engine) CompleteActivity(ctx context.Context, executionKey int64, variables map[string]interface{}) error {
	ctx, span := engine.tracer.Start(ctx, fmt.Sprintf("complete-activity:%d", executionKey))
	defer span.End()

	op := engine.newOperation()
	stored, err := engine.persistence.FindExecutionByKey(ctx, executionKey)
	if err != nil {
		return errors.Join(newEngineErrorf("failed to find execution with key: %d", executionKey), err)
	}
	st, err := engine.loadState(ctx, op, stored.ProcessInstanceKey)
	if err != nil {
		return err
	}
	execution := st.execution(executionKey)
	if execution == nil {
		return &StateError{Key: executionKey, State: "DELETED", Msg: "execution does not exist"}
	}
	if err := st.checkMutable(execution); err != nil {
		return err
	}
	if err := engine.setVariables(ctx, op, st, execution, variables, false); err != nil {
		return err
	}
	if err := engine.completeExecution(ctx, op, st, execution); err != nil {
		return err
	}
	return engine.commit(ctx, op)
}

// FailActivity marks a waiting task execution as failed and propagates the
// error code through boundary error subscriptions up the scope chain.
func (engine *Engine) FailActivity(ctx context.Context, executionKey int64, errorCode string, variables map[string]interface{}) error {
	ctx, span := engine.tracer.Start(ctx, fmt.Sprintf("fail-activity:%d", executionKey))
	defer span.End()

	op := engine.newOperation()
	stored, err := engine.persistence.FindExecutionByKey(ctx, executionKey)
	if err != nil {
		return errors.Join(newEngineErrorf("failed to find execution with key: %d", executionKey), err)
	}
	st, err := engine.loadState(ctx, op, stored.ProcessInstanceKey)
	if err != nil {
		return err
	}
	execution := st.execution(executionKey)
	if execution == nil {
		return &StateError{Key: executionKey, State: "DELETED", Msg: "execution does not exist"}
	}
	if err := st.checkMutable(execution); err != nil {
		return err
	}
	if err := engine.setVariables(ctx, op, st, execution, variables, false); err != nil {
		return err
	}
	if err := engine.failExecution(ctx, op, st, execution, errorCode); err != nil {
		return err
	}
	return engine.commit(ctx, op)
}

// failExecution walks the scope chain upward looking for an error
// subscription catching the code; an uncaught error fails the instance
// and crosses the call boundary into the calling instance.
func (engine *Engine) failExecution(ctx context.Context, op *operation, st *instanceState, execution *runtime.Execution, errorCode string) error {
	catching := engine.findErrorSubscription(st, execution, errorCode)
	execution.State = runtime.ActivityStateFailed
	if catching != nil {
		catching.State = runtime.ActivityStateCompleted
		engine.releaseGuards(st, execution)
		return engine.fireSubscriptionHandler(ctx, op, st, catching, map[string]interface{}{"errorCode": errorCode})
	}
	engine.releaseGuards(st, execution)
	if execution.IsRoot() {
		return engine.failInstance(ctx, op, st, errorCode)
	}
	parent := st.execution(execution.ParentKey)
	if parent == nil {
		return nil
	}
	return engine.failExecution(ctx, op, st, parent, errorCode)
}

func (engine *Engine) findErrorSubscription(st *instanceState, execution *runtime.Execution, errorCode string) *runtime.EventSubscription {
	for _, subscription := range st.subscriptionsGuarding(execution.Key) {
		if subscription.Type != model.EventTypeError {
			continue
		}
		if subscription.EventName == "" || subscription.EventName == errorCode {
			return subscription
		}
	}
	return nil
}

func (engine *Engine) failInstance(ctx context.Context, op *operation, st *instanceState, errorCode string) error {
	st.instance.State = runtime.ActivityStateFailed
	engine.metrics.ProcessesEnded.Add(ctx, 1)
	engine.metrics.ProcessesRunning.Add(ctx, -1)

	root := st.root()
	if root.SuperExecutionKey == 0 {
		return nil
	}
	callerSt, err := engine.loadState(ctx, op, root.SuperInstanceKey)
	if err != nil {
		return err
	}
	callExecution := callerSt.execution(root.SuperExecutionKey)
	if callExecution == nil || callExecution.IsEnded() {
		return nil
	}
	if err := engine.leaveCalledInstance(ctx, op, callerSt, callExecution, st, true); err != nil {
		return err
	}
	return engine.failExecution(ctx, op, callerSt, callExecution, errorCode)
}
