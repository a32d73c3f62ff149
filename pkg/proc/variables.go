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
	"sort"

	"github.com/pbinitiative/zenproc/pkg/proc/model"
	"github.com/pbinitiative/zenproc/pkg/proc/runtime"
)

// SetVariables writes the given variables through the scope of the given
// execution and synchronously runs the conditional evaluator over the
// produced variable events. One atomic operation.
func (engine *Engine) SetVariables(ctx context.Context, executionKey int64, variables map[string]interface{}) error {
	return engine.mutateVariables(ctx, executionKey, variables, false)
}

// SetTransientVariables behaves like SetVariables with values visible for
// the remainder of the current dispatch cycle only: they trigger
// conditions but are never persisted and never take part in copy-all
// mapping operations.
func (engine *Engine) SetTransientVariables(ctx context.Context, executionKey int64, variables map[string]interface{}) error {
	return engine.mutateVariables(ctx, executionKey, variables, true)
}

func (engine *Engine) mutateVariables(ctx context.Context, executionKey int64, variables map[string]interface{}, transient bool) error {
	ctx, span := engine.tracer.Start(ctx, fmt.Sprintf("set-variables:%d", executionKey))
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
	if err := engine.setVariables(ctx, op, st, execution, variables, transient); err != nil {
		return err
	}
	return engine.commit(ctx, op)
}

// DeleteVariable removes the variable from the scope of the given
// execution and dispatches a delete event. Delete events only trigger
// subscriptions that requested them explicitly.
func (engine *Engine) DeleteVariable(ctx context.Context, executionKey int64, name string) error {
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
	if err := engine.removeVariable(ctx, op, st, execution, name); err != nil {
		return err
	}
	return engine.commit(ctx, op)
}

// Variables returns the merged variable view visible from the given
// execution, inner scopes shadowing outer ones.
func (engine *Engine) Variables(ctx context.Context, executionKey int64) (map[string]interface{}, error) {
	op := engine.newOperation()
	stored, err := engine.persistence.FindExecutionByKey(ctx, executionKey)
	if err != nil {
		return nil, errors.Join(newEngineErrorf("failed to find execution with key: %d", executionKey), err)
	}
	st, err := engine.loadState(ctx, op, stored.ProcessInstanceKey)
	if err != nil {
		return nil, err
	}
	execution := st.execution(executionKey)
	if execution == nil {
		return nil, &StateError{Key: executionKey, State: "DELETED", Msg: "execution does not exist"}
	}
	return st.visibleVariables(execution, false), nil
}

// setVariables applies the writes in name order through the nearest scope
// ancestor and queues one variable event per name, tagged with the
// originating execution for subscription matching.
func (engine *Engine) setVariables(ctx context.Context, op *operation, st *instanceState, execution *runtime.Execution, variables map[string]interface{}, transient bool) error {
	if len(variables) == 0 {
		return nil
	}
	scope := st.scopeOf(execution)
	if scope == nil {
		return newEngineErrorf("execution %d has no variable scope", execution.Key)
	}
	names := make([]string, 0, len(variables))
	for name := range variables {
		names = append(names, name)
	}
	sort.Strings(names)

	events := make([]runtime.VariableEvent, 0, len(names))
	for _, name := range names {
		kind := model.VariableEventCreate
		if _, ok := scope.Variables[name]; ok {
			kind = model.VariableEventUpdate
		}
		scope.Variables[name] = variables[name]
		if transient {
			scope.SetTransient(name)
		}
		events = append(events, runtime.VariableEvent{
			Name:               name,
			Kind:               kind,
			OriginExecutionKey: execution.Key,
		})
	}
	return engine.dispatchVariableEvents(ctx, op, st, events)
}

func (engine *Engine) removeVariable(ctx context.Context, op *operation, st *instanceState, execution *runtime.Execution, name string) error {
	scope := st.scopeOf(execution)
	if scope == nil {
		return newEngineErrorf("execution %d has no variable scope", execution.Key)
	}
	if _, ok := scope.Variables[name]; !ok {
		return nil
	}
	delete(scope.Variables, name)
	return engine.dispatchVariableEvents(ctx, op, st, []runtime.VariableEvent{{
		Name:               name,
		Kind:               model.VariableEventDelete,
		OriginExecutionKey: execution.Key,
	}})
}

// dispatchVariableEvents queues the events and flushes the queue unless a
// scope-entry sequence is in progress. Definitions without conditional
// events skip the bookkeeping entirely.
func (engine *Engine) dispatchVariableEvents(ctx context.Context, op *operation, st *instanceState, events []runtime.VariableEvent) error {
	if !st.definition.Definitions.HasConditionalEvents {
		return nil
	}
	st.queue = append(st.queue, events...)
	if st.entryDepth > 0 {
		return nil
	}
	return engine.flushVariableEvents(ctx, op, st)
}

// endScopeEntry closes one scope-entry sequence; the outermost close
// flushes the queued variable events in emission order.
func (engine *Engine) endScopeEntry(ctx context.Context, op *operation, st *instanceState) error {
	st.entryDepth--
	if st.entryDepth > 0 {
		return nil
	}
	return engine.flushVariableEvents(ctx, op, st)
}
