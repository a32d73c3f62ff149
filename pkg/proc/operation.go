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

	"github.com/pbinitiative/zenproc/pkg/proc/runtime"
	"github.com/pbinitiative/zenproc/pkg/storage"
)

// operation is the unit of work of one externally triggered engine call.
// All instance trees touched by the call are loaded into memory once,
// mutated there and written back through a single batch; returning an
// error before commit leaves storage untouched, which is how mapping
// failures roll the triggering operation back.
type operation struct {
	batch  storage.Batch
	states map[int64]*instanceState
}

func (engine *Engine) newOperation() *operation {
	return &operation{
		batch:  engine.persistence.NewBatch(),
		states: map[int64]*instanceState{},
	}
}

func (op *operation) register(st *instanceState) {
	op.states[st.instance.Key] = st
}

// loadState returns the in-operation view of an instance tree, reading it
// from storage only on first access.
func (engine *Engine) loadState(ctx context.Context, op *operation, processInstanceKey int64) (*instanceState, error) {
	if st, ok := op.states[processInstanceKey]; ok {
		return st, nil
	}

	instance, err := engine.persistence.FindProcessInstanceByKey(ctx, processInstanceKey)
	if err != nil {
		return nil, fmt.Errorf("failed to find process instance with key %d: %w", processInstanceKey, err)
	}
	executions, err := engine.persistence.FindProcessInstanceExecutions(ctx, processInstanceKey)
	if err != nil {
		return nil, fmt.Errorf("failed to find executions of process instance %d: %w", processInstanceKey, err)
	}
	if len(executions) == 0 {
		return nil, newEngineErrorf("process instance %d has no executions", processInstanceKey)
	}
	definition, err := engine.definitionByKey(ctx, executions[0].ProcessDefinitionKey)
	if err != nil {
		return nil, err
	}
	instance.Definition = definition

	st := newInstanceState(&instance, definition)
	for i := range executions {
		st.track(&executions[i])
	}

	subscriptions, err := engine.persistence.FindProcessInstanceSubscriptions(ctx, processInstanceKey, runtime.ActivityStateActive)
	if err != nil {
		return nil, fmt.Errorf("failed to find subscriptions of process instance %d: %w", processInstanceKey, err)
	}
	for i := range subscriptions {
		st.subscriptions = append(st.subscriptions, &subscriptions[i])
	}

	timers, err := engine.persistence.FindProcessInstanceTimers(ctx, processInstanceKey, runtime.TimerStateCreated)
	if err != nil {
		return nil, fmt.Errorf("failed to find timers of process instance %d: %w", processInstanceKey, err)
	}
	for i := range timers {
		st.timers = append(st.timers, &timers[i])
	}

	op.register(st)
	return st, nil
}

// commit persists every loaded instance state and flushes the batch.
func (engine *Engine) commit(ctx context.Context, op *operation) error {
	var errJoin error
	for _, st := range op.states {
		errJoin = errors.Join(errJoin, st.persist(ctx, engine, op.batch))
	}
	if errJoin != nil {
		op.batch.Clear(ctx)
		return errJoin
	}
	if err := op.batch.Flush(ctx); err != nil {
		return errors.Join(newEngineErrorf("failed to flush operation batch"), err)
	}
	return nil
}
