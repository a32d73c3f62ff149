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

	"github.com/pbinitiative/zenproc/pkg/proc/model"
	"github.com/pbinitiative/zenproc/pkg/proc/runtime"
)

// enterMultiInstance spawns one inner execution per loop instance under the
// multi-instance wrapper scope. The structural variables nrOfInstances and
// nrOfActiveInstances are written into the wrapper, loopCounter into each
// inner scope; every write raises a regular variable event and is therefore
// observable by conditional subscriptions.
func (engine *Engine) enterMultiInstance(ctx context.Context, op *operation, st *instanceState, execution *runtime.Execution, activity *model.Activity) error {
	mi := activity.MultiInstance
	cardinality := mi.Cardinality
	var items []interface{}
	if mi.InputCollectionExpression != "" {
		value, err := engine.evaluateExpression(mi.InputCollectionExpression, st.visibleVariables(execution, true))
		if err != nil {
			return &ExpressionEvaluationError{
				Msg: fmt.Sprintf("failed to evaluate input collection of activity %s", activity.Id),
				Err: err,
			}
		}
		collection, ok := value.([]interface{})
		if !ok {
			return newEngineErrorf("input collection of activity %s did not evaluate to a list, got %T", activity.Id, value)
		}
		items = collection
		cardinality = len(collection)
	}

	st.beginScopeEntry()
	if err := engine.setVariables(ctx, op, st, execution, map[string]interface{}{"nrOfInstances": cardinality}, false); err != nil {
		return err
	}
	if err := engine.setVariables(ctx, op, st, execution, map[string]interface{}{"nrOfActiveInstances": cardinality}, false); err != nil {
		return err
	}

	// the inner behavior is the activity itself, minus the loop
	inner := *activity
	inner.MultiInstance = nil

	concurrent := cardinality > 1
	entered := make([]*runtime.Execution, 0, cardinality)
	for i := 0; i < cardinality; i++ {
		itemExecution := &runtime.Execution{
			Key:                  engine.generateKey(),
			ProcessInstanceKey:   st.instance.Key,
			ProcessDefinitionKey: st.definition.Key,
			ParentKey:            execution.Key,
			ElementId:            activity.Id,
			State:                runtime.ActivityStateActive,
			IsScope:              true,
			IsConcurrent:         concurrent,
			Suspended:            execution.Suspended,
			CreatedAt:            time.Now(),
			Variables:            map[string]interface{}{},
		}
		st.track(itemExecution)
		itemVars := map[string]interface{}{"loopCounter": i + 1}
		if items != nil && mi.InputElementName != "" {
			itemVars[mi.InputElementName] = items[i]
		}
		if err := engine.setVariables(ctx, op, st, itemExecution, itemVars, false); err != nil {
			return err
		}
		entered = append(entered, itemExecution)
	}
	for _, itemExecution := range entered {
		if err := engine.runActivityBehavior(ctx, op, st, itemExecution, &inner); err != nil {
			return err
		}
	}
	if err := engine.endScopeEntry(ctx, op, st); err != nil {
		return err
	}
	return engine.tryCompleteScope(ctx, op, st, execution)
}

// noteMultiInstanceItemEnd decrements nrOfActiveInstances in the wrapper
// scope when a loop instance ends. Wrapper and loop instance share the
// activity's element ID, which is what distinguishes the pair from an
// ordinary parent-child edge.
func (engine *Engine) noteMultiInstanceItemEnd(ctx context.Context, op *operation, st *instanceState, item *runtime.Execution) error {
	parent := st.execution(item.ParentKey)
	if parent == nil || parent.IsEnded() || parent.ElementId != item.ElementId {
		return nil
	}
	activity := st.definition.Definitions.FindActivity(parent.ElementId)
	if activity == nil || activity.MultiInstance == nil {
		return nil
	}
	active, ok := parent.Variables["nrOfActiveInstances"].(int)
	if !ok {
		return nil
	}
	return engine.setVariables(ctx, op, st, parent, map[string]interface{}{"nrOfActiveInstances": active - 1}, false)
}
