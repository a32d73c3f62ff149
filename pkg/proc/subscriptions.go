// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package proc

import (
	"context"
	"time"

	"github.com/pbinitiative/zenproc/pkg/proc/model"
	"github.com/pbinitiative/zenproc/pkg/proc/runtime"
)

// subscribeEvent registers an event definition with the subscription
// registry. The owning scope determines visibility during the ancestor
// walk of the conditional evaluator; the guarded execution is what an
// interrupting trigger cancels. Both are the same execution for scope
// owned (event subprocess style) definitions.
func (engine *Engine) subscribeEvent(ctx context.Context, st *instanceState, owningScope *runtime.Execution, guarded *runtime.Execution, eventDef *model.EventDefinition) (*runtime.EventSubscription, error) {
	if eventDef.Type == model.EventTypeTimer {
		panic("[invariant check] timer events are registered through createTimer, not the subscription registry")
	}
	eventName := eventDef.MessageName
	if eventDef.Type == model.EventTypeError {
		eventName = eventDef.ErrorCode
	}
	subscription := &runtime.EventSubscription{
		Key:                  engine.generateKey(),
		Type:                 eventDef.Type,
		ProcessDefinitionKey: st.definition.Key,
		ProcessInstanceKey:   st.instance.Key,
		ExecutionKey:         owningScope.Key,
		GuardedExecutionKey:  guarded.Key,
		ElementId:            eventDef.Id,
		EventName:            eventName,
		Condition:            eventDef.Condition,
		VariableName:         eventDef.VariableName,
		VariableEvents:       eventDef.VariableEvents,
		Interrupting:         eventDef.Interrupting,
		State:                runtime.ActivityStateActive,
		CreatedAt:            time.Now(),
	}
	st.subscriptions = append(st.subscriptions, subscription)
	return subscription, nil
}

// newStartEventSubscription builds a definition owned subscription; no
// execution, no instance, exists for the latest deployed version of the
// definition key exclusively.
func (engine *Engine) newStartEventSubscription(definition *runtime.ProcessDefinition, eventDef *model.EventDefinition) runtime.EventSubscription {
	eventName := eventDef.MessageName
	if eventDef.Type == model.EventTypeError {
		eventName = eventDef.ErrorCode
	}
	return runtime.EventSubscription{
		Key:                  engine.generateKey(),
		Type:                 eventDef.Type,
		ProcessDefinitionKey: definition.Key,
		ElementId:            eventDef.Id,
		EventName:            eventName,
		Condition:            eventDef.Condition,
		VariableName:         eventDef.VariableName,
		VariableEvents:       eventDef.VariableEvents,
		Interrupting:         eventDef.Interrupting,
		State:                runtime.ActivityStateActive,
		CreatedAt:            time.Now(),
	}
}

// FindActiveSubscriptions returns the active subscriptions of one process
// instance; mostly useful for tests and introspection.
func (engine *Engine) FindActiveSubscriptions(ctx context.Context, processInstanceKey int64) ([]runtime.EventSubscription, error) {
	return engine.persistence.FindProcessInstanceSubscriptions(ctx, processInstanceKey, runtime.ActivityStateActive)
}
