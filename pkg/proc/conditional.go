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

	"github.com/pbinitiative/zenproc/pkg/proc/model"
	"github.com/pbinitiative/zenproc/pkg/proc/runtime"
)

// flushVariableEvents drains the event queue in emission order. Events
// raised while reacting to a trigger land on the same queue, giving the
// breadth-first cascade ordering; the dispatching flag keeps nested calls
// from re-entering the loop.
func (engine *Engine) flushVariableEvents(ctx context.Context, op *operation, st *instanceState) error {
	if st.dispatching {
		return nil
	}
	st.dispatching = true
	defer func() { st.dispatching = false }()

	for len(st.queue) > 0 {
		event := st.queue[0]
		st.queue = st.queue[1:]
		if err := engine.evaluateVariableEvent(ctx, op, st, event); err != nil {
			return err
		}
	}
	return nil
}

// evaluateVariableEvent walks the scope chain of the originating
// execution innermost to outermost, never crossing the super-execution
// edge, and fires every matching conditional subscription whose condition
// holds against the merged variable view.
func (engine *Engine) evaluateVariableEvent(ctx context.Context, op *operation, st *instanceState, event runtime.VariableEvent) error {
	engine.metrics.VariableEventsDispatched.Add(ctx, 1)
	origin := st.execution(event.OriginExecutionKey)
	if origin == nil {
		return nil
	}
	evalVars := st.visibleVariables(origin, true)
	for _, scope := range st.scopeChain(origin) {
		if scope.IsEnded() {
			continue
		}
		for _, subscription := range st.subscriptionsOwnedBy(scope.Key, model.EventTypeConditional) {
			// a prior firing in this pass may have consumed or withdrawn it
			if subscription.State != runtime.ActivityStateActive {
				continue
			}
			if !subscription.MatchesVariableEvent(event) {
				continue
			}
			matched, err := engine.evaluateCondition(subscription.Condition, evalVars)
			if err != nil {
				return &ExpressionEvaluationError{
					Msg: fmt.Sprintf("failed to evaluate condition of event %s", subscription.ElementId),
					Err: err,
				}
			}
			if !matched {
				continue
			}
			if err := engine.fireSubscription(ctx, op, st, subscription, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// evaluateScopeEntry performs the default-evaluation pass on entering a
// scope: unfiltered conditional subscriptions owned by the scope itself
// are evaluated once even without a preceding variable change, since a
// condition like "=true" needs no variable at all to become true.
func (engine *Engine) evaluateScopeEntry(ctx context.Context, op *operation, st *instanceState, scope *runtime.Execution) error {
	var owned []*runtime.EventSubscription
	for _, subscription := range st.subscriptionsOwnedBy(scope.Key, model.EventTypeConditional) {
		if subscription.GuardedExecutionKey == scope.Key {
			owned = append(owned, subscription)
		}
	}
	return engine.evaluateSubscriptionsOnce(ctx, op, st, owned)
}

// evaluateSubscriptionsOnce is the structural evaluation point reached
// when the construct carrying the subscriptions has just been entered.
// Evaluation is best-effort here: a condition referencing a variable that
// does not exist yet simply does not match.
func (engine *Engine) evaluateSubscriptionsOnce(ctx context.Context, op *operation, st *instanceState, subscriptions []*runtime.EventSubscription) error {
	for _, subscription := range subscriptions {
		if subscription.State != runtime.ActivityStateActive || subscription.Type != model.EventTypeConditional {
			continue
		}
		if subscription.VariableName != "" || len(subscription.VariableEvents) > 0 {
			continue
		}
		owning := st.execution(subscription.ExecutionKey)
		if owning == nil || owning.IsEnded() {
			continue
		}
		matched, err := engine.evaluateCondition(subscription.Condition, st.visibleVariables(owning, true))
		if err != nil {
			continue
		}
		if !matched {
			continue
		}
		if err := engine.fireSubscription(ctx, op, st, subscription, nil); err != nil {
			return err
		}
	}
	return nil
}

// fireSubscription triggers one subscription. Interrupting subscriptions
// are consumed and cancel the guarded construct atomically before the
// handler runs; non-interrupting ones stay registered and spawn a
// concurrent branch next to the guarded construct, once per firing.
func (engine *Engine) fireSubscription(ctx context.Context, op *operation, st *instanceState, subscription *runtime.EventSubscription, payload map[string]interface{}) error {
	owning := st.execution(subscription.ExecutionKey)
	if owning == nil || owning.IsEnded() {
		subscription.State = runtime.ActivityStateWithdrawn
		return nil
	}
	if subscription.Interrupting {
		subscription.State = runtime.ActivityStateCompleted
		guarded := st.execution(subscription.GuardedExecutionKey)
		if guarded != nil && !guarded.IsEnded() {
			if guarded.Key == owning.Key {
				// scope owned event: cancel the scope's content, the scope
				// itself hosts the handler
				children := st.children(owning.Key)
				for i := len(children) - 1; i >= 0; i-- {
					if err := engine.terminateExecution(ctx, op, st, children[i]); err != nil {
						return err
					}
				}
			} else {
				if err := engine.terminateExecution(ctx, op, st, guarded); err != nil {
					return err
				}
			}
		}
	}
	return engine.fireSubscriptionHandler(ctx, op, st, subscription, payload)
}

// fireSubscriptionHandler applies the trigger payload and enters the
// handler activity as a concurrent child of the owning scope.
func (engine *Engine) fireSubscriptionHandler(ctx context.Context, op *operation, st *instanceState, subscription *runtime.EventSubscription, payload map[string]interface{}) error {
	engine.metrics.SubscriptionsFired.Add(ctx, 1)
	owning := st.execution(subscription.ExecutionKey)
	if owning == nil || owning.IsEnded() {
		return nil
	}
	st.beginScopeEntry()
	if len(payload) > 0 {
		if err := engine.setVariables(ctx, op, st, owning, payload, false); err != nil {
			return err
		}
	}
	if err := engine.enterEventHandler(ctx, op, st, subscription, owning); err != nil {
		return err
	}
	if err := engine.endScopeEntry(ctx, op, st); err != nil {
		return err
	}
	return engine.tryCompleteScope(ctx, op, st, owning)
}

func (engine *Engine) enterEventHandler(ctx context.Context, op *operation, st *instanceState, subscription *runtime.EventSubscription, owning *runtime.Execution) error {
	eventDef := st.definition.Definitions.FindEventDefinition(subscription.ElementId)
	if eventDef == nil || eventDef.Handler == nil {
		return nil
	}
	execution, boundary, err := engine.createActivityExecution(ctx, st, owning, eventDef.Handler, true)
	if err != nil {
		return err
	}
	if err := engine.runActivityBehavior(ctx, op, st, execution, eventDef.Handler); err != nil {
		return err
	}
	return engine.evaluateSubscriptionsOnce(ctx, op, st, boundary)
}

// StartConditionsOption narrows one EvaluateStartConditions call.
type StartConditionsOption func(*startConditionsQuery)

type startConditionsQuery struct {
	processId   string
	businessKey string
}

// WithProcessId restricts the evaluation to start subscriptions of the
// given process definition id; subscriptions of other definitions are
// skipped before their condition is evaluated.
func WithProcessId(processId string) StartConditionsOption {
	return func(q *startConditionsQuery) { q.processId = processId }
}

// WithBusinessKey stamps every instance the evaluation creates with the
// given business key instead of a generated one.
func WithBusinessKey(businessKey string) StartConditionsOption {
	return func(q *startConditionsQuery) { q.businessKey = businessKey }
}

// EvaluateStartConditions enumerates the conditional start-event
// subscriptions of all latest deployed definitions, evaluates each
// against the supplied variables only, and instantiates one process per
// match. Evaluation is best-effort: an expression referencing an absent
// variable does not match rather than erroring, provided at least one
// name it references was supplied by the caller.
func (engine *Engine) EvaluateStartConditions(ctx context.Context, variables map[string]interface{}, options ...StartConditionsOption) ([]*runtime.ProcessInstance, error) {
	var query startConditionsQuery
	for _, option := range options {
		option(&query)
	}

	subscriptions, err := engine.persistence.FindStartEventSubscriptions(ctx, model.EventTypeConditional)
	if err != nil {
		return nil, errors.Join(newEngineErrorf("failed to load start event subscriptions"), err)
	}

	var instances []*runtime.ProcessInstance
	var errJoin error
	for _, subscription := range subscriptions {
		definition, err := engine.definitionByKey(ctx, subscription.ProcessDefinitionKey)
		if err != nil {
			errJoin = errors.Join(errJoin, err)
			continue
		}
		if query.processId != "" && definition.ProcessId != query.processId {
			continue
		}
		matched, err := engine.evaluateCondition(subscription.Condition, variables)
		if err != nil {
			if expressionReferencesAny(subscription.Condition, variables) {
				continue
			}
			errJoin = errors.Join(errJoin, &ExpressionEvaluationError{
				Msg: fmt.Sprintf("failed to evaluate start condition of event %s", subscription.ElementId),
				Err: err,
			})
			continue
		}
		if !matched {
			continue
		}
		instance, err := engine.createAndCommitInstance(ctx, definition, variables, query.businessKey)
		if err != nil {
			errJoin = errors.Join(errJoin, err)
			continue
		}
		instances = append(instances, instance)
	}
	return instances, errJoin
}
