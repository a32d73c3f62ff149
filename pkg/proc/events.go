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

// PublishMessage correlates a named message against the subscription
// registry: every active message subscription with the name is triggered
// with the supplied variables, and message start events of latest
// definitions instantiate new processes.
func (engine *Engine) PublishMessage(ctx context.Context, name string, variables map[string]interface{}) error {
	return engine.publishEvent(ctx, model.EventTypeMessage, name, variables)
}

// PublishSignal broadcasts a named signal; same correlation path as
// messages.
func (engine *Engine) PublishSignal(ctx context.Context, name string, variables map[string]interface{}) error {
	return engine.publishEvent(ctx, model.EventTypeSignal, name, variables)
}

func (engine *Engine) publishEvent(ctx context.Context, eventType model.EventType, name string, variables map[string]interface{}) error {
	ctx, span := engine.tracer.Start(ctx, fmt.Sprintf("publish:%s", name))
	defer span.End()

	subscriptions, err := engine.persistence.FindMatchingSubscriptions(ctx, eventType, name, runtime.ActivityStateActive)
	if err != nil {
		return errors.Join(newEngineErrorf("failed to find subscriptions for event %s", name), err)
	}

	var errJoin error
	byInstance := map[int64][]runtime.EventSubscription{}
	var instanceOrder []int64
	for _, subscription := range subscriptions {
		if subscription.ProcessInstanceKey == 0 {
			continue
		}
		if _, ok := byInstance[subscription.ProcessInstanceKey]; !ok {
			instanceOrder = append(instanceOrder, subscription.ProcessInstanceKey)
		}
		byInstance[subscription.ProcessInstanceKey] = append(byInstance[subscription.ProcessInstanceKey], subscription)
	}

	// one operation per instance tree; a failing instance does not keep
	// the event from reaching the others
	for _, instanceKey := range instanceOrder {
		op := engine.newOperation()
		st, err := engine.loadState(ctx, op, instanceKey)
		if err != nil {
			errJoin = errors.Join(errJoin, err)
			continue
		}
		triggered := false
		for _, stored := range byInstance[instanceKey] {
			var subscription *runtime.EventSubscription
			for _, candidate := range st.subscriptions {
				if candidate.Key == stored.Key {
					subscription = candidate
					break
				}
			}
			if subscription == nil || subscription.State != runtime.ActivityStateActive {
				continue
			}
			if err := engine.fireSubscription(ctx, op, st, subscription, variables); err != nil {
				errJoin = errors.Join(errJoin, err)
				continue
			}
			triggered = true
		}
		if !triggered {
			continue
		}
		if err := engine.commit(ctx, op); err != nil {
			errJoin = errors.Join(errJoin, err)
		}
	}

	// start events of latest deployed definitions
	startSubscriptions, err := engine.persistence.FindStartEventSubscriptions(ctx, eventType)
	if err != nil {
		return errors.Join(errJoin, newEngineErrorf("failed to find start event subscriptions for event %s", name), err)
	}
	for _, subscription := range startSubscriptions {
		if subscription.EventName != name {
			continue
		}
		definition, err := engine.definitionByKey(ctx, subscription.ProcessDefinitionKey)
		if err != nil {
			errJoin = errors.Join(errJoin, err)
			continue
		}
		if _, err := engine.CreateInstance(ctx, definition, variables); err != nil {
			errJoin = errors.Join(errJoin, err)
		}
	}
	return errJoin
}
