// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package proc

import (
	"testing"

	"github.com/pbinitiative/zenproc/pkg/proc/model"
	"github.com/pbinitiative/zenproc/pkg/proc/runtime"
	"github.com/stretchr/testify/assert"
)

func TestPublishMessageTriggersInterruptingBoundary(t *testing.T) {
	// setup
	cp := CallPath{}
	idH := engine.NewTaskHandler().Id("on-payment").Handler(cp.TaskHandler)
	defer engine.RemoveHandler(idH)

	// given
	task := model.Task("await-payment", "external")
	task.Boundary = []*model.EventDefinition{{
		Id:           "payment-received",
		Type:         model.EventTypeMessage,
		Interrupting: true,
		MessageName:  "payment",
		Handler:      model.Task("on-payment", "x"),
	}}
	definition := deploy(t, model.NewProcess("msg-boundary").AddActivity(task))
	instance, err := engine.CreateInstanceByKey(t.Context(), definition.Key, nil)
	assert.NoError(t, err)

	// when
	err = engine.PublishMessage(t.Context(), "payment", map[string]interface{}{"amount": 5})
	assert.NoError(t, err)

	// then the guarded task is cancelled and the handler saw the payload
	assert.Equal(t, "on-payment", cp.CallPath)
	guarded := findExecutions(t, instance.Key, "await-payment")[0]
	assert.Equal(t, runtime.ActivityStateTerminated, guarded.State)

	variables, err := engine.Variables(t.Context(), instance.RootExecutionKey)
	assert.NoError(t, err)
	assert.Equal(t, 5, variables["amount"])

	stored, err := engine.FindProcessInstance(t.Context(), instance.Key)
	assert.NoError(t, err)
	assert.Equal(t, runtime.ActivityStateCompleted, stored.State)
}

func TestPublishMessageIgnoresOtherNames(t *testing.T) {
	// given
	task := model.Task("await-payment", "external")
	task.Boundary = []*model.EventDefinition{{
		Id:          "payment-received",
		Type:        model.EventTypeMessage,
		MessageName: "payment-2",
		Handler:     model.Task("never", "external"),
	}}
	definition := deploy(t, model.NewProcess("msg-other-name").AddActivity(task))
	instance, err := engine.CreateInstanceByKey(t.Context(), definition.Key, nil)
	assert.NoError(t, err)

	// when a message with a different name is published
	err = engine.PublishMessage(t.Context(), "refund-2", nil)
	assert.NoError(t, err)

	// then nothing fired
	assert.Empty(t, findExecutions(t, instance.Key, "never"))
	guarded := findExecutions(t, instance.Key, "await-payment")[0]
	assert.Equal(t, runtime.ActivityStateActive, guarded.State)
}

func TestMessageStartEventCreatesInstance(t *testing.T) {
	// given
	definition := deploy(t, model.NewProcess("msg-start").
		AddStartEvent(&model.EventDefinition{
			Id:          "order-placed",
			Type:        model.EventTypeMessage,
			MessageName: "order-placed-1",
		}).
		AddActivity(model.Task("handle-order", "external")))

	// when
	err := engine.PublishMessage(t.Context(), "order-placed-1", map[string]interface{}{"orderId": "o-1"})
	assert.NoError(t, err)

	// then a fresh instance of the definition exists, seeded with the payload
	var created []runtime.ProcessInstance
	for _, stored := range engineStorage.ProcessInstances {
		if stored.Definition != nil && stored.Definition.Key == definition.Key {
			created = append(created, stored)
		}
	}
	assert.Len(t, created, 1)
	variables, err := engine.Variables(t.Context(), created[0].RootExecutionKey)
	assert.NoError(t, err)
	assert.Equal(t, "o-1", variables["orderId"])
	assert.Len(t, findExecutions(t, created[0].Key, "handle-order"), 1)
}

func TestPublishSignalReachesAllInstances(t *testing.T) {
	// given two instances waiting on the same signal
	task := model.Task("work", "external")
	task.Boundary = []*model.EventDefinition{{
		Id:          "shutdown-raised",
		Type:        model.EventTypeSignal,
		MessageName: "shutdown-1",
		Handler:     model.Task("drain", "external"),
	}}
	definition := deploy(t, model.NewProcess("signal-broadcast").AddActivity(task))
	first, err := engine.CreateInstanceByKey(t.Context(), definition.Key, nil)
	assert.NoError(t, err)
	second, err := engine.CreateInstanceByKey(t.Context(), definition.Key, nil)
	assert.NoError(t, err)

	// when
	err = engine.PublishSignal(t.Context(), "shutdown-1", nil)
	assert.NoError(t, err)

	// then both instances got a handler branch; non-interrupting, the
	// guarded work keeps running
	for _, instance := range []*runtime.ProcessInstance{first, second} {
		assert.Len(t, findExecutions(t, instance.Key, "drain"), 1)
		work := findExecutions(t, instance.Key, "work")[0]
		assert.Equal(t, runtime.ActivityStateActive, work.State)
	}
}

func TestSignalDoesNotMatchMessageSubscriptions(t *testing.T) {
	// given a message subscription
	task := model.Task("await", "external")
	task.Boundary = []*model.EventDefinition{{
		Id:          "named-trigger",
		Type:        model.EventTypeMessage,
		MessageName: "cross-type",
		Handler:     model.Task("never", "external"),
	}}
	definition := deploy(t, model.NewProcess("cross-type-proc").AddActivity(task))
	instance, err := engine.CreateInstanceByKey(t.Context(), definition.Key, nil)
	assert.NoError(t, err)

	// when a signal with the same name is published
	err = engine.PublishSignal(t.Context(), "cross-type", nil)
	assert.NoError(t, err)

	// then the message subscription stays untouched
	assert.Empty(t, findExecutions(t, instance.Key, "never"))
}
