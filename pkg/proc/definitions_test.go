// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package proc

import (
	"errors"
	"testing"

	"github.com/pbinitiative/zenproc/pkg/proc/model"
	"github.com/pbinitiative/zenproc/pkg/proc/runtime"
	"github.com/stretchr/testify/assert"
)

func definitionSubscriptions(t *testing.T, processDefinitionKey int64) []runtime.EventSubscription {
	t.Helper()
	subscriptions, err := engine.persistence.FindProcessDefinitionSubscriptions(t.Context(), processDefinitionKey)
	assert.NoError(t, err)
	return subscriptions
}

func TestDeployUnchangedModelReturnsStoredVersion(t *testing.T) {
	// given
	v1 := deploy(t, model.NewProcess("dedup-proc").
		AddActivity(model.Task("t", "external")))

	// when the identical model is deployed again
	again := deploy(t, model.NewProcess("dedup-proc").
		AddActivity(model.Task("t", "external")))

	// then no new version was created
	assert.Equal(t, v1.Key, again.Key)
	assert.Equal(t, int32(1), again.Version)
}

func TestDeployChangedModelIncrementsVersion(t *testing.T) {
	// given
	v1 := deploy(t, model.NewProcess("versioning-proc").
		AddActivity(model.Task("t-1", "external")))

	// when
	v2 := deploy(t, model.NewProcess("versioning-proc").
		AddActivity(model.Task("t-2", "external")))

	// then
	assert.NotEqual(t, v1.Key, v2.Key)
	assert.Equal(t, int32(2), v2.Version)
}

func TestDeployRejectsInvalidModel(t *testing.T) {
	// given a call activity with versionTag binding but no tag
	call := model.CallActivity("call-1", "someone")
	call.CalledElement.BindingType = model.BindingTypeVersionTag

	// when
	_, err := model.NewProcess("invalid-proc").AddActivity(call).Build()

	// then
	var validationErr *model.ValidationError
	assert.True(t, errors.As(err, &validationErr))
}

func TestStartSubscriptionsFollowLatestVersion(t *testing.T) {
	// given
	v1 := deploy(t, model.NewProcess("migrating-start").
		AddStartEvent(&model.EventDefinition{
			Id:          "on-order",
			Type:        model.EventTypeMessage,
			MessageName: "order-migrating",
		}).
		AddActivity(model.Task("t-1", "external")))
	assert.Len(t, definitionSubscriptions(t, v1.Key), 1)

	// when a new version is deployed
	v2 := deploy(t, model.NewProcess("migrating-start").
		AddStartEvent(&model.EventDefinition{
			Id:          "on-order",
			Type:        model.EventTypeMessage,
			MessageName: "order-migrating",
		}).
		AddActivity(model.Task("t-2", "external")))

	// then the subscription moved to the latest version
	assert.Empty(t, definitionSubscriptions(t, v1.Key))
	assert.Len(t, definitionSubscriptions(t, v2.Key), 1)
}

func TestStartSubscriptionsMigrateBackwardOnDelete(t *testing.T) {
	// given three versions, the latest owning the start subscription
	builder := func(taskId string) *model.ProcessBuilder {
		return model.NewProcess("rollback-start").
			AddStartEvent(&model.EventDefinition{
				Id:          "on-order",
				Type:        model.EventTypeMessage,
				MessageName: "order-rollback",
			}).
			AddActivity(model.Task(taskId, "external"))
	}
	v1 := deploy(t, builder("t-1"))
	v2 := deploy(t, builder("t-2"))
	v3 := deploy(t, builder("t-3"))
	assert.Len(t, definitionSubscriptions(t, v3.Key), 1)

	// when the two newest versions go away in one transaction
	err := engine.DeleteProcessDefinitions(t.Context(), v2.Key, v3.Key)
	assert.NoError(t, err)

	// then the subscription migrated back to the surviving version
	assert.Len(t, definitionSubscriptions(t, v1.Key), 1)
	assert.Empty(t, definitionSubscriptions(t, v2.Key))
	assert.Empty(t, definitionSubscriptions(t, v3.Key))

	// and publishing starts the old version
	err = engine.PublishMessage(t.Context(), "order-rollback", nil)
	assert.NoError(t, err)
	var created []runtime.ProcessInstance
	for _, stored := range engineStorage.ProcessInstances {
		if stored.Definition != nil && stored.Definition.Key == v1.Key {
			created = append(created, stored)
		}
	}
	assert.Len(t, created, 1)
}

func TestEvaluateStartConditionsFiltersByProcessId(t *testing.T) {
	// given two definitions watching the same condition
	defA := deploy(t, model.NewProcess("ping-watcher-a").
		AddStartEvent(&model.EventDefinition{
			Id:        "on-ping-a",
			Type:      model.EventTypeConditional,
			Condition: "=ping = true",
		}).
		AddActivity(model.Task("handle-a", "external")))
	defB := deploy(t, model.NewProcess("ping-watcher-b").
		AddStartEvent(&model.EventDefinition{
			Id:        "on-ping-b",
			Type:      model.EventTypeConditional,
			Condition: "=ping = true",
		}).
		AddActivity(model.Task("handle-b", "external")))

	// when the evaluation is scoped to one process id
	instances, err := engine.EvaluateStartConditions(t.Context(),
		map[string]interface{}{"ping": true},
		WithProcessId("ping-watcher-a"),
		WithBusinessKey("ping-4711"))
	assert.NoError(t, err)

	// then only that definition was instantiated
	assert.Len(t, instances, 1)
	assert.Equal(t, defA.Key, instances[0].Definition.Key)
	assert.Equal(t, "ping-4711", instances[0].BusinessKey)
	for _, stored := range engineStorage.ProcessInstances {
		if stored.Definition != nil && stored.Definition.Key == defB.Key {
			t.Fatalf("filtered definition %s was instantiated", stored.Definition.ProcessId)
		}
	}
}

func TestEvaluateStartConditionsInstantiatesMatches(t *testing.T) {
	// given
	definition := deploy(t, model.NewProcess("hot-alert").
		AddStartEvent(&model.EventDefinition{
			Id:        "too-hot",
			Type:      model.EventTypeConditional,
			Condition: "=temperature > 30",
		}).
		AddActivity(model.Task("cool-down", "external")))

	countInstances := func() int {
		n := 0
		for _, stored := range engineStorage.ProcessInstances {
			if stored.Definition != nil && stored.Definition.Key == definition.Key {
				n++
			}
		}
		return n
	}

	// when the condition does not hold
	_, err := engine.EvaluateStartConditions(t.Context(), map[string]interface{}{"temperature": 20})
	assert.NoError(t, err)
	assert.Equal(t, 0, countInstances())

	// when it does
	instances, err := engine.EvaluateStartConditions(t.Context(), map[string]interface{}{"temperature": 35})
	assert.NoError(t, err)
	assert.Equal(t, 1, countInstances())

	// then the new instance carries the evaluated variables
	var created *runtime.ProcessInstance
	for _, instance := range instances {
		if instance.Definition != nil && instance.Definition.Key == definition.Key {
			created = instance
		}
	}
	assert.NotNil(t, created)
	variables, err := engine.Variables(t.Context(), created.RootExecutionKey)
	assert.NoError(t, err)
	assert.Equal(t, 35, variables["temperature"])
}
