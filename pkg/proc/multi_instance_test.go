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

// miExecutions splits the stored executions of a multi-instance activity
// into the wrapper scope and its loop instances.
func miExecutions(t *testing.T, processInstanceKey int64, elementId string) (runtime.Execution, []runtime.Execution) {
	t.Helper()
	all := findExecutions(t, processInstanceKey, elementId)
	byKey := map[int64]runtime.Execution{}
	for _, execution := range all {
		byKey[execution.Key] = execution
	}
	var wrapper runtime.Execution
	var items []runtime.Execution
	for _, execution := range all {
		if parent, ok := byKey[execution.ParentKey]; ok && parent.ElementId == elementId {
			items = append(items, execution)
		} else {
			wrapper = execution
		}
	}
	return wrapper, items
}

func TestMultiInstanceSpawnsCardinalityInstances(t *testing.T) {
	// given
	task := model.Task("mi-task", "external")
	task.MultiInstance = &model.MultiInstance{Cardinality: 3}
	definition := deploy(t, model.NewProcess("mi-cardinality").AddActivity(task))

	// when
	instance, err := engine.CreateInstanceByKey(t.Context(), definition.Key, nil)
	assert.NoError(t, err)

	// then one wrapper and three loop instances exist
	wrapper, items := miExecutions(t, instance.Key, "mi-task")
	assert.Equal(t, runtime.ActivityStateActive, wrapper.State)
	assert.Len(t, items, 3)

	// and the bookkeeping variables are in place
	assert.Equal(t, 3, wrapper.Variables["nrOfInstances"])
	assert.Equal(t, 3, wrapper.Variables["nrOfActiveInstances"])
	counters := map[interface{}]bool{}
	for _, item := range items {
		assert.Equal(t, runtime.ActivityStateActive, item.State)
		counters[item.Variables["loopCounter"]] = true
	}
	assert.Equal(t, map[interface{}]bool{1: true, 2: true, 3: true}, counters)

	// when completing the loop instances one by one
	for i, item := range items {
		err = engine.CompleteActivity(t.Context(), item.Key, nil)
		assert.NoError(t, err)
		wrapper, _ = miExecutions(t, instance.Key, "mi-task")
		assert.Equal(t, 3-(i+1), wrapper.Variables["nrOfActiveInstances"])
	}

	// then the wrapper joined and the instance is done
	assert.Equal(t, runtime.ActivityStateCompleted, wrapper.State)
	stored, err := engine.FindProcessInstance(t.Context(), instance.Key)
	assert.NoError(t, err)
	assert.Equal(t, runtime.ActivityStateCompleted, stored.State)
}

func TestMultiInstanceOverCollectionBindsInputElement(t *testing.T) {
	// given
	task := model.Task("mi-items", "external")
	task.MultiInstance = &model.MultiInstance{
		InputCollectionExpression: "=orders",
		InputElementName:          "order",
	}
	definition := deploy(t, model.NewProcess("mi-collection").AddActivity(task))

	// when
	orders := []interface{}{"o-1", "o-2"}
	instance, err := engine.CreateInstanceByKey(t.Context(), definition.Key, map[string]interface{}{"orders": orders})
	assert.NoError(t, err)

	// then the collection length drives the cardinality
	wrapper, items := miExecutions(t, instance.Key, "mi-items")
	assert.Equal(t, 2, wrapper.Variables["nrOfInstances"])
	assert.Len(t, items, 2)

	// and each loop instance sees its own element
	seen := map[interface{}]bool{}
	for _, item := range items {
		seen[item.Variables["order"]] = true
	}
	assert.Equal(t, map[interface{}]bool{"o-1": true, "o-2": true}, seen)
}

func TestMultiInstanceBookkeepingRaisesVariableEvents(t *testing.T) {
	// setup
	cp := CallPath{}
	idH := engine.NewTaskHandler().Id("observer").Handler(cp.TaskHandler)
	defer engine.RemoveHandler(idH)

	// given a boundary condition watching the structural variable
	task := model.Task("mi-task", "external")
	task.MultiInstance = &model.MultiInstance{Cardinality: 3}
	task.Boundary = []*model.EventDefinition{{
		Id:           "all-spawned",
		Type:         model.EventTypeConditional,
		Condition:    "=nrOfInstances = 3",
		VariableName: "nrOfInstances",
		Handler:      model.Task("observer", "x"),
	}}
	definition := deploy(t, model.NewProcess("mi-observed").AddActivity(task))

	// when
	instance, err := engine.CreateInstanceByKey(t.Context(), definition.Key, nil)
	assert.NoError(t, err)

	// then the write of nrOfInstances fired the event exactly once
	assert.Equal(t, "observer", cp.CallPath)
	assert.Len(t, findExecutions(t, instance.Key, "observer"), 1)

	// and the decrements do not re-trigger it
	_, items := miExecutions(t, instance.Key, "mi-task")
	for _, item := range items {
		err = engine.CompleteActivity(t.Context(), item.Key, nil)
		assert.NoError(t, err)
	}
	assert.Len(t, findExecutions(t, instance.Key, "observer"), 1)

	stored, err := engine.FindProcessInstance(t.Context(), instance.Key)
	assert.NoError(t, err)
	assert.Equal(t, runtime.ActivityStateCompleted, stored.State)
}
