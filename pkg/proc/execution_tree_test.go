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
	"github.com/pbinitiative/zenproc/pkg/storage"
	"github.com/stretchr/testify/assert"
)

func TestDeleteCascadesThroughCallChain(t *testing.T) {
	// given a call chain A -> B -> C, C waiting on an external task
	deploy(t, model.NewProcess("chain-c").
		AddActivity(model.Task("c-task", "external")))
	deploy(t, model.NewProcess("chain-b").
		AddActivity(model.CallActivity("call-c", "chain-c")))
	definitionA := deploy(t, model.NewProcess("chain-a").
		AddActivity(model.CallActivity("call-b", "chain-b")))

	instanceA, err := engine.CreateInstanceByKey(t.Context(), definitionA.Key, nil)
	assert.NoError(t, err)

	callB := findExecutions(t, instanceA.Key, "call-b")[0]
	rootB, err := engine.persistence.FindSuperExecutionCallee(t.Context(), callB.Key)
	assert.NoError(t, err)
	callC := findExecutions(t, rootB.ProcessInstanceKey, "call-c")[0]
	rootC, err := engine.persistence.FindSuperExecutionCallee(t.Context(), callC.Key)
	assert.NoError(t, err)

	// when the innermost instance is deleted
	err = engine.DeleteProcessInstance(t.Context(), rootC.ProcessInstanceKey)
	assert.NoError(t, err)

	// then nothing of the chain remains
	for _, key := range []int64{rootC.ProcessInstanceKey, rootB.ProcessInstanceKey, instanceA.Key} {
		_, err := engine.FindProcessInstance(t.Context(), key)
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	}
}

func TestDeleteSparesSiblingBranchOfCaller(t *testing.T) {
	// given a caller with a called instance and an unrelated open task
	deploy(t, model.NewProcess("spared-sub").
		AddActivity(model.Task("sub-task", "external")))
	definition := deploy(t, model.NewProcess("spared-super").
		AddActivity(model.CallActivity("call-1", "spared-sub")).
		AddActivity(model.Task("side-task", "external")))

	instance, err := engine.CreateInstanceByKey(t.Context(), definition.Key, nil)
	assert.NoError(t, err)
	callExecution := findExecutions(t, instance.Key, "call-1")[0]
	calleeRoot, err := engine.persistence.FindSuperExecutionCallee(t.Context(), callExecution.Key)
	assert.NoError(t, err)

	// when the called instance is deleted
	err = engine.DeleteProcessInstance(t.Context(), calleeRoot.ProcessInstanceKey)
	assert.NoError(t, err)

	// then the calling branch is terminated but the sibling keeps running
	_, err = engine.FindProcessInstance(t.Context(), calleeRoot.ProcessInstanceKey)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	storedCall, err := engine.FindExecution(t.Context(), callExecution.Key)
	assert.NoError(t, err)
	assert.Equal(t, runtime.ActivityStateTerminated, storedCall.State)

	sideTask := findExecutions(t, instance.Key, "side-task")[0]
	assert.Equal(t, runtime.ActivityStateActive, sideTask.State)

	callerInstance, err := engine.FindProcessInstance(t.Context(), instance.Key)
	assert.NoError(t, err)
	assert.Equal(t, runtime.ActivityStateActive, callerInstance.State)
}

func TestDeleteSparesSiblingCalledInstance(t *testing.T) {
	// given two sibling call activities, each with its own called instance
	deploy(t, model.NewProcess("twin-sub").
		AddActivity(model.Task("sub-task", "external")))
	definition := deploy(t, model.NewProcess("twin-super").
		AddActivity(model.CallActivity("call-left", "twin-sub")).
		AddActivity(model.CallActivity("call-right", "twin-sub")))

	instance, err := engine.CreateInstanceByKey(t.Context(), definition.Key, nil)
	assert.NoError(t, err)
	callLeft := findExecutions(t, instance.Key, "call-left")[0]
	leftRoot, err := engine.persistence.FindSuperExecutionCallee(t.Context(), callLeft.Key)
	assert.NoError(t, err)
	callRight := findExecutions(t, instance.Key, "call-right")[0]
	rightRoot, err := engine.persistence.FindSuperExecutionCallee(t.Context(), callRight.Key)
	assert.NoError(t, err)

	// when one called instance is deleted
	err = engine.DeleteProcessInstance(t.Context(), leftRoot.ProcessInstanceKey)
	assert.NoError(t, err)

	// then only that call branch is gone
	_, err = engine.FindProcessInstance(t.Context(), leftRoot.ProcessInstanceKey)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	storedLeft, err := engine.FindExecution(t.Context(), callLeft.Key)
	assert.NoError(t, err)
	assert.Equal(t, runtime.ActivityStateTerminated, storedLeft.State)

	// and the sibling called instance keeps running, task included
	rightInstance, err := engine.FindProcessInstance(t.Context(), rightRoot.ProcessInstanceKey)
	assert.NoError(t, err)
	assert.Equal(t, runtime.ActivityStateActive, rightInstance.State)
	rightTask := findExecutions(t, rightRoot.ProcessInstanceKey, "sub-task")[0]
	assert.Equal(t, runtime.ActivityStateActive, rightTask.State)
	storedRight, err := engine.FindExecution(t.Context(), callRight.Key)
	assert.NoError(t, err)
	assert.Equal(t, runtime.ActivityStateActive, storedRight.State)

	callerInstance, err := engine.FindProcessInstance(t.Context(), instance.Key)
	assert.NoError(t, err)
	assert.Equal(t, runtime.ActivityStateActive, callerInstance.State)
}

func TestDeleteUnknownInstanceIsStateError(t *testing.T) {
	// when
	err := engine.DeleteProcessInstance(t.Context(), 123456789)

	// then
	var stateErr *StateError
	assert.True(t, errors.As(err, &stateErr))
}

func TestSuspendedInstanceRejectsMutations(t *testing.T) {
	// given
	definition := deploy(t, model.NewProcess("suspend-instance").
		AddActivity(model.Task("wait", "external")))
	instance, err := engine.CreateInstanceByKey(t.Context(), definition.Key, nil)
	assert.NoError(t, err)

	// when
	err = engine.SuspendProcessInstance(t.Context(), instance.Key)
	assert.NoError(t, err)

	// then variable writes and completions are rejected
	err = engine.SetVariables(t.Context(), instance.RootExecutionKey, map[string]interface{}{"x": 1})
	var stateErr *StateError
	assert.True(t, errors.As(err, &stateErr))

	task := findExecutions(t, instance.Key, "wait")[0]
	err = engine.CompleteActivity(t.Context(), task.Key, nil)
	assert.True(t, errors.As(err, &stateErr))

	// when activated again everything works
	err = engine.ActivateProcessInstance(t.Context(), instance.Key)
	assert.NoError(t, err)
	err = engine.CompleteActivity(t.Context(), task.Key, nil)
	assert.NoError(t, err)

	stored, err := engine.FindProcessInstance(t.Context(), instance.Key)
	assert.NoError(t, err)
	assert.Equal(t, runtime.ActivityStateCompleted, stored.State)
}

func TestSuspendExecutionFreezesSubtreeOnly(t *testing.T) {
	// given
	definition := deploy(t, model.NewProcess("suspend-subtree").
		AddActivity(model.Scope("scope-1", model.Task("inner", "external"))).
		AddActivity(model.Task("outer", "external")))
	instance, err := engine.CreateInstanceByKey(t.Context(), definition.Key, nil)
	assert.NoError(t, err)
	scope := findExecutions(t, instance.Key, "scope-1")[0]
	inner := findExecutions(t, instance.Key, "inner")[0]
	outer := findExecutions(t, instance.Key, "outer")[0]

	// when
	err = engine.SuspendExecution(t.Context(), scope.Key)
	assert.NoError(t, err)

	// then the subtree is frozen
	err = engine.CompleteActivity(t.Context(), inner.Key, nil)
	var stateErr *StateError
	assert.True(t, errors.As(err, &stateErr))

	// and the sibling outside the subtree is not
	err = engine.CompleteActivity(t.Context(), outer.Key, nil)
	assert.NoError(t, err)

	// when lifted the frozen branch resumes
	err = engine.ActivateExecution(t.Context(), scope.Key)
	assert.NoError(t, err)
	err = engine.CompleteActivity(t.Context(), inner.Key, nil)
	assert.NoError(t, err)

	stored, err := engine.FindProcessInstance(t.Context(), instance.Key)
	assert.NoError(t, err)
	assert.Equal(t, runtime.ActivityStateCompleted, stored.State)
}

func TestUncaughtErrorFailsInstance(t *testing.T) {
	// given
	definition := deploy(t, model.NewProcess("uncaught-error").
		AddActivity(model.Task("risky", "external")))
	instance, err := engine.CreateInstanceByKey(t.Context(), definition.Key, nil)
	assert.NoError(t, err)
	task := findExecutions(t, instance.Key, "risky")[0]

	// when
	err = engine.FailActivity(t.Context(), task.Key, "E-BOOM", nil)
	assert.NoError(t, err)

	// then
	stored, err := engine.FindProcessInstance(t.Context(), instance.Key)
	assert.NoError(t, err)
	assert.Equal(t, runtime.ActivityStateFailed, stored.State)

	storedTask, err := engine.FindExecution(t.Context(), task.Key)
	assert.NoError(t, err)
	assert.Equal(t, runtime.ActivityStateFailed, storedTask.State)
}

func TestBoundaryErrorEventCatchesMatchingCode(t *testing.T) {
	// setup
	cp := CallPath{}
	idH := engine.NewTaskHandler().Id("compensate").Handler(cp.TaskHandler)
	defer engine.RemoveHandler(idH)

	// given
	task := model.Task("risky", "external")
	task.Boundary = []*model.EventDefinition{{
		Id:        "catch-boom",
		Type:      model.EventTypeError,
		ErrorCode: "E-BOOM",
		Handler:   model.Task("compensate", "x"),
	}}
	definition := deploy(t, model.NewProcess("caught-error").
		AddActivity(task).
		AddActivity(model.Task("wait", "external")))
	instance, err := engine.CreateInstanceByKey(t.Context(), definition.Key, nil)
	assert.NoError(t, err)
	risky := findExecutions(t, instance.Key, "risky")[0]

	// when
	err = engine.FailActivity(t.Context(), risky.Key, "E-BOOM", nil)
	assert.NoError(t, err)

	// then the handler ran and the instance keeps going
	assert.Equal(t, "compensate", cp.CallPath)
	stored, err := engine.FindProcessInstance(t.Context(), instance.Key)
	assert.NoError(t, err)
	assert.Equal(t, runtime.ActivityStateActive, stored.State)
}
