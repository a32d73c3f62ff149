// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package proc

import (
	"time"
)

// activatedJob carries the task context handed to a registered handler.
type activatedJob struct {
	key                      int64
	processInstanceKey       int64
	processId                string
	processDefinitionVersion int32
	processDefinitionKey     int64
	elementId                string
	createdAt                time.Time
	localVariables           map[string]interface{}
	outputVariables          map[string]interface{}
	completed                bool
	failed                   bool
	failCode                 string
}

// ActivatedJob represents an abstraction for the activated task.
// A handler that returns without calling Complete or Fail leaves the task
// active; it then has to be finished through CompleteActivity or
// FailActivity.
type ActivatedJob interface {
	// Key the key, a unique identifier for the job
	Key() int64

	// ProcessInstanceKey the job's process instance key
	ProcessInstanceKey() int64

	// ProcessId retrieve id of the job process definition
	ProcessId() string

	// ProcessDefinitionVersion retrieve version of the job process definition
	ProcessDefinitionVersion() int32

	// ProcessDefinitionKey retrieve key of the job process definition
	ProcessDefinitionKey() int64

	// ElementId get element id of the job
	ElementId() string

	// Variable from the variables visible to the task's execution
	Variable(key string) interface{}

	// SetOutputVariable records a result variable; written into the task's
	// scope when the job completes or fails
	SetOutputVariable(key string, value interface{})

	GetLocalVariables() map[string]interface{}

	GetOutputVariables() map[string]interface{}

	// CreatedAt when the job was created
	CreatedAt() time.Time

	// Fail marks the job as failed with an error code routed through
	// boundary error events.
	// Fail and Complete mutual exclude each other
	Fail(errorCode string)

	// Complete marks the job as successfully finished.
	// Fail and Complete mutual exclude each other
	Complete()
}

// CreatedAt implements ActivatedJob
func (aj *activatedJob) CreatedAt() time.Time {
	return aj.createdAt
}

// ElementId implements ActivatedJob
func (aj *activatedJob) ElementId() string {
	return aj.elementId
}

// Key implements ActivatedJob
func (aj *activatedJob) Key() int64 {
	return aj.key
}

// ProcessId implements ActivatedJob
func (aj *activatedJob) ProcessId() string {
	return aj.processId
}

// ProcessDefinitionKey implements ActivatedJob
func (aj *activatedJob) ProcessDefinitionKey() int64 {
	return aj.processDefinitionKey
}

// ProcessDefinitionVersion implements ActivatedJob
func (aj *activatedJob) ProcessDefinitionVersion() int32 {
	return aj.processDefinitionVersion
}

// ProcessInstanceKey implements ActivatedJob
func (aj *activatedJob) ProcessInstanceKey() int64 {
	return aj.processInstanceKey
}

// Variable implements ActivatedJob
func (aj *activatedJob) Variable(key string) interface{} {
	return aj.localVariables[key]
}

// SetOutputVariable implements ActivatedJob
func (aj *activatedJob) SetOutputVariable(key string, value interface{}) {
	aj.outputVariables[key] = value
}

func (aj *activatedJob) GetLocalVariables() map[string]interface{} {
	return aj.localVariables
}

func (aj *activatedJob) GetOutputVariables() map[string]interface{} {
	return aj.outputVariables
}

// Fail implements ActivatedJob
func (aj *activatedJob) Fail(errorCode string) {
	if aj.completed {
		return
	}
	aj.failed = true
	aj.failCode = errorCode
}

// Complete implements ActivatedJob
func (aj *activatedJob) Complete() {
	if aj.failed {
		return
	}
	aj.completed = true
}
