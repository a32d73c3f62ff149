// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package runtime

import (
	"time"

	"github.com/pbinitiative/zenproc/pkg/proc/model"
)

type ProcessDefinition struct {
	ProcessId   string         // the ID as declared in the process model
	Version     int32          // starts at 1, incremented when another model with the same ID is deployed
	VersionTag  string         // optional deployment-time tag used by versionTag bindings
	Key         int64          // the engine's key for this given process with version
	Definitions *model.Process // parsed model content
	Checksum    [16]byte       // internal checksum to identify different versions
	DeployedAt  time.Time
}

type ProcessInstance struct {
	Definition       *ProcessDefinition `json:"-"`
	Key              int64              `json:"k"`
	RootExecutionKey int64              `json:"re"`
	BusinessKey      string             `json:"bk,omitempty"`
	CreatedAt        time.Time          `json:"c"`
	State            ActivityState      `json:"s"`
}

func (pi *ProcessInstance) GetInstanceKey() int64 {
	return pi.Key
}

// GetState returns one of [ Ready, Active, Completed, Failed, Terminated ]
func (pi *ProcessInstance) GetState() ActivityState {
	return pi.State
}

// ActivityState as per BPMN 2.0 spec, section 13.2.2 Activity;
// executions and subscriptions share the same state machine.
type ActivityState string

const (
	ActivityStateReady      ActivityState = "READY"
	ActivityStateActive     ActivityState = "ACTIVE"
	ActivityStateCompleted  ActivityState = "COMPLETED"
	ActivityStateFailed     ActivityState = "FAILED"
	ActivityStateTerminated ActivityState = "TERMINATED"
	ActivityStateWithdrawn  ActivityState = "WITHDRAWN"
)

// VariableEvent is one recorded variable mutation, tagged with the
// execution it originated from for subscription matching.
type VariableEvent struct {
	Name               string
	Kind               model.VariableEventType
	OriginExecutionKey int64
}

type TimerState string

const (
	TimerStateCreated   TimerState = "CREATED"
	TimerStateTriggered TimerState = "TRIGGERED"
	TimerStateCancelled TimerState = "CANCELLED"
)

// Timer is created when an execution enters a construct guarded by a timer
// event definition. CreatedAt + Duration = DueAt.
type Timer struct {
	Key                 int64
	ElementId           string // event definition id
	ProcessInstanceKey  int64
	ExecutionKey        int64 // owning scope execution
	GuardedExecutionKey int64
	Interrupting        bool
	TimerState          TimerState
	CreatedAt           time.Time
	DueAt               time.Time
	Duration            time.Duration
}
