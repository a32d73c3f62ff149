// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package runtime

import (
	"time"
)

// Execution is one node of the runtime tree of a process instance.
//
// Parent/child edges stay inside one process instance; SuperExecutionKey is
// a weak cross-instance reference to the execution that invoked this
// instance through a call boundary (set on root executions only). It is
// resolved through storage, never held as a pointer, so two instance trees
// never own each other.
type Execution struct {
	Key                  int64         `json:"k"`
	ProcessInstanceKey   int64         `json:"pik"`
	ProcessDefinitionKey int64         `json:"pdk"`
	ParentKey            int64         `json:"p,omitempty"`  // 0 for the root execution
	SuperExecutionKey    int64         `json:"se,omitempty"` // calling execution, root only
	SuperInstanceKey     int64         `json:"si,omitempty"` // calling execution's instance, root only
	ElementId            string        `json:"e,omitempty"`  // current activity, empty for the root
	State                ActivityState `json:"s"`
	IsScope              bool          `json:"sc,omitempty"` // owns a variable store and subscriptions
	IsConcurrent         bool          `json:"cc,omitempty"` // sibling branch under a shared parent
	Suspended            bool          `json:"su,omitempty"`
	CreatedAt            time.Time     `json:"c"`

	// Variables is the local store; populated on scope executions only,
	// non-scope executions delegate to the nearest scope ancestor.
	Variables map[string]interface{} `json:"v,omitempty"`

	// transientNames marks variables that live for the current dispatch
	// cycle only; they are never persisted and never take part in
	// copy-all mappings.
	transientNames map[string]bool
}

func (e *Execution) GetKey() int64 {
	return e.Key
}

func (e *Execution) GetState() ActivityState {
	return e.State
}

func (e *Execution) IsRoot() bool {
	return e.ParentKey == 0
}

func (e *Execution) IsEnded() bool {
	return e.State == ActivityStateCompleted || e.State == ActivityStateTerminated
}

func (e *Execution) SetTransient(name string) {
	if e.transientNames == nil {
		e.transientNames = map[string]bool{}
	}
	e.transientNames[name] = true
}

func (e *Execution) IsTransient(name string) bool {
	return e.transientNames[name]
}

// DropTransientVariables removes the transient bindings; called at the end
// of a dispatch cycle and before the execution is persisted.
func (e *Execution) DropTransientVariables() {
	for name := range e.transientNames {
		delete(e.Variables, name)
	}
	e.transientNames = nil
}
