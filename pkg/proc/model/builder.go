// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package model

// ProcessBuilder assembles a Process the way the parser collaborator
// would; mainly used by tests and embedded deployments.
type ProcessBuilder struct {
	process *Process
}

func NewProcess(id string) *ProcessBuilder {
	return &ProcessBuilder{process: &Process{Id: id}}
}

func (b *ProcessBuilder) Name(name string) *ProcessBuilder {
	b.process.Name = name
	return b
}

func (b *ProcessBuilder) AddActivity(a *Activity) *ProcessBuilder {
	b.process.Activities = append(b.process.Activities, a)
	return b
}

func (b *ProcessBuilder) AddStartEvent(e *EventDefinition) *ProcessBuilder {
	b.process.StartEvents = append(b.process.StartEvents, e)
	return b
}

func (b *ProcessBuilder) AddEvent(e *EventDefinition) *ProcessBuilder {
	b.process.Events = append(b.process.Events, e)
	return b
}

// Build validates the definition; Validate precomputes the
// conditional-events flag. A ValidationError is returned for a rejected
// definition.
func (b *ProcessBuilder) Build() (*Process, error) {
	if err := b.process.Validate(); err != nil {
		return nil, err
	}
	return b.process, nil
}

// Task is a convenience constructor for a plain task activity.
func Task(id string, taskType string) *Activity {
	return &Activity{Id: id, Type: ElementTypeTask, TaskType: taskType}
}

// Scope is a convenience constructor for an embedded scope with children.
func Scope(id string, children ...*Activity) *Activity {
	return &Activity{Id: id, Type: ElementTypeScope, Children: children}
}

// CallActivity is a convenience constructor for a call activity with
// latest-version binding.
func CallActivity(id string, processId string) *Activity {
	return &Activity{
		Id:   id,
		Type: ElementTypeCallActivity,
		CalledElement: &CalledElement{
			ProcessId:   processId,
			BindingType: BindingTypeLatest,
		},
	}
}
