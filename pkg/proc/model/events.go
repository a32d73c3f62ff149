// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package model

type EventType string

const (
	EventTypeConditional EventType = "CONDITIONAL"
	EventTypeMessage     EventType = "MESSAGE"
	EventTypeSignal      EventType = "SIGNAL"
	EventTypeTimer       EventType = "TIMER"
	EventTypeError       EventType = "ERROR"
	EventTypeCompensate  EventType = "COMPENSATE"
)

// VariableEventType is the kind of variable mutation a conditional event
// can subscribe to.
type VariableEventType string

const (
	VariableEventCreate VariableEventType = "CREATE"
	VariableEventUpdate VariableEventType = "UPDATE"
	VariableEventDelete VariableEventType = "DELETE"
)

// EventDefinition declares one trigger, either attached to the boundary of
// an activity, owned by a scope (event subprocess start) or owned by the
// process definition itself (start event).
type EventDefinition struct {
	Id   string
	Type EventType

	// Interrupting events cancel the guarded activity/scope when they fire,
	// non-interrupting ones spawn a concurrent branch next to it.
	Interrupting bool

	// Condition for CONDITIONAL events; evaluated by the configured script
	// runtime, expressions carry the "=" prefix.
	Condition string

	// VariableName restricts a conditional event to mutations of one
	// variable; empty means any variable.
	VariableName string

	// VariableEvents restricts the mutation kinds; empty means create and
	// update. Delete events never match unless listed here explicitly.
	VariableEvents []VariableEventType

	// MessageName for MESSAGE and SIGNAL events.
	MessageName string

	// Duration for TIMER events, ISO-8601 (e.g. PT15M).
	Duration string

	ErrorCode string

	// Handler is the activity started when the event fires.
	Handler *Activity
}

// MatchesVariableEvent reports whether a variable mutation of the given
// kind passes this definition's filters. The condition itself is not
// evaluated here.
func (e *EventDefinition) MatchesVariableEvent(name string, kind VariableEventType) bool {
	if e.VariableName != "" && e.VariableName != name {
		return false
	}
	if len(e.VariableEvents) == 0 {
		return kind == VariableEventCreate || kind == VariableEventUpdate
	}
	for _, k := range e.VariableEvents {
		if k == kind {
			return true
		}
	}
	return false
}
