// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package model

import "fmt"

// ValidationError rejects a definition at deployment time; the deployment
// is refused wholesale.
type ValidationError struct {
	ElementId string
	Msg       string
}

func (e *ValidationError) Error() string {
	if e.ElementId != "" {
		return fmt.Sprintf("invalid process definition, element %s: %s", e.ElementId, e.Msg)
	}
	return "invalid process definition: " + e.Msg
}

func newValidationErrorf(elementId string, format string, a ...interface{}) error {
	return &ValidationError{ElementId: elementId, Msg: fmt.Sprintf(format, a...)}
}

// Validate checks the deploy-time invariants:
//   - two conditional events with an identical condition under the same
//     parent scope are rejected,
//   - every enumerated io mapping step needs a target,
//   - a versionTag binding needs a version tag value,
//   - event definitions need a handler except definition start events.
//
// An accepted definition also gets its HasConditionalEvents flag
// recomputed, so the flag holds no matter how the Process was assembled.
func (p *Process) Validate() error {
	if p.Id == "" {
		return newValidationErrorf("", "missing process id")
	}
	for _, e := range p.StartEvents {
		if e.Type == EventTypeConditional && e.Condition == "" {
			return newValidationErrorf(e.Id, "conditional start event without condition")
		}
	}
	if err := checkDuplicateConditions(p.StartEvents); err != nil {
		return err
	}
	if err := checkDuplicateConditions(p.Events); err != nil {
		return err
	}
	if err := validateScope(p.Events, p.Activities); err != nil {
		return err
	}
	p.HasConditionalEvents = p.computeHasConditionalEvents()
	return nil
}

func validateScope(events []*EventDefinition, activities []*Activity) error {
	for _, e := range events {
		if err := validateEvent(e); err != nil {
			return err
		}
	}
	for _, a := range activities {
		if err := validateActivity(a); err != nil {
			return err
		}
	}
	return nil
}

func validateActivity(a *Activity) error {
	if a.Id == "" {
		return newValidationErrorf("", "missing activity id")
	}
	for _, step := range a.IoMapping.Inputs {
		if step.Target == "" {
			return newValidationErrorf(a.Id, "Missing attribute 'target' in input mapping")
		}
	}
	for _, step := range a.IoMapping.Outputs {
		if step.Target == "" {
			return newValidationErrorf(a.Id, "Missing attribute 'target' in output mapping")
		}
	}
	if a.Type == ElementTypeCallActivity {
		if a.CalledElement == nil {
			return newValidationErrorf(a.Id, "call activity without called element")
		}
		if a.CalledElement.BindingType == BindingTypeVersionTag && a.CalledElement.VersionTag == "" {
			return newValidationErrorf(a.Id, "Missing attribute 'versionTag' for versionTag binding")
		}
	}
	if err := checkDuplicateConditions(a.Boundary); err != nil {
		return err
	}
	if err := checkDuplicateConditions(a.Events); err != nil {
		return err
	}
	for _, e := range a.Boundary {
		if err := validateEvent(e); err != nil {
			return err
		}
	}
	return validateScope(a.Events, a.Children)
}

func validateEvent(e *EventDefinition) error {
	if e.Handler == nil {
		return newValidationErrorf(e.Id, "event definition without handler activity")
	}
	if e.Type == EventTypeConditional && e.Condition == "" {
		return newValidationErrorf(e.Id, "conditional event without condition")
	}
	if e.Type == EventTypeTimer && e.Duration == "" {
		return newValidationErrorf(e.Id, "timer event without duration")
	}
	if e.Handler != nil {
		return validateActivity(e.Handler)
	}
	return nil
}

// checkDuplicateConditions rejects two conditional events with the same
// condition string under one parent.
func checkDuplicateConditions(events []*EventDefinition) error {
	seen := map[string]string{}
	for _, e := range events {
		if e.Type != EventTypeConditional {
			continue
		}
		if otherId, ok := seen[e.Condition]; ok {
			return newValidationErrorf(e.Id, "duplicate conditional event with same condition as element %s", otherId)
		}
		seen[e.Condition] = e.Id
	}
	return nil
}
