// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package model

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
)

// Process is the parsed declarative process graph as handed over by the
// model parser collaborator. The engine never mutates it after deployment.
type Process struct {
	Id   string
	Name string

	// VersionTag is an optional marker a call activity can bind to instead
	// of a version number.
	VersionTag string

	// StartEvents owned by the definition itself; conditional ones create a
	// start-event subscription for the latest deployed version.
	StartEvents []*EventDefinition

	// Events are instance-level event-subprocess triggers owned by the root
	// scope.
	Events []*EventDefinition

	// Activities under the root scope, entered concurrently on instance
	// start.
	Activities []*Activity

	// HasConditionalEvents is recomputed by Validate; when false the
	// engine skips all delayed-dispatch bookkeeping for instances of this
	// definition.
	HasConditionalEvents bool
}

// ComputeChecksum produces a stable fingerprint for version deduplication,
// similar to the bpmn data checksum of stored definitions.
func (p *Process) ComputeChecksum() [16]byte {
	data, err := json.Marshal(p)
	if err != nil {
		panic(fmt.Sprintf("[invariant check] process definition %s is not serializable: %s", p.Id, err))
	}
	return md5.Sum(data)
}

// FindActivity returns the activity with given id or nil.
func (p *Process) FindActivity(id string) *Activity {
	return FindActivityById(p.Activities, id)
}

// FindEventDefinition looks the event definition up by id across start
// events, scope events and boundary events of all activities.
func (p *Process) FindEventDefinition(id string) *EventDefinition {
	for _, e := range p.StartEvents {
		if e.Id == id {
			return e
		}
	}
	if e := findEventInScope(p.Events, p.Activities, id); e != nil {
		return e
	}
	return nil
}

func findEventInScope(events []*EventDefinition, activities []*Activity, id string) *EventDefinition {
	for _, e := range events {
		if e.Id == id {
			return e
		}
	}
	for _, a := range activities {
		for _, e := range a.Boundary {
			if e.Id == id {
				return e
			}
		}
		if e := findEventInScope(a.Events, a.Children, id); e != nil {
			return e
		}
	}
	return nil
}

// computeHasConditionalEvents walks the graph once; called by Validate.
func (p *Process) computeHasConditionalEvents() bool {
	for _, e := range p.StartEvents {
		if e.Type == EventTypeConditional {
			return true
		}
	}
	return hasConditionalInScope(p.Events, p.Activities)
}

func hasConditionalInScope(events []*EventDefinition, activities []*Activity) bool {
	for _, e := range events {
		if e.Type == EventTypeConditional {
			return true
		}
	}
	for _, a := range activities {
		for _, e := range a.Boundary {
			if e.Type == EventTypeConditional {
				return true
			}
		}
		if hasConditionalInScope(a.Events, a.Children) {
			return true
		}
	}
	return false
}
