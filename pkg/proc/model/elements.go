// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package model

// ElementType is the closed set of activity kinds the engine can execute.
// The model parser (external collaborator) produces these; the engine
// dispatches exhaustively over them.
type ElementType string

const (
	ElementTypeTask         ElementType = "TASK"
	ElementTypeScope        ElementType = "SCOPE"
	ElementTypeCallActivity ElementType = "CALL_ACTIVITY"
)

// Activity is one node of the declarative process graph.
//
// A SCOPE activity owns a variable scope at runtime; its Children enter
// concurrently when the scope enters and the scope completes when the last
// child completes. Boundary events guard the activity itself, Events are
// event-subprocess style triggers owned by the scope.
type Activity struct {
	Id   string
	Name string
	Type ElementType

	// Children of a SCOPE activity, empty otherwise.
	Children []*Activity

	// Boundary events attached to this activity.
	Boundary []*EventDefinition

	// Events are scope-owned triggers (event-subprocess start events);
	// only valid on SCOPE activities and on the process itself.
	Events []*EventDefinition

	// TaskType names the handler for TASK activities.
	TaskType string

	CalledElement *CalledElement

	IoMapping IoMapping

	// MultiInstance, when set, runs the activity once per cardinality with
	// the loop bookkeeping variables written into the enclosing scope.
	MultiInstance *MultiInstance
}

func (a *Activity) GetId() string        { return a.Id }
func (a *Activity) GetName() string      { return a.Name }
func (a *Activity) GetType() ElementType { return a.Type }

func (a *Activity) GetInputMapping() []IoStep  { return a.IoMapping.Inputs }
func (a *Activity) GetOutputMapping() []IoStep { return a.IoMapping.Outputs }

// FindActivityById walks the activity tree depth first.
func FindActivityById(root []*Activity, id string) *Activity {
	for _, a := range root {
		if a.Id == id {
			return a
		}
		if found := FindActivityById(a.Children, id); found != nil {
			return found
		}
	}
	return nil
}

// MultiInstance describes parallel multi-instance execution of an activity.
// Cardinality instances are created at once; the structural variables
// nrOfInstances, nrOfActiveInstances and loopCounter are maintained by the
// engine in the enclosing scope.
type MultiInstance struct {
	Cardinality int
	// InputCollectionExpression, when set, overrides Cardinality with the
	// length of the evaluated collection and binds InputElementName per
	// instance.
	InputCollectionExpression string
	InputElementName          string
}
