// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package model

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseYAML reads a declarative process document, validates it and
// precomputes the conditional-events flag; the textual counterpart of the
// programmatic ProcessBuilder.
func ParseYAML(data []byte) (*Process, error) {
	var doc processYaml
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse process document: %w", err)
	}
	process := doc.toProcess()
	if err := process.Validate(); err != nil {
		return nil, err
	}
	return process, nil
}

type processYaml struct {
	Id          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	VersionTag  string         `yaml:"versionTag"`
	StartEvents []eventYaml    `yaml:"startEvents"`
	Events      []eventYaml    `yaml:"events"`
	Activities  []activityYaml `yaml:"activities"`
}

type activityYaml struct {
	Id            string             `yaml:"id"`
	Name          string             `yaml:"name"`
	Type          ElementType        `yaml:"type"`
	TaskType      string             `yaml:"taskType"`
	Children      []activityYaml     `yaml:"children"`
	Boundary      []eventYaml        `yaml:"boundary"`
	Events        []eventYaml        `yaml:"events"`
	CalledElement *calledElementYaml `yaml:"calledElement"`
	IoMapping     ioMappingYaml      `yaml:"ioMapping"`
	MultiInstance *multiInstanceYaml `yaml:"multiInstance"`
}

type eventYaml struct {
	Id             string              `yaml:"id"`
	Type           EventType           `yaml:"type"`
	Interrupting   bool                `yaml:"interrupting"`
	Condition      string              `yaml:"condition"`
	VariableName   string              `yaml:"variableName"`
	VariableEvents []VariableEventType `yaml:"variableEvents"`
	MessageName    string              `yaml:"messageName"`
	Duration       string              `yaml:"duration"`
	ErrorCode      string              `yaml:"errorCode"`
	Handler        *activityYaml       `yaml:"handler"`
}

type calledElementYaml struct {
	ProcessId             string      `yaml:"processId"`
	BindingType           BindingType `yaml:"bindingType"`
	VersionTag            string      `yaml:"versionTag"`
	BusinessKeyExpression string      `yaml:"businessKeyExpression"`
	NoBusinessKey         bool        `yaml:"noBusinessKey"`
}

type ioMappingYaml struct {
	Inputs                      []ioStepYaml `yaml:"inputs"`
	Outputs                     []ioStepYaml `yaml:"outputs"`
	CopyAllInput                bool         `yaml:"copyAllInput"`
	CopyAllOutput               bool         `yaml:"copyAllOutput"`
	PropagateAllParentVariables bool         `yaml:"propagateAllParentVariables"`
	OutputOnError               bool         `yaml:"outputOnError"`
}

type ioStepYaml struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
	Local  bool   `yaml:"local"`
}

type multiInstanceYaml struct {
	Cardinality               int    `yaml:"cardinality"`
	InputCollectionExpression string `yaml:"inputCollection"`
	InputElementName          string `yaml:"inputElement"`
}

func (d processYaml) toProcess() *Process {
	return &Process{
		Id:          d.Id,
		Name:        d.Name,
		VersionTag:  d.VersionTag,
		StartEvents: toEvents(d.StartEvents),
		Events:      toEvents(d.Events),
		Activities:  toActivities(d.Activities),
	}
}

func toActivities(docs []activityYaml) []*Activity {
	if len(docs) == 0 {
		return nil
	}
	result := make([]*Activity, 0, len(docs))
	for _, doc := range docs {
		result = append(result, doc.toActivity())
	}
	return result
}

func (d activityYaml) toActivity() *Activity {
	activity := &Activity{
		Id:       d.Id,
		Name:     d.Name,
		Type:     d.Type,
		TaskType: d.TaskType,
		Children: toActivities(d.Children),
		Boundary: toEvents(d.Boundary),
		Events:   toEvents(d.Events),
		IoMapping: IoMapping{
			Inputs:                      toSteps(d.IoMapping.Inputs),
			Outputs:                     toSteps(d.IoMapping.Outputs),
			CopyAllInput:                d.IoMapping.CopyAllInput,
			CopyAllOutput:               d.IoMapping.CopyAllOutput,
			PropagateAllParentVariables: d.IoMapping.PropagateAllParentVariables,
			OutputOnError:               d.IoMapping.OutputOnError,
		},
	}
	if d.CalledElement != nil {
		activity.CalledElement = &CalledElement{
			ProcessId:             d.CalledElement.ProcessId,
			BindingType:           d.CalledElement.BindingType,
			VersionTag:            d.CalledElement.VersionTag,
			BusinessKeyExpression: d.CalledElement.BusinessKeyExpression,
			NoBusinessKey:         d.CalledElement.NoBusinessKey,
		}
	}
	if d.MultiInstance != nil {
		activity.MultiInstance = &MultiInstance{
			Cardinality:               d.MultiInstance.Cardinality,
			InputCollectionExpression: d.MultiInstance.InputCollectionExpression,
			InputElementName:          d.MultiInstance.InputElementName,
		}
	}
	return activity
}

func toEvents(docs []eventYaml) []*EventDefinition {
	if len(docs) == 0 {
		return nil
	}
	result := make([]*EventDefinition, 0, len(docs))
	for _, doc := range docs {
		event := &EventDefinition{
			Id:             doc.Id,
			Type:           doc.Type,
			Interrupting:   doc.Interrupting,
			Condition:      doc.Condition,
			VariableName:   doc.VariableName,
			VariableEvents: doc.VariableEvents,
			MessageName:    doc.MessageName,
			Duration:       doc.Duration,
			ErrorCode:      doc.ErrorCode,
		}
		if doc.Handler != nil {
			event.Handler = doc.Handler.toActivity()
		}
		result = append(result, event)
	}
	return result
}

func toSteps(docs []ioStepYaml) []IoStep {
	if len(docs) == 0 {
		return nil
	}
	result := make([]IoStep, 0, len(docs))
	for _, doc := range docs {
		result = append(result, IoStep{Source: doc.Source, Target: doc.Target, Local: doc.Local})
	}
	return result
}
