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

// EventSubscription is a persistent trigger registration.
//
// Instance-bound subscriptions are owned by a scope execution
// (ExecutionKey); start-event subscriptions are owned by a process
// definition only (ExecutionKey and ProcessInstanceKey are zero) and exist
// for the latest deployed version of a definition key exclusively.
type EventSubscription struct {
	Key                  int64                     `json:"k"`
	Type                 model.EventType           `json:"t"`
	ProcessDefinitionKey int64                     `json:"pdk"`
	ProcessInstanceKey   int64                     `json:"pik,omitempty"`
	ExecutionKey         int64                     `json:"ek,omitempty"` // owning scope execution
	GuardedExecutionKey  int64                     `json:"gk,omitempty"` // execution cancelled by an interrupting trigger
	ElementId            string                    `json:"e"`            // event definition id
	EventName            string                    `json:"n,omitempty"`  // message/signal name
	Condition            string                    `json:"c,omitempty"`  // conditional configuration payload
	VariableName         string                    `json:"vn,omitempty"`
	VariableEvents       []model.VariableEventType `json:"ve,omitempty"`
	Interrupting         bool                      `json:"i,omitempty"`
	State                ActivityState             `json:"s"`
	CreatedAt            time.Time                 `json:"ca"`
}

func (s EventSubscription) GetKey() int64 {
	return s.Key
}

func (s EventSubscription) GetState() ActivityState {
	return s.State
}

// MatchesVariableEvent applies the variableName/variableEvents filters; the
// default with no kinds filter is create and update.
func (s EventSubscription) MatchesVariableEvent(ev VariableEvent) bool {
	if s.VariableName != "" && s.VariableName != ev.Name {
		return false
	}
	if len(s.VariableEvents) == 0 {
		return ev.Kind == model.VariableEventCreate || ev.Kind == model.VariableEventUpdate
	}
	for _, k := range s.VariableEvents {
		if k == ev.Kind {
			return true
		}
	}
	return false
}
