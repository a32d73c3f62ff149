// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package inmemory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/pbinitiative/zenproc/pkg/proc/model"
	"github.com/pbinitiative/zenproc/pkg/proc/runtime"
	"github.com/pbinitiative/zenproc/pkg/storage"
)

// Storage keeps engine state in memory,
// please use NewStorage to create a new object of this type.
type Storage struct {
	mu                 sync.RWMutex
	ProcessDefinitions map[int64]runtime.ProcessDefinition
	ProcessInstances   map[int64]runtime.ProcessInstance
	Executions         map[int64]runtime.Execution
	EventSubscriptions map[int64]runtime.EventSubscription
	Timers             map[int64]runtime.Timer
}

func NewStorage() *Storage {
	return &Storage{
		ProcessDefinitions: make(map[int64]runtime.ProcessDefinition),
		ProcessInstances:   make(map[int64]runtime.ProcessInstance),
		Executions:         make(map[int64]runtime.Execution),
		EventSubscriptions: make(map[int64]runtime.EventSubscription),
		Timers:             make(map[int64]runtime.Timer),
	}
}

var _ storage.Storage = &Storage{}

func (mem *Storage) NewBatch() storage.Batch {
	return &StorageBatch{
		db:        mem,
		stmtToRun: make([]func() error, 0, 10),
	}
}

var _ storage.ProcessDefinitionStorageReader = &Storage{}

func (mem *Storage) FindLatestProcessDefinitionById(ctx context.Context, processId string) (runtime.ProcessDefinition, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	var res runtime.ProcessDefinition
	found := false
	for _, def := range mem.ProcessDefinitions {
		if def.ProcessId != processId {
			continue
		}
		if found && def.Version < res.Version {
			continue
		}
		found = true
		res = def
	}
	if !found {
		return res, storage.ErrNotFound
	}
	return res, nil
}

func (mem *Storage) FindProcessDefinitionByKey(ctx context.Context, processDefinitionKey int64) (runtime.ProcessDefinition, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res, ok := mem.ProcessDefinitions[processDefinitionKey]
	if !ok {
		return res, storage.ErrNotFound
	}
	return res, nil
}

func (mem *Storage) FindProcessDefinitionsById(ctx context.Context, processId string) ([]runtime.ProcessDefinition, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.ProcessDefinition, 0)
	for _, def := range mem.ProcessDefinitions {
		if def.ProcessId != processId {
			continue
		}
		res = append(res, def)
	}
	slices.SortFunc(res, func(a, b runtime.ProcessDefinition) int {
		return int(a.Version - b.Version)
	})
	return res, nil
}

func (mem *Storage) FindProcessDefinitionsByIdAndVersionTag(ctx context.Context, processId string, versionTag string) ([]runtime.ProcessDefinition, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.ProcessDefinition, 0)
	for _, def := range mem.ProcessDefinitions {
		if def.ProcessId != processId {
			continue
		}
		if def.VersionTag == versionTag {
			res = append(res, def)
		}
	}
	return res, nil
}

var _ storage.ProcessDefinitionStorageWriter = &Storage{}

func (mem *Storage) SaveProcessDefinition(ctx context.Context, definition runtime.ProcessDefinition) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	mem.ProcessDefinitions[definition.Key] = definition
	return nil
}

func (mem *Storage) DeleteProcessDefinition(ctx context.Context, processDefinitionKey int64) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	if _, ok := mem.ProcessDefinitions[processDefinitionKey]; !ok {
		return storage.ErrNotFound
	}
	delete(mem.ProcessDefinitions, processDefinitionKey)
	return nil
}

var _ storage.ProcessInstanceStorageReader = &Storage{}

func (mem *Storage) FindProcessInstanceByKey(ctx context.Context, processInstanceKey int64) (runtime.ProcessInstance, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res, ok := mem.ProcessInstances[processInstanceKey]
	if !ok {
		return res, storage.ErrNotFound
	}
	return res, nil
}

var _ storage.ProcessInstanceStorageWriter = &Storage{}

func (mem *Storage) SaveProcessInstance(ctx context.Context, processInstance runtime.ProcessInstance) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	mem.ProcessInstances[processInstance.Key] = processInstance
	return nil
}

func (mem *Storage) DeleteProcessInstance(ctx context.Context, processInstanceKey int64) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	delete(mem.ProcessInstances, processInstanceKey)
	return nil
}

var _ storage.ExecutionStorageReader = &Storage{}

func (mem *Storage) FindExecutionByKey(ctx context.Context, executionKey int64) (runtime.Execution, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res, ok := mem.Executions[executionKey]
	if !ok {
		return res, storage.ErrNotFound
	}
	return cloneExecution(res), nil
}

func (mem *Storage) FindProcessInstanceExecutions(ctx context.Context, processInstanceKey int64) ([]runtime.Execution, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.Execution, 0)
	for _, e := range mem.Executions {
		if e.ProcessInstanceKey == processInstanceKey {
			res = append(res, cloneExecution(e))
		}
	}
	// parents were created before their children, key order is good enough
	slices.SortFunc(res, func(a, b runtime.Execution) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		}
		return 0
	})
	return res, nil
}

func (mem *Storage) FindSuperExecutionCallee(ctx context.Context, superExecutionKey int64) (runtime.Execution, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	for _, e := range mem.Executions {
		if e.SuperExecutionKey == superExecutionKey {
			return cloneExecution(e), nil
		}
	}
	return runtime.Execution{}, storage.ErrNotFound
}

var _ storage.ExecutionStorageWriter = &Storage{}

func (mem *Storage) SaveExecution(ctx context.Context, execution runtime.Execution) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	mem.Executions[execution.Key] = cloneExecution(execution)
	return nil
}

func (mem *Storage) DeleteExecution(ctx context.Context, executionKey int64) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	delete(mem.Executions, executionKey)
	return nil
}

var _ storage.EventSubscriptionStorageReader = &Storage{}

func (mem *Storage) FindExecutionSubscriptions(ctx context.Context, executionKey int64, state runtime.ActivityState) ([]runtime.EventSubscription, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.EventSubscription, 0)
	for _, s := range mem.EventSubscriptions {
		if s.ExecutionKey == executionKey && s.State == state {
			res = append(res, s)
		}
	}
	sortSubscriptions(res)
	return res, nil
}

func (mem *Storage) FindProcessInstanceSubscriptions(ctx context.Context, processInstanceKey int64, state runtime.ActivityState) ([]runtime.EventSubscription, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.EventSubscription, 0)
	for _, s := range mem.EventSubscriptions {
		if s.ProcessInstanceKey == processInstanceKey && s.State == state {
			res = append(res, s)
		}
	}
	sortSubscriptions(res)
	return res, nil
}

func (mem *Storage) FindMatchingSubscriptions(ctx context.Context, eventType model.EventType, eventName string, state runtime.ActivityState) ([]runtime.EventSubscription, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.EventSubscription, 0)
	for _, s := range mem.EventSubscriptions {
		if s.Type == eventType && s.EventName == eventName && s.State == state && s.ProcessInstanceKey != 0 {
			res = append(res, s)
		}
	}
	sortSubscriptions(res)
	return res, nil
}

func (mem *Storage) FindStartEventSubscriptions(ctx context.Context, eventType model.EventType) ([]runtime.EventSubscription, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.EventSubscription, 0)
	for _, s := range mem.EventSubscriptions {
		if s.Type == eventType && s.ProcessInstanceKey == 0 && s.ExecutionKey == 0 {
			res = append(res, s)
		}
	}
	sortSubscriptions(res)
	return res, nil
}

func (mem *Storage) FindProcessDefinitionSubscriptions(ctx context.Context, processDefinitionKey int64) ([]runtime.EventSubscription, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.EventSubscription, 0)
	for _, s := range mem.EventSubscriptions {
		if s.ProcessDefinitionKey == processDefinitionKey && s.ProcessInstanceKey == 0 {
			res = append(res, s)
		}
	}
	sortSubscriptions(res)
	return res, nil
}

var _ storage.EventSubscriptionStorageWriter = &Storage{}

func (mem *Storage) SaveEventSubscription(ctx context.Context, subscription runtime.EventSubscription) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	mem.EventSubscriptions[subscription.Key] = subscription
	return nil
}

func (mem *Storage) DeleteEventSubscription(ctx context.Context, subscriptionKey int64) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	delete(mem.EventSubscriptions, subscriptionKey)
	return nil
}

var _ storage.TimerStorageReader = &Storage{}

func (mem *Storage) FindTimersTo(ctx context.Context, end time.Time) ([]runtime.Timer, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.Timer, 0)
	for _, t := range mem.Timers {
		if t.TimerState == runtime.TimerStateCreated && t.DueAt.Before(end) {
			res = append(res, t)
		}
	}
	return res, nil
}

func (mem *Storage) FindProcessInstanceTimers(ctx context.Context, processInstanceKey int64, state runtime.TimerState) ([]runtime.Timer, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.Timer, 0)
	for _, t := range mem.Timers {
		if t.ProcessInstanceKey == processInstanceKey && t.TimerState == state {
			res = append(res, t)
		}
	}
	return res, nil
}

var _ storage.TimerStorageWriter = &Storage{}

func (mem *Storage) SaveTimer(ctx context.Context, timer runtime.Timer) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	mem.Timers[timer.Key] = timer
	return nil
}

// cloneExecution detaches the variable store of a row crossing the storage
// boundary. Engine operations mutate their copy freely and the stored row
// must only change on a batch flush; a shared map would make uncommitted
// writes visible.
func cloneExecution(e runtime.Execution) runtime.Execution {
	e.Variables = maps.Clone(e.Variables)
	return e
}

// sortSubscriptions keeps registry return order stable (creation order,
// snowflake keys are monotonic).
func sortSubscriptions(subs []runtime.EventSubscription) {
	slices.SortFunc(subs, func(a, b runtime.EventSubscription) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		}
		return 0
	})
}
