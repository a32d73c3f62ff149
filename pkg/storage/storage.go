// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/pbinitiative/zenproc/pkg/proc/model"
	"github.com/pbinitiative/zenproc/pkg/proc/runtime"
)

// ErrNotFound is returned by lookups that are expected to return exactly
// one match when the result does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the persistence contract of the engine. Every engine
// operation collects its mutations into a Batch that the storage layer
// must commit atomically together with the triggering external event; a
// crash between commits must never leave a dangling super-execution
// reference or an orphaned subscription.
//
// Operations against one process-instance tree must be serialized by the
// storage layer (lock or optimistic versioning); concurrent writers get a
// conflict error to be retried by the caller.
type Storage interface {
	ProcessDefinitionStorageReader
	ProcessDefinitionStorageWriter
	ProcessInstanceStorageReader
	ProcessInstanceStorageWriter
	ExecutionStorageReader
	ExecutionStorageWriter
	EventSubscriptionStorageReader
	EventSubscriptionStorageWriter
	TimerStorageReader
	TimerStorageWriter

	NewBatch() Batch
}

// Batch collects the entity upserts/deletes of one logical operation.
type Batch interface {
	ProcessDefinitionStorageWriter
	ProcessInstanceStorageWriter
	ExecutionStorageWriter
	EventSubscriptionStorageWriter
	TimerStorageWriter

	// AddPostFlushAction registers a callback invoked after a successful
	// Flush; used for follow-up work that must only run once the operation
	// is durable.
	AddPostFlushAction(ctx context.Context, action func())

	// Flush commits the batch atomically and prepares it for new
	// statements.
	Flush(ctx context.Context) error

	// Clear drops all statements collected so far without committing.
	Clear(ctx context.Context)
}

type ProcessDefinitionStorageReader interface {
	// FindLatestProcessDefinitionById returns the definition with the
	// highest version for given process ID
	FindLatestProcessDefinitionById(ctx context.Context, processId string) (runtime.ProcessDefinition, error)

	FindProcessDefinitionByKey(ctx context.Context, processDefinitionKey int64) (runtime.ProcessDefinition, error)

	// FindProcessDefinitionsById returns zero or many deployed definitions
	// with given ID, ordered by version number, from 1 (first) to the
	// largest version (last)
	FindProcessDefinitionsById(ctx context.Context, processId string) ([]runtime.ProcessDefinition, error)

	// FindProcessDefinitionsByIdAndVersionTag resolves a versionTag
	// binding; the caller decides how to treat zero or multiple matches
	FindProcessDefinitionsByIdAndVersionTag(ctx context.Context, processId string, versionTag string) ([]runtime.ProcessDefinition, error)
}

type ProcessDefinitionStorageWriter interface {
	// SaveProcessDefinition persists a ProcessDefinition and potentially
	// overwrites prior data stored with the given Key
	SaveProcessDefinition(ctx context.Context, definition runtime.ProcessDefinition) error

	DeleteProcessDefinition(ctx context.Context, processDefinitionKey int64) error
}

type ProcessInstanceStorageReader interface {
	FindProcessInstanceByKey(ctx context.Context, processInstanceKey int64) (runtime.ProcessInstance, error)
}

type ProcessInstanceStorageWriter interface {
	// SaveProcessInstance persists the instance and potentially overwrites
	// prior data stored with given process instance key
	SaveProcessInstance(ctx context.Context, processInstance runtime.ProcessInstance) error

	DeleteProcessInstance(ctx context.Context, processInstanceKey int64) error
}

type ExecutionStorageReader interface {
	FindExecutionByKey(ctx context.Context, executionKey int64) (runtime.Execution, error)

	// FindProcessInstanceExecutions returns all executions of one instance
	// tree, parents ordered before children
	FindProcessInstanceExecutions(ctx context.Context, processInstanceKey int64) ([]runtime.Execution, error)

	// FindSuperExecutionCallee returns the root execution whose
	// SuperExecutionKey matches; used to walk call links downward
	FindSuperExecutionCallee(ctx context.Context, superExecutionKey int64) (runtime.Execution, error)
}

type ExecutionStorageWriter interface {
	SaveExecution(ctx context.Context, execution runtime.Execution) error

	DeleteExecution(ctx context.Context, executionKey int64) error
}

type EventSubscriptionStorageReader interface {
	// FindExecutionSubscriptions returns subscriptions owned by the given
	// scope execution
	FindExecutionSubscriptions(ctx context.Context, executionKey int64, state runtime.ActivityState) ([]runtime.EventSubscription, error)

	FindProcessInstanceSubscriptions(ctx context.Context, processInstanceKey int64, state runtime.ActivityState) ([]runtime.EventSubscription, error)

	// FindMatchingSubscriptions is the message/signal correlation query
	FindMatchingSubscriptions(ctx context.Context, eventType model.EventType, eventName string, state runtime.ActivityState) ([]runtime.EventSubscription, error)

	// FindStartEventSubscriptions returns definition-owned subscriptions
	// (no execution, no instance)
	FindStartEventSubscriptions(ctx context.Context, eventType model.EventType) ([]runtime.EventSubscription, error)

	FindProcessDefinitionSubscriptions(ctx context.Context, processDefinitionKey int64) ([]runtime.EventSubscription, error)
}

type EventSubscriptionStorageWriter interface {
	// SaveEventSubscription persists the subscription and potentially
	// overwrites prior data stored with given key
	SaveEventSubscription(ctx context.Context, subscription runtime.EventSubscription) error

	DeleteEventSubscription(ctx context.Context, subscriptionKey int64) error
}

type TimerStorageReader interface {
	// FindTimersTo returns timers with due date before end in CREATED state
	FindTimersTo(ctx context.Context, end time.Time) ([]runtime.Timer, error)

	FindProcessInstanceTimers(ctx context.Context, processInstanceKey int64, state runtime.TimerState) ([]runtime.Timer, error)
}

type TimerStorageWriter interface {
	// SaveTimer persists the Timer and potentially overwrites prior data
	// stored with given key
	SaveTimer(ctx context.Context, timer runtime.Timer) error
}
