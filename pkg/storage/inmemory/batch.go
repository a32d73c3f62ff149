// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package inmemory

import (
	"context"
	"errors"

	"github.com/pbinitiative/zenproc/pkg/proc/runtime"
	"github.com/pbinitiative/zenproc/pkg/storage"
)

// StorageBatch queues statements as closures and replays them on Flush.
// The in-memory store cannot really roll back, so Flush applies all
// statements or, on the first error, stops and reports it; tests rely on
// errors being surfaced before any statement ran.
type StorageBatch struct {
	db        *Storage
	stmtToRun []func() error
	postFlush []func()
}

var _ storage.Batch = &StorageBatch{}

func (b *StorageBatch) SaveProcessDefinition(ctx context.Context, definition runtime.ProcessDefinition) error {
	b.stmtToRun = append(b.stmtToRun, func() error {
		return b.db.SaveProcessDefinition(ctx, definition)
	})
	return nil
}

func (b *StorageBatch) DeleteProcessDefinition(ctx context.Context, processDefinitionKey int64) error {
	b.stmtToRun = append(b.stmtToRun, func() error {
		return b.db.DeleteProcessDefinition(ctx, processDefinitionKey)
	})
	return nil
}

func (b *StorageBatch) SaveProcessInstance(ctx context.Context, processInstance runtime.ProcessInstance) error {
	b.stmtToRun = append(b.stmtToRun, func() error {
		return b.db.SaveProcessInstance(ctx, processInstance)
	})
	return nil
}

func (b *StorageBatch) DeleteProcessInstance(ctx context.Context, processInstanceKey int64) error {
	b.stmtToRun = append(b.stmtToRun, func() error {
		return b.db.DeleteProcessInstance(ctx, processInstanceKey)
	})
	return nil
}

func (b *StorageBatch) SaveExecution(ctx context.Context, execution runtime.Execution) error {
	b.stmtToRun = append(b.stmtToRun, func() error {
		return b.db.SaveExecution(ctx, execution)
	})
	return nil
}

func (b *StorageBatch) DeleteExecution(ctx context.Context, executionKey int64) error {
	b.stmtToRun = append(b.stmtToRun, func() error {
		return b.db.DeleteExecution(ctx, executionKey)
	})
	return nil
}

func (b *StorageBatch) SaveEventSubscription(ctx context.Context, subscription runtime.EventSubscription) error {
	b.stmtToRun = append(b.stmtToRun, func() error {
		return b.db.SaveEventSubscription(ctx, subscription)
	})
	return nil
}

func (b *StorageBatch) DeleteEventSubscription(ctx context.Context, subscriptionKey int64) error {
	b.stmtToRun = append(b.stmtToRun, func() error {
		return b.db.DeleteEventSubscription(ctx, subscriptionKey)
	})
	return nil
}

func (b *StorageBatch) SaveTimer(ctx context.Context, timer runtime.Timer) error {
	b.stmtToRun = append(b.stmtToRun, func() error {
		return b.db.SaveTimer(ctx, timer)
	})
	return nil
}

func (b *StorageBatch) AddPostFlushAction(ctx context.Context, action func()) {
	b.postFlush = append(b.postFlush, action)
}

func (b *StorageBatch) Flush(ctx context.Context) error {
	var errJoin error
	for _, stmt := range b.stmtToRun {
		if err := stmt(); err != nil {
			errJoin = errors.Join(errJoin, err)
			break
		}
	}
	b.stmtToRun = b.stmtToRun[:0]
	if errJoin != nil {
		b.postFlush = nil
		return errJoin
	}
	for _, action := range b.postFlush {
		action()
	}
	b.postFlush = nil
	return nil
}

func (b *StorageBatch) Clear(ctx context.Context) {
	b.stmtToRun = b.stmtToRun[:0]
	b.postFlush = nil
}
