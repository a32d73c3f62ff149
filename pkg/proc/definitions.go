// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package proc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pbinitiative/zenproc/pkg/proc/model"
	"github.com/pbinitiative/zenproc/pkg/proc/runtime"
	"github.com/pbinitiative/zenproc/pkg/storage"
)

// DeployProcessDefinition validates and stores a process model as the
// next version of its process ID. Deploying a model with an unchanged
// checksum returns the already stored version instead of creating a new
// one. Start-event subscriptions always follow the latest version: prior
// definition-owned subscriptions are dropped and re-created for the new
// version in the same batch.
func (engine *Engine) DeployProcessDefinition(ctx context.Context, process *model.Process) (*runtime.ProcessDefinition, error) {
	ctx, span := engine.tracer.Start(ctx, fmt.Sprintf("deploy:%s", process.Id))
	defer span.End()

	if err := process.Validate(); err != nil {
		return nil, err
	}
	checksum := process.ComputeChecksum()

	existing, err := engine.persistence.FindProcessDefinitionsById(ctx, process.Id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, errors.Join(newEngineErrorf("failed to load deployed versions of %s", process.Id), err)
	}
	version := int32(1)
	var previousLatest *runtime.ProcessDefinition
	if len(existing) > 0 {
		previousLatest = &existing[len(existing)-1]
		if previousLatest.Checksum == checksum {
			return previousLatest, nil
		}
		version = previousLatest.Version + 1
	}

	definition := runtime.ProcessDefinition{
		ProcessId:   process.Id,
		Version:     version,
		VersionTag:  process.VersionTag,
		Key:         engine.generateKey(),
		Definitions: process,
		Checksum:    checksum,
		DeployedAt:  time.Now(),
	}

	batch := engine.persistence.NewBatch()
	if err := batch.SaveProcessDefinition(ctx, definition); err != nil {
		return nil, err
	}
	if previousLatest != nil {
		if err := engine.dropStartEventSubscriptions(ctx, batch, previousLatest.Key); err != nil {
			return nil, err
		}
	}
	if err := engine.createStartEventSubscriptions(ctx, batch, &definition); err != nil {
		return nil, err
	}
	if err := batch.Flush(ctx); err != nil {
		return nil, errors.Join(newEngineErrorf("failed to deploy process %s", process.Id), err)
	}
	engine.definitionCache.Add(definition.Key, &definition)
	return &definition, nil
}

// DeleteProcessDefinitions removes the given definition versions in one
// transaction. When the latest version of a process ID goes away, its
// start-event subscriptions migrate backward through the version history
// to the nearest version that still exists, which may be several
// versions back.
func (engine *Engine) DeleteProcessDefinitions(ctx context.Context, processDefinitionKeys ...int64) error {
	batch := engine.persistence.NewBatch()

	deletedByProcessId := map[string]map[int64]bool{}
	for _, key := range processDefinitionKeys {
		definition, err := engine.persistence.FindProcessDefinitionByKey(ctx, key)
		if err != nil {
			return errors.Join(newEngineErrorf("failed to find process definition with key: %d", key), err)
		}
		if err := batch.DeleteProcessDefinition(ctx, key); err != nil {
			return err
		}
		if err := engine.dropStartEventSubscriptions(ctx, batch, key); err != nil {
			return err
		}
		if deletedByProcessId[definition.ProcessId] == nil {
			deletedByProcessId[definition.ProcessId] = map[int64]bool{}
		}
		deletedByProcessId[definition.ProcessId][key] = true
	}

	for processId, deletedKeys := range deletedByProcessId {
		versions, err := engine.persistence.FindProcessDefinitionsById(ctx, processId)
		if err != nil {
			return errors.Join(newEngineErrorf("failed to load deployed versions of %s", processId), err)
		}
		latestDeleted := len(versions) > 0 && deletedKeys[versions[len(versions)-1].Key]
		if !latestDeleted {
			continue
		}
		// walk backward through the version history to the nearest
		// version that survives the transaction
		var successor *runtime.ProcessDefinition
		for i := len(versions) - 1; i >= 0; i-- {
			if !deletedKeys[versions[i].Key] {
				successor = &versions[i]
				break
			}
		}
		if successor == nil {
			continue
		}
		if err := engine.createStartEventSubscriptions(ctx, batch, successor); err != nil {
			return err
		}
	}

	if err := batch.Flush(ctx); err != nil {
		return errors.Join(newEngineErrorf("failed to delete process definitions"), err)
	}
	for _, key := range processDefinitionKeys {
		engine.definitionCache.Remove(key)
	}
	return nil
}

func (engine *Engine) createStartEventSubscriptions(ctx context.Context, batch storage.Batch, definition *runtime.ProcessDefinition) error {
	for _, eventDef := range definition.Definitions.StartEvents {
		switch eventDef.Type {
		case model.EventTypeConditional, model.EventTypeMessage, model.EventTypeSignal:
		default:
			continue
		}
		subscription := engine.newStartEventSubscription(definition, eventDef)
		if err := batch.SaveEventSubscription(ctx, subscription); err != nil {
			return err
		}
	}
	return nil
}

func (engine *Engine) dropStartEventSubscriptions(ctx context.Context, batch storage.Batch, processDefinitionKey int64) error {
	subscriptions, err := engine.persistence.FindProcessDefinitionSubscriptions(ctx, processDefinitionKey)
	if err != nil {
		return errors.Join(newEngineErrorf("failed to load subscriptions of definition %d", processDefinitionKey), err)
	}
	for _, subscription := range subscriptions {
		if err := batch.DeleteEventSubscription(ctx, subscription.Key); err != nil {
			return err
		}
	}
	return nil
}

// definitionByKey reads a definition through the per-engine LRU cache;
// definitions are immutable after deployment so cached entries never go
// stale.
func (engine *Engine) definitionByKey(ctx context.Context, processDefinitionKey int64) (*runtime.ProcessDefinition, error) {
	if definition, ok := engine.definitionCache.Get(processDefinitionKey); ok {
		return definition, nil
	}
	definition, err := engine.persistence.FindProcessDefinitionByKey(ctx, processDefinitionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to find process definition with key %d: %w", processDefinitionKey, err)
	}
	engine.definitionCache.Add(processDefinitionKey, &definition)
	return &definition, nil
}
