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
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru/v2"
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/pbinitiative/zenproc/pkg/otel"
	"github.com/pbinitiative/zenproc/pkg/proc/model"
	"github.com/pbinitiative/zenproc/pkg/proc/runtime"
	"github.com/pbinitiative/zenproc/pkg/script"
	"github.com/pbinitiative/zenproc/pkg/script/feel"
	"github.com/pbinitiative/zenproc/pkg/storage"
)

const definitionCacheSize = 128

type Engine struct {
	name            string
	taskHandlers    []*taskHandler
	taskhandlersMu  sync.RWMutex
	snowflake       *snowflake.Node
	persistence     storage.Storage
	scriptRuntime   script.Runtime
	logger          hclog.Logger
	tracer          trace.Tracer
	metrics         *otel.EngineMetrics
	definitionCache *lru.Cache[int64, *runtime.ProcessDefinition]
	timerManager    *timerManager
	timerPollDelay  time.Duration
}

type EngineOption = func(*Engine)

// NewEngine creates a new instance of the process engine;
func NewEngine(options ...EngineOption) *Engine {
	name := fmt.Sprintf("Proc-Engine-%d", getGlobalSnowflakeIdGenerator().Generate().Int64())
	cache, err := lru.New[int64, *runtime.ProcessDefinition](definitionCacheSize)
	if err != nil {
		panic("can't initialize process definition cache. Message: " + err.Error())
	}
	engine := Engine{
		name:            name,
		taskHandlers:    []*taskHandler{},
		snowflake:       getGlobalSnowflakeIdGenerator(),
		scriptRuntime:   feel.NewFeelRuntime(),
		logger:          hclog.Default().Named("proc-engine"),
		tracer:          otelapi.Tracer("zenproc"),
		definitionCache: cache,
		persistence:     nil,
		timerPollDelay:  5 * time.Second,
	}

	for _, option := range options {
		option(&engine)
	}

	if engine.metrics == nil {
		metrics, err := otel.NewMetrics(otelapi.Meter("zenproc"))
		if err != nil {
			engine.logger.Error(fmt.Sprintf("Failed to register engine metrics: %s", err))
		}
		engine.metrics = metrics
	}

	engine.timerManager = newTimerManager(engine.processTimer, engine.pollTimers, engine.timerPollDelay)
	return &engine
}

func EngineWithStorage(persistence storage.Storage) EngineOption {
	return func(engine *Engine) {
		engine.persistence = persistence
	}
}

func EngineWithName(name string) EngineOption {
	return func(engine *Engine) {
		engine.name = name
	}
}

func EngineWithLogger(logger hclog.Logger) EngineOption {
	return func(engine *Engine) {
		engine.logger = logger
	}
}

// EngineWithScriptRuntime replaces the default FEEL runtime used for
// conditions and mapping expressions.
func EngineWithScriptRuntime(runtime script.Runtime) EngineOption {
	return func(engine *Engine) {
		engine.scriptRuntime = runtime
	}
}

func EngineWithMetrics(metrics *otel.EngineMetrics) EngineOption {
	return func(engine *Engine) {
		engine.metrics = metrics
	}
}

// EngineWithTimerPollDelay overrides how often due timers are polled from
// storage.
func EngineWithTimerPollDelay(delay time.Duration) EngineOption {
	return func(engine *Engine) {
		engine.timerPollDelay = delay
	}
}

// Name returns the name of the engine, only useful in case you control multiple ones
func (engine *Engine) Name() string {
	return engine.name
}

// Start launches the background timer manager. Engines that never deploy
// timer events do not need to call it.
func (engine *Engine) Start() {
	engine.timerManager.start()
}

func (engine *Engine) Stop() {
	engine.timerManager.stop()
}

// CreateInstanceById creates a new instance for a process with given process ID and uses latest version (if available)
// Might return EngineError, when no process with given ID was found
func (engine *Engine) CreateInstanceById(ctx context.Context, processId string, variables map[string]interface{}) (*runtime.ProcessInstance, error) {
	definition, err := engine.persistence.FindLatestProcessDefinitionById(ctx, processId)
	if err != nil {
		return nil, errors.Join(newEngineErrorf("no process with id=%s was found (prior deployed into the engine)", processId), err)
	}
	return engine.CreateInstance(ctx, &definition, variables)
}

// CreateInstanceByKey creates a new instance for the definition with given key.
func (engine *Engine) CreateInstanceByKey(ctx context.Context, processDefinitionKey int64, variables map[string]interface{}) (*runtime.ProcessInstance, error) {
	definition, err := engine.definitionByKey(ctx, processDefinitionKey)
	if err != nil {
		return nil, errors.Join(newEngineErrorf("failed to load process definition with key: %d", processDefinitionKey), err)
	}
	return engine.CreateInstance(ctx, definition, variables)
}

// CreateInstance creates the root execution tree for given definition,
// applies the initial variables and advances the instance as far as the
// registered task handlers allow. The whole operation commits as one batch.
func (engine *Engine) CreateInstance(ctx context.Context, definition *runtime.ProcessDefinition, variables map[string]interface{}) (*runtime.ProcessInstance, error) {
	return engine.createAndCommitInstance(ctx, definition, variables, "")
}

// CreateInstanceWithBusinessKey behaves like CreateInstance with a caller
// chosen business key instead of a generated one.
func (engine *Engine) CreateInstanceWithBusinessKey(ctx context.Context, definition *runtime.ProcessDefinition, variables map[string]interface{}, businessKey string) (*runtime.ProcessInstance, error) {
	return engine.createAndCommitInstance(ctx, definition, variables, businessKey)
}

func (engine *Engine) createAndCommitInstance(ctx context.Context, definition *runtime.ProcessDefinition, variables map[string]interface{}, businessKey string) (*runtime.ProcessInstance, error) {
	ctx, span := engine.tracer.Start(ctx, fmt.Sprintf("create-instance:%s", definition.ProcessId))
	defer span.End()

	op := engine.newOperation()
	st, err := engine.createInstance(ctx, op, definition, variables, businessKey, nil)
	if err != nil {
		return nil, err
	}
	if err := engine.commit(ctx, op); err != nil {
		return nil, err
	}
	return st.instance, nil
}

// createInstance builds a new instance tree inside the running operation;
// used by the public constructors, by call activities entering a called
// instance and by event/message driven instantiation.
func (engine *Engine) createInstance(ctx context.Context, op *operation, definition *runtime.ProcessDefinition, variables map[string]interface{}, businessKey string, super *runtime.Execution) (*instanceState, error) {
	if businessKey == "" && super == nil {
		businessKey = uuid.NewString()
	}

	instance := runtime.ProcessInstance{
		Definition:  definition,
		Key:         engine.generateKey(),
		BusinessKey: businessKey,
		CreatedAt:   time.Now(),
		State:       runtime.ActivityStateActive,
	}
	root := runtime.Execution{
		Key:                  engine.generateKey(),
		ProcessInstanceKey:   instance.Key,
		ProcessDefinitionKey: definition.Key,
		State:                runtime.ActivityStateActive,
		IsScope:              true,
		CreatedAt:            time.Now(),
		Variables:            map[string]interface{}{},
	}
	if super != nil {
		root.SuperExecutionKey = super.Key
		root.SuperInstanceKey = super.ProcessInstanceKey
	}
	instance.RootExecutionKey = root.Key

	st := newInstanceState(&instance, definition)
	st.track(&root)
	op.register(st)
	engine.metrics.ProcessesStarted.Add(ctx, 1)
	engine.metrics.ProcessesRunning.Add(ctx, 1)

	st.beginScopeEntry()
	for _, eventDef := range definition.Definitions.Events {
		if eventDef.Type == model.EventTypeTimer {
			if _, err := engine.createTimer(ctx, st, &root, &root, eventDef); err != nil {
				return nil, err
			}
			continue
		}
		if _, err := engine.subscribeEvent(ctx, st, &root, &root, eventDef); err != nil {
			return nil, err
		}
	}
	if err := engine.setVariables(ctx, op, st, &root, variables, false); err != nil {
		return nil, err
	}
	if err := engine.enterScopeChildren(ctx, op, st, &root, definition.Definitions.Activities); err != nil {
		return nil, err
	}
	if err := engine.endScopeEntry(ctx, op, st); err != nil {
		return nil, err
	}
	if err := engine.evaluateScopeEntry(ctx, op, st, &root); err != nil {
		return nil, err
	}
	if err := engine.tryCompleteScope(ctx, op, st, &root); err != nil {
		return nil, err
	}
	return st, nil
}

// FindProcessInstance searches for a given processInstanceKey
// and returns the corresponding process instance
func (engine *Engine) FindProcessInstance(ctx context.Context, processInstanceKey int64) (runtime.ProcessInstance, error) {
	return engine.persistence.FindProcessInstanceByKey(ctx, processInstanceKey)
}

// FindExecution returns one node of a process instance tree.
func (engine *Engine) FindExecution(ctx context.Context, executionKey int64) (runtime.Execution, error) {
	return engine.persistence.FindExecutionByKey(ctx, executionKey)
}

// FindProcessesById returns all registered processes with given ID
// result array is ordered by version number, from 1 (first) and largest version (last)
func (engine *Engine) FindProcessesById(ctx context.Context, id string) ([]runtime.ProcessDefinition, error) {
	return engine.persistence.FindProcessDefinitionsById(ctx, id)
}
