// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package proc

import (
	"context"
	"slices"

	"github.com/pbinitiative/zenproc/pkg/proc/model"
	"github.com/pbinitiative/zenproc/pkg/proc/runtime"
)

type taskMatcher func(activity *model.Activity) bool

type taskHandlerType string

const (
	taskHandlerForId   taskHandlerType = "TASK_HANDLER_ID"
	taskHandlerForType taskHandlerType = "TASK_HANDLER_TYPE"
)

type taskHandler struct {
	handlerType taskHandlerType
	matches     taskMatcher
	handler     func(job ActivatedJob)
}

type newTaskHandlerCommand struct {
	handlerType taskHandlerType
	matcher     taskMatcher
	append      func(handler *taskHandler)
}

type NewTaskHandlerCommand2 interface {
	// Handler is the actual handler to be executed
	Handler(func(job ActivatedJob)) *taskHandler
}

type NewTaskHandlerCommand1 interface {
	// Id defines a handler for the task element with the given ID.
	// This is a 1:1 relation between a handler and a task (IDs are unique
	// within a process model).
	Id(id string) NewTaskHandlerCommand2

	// Type defines a handler for all tasks declaring the given task type,
	// which allows a single handler to serve multiple task elements.
	Type(taskType string) NewTaskHandlerCommand2
}

// NewTaskHandler registers a handler function to be called when a matching
// task activates. A task without a matching handler stays active until
// CompleteActivity or FailActivity is called for it.
func (engine *Engine) NewTaskHandler() NewTaskHandlerCommand1 {
	cmd := newTaskHandlerCommand{
		append: func(handler *taskHandler) {
			engine.taskhandlersMu.Lock()
			defer engine.taskhandlersMu.Unlock()
			engine.taskHandlers = append(engine.taskHandlers, handler)
		},
	}
	return cmd
}

// Id implements NewTaskHandlerCommand1
func (thc newTaskHandlerCommand) Id(id string) NewTaskHandlerCommand2 {
	thc.matcher = func(activity *model.Activity) bool {
		return activity.GetId() == id
	}
	thc.handlerType = taskHandlerForId
	return thc
}

// Type implements NewTaskHandlerCommand1
func (thc newTaskHandlerCommand) Type(taskType string) NewTaskHandlerCommand2 {
	thc.matcher = func(activity *model.Activity) bool {
		return activity.TaskType == taskType
	}
	thc.handlerType = taskHandlerForType
	return thc
}

// Handler implements NewTaskHandlerCommand2
func (thc newTaskHandlerCommand) Handler(f func(job ActivatedJob)) *taskHandler {
	th := taskHandler{
		handlerType: thc.handlerType,
		matches:     thc.matcher,
		handler:     f,
	}
	thc.append(&th)
	return &th
}

// RemoveHandler removes the handler created by Handler method
func (engine *Engine) RemoveHandler(handler *taskHandler) {
	engine.taskhandlersMu.Lock()
	defer engine.taskhandlersMu.Unlock()
	for i, hand := range engine.taskHandlers {
		if hand == handler {
			engine.taskHandlers = slices.Delete(engine.taskHandlers, i, i+1)
			return
		}
	}
}

func (engine *Engine) findTaskHandler(activity *model.Activity) func(job ActivatedJob) {
	engine.taskhandlersMu.RLock()
	defer engine.taskhandlersMu.RUnlock()
	// ID handlers win over type handlers
	for _, handlerType := range []taskHandlerType{taskHandlerForId, taskHandlerForType} {
		for _, handler := range engine.taskHandlers {
			if handler.handlerType == handlerType {
				if handler.matches(activity) {
					return handler.handler
				}
			}
		}
	}
	return nil
}

// invokeTaskHandler runs the registered handler for an activated task
// synchronously inside the triggering operation. Without a handler the
// execution stays active and waits for CompleteActivity or FailActivity.
func (engine *Engine) invokeTaskHandler(ctx context.Context, op *operation, st *instanceState, execution *runtime.Execution, activity *model.Activity) error {
	handler := engine.findTaskHandler(activity)
	if handler == nil {
		return nil
	}
	job := &activatedJob{
		key:                      execution.Key,
		processInstanceKey:       st.instance.Key,
		processId:                st.definition.ProcessId,
		processDefinitionVersion: st.definition.Version,
		processDefinitionKey:     st.definition.Key,
		elementId:                activity.Id,
		createdAt:                execution.CreatedAt,
		localVariables:           st.visibleVariables(execution, true),
		outputVariables:          map[string]interface{}{},
	}
	handler(job)

	switch {
	case job.completed:
		if err := engine.setVariables(ctx, op, st, execution, job.outputVariables, false); err != nil {
			return err
		}
		return engine.completeExecution(ctx, op, st, execution)
	case job.failed:
		if err := engine.setVariables(ctx, op, st, execution, job.outputVariables, false); err != nil {
			return err
		}
		return engine.failExecution(ctx, op, st, execution, job.failCode)
	default:
		return nil
	}
}
