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

	"github.com/pbinitiative/zenproc/pkg/proc/model"
	"github.com/pbinitiative/zenproc/pkg/proc/runtime"
	"github.com/pbinitiative/zenproc/pkg/storage"
)

// enterCallActivity resolves the called process, runs the input mappings
// and creates the called instance with its root execution linked back to
// the calling execution. A failing mapping expression aborts the whole
// triggering operation before anything is committed.
func (engine *Engine) enterCallActivity(ctx context.Context, op *operation, st *instanceState, execution *runtime.Execution, activity *model.Activity) error {
	calledElement := activity.CalledElement
	if calledElement == nil {
		return newEngineErrorf("call activity %s has no called element", activity.Id)
	}
	definition, err := engine.resolveCalledProcess(ctx, st.definition, calledElement)
	if err != nil {
		return err
	}

	callerVars := st.visibleVariables(execution, true)
	inputs := map[string]interface{}{}
	if activity.IoMapping.CopyAllInput {
		for name, value := range st.visibleVariables(execution, false) {
			inputs[name] = value
		}
	}
	// enumerated mappings run after the bulk copy and override it on
	// name collision
	for _, step := range activity.IoMapping.Inputs {
		value, err := engine.evaluateMappingSource(step.Source, callerVars)
		if err != nil {
			return &ExpressionEvaluationError{
				Msg: fmt.Sprintf("failed to evaluate input mapping of activity %s", activity.Id),
				Err: err,
			}
		}
		if step.Local {
			if err := engine.setVariables(ctx, op, st, execution, map[string]interface{}{step.Target: value}, false); err != nil {
				return err
			}
			continue
		}
		inputs[step.Target] = value
	}

	businessKey := st.instance.BusinessKey
	if calledElement.NoBusinessKey {
		businessKey = ""
	} else if calledElement.BusinessKeyExpression != "" {
		value, err := engine.evaluateExpression(calledElement.BusinessKeyExpression, callerVars)
		if err != nil {
			return &ExpressionEvaluationError{
				Msg: fmt.Sprintf("failed to evaluate business key of activity %s", activity.Id),
				Err: err,
			}
		}
		businessKey = fmt.Sprintf("%v", value)
	}

	_, err = engine.createInstance(ctx, op, definition, inputs, businessKey, execution)
	if err != nil {
		return errors.Join(newEngineErrorf("failed to create called instance of %s for activity %s", calledElement.ProcessId, activity.Id), err)
	}
	return nil
}

// leaveCalledInstance runs the output mappings back into the calling
// execution's scope and completes the call. On an error exit the mapping
// only runs when the activity was configured with output-on-error; the
// calling execution is not completed in that case.
func (engine *Engine) leaveCalledInstance(ctx context.Context, op *operation, callerSt *instanceState, callExecution *runtime.Execution, calledSt *instanceState, failed bool) error {
	activity := callerSt.definition.Definitions.FindActivity(callExecution.ElementId)
	if activity == nil {
		return newEngineErrorf("no call activity found for element %s", callExecution.ElementId)
	}
	mapping := activity.IoMapping

	if !failed || mapping.OutputOnError {
		calledVars := calledSt.visibleVariables(calledSt.root(), false)
		outputs := map[string]interface{}{}
		if mapping.CopyAllOutput {
			for name, value := range calledVars {
				outputs[name] = value
			}
		}
		for _, step := range mapping.Outputs {
			value, err := engine.evaluateMappingSource(step.Source, calledVars)
			if err != nil {
				return &ExpressionEvaluationError{
					Msg: fmt.Sprintf("failed to evaluate output mapping of activity %s", activity.Id),
					Err: err,
				}
			}
			if step.Local {
				if err := engine.setVariables(ctx, op, callerSt, callExecution, map[string]interface{}{step.Target: value}, false); err != nil {
					return err
				}
				continue
			}
			outputs[step.Target] = value
		}
		parent := callerSt.execution(callExecution.ParentKey)
		if parent == nil {
			return newEngineErrorf("call execution %d has no parent", callExecution.Key)
		}
		if err := engine.setVariables(ctx, op, callerSt, parent, outputs, false); err != nil {
			return err
		}
	}

	if failed {
		return nil
	}
	return engine.completeExecution(ctx, op, callerSt, callExecution)
}

// resolveCalledProcess turns a called-element declaration into exactly
// one deployed definition or a ResolutionError.
func (engine *Engine) resolveCalledProcess(ctx context.Context, callerDefinition *runtime.ProcessDefinition, calledElement *model.CalledElement) (*runtime.ProcessDefinition, error) {
	switch calledElement.BindingType {
	case model.BindingTypeLatest, "":
		definition, err := engine.persistence.FindLatestProcessDefinitionById(ctx, calledElement.ProcessId)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, &ResolutionError{ProcessId: calledElement.ProcessId, BindingType: string(model.BindingTypeLatest), Msg: "no deployed version found"}
			}
			return nil, err
		}
		return &definition, nil
	case model.BindingTypeDeployment:
		// binds to the newest version that already existed when the
		// calling definition was deployed
		definitions, err := engine.persistence.FindProcessDefinitionsById(ctx, calledElement.ProcessId)
		if err != nil {
			return nil, err
		}
		var resolved *runtime.ProcessDefinition
		for i := range definitions {
			if definitions[i].DeployedAt.After(callerDefinition.DeployedAt) {
				continue
			}
			resolved = &definitions[i]
		}
		if resolved == nil {
			return nil, &ResolutionError{ProcessId: calledElement.ProcessId, BindingType: string(model.BindingTypeDeployment), Msg: "no version deployed alongside the calling definition"}
		}
		return resolved, nil
	case model.BindingTypeVersionTag:
		definitions, err := engine.persistence.FindProcessDefinitionsByIdAndVersionTag(ctx, calledElement.ProcessId, calledElement.VersionTag)
		if err != nil {
			return nil, err
		}
		if len(definitions) == 0 {
			return nil, &ResolutionError{ProcessId: calledElement.ProcessId, BindingType: string(model.BindingTypeVersionTag), Msg: fmt.Sprintf("no version tagged %s", calledElement.VersionTag)}
		}
		if len(definitions) > 1 {
			return nil, &ResolutionError{ProcessId: calledElement.ProcessId, BindingType: string(model.BindingTypeVersionTag), Msg: fmt.Sprintf("%d versions tagged %s", len(definitions), calledElement.VersionTag)}
		}
		return &definitions[0], nil
	default:
		return nil, &ResolutionError{ProcessId: calledElement.ProcessId, BindingType: string(calledElement.BindingType), Msg: "unknown binding type"}
	}
}
