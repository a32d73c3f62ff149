// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package js

import (
	"context"
	"fmt"

	"github.com/dop251/goja"
	"github.com/pbinitiative/zenproc/pkg/script"
)

type JsRunnerFactory struct {
}

func (JsRunnerFactory) NewRunner() script.Runner {
	return newJsRunner()
}

// JsRuntime evaluates expressions as JavaScript with the variable context
// exported into the VM's global scope.
type JsRuntime struct {
	pool *script.RunnerPool
}

var _ script.Runtime = &JsRuntime{}

func NewJsRuntime(ctx context.Context, maxVmPoolSize int, minVmPoolSize int) *JsRuntime {
	return &JsRuntime{
		pool: script.NewRunnerPool(ctx, JsRunnerFactory{}, maxVmPoolSize, minVmPoolSize),
	}
}

func (r *JsRuntime) Evaluate(expression string, variableContext map[string]any) (any, error) {
	var runner = r.pool.GetRunnerFromPool()
	defer r.pool.ReturnRunnerToPool(runner)

	return runner.(*JsRunner).evaluate(expression, variableContext)
}

type JsRunner struct {
	vm *goja.Runtime
}

func (r *JsRunner) Runner() {}

func newJsRunner() *JsRunner {
	r := JsRunner{vm: goja.New()}
	return &r
}

func (r *JsRunner) evaluate(expression string, variableContext map[string]any) (any, error) {
	for k, v := range variableContext {
		if err := r.vm.Set(k, v); err != nil {
			return nil, fmt.Errorf("failed to export variable %s into js runtime: %w", k, err)
		}
	}
	defer func() {
		for k := range variableContext {
			_ = r.vm.GlobalObject().Delete(k)
		}
	}()

	resp, err := r.vm.RunString(expression)
	if err != nil {
		return nil, fmt.Errorf("error running script \"%s\" : %w", expression, err)
	}
	return resp.Export(), nil
}
