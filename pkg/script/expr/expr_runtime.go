// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package expr

import (
	"fmt"

	exprlang "github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/hashicorp/golang-lru/v2"
	"github.com/pbinitiative/zenproc/pkg/script"
)

// ExprRuntime evaluates expressions with the expr language. Compiled
// programs are cached because condition expressions are evaluated on every
// matching variable event.
type ExprRuntime struct {
	programs *lru.Cache[string, *vm.Program]
}

var _ script.Runtime = &ExprRuntime{}

func NewExprRuntime(cacheSize int) (*ExprRuntime, error) {
	cache, err := lru.New[string, *vm.Program](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create expr program cache: %w", err)
	}
	return &ExprRuntime{programs: cache}, nil
}

func (r *ExprRuntime) Evaluate(expression string, variableContext map[string]any) (any, error) {
	if program, ok := r.programs.Get(expression); ok {
		out, err := exprlang.Run(program, variableContext)
		if err != nil {
			return nil, fmt.Errorf("error running expression \"%s\": %w", expression, err)
		}
		return out, nil
	}

	program, err := exprlang.Compile(expression, exprlang.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("error compiling expression \"%s\": %w", expression, err)
	}
	r.programs.Add(expression, program)

	out, err := exprlang.Run(program, variableContext)
	if err != nil {
		return nil, fmt.Errorf("error running expression \"%s\": %w", expression, err)
	}
	return out, nil
}
