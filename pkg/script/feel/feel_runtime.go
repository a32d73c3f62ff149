// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package feel

import (
	"github.com/pbinitiative/feel"
	"github.com/pbinitiative/zenproc/pkg/script"
)

// FeelRuntime evaluates FEEL expressions through the native interpreter;
// it is stateless and safe for concurrent use, no runner pool needed.
type FeelRuntime struct {
}

var _ script.Runtime = &FeelRuntime{}

func NewFeelRuntime() *FeelRuntime {
	return &FeelRuntime{}
}

func (r *FeelRuntime) Evaluate(expression string, variableContext map[string]any) (any, error) {
	return feel.EvalStringWithScope(expression, variableContext)
}
