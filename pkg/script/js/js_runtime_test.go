// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package js

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateCondition(t *testing.T) {
	runtime := NewJsRuntime(t.Context(), 2, 1)

	result, err := runtime.Evaluate(`price > 100`, map[string]any{"price": 150})
	assert.NoError(t, err)
	assert.Equal(t, true, result)
}

func TestVariablesDoNotLeakBetweenEvaluations(t *testing.T) {
	runtime := NewJsRuntime(t.Context(), 1, 1)

	_, err := runtime.Evaluate(`leak = 1`, map[string]any{"leak": 0})
	assert.NoError(t, err)

	// the exported variable is cleaned up when the runner returns
	result, err := runtime.Evaluate(`typeof leak`, map[string]any{})
	assert.NoError(t, err)
	assert.Equal(t, "undefined", result)
}

func TestEvaluateScriptErrorFails(t *testing.T) {
	runtime := NewJsRuntime(t.Context(), 2, 1)

	_, err := runtime.Evaluate(`price >`, map[string]any{"price": 1})
	assert.Error(t, err)
}
