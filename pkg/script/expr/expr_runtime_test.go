// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateCondition(t *testing.T) {
	runtime, err := NewExprRuntime(16)
	assert.NoError(t, err)

	result, err := runtime.Evaluate(`price > 100`, map[string]any{"price": 150})
	assert.NoError(t, err)
	assert.Equal(t, true, result)
}

func TestCompiledProgramsAreCached(t *testing.T) {
	runtime, err := NewExprRuntime(16)
	assert.NoError(t, err)

	_, err = runtime.Evaluate(`a + b`, map[string]any{"a": 1, "b": 2})
	assert.NoError(t, err)
	assert.Equal(t, 1, runtime.programs.Len())

	// second evaluation reuses the cached program
	result, err := runtime.Evaluate(`a + b`, map[string]any{"a": 2, "b": 3})
	assert.NoError(t, err)
	assert.Equal(t, 5, result)
	assert.Equal(t, 1, runtime.programs.Len())
}

func TestEvaluateCompileErrorFails(t *testing.T) {
	runtime, err := NewExprRuntime(16)
	assert.NoError(t, err)

	_, err = runtime.Evaluate(`price >`, map[string]any{"price": 1})
	assert.Error(t, err)
}
