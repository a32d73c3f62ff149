// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package feel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateCondition(t *testing.T) {
	runtime := NewFeelRuntime()

	result, err := runtime.Evaluate(`price > 100`, map[string]any{"price": 150})
	assert.NoError(t, err)
	assert.Equal(t, true, result)

	result, err = runtime.Evaluate(`price > 100`, map[string]any{"price": 50})
	assert.NoError(t, err)
	assert.Equal(t, false, result)
}

func TestEvaluateEquality(t *testing.T) {
	runtime := NewFeelRuntime()

	result, err := runtime.Evaluate(`status = "open"`, map[string]any{"status": "open"})
	assert.NoError(t, err)
	assert.Equal(t, true, result)
}

func TestEvaluateMalformedExpressionFails(t *testing.T) {
	runtime := NewFeelRuntime()

	_, err := runtime.Evaluate(`price >`, map[string]any{"price": 1})
	assert.Error(t, err)
}
