// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package inmemory

import (
	"testing"

	"github.com/pbinitiative/zenproc/pkg/proc/runtime"
	"github.com/stretchr/testify/assert"
)

func TestExecutionVariablesDetachedOnRead(t *testing.T) {
	// given a stored execution with variables
	mem := NewStorage()
	err := mem.SaveExecution(t.Context(), runtime.Execution{
		Key:                1,
		ProcessInstanceKey: 10,
		IsScope:            true,
		Variables:          map[string]interface{}{"amount": 100},
	})
	assert.NoError(t, err)

	// when a caller mutates the map it read
	read, err := mem.FindExecutionByKey(t.Context(), 1)
	assert.NoError(t, err)
	read.Variables["amount"] = 999
	read.Variables["extra"] = true

	// then the stored row is unchanged
	stored, err := mem.FindExecutionByKey(t.Context(), 1)
	assert.NoError(t, err)
	assert.Equal(t, 100, stored.Variables["amount"])
	assert.NotContains(t, stored.Variables, "extra")

	listed, err := mem.FindProcessInstanceExecutions(t.Context(), 10)
	assert.NoError(t, err)
	assert.Len(t, listed, 1)
	listed[0].Variables["amount"] = 0
	stored, err = mem.FindExecutionByKey(t.Context(), 1)
	assert.NoError(t, err)
	assert.Equal(t, 100, stored.Variables["amount"])
}

func TestExecutionVariablesDetachedOnSave(t *testing.T) {
	// given
	mem := NewStorage()
	variables := map[string]interface{}{"state": "open"}
	err := mem.SaveExecution(t.Context(), runtime.Execution{Key: 2, Variables: variables})
	assert.NoError(t, err)

	// when the caller keeps writing into its own map
	variables["state"] = "closed"

	// then the stored row kept the value from save time
	stored, err := mem.FindExecutionByKey(t.Context(), 2)
	assert.NoError(t, err)
	assert.Equal(t, "open", stored.Variables["state"])
}
