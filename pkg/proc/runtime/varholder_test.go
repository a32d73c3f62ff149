// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVariableHolderResolvesThroughChain(t *testing.T) {
	root := NewVariableHolder(nil, map[string]interface{}{"color": "red", "size": 10})
	child := NewVariableHolder(&root, map[string]interface{}{"color": "blue"})

	// inner binding shadows the outer one
	assert.Equal(t, "blue", child.GetVariable("color"))
	assert.Equal(t, "red", root.GetVariable("color"))

	// missing locally, found upward
	assert.Equal(t, 10, child.GetVariable("size"))
	assert.Nil(t, child.GetLocalVariable("size"))

	assert.True(t, child.HasVariable("size"))
	assert.False(t, child.HasVariable("weight"))
	assert.Nil(t, child.GetVariable("weight"))
}

func TestVariableHolderWritesStayLocal(t *testing.T) {
	store := map[string]interface{}{}
	root := NewVariableHolder(nil, store)
	child := NewVariableHolder(&root, nil)

	child.SetLocalVariable("x", 1)

	// the write landed in the child store, not the shared root one
	assert.Equal(t, 1, child.GetLocalVariable("x"))
	assert.Empty(t, store)
	assert.Nil(t, root.GetVariable("x"))
}

func TestVariableHolderLayersOverExecutionStore(t *testing.T) {
	store := map[string]interface{}{"a": 1}
	holder := NewVariableHolder(nil, store)

	holder.SetLocalVariable("b", 2)
	holder.DeleteLocalVariable("a")

	// mutations through the holder are visible on the backing store
	assert.Equal(t, map[string]interface{}{"b": 2}, store)
}

func TestVariableHolderMergedView(t *testing.T) {
	root := NewVariableHolder(nil, map[string]interface{}{"a": 1, "b": 1})
	mid := NewVariableHolder(&root, map[string]interface{}{"b": 2})
	leaf := NewVariableHolder(&mid, map[string]interface{}{"c": 3})

	assert.Equal(t, map[string]interface{}{"a": 1, "b": 2, "c": 3}, leaf.Variables())

	// the merged view is a copy, writing it does not touch the chain
	leaf.Variables()["a"] = 99
	assert.Equal(t, 1, leaf.GetVariable("a"))
}
