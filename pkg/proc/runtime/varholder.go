// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package runtime

// VariableHolder is the scoped view over the variable stores of an
// execution chain. Lookups walk from the local store upward through the
// scope ancestors; writes always land in the local store. The holder does
// not own the maps, it layers over the executions' stores, so mutations
// through the holder are visible on the owning execution.
type VariableHolder struct {
	parent         *VariableHolder
	localVariables map[string]interface{}
}

// NewVariableHolder creates a holder over the given local store. A nil
// localVariables map allocates an empty one.
func NewVariableHolder(parent *VariableHolder, localVariables map[string]interface{}) VariableHolder {
	if localVariables == nil {
		localVariables = make(map[string]interface{})
	}
	return VariableHolder{
		parent:         parent,
		localVariables: localVariables,
	}
}

func (vh *VariableHolder) Parent() *VariableHolder {
	return vh.parent
}

func (vh *VariableHolder) LocalVariables() map[string]interface{} {
	return vh.localVariables
}

func (vh *VariableHolder) GetLocalVariable(key string) interface{} {
	if v, ok := vh.localVariables[key]; ok {
		return v
	}
	return nil
}

// GetVariable resolves by upward walk until found or the root holder is
// exhausted.
func (vh *VariableHolder) GetVariable(key string) interface{} {
	for holder := vh; holder != nil; holder = holder.parent {
		if v, ok := holder.localVariables[key]; ok {
			return v
		}
	}
	return nil
}

func (vh *VariableHolder) HasVariable(key string) bool {
	for holder := vh; holder != nil; holder = holder.parent {
		if _, ok := holder.localVariables[key]; ok {
			return true
		}
	}
	return false
}

func (vh *VariableHolder) SetLocalVariable(key string, val interface{}) {
	vh.localVariables[key] = val
}

func (vh *VariableHolder) DeleteLocalVariable(key string) {
	delete(vh.localVariables, key)
}

// Variables returns the merged view of the whole chain; inner bindings
// shadow outer ones.
func (vh *VariableHolder) Variables() map[string]interface{} {
	chain := make([]*VariableHolder, 0, 4)
	for holder := vh; holder != nil; holder = holder.parent {
		chain = append(chain, holder)
	}
	merged := make(map[string]interface{})
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].localVariables {
			merged[k] = v
		}
	}
	return merged
}
