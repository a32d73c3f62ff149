// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package proc

import "fmt"

type EngineError struct {
	Msg string
}

func (e *EngineError) Error() string {
	return e.Msg
}

// newEngineErrorf uses fmt.Sprintf(format, a...) to format the message
func newEngineErrorf(format string, a ...interface{}) error {
	return &EngineError{
		Msg: fmt.Sprintf(format, a...),
	}
}

type ExpressionEvaluationError struct {
	Msg string
	Err error
}

func (e *ExpressionEvaluationError) Error() string {
	if e.Err != nil {
		return e.Msg + "\nerror: " + e.Err.Error()
	}
	return e.Msg
}

// ResolutionError is returned when a call binding cannot be resolved to
// exactly one deployed process definition.
type ResolutionError struct {
	ProcessId   string
	BindingType string
	Msg         string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve process %s (%s binding): %s", e.ProcessId, e.BindingType, e.Msg)
}

// StateError is returned when an operation is attempted against an
// execution or instance whose lifecycle state forbids it, e.g. a variable
// write on a suspended execution.
type StateError struct {
	Key   int64
	State string
	Msg   string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("invalid state %s of %d: %s", e.State, e.Key, e.Msg)
}
