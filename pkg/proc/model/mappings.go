// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package model

// IoStep is one declared variable mapping at a call boundary or scope
// border. Source is a literal, variable name or "="-prefixed expression.
type IoStep struct {
	Source string
	Target string

	// Local targets the calling activity's own scope instead of the called
	// instance; used when the source must resolve against the caller before
	// the callee exists.
	Local bool
}

// IoMapping declares the variable flow across an activity border.
// CopyAllInput/CopyAllOutput copy every non-transient visible variable
// before the enumerated steps run; enumerated steps therefore override the
// bulk copy on name collision (last write wins).
type IoMapping struct {
	Inputs        []IoStep
	Outputs       []IoStep
	CopyAllInput  bool
	CopyAllOutput bool

	// PropagateAllParentVariables kept for symmetry with CopyAllInput on
	// embedded scopes: a scope without it starts with an empty local store.
	PropagateAllParentVariables bool

	// OutputOnError runs the output mapping even when the called instance
	// terminated with a business error or fault.
	OutputOnError bool
}

type BindingType string

const (
	BindingTypeLatest     BindingType = "latest"
	BindingTypeDeployment BindingType = "deployment"
	BindingTypeVersionTag BindingType = "versionTag"
)

// CalledElement identifies the process a CALL_ACTIVITY invokes.
type CalledElement struct {
	ProcessId   string
	BindingType BindingType
	VersionTag  string

	// BusinessKeyExpression, when set, is evaluated against the caller and
	// becomes the called instance's business key. Empty means the caller's
	// business key is copied.
	BusinessKeyExpression string
	// NoBusinessKey leaves the called instance without a business key.
	NoBusinessKey bool
}
