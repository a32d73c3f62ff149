// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package script

// Runtime evaluates an expression against a variable scope. Implementations
// must be safe for concurrent use; the engine shares one runtime across all
// process instances.
type Runtime interface {
	Evaluate(expression string, variableContext map[string]any) (any, error)
}
