// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package proc

import (
	"fmt"
	"strings"
	"unicode"
)

// evaluateExpression resolves a mapping source: a "=" prefixed string is
// evaluated by the script runtime, everything else is a constant.
func (engine *Engine) evaluateExpression(expression string, variableContext map[string]interface{}) (interface{}, error) {
	expression = strings.TrimSpace(expression)
	if !strings.HasPrefix(expression, "=") {
		return expression, nil
	}

	expression = strings.TrimPrefix(expression, "=")
	res, err := engine.scriptRuntime.Evaluate(expression, variableContext)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %s : %w", expression, err)
	}
	return res, nil
}

// evaluateMappingSource resolves an io-mapping source: expression,
// visible variable name, or literal, in that order.
func (engine *Engine) evaluateMappingSource(source string, variableContext map[string]interface{}) (interface{}, error) {
	source = strings.TrimSpace(source)
	if strings.HasPrefix(source, "=") {
		return engine.evaluateExpression(source, variableContext)
	}
	if value, ok := variableContext[source]; ok {
		return value, nil
	}
	return source, nil
}

// evaluateCondition evaluates a conditional-event expression; only a
// boolean true counts as a match.
func (engine *Engine) evaluateCondition(condition string, variableContext map[string]interface{}) (bool, error) {
	expression := strings.TrimSpace(condition)
	expression = strings.TrimPrefix(expression, "=")
	res, err := engine.scriptRuntime.Evaluate(expression, variableContext)
	if err != nil {
		return false, err
	}
	matched, ok := res.(bool)
	return ok && matched, nil
}

// expressionReferencesAny reports whether the expression mentions at
// least one of the supplied variable names as a standalone identifier.
func expressionReferencesAny(expression string, variables map[string]interface{}) bool {
	for name := range variables {
		idx := 0
		for {
			pos := strings.Index(expression[idx:], name)
			if pos < 0 {
				break
			}
			start := idx + pos
			end := start + len(name)
			beforeOk := start == 0 || !isIdentifierChar(rune(expression[start-1]))
			afterOk := end == len(expression) || !isIdentifierChar(rune(expression[end]))
			if beforeOk && afterOk {
				return true
			}
			idx = end
		}
	}
	return false
}

func isIdentifierChar(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
