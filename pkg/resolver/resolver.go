// Package resolver substitutes {{name}} placeholders in step templates from
// literal run inputs and the outputs of previously executed steps.
package resolver

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*\}\}`)

var stepOutputPattern = regexp.MustCompile(`^step_(.+)\.output$`)

// DependencyError reports a placeholder that references a step which has not
// executed yet. This is a configuration bug in the chain and fails the whole
// run.
type DependencyError struct {
	CurrentStepID    string
	ReferencedStepID string
	Variable         string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf(
		"step %s: variable %q references output of step %s, which has not executed yet",
		e.CurrentStepID, e.Variable, e.ReferencedStepID,
	)
}

// Resolve substitutes every {{name}} token in template. For each token, the
// resolution order is:
//
//  1. An input mapping of the form "step_<id>.output" substitutes that step's
//     recorded output; if the step has not run yet this is a dependency-order
//     violation and the whole resolution fails.
//  2. Any other input mapping is treated as a dotted path into the literal
//     inputs (a leading "inputs." segment is stripped first). Missing path
//     segments fall through, they are not an error.
//  3. A token whose name is a direct key of the literal inputs substitutes
//     that value, stringified.
//  4. Otherwise the token is left in place unchanged. Callers relying on
//     strict validation must pre-check their templates.
//
// Resolve is a pure function: the same arguments always yield the same text.
func Resolve(template string, inputs map[string]any, priorOutputs map[string]string, inputMapping map[string]string, currentStepID string) (string, error) {
	var depErr *DependencyError

	resolved := placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		if depErr != nil {
			return token
		}

		name := placeholderPattern.FindStringSubmatch(token)[1]

		if expr, mapped := inputMapping[name]; mapped {
			if match := stepOutputPattern.FindStringSubmatch(expr); match != nil {
				output, ran := priorOutputs[match[1]]
				if !ran {
					depErr = &DependencyError{
						CurrentStepID:    currentStepID,
						ReferencedStepID: match[1],
						Variable:         name,
					}

					return token
				}

				return output
			}

			if value, found := walkPath(inputs, expr); found {
				return stringify(value)
			}
		}

		if value, found := inputs[name]; found {
			return stringify(value)
		}

		return token
	})

	if depErr != nil {
		return "", depErr
	}

	return resolved, nil
}

// walkPath resolves a dotted path against the literal input set. A leading
// "inputs." segment is stripped. Array indexing is not supported: a path
// ending at an array yields the whole array.
func walkPath(inputs map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	if len(segments) > 1 && segments[0] == "inputs" {
		segments = segments[1:]
	}

	var current any = inputs

	for _, segment := range segments {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}

		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}
