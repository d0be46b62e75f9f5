package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_DirectInputKey(t *testing.T) {
	inputs := map[string]any{
		"topic": "quarterly earnings",
		"count": 3,
		"live":  true,
	}

	resolved, err := Resolve("Summarize {{topic}} in {{count}} points, live={{live}}", inputs, nil, nil, "step-a")
	require.NoError(t, err)
	assert.Equal(t, "Summarize quarterly earnings in 3 points, live=true", resolved)
}

func TestResolve_StepOutputMapping(t *testing.T) {
	priorOutputs := map[string]string{
		"step-a": "The earnings grew 12% quarter over quarter.",
	}
	mapping := map[string]string{
		"summary": "step_step-a.output",
	}

	resolved, err := Resolve("Translate: {{summary}}", nil, priorOutputs, mapping, "step-b")
	require.NoError(t, err)
	assert.Equal(t, "Translate: The earnings grew 12% quarter over quarter.", resolved)
}

func TestResolve_DependencyOrderViolation(t *testing.T) {
	mapping := map[string]string{
		"summary": "step_step-c.output",
	}

	_, err := Resolve("Translate: {{summary}}", nil, map[string]string{}, mapping, "step-b")
	require.Error(t, err)

	var depErr *DependencyError

	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, "step-b", depErr.CurrentStepID)
	assert.Equal(t, "step-c", depErr.ReferencedStepID)
	assert.Equal(t, "summary", depErr.Variable)
	assert.Contains(t, err.Error(), "step-b")
	assert.Contains(t, err.Error(), "step-c")
	assert.Contains(t, err.Error(), "summary")
}

func TestResolve_SelfReferenceFails(t *testing.T) {
	mapping := map[string]string{
		"previous": "step_step-b.output",
	}

	_, err := Resolve("Refine {{previous}}", nil, map[string]string{}, mapping, "step-b")

	var depErr *DependencyError

	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, "step-b", depErr.CurrentStepID)
	assert.Equal(t, "step-b", depErr.ReferencedStepID)
}

func TestResolve_DottedPathMapping(t *testing.T) {
	inputs := map[string]any{
		"user": map[string]any{
			"profile": map[string]any{
				"name": "Alice",
			},
		},
	}
	mapping := map[string]string{
		"who": "user.profile.name",
	}

	resolved, err := Resolve("Hello {{who}}", inputs, nil, mapping, "step-a")
	require.NoError(t, err)
	assert.Equal(t, "Hello Alice", resolved)
}

func TestResolve_DottedPathStripsInputsPrefix(t *testing.T) {
	inputs := map[string]any{
		"user": map[string]any{"name": "Alice"},
	}
	mapping := map[string]string{
		"who": "inputs.user.name",
	}

	resolved, err := Resolve("Hello {{who}}", inputs, nil, mapping, "step-a")
	require.NoError(t, err)
	assert.Equal(t, "Hello Alice", resolved)
}

func TestResolve_MissingPathSegmentFallsThrough(t *testing.T) {
	inputs := map[string]any{
		"user": map[string]any{"name": "Alice"},
		"who":  "Bob",
	}
	mapping := map[string]string{
		"who": "user.missing.name",
	}

	// The broken path is not an error; the direct input key wins instead.
	resolved, err := Resolve("Hello {{who}}", inputs, nil, mapping, "step-a")
	require.NoError(t, err)
	assert.Equal(t, "Hello Bob", resolved)
}

func TestResolve_UnmatchedPlaceholderLeftVerbatim(t *testing.T) {
	resolved, err := Resolve("Hello {{nobody}}", map[string]any{}, nil, nil, "step-a")
	require.NoError(t, err)
	assert.Equal(t, "Hello {{nobody}}", resolved)
}

func TestResolve_WholeArrayReturnedForArrayPath(t *testing.T) {
	// Array indexing in dotted paths is unsupported; the path yields the
	// whole array, JSON-encoded.
	inputs := map[string]any{
		"order": map[string]any{
			"items": []any{"a", "b"},
		},
	}
	mapping := map[string]string{
		"items": "order.items",
	}

	resolved, err := Resolve("Items: {{items}}", inputs, nil, mapping, "step-a")
	require.NoError(t, err)
	assert.Equal(t, `Items: ["a","b"]`, resolved)
}

func TestResolve_Idempotent(t *testing.T) {
	inputs := map[string]any{"topic": "bees"}
	priorOutputs := map[string]string{"step-a": "bees are great"}
	mapping := map[string]string{"prev": "step_step-a.output"}

	first, err := Resolve("{{topic}} / {{prev}} / {{unknown}}", inputs, priorOutputs, mapping, "step-b")
	require.NoError(t, err)

	second, err := Resolve("{{topic}} / {{prev}} / {{unknown}}", inputs, priorOutputs, mapping, "step-b")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "bees / bees are great / {{unknown}}", first)
}

func TestResolve_WhitespaceInsideBraces(t *testing.T) {
	resolved, err := Resolve("Hi {{ topic }}", map[string]any{"topic": "bees"}, nil, nil, "step-a")
	require.NoError(t, err)
	assert.Equal(t, "Hi bees", resolved)
}
