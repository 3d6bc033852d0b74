package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoqliq/autoqliq/pkg/errors"
)

func TestFactoryRejectsMissingAndUnknownType(t *testing.T) {
	f := NewFactory()

	_, err := f.CreateAction(map[string]any{"name": "x"})
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))

	_, err = f.CreateAction(map[string]any{"type": "Teleport", "name": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Teleport")
}

func TestFactoryRejectsInvalidFields(t *testing.T) {
	f := NewFactory()
	tests := []struct {
		name string
		m    map[string]any
	}{
		{"navigate without url", map[string]any{"type": TypeNavigate, "name": "go"}},
		{"click without selector", map[string]any{"type": TypeClick, "name": "c"}},
		{"wait without duration", map[string]any{"type": TypeWait, "name": "w"}},
		{"wait negative duration", map[string]any{"type": TypeWait, "name": "w", "duration_seconds": -2}},
		{"type with bad source", map[string]any{"type": TypeType, "name": "t", "selector": "#x", "value_source": "env"}},
		{"loop without body", map[string]any{"type": TypeLoop, "name": "l", "iterator": map[string]any{"kind": "count", "count": 3}}},
		{"conditional without condition", map[string]any{"type": TypeConditional, "name": "c"}},
		{"template without name", map[string]any{"type": TypeTemplate, "name": "t"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.CreateAction(tt.m)
			require.Error(t, err)
			assert.Equal(t, errors.KindValidation, errors.KindOf(err))
		})
	}
}

func TestFactoryDecodesLeafVariants(t *testing.T) {
	f := NewFactory()

	a, err := f.CreateAction(map[string]any{
		"type": TypeClick, "name": "accept", "selector": "#accept",
		"check_success_selector": "#done",
	})
	require.NoError(t, err)
	click, ok := a.(*ClickAction)
	require.True(t, ok)
	assert.Equal(t, "accept", click.Name())
	assert.Equal(t, "#accept", click.Selector)
	assert.Equal(t, "#done", click.CheckSuccessSelector)

	a, err = f.CreateAction(map[string]any{
		"type": TypeWait, "name": "settle", "duration_seconds": 1.5,
	})
	require.NoError(t, err)
	wait := a.(*WaitAction)
	assert.Equal(t, 1.5, wait.DurationSeconds)

	// Integer durations decode too; hand-built and YAML maps carry ints.
	a, err = f.CreateAction(map[string]any{
		"type": TypeWait, "name": "settle", "duration_seconds": 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 2.0, a.(*WaitAction).DurationSeconds)
}

func TestFactoryTypeDefaultsToLiteralSource(t *testing.T) {
	f := NewFactory()

	a, err := f.CreateAction(map[string]any{
		"type": TypeType, "name": "fill", "selector": "#q", "value_key": "hello",
	})
	require.NoError(t, err)
	ta := a.(*TypeAction)
	assert.Equal(t, ValueSourceLiteral, ta.ValueSource)
	assert.Equal(t, "hello", ta.ValueKey)
}

func TestFactoryDecodesNestedControlFlow(t *testing.T) {
	f := NewFactory()

	a, err := f.CreateAction(map[string]any{
		"type":      TypeConditional,
		"name":      "consent",
		"condition": `is_present("#banner")`,
		"true_branch": []any{
			map[string]any{"type": TypeClick, "name": "accept", "selector": "#accept"},
			map[string]any{
				"type": TypeLoop, "name": "retry",
				"iterator": map[string]any{"kind": "count", "count": 3},
				"body": []any{
					map[string]any{"type": TypeClick, "name": "next", "selector": "#next"},
				},
			},
		},
	})
	require.NoError(t, err)

	cond := a.(*ConditionalAction)
	require.Len(t, cond.TrueBranch, 2)
	assert.Empty(t, cond.FalseBranch)

	loop := cond.TrueBranch[1].(*LoopAction)
	assert.Equal(t, LoopKindCount, loop.Kind)
	assert.Equal(t, 3, loop.Count)
	require.Len(t, loop.Body, 1)
}

func TestFactoryRejectsInvalidNestedAction(t *testing.T) {
	f := NewFactory()

	_, err := f.CreateAction(map[string]any{
		"type": TypeErrorHandling, "name": "guard",
		"try":   []any{map[string]any{"type": TypeClick, "name": "bad"}},
		"catch": []any{map[string]any{"type": TypeNavigate, "name": "home", "url": "https://x"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "try[0]")
}

func TestFactoryRoundTripsEveryVariant(t *testing.T) {
	f := NewFactory()

	original := []Action{
		NewNavigate("open", "https://example.com"),
		NewTypeCredential("login", "#pw", "acme.password"),
		NewWait("settle", 0.5),
		NewScreenshot("snap", "shots/page.png"),
		NewWhileLoop("drain", `is_present("#more")`, []Action{
			NewClick("dismiss", "#dismiss"),
		}),
		NewErrorHandling("guard",
			[]Action{NewClick("try", "#try")},
			[]Action{NewScreenshot("evidence", "fail.png")},
		),
		NewTemplate("use-login", "login"),
	}

	decoded, err := f.CreateActions(ToMaps(original))
	require.NoError(t, err)
	require.Len(t, decoded, len(original))

	for i := range original {
		assert.Equal(t, original[i].ToMap(), decoded[i].ToMap(), "variant %d", i)
	}
}

func TestKnownTypes(t *testing.T) {
	types := NewFactory().KnownTypes()
	assert.Equal(t, []string{
		TypeClick, TypeConditional, TypeErrorHandling, TypeLoop,
		TypeNavigate, TypeScreenshot, TypeTemplate, TypeType, TypeWait,
	}, types)
}

func TestValidateAllDescendsIntoBranches(t *testing.T) {
	good := NewConditional("c", "true",
		[]Action{NewClick("ok", "#ok")}, nil)
	require.NoError(t, ValidateAll([]Action{good}))

	bad := NewConditional("c", "true",
		[]Action{NewClick("broken", "")}, nil)
	err := ValidateAll([]Action{bad})
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}
