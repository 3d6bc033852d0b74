package action

import (
	"fmt"
	"sort"

	"github.com/autoqliq/autoqliq/pkg/errors"
)

// builder decodes one serialized variant. The factory is passed through so
// nested branches decode with the same registry.
type builder func(f *Factory, m map[string]any) (Action, error)

// Factory converts serialized mappings back into concrete action variants.
// Unknown type tags and missing required fields fail with validation errors.
type Factory struct {
	builders map[string]builder
}

// NewFactory creates a factory with every built-in variant registered.
func NewFactory() *Factory {
	f := &Factory{builders: make(map[string]builder)}
	f.builders[TypeNavigate] = buildNavigate
	f.builders[TypeClick] = buildClick
	f.builders[TypeType] = buildType
	f.builders[TypeWait] = buildWait
	f.builders[TypeScreenshot] = buildScreenshot
	f.builders[TypeConditional] = buildConditional
	f.builders[TypeLoop] = buildLoop
	f.builders[TypeErrorHandling] = buildErrorHandling
	f.builders[TypeTemplate] = buildTemplate
	return f
}

// KnownTypes lists the registered type tags, sorted.
func (f *Factory) KnownTypes() []string {
	types := make([]string, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// CreateAction decodes one serialized action. The result validates cleanly;
// a mapping that would produce an invalid action is rejected here.
func (f *Factory) CreateAction(m map[string]any) (Action, error) {
	typeTag, ok := stringField(m, "type")
	if !ok || typeTag == "" {
		return nil, errors.New(errors.KindValidation, "action mapping has no type tag")
	}
	build, ok := f.builders[typeTag]
	if !ok {
		return nil, errors.Newf(errors.KindValidation, "unknown action type %q", typeTag)
	}
	a, err := build(f, m)
	if err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// CreateActions decodes a serialized action sequence.
func (f *Factory) CreateActions(maps []map[string]any) ([]Action, error) {
	actions := make([]Action, 0, len(maps))
	for i, m := range maps {
		a, err := f.CreateAction(m)
		if err != nil {
			return nil, errors.Wrap(errors.KindValidation, fmt.Sprintf("action %d invalid", i), err)
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func buildNavigate(_ *Factory, m map[string]any) (Action, error) {
	url, _ := stringField(m, "url")
	return NewNavigate(nameField(m), url), nil
}

func buildClick(_ *Factory, m map[string]any) (Action, error) {
	a := NewClick(nameField(m), stringOr(m, "selector", ""))
	a.CheckSuccessSelector = stringOr(m, "check_success_selector", "")
	a.CheckFailureSelector = stringOr(m, "check_failure_selector", "")
	return a, nil
}

func buildType(_ *Factory, m map[string]any) (Action, error) {
	return &TypeAction{
		base:        base{ActionName: nameField(m)},
		Selector:    stringOr(m, "selector", ""),
		ValueSource: stringOr(m, "value_source", ValueSourceLiteral),
		ValueKey:    stringOr(m, "value_key", ""),
	}, nil
}

func buildWait(_ *Factory, m map[string]any) (Action, error) {
	seconds, _ := floatField(m, "duration_seconds")
	return NewWait(nameField(m), seconds), nil
}

func buildScreenshot(_ *Factory, m map[string]any) (Action, error) {
	return NewScreenshot(nameField(m), stringOr(m, "file_path", "")), nil
}

func buildConditional(f *Factory, m map[string]any) (Action, error) {
	trueBranch, err := f.branch(m, "true_branch")
	if err != nil {
		return nil, err
	}
	falseBranch, err := f.branch(m, "false_branch")
	if err != nil {
		return nil, err
	}
	return NewConditional(nameField(m), stringOr(m, "condition", ""), trueBranch, falseBranch), nil
}

func buildLoop(f *Factory, m map[string]any) (Action, error) {
	body, err := f.branch(m, "body")
	if err != nil {
		return nil, err
	}
	iterator, _ := m["iterator"].(map[string]any)
	kind := stringOr(iterator, "kind", "")
	count := 0
	if n, ok := floatField(iterator, "count"); ok {
		count = int(n)
	}
	return &LoopAction{
		base:      base{ActionName: nameField(m)},
		Kind:      kind,
		Count:     count,
		Condition: stringOr(iterator, "condition", ""),
		Body:      body,
	}, nil
}

func buildErrorHandling(f *Factory, m map[string]any) (Action, error) {
	try, err := f.branch(m, "try")
	if err != nil {
		return nil, err
	}
	catch, err := f.branch(m, "catch")
	if err != nil {
		return nil, err
	}
	return NewErrorHandling(nameField(m), try, catch), nil
}

func buildTemplate(_ *Factory, m map[string]any) (Action, error) {
	return NewTemplate(nameField(m), stringOr(m, "template_name", "")), nil
}

// branch decodes a nested action list field. Absent fields decode to an
// empty branch; malformed entries are validation errors.
func (f *Factory) branch(m map[string]any, key string) ([]Action, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return nil, nil
	}
	items, err := asMapSlice(raw)
	if err != nil {
		return nil, errors.Newf(errors.KindValidation, "%s must be a list of action mappings", key)
	}
	actions := make([]Action, 0, len(items))
	for i, item := range items {
		a, err := f.CreateAction(item)
		if err != nil {
			return nil, errors.Wrap(errors.KindValidation, fmt.Sprintf("%s[%d] invalid", key, i), err)
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func asMapSlice(raw any) ([]map[string]any, error) {
	switch v := raw.(type) {
	case []map[string]any:
		return v, nil
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("element is not a mapping")
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("not a list")
	}
}

func nameField(m map[string]any) string {
	return stringOr(m, "name", "")
}

func stringField(m map[string]any, key string) (string, bool) {
	if m == nil {
		return "", false
	}
	s, ok := m[key].(string)
	return s, ok
}

func stringOr(m map[string]any, key, fallback string) string {
	if s, ok := stringField(m, key); ok {
		return s
	}
	return fallback
}

// floatField reads a numeric field. JSON decoding yields float64; YAML and
// hand-built maps may carry int variants.
func floatField(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
