package fuzz

import (
	"github.com/pyneda/apifuzz/pkg/api/core"
)

// TestCase is one generated input for an operation. It is fully determined by
// the operation and the seed.
type TestCase struct {
	Operation string               `json:"operation"`
	Seed      uint64               `json:"seed"`
	Values    core.ParameterValues `json:"values"`
	Body      *core.Body           `json:"-"`
}

// GenerateTestCase derives the parameter values and body for op from seed.
// Path parameters are always present. Query, header and cookie parameters go
// through the same presence logic as object properties, applied to a
// synthetic object per location. A panic during generation is returned as a
// *core.GenerationError.
func (g *Generator) GenerateTestCase(op core.Operation, seed uint64) (tc *TestCase, err error) {
	defer func() {
		if r := recover(); r != nil {
			tc = nil
			err = &core.GenerationError{Operation: op.Identity(), Seed: seed, Cause: r}
		}
	}()

	src := NewSource(seed)
	tc = &TestCase{
		Operation: op.Identity(),
		Seed:      seed,
		Values:    core.NewParameterValues(),
	}

	for _, param := range op.Parameters {
		if param.IsPathParam() {
			tc.Values.Path[param.Name] = g.Generate(param.Schema, src)
		}
	}

	bags := []struct {
		values map[string]any
		match  func(core.Parameter) bool
	}{
		{tc.Values.Query, func(p core.Parameter) bool { return p.IsQueryParam() }},
		{tc.Values.Header, func(p core.Parameter) bool { return p.IsHeaderParam() && !p.Cookie }},
		{tc.Values.Cookie, func(p core.Parameter) bool { return p.Cookie }},
	}
	for _, bag := range bags {
		schema := parameterBag(op.Parameters, bag.match)
		if schema == nil {
			continue
		}
		for name, value := range g.properties(schema, src, 0) {
			bag.values[name] = value
		}
	}

	if op.HasBody() {
		if op.Body.Required || !src.Chance(g.opts.Bias.DropOptionalBody) {
			tc.Body = &core.Body{Value: g.Generate(op.Body.Schema, src)}
		}
	}

	return tc, nil
}

// parameterBag builds a closed object schema with one property per matching
// parameter, or nil when none match.
func parameterBag(params []core.Parameter, match func(core.Parameter) bool) *core.Schema {
	properties := make(map[string]*core.Schema)
	var required []string
	for _, p := range params {
		if !match(p) {
			continue
		}
		properties[p.Name] = p.Schema
		if p.Required {
			required = append(required, p.Name)
		}
	}
	if len(properties) == 0 {
		return nil
	}
	return core.ObjectSchema(properties, required)
}
