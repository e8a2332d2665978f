package fuzz

import (
	"math"

	"github.com/pyneda/apifuzz/pkg/api/core"
)

// Options bound the size of generated values.
type Options struct {
	MaxDepth        int  `json:"max_depth"`
	MaxArrayLength  int  `json:"max_array_length"`
	MaxStringLength int  `json:"max_string_length"`
	Bias            Bias `json:"bias"`
}

func DefaultOptions() Options {
	return Options{
		MaxDepth:        8,
		MaxArrayLength:  16,
		MaxStringLength: 1024,
		Bias:            DefaultBias,
	}
}

// Generator turns schema nodes into adversarial values. It holds no
// per-call state and is safe for concurrent use; every random decision comes
// from the Source passed in.
type Generator struct {
	opts Options
}

func NewGenerator(opts Options) *Generator {
	defaults := DefaultOptions()
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = defaults.MaxDepth
	}
	if opts.MaxArrayLength <= 0 {
		opts.MaxArrayLength = defaults.MaxArrayLength
	}
	if opts.MaxStringLength <= 0 {
		opts.MaxStringLength = defaults.MaxStringLength
	}
	if opts.Bias == (Bias{}) {
		opts.Bias = DefaultBias
	}
	return &Generator{opts: opts}
}

func (g *Generator) Options() Options {
	return g.opts
}

// Generate produces one value for schema. The result is a tree of nil, bool,
// int64, float64, string, []any and map[string]any. It always terminates:
// past MaxDepth every node collapses to nil.
func (g *Generator) Generate(schema *core.Schema, src *Source) any {
	return g.generate(schema, src, 0)
}

func (g *Generator) generate(schema *core.Schema, src *Source, depth int) any {
	if depth > g.opts.MaxDepth {
		return nil
	}
	if schema == nil {
		return g.anyValue(src, depth)
	}
	b := g.opts.Bias

	if schema.Nullable {
		if src.Chance(b.Null) {
			return nil
		}
	} else if src.Chance(b.UnexpectedNull) {
		return nil
	}

	switch schema.Kind {
	case core.SchemaKindAllOf:
		return g.generate(g.mergeAllOf(schema, src, depth), src, depth+1)
	case core.SchemaKindOneOf, core.SchemaKindAnyOf:
		if len(schema.Branches) == 0 {
			return g.anyValue(src, depth)
		}
		return g.generate(schema.Branches[src.Intn(len(schema.Branches))], src, depth+1)
	}

	if schema.Example != nil && src.Chance(b.Example) {
		return schema.Example
	}
	if enum := schema.Constraints.Enum; len(enum) > 0 && src.Chance(b.Enum) {
		return enum[src.Intn(len(enum))]
	}
	if src.Chance(b.TypeConfusion) {
		if v, ok := mismatchedValue(schema.Kind, src); ok {
			return v
		}
	}

	switch schema.Kind {
	case core.SchemaKindNull:
		return nil
	case core.SchemaKindBoolean:
		return src.Chance(0.5)
	case core.SchemaKindInteger:
		return g.integer(schema.Constraints, src)
	case core.SchemaKindNumber:
		return g.number(schema.Constraints, src)
	case core.SchemaKindString:
		return g.str(schema, src)
	case core.SchemaKindArray:
		return g.array(schema, src, depth)
	case core.SchemaKindObject:
		return g.object(schema, src, depth)
	default:
		return g.anyValue(src, depth)
	}
}

func (g *Generator) integer(c core.Constraints, src *Source) int64 {
	b := g.opts.Bias
	r := src.Float64()
	switch {
	case r < b.Boundary:
		candidates := integerBoundaries(c)
		return candidates[src.Intn(len(candidates))]
	case r < b.Boundary+b.FullRange:
		if c.Format == "int32" {
			return int64(int32(src.Uint64()))
		}
		return src.Int64()
	}

	lo, hi := int64(-1000), int64(1000)
	switch {
	case c.Minimum != nil && c.Maximum != nil:
		lo, hi = toInt64(math.Ceil(*c.Minimum)), toInt64(math.Floor(*c.Maximum))
	case c.Minimum != nil:
		lo = toInt64(math.Ceil(*c.Minimum))
		hi = saturatingAdd(lo, 1000)
	case c.Maximum != nil:
		hi = toInt64(math.Floor(*c.Maximum))
		lo = saturatingAdd(hi, -1000)
	}
	if c.ExclusiveMin && c.Minimum != nil && float64(lo) == *c.Minimum {
		lo = saturatingAdd(lo, 1)
	}
	if c.ExclusiveMax && c.Maximum != nil && float64(hi) == *c.Maximum {
		hi = saturatingAdd(hi, -1)
	}
	if lo >= hi {
		return lo
	}
	span := uint64(hi) - uint64(lo)
	if span == math.MaxUint64 {
		return src.Int64()
	}
	return lo + int64(src.Uint64()%(span+1))
}

func integerBoundaries(c core.Constraints) []int64 {
	candidates := []int64{
		0, -1, 1,
		math.MaxInt32, math.MinInt32, math.MaxInt32 + 1,
		math.MaxInt64, math.MinInt64,
	}
	if c.Minimum != nil {
		m := toInt64(math.Ceil(*c.Minimum))
		candidates = append(candidates, m, saturatingAdd(m, -1))
	}
	if c.Maximum != nil {
		m := toInt64(math.Floor(*c.Maximum))
		candidates = append(candidates, m, saturatingAdd(m, 1))
	}
	return candidates
}

func (g *Generator) number(c core.Constraints, src *Source) float64 {
	b := g.opts.Bias
	r := src.Float64()
	switch {
	case r < b.Boundary:
		candidates := numberBoundaries(c)
		return candidates[src.Intn(len(candidates))]
	case r < b.Boundary+b.FullRange:
		f := math.Float64frombits(src.Uint64())
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return math.MaxFloat64
		}
		return f
	}

	lo, hi := -1000.0, 1000.0
	switch {
	case c.Minimum != nil && c.Maximum != nil:
		lo, hi = *c.Minimum, *c.Maximum
	case c.Minimum != nil:
		lo, hi = *c.Minimum, *c.Minimum+1000
	case c.Maximum != nil:
		lo, hi = *c.Maximum-1000, *c.Maximum
	}
	t := src.Float64()
	return lo*(1-t) + hi*t
}

func numberBoundaries(c core.Constraints) []float64 {
	candidates := []float64{
		0, -1, 1.5, -0.5,
		math.MaxFloat64, -math.MaxFloat64,
		math.SmallestNonzeroFloat64,
		3.14159,
	}
	if c.Minimum != nil {
		m := *c.Minimum
		candidates = append(candidates, m, math.Nextafter(m, math.Inf(-1)), m-1)
	}
	if c.Maximum != nil {
		m := *c.Maximum
		candidates = append(candidates, m, math.Nextafter(m, math.Inf(1)), m+1)
	}
	return candidates
}

func (g *Generator) array(s *core.Schema, src *Source, depth int) []any {
	b := g.opts.Bias
	c := s.Constraints

	// The length cap shrinks with depth so recursive item schemas stay small.
	limit := g.opts.MaxArrayLength / (depth + 1)
	if limit < 1 {
		limit = 1
	}
	n := src.Intn(limit + 1)
	if src.Chance(b.ArrayBoundary) {
		// Boundary lengths are only used while they stay under the cap.
		boundaryCap := g.opts.MaxArrayLength * 4
		switch {
		case c.MaxItems != nil && *c.MaxItems < boundaryCap:
			n = *c.MaxItems + 1
		case c.MinItems != nil && *c.MinItems > 0 && *c.MinItems-1 <= boundaryCap:
			n = *c.MinItems - 1
		}
	}

	items := make([]any, n)
	for i := range items {
		items[i] = g.generate(s.Items, src, depth+1)
	}
	if c.UniqueItems && n >= 2 && src.Chance(b.DuplicateItems) {
		items[n-1] = items[0]
	}
	return items
}

func (g *Generator) object(s *core.Schema, src *Source, depth int) map[string]any {
	b := g.opts.Bias
	obj := g.properties(s, src, depth)

	p := b.ExtraProperty
	if s.AllowsAdditional() {
		p = b.ExtraOpen
	}
	if src.Chance(p) {
		name := "x_" + randomWord(src, 4, 10)
		if _, taken := s.Properties[name]; !taken {
			obj[name] = g.generate(s.AdditionalPropertiesSchema, src, depth+1)
		}
	}
	return obj
}

// properties applies the presence logic to every declared property. This is
// where required properties get dropped.
func (g *Generator) properties(s *core.Schema, src *Source, depth int) map[string]any {
	b := g.opts.Bias
	obj := make(map[string]any)
	for _, name := range s.PropertyNames() {
		keep := b.KeepOptional
		if s.IsRequired(name) {
			keep = b.KeepRequired
		}
		if src.Chance(keep) {
			obj[name] = g.generate(s.Properties[name], src, depth+1)
		}
	}
	// Required names with no property schema still get a value.
	for _, name := range s.Required {
		if _, declared := s.Properties[name]; declared {
			continue
		}
		if _, done := obj[name]; done {
			continue
		}
		if src.Chance(b.KeepRequired) {
			obj[name] = g.generate(nil, src, depth+1)
		}
	}
	return obj
}

func (g *Generator) anyValue(src *Source, depth int) any {
	switch src.Intn(7) {
	case 0:
		return nil
	case 1:
		return src.Chance(0.5)
	case 2:
		return g.integer(core.Constraints{}, src)
	case 3:
		return g.number(core.Constraints{}, src)
	case 4:
		return g.str(&core.Schema{Kind: core.SchemaKindString}, src)
	case 5:
		items := make([]any, src.Intn(4))
		for i := range items {
			items[i] = g.generate(nil, src, depth+1)
		}
		return items
	default:
		obj := make(map[string]any)
		for i := src.Intn(3); i > 0; i-- {
			obj[randomWord(src, 1, 8)] = g.generate(nil, src, depth+1)
		}
		return obj
	}
}

// mergeAllOf folds the branches of an allOf node into one schema. Nested
// allOf nodes are flattened and nested oneOf/anyOf nodes contribute one
// branch picked from src. Conflicts are resolved best-effort: the first kind
// wins and bounds tighten.
func (g *Generator) mergeAllOf(s *core.Schema, src *Source, depth int) *core.Schema {
	merged := &core.Schema{Kind: core.SchemaKindAny, Nullable: s.Nullable}
	for _, branch := range s.Branches {
		g.mergeInto(merged, branch, src, depth+1)
	}
	return merged
}

func (g *Generator) mergeInto(dst, s *core.Schema, src *Source, depth int) {
	if s == nil || depth > g.opts.MaxDepth {
		return
	}
	switch s.Kind {
	case core.SchemaKindAllOf:
		for _, branch := range s.Branches {
			g.mergeInto(dst, branch, src, depth+1)
		}
		return
	case core.SchemaKindOneOf, core.SchemaKindAnyOf:
		if len(s.Branches) > 0 {
			g.mergeInto(dst, s.Branches[src.Intn(len(s.Branches))], src, depth+1)
		}
		return
	}

	if dst.Kind == core.SchemaKindAny {
		dst.Kind = s.Kind
	}
	dst.Constraints = dst.Constraints.Merge(s.Constraints)
	if dst.Items == nil {
		dst.Items = s.Items
	}
	for name, prop := range s.Properties {
		if dst.Properties == nil {
			dst.Properties = make(map[string]*core.Schema)
		}
		if _, ok := dst.Properties[name]; !ok {
			dst.Properties[name] = prop
		}
	}
	for _, name := range s.Required {
		if !dst.IsRequired(name) {
			dst.Required = append(dst.Required, name)
		}
	}
	if s.AdditionalProperties != nil && !*s.AdditionalProperties {
		dst.AdditionalProperties = s.AdditionalProperties
	}
	if dst.AdditionalPropertiesSchema == nil {
		dst.AdditionalPropertiesSchema = s.AdditionalPropertiesSchema
	}
}

func toInt64(f float64) int64 {
	switch {
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

func saturatingAdd(a, delta int64) int64 {
	if delta > 0 && a > math.MaxInt64-delta {
		return math.MaxInt64
	}
	if delta < 0 && a < math.MinInt64-delta {
		return math.MinInt64
	}
	return a + delta
}
