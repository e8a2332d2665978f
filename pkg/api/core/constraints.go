package core

// Constraints holds the scalar and array limits a schema declares. The
// generator reads them to pick boundary values, it never enforces them.
type Constraints struct {
	MinLength    *int     `json:"min_length,omitempty"`
	MaxLength    *int     `json:"max_length,omitempty"`
	Pattern      string   `json:"pattern,omitempty"`
	Minimum      *float64 `json:"minimum,omitempty"`
	Maximum      *float64 `json:"maximum,omitempty"`
	ExclusiveMin bool     `json:"exclusive_min,omitempty"`
	ExclusiveMax bool     `json:"exclusive_max,omitempty"`
	Enum         []any    `json:"enum,omitempty"`
	MinItems     *int     `json:"min_items,omitempty"`
	MaxItems     *int     `json:"max_items,omitempty"`
	UniqueItems  bool     `json:"unique_items,omitempty"`
	Format       string   `json:"format,omitempty"`
}

func (c Constraints) IsEmpty() bool {
	return c.MinLength == nil &&
		c.MaxLength == nil &&
		c.Pattern == "" &&
		c.Minimum == nil &&
		c.Maximum == nil &&
		len(c.Enum) == 0 &&
		c.MinItems == nil &&
		c.MaxItems == nil &&
		!c.UniqueItems &&
		c.Format == ""
}

// Merge folds other into c for allOf intersection. Bounds tighten, the
// first non-empty pattern/format wins and enums are kept from whichever
// side declared one.
func (c Constraints) Merge(other Constraints) Constraints {
	out := c
	out.Minimum = maxFloatPtr(c.Minimum, other.Minimum)
	out.Maximum = minFloatPtr(c.Maximum, other.Maximum)
	out.ExclusiveMin = c.ExclusiveMin || other.ExclusiveMin
	out.ExclusiveMax = c.ExclusiveMax || other.ExclusiveMax
	out.MinLength = maxIntPtr(c.MinLength, other.MinLength)
	out.MaxLength = minIntPtr(c.MaxLength, other.MaxLength)
	out.MinItems = maxIntPtr(c.MinItems, other.MinItems)
	out.MaxItems = minIntPtr(c.MaxItems, other.MaxItems)
	out.UniqueItems = c.UniqueItems || other.UniqueItems
	if out.Pattern == "" {
		out.Pattern = other.Pattern
	}
	if out.Format == "" {
		out.Format = other.Format
	}
	if len(out.Enum) == 0 {
		out.Enum = other.Enum
	}
	return out
}

func maxFloatPtr(a, b *float64) *float64 {
	if a == nil {
		return b
	}
	if b == nil || *a >= *b {
		return a
	}
	return b
}

func minFloatPtr(a, b *float64) *float64 {
	if a == nil {
		return b
	}
	if b == nil || *a <= *b {
		return a
	}
	return b
}

func maxIntPtr(a, b *int) *int {
	if a == nil {
		return b
	}
	if b == nil || *a >= *b {
		return a
	}
	return b
}

func minIntPtr(a, b *int) *int {
	if a == nil {
		return b
	}
	if b == nil || *a <= *b {
		return a
	}
	return b
}
