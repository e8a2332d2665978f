package core

import (
	"sort"
)

// Schema is a resolved schema node. Nodes reached through named references
// are shared, so the graph may contain cycles; anything walking it must carry
// its own depth bound.
type Schema struct {
	Kind        SchemaKind  `json:"kind"`
	Ref         string      `json:"ref,omitempty"`
	Nullable    bool        `json:"nullable,omitempty"`
	Constraints Constraints `json:"constraints"`

	Items *Schema `json:"-"`

	// AdditionalProperties is nil when the document is silent.
	Properties                 map[string]*Schema `json:"-"`
	Required                   []string           `json:"required,omitempty"`
	AdditionalProperties       *bool              `json:"additional_properties,omitempty"`
	AdditionalPropertiesSchema *Schema            `json:"-"`

	// Branches holds the allOf / oneOf / anyOf alternatives in declaration order.
	Branches []*Schema `json:"-"`

	Default any `json:"default,omitempty"`
	Example any `json:"example,omitempty"`
}

func (s *Schema) IsRequired(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// PropertyNames returns property names sorted, which is the order the
// generator consumes them in.
func (s *Schema) PropertyNames() []string {
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllowsAdditional reports whether undeclared properties are permitted.
// OpenAPI defaults to permitting them.
func (s *Schema) AllowsAdditional() bool {
	if s.AdditionalPropertiesSchema != nil {
		return true
	}
	return s.AdditionalProperties == nil || *s.AdditionalProperties
}

// ObjectSchema builds an object node from a property map, used for the
// synthetic parameter bags.
func ObjectSchema(properties map[string]*Schema, required []string) *Schema {
	closed := false
	return &Schema{
		Kind:                 SchemaKindObject,
		Properties:           properties,
		Required:             required,
		AdditionalProperties: &closed,
	}
}
