package core

import (
	"fmt"
)

type Parameter struct {
	Name        string            `json:"name"`
	Location    ParameterLocation `json:"location"`
	Required    bool              `json:"required"`
	Schema      *Schema           `json:"-"`
	Description string            `json:"description,omitempty"`
	Deprecated  bool              `json:"deprecated,omitempty"`
	// Cookie marks a cookie parameter folded into the Cookie header.
	Cookie bool `json:"cookie,omitempty"`
}

func (p Parameter) String() string {
	required := ""
	if p.Required {
		required = " (required)"
	}
	kind := SchemaKindAny
	if p.Schema != nil {
		kind = p.Schema.Kind
	}
	return fmt.Sprintf("%s [%s] %s%s", p.Name, p.Location, kind, required)
}

// Key identifies a parameter within an operation. Names may repeat across
// locations.
func (p Parameter) Key() string {
	if p.Cookie {
		return "cookie:" + p.Name
	}
	return string(p.Location) + ":" + p.Name
}

func (p Parameter) IsPathParam() bool {
	return p.Location == ParameterLocationPath
}

func (p Parameter) IsQueryParam() bool {
	return p.Location == ParameterLocationQuery
}

func (p Parameter) IsHeaderParam() bool {
	return p.Location == ParameterLocationHeader
}

type ParameterSet struct {
	Parameters []Parameter
}

func NewParameterSet(params ...Parameter) *ParameterSet {
	return &ParameterSet{Parameters: params}
}

// Merge overlays params onto the set. A parameter with the same name and
// location replaces the existing one in place, new ones are appended.
func (ps *ParameterSet) Merge(params ...Parameter) {
	for _, param := range params {
		replaced := false
		for i := range ps.Parameters {
			if ps.Parameters[i].Key() == param.Key() {
				ps.Parameters[i] = param
				replaced = true
				break
			}
		}
		if !replaced {
			ps.Parameters = append(ps.Parameters, param)
		}
	}
}

func (ps *ParameterSet) GetByLocation(location ParameterLocation) []Parameter {
	var result []Parameter
	for _, p := range ps.Parameters {
		if p.Location == location {
			result = append(result, p)
		}
	}
	return result
}

func (ps *ParameterSet) GetPathParams() []Parameter {
	return ps.GetByLocation(ParameterLocationPath)
}
