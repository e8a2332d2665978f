package core

type ParameterLocation string

const (
	ParameterLocationPath   ParameterLocation = "path"
	ParameterLocationQuery  ParameterLocation = "query"
	ParameterLocationHeader ParameterLocation = "header"
)

// SchemaKind tags a Schema node.
type SchemaKind string

const (
	SchemaKindAny     SchemaKind = "any"
	SchemaKindNull    SchemaKind = "null"
	SchemaKindBoolean SchemaKind = "boolean"
	SchemaKindInteger SchemaKind = "integer"
	SchemaKindNumber  SchemaKind = "number"
	SchemaKindString  SchemaKind = "string"
	SchemaKindArray   SchemaKind = "array"
	SchemaKindObject  SchemaKind = "object"
	SchemaKindAllOf   SchemaKind = "allOf"
	SchemaKindOneOf   SchemaKind = "oneOf"
	SchemaKindAnyOf   SchemaKind = "anyOf"
)

func (k SchemaKind) IsNumeric() bool {
	return k == SchemaKindInteger || k == SchemaKindNumber
}

func (k SchemaKind) IsComposite() bool {
	return k == SchemaKindAllOf || k == SchemaKindOneOf || k == SchemaKindAnyOf
}

func (k SchemaKind) IsScalar() bool {
	switch k {
	case SchemaKindNull, SchemaKindBoolean, SchemaKindInteger, SchemaKindNumber, SchemaKindString:
		return true
	}
	return false
}
