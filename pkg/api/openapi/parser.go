package openapi

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/pyneda/apifuzz/pkg/api/core"
	"github.com/rs/zerolog/log"
)

// Resolver turns a loaded OpenAPI document into the flat, read-only
// operation list the fuzzer works on.
type Resolver struct {
	schemas map[*openapi3.Schema]*core.Schema
}

func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve converts every operation in doc. Named references that form cycles
// are kept as cycles in the resulting schema graph.
func (r *Resolver) Resolve(doc *openapi3.T) ([]core.Operation, error) {
	if doc == nil || doc.Paths == nil || doc.Paths.Len() == 0 {
		return nil, core.NewSpecError("", "", "document declares no paths")
	}
	r.schemas = make(map[*openapi3.Schema]*core.Schema)

	var operations []core.Operation
	for path, pathItem := range doc.Paths.Map() {
		if pathItem == nil {
			return nil, core.NewSpecError(path, "", "empty path item")
		}
		ops := pathItem.Operations()
		if len(ops) == 0 {
			return nil, core.NewSpecError(path, "", "path item declares no operations")
		}
		for method, op := range ops {
			operation, err := r.resolveOperation(path, method, pathItem, op)
			if err != nil {
				return nil, err
			}
			operations = append(operations, operation)
		}
	}

	sort.Slice(operations, func(i, j int) bool {
		if operations[i].Path != operations[j].Path {
			return operations[i].Path < operations[j].Path
		}
		return operations[i].Method < operations[j].Method
	})

	log.Debug().
		Int("operations", len(operations)).
		Int("schemas", len(r.schemas)).
		Msg("Resolved OpenAPI operations")

	return operations, nil
}

func (r *Resolver) resolveOperation(path, method string, pathItem *openapi3.PathItem, op *openapi3.Operation) (core.Operation, error) {
	method = strings.ToUpper(method)
	operation := core.Operation{
		Method:      method,
		Path:        path,
		OperationID: op.OperationID,
		Summary:     op.Summary,
		Tags:        op.Tags,
		Deprecated:  op.Deprecated,
	}

	segments, err := core.ParsePathTemplate(path)
	if err != nil {
		return operation, &core.SpecError{Path: path, Method: method, Reason: "invalid path template", Err: err}
	}
	operation.Segments = segments

	params := core.NewParameterSet()
	for _, refs := range []openapi3.Parameters{pathItem.Parameters, op.Parameters} {
		for _, paramRef := range refs {
			param, err := r.resolveParameter(path, method, paramRef)
			if err != nil {
				return operation, err
			}
			params.Merge(param)
		}
	}
	operation.Parameters = params.Parameters

	for _, segment := range segments {
		if !segment.IsTemplated() {
			continue
		}
		found := false
		for _, p := range params.GetPathParams() {
			if p.Name == segment.Parameter {
				found = true
				break
			}
		}
		if !found {
			return operation, core.NewSpecError(path, method, fmt.Sprintf("path placeholder {%s} has no matching path parameter", segment.Parameter))
		}
	}

	if op.RequestBody != nil {
		body, err := r.resolveRequestBody(path, method, op.RequestBody)
		if err != nil {
			return operation, err
		}
		operation.Body = body
	}

	responses, err := r.resolveResponses(path, method, op.Responses)
	if err != nil {
		return operation, err
	}
	operation.Responses = responses

	return operation, nil
}

func (r *Resolver) resolveParameter(path, method string, ref *openapi3.ParameterRef) (core.Parameter, error) {
	if ref == nil || ref.Value == nil {
		target := ""
		if ref != nil {
			target = ref.Ref
		}
		return core.Parameter{}, core.NewSpecError(path, method, fmt.Sprintf("unresolved parameter reference %q", target))
	}
	param := ref.Value

	coreParam := core.Parameter{
		Name:        param.Name,
		Required:    param.Required,
		Description: param.Description,
		Deprecated:  param.Deprecated,
	}
	switch param.In {
	case openapi3.ParameterInPath:
		coreParam.Location = core.ParameterLocationPath
		// Path parameters are required by construction.
		coreParam.Required = true
	case openapi3.ParameterInQuery:
		coreParam.Location = core.ParameterLocationQuery
	case openapi3.ParameterInHeader:
		coreParam.Location = core.ParameterLocationHeader
	case openapi3.ParameterInCookie:
		coreParam.Location = core.ParameterLocationHeader
		coreParam.Cookie = true
	default:
		return coreParam, core.NewSpecError(path, method, fmt.Sprintf("parameter %q has unsupported location %q", param.Name, param.In))
	}

	schemaRef := param.Schema
	if schemaRef == nil && len(param.Content) > 0 {
		if media := param.Content[pickMediaType(param.Content)]; media != nil {
			schemaRef = media.Schema
		}
	}
	schema, err := r.schemaRef(path, method, schemaRef)
	if err != nil {
		return coreParam, err
	}
	coreParam.Schema = schema

	return coreParam, nil
}

func (r *Resolver) resolveRequestBody(path, method string, ref *openapi3.RequestBodyRef) (*core.RequestBody, error) {
	if ref.Value == nil {
		return nil, core.NewSpecError(path, method, fmt.Sprintf("unresolved request body reference %q", ref.Ref))
	}
	if len(ref.Value.Content) == 0 {
		return nil, nil
	}
	contentType := pickMediaType(ref.Value.Content)
	media := ref.Value.Content[contentType]

	var schemaRef *openapi3.SchemaRef
	if media != nil {
		schemaRef = media.Schema
	}
	schema, err := r.schemaRef(path, method, schemaRef)
	if err != nil {
		return nil, err
	}
	return &core.RequestBody{
		ContentType: contentType,
		Required:    ref.Value.Required,
		Schema:      schema,
	}, nil
}

func (r *Resolver) resolveResponses(path, method string, responses *openapi3.Responses) (core.StatusSet, error) {
	set := core.NewStatusSet()
	if responses == nil || responses.Len() == 0 {
		return set, core.NewSpecError(path, method, "operation declares no responses")
	}
	for key := range responses.Map() {
		switch {
		case key == "default":
			// default documents the error shape, it does not declare a code
		case len(key) == 3 && strings.EqualFold(key[1:], "XX") && key[0] >= '1' && key[0] <= '5':
			set.AddClass(int(key[0] - '0'))
		default:
			code, err := strconv.Atoi(key)
			if err != nil || code < 100 || code > 599 {
				log.Warn().Str("path", path).Str("method", method).Str("status", key).Msg("Ignoring unrecognized response key")
				continue
			}
			set.Add(code)
		}
	}
	return set, nil
}

func (r *Resolver) schemaRef(path, method string, ref *openapi3.SchemaRef) (*core.Schema, error) {
	if ref == nil {
		return &core.Schema{Kind: core.SchemaKindAny}, nil
	}
	if ref.Value == nil {
		if ref.Ref != "" {
			return nil, core.NewSpecError(path, method, fmt.Sprintf("unresolved schema reference %q", ref.Ref))
		}
		return &core.Schema{Kind: core.SchemaKindAny}, nil
	}
	return r.schema(path, method, ref.Ref, ref.Value)
}

func (r *Resolver) schema(path, method, name string, s *openapi3.Schema) (*core.Schema, error) {
	if node, ok := r.schemas[s]; ok {
		return node, nil
	}
	node := &core.Schema{Ref: name}
	// Registered before descending so a reference back to s closes the cycle.
	r.schemas[s] = node

	composite := len(s.AllOf) > 0 || len(s.OneOf) > 0 || len(s.AnyOf) > 0
	if !composite {
		return node, r.fillBase(path, method, node, s)
	}

	var branchRefs openapi3.SchemaRefs
	switch {
	case len(s.AllOf) > 0:
		node.Kind = core.SchemaKindAllOf
		branchRefs = s.AllOf
	case len(s.OneOf) > 0:
		node.Kind = core.SchemaKindOneOf
		branchRefs = s.OneOf
	default:
		node.Kind = core.SchemaKindAnyOf
		branchRefs = s.AnyOf
	}
	node.Nullable = s.Nullable
	node.Default = s.Default
	node.Example = s.Example

	for _, branchRef := range branchRefs {
		branch, err := r.schemaRef(path, method, branchRef)
		if err != nil {
			return nil, err
		}
		node.Branches = append(node.Branches, branch)
	}

	// Sibling keywords next to allOf act as one more branch.
	if node.Kind == core.SchemaKindAllOf && hasOwnShape(s) {
		base := &core.Schema{}
		if err := r.fillBase(path, method, base, s); err != nil {
			return nil, err
		}
		node.Branches = append(node.Branches, base)
	}
	return node, nil
}

func (r *Resolver) fillBase(path, method string, node *core.Schema, s *openapi3.Schema) error {
	node.Kind = schemaKind(s)
	node.Nullable = s.Nullable || includesType(s, "null")
	node.Constraints = constraintsFromSchema(s)
	node.Default = s.Default
	node.Example = s.Example

	if s.Items != nil {
		items, err := r.schemaRef(path, method, s.Items)
		if err != nil {
			return err
		}
		node.Items = items
	}

	if len(s.Properties) > 0 {
		node.Properties = make(map[string]*core.Schema, len(s.Properties))
		for name, propRef := range s.Properties {
			prop, err := r.schemaRef(path, method, propRef)
			if err != nil {
				return err
			}
			node.Properties[name] = prop
		}
	}
	node.Required = append([]string(nil), s.Required...)

	if s.AdditionalProperties.Has != nil {
		allowed := *s.AdditionalProperties.Has
		node.AdditionalProperties = &allowed
	}
	if s.AdditionalProperties.Schema != nil {
		extra, err := r.schemaRef(path, method, s.AdditionalProperties.Schema)
		if err != nil {
			return err
		}
		node.AdditionalPropertiesSchema = extra
	}
	return nil
}

func schemaKind(s *openapi3.Schema) core.SchemaKind {
	if s.Type != nil {
		for _, t := range s.Type.Slice() {
			switch t {
			case "boolean":
				return core.SchemaKindBoolean
			case "integer":
				return core.SchemaKindInteger
			case "number":
				return core.SchemaKindNumber
			case "string":
				return core.SchemaKindString
			case "array":
				return core.SchemaKindArray
			case "object":
				return core.SchemaKindObject
			}
		}
		if includesType(s, "null") {
			return core.SchemaKindNull
		}
	}
	switch {
	case len(s.Properties) > 0 || s.AdditionalProperties.Schema != nil:
		return core.SchemaKindObject
	case s.Items != nil:
		return core.SchemaKindArray
	case len(s.Enum) > 0:
		return enumKind(s.Enum)
	}
	return core.SchemaKindAny
}

func enumKind(values []any) core.SchemaKind {
	switch values[0].(type) {
	case string:
		return core.SchemaKindString
	case bool:
		return core.SchemaKindBoolean
	case float64, int, int64:
		return core.SchemaKindNumber
	}
	return core.SchemaKindAny
}

func includesType(s *openapi3.Schema, typ string) bool {
	if s.Type == nil {
		return false
	}
	for _, t := range s.Type.Slice() {
		if t == typ {
			return true
		}
	}
	return false
}

func hasOwnShape(s *openapi3.Schema) bool {
	return (s.Type != nil && len(s.Type.Slice()) > 0) ||
		len(s.Properties) > 0 ||
		len(s.Required) > 0 ||
		s.Items != nil ||
		!constraintsFromSchema(s).IsEmpty()
}

func constraintsFromSchema(s *openapi3.Schema) core.Constraints {
	var constraints core.Constraints

	constraints.Format = s.Format
	constraints.Pattern = s.Pattern
	constraints.Minimum = s.Min
	constraints.Maximum = s.Max
	constraints.ExclusiveMin = s.ExclusiveMin
	constraints.ExclusiveMax = s.ExclusiveMax
	constraints.UniqueItems = s.UniqueItems

	if s.MinLength != 0 {
		minLen := int(s.MinLength)
		constraints.MinLength = &minLen
	}
	if s.MaxLength != nil {
		maxLen := int(*s.MaxLength)
		constraints.MaxLength = &maxLen
	}
	if len(s.Enum) > 0 {
		constraints.Enum = s.Enum
	}
	if s.MinItems != 0 {
		minItems := int(s.MinItems)
		constraints.MinItems = &minItems
	}
	if s.MaxItems != nil {
		maxItems := int(*s.MaxItems)
		constraints.MaxItems = &maxItems
	}

	return constraints
}

// pickMediaType prefers the first JSON media type in lexical order and falls
// back to the lexically first one.
func pickMediaType(content openapi3.Content) string {
	types := make([]string, 0, len(content))
	for contentType := range content {
		types = append(types, contentType)
	}
	sort.Strings(types)
	for _, contentType := range types {
		if isJSONMediaType(contentType) {
			return contentType
		}
	}
	if len(types) == 0 {
		return ""
	}
	return types[0]
}

func isJSONMediaType(contentType string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
