package openapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"mime/multipart"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/pyneda/apifuzz/pkg/api/core"
)

const multipartBoundary = "apifuzz-form-boundary"

// RequestBuilder materializes generated values into abstract requests.
type RequestBuilder struct {
	DefaultHeaders map[string]string
	// ExtraHeaders are applied to every request last, replacing generated
	// headers of the same name.
	ExtraHeaders map[string]string
}

func NewRequestBuilder() *RequestBuilder {
	return &RequestBuilder{
		DefaultHeaders: map[string]string{
			"User-Agent": "apifuzz",
			"Accept":     "application/json, */*",
		},
	}
}

func (b *RequestBuilder) WithExtraHeaders(headers map[string]string) *RequestBuilder {
	b.ExtraHeaders = headers
	return b
}

// Materialize builds the request for op. Every templated path segment must
// have a value; a missing one means the generator broke its contract and
// Materialize panics.
func (b *RequestBuilder) Materialize(op core.Operation, values core.ParameterValues, body *core.Body) (*core.Request, error) {
	req := &core.Request{
		Method:  strings.ToUpper(op.Method),
		Headers: make(map[string]string),
	}
	if req.Method == "" {
		req.Method = "GET"
	}

	path, err := b.buildPath(op, values)
	if err != nil {
		return nil, fmt.Errorf("building path: %w", err)
	}
	req.Path = path
	req.Query = b.buildQuery(op, values)

	b.addHeaderParams(req, op, values)
	b.addCookieParams(req, op, values)

	if body != nil && op.Body != nil {
		data, contentType, err := encodeBody(op.Body.ContentType, body.Value)
		if err != nil {
			return nil, fmt.Errorf("building body: %w", err)
		}
		req.Body = data
		req.ContentType = contentType
	}

	b.addDefaultHeaders(req)
	b.applyExtraHeaders(req)

	return req, nil
}

func (b *RequestBuilder) buildPath(op core.Operation, values core.ParameterValues) (string, error) {
	segments := op.Segments
	if segments == nil {
		var err error
		segments, err = core.ParsePathTemplate(op.Path)
		if err != nil {
			return "", err
		}
	}

	var path strings.Builder
	for _, segment := range segments {
		if !segment.IsTemplated() {
			path.WriteString(segment.Literal)
			continue
		}
		value, ok := values.Path[segment.Parameter]
		if !ok {
			panic(fmt.Sprintf("no generated value for path parameter %q of %s", segment.Parameter, op.Identity()))
		}
		path.WriteString(url.PathEscape(stringify(value)))
	}
	return path.String(), nil
}

func (b *RequestBuilder) buildQuery(op core.Operation, values core.ParameterValues) url.Values {
	query := url.Values{}
	for _, param := range op.Parameters {
		if param.Location != core.ParameterLocationQuery {
			continue
		}
		value, ok := values.Query[param.Name]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case []any:
			if len(v) == 0 {
				query.Add(param.Name, "")
			}
			for _, item := range v {
				query.Add(param.Name, stringify(item))
			}
		default:
			query.Add(param.Name, stringify(value))
		}
	}
	if len(query) == 0 {
		return nil
	}
	return query
}

func (b *RequestBuilder) addHeaderParams(req *core.Request, op core.Operation, values core.ParameterValues) {
	for _, param := range op.Parameters {
		if param.Location != core.ParameterLocationHeader || param.Cookie {
			continue
		}
		value, ok := values.Header[param.Name]
		if !ok {
			continue
		}
		setHeader(req.Headers, param.Name, headerValue(value))
	}
}

func (b *RequestBuilder) addCookieParams(req *core.Request, op core.Operation, values core.ParameterValues) {
	var cookies []string
	for _, param := range op.Parameters {
		if !param.Cookie {
			continue
		}
		value, ok := values.Cookie[param.Name]
		if !ok {
			continue
		}
		cookie := strings.NewReplacer(";", "%3B", " ", "%20").Replace(headerValue(value))
		cookies = append(cookies, param.Name+"="+cookie)
	}
	if len(cookies) > 0 {
		setHeader(req.Headers, "Cookie", strings.Join(cookies, "; "))
	}
}

func (b *RequestBuilder) addDefaultHeaders(req *core.Request) {
	for k, v := range b.DefaultHeaders {
		if _, ok := lookupHeader(req.Headers, k); !ok {
			req.Headers[k] = v
		}
	}
}

func (b *RequestBuilder) applyExtraHeaders(req *core.Request) {
	for k, v := range b.ExtraHeaders {
		setHeader(req.Headers, k, v)
	}
}

// setHeader replaces any header whose name matches key case-insensitively.
func setHeader(headers map[string]string, key, value string) {
	if existing, ok := lookupHeader(headers, key); ok {
		delete(headers, existing)
	}
	headers[key] = value
}

func lookupHeader(headers map[string]string, key string) (string, bool) {
	for name := range headers {
		if strings.EqualFold(name, key) {
			return name, true
		}
	}
	return "", false
}

func encodeBody(contentType string, value any) ([]byte, string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(contentType)
	}

	switch {
	case mediaType == "application/x-www-form-urlencoded":
		return []byte(formValues(value).Encode()), contentType, nil
	case mediaType == "multipart/form-data":
		buf := new(bytes.Buffer)
		writer := multipart.NewWriter(buf)
		// Fixed boundary keeps identical inputs byte-identical for dedup.
		if err := writer.SetBoundary(multipartBoundary); err != nil {
			return nil, "", fmt.Errorf("setting multipart boundary: %w", err)
		}
		form := formValues(value)
		for _, k := range sortedKeys(form) {
			for _, v := range form[k] {
				if err := writer.WriteField(k, v); err != nil {
					return nil, "", fmt.Errorf("writing multipart field %s: %w", k, err)
				}
			}
		}
		if err := writer.Close(); err != nil {
			return nil, "", fmt.Errorf("closing multipart writer: %w", err)
		}
		return buf.Bytes(), writer.FormDataContentType(), nil
	case strings.HasPrefix(mediaType, "text/"):
		return []byte(stringify(value)), contentType, nil
	default:
		// JSON, and the fallback for media types we cannot encode natively.
		if contentType == "" {
			contentType = "application/json"
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, "", fmt.Errorf("marshaling body: %w", err)
		}
		return data, contentType, nil
	}
}

func formValues(value any) url.Values {
	form := url.Values{}
	obj, ok := value.(map[string]any)
	if !ok {
		if value != nil {
			form.Set("value", stringify(value))
		}
		return form
	}
	for k, v := range obj {
		if items, ok := v.([]any); ok {
			for _, item := range items {
				form.Add(k, stringify(item))
			}
			continue
		}
		form.Set(k, stringify(v))
	}
	return form
}

func sortedKeys(values url.Values) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stringify renders a generated value for a path, query or form slot.
// Strings go as-is, composites as JSON.
func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// headerValue renders value for a header, joining arrays with commas and
// dropping control characters net/http refuses to send.
func headerValue(value any) string {
	var s string
	if items, ok := value.([]any); ok {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = stringify(item)
		}
		s = strings.Join(parts, ",")
	} else {
		s = stringify(value)
	}
	return strings.Map(func(r rune) rune {
		if (r < 0x20 && r != '\t') || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
