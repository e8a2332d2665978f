package openapi

import (
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strings"
	"testing"

	"github.com/pyneda/apifuzz/pkg/api/core"
)

func widgetOperation() core.Operation {
	segments, _ := core.ParsePathTemplate("/widgets/{id}/parts/{part}")
	return core.Operation{
		Method:   "GET",
		Path:     "/widgets/{id}/parts/{part}",
		Segments: segments,
		Parameters: []core.Parameter{
			{Name: "id", Location: core.ParameterLocationPath, Required: true},
			{Name: "part", Location: core.ParameterLocationPath, Required: true},
			{Name: "tag", Location: core.ParameterLocationQuery},
			{Name: "limit", Location: core.ParameterLocationQuery},
			{Name: "X-Trace", Location: core.ParameterLocationHeader},
			{Name: "session", Location: core.ParameterLocationHeader, Cookie: true},
			{Name: "theme", Location: core.ParameterLocationHeader, Cookie: true},
		},
	}
}

func TestMaterializePathSubstitution(t *testing.T) {
	tests := []struct {
		name     string
		id       any
		part     any
		wantPath string
	}{
		{"integers", int64(42), int64(-1), "/widgets/42/parts/-1"},
		{"string needing escape", "a b/c", "x", "/widgets/a%20b%2Fc/parts/x"},
		{"null and bool", nil, true, "/widgets/null/parts/true"},
		{"float", 1.5, "", "/widgets/1.5/parts/"},
		{"object", map[string]any{"k": "v"}, "x", "/widgets/%7B%22k%22:%22v%22%7D/parts/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := core.NewParameterValues()
			values.Path["id"] = tt.id
			values.Path["part"] = tt.part

			req, err := NewRequestBuilder().Materialize(widgetOperation(), values, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.Path != tt.wantPath {
				t.Errorf("expected path %q, got %q", tt.wantPath, req.Path)
			}
		})
	}
}

func TestMaterializeMissingPathValuePanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for missing path value")
		}
	}()
	values := core.NewParameterValues()
	values.Path["id"] = "1"
	_, _ = NewRequestBuilder().Materialize(widgetOperation(), values, nil)
}

func TestMaterializeQueryAndHeaders(t *testing.T) {
	values := core.NewParameterValues()
	values.Path["id"] = "1"
	values.Path["part"] = "2"
	values.Query["tag"] = []any{"a", int64(3)}
	values.Header["X-Trace"] = "line\r\nInjected: yes"
	values.Cookie["session"] = "abc; def"

	req, err := NewRequestBuilder().Materialize(widgetOperation(), values, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := req.Query["tag"]; len(got) != 2 || got[0] != "a" || got[1] != "3" {
		t.Errorf("expected repeated query values, got %v", got)
	}
	if _, ok := req.Query["limit"]; ok {
		t.Error("expected absent query parameter to be left out")
	}
	if got := req.Headers["X-Trace"]; got != "lineInjected: yes" {
		t.Errorf("expected control characters stripped, got %q", got)
	}
	if got := req.Headers["Cookie"]; got != "session=abc%3B%20def" {
		t.Errorf("unexpected cookie header %q", got)
	}
	if req.Headers["User-Agent"] != "apifuzz" {
		t.Errorf("expected default user agent, got %q", req.Headers["User-Agent"])
	}
	if len(req.Body) != 0 {
		t.Errorf("expected no body, got %q", req.Body)
	}
}

func TestMaterializeExtraHeadersOverride(t *testing.T) {
	values := core.NewParameterValues()
	values.Path["id"] = "1"
	values.Path["part"] = "2"
	values.Header["X-Trace"] = "generated"

	builder := NewRequestBuilder().WithExtraHeaders(map[string]string{
		"x-trace":       "fixed",
		"Authorization": "Bearer token",
		"user-agent":    "custom",
	})
	req, err := builder.Materialize(widgetOperation(), values, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := req.Headers["X-Trace"]; ok {
		t.Error("expected generated header to be replaced")
	}
	if req.Headers["x-trace"] != "fixed" {
		t.Errorf("expected extra header value, got %q", req.Headers["x-trace"])
	}
	if req.Headers["Authorization"] != "Bearer token" {
		t.Errorf("expected authorization header, got %q", req.Headers["Authorization"])
	}
	if _, ok := req.Headers["User-Agent"]; ok {
		t.Error("expected default user agent to be replaced")
	}
	if req.Headers["user-agent"] != "custom" {
		t.Errorf("expected custom user agent, got %q", req.Headers["user-agent"])
	}
}

func bodyOperation(contentType string) core.Operation {
	return core.Operation{
		Method: "POST",
		Path:   "/widgets",
		Body: &core.RequestBody{
			ContentType: contentType,
			Schema:      &core.Schema{Kind: core.SchemaKindObject},
		},
	}
}

func TestMaterializeJSONBody(t *testing.T) {
	body := &core.Body{Value: map[string]any{"name": "w", "size": int64(3), "tags": []any{"a"}}}
	req, err := NewRequestBuilder().Materialize(bodyOperation("application/json"), core.NewParameterValues(), body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.ContentType != "application/json" {
		t.Errorf("unexpected content type %q", req.ContentType)
	}
	var decoded map[string]any
	if err := json.Unmarshal(req.Body, &decoded); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if decoded["name"] != "w" || decoded["size"] != float64(3) {
		t.Errorf("unexpected body %v", decoded)
	}

	nullBody, err := NewRequestBuilder().Materialize(bodyOperation("application/json"), core.NewParameterValues(), &core.Body{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(nullBody.Body) != "null" {
		t.Errorf("expected explicit null body, got %q", nullBody.Body)
	}
}

func TestMaterializeFormBody(t *testing.T) {
	body := &core.Body{Value: map[string]any{"name": "a b", "ids": []any{int64(1), int64(2)}}}
	req, err := NewRequestBuilder().Materialize(bodyOperation("application/x-www-form-urlencoded"), core.NewParameterValues(), body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	form, err := url.ParseQuery(string(req.Body))
	if err != nil {
		t.Fatalf("body is not form encoded: %v", err)
	}
	if form.Get("name") != "a b" {
		t.Errorf("unexpected name %q", form.Get("name"))
	}
	if ids := form["ids"]; len(ids) != 2 || ids[0] != "1" || ids[1] != "2" {
		t.Errorf("unexpected ids %v", ids)
	}
}

func TestMaterializeMultipartBody(t *testing.T) {
	body := &core.Body{Value: map[string]any{"b": "2", "a": "1"}}
	build := func() *core.Request {
		req, err := NewRequestBuilder().Materialize(bodyOperation("multipart/form-data"), core.NewParameterValues(), body)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return req
	}

	first, second := build(), build()
	if string(first.Body) != string(second.Body) {
		t.Error("expected identical multipart encodings for identical input")
	}

	mediaType, params, err := mime.ParseMediaType(first.ContentType)
	if err != nil || mediaType != "multipart/form-data" {
		t.Fatalf("unexpected content type %q: %v", first.ContentType, err)
	}
	reader := multipart.NewReader(strings.NewReader(string(first.Body)), params["boundary"])
	var names []string
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("reading part: %v", err)
		}
		names = append(names, part.FormName())
	}
	if strings.Join(names, ",") != "a,b" {
		t.Errorf("expected fields in sorted order, got %v", names)
	}
}

func TestMaterializeTextBody(t *testing.T) {
	req, err := NewRequestBuilder().Materialize(bodyOperation("text/plain"), core.NewParameterValues(), &core.Body{Value: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(req.Body) != "hello" || req.ContentType != "text/plain" {
		t.Errorf("unexpected text body %q (%s)", req.Body, req.ContentType)
	}
}

func TestMaterializeBodyIgnoredWithoutDeclaration(t *testing.T) {
	op := bodyOperation("application/json")
	op.Body = nil
	req, err := NewRequestBuilder().Materialize(op, core.NewParameterValues(), &core.Body{Value: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req.Body) != 0 {
		t.Errorf("expected no body for operation without one, got %q", req.Body)
	}
}
