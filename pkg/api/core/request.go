package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Request is a fully materialized request, independent of any transport.
type Request struct {
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Query       url.Values        `json:"query,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        []byte            `json:"-"`
	ContentType string            `json:"content_type,omitempty"`
}

// URL joins the request path and query onto baseURL.
func (r *Request) URL(baseURL string) string {
	full := strings.TrimSuffix(baseURL, "/")
	path := r.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	full += path
	if len(r.Query) > 0 {
		full += "?" + r.Query.Encode()
	}
	return full
}

// HTTPRequest converts the request into a net/http request bound to ctx.
func (r *Request) HTTPRequest(ctx context.Context, baseURL string) (*http.Request, error) {
	var body *bytes.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(r.Method), r.URL(baseURL), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for _, name := range r.HeaderNames() {
		req.Header.Set(name, r.Headers[name])
	}
	if len(r.Body) > 0 && r.ContentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", r.ContentType)
	}
	return req, nil
}

// HeaderNames returns header names sorted.
func (r *Request) HeaderNames() []string {
	names := make([]string, 0, len(r.Headers))
	for name := range r.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Payload is the canonical JSON form of everything the request sends. It is
// what findings are hashed on.
func (r *Request) Payload() []byte {
	canonical := struct {
		Method      string            `json:"method"`
		Path        string            `json:"path"`
		Query       url.Values        `json:"query,omitempty"`
		Headers     map[string]string `json:"headers,omitempty"`
		ContentType string            `json:"content_type,omitempty"`
		Body        []byte            `json:"body,omitempty"`
	}{
		Method:      strings.ToUpper(r.Method),
		Path:        r.Path,
		Query:       r.Query,
		Headers:     r.Headers,
		ContentType: r.ContentType,
		Body:        r.Body,
	}
	// encoding/json sorts map keys, so the output is stable.
	data, _ := json.Marshal(canonical)
	return data
}

// Curl renders the request as a curl command line.
func (r *Request) Curl(baseURL string) string {
	var b strings.Builder
	b.WriteString("curl -X ")
	b.WriteString(strings.ToUpper(r.Method))
	for _, name := range r.HeaderNames() {
		b.WriteString(" -H ")
		b.WriteString(shellQuote(name + ": " + r.Headers[name]))
	}
	if len(r.Body) > 0 {
		if r.ContentType != "" {
			if _, ok := r.Headers["Content-Type"]; !ok {
				b.WriteString(" -H ")
				b.WriteString(shellQuote("Content-Type: " + r.ContentType))
			}
		}
		b.WriteString(" -d ")
		b.WriteString(shellQuote(string(r.Body)))
	}
	b.WriteString(" ")
	b.WriteString(shellQuote(r.URL(baseURL)))
	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
