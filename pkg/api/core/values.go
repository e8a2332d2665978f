package core

// ParameterValues holds the generated values of one test case, split by
// where they end up in the request. A query, header or cookie parameter with
// no entry is left out of the request.
type ParameterValues struct {
	Path   map[string]any `json:"path,omitempty"`
	Query  map[string]any `json:"query,omitempty"`
	Header map[string]any `json:"header,omitempty"`
	Cookie map[string]any `json:"cookie,omitempty"`
}

func NewParameterValues() ParameterValues {
	return ParameterValues{
		Path:   make(map[string]any),
		Query:  make(map[string]any),
		Header: make(map[string]any),
		Cookie: make(map[string]any),
	}
}

// Body is a generated request body. A nil *Body means no body is sent, while
// a Body with a nil Value sends an explicit null.
type Body struct {
	Value any
}
