package core

import (
	"fmt"
	"sort"
	"strings"
)

// Segment is one piece of a path template: either literal text or a
// {name} placeholder.
type Segment struct {
	Literal   string `json:"literal,omitempty"`
	Parameter string `json:"parameter,omitempty"`
}

func (s Segment) IsTemplated() bool {
	return s.Parameter != ""
}

// ParsePathTemplate splits a path template into literal and templated
// segments. Placeholders may share a path component with literal text, as
// in /files/{name}.{ext}.
func ParsePathTemplate(path string) ([]Segment, error) {
	var segments []Segment
	rest := path
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			segments = append(segments, Segment{Literal: rest})
			break
		}
		if open > 0 {
			segments = append(segments, Segment{Literal: rest[:open]})
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			return nil, fmt.Errorf("unterminated placeholder in %q", path)
		}
		name := rest[open+1 : open+closing]
		if name == "" {
			return nil, fmt.Errorf("empty placeholder in %q", path)
		}
		segments = append(segments, Segment{Parameter: name})
		rest = rest[open+closing+1:]
	}
	return segments, nil
}

type RequestBody struct {
	ContentType string  `json:"content_type"`
	Required    bool    `json:"required"`
	Schema      *Schema `json:"-"`
}

// StatusSet is the set of response codes an operation declares. Range keys
// such as 4XX are kept as classes.
type StatusSet struct {
	Codes   map[int]struct{} `json:"-"`
	Classes map[int]struct{} `json:"-"`
}

func NewStatusSet(codes ...int) StatusSet {
	s := StatusSet{Codes: make(map[int]struct{}), Classes: make(map[int]struct{})}
	for _, c := range codes {
		s.Codes[c] = struct{}{}
	}
	return s
}

func (s *StatusSet) Add(code int) {
	if s.Codes == nil {
		s.Codes = make(map[int]struct{})
	}
	s.Codes[code] = struct{}{}
}

// AddClass declares a whole NXX class, class being the leading digit.
func (s *StatusSet) AddClass(class int) {
	if s.Classes == nil {
		s.Classes = make(map[int]struct{})
	}
	s.Classes[class] = struct{}{}
}

func (s StatusSet) Contains(code int) bool {
	if _, ok := s.Codes[code]; ok {
		return true
	}
	_, ok := s.Classes[code/100]
	return ok
}

func (s StatusSet) Len() int {
	return len(s.Codes) + len(s.Classes)
}

func (s StatusSet) String() string {
	var parts []string
	for c := range s.Codes {
		parts = append(parts, fmt.Sprintf("%d", c))
	}
	for c := range s.Classes {
		parts = append(parts, fmt.Sprintf("%dXX", c))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// Operation is a resolved API operation. It is built once by the resolver
// and treated as read-only afterwards.
type Operation struct {
	Method      string       `json:"method"`
	Path        string       `json:"path"`
	Segments    []Segment    `json:"segments"`
	Parameters  []Parameter  `json:"parameters"`
	Body        *RequestBody `json:"body,omitempty"`
	Responses   StatusSet    `json:"-"`
	OperationID string       `json:"operation_id,omitempty"`
	Summary     string       `json:"summary,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Deprecated  bool         `json:"deprecated,omitempty"`
}

// Identity is the key findings and regression entries are filed under.
func (o Operation) Identity() string {
	return Identity(o.Method, o.Path)
}

func Identity(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

func (o Operation) String() string {
	return o.Identity()
}

func (o Operation) HasBody() bool {
	return o.Body != nil && o.Body.Schema != nil
}
