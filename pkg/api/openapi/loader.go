package openapi

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/pyneda/apifuzz/pkg/api/core"
	"github.com/rs/zerolog/log"
)

// Loader reads an OpenAPI 3 document from disk, a URL or raw bytes and
// resolves its references.
type Loader struct {
	AllowExternalRefs bool
	Validate          bool
}

func NewLoader() *Loader {
	return &Loader{AllowExternalRefs: true}
}

// Load reads location, which is either a file path or an http(s) URL.
func (l *Loader) Load(ctx context.Context, location string) (*openapi3.T, error) {
	loader := l.newLoader(ctx)

	var (
		doc *openapi3.T
		err error
	)
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		var u *url.URL
		u, err = url.Parse(location)
		if err != nil {
			return nil, &core.SpecError{Path: location, Reason: "invalid document URL", Err: err}
		}
		doc, err = loader.LoadFromURI(u)
	} else {
		doc, err = loader.LoadFromFile(location)
	}
	if err != nil {
		return nil, &core.SpecError{Path: location, Reason: "failed to load OpenAPI document", Err: err}
	}
	if err := l.validate(ctx, doc, location); err != nil {
		return nil, err
	}

	log.Debug().Str("location", location).Str("openapi", doc.OpenAPI).Msg("Loaded OpenAPI document")
	return doc, nil
}

func (l *Loader) LoadFromData(ctx context.Context, data []byte) (*openapi3.T, error) {
	if len(data) == 0 {
		return nil, &core.SpecError{Reason: "empty OpenAPI document"}
	}
	doc, err := l.newLoader(ctx).LoadFromData(data)
	if err != nil {
		return nil, &core.SpecError{Reason: "failed to parse OpenAPI document", Err: err}
	}
	if err := l.validate(ctx, doc, ""); err != nil {
		return nil, err
	}
	return doc, nil
}

func (l *Loader) newLoader(ctx context.Context) *openapi3.Loader {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = l.AllowExternalRefs
	loader.Context = ctx
	return loader
}

func (l *Loader) validate(ctx context.Context, doc *openapi3.T, location string) error {
	if !l.Validate {
		return nil
	}
	if err := doc.Validate(ctx); err != nil {
		return &core.SpecError{Path: location, Reason: "document failed validation", Err: err}
	}
	return nil
}

// LoadOperations loads location and resolves it into operations.
func LoadOperations(ctx context.Context, location string) ([]core.Operation, error) {
	doc, err := NewLoader().Load(ctx, location)
	if err != nil {
		return nil, err
	}
	ops, err := NewResolver().Resolve(doc)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", location, err)
	}
	return ops, nil
}
