// Package contract checks responses against the OpenAPI description of the
// users API.
package contract

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/l0p7/usercheck/internal/harness"
)

//go:embed openapi/users.yaml
var usersDocument []byte

// Document returns the embedded OpenAPI document.
func Document() []byte {
	return append([]byte(nil), usersDocument...)
}

// Validator resolves the documented operation for each request and validates
// the response status, headers and body.
type Validator struct {
	doc    *openapi3.T
	router routers.Router
}

// NewValidator loads the embedded document, or specFile when set, and
// rebases its servers onto baseURL so requests sent to any target resolve.
func NewValidator(ctx context.Context, baseURL, specFile string) (*Validator, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	var (
		doc *openapi3.T
		err error
	)
	if strings.TrimSpace(specFile) != "" {
		doc, err = loader.LoadFromFile(specFile)
	} else {
		doc, err = loader.LoadFromData(usersDocument)
	}
	if err != nil {
		return nil, fmt.Errorf("contract: load document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("contract: invalid document: %w", err)
	}

	if baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/"); baseURL != "" {
		doc.Servers = openapi3.Servers{{URL: baseURL}}
	}
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("contract: build router: %w", err)
	}
	return &Validator{doc: doc, router: router}, nil
}

// Operations lists the documented "METHOD path" pairs.
func (v *Validator) Operations() []string {
	var ops []string
	for _, path := range v.doc.Paths.InMatchingOrder() {
		item := v.doc.Paths.Value(path)
		for method := range item.Operations() {
			ops = append(ops, method+" "+path)
		}
	}
	return ops
}

// ValidateResponse checks one captured response. Requests with no documented
// operation yield an error wrapping harness.ErrNotDocumented.
func (v *Validator) ValidateResponse(ctx context.Context, req *http.Request, status int, header http.Header, body []byte) error {
	if req == nil {
		return errors.New("contract: request required")
	}
	route, params, err := v.router.FindRoute(req)
	if err != nil {
		if errors.Is(err, routers.ErrPathNotFound) || errors.Is(err, routers.ErrMethodNotAllowed) {
			return fmt.Errorf("%w: %s %s", harness.ErrNotDocumented, req.Method, req.URL.Path)
		}
		return fmt.Errorf("contract: find route: %w", err)
	}

	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: params,
			Route:      route,
		},
		Status: status,
		Header: header,
		Options: &openapi3filter.Options{
			IncludeResponseStatus: true,
			MultiError:            true,
		},
	}
	input.SetBodyBytes(body)
	if err := openapi3filter.ValidateResponse(ctx, input); err != nil {
		return fmt.Errorf("%s %s -> %d: %w", route.Method, route.Path, status, err)
	}
	return nil
}
