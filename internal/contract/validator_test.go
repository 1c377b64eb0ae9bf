package contract

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/l0p7/usercheck/internal/harness"
	"github.com/l0p7/usercheck/internal/reqresfake"
	"github.com/stretchr/testify/require"
)

const baseURL = "http://users.test/api"

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator(context.Background(), baseURL, "")
	require.NoError(t, err)
	return v
}

func request(t *testing.T, method, target string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, target, nil)
	require.NoError(t, err)
	return req
}

func jsonHeader() http.Header {
	return http.Header{"Content-Type": {"application/json; charset=utf-8"}}
}

func TestValidatorAcceptsFakeResponses(t *testing.T) {
	srv := httptest.NewServer(reqresfake.New(reqresfake.Options{}))
	defer srv.Close()

	v, err := NewValidator(context.Background(), srv.URL+"/api", "")
	require.NoError(t, err)

	cases := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/api/users/2", ""},
		{http.MethodGet, "/api/users?page=1", ""},
		{http.MethodGet, "/api/users/23", ""},
		{http.MethodPost, "/api/users", `{"email":"morpheus@reqres.in","first_name":"Morpheus","last_name":"Leader"}`},
		{http.MethodPut, "/api/users/2", `{"email":"morpheus@reqres.in","first_name":"Morpheus","last_name":"Captain"}`},
		{http.MethodDelete, "/api/users/2", ""},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			var reader io.Reader
			if tc.body != "" {
				reader = strings.NewReader(tc.body)
			}
			req, err := http.NewRequest(tc.method, srv.URL+tc.path, reader)
			require.NoError(t, err)
			req.Header.Set("Content-Type", "application/json")
			resp, err := srv.Client().Do(req)
			require.NoError(t, err)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			require.NoError(t, resp.Body.Close())

			require.NoError(t, v.ValidateResponse(context.Background(), req, resp.StatusCode, resp.Header, body))
		})
	}
}

func TestValidatorRejectsMissingFields(t *testing.T) {
	v := newValidator(t)
	req := request(t, http.MethodGet, baseURL+"/users/2")
	body := []byte(`{"data":{"id":2,"email":"janet.weaver@reqres.in","first_name":"Janet"}}`)

	err := v.ValidateResponse(context.Background(), req, http.StatusOK, jsonHeader(), body)
	require.Error(t, err)
	require.Contains(t, err.Error(), "last_name")
}

func TestValidatorRejectsWrongTypes(t *testing.T) {
	v := newValidator(t)
	req := request(t, http.MethodPost, baseURL+"/users")
	body := []byte(`{"id":17,"createdAt":"2026-01-01T00:00:00.000Z"}`)

	err := v.ValidateResponse(context.Background(), req, http.StatusCreated, jsonHeader(), body)
	require.Error(t, err)
}

func TestValidatorRejectsUndocumentedStatus(t *testing.T) {
	v := newValidator(t)
	req := request(t, http.MethodGet, baseURL+"/users/2")

	err := v.ValidateResponse(context.Background(), req, http.StatusInternalServerError, jsonHeader(), []byte(`{}`))
	require.Error(t, err)
	require.NotErrorIs(t, err, harness.ErrNotDocumented)
}

func TestValidatorFlagsUndocumentedOperations(t *testing.T) {
	v := newValidator(t)

	err := v.ValidateResponse(context.Background(), request(t, http.MethodGet, baseURL+"/register"), http.StatusOK, jsonHeader(), []byte(`{}`))
	require.ErrorIs(t, err, harness.ErrNotDocumented)

	err = v.ValidateResponse(context.Background(), request(t, http.MethodPost, baseURL+"/users/2"), http.StatusOK, jsonHeader(), []byte(`{}`))
	require.ErrorIs(t, err, harness.ErrNotDocumented)

	require.Error(t, v.ValidateResponse(context.Background(), nil, http.StatusOK, nil, nil))
}

func TestValidatorLoadsSpecFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, Document(), 0o600))

	v, err := NewValidator(context.Background(), baseURL, path)
	require.NoError(t, err)
	require.Contains(t, v.Operations(), "GET /users/{id}")
	require.Len(t, v.Operations(), 6)

	broken := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("openapi: 3.0.3\npaths: [\n"), 0o600))
	_, err = NewValidator(context.Background(), baseURL, broken)
	require.Error(t, err)
}
