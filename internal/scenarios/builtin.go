// Package scenarios holds the scenario set run against the users API: the
// built-in catalog, observation probes and scenarios compiled from config.
package scenarios

import (
	"fmt"
	"net/http"

	"github.com/gavv/httpexpect/v2"
	"github.com/l0p7/usercheck/internal/harness"
	"github.com/l0p7/usercheck/internal/users"
)

// Built-in scenario names.
const (
	GetSingleUser  = "get-single-user"
	ListUsers      = "list-users"
	CreateUser     = "create-user"
	UpdateUser     = "update-user"
	DeleteUser     = "delete-user"
	GetMissingUser = "get-missing-user"

	DeleteUserRepeat = "delete-user-repeat"
)

// Fixture values the catalog sends and asserts on.
const (
	ExistingUserID = 2
	MissingUserID  = 23
	FirstPage      = 1
)

// CreatePayload is the body of the create scenario.
func CreatePayload() users.UserRecord {
	return users.NewUserRecord("morpheus@reqres.in", "Morpheus", "Leader")
}

// UpdatePayload is the body of the update scenario.
func UpdatePayload() users.UserRecord {
	return users.NewUserRecord("morpheus@reqres.in", "Morpheus", "Captain")
}

// Builtin returns the six catalog scenarios in their canonical order.
func Builtin() []harness.Scenario {
	return []harness.Scenario{
		{
			Name:        GetSingleUser,
			Description: "fetch user 2 and check its identity fields",
			Tags:        []string{"read", "smoke"},
			Request: harness.RequestSpec{
				Method:     http.MethodGet,
				Path:       "/users/{id}",
				PathParams: map[string]any{"id": ExistingUserID},
			},
			Check: func(resp *httpexpect.Response) {
				resp.Status(http.StatusOK)
				data := resp.JSON().Object().Value("data").Object()
				data.Value(users.WireName("ID")).Number().IsEqual(ExistingUserID)
				for _, field := range []string{"Email", "FirstName", "LastName"} {
					data.Value(users.WireName(field)).String().NotEmpty()
				}
			},
		},
		{
			Name:        ListUsers,
			Description: "list the first page of users",
			Tags:        []string{"read", "smoke"},
			Request: harness.RequestSpec{
				Method: http.MethodGet,
				Path:   "/users",
				Query:  map[string]string{"page": fmt.Sprint(FirstPage)},
			},
			Check: func(resp *httpexpect.Response) {
				resp.Status(http.StatusOK)
				page := resp.JSON().Object()
				page.Value("page").Number().IsEqual(FirstPage)
				data := page.Value("data").Array()
				data.NotEmpty()
				data.Value(0).Object().Value(users.WireName("ID")).NotNull()
			},
		},
		{
			Name:        CreateUser,
			Description: "create a user and expect an id and creation time",
			Tags:        []string{"write"},
			Request: harness.RequestSpec{
				Method: http.MethodPost,
				Path:   "/users",
				Body:   CreatePayload(),
			},
			Check: func(resp *httpexpect.Response) {
				resp.Status(http.StatusCreated)
				created := resp.JSON().Object()
				created.Value("id").NotNull()
				created.Value("createdAt").NotNull()
			},
		},
		{
			Name:        UpdateUser,
			Description: "replace user 2 and expect an update time",
			Tags:        []string{"write"},
			Request: harness.RequestSpec{
				Method:     http.MethodPut,
				Path:       "/users/{id}",
				PathParams: map[string]any{"id": ExistingUserID},
				Body:       UpdatePayload(),
			},
			Check: func(resp *httpexpect.Response) {
				resp.Status(http.StatusOK)
				resp.JSON().Object().Value("updatedAt").NotNull()
			},
		},
		{
			Name:        DeleteUser,
			Description: "delete user 2",
			Tags:        []string{"write"},
			Request: harness.RequestSpec{
				Method:     http.MethodDelete,
				Path:       "/users/{id}",
				PathParams: map[string]any{"id": ExistingUserID},
			},
			Check: func(resp *httpexpect.Response) {
				resp.Status(http.StatusNoContent)
				resp.Body().IsEmpty()
			},
		},
		{
			Name:        GetMissingUser,
			Description: "fetch user 23, which does not exist",
			Tags:        []string{"read", "negative"},
			Request: harness.RequestSpec{
				Method:     http.MethodGet,
				Path:       "/users/{id}",
				PathParams: map[string]any{"id": MissingUserID},
			},
			Check: func(resp *httpexpect.Response) {
				resp.Status(http.StatusNotFound)
			},
		},
	}
}

// Observations returns probes that record what the service does without
// asserting a literal. delete-user-repeat deletes user 2 twice and notes
// both statuses, since the service does not promise what a second delete
// returns.
func Observations() []harness.Scenario {
	return []harness.Scenario{
		{
			Name:        DeleteUserRepeat,
			Description: "delete user 2 twice and record both statuses",
			Tags:        []string{"observation", "write"},
			Request: harness.RequestSpec{
				Method:     http.MethodDelete,
				Path:       "/users/{id}",
				PathParams: map[string]any{"id": ExistingUserID},
			},
			Attempts: 2,
			Observe:  observeStatus,
		},
	}
}

func observeStatus(attempt int, resp *httpexpect.Response) string {
	raw := resp.Raw()
	if raw == nil {
		return fmt.Sprintf("attempt %d: no response", attempt)
	}
	return fmt.Sprintf("attempt %d: status %d", attempt, raw.StatusCode)
}
