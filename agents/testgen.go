package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentapi-dev/agentapi/internal/agent"
)

func init() {
	agent.RegisterRole("testgen", setupTestgen)
}

func setupTestgen(a *agent.Agent) error {
	if err := a.AddCapability(agent.Capability{
		Name:        "generate_unit_tests",
		Handler:     generateUnitTests,
		Permissions: []agent.Permission{agent.PermissionWrite},
		Schema:      map[string]any{"type_name": "string", "methods": "list"},
	}); err != nil {
		return err
	}
	return a.AddCapability(agent.Capability{
		Name:        "generate_integration_tests",
		Handler:     generateIntegrationTests,
		Permissions: []agent.Permission{agent.PermissionWrite},
		Schema:      map[string]any{"endpoints": "list"},
	})
}

func generateUnitTests(ctx context.Context, payload map[string]any) (any, error) {
	typeName := stringOr(payload, "type_name", "Example")
	methods := stringList(payload["methods"])
	if len(methods) == 0 {
		methods = []string{"Create", "Get"}
	}

	var b strings.Builder
	b.WriteString("import (\n\t\"testing\"\n\n\t\"github.com/stretchr/testify/assert\"\n\t\"github.com/stretchr/testify/require\"\n)\n")
	for _, method := range methods {
		fmt.Fprintf(&b, `
func Test%[1]s%[2]s(t *testing.T) {
	s := New%[1]s()
	require.NotNil(t, s)

	result, err := s.%[2]s()
	assert.NoError(t, err)
	assert.NotNil(t, result)
}
`, exportName(typeName), exportName(method))
	}

	return map[string]any{
		"code":      b.String(),
		"framework": "testify",
		"type":      "unit",
	}, nil
}

func generateIntegrationTests(ctx context.Context, payload map[string]any) (any, error) {
	endpoints := stringList(payload["endpoints"])
	if len(endpoints) == 0 {
		endpoints = []string{"/api/users", "/api/posts"}
	}

	var b strings.Builder
	b.WriteString("import (\n\t\"net/http\"\n\t\"net/http/httptest\"\n\t\"testing\"\n\n\t\"github.com/stretchr/testify/assert\"\n)\n")
	for _, endpoint := range endpoints {
		fmt.Fprintf(&b, `
func Test%s(t *testing.T) {
	srv := httptest.NewServer(newRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + %q)
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
`, endpointTestName(endpoint), endpoint)
	}

	return map[string]any{
		"code":      b.String(),
		"framework": "testify",
		"type":      "integration",
	}, nil
}

// endpointTestName turns "/api/users" into "APIUsersEndpoint".
func endpointTestName(endpoint string) string {
	parts := strings.Split(strings.Trim(endpoint, "/"), "/")
	var b strings.Builder
	for _, part := range parts {
		if part == "api" {
			b.WriteString("API")
			continue
		}
		b.WriteString(exportName(part))
	}
	b.WriteString("Endpoint")
	return b.String()
}
