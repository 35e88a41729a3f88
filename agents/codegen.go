package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentapi-dev/agentapi/internal/agent"
)

func init() {
	agent.RegisterRole("codegen", setupCodegen)
}

func setupCodegen(a *agent.Agent) error {
	caps := []agent.Capability{
		{
			Name:        "generate_api",
			Handler:     generateAPI,
			Permissions: []agent.Permission{agent.PermissionWrite},
			Schema:      map[string]any{"name": "string", "method": "string"},
		},
		{
			Name:        "generate_model",
			Handler:     generateModel,
			Permissions: []agent.Permission{agent.PermissionWrite},
			Schema:      map[string]any{"name": "string", "fields": "list"},
		},
		{
			Name:        "generate_service",
			Handler:     generateService,
			Permissions: []agent.Permission{agent.PermissionWrite},
			Schema:      map[string]any{"name": "string", "operations": "list"},
		},
	}
	for _, c := range caps {
		if err := a.AddCapability(c); err != nil {
			return err
		}
	}
	return nil
}

func generateAPI(ctx context.Context, payload map[string]any) (any, error) {
	name := stringOr(payload, "name", "example")
	method := strings.ToUpper(stringOr(payload, "method", "GET"))

	var code string
	switch method {
	case "GET":
		code = generateGetHandler(name)
	case "POST":
		code = generatePostHandler(name)
	default:
		code = generateGenericHandler(name, method)
	}

	return map[string]any{
		"code":      code,
		"language":  "go",
		"framework": "gin",
	}, nil
}

func generateModel(ctx context.Context, payload map[string]any) (any, error) {
	name := stringOr(payload, "name", "ExampleModel")
	fields := fieldList(payload["fields"])

	return map[string]any{
		"code":     generateStructModel(name, fields),
		"language": "go",
	}, nil
}

func generateService(ctx context.Context, payload map[string]any) (any, error) {
	name := stringOr(payload, "name", "ExampleService")
	ops := stringList(payload["operations"])
	if len(ops) == 0 {
		ops = []string{"create", "get", "update", "delete"}
	}

	return map[string]any{
		"code":     generateServiceType(name, ops),
		"language": "go",
	}, nil
}

func generateGetHandler(name string) string {
	return fmt.Sprintf(`func Get%[1]s(c *gin.Context) {
	items, err := list%[1]s(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}`, exportName(name))
}

func generatePostHandler(name string) string {
	exported := exportName(name)
	return fmt.Sprintf(`type Create%[1]sRequest struct {
	Name        string `+"`json:\"name\" binding:\"required\"`"+`
	Description string `+"`json:\"description\"`"+`
}

func Create%[1]s(c *gin.Context) {
	var req Create%[1]sRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := create%[1]s(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}`, exported)
}

func generateGenericHandler(name, method string) string {
	return fmt.Sprintf(`func %s%s(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "%s operation completed"})
}`, exportName(strings.ToLower(method)), exportName(name), method)
}

func generateStructModel(name string, fields []map[string]any) string {
	if len(fields) == 0 {
		fields = []map[string]any{
			{"name": "id", "type": "int64"},
			{"name": "name", "type": "string"},
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "type %s struct {\n", exportName(name))
	for _, f := range fields {
		fieldName := stringOr(f, "name", "field")
		fieldType := stringOr(f, "type", "string")
		fmt.Fprintf(&b, "\t%s %s `json:%q`\n", exportName(fieldName), fieldType, fieldName)
	}
	b.WriteString("}")
	return b.String()
}

func generateServiceType(name string, ops []string) string {
	exported := exportName(name)

	var b strings.Builder
	fmt.Fprintf(&b, "type %s struct {\n\t// dependencies (store, clients) go here\n}\n", exported)
	for _, op := range ops {
		switch op {
		case "create":
			fmt.Fprintf(&b, "\nfunc (s *%s) Create(ctx context.Context, data map[string]any) (int64, error) {\n\treturn 0, nil\n}\n", exported)
		case "get":
			fmt.Fprintf(&b, "\nfunc (s *%s) Get(ctx context.Context, id int64) (map[string]any, error) {\n\treturn nil, nil\n}\n", exported)
		case "update":
			fmt.Fprintf(&b, "\nfunc (s *%s) Update(ctx context.Context, id int64, data map[string]any) error {\n\treturn nil\n}\n", exported)
		case "delete":
			fmt.Fprintf(&b, "\nfunc (s *%s) Delete(ctx context.Context, id int64) error {\n\treturn nil\n}\n", exported)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// exportName upper-cases the first rune so the generated identifier is
// exported.
func exportName(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func stringOr(m map[string]any, key, def string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return def
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func fieldList(v any) []map[string]any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
