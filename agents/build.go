package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentapi-dev/agentapi/internal/agent"
)

func init() {
	agent.RegisterRole("build", setupBuild)
}

func setupBuild(a *agent.Agent) error {
	caps := []agent.Capability{
		{
			Name:        "generate_dockerfile",
			Handler:     generateDockerfile,
			Permissions: []agent.Permission{agent.PermissionWrite},
			Schema:      map[string]any{"app_type": "string", "binary": "string"},
		},
		{
			Name:        "generate_docker_compose",
			Handler:     generateDockerCompose,
			Permissions: []agent.Permission{agent.PermissionWrite},
			Schema:      map[string]any{"services": "list"},
		},
		{
			Name:        "generate_gomod",
			Handler:     generateGoMod,
			Permissions: []agent.Permission{agent.PermissionWrite},
			Schema:      map[string]any{"module": "string", "dependencies": "list"},
		},
	}
	for _, c := range caps {
		if err := a.AddCapability(c); err != nil {
			return err
		}
	}
	return nil
}

func generateDockerfile(ctx context.Context, payload map[string]any) (any, error) {
	binary := stringOr(payload, "binary", "app")
	appType := stringOr(payload, "app_type", "api")

	var expose string
	if appType == "api" {
		expose = "EXPOSE 8080\n\n"
	}

	content := fmt.Sprintf(`FROM golang:1.25-alpine AS build

WORKDIR /src
COPY go.mod go.sum ./
RUN go mod download
COPY . .
RUN CGO_ENABLED=0 go build -o /out/%[1]s ./cmd/%[1]s

FROM alpine:latest
COPY --from=build /out/%[1]s /usr/local/bin/%[1]s

%[2]sCMD ["%[1]s"]`, binary, expose)

	return map[string]any{
		"content":  content,
		"filename": "Dockerfile",
	}, nil
}

func generateDockerCompose(ctx context.Context, payload map[string]any) (any, error) {
	services := stringList(payload["services"])
	if len(services) == 0 {
		services = []string{"api", "redis"}
	}

	var blocks []string
	for _, service := range services {
		switch service {
		case "api":
			blocks = append(blocks, `  api:
    build: .
    ports:
      - "8080:8080"
    environment:
      - REDIS_ADDR=redis:6379
      - JWT_SECRET=${JWT_SECRET}
    depends_on:
      - redis
    restart: unless-stopped`)
		case "redis":
			blocks = append(blocks, `  redis:
    image: redis:7-alpine
    volumes:
      - redis_data:/data
    restart: unless-stopped`)
		case "postgres", "database":
			blocks = append(blocks, `  postgres:
    image: postgres:16
    environment:
      POSTGRES_PASSWORD: ${POSTGRES_PASSWORD}
    volumes:
      - postgres_data:/var/lib/postgresql/data
    restart: unless-stopped`)
		}
	}

	content := "services:\n" + strings.Join(blocks, "\n\n") + `

volumes:
  redis_data:
  postgres_data:`

	return map[string]any{
		"content":  content,
		"filename": "docker-compose.yml",
	}, nil
}

func generateGoMod(ctx context.Context, payload map[string]any) (any, error) {
	module := stringOr(payload, "module", "example.com/app")
	deps := stringList(payload["dependencies"])

	var b strings.Builder
	fmt.Fprintf(&b, "module %s\n\ngo 1.25\n", module)
	if len(deps) > 0 {
		b.WriteString("\nrequire (\n")
		for _, dep := range deps {
			fmt.Fprintf(&b, "\t%s\n", dep)
		}
		b.WriteString(")\n")
	}

	return map[string]any{
		"content":  b.String(),
		"filename": "go.mod",
	}, nil
}
