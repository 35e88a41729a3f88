package agents

import (
	"context"
	"strings"

	"github.com/agentapi-dev/agentapi/internal/agent"
)

func init() {
	agent.RegisterRole("strategist", setupStrategist)
}

func setupStrategist(a *agent.Agent) error {
	if err := a.AddCapability(agent.Capability{
		Name:        "plan_project",
		Handler:     planProject,
		Permissions: []agent.Permission{agent.PermissionRead},
		Schema: map[string]any{
			"requirements": "string",
		},
	}); err != nil {
		return err
	}
	return a.AddCapability(agent.Capability{
		Name:        "analyze_requirements",
		Handler:     analyzeRequirements,
		Permissions: []agent.Permission{agent.PermissionRead},
		Schema: map[string]any{
			"text": "string",
		},
	})
}

func planProject(ctx context.Context, payload map[string]any) (any, error) {
	requirements, _ := payload["requirements"].(string)

	return map[string]any{
		"phases": []map[string]any{
			{"name": "Analysis", "duration": "1-2 days", "tasks": []string{"Requirements analysis", "Tech stack selection"}},
			{"name": "Design", "duration": "2-3 days", "tasks": []string{"Architecture design", "API design"}},
			{"name": "Development", "duration": "5-10 days", "tasks": []string{"Core implementation", "Testing"}},
			{"name": "Deployment", "duration": "1-2 days", "tasks": []string{"CI/CD setup", "Production deployment"}},
		},
		"resources":    []string{"2-3 developers", "1 architect", "1 tester"},
		"technologies": suggestTechnologies(requirements),
	}, nil
}

func analyzeRequirements(ctx context.Context, payload map[string]any) (any, error) {
	text, _ := payload["text"].(string)
	lower := strings.ToLower(text)

	functional := []string{"User authentication", "Data processing", "API endpoints"}
	if strings.Contains(lower, "report") {
		functional = append(functional, "Reporting")
	}
	if strings.Contains(lower, "search") {
		functional = append(functional, "Full-text search")
	}

	return map[string]any{
		"functional_requirements":     functional,
		"non_functional_requirements": []string{"Performance", "Security", "Scalability"},
		"constraints":                 []string{"Budget limitations", "Time constraints", "Technology restrictions"},
		"risks":                       []string{"Technical complexity", "Resource availability", "Timeline pressure"},
	}, nil
}

func suggestTechnologies(requirements string) map[string]any {
	techMap := map[string][]string{
		"web":    {"React", "Go", "PostgreSQL"},
		"api":    {"Go", "gin", "Redis"},
		"data":   {"Go", "Kafka", "PostgreSQL"},
		"mobile": {"React Native", "Expo", "Firebase"},
	}

	lower := strings.ToLower(requirements)
	seen := make(map[string]bool)
	var suggested []string
	for key, techs := range techMap {
		if !strings.Contains(lower, key) {
			continue
		}
		for _, t := range techs {
			if !seen[t] {
				seen[t] = true
				suggested = append(suggested, t)
			}
		}
	}
	if len(suggested) == 0 {
		suggested = []string{"Go", "gin", "PostgreSQL"}
	}
	return map[string]any{"recommended": suggested}
}
