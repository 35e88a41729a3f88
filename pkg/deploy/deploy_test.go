package deploy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestKubernetesManifests(t *testing.T) {
	g := NewGenerator("agentapi")
	manifests := g.KubernetesManifests()

	for _, name := range []string{"namespace.yaml", "deployment.yaml", "service.yaml", "configmap.yaml", "secret.yaml", "ingress.yaml"} {
		assert.Contains(t, manifests, name)
	}

	// Every manifest must be parseable YAML.
	for name, content := range manifests {
		var doc map[string]any
		require.NoError(t, yaml.Unmarshal([]byte(content), &doc), "manifest %s", name)
		assert.NotEmpty(t, doc["apiVersion"], "manifest %s", name)
		assert.NotEmpty(t, doc["kind"], "manifest %s", name)
	}
}

func TestDeploymentManifestContent(t *testing.T) {
	g := NewGenerator("myproj")
	g.SetReplicas(5)

	dep := g.KubernetesManifests()["deployment.yaml"]
	assert.Contains(t, dep, "name: myproj")
	assert.Contains(t, dep, "replicas: 5")
	assert.Contains(t, dep, "image: myproj:latest")
	assert.Contains(t, dep, "containerPort: 8080")
	assert.Contains(t, dep, "path: /health/live")
	assert.Contains(t, dep, "path: /health/ready")
}

func TestDefaultProjectName(t *testing.T) {
	g := NewGenerator("")
	assert.Contains(t, g.KubernetesManifests()["namespace.yaml"], "name: agentapi")
}

func TestDockerCompose(t *testing.T) {
	g := NewGenerator("agentapi")
	compose := g.DockerCompose()

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(compose), &doc))

	services := doc["services"].(map[string]any)
	assert.Contains(t, services, "agentapi")
	assert.Contains(t, services, "redis")
	assert.Contains(t, compose, "REDIS_ADDR=redis:6379")
}

func TestWriteManifests(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "k8s")

	g := NewGenerator("agentapi")
	require.NoError(t, g.WriteManifests(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 6)

	compose, err := os.ReadFile(filepath.Join(root, "docker-compose.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(compose), "services:")
}
