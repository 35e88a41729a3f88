// Package deploy generates deployment descriptors for a runtime deployment:
// Kubernetes manifests and a docker-compose file.
package deploy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Generator renders manifests for a named project.
type Generator struct {
	project  string
	replicas int
}

// NewGenerator creates a generator. The default replica count is 3.
func NewGenerator(project string) *Generator {
	if project == "" {
		project = "agentapi"
	}
	return &Generator{project: project, replicas: 3}
}

// SetReplicas overrides the deployment replica count.
func (g *Generator) SetReplicas(n int) {
	if n > 0 {
		g.replicas = n
	}
}

// KubernetesManifests returns manifest file names mapped to their content.
func (g *Generator) KubernetesManifests() map[string]string {
	return map[string]string{
		"namespace.yaml":  g.namespace(),
		"deployment.yaml": g.deployment(),
		"service.yaml":    g.service(),
		"configmap.yaml":  g.configMap(),
		"secret.yaml":     g.secret(),
		"ingress.yaml":    g.ingress(),
	}
}

// WriteManifests writes the Kubernetes manifests into dir and a
// docker-compose.yml next to it.
func (g *Generator) WriteManifests(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}

	manifests := g.KubernetesManifests()
	names := make([]string, 0, len(manifests))
	for name := range manifests {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(manifests[name]), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	composePath := filepath.Join(filepath.Dir(dir), "docker-compose.yml")
	if err := os.WriteFile(composePath, []byte(g.DockerCompose()), 0o644); err != nil {
		return fmt.Errorf("write docker-compose.yml: %w", err)
	}
	return nil
}

func (g *Generator) namespace() string {
	return trim(fmt.Sprintf(`
apiVersion: v1
kind: Namespace
metadata:
  name: %s
`, g.project))
}

func (g *Generator) deployment() string {
	return trim(fmt.Sprintf(`
apiVersion: apps/v1
kind: Deployment
metadata:
  name: %[1]s
  namespace: %[1]s
spec:
  replicas: %[2]d
  selector:
    matchLabels:
      app: %[1]s
  template:
    metadata:
      labels:
        app: %[1]s
    spec:
      containers:
      - name: %[1]s
        image: %[1]s:latest
        ports:
        - containerPort: 8080
        env:
        - name: REDIS_ADDR
          valueFrom:
            configMapKeyRef:
              name: %[1]s-config
              key: REDIS_ADDR
        - name: JWT_SECRET
          valueFrom:
            secretKeyRef:
              name: %[1]s-secrets
              key: jwt-secret
        livenessProbe:
          httpGet:
            path: /health/live
            port: 9090
          initialDelaySeconds: 30
          periodSeconds: 10
        readinessProbe:
          httpGet:
            path: /health/ready
            port: 9090
          initialDelaySeconds: 5
          periodSeconds: 5
`, g.project, g.replicas))
}

func (g *Generator) service() string {
	return trim(fmt.Sprintf(`
apiVersion: v1
kind: Service
metadata:
  name: %[1]s-service
  namespace: %[1]s
spec:
  selector:
    app: %[1]s
  ports:
  - protocol: TCP
    port: 80
    targetPort: 8080
  type: ClusterIP
`, g.project))
}

func (g *Generator) configMap() string {
	return trim(fmt.Sprintf(`
apiVersion: v1
kind: ConfigMap
metadata:
  name: %[1]s-config
  namespace: %[1]s
data:
  REDIS_ADDR: "redis:6379"
  TICK_INTERVAL: "10s"
  BACKUP_SCHEDULE: "0 2 * * *"
`, g.project))
}

func (g *Generator) secret() string {
	return trim(fmt.Sprintf(`
apiVersion: v1
kind: Secret
metadata:
  name: %[1]s-secrets
  namespace: %[1]s
type: Opaque
stringData:
  jwt-secret: change-me
`, g.project))
}

func (g *Generator) ingress() string {
	return trim(fmt.Sprintf(`
apiVersion: networking.k8s.io/v1
kind: Ingress
metadata:
  name: %[1]s-ingress
  namespace: %[1]s
  annotations:
    nginx.ingress.kubernetes.io/rewrite-target: /
spec:
  rules:
  - host: %[1]s.local
    http:
      paths:
      - path: /
        pathType: Prefix
        backend:
          service:
            name: %[1]s-service
            port:
              number: 80
`, g.project))
}

// DockerCompose returns a compose file running the service alongside Redis.
func (g *Generator) DockerCompose() string {
	return trim(fmt.Sprintf(`
services:
  %[1]s:
    build: .
    ports:
      - "8080:8080"
      - "9090:9090"
    environment:
      - REDIS_ADDR=redis:6379
      - JWT_SECRET=change-me
    depends_on:
      - redis
    volumes:
      - ./backups:/app/backups
    restart: unless-stopped
    networks:
      - app-network

  redis:
    image: redis:7-alpine
    volumes:
      - redis_data:/data
    networks:
      - app-network
    restart: unless-stopped

networks:
  app-network:
    driver: bridge

volumes:
  redis_data:
`, g.project))
}

func trim(s string) string {
	return strings.TrimSpace(s) + "\n"
}
