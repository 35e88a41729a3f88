// Package backup provides scheduled snapshots of the persistence store.
// Archives are gzip-compressed JSON dumps written to a local directory,
// with the oldest archives pruned past a retention count.
package backup

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/agentapi-dev/agentapi/internal/metrics"
	"github.com/agentapi-dev/agentapi/pkg/store"
)

// Archive is the on-disk snapshot format.
type Archive struct {
	CreatedAt time.Time            `json:"created_at"`
	Agents    []*store.AgentRecord `json:"agents"`
	Metrics   []metrics.Snapshot   `json:"metrics"`
}

// Config controls scheduling and retention.
type Config struct {
	// Schedule is a cron expression (default: daily at 02:00).
	Schedule string
	// Dir is the directory archives are written to.
	Dir string
	// Keep is the number of archives retained (default: 7).
	Keep int
}

// Manager runs scheduled backups of a store.
type Manager struct {
	cfg   Config
	src   store.Store
	cron  *cron.Cron
	mu    sync.Mutex
	entry cron.EntryID
}

// NewManager creates a backup manager. Start must be called to begin the
// schedule; BackupNow works without starting.
func NewManager(cfg Config, src store.Store) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, errors.New("backup directory is required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "0 2 * * *"
	}
	if cfg.Keep <= 0 {
		cfg.Keep = 7
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	return &Manager{
		cfg:  cfg,
		src:  src,
		cron: cron.New(),
	}, nil
}

// Start schedules backups per the configured cron expression.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.cron.AddFunc(m.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		path, err := m.BackupNow(ctx)
		if err != nil {
			log.Printf("Scheduled backup failed: %v", err)
			return
		}
		log.Printf("Backup written: %s", path)
	})
	if err != nil {
		return fmt.Errorf("schedule backup: %w", err)
	}

	m.entry = id
	m.cron.Start()
	return nil
}

// Stop halts the schedule. In-flight backups run to completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx := m.cron.Stop()
	<-ctx.Done()
}

// BackupNow writes a snapshot of the store and prunes old archives.
// It returns the path of the archive written.
func (m *Manager) BackupNow(ctx context.Context) (string, error) {
	agents, err := m.src.Agents(ctx)
	if err != nil {
		return "", fmt.Errorf("dump agents: %w", err)
	}

	history, err := m.src.MetricsHistory(ctx, time.Time{})
	if err != nil {
		return "", fmt.Errorf("dump metrics: %w", err)
	}

	arc := Archive{
		CreatedAt: time.Now().UTC(),
		Agents:    agents,
		Metrics:   history,
	}

	name := fmt.Sprintf("backup-%s.json.gz", arc.CreatedAt.Format("20060102-150405"))
	path := filepath.Join(m.cfg.Dir, name)

	if err := writeArchive(path, &arc); err != nil {
		return "", err
	}

	if err := m.prune(); err != nil {
		log.Printf("Backup retention pruning failed: %v", err)
	}

	return path, nil
}

// Restore loads an archive back into the store. Existing records with the
// same names are overwritten.
func (m *Manager) Restore(ctx context.Context, path string) error {
	arc, err := ReadArchive(path)
	if err != nil {
		return err
	}

	for _, rec := range arc.Agents {
		if err := m.src.SaveAgent(ctx, rec); err != nil {
			return fmt.Errorf("restore agent %s: %w", rec.Name, err)
		}
	}
	for _, snap := range arc.Metrics {
		if err := m.src.SaveMetrics(ctx, snap); err != nil {
			return fmt.Errorf("restore metrics: %w", err)
		}
	}
	return nil
}

// List returns archive paths in the backup directory, oldest first.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json.gz") {
			continue
		}
		paths = append(paths, filepath.Join(m.cfg.Dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func (m *Manager) prune() error {
	paths, err := m.List()
	if err != nil {
		return err
	}

	for len(paths) > m.cfg.Keep {
		if err := os.Remove(paths[0]); err != nil {
			return fmt.Errorf("remove old backup: %w", err)
		}
		paths = paths[1:]
	}
	return nil
}

func writeArchive(path string, arc *Archive) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	gz := gzip.NewWriter(f)
	if err := json.NewEncoder(gz).Encode(arc); err != nil {
		_ = gz.Close()
		_ = f.Close()
		return fmt.Errorf("encode archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("close gzip writer: %w", err)
	}
	return f.Close()
}

// ReadArchive decodes an archive file.
func ReadArchive(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open gzip reader: %w", err)
	}
	defer gz.Close()

	var arc Archive
	if err := json.NewDecoder(gz).Decode(&arc); err != nil {
		return nil, fmt.Errorf("decode archive: %w", err)
	}
	return &arc, nil
}
