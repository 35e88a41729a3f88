package backup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentapi-dev/agentapi/internal/metrics"
	"github.com/agentapi-dev/agentapi/pkg/store"
)

func seededStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.SaveAgent(ctx, &store.AgentRecord{Name: "planner", Role: "strategist", Status: "running"}))
	require.NoError(t, st.SaveAgent(ctx, &store.AgentRecord{Name: "coder", Role: "codegen", Status: "running"}))
	require.NoError(t, st.SaveMetrics(ctx, metrics.Snapshot{CPUPercent: 42, Timestamp: time.Now().UTC()}))
	return st
}

func newTestManager(t *testing.T, st store.Store, keep int) *Manager {
	t.Helper()
	m, err := NewManager(Config{Dir: t.TempDir(), Keep: keep}, st)
	require.NoError(t, err)
	return m
}

func TestBackupNowWritesArchive(t *testing.T) {
	st := seededStore(t)
	m := newTestManager(t, st, 7)

	path, err := m.BackupNow(context.Background())
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path) || filepath.Dir(path) != "")

	arc, err := ReadArchive(path)
	require.NoError(t, err)
	assert.Len(t, arc.Agents, 2)
	assert.Len(t, arc.Metrics, 1)
	assert.Equal(t, 42.0, arc.Metrics[0].CPUPercent)
	assert.False(t, arc.CreatedAt.IsZero())
}

func TestRestoreRoundtrip(t *testing.T) {
	src := seededStore(t)
	m := newTestManager(t, src, 7)
	ctx := context.Background()

	path, err := m.BackupNow(ctx)
	require.NoError(t, err)

	dst := store.NewMemoryStore()
	restorer, err := NewManager(Config{Dir: t.TempDir()}, dst)
	require.NoError(t, err)
	require.NoError(t, restorer.Restore(ctx, path))

	agents, err := dst.Agents(ctx)
	require.NoError(t, err)
	assert.Len(t, agents, 2)

	rec, err := dst.LoadAgent(ctx, "planner")
	require.NoError(t, err)
	assert.Equal(t, "strategist", rec.Role)

	history, err := dst.MetricsHistory(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRetentionPrunesOldest(t *testing.T) {
	st := seededStore(t)
	m := newTestManager(t, st, 2)
	ctx := context.Background()

	var paths []string
	for i := 0; i < 4; i++ {
		p, err := m.BackupNow(ctx)
		require.NoError(t, err)
		paths = append(paths, p)
		// Archive names have second resolution.
		time.Sleep(1100 * time.Millisecond)
	}

	kept, err := m.List()
	require.NoError(t, err)
	require.Len(t, kept, 2)
	assert.Equal(t, paths[2], kept[0])
	assert.Equal(t, paths[3], kept[1])
}

func TestReadArchiveMissingFile(t *testing.T) {
	_, err := ReadArchive(filepath.Join(t.TempDir(), "nope.json.gz"))
	assert.Error(t, err)
}

func TestNewManagerRequiresDir(t *testing.T) {
	_, err := NewManager(Config{}, store.NewMemoryStore())
	assert.Error(t, err)
}
