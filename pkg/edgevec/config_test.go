package edgevec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/edgevec/edgevec/pkg/distance"
	"github.com/edgevec/edgevec/pkg/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigMatchesDocumentedDefaults(t *testing.T) {
	cfg := DefaultConfig(128, distance.Cosine)
	assert.Equal(t, 16, cfg.M)
	assert.Equal(t, 32, cfg.M0)
	assert.Equal(t, 200, cfg.EfConstruction)
	assert.Equal(t, 50, cfg.EfSearch)
	assert.Equal(t, 0.3, cfg.CompactionThreshold)
	assert.Equal(t, 0.7, cfg.MemoryWarning)
	assert.Equal(t, 0.9, cfg.MemoryCritical)
	assert.True(t, cfg.BlockInsertsAtCritical)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveDim(t *testing.T) {
	cfg := DefaultConfig(0, distance.L2)
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsOutOfRangeCompactionThreshold(t *testing.T) {
	cfg := DefaultConfig(4, distance.L2)
	cfg.CompactionThreshold = 0.995
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBQWithBadDim(t *testing.T) {
	cfg := DefaultConfig(10, distance.L2)
	cfg.BQEnabled = true
	assert.Error(t, cfg.Validate())
}

func TestValidateFillsZeroDefaults(t *testing.T) {
	cfg := Config{Dim: 4}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 16, cfg.M)
	assert.Equal(t, 32, cfg.M0)
	assert.Equal(t, 1000, cfg.PlanCacheSize)
}

func TestLoadConfigYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "edgevec.yaml")
	doc := `
dim: 64
metric: cosine
shape: flat
m: 8
ef_search: 100
quantization: sq8
compaction_threshold: 0.5
memory_budget_bytes: 1048576
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadConfigYAML(path)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Dim)
	assert.Equal(t, distance.Cosine, cfg.Metric)
	assert.Equal(t, ShapeFlat, cfg.Shape)
	assert.Equal(t, 8, cfg.M)
	assert.Equal(t, 100, cfg.EfSearch)
	assert.Equal(t, vectorstore.SQ8, cfg.Quantization)
	assert.Equal(t, 0.5, cfg.CompactionThreshold)
	assert.Equal(t, int64(1048576), cfg.MemoryBudgetBytes)

	// Fields absent from the file keep DefaultConfig's values.
	assert.Equal(t, 200, cfg.EfConstruction)
}

func TestLoadConfigYAMLRejectsUnknownMetric(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "edgevec.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dim: 4\nmetric: manhattan\n"), 0o644))
	_, err := LoadConfigYAML(path)
	assert.Error(t, err)
}

func TestLoadConfigYAMLMissingFileErrors(t *testing.T) {
	_, err := LoadConfigYAML(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
