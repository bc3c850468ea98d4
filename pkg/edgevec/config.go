// Package edgevec is EdgeVec's façade: the single entry point an
// application links against. It owns the vector store, the metadata
// store, and exactly one index shape (HNSW, Flat, or BinaryFlat),
// orchestrating every mutating call in a fixed order (memory-governor
// admission, WAL append, storage write, index-shape mutate, metadata
// write) so a crash between any two steps leaves a WAL record a replay
// can finish applying.
//
// Callers start from DefaultConfig and override only the fields that
// matter to them.
package edgevec

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/edgevec/edgevec/pkg/bq"
	"github.com/edgevec/edgevec/pkg/distance"
	"github.com/edgevec/edgevec/pkg/filter"
	"github.com/edgevec/edgevec/pkg/vectorstore"
)

// Shape selects which index structure an Index is built on. Selection
// is static for the life of the instance.
type Shape int

const (
	// ShapeHNSW is the approximate, graph-based index (default).
	ShapeHNSW Shape = iota
	// ShapeFlat is brute-force exact search over dense vectors.
	ShapeFlat
	// ShapeBinaryFlat is brute-force exact search over BQ codes.
	ShapeBinaryFlat
)

func (s Shape) String() string {
	switch s {
	case ShapeHNSW:
		return "hnsw"
	case ShapeFlat:
		return "flat"
	case ShapeBinaryFlat:
		return "binary_flat"
	default:
		return "unknown"
	}
}

// Config is every tunable an Index carries, from the core HNSW and
// quantization parameters down to façade-level knobs (shape selection,
// plan cache sizing, durability policy, logger).
type Config struct {
	// Dim is required and immutable for the life of the index.
	Dim int
	// Metric is required.
	Metric distance.Metric
	// Shape selects the index structure. Defaults to ShapeHNSW.
	Shape Shape

	// HNSW parameters; ignored for ShapeFlat/ShapeBinaryFlat.
	M              int
	M0             int
	EfConstruction int
	EfSearch       int

	// Quantization is storage-side: None or SQ8.
	Quantization vectorstore.Quantization
	// BQEnabled builds a secondary binary index alongside ShapeHNSW for
	// search_bq/search_bq_rescored. Requires Dim % 8 == 0.
	BQEnabled bool

	// CompactionThreshold is the deleted/total ratio at or above which
	// CompactionRecommended reports true. Default 0.3.
	CompactionThreshold float64
	// MemoryBudgetBytes is the ceiling memory_pressure is measured
	// against. Zero disables pressure tracking (always "normal").
	MemoryBudgetBytes int64
	// MemoryWarning, MemoryCritical are fractions of MemoryBudgetBytes.
	// Defaults 0.7, 0.9.
	MemoryWarning  float64
	MemoryCritical float64
	// BlockInsertsAtCritical rejects inserts at critical pressure.
	// Default true.
	BlockInsertsAtCritical bool

	// CompressSnapshots s2-compresses the snapshot payload before its
	// CRC is computed. Default false.
	CompressSnapshots bool
	// WALSyncOnAppend fsyncs the WAL after every appended record
	// instead of only on Close/Save. Slower, but a crash can then never
	// lose an acknowledged mutation. Default false.
	WALSyncOnAppend bool

	// FilterSelector tunes the filter strategy selector's thresholds.
	// Defaults from filter.DefaultSelectorConfig.
	FilterSelector filter.SelectorConfig
	// PlanCacheSize bounds each of the filter plan cache's two
	// generations, so up to twice this many plans may be resident.
	// Default 1000.
	PlanCacheSize int
	// PlanCacheTTLMs is the plan cache entry lifetime in milliseconds.
	// Zero disables TTL expiry (generation rotation only). Default 0.
	PlanCacheTTLMs int64

	// Logger receives operational log lines (compaction summaries, WAL
	// replay counts, snapshot saves). Defaults to a discarding logger.
	Logger *log.Logger
}

// DefaultConfig returns the documented defaults for dim and metric.
// Callers override individual fields from the returned value.
func DefaultConfig(dim int, metric distance.Metric) Config {
	return Config{
		Dim:                    dim,
		Metric:                 metric,
		Shape:                  ShapeHNSW,
		M:                      16,
		M0:                     32,
		EfConstruction:         200,
		EfSearch:               50,
		Quantization:           vectorstore.None,
		CompactionThreshold:    0.3,
		MemoryWarning:          0.7,
		MemoryCritical:         0.9,
		BlockInsertsAtCritical: true,
		FilterSelector:         filter.DefaultSelectorConfig(),
		PlanCacheSize:          1000,
	}
}

// Validate checks cfg for internal consistency, filling in zero-valued
// defaults the same way New/Open do before the index is constructed.
func (cfg *Config) Validate() error {
	if cfg.Dim <= 0 {
		return fmt.Errorf("%w: dim must be positive, got %d", ErrDimensionMismatch, cfg.Dim)
	}
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.M0 <= 0 {
		cfg.M0 = 2 * cfg.M
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = 200
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = 50
	}
	if cfg.CompactionThreshold <= 0 {
		cfg.CompactionThreshold = 0.3
	}
	if cfg.CompactionThreshold < 0.01 || cfg.CompactionThreshold > 0.99 {
		return fmt.Errorf("edgevec: compaction_threshold must be in [0.01, 0.99], got %v", cfg.CompactionThreshold)
	}
	if cfg.MemoryWarning <= 0 {
		cfg.MemoryWarning = 0.7
	}
	if cfg.MemoryCritical <= 0 {
		cfg.MemoryCritical = 0.9
	}
	if cfg.FilterSelector == (filter.SelectorConfig{}) {
		cfg.FilterSelector = filter.DefaultSelectorConfig()
	}
	if cfg.PlanCacheSize <= 0 {
		cfg.PlanCacheSize = 1000
	}
	if cfg.BQEnabled {
		if err := bq.CheckDim(cfg.Dim); err != nil {
			return err
		}
	}
	switch cfg.Shape {
	case ShapeHNSW, ShapeFlat, ShapeBinaryFlat:
	default:
		return fmt.Errorf("edgevec: unknown index shape %d", cfg.Shape)
	}
	return nil
}

// yamlConfig is Config's on-disk mirror: string enums instead of int
// constants, so a saved YAML file reads naturally (`metric: cosine`
// rather than `metric: 1`).
type yamlConfig struct {
	Dim                    int     `yaml:"dim"`
	Metric                 string  `yaml:"metric"`
	Shape                  string  `yaml:"shape"`
	M                      int     `yaml:"m"`
	M0                     int     `yaml:"m0"`
	EfConstruction         int     `yaml:"ef_construction"`
	EfSearch               int     `yaml:"ef_search"`
	Quantization           string  `yaml:"quantization"`
	BQEnabled              bool    `yaml:"bq_enabled"`
	CompactionThreshold    float64 `yaml:"compaction_threshold"`
	MemoryBudgetBytes      int64   `yaml:"memory_budget_bytes"`
	MemoryWarning          float64 `yaml:"memory_warning"`
	MemoryCritical         float64 `yaml:"memory_critical"`
	BlockInsertsAtCritical *bool   `yaml:"block_inserts_at_critical"`
	CompressSnapshots      bool    `yaml:"compress_snapshots"`
	WALSyncOnAppend        bool    `yaml:"wal_sync_on_append"`
	PlanCacheSize          int     `yaml:"plan_cache_size"`
	PlanCacheTTLMs         int64   `yaml:"plan_cache_ttl_ms"`
}

// LoadConfigYAML reads a Config from a YAML file at path, using the
// string-enum mirror above. Fields absent from the file keep
// DefaultConfig's zero-dim placeholder values, so callers should treat
// the returned Config as one more override layer, not a complete
// replacement for DefaultConfig.
func LoadConfigYAML(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("edgevec: read config file: %w", err)
	}
	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return Config{}, fmt.Errorf("edgevec: parse config file: %w", err)
	}

	metric, err := metricFromString(y.Metric)
	if err != nil {
		return Config{}, err
	}
	cfg := DefaultConfig(y.Dim, metric)

	if y.Shape != "" {
		shape, err := shapeFromString(y.Shape)
		if err != nil {
			return Config{}, err
		}
		cfg.Shape = shape
	}
	if y.M > 0 {
		cfg.M = y.M
	}
	if y.M0 > 0 {
		cfg.M0 = y.M0
	}
	if y.EfConstruction > 0 {
		cfg.EfConstruction = y.EfConstruction
	}
	if y.EfSearch > 0 {
		cfg.EfSearch = y.EfSearch
	}
	if y.Quantization != "" {
		quant, err := quantizationFromString(y.Quantization)
		if err != nil {
			return Config{}, err
		}
		cfg.Quantization = quant
	}
	cfg.BQEnabled = y.BQEnabled
	if y.CompactionThreshold > 0 {
		cfg.CompactionThreshold = y.CompactionThreshold
	}
	cfg.MemoryBudgetBytes = y.MemoryBudgetBytes
	if y.MemoryWarning > 0 {
		cfg.MemoryWarning = y.MemoryWarning
	}
	if y.MemoryCritical > 0 {
		cfg.MemoryCritical = y.MemoryCritical
	}
	if y.BlockInsertsAtCritical != nil {
		cfg.BlockInsertsAtCritical = *y.BlockInsertsAtCritical
	}
	cfg.CompressSnapshots = y.CompressSnapshots
	cfg.WALSyncOnAppend = y.WALSyncOnAppend
	if y.PlanCacheSize > 0 {
		cfg.PlanCacheSize = y.PlanCacheSize
	}
	cfg.PlanCacheTTLMs = y.PlanCacheTTLMs
	return cfg, nil
}

func metricFromString(s string) (distance.Metric, error) {
	switch s {
	case "", "l2":
		return distance.L2, nil
	case "cosine":
		return distance.Cosine, nil
	case "dot":
		return distance.Dot, nil
	case "hamming":
		return distance.Hamming, nil
	default:
		return 0, fmt.Errorf("edgevec: unknown metric %q", s)
	}
}

func shapeFromString(s string) (Shape, error) {
	switch s {
	case "", "hnsw":
		return ShapeHNSW, nil
	case "flat":
		return ShapeFlat, nil
	case "binary_flat":
		return ShapeBinaryFlat, nil
	default:
		return 0, fmt.Errorf("edgevec: unknown shape %q", s)
	}
}

func quantizationFromString(s string) (vectorstore.Quantization, error) {
	switch s {
	case "", "none":
		return vectorstore.None, nil
	case "sq8":
		return vectorstore.SQ8, nil
	default:
		return 0, fmt.Errorf("edgevec: unknown quantization %q", s)
	}
}
