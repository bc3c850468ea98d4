// Package memguard tracks an estimate of an EdgeVec index's heap
// footprint against a numeric budget and reports it as one of three
// pressure levels. The governor is handed a byte count by its caller
// each time it is asked; it never polls the runtime and spawns no
// background goroutine. Human-readable output uses
// github.com/dustin/go-humanize.
package memguard

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Level is the memory-pressure state an estimate falls into.
type Level int

const (
	LevelNormal Level = iota
	LevelWarning
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Quantization mirrors the storage layer's element encoding so the
// estimate formula knows the per-dimension byte cost without importing
// pkg/vectorstore.
type Quantization int

const (
	QuantizationNone Quantization = iota // float32 per dim
	QuantizationSQ8                      // 1 byte per dim
)

func elemSize(q Quantization) int64 {
	if q == QuantizationSQ8 {
		return 1
	}
	return 4
}

// Config tunes the governor's thresholds and admission policy.
type Config struct {
	// BudgetBytes is the operator-configured ceiling the estimate is
	// measured against.
	BudgetBytes int64
	// WarningThreshold and CriticalThreshold are fractions of
	// BudgetBytes (defaults 0.70 and 0.90).
	WarningThreshold  float64
	CriticalThreshold float64
	// BlockInsertsAtCritical rejects inserts once Level() reaches
	// LevelCritical (default true); queries and deletes are always
	// allowed regardless of level.
	BlockInsertsAtCritical bool
	// CompactionTombstoneThreshold is the deleted/total ratio at or
	// above which CompactionRecommended reports true (default 0.30).
	CompactionTombstoneThreshold float64
}

// DefaultConfig returns the documented threshold defaults.
func DefaultConfig(budgetBytes int64) Config {
	return Config{
		BudgetBytes:                  budgetBytes,
		WarningThreshold:             0.70,
		CriticalThreshold:            0.90,
		BlockInsertsAtCritical:       true,
		CompactionTombstoneThreshold: 0.30,
	}
}

// Inputs is the per-call snapshot of index state the governor's
// estimate formula is computed from.
type Inputs struct {
	LiveCount     int64
	DeletedCount  int64
	Dim           int64
	Quantization  Quantization
	M             int64
	AvgLevel      float64
	MetadataBytes int64
}

// overheadConstant is a fixed per-index fudge factor for bookkeeping
// structures (maps, slice headers) the per-vector/per-edge terms don't
// individually account for.
const overheadConstant int64 = 4096

// graphElemSize is the footprint of one neighbor-list entry: a
// VectorId is a uint32.
const graphElemSize int64 = 4

// Estimate computes the usage formula:
//
//	estimate = vectorBytes + graphBytes + metadataBytes + overheadConstant
//	vectorBytes = liveCount * dim * elemSize(quantization)
//	graphBytes  = liveCount * (m0 + avgLevel*m) * 4
//
// m0 is conventionally 2*M, so it is derived from in.M rather than
// threaded through as a separate field.
func Estimate(in Inputs) int64 {
	m0 := 2 * in.M
	vectorBytes := in.LiveCount * in.Dim * elemSize(in.Quantization)
	graphBytes := int64(float64(in.LiveCount) * (float64(m0) + in.AvgLevel*float64(in.M)) * float64(graphElemSize))
	return vectorBytes + graphBytes + in.MetadataBytes + overheadConstant
}

// Governor evaluates memory pressure from the most recent Estimate
// against a Config's thresholds. It holds no goroutines and performs
// no background polling: callers pass a freshly computed estimate to
// each call (pkg/edgevec does so on insert admission and when pressure
// or stats are queried; deletes are not gated and compute none).
type Governor struct {
	cfg Config
}

// New creates a Governor with cfg.
func New(cfg Config) *Governor {
	return &Governor{cfg: cfg}
}

// Level classifies estimateBytes against the governor's thresholds.
func (g *Governor) Level(estimateBytes int64) Level {
	if g.cfg.BudgetBytes <= 0 {
		return LevelNormal
	}
	ratio := float64(estimateBytes) / float64(g.cfg.BudgetBytes)
	switch {
	case ratio >= g.cfg.CriticalThreshold:
		return LevelCritical
	case ratio >= g.cfg.WarningThreshold:
		return LevelWarning
	default:
		return LevelNormal
	}
}

// AdmitInsert reports whether an insert may proceed given
// estimateBytes: false only when the level is critical and
// BlockInsertsAtCritical is set. Queries and deletes are never gated
// by the governor.
func (g *Governor) AdmitInsert(estimateBytes int64) bool {
	if !g.cfg.BlockInsertsAtCritical {
		return true
	}
	return g.Level(estimateBytes) != LevelCritical
}

// CompactionRecommended reports whether the tombstone ratio
// (deleted / (live+deleted)) has crossed the configured threshold.
func (g *Governor) CompactionRecommended(liveCount, deletedCount int64) bool {
	total := liveCount + deletedCount
	if total == 0 {
		return false
	}
	ratio := float64(deletedCount) / float64(total)
	return ratio >= g.cfg.CompactionTombstoneThreshold
}

// Status is a read-only snapshot of the governor's evaluation for one
// estimate, suitable for logging or returning from a public accessor.
type Status struct {
	EstimateBytes int64
	BudgetBytes   int64
	Level         Level
}

// String renders a human-readable summary like "142 MB / 512 MB
// (27.7%)", using go-humanize for the byte counts.
func (s Status) String() string {
	var pct float64
	if s.BudgetBytes > 0 {
		pct = float64(s.EstimateBytes) / float64(s.BudgetBytes) * 100
	}
	return fmt.Sprintf("%s / %s (%.1f%%) [%s]",
		humanize.Bytes(uint64(s.EstimateBytes)),
		humanize.Bytes(uint64(s.BudgetBytes)),
		pct, s.Level)
}

// Status evaluates estimateBytes and returns a Status snapshot.
func (g *Governor) Status(estimateBytes int64) Status {
	return Status{
		EstimateBytes: estimateBytes,
		BudgetBytes:   g.cfg.BudgetBytes,
		Level:         g.Level(estimateBytes),
	}
}
