package memguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateFormula(t *testing.T) {
	in := Inputs{
		LiveCount:     1000,
		Dim:           128,
		Quantization:  QuantizationNone,
		M:             16,
		AvgLevel:      1.5,
		MetadataBytes: 2000,
	}
	got := Estimate(in)

	vectorBytes := int64(1000 * 128 * 4)
	m0 := int64(32)
	graphBytes := int64(float64(1000) * (float64(m0) + 1.5*16) * 4)
	want := vectorBytes + graphBytes + 2000 + overheadConstant
	assert.Equal(t, want, got)
}

func TestEstimateSQ8UsesOneByteElems(t *testing.T) {
	base := Inputs{LiveCount: 100, Dim: 128, M: 16, Quantization: QuantizationNone}
	sq8 := base
	sq8.Quantization = QuantizationSQ8

	assert.Less(t, Estimate(sq8), Estimate(base))
}

func TestGovernorLevelThresholds(t *testing.T) {
	g := New(DefaultConfig(1000))

	assert.Equal(t, LevelNormal, g.Level(500))
	assert.Equal(t, LevelWarning, g.Level(750))
	assert.Equal(t, LevelCritical, g.Level(950))
}

func TestGovernorZeroBudgetIsAlwaysNormal(t *testing.T) {
	g := New(DefaultConfig(0))
	assert.Equal(t, LevelNormal, g.Level(1_000_000))
}

func TestAdmitInsertBlocksAtCritical(t *testing.T) {
	g := New(DefaultConfig(1000))
	assert.True(t, g.AdmitInsert(500))
	assert.True(t, g.AdmitInsert(750))
	assert.False(t, g.AdmitInsert(950))
}

func TestAdmitInsertAllowsWhenBlockingDisabled(t *testing.T) {
	cfg := DefaultConfig(1000)
	cfg.BlockInsertsAtCritical = false
	g := New(cfg)
	assert.True(t, g.AdmitInsert(999))
}

func TestCompactionRecommended(t *testing.T) {
	g := New(DefaultConfig(1000))
	assert.False(t, g.CompactionRecommended(100, 10))
	assert.True(t, g.CompactionRecommended(70, 30))
	assert.False(t, g.CompactionRecommended(0, 0))
}

func TestStatusStringFormatsHumanReadable(t *testing.T) {
	g := New(DefaultConfig(1_000_000))
	s := g.Status(277_000)
	str := s.String()
	assert.Contains(t, str, "%")
	assert.Contains(t, str, "[normal]")
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "normal", LevelNormal.String())
	assert.Equal(t, "warning", LevelWarning.String())
	assert.Equal(t, "critical", LevelCritical.String())
}
