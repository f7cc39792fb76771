package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"thermal-eye/internal/domain/entity"
)

func testThresholds() entity.ThresholdTable {
	return entity.ThresholdTable{
		Default: entity.RiskThresholds{Potential: 20, Critical: 40},
		PerType: map[entity.ComponentType]entity.RiskThresholds{
			entity.ComponentJoint: {Potential: 15, Critical: 35},
		},
	}
}

func uniformMatrix(w, h int, temp float64) *entity.TemperatureMatrix {
	m := entity.NewTemperatureMatrix(w, h, true)
	for i := range m.Cells {
		m.Cells[i] = temp
	}
	return m
}

func TestClassifyTiers(t *testing.T) {
	c := NewClassifier(testThresholds())
	ambient := 34.0
	box := entity.BBox{X: 0, Y: 0, Width: 4, Height: 4}

	tests := []struct {
		name string
		temp float64
		det  entity.Detection
		want entity.RiskTier
	}{
		{"below potential", 44.0, entity.Detection{Type: entity.ComponentNutBolt, Box: box}, entity.RiskNormal},
		{"at potential boundary", 54.0, entity.Detection{Type: entity.ComponentNutBolt, Box: box}, entity.RiskPotential},
		{"at critical boundary", 74.0, entity.Detection{Type: entity.ComponentNutBolt, Box: box}, entity.RiskCritical},
		{"joint uses its own thresholds", 50.0, entity.Detection{Type: entity.ComponentJoint, Box: box}, entity.RiskPotential},
		{"joint critical", 95.5, entity.Detection{Type: entity.ComponentJoint, Box: box}, entity.RiskCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := uniformMatrix(4, 4, tt.temp)
			verdict := c.Classify(tt.det, m, ambient)
			require.Equal(t, tt.want, verdict.Tier)
			require.False(t, verdict.Degenerate)
			require.NotEmpty(t, verdict.Rule)
			require.InDelta(t, tt.temp, verdict.MaxTemp, 1e-9)
			require.InDelta(t, tt.temp-ambient, verdict.Rise, 1e-9)
		})
	}
}

func TestClassifyUsesRegionMaximum(t *testing.T) {
	c := NewClassifier(testThresholds())

	// Одна горячая ячейка среди холодных решает исход.
	m := uniformMatrix(4, 4, 36.0)
	m.Set(2, 1, 95.0)

	verdict := c.Classify(entity.Detection{
		Type: entity.ComponentNutBolt,
		Box:  entity.BBox{X: 0, Y: 0, Width: 4, Height: 4},
	}, m, 34.0)

	require.Equal(t, entity.RiskCritical, verdict.Tier)
	require.InDelta(t, 95.0, verdict.MaxTemp, 1e-9)
	require.Less(t, verdict.MeanTemp, verdict.MaxTemp)
}

func TestClassifyMonotonicInTemperature(t *testing.T) {
	c := NewClassifier(testThresholds())
	det := entity.Detection{Type: entity.ComponentConductor, Box: entity.BBox{X: 0, Y: 0, Width: 2, Height: 2}}

	prevRank := -1
	for _, temp := range []float64{35, 45, 55, 65, 75, 85} {
		verdict := c.Classify(det, uniformMatrix(2, 2, temp), 34.0)
		require.GreaterOrEqual(t, verdict.Tier.Rank(), prevRank, "tier must not drop as temperature rises")
		prevRank = verdict.Tier.Rank()
	}
}

func TestClassifyDegenerateRegion(t *testing.T) {
	c := NewClassifier(testThresholds())
	m := uniformMatrix(4, 4, 200.0)

	// Область за пределами матрицы после обрезки пуста.
	verdict := c.Classify(entity.Detection{
		Type: entity.ComponentInsulator,
		Box:  entity.BBox{X: 10, Y: 10, Width: 5, Height: 5},
	}, m, 34.0)

	require.True(t, verdict.Degenerate)
	require.Equal(t, entity.RiskNormal, verdict.Tier)
	require.Contains(t, verdict.Rule, "degenerate")
}
