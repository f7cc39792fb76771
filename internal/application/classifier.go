package app

import (
	"fmt"

	"thermal-eye/internal/domain/entity"
)

// Classifier классификатор дефектов по порогам превышения температуры.
// Пороги табличные, по типам компонентов (в духе IEEE C57.91), загружаются
// один раз и не меняются.
type Classifier struct {
	table entity.ThresholdTable
}

// NewClassifier создаёт классификатор с таблицей порогов.
func NewClassifier(table entity.ThresholdTable) *Classifier {
	return &Classifier{table: table}
}

// Classify оценивает одно обнаружение по температурной матрице.
// Область обрезается до границ матрицы; вырожденная область даёт Normal
// с пометкой, но никогда не ошибку.
func (c *Classifier) Classify(det entity.Detection, m *entity.TemperatureMatrix, ambient float64) entity.DefectVerdict {
	maxT, meanT, ok := m.RegionStats(det.Box)
	if !ok {
		return entity.DefectVerdict{
			Tier:       entity.RiskNormal,
			Rule:       fmt.Sprintf("%s: degenerate region, defaulting to normal", det.Type),
			Degenerate: true,
		}
	}

	rise := maxT - ambient
	th := c.table.Lookup(det.Type)

	verdict := entity.DefectVerdict{
		MaxTemp:  maxT,
		MeanTemp: meanT,
		Rise:     rise,
	}
	switch {
	case rise >= th.Critical:
		verdict.Tier = entity.RiskCritical
		verdict.Rule = fmt.Sprintf("%s: rise %.1f >= critical %.1f", det.Type, rise, th.Critical)
	case rise >= th.Potential:
		verdict.Tier = entity.RiskPotential
		verdict.Rule = fmt.Sprintf("%s: rise %.1f >= potential %.1f", det.Type, rise, th.Potential)
	default:
		verdict.Tier = entity.RiskNormal
		verdict.Rule = fmt.Sprintf("%s: rise %.1f below potential %.1f", det.Type, rise, th.Potential)
	}
	return verdict
}
