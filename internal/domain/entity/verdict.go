package entity

// RiskTier уровень риска по IEEE C57.91
type RiskTier string

const (
	RiskNormal    RiskTier = "normal"
	RiskPotential RiskTier = "potential"
	RiskCritical  RiskTier = "critical"
)

// Rank задаёт порядок уровней: Normal < Potential < Critical.
func (r RiskTier) Rank() int {
	switch r {
	case RiskPotential:
		return 1
	case RiskCritical:
		return 2
	default:
		return 0
	}
}

// RiskThresholds пороги превышения над окружающей средой для одного типа компонента (°C)
type RiskThresholds struct {
	Potential float64
	Critical  float64
}

// ThresholdTable таблица порогов по типам компонентов.
// Загружается из конфигурации один раз на старте и дальше не меняется.
type ThresholdTable struct {
	Default RiskThresholds
	PerType map[ComponentType]RiskThresholds
}

// Lookup возвращает пороги для типа, либо значения по умолчанию.
func (t ThresholdTable) Lookup(ct ComponentType) RiskThresholds {
	if th, ok := t.PerType[ct]; ok {
		return th
	}
	return t.Default
}

// DefectVerdict оценка одного найденного компонента
type DefectVerdict struct {
	MaxTemp    float64  // максимум в области, °C
	MeanTemp   float64  // среднее по области, °C
	Rise       float64  // превышение максимума над окружающей средой, °C
	Tier       RiskTier // уровень риска
	Rule       string   // сработавшее правило, для отчёта
	Degenerate bool     // область нулевой площади
}

// Finding пара «обнаружение + вердикт», единица итогового результата
type Finding struct {
	Detection Detection
	Verdict   DefectVerdict
}
