package entity

import "time"

// Status итоговый статус анализа
type Status string

const (
	StatusSuccess  Status = "success"
	StatusDegraded Status = "degraded" // сработал хотя бы один запасной путь
	StatusFailed   Status = "failed"   // изображение не удалось прочитать вовсе
)

// RunStage этап конвейера анализа
type RunStage string

const (
	StageReceived    RunStage = "received"
	StageExtracting  RunStage = "extracting"
	StageDetecting   RunStage = "detecting"
	StageClassifying RunStage = "classifying"
	StageAssembled   RunStage = "assembled"
	StageFailed      RunStage = "failed"
)

// StageTiming длительность одного этапа конвейера
type StageTiming struct {
	Stage    RunStage
	Duration time.Duration
}

// AnalysisResult итог анализа одного изображения.
// Неизменяем после сборки оркестратором.
type AnalysisResult struct {
	ID          string        // uuid записи
	Filename    string        // имя загруженного файла
	SourceHash  string        // sha256 байтов изображения, для дедупликации
	Status      Status
	Radiometric bool          // температуры абсолютные или оценочные
	Ambient     float64       // использованная температура окружающей среды, °C
	Findings    []Finding     // упорядоченный список находок
	Warnings    []string      // нефатальные замечания по ходу анализа
	Timings     []StageTiming // длительности этапов
	Error       string        // заполнено только при StatusFailed
	CreatedAt   time.Time
}

// AddWarning добавляет нефатальное замечание.
func (r *AnalysisResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Degrade понижает статус до Degraded. Из Failed статус не поднимается.
func (r *AnalysisResult) Degrade() {
	if r.Status == StatusSuccess {
		r.Status = StatusDegraded
	}
}

// CountByTier возвращает число находок заданного уровня риска.
func (r *AnalysisResult) CountByTier(tier RiskTier) int {
	n := 0
	for _, f := range r.Findings {
		if f.Verdict.Tier == tier {
			n++
		}
	}
	return n
}

// HasCritical сообщает, есть ли хотя бы одна критическая находка.
func (r *AnalysisResult) HasCritical() bool {
	return r.CountByTier(RiskCritical) > 0
}

// MaxTemperature возвращает максимум по всем находкам, ok=false если находок нет.
func (r *AnalysisResult) MaxTemperature() (float64, bool) {
	if len(r.Findings) == 0 {
		return 0, false
	}
	maxT := r.Findings[0].Verdict.MaxTemp
	for _, f := range r.Findings[1:] {
		if f.Verdict.MaxTemp > maxT {
			maxT = f.Verdict.MaxTemp
		}
	}
	return maxT, true
}
