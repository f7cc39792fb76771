package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"thermal-eye/internal/domain/entity"
	"thermal-eye/internal/domain/port"
)

// Options настройки одного запуска анализа
type Options struct {
	Filename              string  // имя исходного файла, для отчёта и хранилища
	ForceFallbackDecoder  bool    // пропустить радиометрический экстрактор
	ForceFallbackDetector bool    // пропустить обученную модель
	ConfidenceThreshold   float64 // минимальная уверенность обнаружения
	IoUMergeThreshold     float64 // порог IoU для слияния областей
}

// DefaultOptions значения настроек по умолчанию.
func DefaultOptions() Options {
	return Options{
		ConfidenceThreshold: 0.3,
		IoUMergeThreshold:   0.5,
	}
}

// AnalysisServiceParams зависимости сервиса анализа
type AnalysisServiceParams struct {
	Extractor       port.RadiometricExtractor
	Fallback        port.FallbackDecoder
	Primary         port.ComponentDetector // nil — модель не загружена
	PrimaryExpected bool                   // модель была сконфигурирована
	Pattern         port.ComponentDetector
	Classifier      *Classifier
	Repository      port.AnalysisRepository // nil допустим
	Notifier        port.AlertNotifier      // nil допустим
	ModelWorkers    int
	ModelTimeout    time.Duration
	Defaults        *Options // nil — типовые настройки
}

// AnalysisService оркестратор конвейера анализа термограммы.
// Этапы строго последовательны; каждый сбой, кроме нечитаемых байтов на
// самом первом шаге, поглощается запасным путём с предупреждением.
type AnalysisService struct {
	extractor       port.RadiometricExtractor
	fallback        port.FallbackDecoder
	primary         port.ComponentDetector
	primaryExpected bool
	pattern         port.ComponentDetector
	classifier      *Classifier
	repo            port.AnalysisRepository
	notifier        port.AlertNotifier
	modelSlots      chan struct{}
	modelTimeout    time.Duration
	defaults        Options
}

// NewAnalysisService создаёт оркестратор.
func NewAnalysisService(p AnalysisServiceParams) *AnalysisService {
	workers := p.ModelWorkers
	if workers <= 0 {
		workers = 2
	}
	timeout := p.ModelTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	defaults := DefaultOptions()
	if p.Defaults != nil {
		defaults = *p.Defaults
	}
	return &AnalysisService{
		extractor:       p.Extractor,
		fallback:        p.Fallback,
		primary:         p.Primary,
		primaryExpected: p.PrimaryExpected,
		pattern:         p.Pattern,
		classifier:      p.Classifier,
		repo:            p.Repository,
		notifier:        p.Notifier,
		modelSlots:      make(chan struct{}, workers),
		modelTimeout:    timeout,
		defaults:        defaults,
	}
}

// Defaults возвращает настройки анализа по умолчанию.
func (s *AnalysisService) Defaults() Options {
	return s.defaults
}

// Analyze прогоняет изображение через конвейер и собирает итоговый результат.
// Ошибка возвращается только когда байты изображения не декодируются вовсе;
// во всех остальных случаях результат корректен, хотя возможно деградирован.
func (s *AnalysisService) Analyze(ctx context.Context, imageData []byte, ambient float64, opts *Options) (*entity.AnalysisResult, error) {
	effective := s.defaults
	if opts != nil {
		effective = *opts
	}

	hash := sha256.Sum256(imageData)
	hashHex := hex.EncodeToString(hash[:])

	// Дедупликация: тот же файл не анализируем повторно.
	if s.repo != nil {
		if prev, err := s.repo.FindByHash(ctx, hashHex); err == nil && prev != nil {
			return prev, nil
		}
	}

	res := &entity.AnalysisResult{
		ID:         uuid.NewString(),
		Filename:   effective.Filename,
		SourceHash: hashHex,
		Status:     entity.StatusSuccess,
		Ambient:    ambient,
		CreatedAt:  time.Now().UTC(),
	}

	// Этап извлечения температур.
	started := time.Now()
	matrix := s.extractTemperatures(res, imageData, effective)
	res.Timings = append(res.Timings, entity.StageTiming{Stage: entity.StageExtracting, Duration: time.Since(started)})
	if matrix == nil {
		res.Status = entity.StatusFailed
		res.Error = "image bytes cannot be decoded"
		res.Timings = append(res.Timings, entity.StageTiming{Stage: entity.StageFailed})
		return res, errors.New("image bytes cannot be decoded")
	}
	res.Radiometric = matrix.Radiometric

	if s.cancelled(ctx, res, entity.StageDetecting) {
		return res, nil
	}

	// Этап поиска компонентов.
	started = time.Now()
	dets := s.detectComponents(ctx, res, imageData, effective)
	res.Timings = append(res.Timings, entity.StageTiming{Stage: entity.StageDetecting, Duration: time.Since(started)})

	if s.cancelled(ctx, res, entity.StageClassifying) {
		return res, nil
	}

	// Этап классификации рисков.
	started = time.Now()
	for _, det := range dets {
		verdict := s.classifier.Classify(det, matrix, ambient)
		if verdict.Degenerate {
			res.AddWarning(fmt.Sprintf("degenerate bounding box for %s at (%d,%d)", det.Type, det.Box.X, det.Box.Y))
		}
		res.Findings = append(res.Findings, entity.Finding{Detection: det, Verdict: verdict})
	}
	res.Timings = append(res.Timings, entity.StageTiming{Stage: entity.StageClassifying, Duration: time.Since(started)})

	return s.assemble(ctx, res)
}

// extractTemperatures строит температурную матрицу: сперва радиометрический
// блок, затем палитровый запасной путь. nil означает нечитаемые байты.
func (s *AnalysisService) extractTemperatures(res *entity.AnalysisResult, imageData []byte, opts Options) *entity.TemperatureMatrix {
	if !opts.ForceFallbackDecoder {
		matrix, _, err := s.extractor.Extract(imageData)
		if err == nil {
			return matrix
		}
		res.AddWarning(fmt.Sprintf("radiometric extraction failed: %v; using palette fallback", err))
	} else {
		res.AddWarning("radiometric extraction skipped by request; using palette fallback")
	}
	res.Degrade()

	matrix, err := s.fallback.Decode(imageData)
	if err != nil {
		return nil
	}
	res.AddWarning("temperatures are approximate: estimated from palette colors, not radiometric data")
	return matrix
}

// detectComponents выбирает детектор, фильтрует по уверенности и сливает
// пересекающиеся области. Любой сбой детектора поглощается.
func (s *AnalysisService) detectComponents(ctx context.Context, res *entity.AnalysisResult, imageData []byte, opts Options) []entity.Detection {
	var dets []entity.Detection

	usePrimary := s.primary != nil && !opts.ForceFallbackDetector
	switch {
	case usePrimary:
		primaryDets, err := s.detectWithModel(ctx, imageData)
		if err == nil {
			dets = primaryDets
			break
		}
		res.AddWarning(fmt.Sprintf("primary detector failed: %v; using pattern fallback", err))
		res.Degrade()
		dets = s.detectWithPattern(ctx, res, imageData)
	case opts.ForceFallbackDetector:
		res.AddWarning("primary detector skipped by request; using pattern fallback")
		dets = s.detectWithPattern(ctx, res, imageData)
	default:
		if s.primaryExpected {
			res.AddWarning("primary detection model is not loaded; using pattern fallback")
			res.Degrade()
		}
		dets = s.detectWithPattern(ctx, res, imageData)
	}

	filtered := dets[:0]
	for _, d := range dets {
		if d.Confidence >= opts.ConfidenceThreshold {
			filtered = append(filtered, d)
		}
	}
	merged := entity.MergeDetections(filtered, opts.IoUMergeThreshold)
	if len(merged) == 0 {
		res.AddWarning("no components detected")
	}
	return merged
}

// detectWithModel запускает обученную модель через ограниченный пул слотов.
// Ожидание слота и сам прогон делят один дедлайн; после него вызывающий
// уходит на запасной детектор.
func (s *AnalysisService) detectWithModel(ctx context.Context, imageData []byte) ([]entity.Detection, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.modelTimeout)
	defer cancel()

	select {
	case s.modelSlots <- struct{}{}:
		defer func() { <-s.modelSlots }()
	case <-runCtx.Done():
		return nil, fmt.Errorf("timed out waiting for a model worker slot: %w", runCtx.Err())
	}

	type detectOut struct {
		dets []entity.Detection
		err  error
	}
	out := make(chan detectOut, 1)
	go func() {
		dets, err := s.primary.Detect(runCtx, imageData)
		out <- detectOut{dets: dets, err: err}
	}()

	select {
	case r := <-out:
		return r.dets, r.err
	case <-runCtx.Done():
		return nil, fmt.Errorf("primary detector timed out: %w", runCtx.Err())
	}
}

// detectWithPattern запускает запасной детектор; его сбой тоже поглощается.
func (s *AnalysisService) detectWithPattern(ctx context.Context, res *entity.AnalysisResult, imageData []byte) []entity.Detection {
	dets, err := s.pattern.Detect(ctx, imageData)
	if err != nil {
		res.AddWarning(fmt.Sprintf("pattern fallback failed: %v", err))
		return nil
	}
	return dets
}

// cancelled проверяет отмену между этапами: начатый этап доводится до конца,
// следующий после отмены уже не стартует. Усечённый результат деградирует и
// не сохраняется, иначе дедупликация навсегда закрепит неполный прогон.
func (s *AnalysisService) cancelled(ctx context.Context, res *entity.AnalysisResult, next entity.RunStage) bool {
	if ctx.Err() == nil {
		return false
	}
	res.AddWarning(fmt.Sprintf("analysis cancelled before %s stage", next))
	res.Degrade()
	return true
}

// assemble завершает результат: сохраняет его и рассылает оповещения.
// Сбои хранилища и оповещений нефатальны; отмена вызова на сохранение
// уже не влияет.
func (s *AnalysisService) assemble(ctx context.Context, res *entity.AnalysisResult) (*entity.AnalysisResult, error) {
	ctx = context.WithoutCancel(ctx)
	if s.repo != nil {
		if err := s.repo.Save(ctx, res); err != nil {
			log.Printf("Failed to persist analysis %s: %v", res.ID, err)
		}
	}
	if s.notifier != nil && res.HasCritical() {
		if err := s.notifier.NotifyCritical(ctx, res, BuildReport(res)); err != nil {
			log.Printf("Failed to send critical alert for %s: %v", res.ID, err)
		}
	}
	return res, nil
}
