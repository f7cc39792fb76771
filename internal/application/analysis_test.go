package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"thermal-eye/internal/domain/entity"
	"thermal-eye/internal/infrastructure/storage"
)

type stubExtractor struct {
	matrix *entity.TemperatureMatrix
	err    error
}

func (s stubExtractor) Extract(data []byte) (*entity.TemperatureMatrix, entity.CalibrationParameters, error) {
	if s.err != nil {
		return nil, entity.CalibrationParameters{}, s.err
	}
	return s.matrix, entity.DefaultCalibration(), nil
}

type stubFallback struct {
	matrix *entity.TemperatureMatrix
	err    error
}

func (s stubFallback) Decode(data []byte) (*entity.TemperatureMatrix, error) {
	return s.matrix, s.err
}

type stubDetector struct {
	name  string
	dets  []entity.Detection
	err   error
	calls int
}

func (s *stubDetector) Detect(ctx context.Context, data []byte) ([]entity.Detection, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.dets, nil
}

func (s *stubDetector) Name() string { return s.name }

type stubNotifier struct {
	calls   int
	lastRep string
}

func (s *stubNotifier) NotifyCritical(ctx context.Context, result *entity.AnalysisResult, report string) error {
	s.calls++
	s.lastRep = report
	return nil
}

func hotDetection(temp float64) (entity.Detection, *entity.TemperatureMatrix) {
	m := uniformMatrix(8, 8, temp)
	det := entity.Detection{
		Type:       entity.ComponentJoint,
		Box:        entity.BBox{X: 1, Y: 1, Width: 4, Height: 4},
		Confidence: 0.9,
		Source:     entity.SourceFallback,
	}
	return det, m
}

func TestAnalyzeRadiometricSuccess(t *testing.T) {
	det, matrix := hotDetection(40.0)
	pattern := &stubDetector{name: "pattern", dets: []entity.Detection{det}}
	repo := storage.NewMemoryAnalysisRepository()

	svc := NewAnalysisService(AnalysisServiceParams{
		Extractor:  stubExtractor{matrix: matrix},
		Fallback:   stubFallback{err: errors.New("must not be called")},
		Pattern:    pattern,
		Classifier: NewClassifier(testThresholds()),
		Repository: repo,
	})

	res, err := svc.Analyze(context.Background(), []byte("image-1"), 34.0, nil)
	require.NoError(t, err)
	require.Equal(t, entity.StatusSuccess, res.Status)
	require.True(t, res.Radiometric)
	require.Len(t, res.Findings, 1)
	require.Equal(t, entity.RiskNormal, res.Findings[0].Verdict.Tier)
	require.NotEmpty(t, res.ID)

	saved, err := repo.GetByID(context.Background(), res.ID)
	require.NoError(t, err)
	require.NotNil(t, saved)
}

func TestAnalyzeUndecodableBytesFail(t *testing.T) {
	svc := NewAnalysisService(AnalysisServiceParams{
		Extractor:  stubExtractor{err: errors.New("unsupported format")},
		Fallback:   stubFallback{err: errors.New("undecodable image")},
		Pattern:    &stubDetector{name: "pattern"},
		Classifier: NewClassifier(testThresholds()),
	})

	res, err := svc.Analyze(context.Background(), []byte("garbage"), 34.0, nil)
	require.Error(t, err)
	require.NotNil(t, res)
	require.Equal(t, entity.StatusFailed, res.Status)
	require.NotEmpty(t, res.Error)
	require.Empty(t, res.Findings)
}

func TestAnalyzePaletteFallbackDegrades(t *testing.T) {
	det, matrix := hotDetection(40.0)
	matrix.Radiometric = false

	svc := NewAnalysisService(AnalysisServiceParams{
		Extractor:  stubExtractor{err: errors.New("corrupt metadata")},
		Fallback:   stubFallback{matrix: matrix},
		Pattern:    &stubDetector{name: "pattern", dets: []entity.Detection{det}},
		Classifier: NewClassifier(testThresholds()),
	})

	res, err := svc.Analyze(context.Background(), []byte("palette-only"), 34.0, nil)
	require.NoError(t, err)
	require.Equal(t, entity.StatusDegraded, res.Status)
	require.False(t, res.Radiometric)
	require.Len(t, res.Findings, 1)

	joined := strings.Join(res.Warnings, "\n")
	require.Contains(t, joined, "radiometric extraction failed")
	require.Contains(t, joined, "approximate")
}

func TestAnalyzePrimaryDetectorPreferred(t *testing.T) {
	det, matrix := hotDetection(40.0)
	det.Source = entity.SourcePrimary
	primary := &stubDetector{name: "model", dets: []entity.Detection{det}}
	pattern := &stubDetector{name: "pattern"}

	svc := NewAnalysisService(AnalysisServiceParams{
		Extractor:       stubExtractor{matrix: matrix},
		Fallback:        stubFallback{},
		Primary:         primary,
		PrimaryExpected: true,
		Pattern:         pattern,
		Classifier:      NewClassifier(testThresholds()),
	})

	res, err := svc.Analyze(context.Background(), []byte("image-2"), 34.0, nil)
	require.NoError(t, err)
	require.Equal(t, entity.StatusSuccess, res.Status)
	require.Equal(t, 1, primary.calls)
	require.Equal(t, 0, pattern.calls)
	require.Equal(t, entity.SourcePrimary, res.Findings[0].Detection.Source)
}

func TestAnalyzePrimaryFailureFallsBackToPattern(t *testing.T) {
	det, matrix := hotDetection(40.0)
	primary := &stubDetector{name: "model", err: errors.New("model is not loaded")}
	pattern := &stubDetector{name: "pattern", dets: []entity.Detection{det}}

	svc := NewAnalysisService(AnalysisServiceParams{
		Extractor:       stubExtractor{matrix: matrix},
		Fallback:        stubFallback{},
		Primary:         primary,
		PrimaryExpected: true,
		Pattern:         pattern,
		Classifier:      NewClassifier(testThresholds()),
	})

	res, err := svc.Analyze(context.Background(), []byte("image-3"), 34.0, nil)
	require.NoError(t, err)
	require.Equal(t, entity.StatusDegraded, res.Status)
	require.Equal(t, 1, primary.calls)
	require.Equal(t, 1, pattern.calls)
	require.Len(t, res.Findings, 1)
	require.Contains(t, strings.Join(res.Warnings, "\n"), "primary detector failed")
}

func TestAnalyzeForcedFallbackDetectorDoesNotDegrade(t *testing.T) {
	det, matrix := hotDetection(40.0)
	primary := &stubDetector{name: "model", dets: []entity.Detection{det}}
	pattern := &stubDetector{name: "pattern", dets: []entity.Detection{det}}

	svc := NewAnalysisService(AnalysisServiceParams{
		Extractor:       stubExtractor{matrix: matrix},
		Fallback:        stubFallback{},
		Primary:         primary,
		PrimaryExpected: true,
		Pattern:         pattern,
		Classifier:      NewClassifier(testThresholds()),
	})

	opts := DefaultOptions()
	opts.ForceFallbackDetector = true
	res, err := svc.Analyze(context.Background(), []byte("image-4"), 34.0, &opts)
	require.NoError(t, err)
	require.Equal(t, entity.StatusSuccess, res.Status)
	require.Equal(t, 0, primary.calls)
	require.Equal(t, 1, pattern.calls)
}

func TestAnalyzeConfidenceFilterAndMerge(t *testing.T) {
	matrix := uniformMatrix(16, 16, 40.0)
	box := entity.BBox{X: 2, Y: 2, Width: 6, Height: 6}
	pattern := &stubDetector{name: "pattern", dets: []entity.Detection{
		{Type: entity.ComponentJoint, Box: box, Confidence: 0.8, Source: entity.SourceFallback},
		{Type: entity.ComponentJoint, Box: box, Confidence: 0.6, Source: entity.SourceFallback}, // дубль, сольётся
		{Type: entity.ComponentNutBolt, Box: entity.BBox{X: 10, Y: 10, Width: 3, Height: 3}, Confidence: 0.1, Source: entity.SourceFallback},
	}}

	svc := NewAnalysisService(AnalysisServiceParams{
		Extractor:  stubExtractor{matrix: matrix},
		Fallback:   stubFallback{},
		Pattern:    pattern,
		Classifier: NewClassifier(testThresholds()),
	})

	res, err := svc.Analyze(context.Background(), []byte("image-5"), 34.0, nil)
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	require.InDelta(t, 0.8, res.Findings[0].Detection.Confidence, 1e-9)
}

func TestAnalyzeDeduplicatesByHash(t *testing.T) {
	_, matrix := hotDetection(40.0)
	repo := storage.NewMemoryAnalysisRepository()

	svc := NewAnalysisService(AnalysisServiceParams{
		Extractor:  stubExtractor{matrix: matrix},
		Fallback:   stubFallback{},
		Pattern:    &stubDetector{name: "pattern"},
		Classifier: NewClassifier(testThresholds()),
		Repository: repo,
	})

	first, err := svc.Analyze(context.Background(), []byte("same-bytes"), 34.0, nil)
	require.NoError(t, err)

	second, err := svc.Analyze(context.Background(), []byte("same-bytes"), 34.0, nil)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	all, err := repo.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestAnalyzeCancelledBetweenStages(t *testing.T) {
	det, matrix := hotDetection(40.0)
	pattern := &stubDetector{name: "pattern", dets: []entity.Detection{det}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewAnalysisService(AnalysisServiceParams{
		Extractor:  stubExtractor{matrix: matrix},
		Fallback:   stubFallback{},
		Pattern:    pattern,
		Classifier: NewClassifier(testThresholds()),
	})

	res, err := svc.Analyze(ctx, []byte("image-6"), 34.0, nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, entity.StatusDegraded, res.Status)
	require.Equal(t, 0, pattern.calls)
	require.Empty(t, res.Findings)
	require.Contains(t, strings.Join(res.Warnings, "\n"), "cancelled before detecting")
}

func TestAnalyzeCancelledRunDoesNotPoisonDedup(t *testing.T) {
	det, matrix := hotDetection(120.0) // критический перегрев
	pattern := &stubDetector{name: "pattern", dets: []entity.Detection{det}}
	repo := storage.NewMemoryAnalysisRepository()

	svc := NewAnalysisService(AnalysisServiceParams{
		Extractor:  stubExtractor{matrix: matrix},
		Fallback:   stubFallback{},
		Pattern:    pattern,
		Classifier: NewClassifier(testThresholds()),
		Repository: repo,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	truncated, err := svc.Analyze(ctx, []byte("same-image"), 34.0, nil)
	require.NoError(t, err)
	require.Equal(t, entity.StatusDegraded, truncated.Status)
	require.Empty(t, truncated.Findings)

	// Усечённый прогон не сохраняется: повторная загрузка анализируется заново.
	all, err := repo.List(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, all)

	fresh, err := svc.Analyze(context.Background(), []byte("same-image"), 34.0, nil)
	require.NoError(t, err)
	require.NotEqual(t, truncated.ID, fresh.ID)
	require.Equal(t, entity.StatusSuccess, fresh.Status)
	require.True(t, fresh.HasCritical())
}

func TestAnalysisServiceDefaults(t *testing.T) {
	_, matrix := hotDetection(40.0)
	params := AnalysisServiceParams{
		Extractor:  stubExtractor{matrix: matrix},
		Fallback:   stubFallback{},
		Pattern:    &stubDetector{name: "pattern"},
		Classifier: NewClassifier(testThresholds()),
	}

	svc := NewAnalysisService(params)
	require.Equal(t, DefaultOptions(), svc.Defaults())

	// Явно заданный нулевой порог не подменяется типовым.
	params.Defaults = &Options{ConfidenceThreshold: 0, IoUMergeThreshold: 0}
	svc = NewAnalysisService(params)
	require.Zero(t, svc.Defaults().ConfidenceThreshold)
	require.Zero(t, svc.Defaults().IoUMergeThreshold)
}

type blockingDetector struct{}

func (d *blockingDetector) Detect(ctx context.Context, data []byte) ([]entity.Detection, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (d *blockingDetector) Name() string { return "blocking" }

func TestAnalyzePrimaryTimeoutSharesOneDeadline(t *testing.T) {
	det, matrix := hotDetection(40.0)
	pattern := &stubDetector{name: "pattern", dets: []entity.Detection{det}}

	svc := NewAnalysisService(AnalysisServiceParams{
		Extractor:       stubExtractor{matrix: matrix},
		Fallback:        stubFallback{},
		Primary:         &blockingDetector{},
		PrimaryExpected: true,
		Pattern:         pattern,
		Classifier:      NewClassifier(testThresholds()),
		ModelWorkers:    1,
		ModelTimeout:    30 * time.Millisecond,
	})

	started := time.Now()
	res, err := svc.Analyze(context.Background(), []byte("image-8"), 34.0, nil)
	elapsed := time.Since(started)

	require.NoError(t, err)
	require.Equal(t, entity.StatusDegraded, res.Status)
	require.Equal(t, 1, pattern.calls)
	require.Len(t, res.Findings, 1)
	// Ожидание слота и прогон модели укладываются в один общий дедлайн.
	require.Less(t, elapsed, time.Second)
}

func TestAnalyzeNotifiesOnCritical(t *testing.T) {
	det, matrix := hotDetection(120.0) // превышение 86°C над средой
	notifier := &stubNotifier{}

	svc := NewAnalysisService(AnalysisServiceParams{
		Extractor:  stubExtractor{matrix: matrix},
		Fallback:   stubFallback{},
		Pattern:    &stubDetector{name: "pattern", dets: []entity.Detection{det}},
		Classifier: NewClassifier(testThresholds()),
		Notifier:   notifier,
	})

	res, err := svc.Analyze(context.Background(), []byte("image-7"), 34.0, nil)
	require.NoError(t, err)
	require.True(t, res.HasCritical())
	require.Equal(t, 1, notifier.calls)
	require.Contains(t, notifier.lastRep, "КРИТИЧЕСКИЙ")
}
