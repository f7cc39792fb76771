//go:build !gocv
// +build !gocv

package vision

import (
	"context"

	"thermal-eye/internal/domain/entity"
)

// ModelDetector заглушка первичного детектора (без OpenCV).
type ModelDetector struct{}

// NewModelDetector в сборке без тега gocv модель недоступна,
// но целостность весов всё равно проверяется.
func NewModelDetector(modelPath, expectedSHA256 string) (*ModelDetector, error) {
	if err := VerifyModelIntegrity(modelPath, expectedSHA256); err != nil {
		return nil, err
	}
	return &ModelDetector{}, nil
}

// Name возвращает имя детектора.
func (d *ModelDetector) Name() string { return "yolo-primary" }

// Close ничего не освобождает.
func (d *ModelDetector) Close() error { return nil }

// Detect возвращает ошибку, если сборка без тега gocv.
func (d *ModelDetector) Detect(ctx context.Context, imageData []byte) ([]entity.Detection, error) {
	_ = ctx
	_ = imageData
	return nil, ErrModelUnavailable
}
