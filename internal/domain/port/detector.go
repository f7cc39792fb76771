package port

import (
	"context"

	"thermal-eye/internal/domain/entity"
)

// ComponentDetector интерфейс детектора компонентов.
// Две реализации: обученная модель и детерминированный запасной детектор.
type ComponentDetector interface {
	// Detect находит компоненты на изображении и возвращает список областей
	Detect(ctx context.Context, imageData []byte) ([]entity.Detection, error)

	// Name имя детектора для предупреждений и логов
	Name() string
}
