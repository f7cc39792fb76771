package port

import (
	"context"

	"thermal-eye/internal/domain/entity"
)

// AnalysisRepository интерфейс хранилища результатов анализа
type AnalysisRepository interface {
	// Save сохраняет результат вместе с находками
	Save(ctx context.Context, result *entity.AnalysisResult) error

	// GetByID возвращает результат по идентификатору
	GetByID(ctx context.Context, id string) (*entity.AnalysisResult, error)

	// FindByHash ищет ранее посчитанный результат по хэшу исходных байтов.
	// Возвращает nil без ошибки, если такого нет.
	FindByHash(ctx context.Context, hash string) (*entity.AnalysisResult, error)

	// List возвращает последние результаты, новые первыми
	List(ctx context.Context, limit int) ([]*entity.AnalysisResult, error)
}
