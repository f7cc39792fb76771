package port

import (
	"context"

	"thermal-eye/internal/domain/entity"
)

// AlertNotifier интерфейс оповещения о критических находках
type AlertNotifier interface {
	// NotifyCritical отправляет оповещение с текстом отчёта
	NotifyCritical(ctx context.Context, result *entity.AnalysisResult, report string) error
}
