package notify

import (
	"context"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"thermal-eye/internal/domain/entity"
	"thermal-eye/internal/domain/port"
)

// TelegramNotifier отправляет оповещения о критических перегревах
// в чат дежурной смены.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier создаёт нотификатор для заданного чата.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}

	log.Printf("Authorized on account %s", api.Self.UserName)

	return &TelegramNotifier{
		api:    api,
		chatID: chatID,
	}, nil
}

// NotifyCritical отправляет оповещение о критических находках вместе с отчётом.
func (n *TelegramNotifier) NotifyCritical(ctx context.Context, result *entity.AnalysisResult, report string) error {
	_ = ctx // клиент Telegram API контекст не принимает

	header := fmt.Sprintf("🚨 Критический перегрев! Анализ %s, критических находок: %d",
		result.ID, result.CountByTier(entity.RiskCritical))
	if maxT, ok := result.MaxTemperature(); ok {
		header += fmt.Sprintf(", максимум %.1f°C", maxT)
	}

	msg := tgbotapi.NewMessage(n.chatID, header+"\n\n"+report)
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	return nil
}

// Проверка реализации интерфейса
var _ port.AlertNotifier = (*TelegramNotifier)(nil)
