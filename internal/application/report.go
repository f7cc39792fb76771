package app

import (
	"fmt"
	"strings"

	"thermal-eye/internal/domain/entity"
)

// BuildReport собирает текстовый отчёт об осмотре для инженера.
// Используется CLI и оповещениями о критических находках.
func BuildReport(res *entity.AnalysisResult) string {
	var b strings.Builder

	b.WriteString("ОТЧЁТ ТЕПЛОВИЗИОННОГО ОСМОТРА\n")
	b.WriteString(strings.Repeat("=", 40) + "\n")
	fmt.Fprintf(&b, "Анализ: %s\n", res.ID)
	if res.Filename != "" {
		fmt.Fprintf(&b, "Файл: %s\n", res.Filename)
	}
	fmt.Fprintf(&b, "Дата: %s\n", res.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Статус: %s\n\n", res.Status)

	fmt.Fprintf(&b, "Температура окружающей среды: %.1f°C\n", res.Ambient)
	if maxT, ok := res.MaxTemperature(); ok {
		fmt.Fprintf(&b, "Максимальная температура: %.1f°C\n", maxT)
	}
	if res.Radiometric {
		b.WriteString("Калибровка: радиометрические данные FLIR\n\n")
	} else {
		b.WriteString("⚠️ Температуры оценочные: получены по цветам палитры\n\n")
	}

	critical := res.CountByTier(entity.RiskCritical)
	potential := res.CountByTier(entity.RiskPotential)
	fmt.Fprintf(&b, "Компонентов найдено: %d\n", len(res.Findings))
	fmt.Fprintf(&b, "Критических перегревов: %d\n", critical)
	fmt.Fprintf(&b, "Потенциальных перегревов: %d\n\n", potential)

	if len(res.Findings) > 0 {
		b.WriteString("НАХОДКИ\n")
		b.WriteString(strings.Repeat("-", 40) + "\n")
		for i, f := range res.Findings {
			fmt.Fprintf(&b, "%d. %s [%s]\n", i+1, componentLabel(f.Detection.Type), tierLabel(f.Verdict.Tier))
			fmt.Fprintf(&b, "   Область: (%d,%d) %dx%d, уверенность %.2f\n",
				f.Detection.Box.X, f.Detection.Box.Y, f.Detection.Box.Width, f.Detection.Box.Height,
				f.Detection.Confidence)
			if !f.Verdict.Degenerate {
				fmt.Fprintf(&b, "   Максимум %.1f°C, превышение %.1f°C\n", f.Verdict.MaxTemp, f.Verdict.Rise)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("РЕКОМЕНДАЦИИ\n")
	b.WriteString(strings.Repeat("-", 40) + "\n")
	switch {
	case critical > 0:
		b.WriteString("🚨 Требуется немедленный осмотр: выезд бригады в течение 24 часов.\n")
	case potential > 0:
		b.WriteString("⚠️ Рекомендован плановый осмотр в течение 7 дней, следить за динамикой.\n")
	default:
		b.WriteString("✅ Существенных тепловых аномалий не обнаружено.\n")
	}
	if !res.Radiometric && critical > 0 {
		b.WriteString("Температуры оценочные — перед выездом подтвердить радиометрическим снимком.\n")
	}

	return b.String()
}

func componentLabel(ct entity.ComponentType) string {
	switch ct {
	case entity.ComponentNutBolt:
		return "Болтовое соединение"
	case entity.ComponentJoint:
		return "Соединительный зажим"
	case entity.ComponentInsulator:
		return "Изолятор"
	case entity.ComponentConductor:
		return "Провод"
	default:
		return "Неопознанный компонент"
	}
}

func tierLabel(tier entity.RiskTier) string {
	switch tier {
	case entity.RiskCritical:
		return "КРИТИЧЕСКИЙ"
	case entity.RiskPotential:
		return "ПОТЕНЦИАЛЬНЫЙ"
	default:
		return "НОРМА"
	}
}
