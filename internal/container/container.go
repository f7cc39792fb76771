package container

import (
	"fmt"
	"log"

	"thermal-eye/config"
	app "thermal-eye/internal/application"
	"thermal-eye/internal/domain/entity"
	"thermal-eye/internal/domain/port"
	"thermal-eye/internal/infrastructure/flir"
	"thermal-eye/internal/infrastructure/notify"
	"thermal-eye/internal/infrastructure/storage"
	"thermal-eye/internal/infrastructure/vision"
)

// Container собранный граф зависимостей приложения
type Container struct {
	AnalysisService *app.AnalysisService
	Repository      port.AnalysisRepository
	Config          *config.Config

	closers []func() error
}

// New строит граф зависимостей из конфигурации.
func New(cfg *config.Config) (*Container, error) {
	c := &Container{Config: cfg}

	extractor := flir.NewExtractor()

	points := flir.DefaultIronPalette(cfg.Analysis.PaletteMinTemp, cfg.Analysis.PaletteMaxTemp)
	if len(cfg.Analysis.PalettePoints) > 0 {
		points = make([]flir.ControlPoint, len(cfg.Analysis.PalettePoints))
		for i, p := range cfg.Analysis.PalettePoints {
			points[i] = flir.ControlPoint{R: p.R, G: p.G, B: p.B, Temp: p.Temp}
		}
	}
	palette, err := flir.NewPaletteDecoder(points, cfg.Analysis.PaletteMinTemp, cfg.Analysis.PaletteMaxTemp)
	if err != nil {
		return nil, fmt.Errorf("build palette decoder: %w", err)
	}

	// Обученная модель опциональна: без неё работает запасной детектор.
	var primary port.ComponentDetector
	primaryExpected := cfg.ModelPath != ""
	if primaryExpected {
		model, err := vision.NewModelDetector(cfg.ModelPath, cfg.ModelSHA256)
		if err != nil {
			log.Printf("Model detector unavailable: %v", err)
		} else {
			primary = model
			c.closers = append(c.closers, model.Close)
		}
	}

	repo, err := c.buildRepository(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	c.Repository = repo

	var notifier port.AlertNotifier
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := notify.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			return nil, fmt.Errorf("build telegram notifier: %w", err)
		}
		notifier = tg
	}

	classifier := app.NewClassifier(thresholdTable(cfg.Analysis))

	c.AnalysisService = app.NewAnalysisService(app.AnalysisServiceParams{
		Extractor:       extractor,
		Fallback:        palette,
		Primary:         primary,
		PrimaryExpected: primaryExpected,
		Pattern:         vision.NewPatternDetector(),
		Classifier:      classifier,
		Repository:      repo,
		Notifier:        notifier,
		ModelWorkers:    cfg.Analysis.ModelWorkers,
		ModelTimeout:    cfg.Analysis.ModelTimeout,
		Defaults: &app.Options{
			ConfidenceThreshold: cfg.Analysis.ConfidenceThreshold,
			IoUMergeThreshold:   cfg.Analysis.IoUMergeThreshold,
		},
	})

	return c, nil
}

// Close освобождает ресурсы в обратном порядке создания.
func (c *Container) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Container) buildRepository(path string) (port.AnalysisRepository, error) {
	if path == "" {
		return storage.NewMemoryAnalysisRepository(), nil
	}
	repo, err := storage.NewSQLiteAnalysisRepository(path)
	if err != nil {
		return nil, fmt.Errorf("open analysis database: %w", err)
	}
	c.closers = append(c.closers, repo.Close)
	return repo, nil
}

// thresholdTable переводит конфигурацию порогов в доменную таблицу.
func thresholdTable(cfg config.AnalysisConfig) entity.ThresholdTable {
	table := entity.ThresholdTable{
		Default: entity.RiskThresholds{
			Potential: cfg.DefaultThresholds.Potential,
			Critical:  cfg.DefaultThresholds.Critical,
		},
	}
	if len(cfg.PerTypeThresholds) > 0 {
		table.PerType = make(map[entity.ComponentType]entity.RiskThresholds, len(cfg.PerTypeThresholds))
		for name, pair := range cfg.PerTypeThresholds {
			table.PerType[entity.ComponentType(name)] = entity.RiskThresholds{
				Potential: pair.Potential,
				Critical:  pair.Critical,
			}
		}
	}
	return table
}
