package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config конфигурация приложения: окружение + файл настроек анализа
type Config struct {
	HTTPAddr       string // адрес HTTP-сервера
	DatabasePath   string // путь к SQLite, пусто — хранить в памяти
	APIToken       string // bearer-токен API, пусто — без аутентификации
	TelegramToken  string
	TelegramChatID int64
	ModelPath      string // путь к весам модели, пусто — только запасной детектор
	ModelSHA256    string // ожидаемый хэш весов, пусто — проверка выключена

	Analysis AnalysisConfig
}

// ThresholdPair пороги превышения температуры для одного типа компонента (°C)
type ThresholdPair struct {
	Potential float64
	Critical  float64
}

// PalettePoint опорная точка палитры: цвет и температура (°C)
type PalettePoint struct {
	R    uint8
	G    uint8
	B    uint8
	Temp float64
}

// AnalysisConfig настройки конвейера анализа
type AnalysisConfig struct {
	DefaultAmbient      float64 // температура окружающей среды по умолчанию, °C
	ConfidenceThreshold float64
	IoUMergeThreshold   float64
	ModelWorkers        int
	ModelTimeout        time.Duration
	PaletteMinTemp      float64        // нижняя граница шкалы палитры, °C
	PaletteMaxTemp      float64        // верхняя граница шкалы палитры, °C
	PalettePoints       []PalettePoint // пусто — встроенная палитра iron

	DefaultThresholds ThresholdPair
	PerTypeThresholds map[string]ThresholdPair
}

// Load читает конфигурацию из .env/окружения и файла настроек анализа.
func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		DatabasePath:  os.Getenv("DATABASE_PATH"),
		APIToken:      os.Getenv("API_TOKEN"),
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
		ModelPath:     os.Getenv("MODEL_PATH"),
		ModelSHA256:   strings.ToLower(os.Getenv("MODEL_SHA256")),
	}

	if cfg.ModelSHA256 != "" {
		raw, err := hex.DecodeString(cfg.ModelSHA256)
		if err != nil || len(raw) != sha256.Size {
			return nil, fmt.Errorf("MODEL_SHA256 must be %d hex characters", sha256.Size*2)
		}
	}

	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	analysis, err := loadAnalysis(os.Getenv("ANALYSIS_CONFIG"))
	if err != nil {
		return nil, err
	}
	cfg.Analysis = analysis

	return cfg, nil
}

// loadAnalysis читает файл настроек анализа; пустой путь даёт значения по умолчанию.
func loadAnalysis(path string) (AnalysisConfig, error) {
	v := viper.New()
	v.SetDefault("ambient_default", 34.0)
	v.SetDefault("confidence_threshold", 0.3)
	v.SetDefault("iou_merge_threshold", 0.5)
	v.SetDefault("model_workers", 2)
	v.SetDefault("model_timeout", "10s")
	v.SetDefault("palette.min_temp", 20.0)
	v.SetDefault("palette.max_temp", 150.0)
	v.SetDefault("thresholds.default.potential", 20.0)
	v.SetDefault("thresholds.default.critical", 40.0)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return AnalysisConfig{}, fmt.Errorf("read analysis config %s: %w", path, err)
		}
	}

	cfg := AnalysisConfig{
		DefaultAmbient:      v.GetFloat64("ambient_default"),
		ConfidenceThreshold: v.GetFloat64("confidence_threshold"),
		IoUMergeThreshold:   v.GetFloat64("iou_merge_threshold"),
		ModelWorkers:        v.GetInt("model_workers"),
		ModelTimeout:        v.GetDuration("model_timeout"),
		PaletteMinTemp:      v.GetFloat64("palette.min_temp"),
		PaletteMaxTemp:      v.GetFloat64("palette.max_temp"),
		DefaultThresholds: ThresholdPair{
			Potential: v.GetFloat64("thresholds.default.potential"),
			Critical:  v.GetFloat64("thresholds.default.critical"),
		},
	}

	if v.IsSet("palette.points") {
		if err := v.UnmarshalKey("palette.points", &cfg.PalettePoints); err != nil {
			return AnalysisConfig{}, fmt.Errorf("parse palette points: %w", err)
		}
	}

	perType := v.GetStringMap("thresholds.per_type")
	if len(perType) > 0 {
		cfg.PerTypeThresholds = make(map[string]ThresholdPair, len(perType))
		for name := range perType {
			cfg.PerTypeThresholds[name] = ThresholdPair{
				Potential: v.GetFloat64("thresholds.per_type." + name + ".potential"),
				Critical:  v.GetFloat64("thresholds.per_type." + name + ".critical"),
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return AnalysisConfig{}, err
	}
	return cfg, nil
}

func (c AnalysisConfig) validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold %.2f is out of [0, 1]", c.ConfidenceThreshold)
	}
	if c.IoUMergeThreshold < 0 || c.IoUMergeThreshold > 1 {
		return fmt.Errorf("iou_merge_threshold %.2f is out of [0, 1]", c.IoUMergeThreshold)
	}
	if c.PaletteMinTemp >= c.PaletteMaxTemp {
		return fmt.Errorf("palette scale is empty: min %.1f >= max %.1f", c.PaletteMinTemp, c.PaletteMaxTemp)
	}
	if n := len(c.PalettePoints); n == 1 {
		return fmt.Errorf("palette needs at least two control points, got %d", n)
	}
	if err := validateThresholds("default", c.DefaultThresholds); err != nil {
		return err
	}
	for name, pair := range c.PerTypeThresholds {
		if err := validateThresholds(name, pair); err != nil {
			return err
		}
	}
	return nil
}

func validateThresholds(name string, pair ThresholdPair) error {
	if pair.Potential <= 0 || pair.Critical <= 0 {
		return fmt.Errorf("thresholds for %s must be positive", name)
	}
	if pair.Potential >= pair.Critical {
		return fmt.Errorf("thresholds for %s: potential %.1f >= critical %.1f", name, pair.Potential, pair.Critical)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
