package api

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	app "thermal-eye/internal/application"
	"thermal-eye/internal/domain/entity"
	"thermal-eye/internal/domain/port"
)

// DefaultMaxUploadBytes предельный размер загружаемого файла.
const DefaultMaxUploadBytes = 50 << 20 // 50 МБ

// allowedExtensions расширения, которые принимает конвейер.
var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tiff": true,
	".bmp":  true,
}

// ServerParams зависимости HTTP-сервера
type ServerParams struct {
	Service        *app.AnalysisService
	Repository     port.AnalysisRepository
	Metrics        *Metrics
	APIToken       string // пустой — аутентификация выключена
	MaxUploadBytes int64
	DefaultAmbient float64
}

// Server HTTP-интерфейс конвейера анализа термограмм.
type Server struct {
	echo           *echo.Echo
	service        *app.AnalysisService
	repo           port.AnalysisRepository
	metrics        *Metrics
	apiToken       string
	maxUploadBytes int64
	defaultAmbient float64
}

// NewServer создаёт сервер и регистрирует маршруты.
func NewServer(p ServerParams) *Server {
	maxUpload := p.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	metrics := p.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	s := &Server{
		echo:           echo.New(),
		service:        p.Service,
		repo:           p.Repository,
		metrics:        metrics,
		apiToken:       p.APIToken,
		maxUploadBytes: maxUpload,
		defaultAmbient: p.DefaultAmbient,
	}

	s.echo.HideBanner = true
	s.echo.Use(middleware.Recover())

	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))

	g := s.echo.Group("/api/v1")
	if s.apiToken != "" {
		g.Use(s.bearerAuth)
	}
	g.POST("/analyze", s.handleAnalyze)
	g.GET("/analyses", s.handleList)
	g.GET("/analyses/:id", s.handleGet)

	return s
}

// Start запускает сервер и блокируется до остановки.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown останавливает сервер, дожидаясь активных запросов.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler возвращает http.Handler, удобно для тестов.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// bearerAuth проверяет токен в заголовке Authorization.
func (s *Server) bearerAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.apiToken)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing bearer token")
		}
		return next(c)
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleAnalyze принимает multipart-файл и прогоняет его через конвейер.
func (s *Server) handleAnalyze(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing multipart field \"file\"")
	}
	if ext := strings.ToLower(filepath.Ext(fileHeader.Filename)); !allowedExtensions[ext] {
		return echo.NewHTTPError(http.StatusBadRequest, "unsupported file extension "+ext)
	}
	if fileHeader.Size > s.maxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file exceeds upload limit")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot open uploaded file")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.maxUploadBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
	}
	if int64(len(data)) > s.maxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file exceeds upload limit")
	}

	ambient := s.defaultAmbient
	if v := c.FormValue("ambient_temperature"); v != "" {
		ambient, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "ambient_temperature must be a number")
		}
	}

	opts := s.service.Defaults()
	if v := c.FormValue("force_fallback_decoder"); v != "" {
		opts.ForceFallbackDecoder, err = strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "force_fallback_decoder must be a boolean")
		}
	}
	if v := c.FormValue("force_fallback_detector"); v != "" {
		opts.ForceFallbackDetector, err = strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "force_fallback_detector must be a boolean")
		}
	}
	if v := c.FormValue("confidence_threshold"); v != "" {
		opts.ConfidenceThreshold, err = strconv.ParseFloat(v, 64)
		if err != nil || opts.ConfidenceThreshold < 0 || opts.ConfidenceThreshold > 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "confidence_threshold must be in [0, 1]")
		}
	}
	if v := c.FormValue("iou_merge_threshold"); v != "" {
		opts.IoUMergeThreshold, err = strconv.ParseFloat(v, 64)
		if err != nil || opts.IoUMergeThreshold < 0 || opts.IoUMergeThreshold > 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "iou_merge_threshold must be in [0, 1]")
		}
	}

	opts.Filename = fileHeader.Filename

	started := time.Now()
	res, analyzeErr := s.service.Analyze(c.Request().Context(), data, ambient, &opts)
	s.metrics.ObserveAnalysis(res, time.Since(started))

	status := http.StatusOK
	if analyzeErr != nil {
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, toAnalysisResponse(res))
}

func (s *Server) handleList(c echo.Context) error {
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}

	results, err := s.repo.List(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list analyses")
	}

	out := make([]analysisResponse, 0, len(results))
	for _, res := range results {
		out = append(out, toAnalysisResponse(res))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleGet(c echo.Context) error {
	res, err := s.repo.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot load analysis")
	}
	if res == nil {
		return echo.NewHTTPError(http.StatusNotFound, "analysis not found")
	}
	return c.JSON(http.StatusOK, toAnalysisResponse(res))
}

// DTO ответов API

type boxResponse struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type findingResponse struct {
	ComponentType string      `json:"component_type"`
	Box           boxResponse `json:"box"`
	Confidence    float64     `json:"confidence"`
	Source        string      `json:"source"`
	MaxTemp       float64     `json:"max_temperature"`
	MeanTemp      float64     `json:"mean_temperature"`
	Rise          float64     `json:"temperature_rise"`
	Tier          string      `json:"risk_tier"`
	Rule          string      `json:"rule"`
	Degenerate    bool        `json:"degenerate,omitempty"`
}

type analysisResponse struct {
	ID             string            `json:"id"`
	Filename       string            `json:"filename,omitempty"`
	SourceHash     string            `json:"source_hash"`
	Status         string            `json:"status"`
	Radiometric    bool              `json:"radiometric"`
	Ambient        float64           `json:"ambient_temperature"`
	Findings       []findingResponse `json:"findings"`
	Warnings       []string          `json:"warnings,omitempty"`
	Error          string            `json:"error,omitempty"`
	CriticalCount  int               `json:"critical_count"`
	PotentialCount int               `json:"potential_count"`
	CreatedAt      time.Time         `json:"created_at"`
}

func toAnalysisResponse(res *entity.AnalysisResult) analysisResponse {
	findings := make([]findingResponse, 0, len(res.Findings))
	for _, f := range res.Findings {
		findings = append(findings, findingResponse{
			ComponentType: string(f.Detection.Type),
			Box: boxResponse{
				X:      f.Detection.Box.X,
				Y:      f.Detection.Box.Y,
				Width:  f.Detection.Box.Width,
				Height: f.Detection.Box.Height,
			},
			Confidence: f.Detection.Confidence,
			Source:     string(f.Detection.Source),
			MaxTemp:    f.Verdict.MaxTemp,
			MeanTemp:   f.Verdict.MeanTemp,
			Rise:       f.Verdict.Rise,
			Tier:       string(f.Verdict.Tier),
			Rule:       f.Verdict.Rule,
			Degenerate: f.Verdict.Degenerate,
		})
	}
	return analysisResponse{
		ID:             res.ID,
		Filename:       res.Filename,
		SourceHash:     res.SourceHash,
		Status:         string(res.Status),
		Radiometric:    res.Radiometric,
		Ambient:        res.Ambient,
		Findings:       findings,
		Warnings:       res.Warnings,
		Error:          res.Error,
		CriticalCount:  res.CountByTier(entity.RiskCritical),
		PotentialCount: res.CountByTier(entity.RiskPotential),
		CreatedAt:      res.CreatedAt,
	}
}
