package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"thermal-eye/internal/domain/entity"
	"thermal-eye/internal/domain/port"
)

// SQLiteAnalysisRepository хранилище результатов анализа поверх SQLite.
// Драйвер чистый Go, cgo не требуется.
type SQLiteAnalysisRepository struct {
	db *sql.DB
}

// NewSQLiteAnalysisRepository открывает (или создаёт) базу и применяет схему.
func NewSQLiteAnalysisRepository(path string) (*SQLiteAnalysisRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	repo := &SQLiteAnalysisRepository{db: db}
	if err := repo.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close закрывает соединение с базой.
func (r *SQLiteAnalysisRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *SQLiteAnalysisRepository) initSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS analyses (
	id          TEXT PRIMARY KEY,
	filename    TEXT NOT NULL DEFAULT '',
	source_hash TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	radiometric INTEGER NOT NULL DEFAULT 0,
	ambient     REAL NOT NULL DEFAULT 0,
	warnings    TEXT NOT NULL DEFAULT '[]',
	timings     TEXT NOT NULL DEFAULT '[]',
	error       TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analyses_source_hash ON analyses(source_hash);
CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at);

CREATE TABLE IF NOT EXISTS findings (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	analysis_id    TEXT NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
	position       INTEGER NOT NULL,
	component_type TEXT NOT NULL,
	x              INTEGER NOT NULL,
	y              INTEGER NOT NULL,
	width          INTEGER NOT NULL,
	height         INTEGER NOT NULL,
	confidence     REAL NOT NULL,
	source         TEXT NOT NULL,
	max_temp       REAL NOT NULL,
	mean_temp      REAL NOT NULL,
	rise           REAL NOT NULL,
	tier           TEXT NOT NULL,
	rule           TEXT NOT NULL,
	degenerate     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_findings_analysis ON findings(analysis_id);
`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// timingRow сериализуемое представление длительности этапа
type timingRow struct {
	Stage    string `json:"stage"`
	Duration int64  `json:"duration_ns"`
}

// Save сохраняет результат вместе с находками в одной транзакции.
// Повторное сохранение того же id полностью перезаписывает запись.
func (r *SQLiteAnalysisRepository) Save(ctx context.Context, result *entity.AnalysisResult) error {
	warnings, err := json.Marshal(result.Warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	timingRows := make([]timingRow, 0, len(result.Timings))
	for _, t := range result.Timings {
		timingRows = append(timingRows, timingRow{Stage: string(t.Stage), Duration: int64(t.Duration)})
	}
	timings, err := json.Marshal(timingRows)
	if err != nil {
		return fmt.Errorf("marshal timings: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT OR REPLACE INTO analyses
	(id, filename, source_hash, status, radiometric, ambient, warnings, timings, error, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, result.Filename, result.SourceHash, string(result.Status),
		boolToInt(result.Radiometric), result.Ambient,
		string(warnings), string(timings), result.Error,
		result.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM findings WHERE analysis_id = ?`, result.ID); err != nil {
		return fmt.Errorf("clear findings: %w", err)
	}
	for i, f := range result.Findings {
		_, err = tx.ExecContext(ctx, `
INSERT INTO findings
	(analysis_id, position, component_type, x, y, width, height, confidence, source,
	 max_temp, mean_temp, rise, tier, rule, degenerate)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			result.ID, i, string(f.Detection.Type),
			f.Detection.Box.X, f.Detection.Box.Y, f.Detection.Box.Width, f.Detection.Box.Height,
			f.Detection.Confidence, string(f.Detection.Source),
			f.Verdict.MaxTemp, f.Verdict.MeanTemp, f.Verdict.Rise,
			string(f.Verdict.Tier), f.Verdict.Rule, boolToInt(f.Verdict.Degenerate))
		if err != nil {
			return fmt.Errorf("insert finding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID возвращает результат по идентификатору, nil если не найден.
func (r *SQLiteAnalysisRepository) GetByID(ctx context.Context, id string) (*entity.AnalysisResult, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, source_hash, status, radiometric, ambient, warnings, timings, error, created_at
FROM analyses WHERE id = ?`, id)
	return r.scanResult(ctx, row)
}

// FindByHash ищет результат по хэшу исходных байтов, nil если не найден.
func (r *SQLiteAnalysisRepository) FindByHash(ctx context.Context, hash string) (*entity.AnalysisResult, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, source_hash, status, radiometric, ambient, warnings, timings, error, created_at
FROM analyses WHERE source_hash = ?
ORDER BY created_at DESC LIMIT 1`, hash)
	return r.scanResult(ctx, row)
}

// List возвращает последние результаты, новые первыми.
func (r *SQLiteAnalysisRepository) List(ctx context.Context, limit int) ([]*entity.AnalysisResult, error) {
	query := `
SELECT id, filename, source_hash, status, radiometric, ambient, warnings, timings, error, created_at
FROM analyses ORDER BY created_at DESC, id ASC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT ?", limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	var results []*entity.AnalysisResult
	for rows.Next() {
		res, scanErr := r.scanRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analyses: %w", err)
	}
	for _, res := range results {
		if err := r.loadFindings(ctx, res); err != nil {
			return nil, err
		}
	}
	return results, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteAnalysisRepository) scanResult(ctx context.Context, row *sql.Row) (*entity.AnalysisResult, error) {
	res, err := r.scanRow(row)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	if err := r.loadFindings(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *SQLiteAnalysisRepository) scanRow(row rowScanner) (*entity.AnalysisResult, error) {
	var (
		res         entity.AnalysisResult
		status      string
		radiometric int
		warnings    string
		timings     string
		createdAt   string
	)
	err := row.Scan(&res.ID, &res.Filename, &res.SourceHash, &status, &radiometric,
		&res.Ambient, &warnings, &timings, &res.Error, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan analysis: %w", err)
	}

	res.Status = entity.Status(status)
	res.Radiometric = radiometric != 0
	if err := json.Unmarshal([]byte(warnings), &res.Warnings); err != nil {
		return nil, fmt.Errorf("unmarshal warnings: %w", err)
	}
	var timingRows []timingRow
	if err := json.Unmarshal([]byte(timings), &timingRows); err != nil {
		return nil, fmt.Errorf("unmarshal timings: %w", err)
	}
	for _, t := range timingRows {
		res.Timings = append(res.Timings, entity.StageTiming{
			Stage:    entity.RunStage(t.Stage),
			Duration: time.Duration(t.Duration),
		})
	}
	res.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &res, nil
}

func (r *SQLiteAnalysisRepository) loadFindings(ctx context.Context, res *entity.AnalysisResult) error {
	rows, err := r.db.QueryContext(ctx, `
SELECT component_type, x, y, width, height, confidence, source,
       max_temp, mean_temp, rise, tier, rule, degenerate
FROM findings WHERE analysis_id = ? ORDER BY position ASC`, res.ID)
	if err != nil {
		return fmt.Errorf("load findings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			f          entity.Finding
			compType   string
			source     string
			tier       string
			degenerate int
		)
		err := rows.Scan(&compType, &f.Detection.Box.X, &f.Detection.Box.Y,
			&f.Detection.Box.Width, &f.Detection.Box.Height,
			&f.Detection.Confidence, &source,
			&f.Verdict.MaxTemp, &f.Verdict.MeanTemp, &f.Verdict.Rise,
			&tier, &f.Verdict.Rule, &degenerate)
		if err != nil {
			return fmt.Errorf("scan finding: %w", err)
		}
		f.Detection.Type = entity.ComponentType(compType)
		f.Detection.Source = entity.DetectorSource(source)
		f.Verdict.Tier = entity.RiskTier(tier)
		f.Verdict.Degenerate = degenerate != 0
		res.Findings = append(res.Findings, f)
	}
	return rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Проверка реализации интерфейса
var _ port.AnalysisRepository = (*SQLiteAnalysisRepository)(nil)
