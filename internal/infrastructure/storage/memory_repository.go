package storage

import (
	"context"
	"sort"
	"sync"

	"thermal-eye/internal/domain/entity"
	"thermal-eye/internal/domain/port"
)

// MemoryAnalysisRepository in-memory хранилище результатов, для тестов и
// запуска без базы.
type MemoryAnalysisRepository struct {
	mu     sync.RWMutex
	byID   map[string]*entity.AnalysisResult
	byHash map[string]string // sha256 -> id
}

// NewMemoryAnalysisRepository создаёт новое in-memory хранилище.
func NewMemoryAnalysisRepository() *MemoryAnalysisRepository {
	return &MemoryAnalysisRepository{
		byID:   make(map[string]*entity.AnalysisResult),
		byHash: make(map[string]string),
	}
}

// Save сохраняет результат анализа.
func (r *MemoryAnalysisRepository) Save(ctx context.Context, result *entity.AnalysisResult) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[result.ID] = result
	if result.SourceHash != "" {
		r.byHash[result.SourceHash] = result.ID
	}
	return nil
}

// GetByID возвращает результат по идентификатору, nil если не найден.
func (r *MemoryAnalysisRepository) GetByID(ctx context.Context, id string) (*entity.AnalysisResult, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id], nil
}

// FindByHash ищет результат по хэшу исходных байтов.
func (r *MemoryAnalysisRepository) FindByHash(ctx context.Context, hash string) (*entity.AnalysisResult, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byHash[hash]
	if !ok {
		return nil, nil
	}
	return r.byID[id], nil
}

// List возвращает последние результаты, новые первыми.
func (r *MemoryAnalysisRepository) List(ctx context.Context, limit int) ([]*entity.AnalysisResult, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*entity.AnalysisResult, 0, len(r.byID))
	for _, res := range r.byID {
		all = append(all, res)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Проверка реализации интерфейса
var _ port.AnalysisRepository = (*MemoryAnalysisRepository)(nil)
