package apikey

import (
	"context"
	"sort"
	"sync"

	"github.com/saiset-co/sai-org-registry/types"
)

type Repository interface {
	Save(ctx context.Context, rec Record) error
	LoadAll(ctx context.Context) ([]Record, error)
	Close() error
}

type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]Record)}
}

func (r *MemoryRepository) Save(_ context.Context, rec Record) error {
	r.mu.Lock()
	r.records[rec.KeyID] = rec
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) LoadAll(_ context.Context) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].KeyID < out[j].KeyID })
	return out, nil
}

func (r *MemoryRepository) Close() error {
	return nil
}

// OpenRepository builds the repository named by the api key store config.
func OpenRepository(logger types.Logger, cfg *types.APIKeyStoreConfig) (Repository, error) {
	if cfg == nil {
		return NewMemoryRepository(), nil
	}

	switch cfg.Type {
	case "memory", "":
		return NewMemoryRepository(), nil
	case "clover":
		return NewCloverRepository(logger, cfg.Path)
	default:
		return nil, types.Errorf(types.ErrNotSupported, "api key store type: %s", cfg.Type)
	}
}
