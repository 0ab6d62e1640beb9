package apikey

import (
	"context"
	"sort"
	"sync"

	"github.com/ostafen/clover"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-org-registry/types"
	"github.com/saiset-co/sai-org-registry/utils"
)

const (
	CollectionAPIKeys = "api_keys"

	fieldKeyID   = "key_id"
	fieldPayload = "payload"
)

// CloverRepository keeps records in a clover document store. Each document
// carries the key id for lookups and the JSON encoded record.
type CloverRepository struct {
	mu     sync.Mutex
	db     *clover.DB
	logger types.Logger
}

func NewCloverRepository(logger types.Logger, path string) (*CloverRepository, error) {
	db, err := clover.Open(path)
	if err != nil {
		return nil, types.WrapError(err, "failed to open CloverDB")
	}

	exists, err := db.HasCollection(CollectionAPIKeys)
	if err != nil {
		_ = db.Close()
		return nil, types.WrapError(err, "failed to check collection existence")
	}

	if !exists {
		if err = db.CreateCollection(CollectionAPIKeys); err != nil {
			_ = db.Close()
			return nil, types.WrapError(err, "failed to create collection")
		}
	}

	logger.Info("API key store opened", zap.String("path", path))

	return &CloverRepository{db: db, logger: logger}, nil
}

func (r *CloverRepository) Save(_ context.Context, rec Record) error {
	payload, err := utils.Marshal(rec)
	if err != nil {
		return types.WrapError(err, "failed to encode api key")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	query := r.db.Query(CollectionAPIKeys).Where(clover.Field(fieldKeyID).Eq(rec.KeyID))

	count, err := query.Count()
	if err != nil {
		return types.WrapError(err, "failed to count api keys")
	}

	if count > 0 {
		if err = query.Update(map[string]interface{}{fieldPayload: string(payload)}); err != nil {
			return types.WrapError(err, "failed to update api key")
		}
		return nil
	}

	doc := clover.NewDocument()
	doc.Set(fieldKeyID, rec.KeyID)
	doc.Set(fieldPayload, string(payload))

	if err = r.db.Insert(CollectionAPIKeys, doc); err != nil {
		return types.WrapError(err, "failed to insert api key")
	}

	return nil
}

func (r *CloverRepository) LoadAll(_ context.Context) ([]Record, error) {
	r.mu.Lock()
	docs, err := r.db.Query(CollectionAPIKeys).FindAll()
	r.mu.Unlock()

	if err != nil {
		return nil, types.WrapError(err, "failed to read api keys")
	}

	out := make([]Record, 0, len(docs))
	for _, doc := range docs {
		payload, ok := doc.Get(fieldPayload).(string)
		if !ok {
			r.logger.Warn("Skipping api key document without payload", zap.Any("key_id", doc.Get(fieldKeyID)))
			continue
		}

		var rec Record
		if err := utils.Unmarshal([]byte(payload), &rec); err != nil {
			r.logger.Warn("Skipping undecodable api key document", zap.Any("key_id", doc.Get(fieldKeyID)), zap.Error(err))
			continue
		}

		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].KeyID < out[j].KeyID })
	return out, nil
}

func (r *CloverRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.db.Close(); err != nil {
		return types.WrapError(err, "failed to close CloverDB")
	}
	return nil
}
