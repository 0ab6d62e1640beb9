package apikey

import (
	"context"
	"io"
	"maps"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-org-registry/types"
)

// Manager owns every API key record. Validation works purely in memory;
// changed records are written to the repository by Flush.
type Manager struct {
	mu      sync.Mutex
	records map[string]*Record
	byHash  map[string]string
	dirty   map[string]struct{}

	hasher  *Hasher
	repo    Repository
	logger  types.Logger
	random  io.Reader
	nowFunc func() time.Time
}

func NewManager(logger types.Logger, cfg *types.AuthConfig, repo Repository) *Manager {
	secret := ""
	if cfg != nil {
		secret = cfg.HashSecret
	}

	return &Manager{
		records: make(map[string]*Record),
		byHash:  make(map[string]string),
		dirty:   make(map[string]struct{}),
		hasher:  NewHasher(secret),
		repo:    repo,
		logger:  logger,
		random:  defaultRandom,
		nowFunc: time.Now,
	}
}

// Load replaces the in-memory set with the repository contents.
func (m *Manager) Load(ctx context.Context) error {
	if m.repo == nil {
		return nil
	}

	records, err := m.repo.LoadAll(ctx)
	if err != nil {
		return types.WrapError(err, "failed to load api keys")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = make(map[string]*Record, len(records))
	m.byHash = make(map[string]string, len(records))
	m.dirty = make(map[string]struct{})

	for i := range records {
		rec := records[i]
		m.records[rec.KeyID] = &rec
		m.byHash[rec.HashedKey] = rec.KeyID
	}

	m.logger.Info("API keys loaded", zap.Int("count", len(records)))
	return nil
}

// HashKey returns the stored form of a raw key.
func (m *Manager) HashKey(raw string) string {
	return m.hasher.Hash(raw)
}

func (m *Manager) Generate(ctx context.Context, req GenerateRequest) (string, string, error) {
	if req.ClientName == "" {
		return "", "", types.Errorf(types.ErrValidationFailed, "client_name is required")
	}

	perms, err := ParsePermissions(req.Permissions)
	if err != nil {
		return "", "", err
	}

	raw, err := newRawKey(m.random)
	if err != nil {
		return "", "", types.WrapError(err, "failed to generate api key")
	}

	keyID, err := newKeyID(m.random)
	if err != nil {
		return "", "", types.WrapError(err, "failed to generate key id")
	}

	now := m.nowFunc().UTC()
	rec := Record{
		KeyID:             keyID,
		HashedKey:         m.hasher.Hash(raw),
		ClientName:        req.ClientName,
		Name:              req.Name,
		Permissions:       perms,
		RateLimitOverride: clonePtr(req.RateLimitOverride),
		IsActive:          true,
		CreatedAt:         now,
		IPWhitelist:       append([]string(nil), req.IPWhitelist...),
		Metadata:          maps.Clone(req.Metadata),
	}
	if req.ExpiresInDays > 0 {
		expires := now.Add(time.Duration(req.ExpiresInDays) * 24 * time.Hour)
		rec.ExpiresAt = &expires
	}

	if err := m.insert(ctx, rec); err != nil {
		return "", "", err
	}

	m.logger.Info("API key generated",
		zap.String("key_id", keyID),
		zap.String("client_name", req.ClientName),
		zap.Int("permissions", len(perms)))

	return raw, keyID, nil
}

func (m *Manager) insert(ctx context.Context, rec Record) error {
	if m.repo != nil {
		if err := m.repo.Save(ctx, rec); err != nil {
			return types.WrapError(err, "failed to persist api key")
		}
	}

	m.mu.Lock()
	m.records[rec.KeyID] = &rec
	m.byHash[rec.HashedKey] = rec.KeyID
	m.mu.Unlock()

	return nil
}

// Validate authenticates raw for a request from clientIP that needs the
// required permissions. An empty clientIP skips the whitelist check.
func (m *Manager) Validate(raw, clientIP string, required ...Permission) (*ClientInfo, error) {
	for _, p := range required {
		if !p.Valid() {
			return nil, types.Errorf(ErrUnknownPermission, "%q", string(p))
		}
	}

	hashed := m.hasher.Hash(raw)
	now := m.nowFunc().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	keyID, ok := m.byHash[hashed]
	if !ok {
		return nil, ErrKeyNotFound
	}
	rec := m.records[keyID]

	switch {
	case !rec.IsActive:
		return nil, ErrKeyInactive
	case rec.Expired(now):
		return nil, ErrKeyExpired
	case !rec.AllowsIP(clientIP):
		return nil, ErrIPNotAllowed
	}

	if missing := missingPermissions(rec.Permissions, required); len(missing) > 0 {
		return nil, &PermissionError{Missing: missing}
	}

	rec.LastUsedAt = &now
	rec.UsageCount++
	m.dirty[keyID] = struct{}{}

	info := &ClientInfo{
		KeyID:       rec.KeyID,
		ClientName:  rec.ClientName,
		Permissions: append([]Permission(nil), rec.Permissions...),
		Metadata:    maps.Clone(rec.Metadata),
	}
	if rec.RateLimitOverride != nil {
		info.RateLimit = *rec.RateLimitOverride
	}

	return info, nil
}

// Revoke deactivates the key matching raw. Records are never deleted.
func (m *Manager) Revoke(raw string) bool {
	hashed := m.hasher.Hash(raw)

	m.mu.Lock()
	keyID, ok := m.byHash[hashed]
	m.mu.Unlock()

	if !ok {
		return false
	}
	return m.RevokeByID(keyID)
}

func (m *Manager) RevokeByID(keyID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[keyID]
	if !ok {
		return false
	}

	rec.IsActive = false
	m.dirty[keyID] = struct{}{}

	m.logger.Info("API key revoked", zap.String("key_id", keyID))
	return true
}

func (m *Manager) List() []KeyView {
	m.mu.Lock()
	views := make([]KeyView, 0, len(m.records))
	for _, rec := range m.records {
		views = append(views, rec.view())
	}
	m.mu.Unlock()

	sort.Slice(views, func(i, j int) bool {
		if !views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].CreatedAt.Before(views[j].CreatedAt)
		}
		return views[i].KeyID < views[j].KeyID
	})

	return views
}

func (m *Manager) Get(keyID string) (KeyView, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[keyID]
	if !ok {
		return KeyView{}, false
	}
	return rec.view(), true
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Flush writes every record changed since the last flush. Records that
// fail to save stay dirty for the next run.
func (m *Manager) Flush(ctx context.Context) (int, error) {
	if m.repo == nil {
		return 0, nil
	}

	m.mu.Lock()
	pending := make([]Record, 0, len(m.dirty))
	for keyID := range m.dirty {
		if rec, ok := m.records[keyID]; ok {
			pending = append(pending, *rec)
		}
	}
	m.dirty = make(map[string]struct{})
	m.mu.Unlock()

	saved := 0
	for i, rec := range pending {
		if err := m.repo.Save(ctx, rec); err != nil {
			m.requeue(pending[i:])
			return saved, types.WrapError(err, "failed to flush api key "+rec.KeyID)
		}
		saved++
	}

	if saved > 0 {
		m.logger.Debug("API keys flushed", zap.Int("count", saved))
	}
	return saved, nil
}

func (m *Manager) requeue(records []Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		m.dirty[rec.KeyID] = struct{}{}
	}
}

// Stop flushes pending changes and closes the repository.
func (m *Manager) Stop(ctx context.Context) error {
	if m.repo == nil {
		return nil
	}

	if _, err := m.Flush(ctx); err != nil {
		m.logger.Error("Failed to flush api keys on stop", zap.Error(err))
	}

	return m.repo.Close()
}
