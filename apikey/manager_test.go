package apikey

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-org-registry/logger"
	"github.com/saiset-co/sai-org-registry/types"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestManager(t *testing.T, repo Repository) (*Manager, *testClock) {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	m := NewManager(logger.NewNop(), &types.AuthConfig{HashSecret: "test-secret"}, repo)
	m.nowFunc = clock.Now
	return m, clock
}

func TestGenerateFormats(t *testing.T) {
	m, _ := newTestManager(t, nil)

	raw, keyID, err := m.Generate(context.Background(), GenerateRequest{
		ClientName:  "hr-portal",
		Permissions: []string{"read", "write"},
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(raw, "sk_"))
	assert.Len(t, raw, len("sk_")+43)
	assert.True(t, strings.HasPrefix(keyID, "key_"))
	assert.Len(t, keyID, len("key_")+16)

	view, ok := m.Get(keyID)
	require.True(t, ok)
	assert.Equal(t, []Permission{PermissionRead, PermissionWrite}, view.Permissions)
	assert.True(t, view.IsActive)
	assert.Nil(t, view.ExpiresAt)
}

func TestGenerateStoresOnlyHash(t *testing.T) {
	repo := NewMemoryRepository()
	m, _ := newTestManager(t, repo)

	raw, keyID, err := m.Generate(context.Background(), GenerateRequest{
		ClientName:  "svc",
		Permissions: []string{"read"},
	})
	require.NoError(t, err)

	records, err := repo.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, keyID, records[0].KeyID)
	assert.Equal(t, m.HashKey(raw), records[0].HashedKey)
	assert.NotContains(t, records[0].HashedKey, raw)
	assert.Len(t, records[0].HashedKey, 64)
}

func TestGenerateRejectsUnknownPermission(t *testing.T) {
	m, _ := newTestManager(t, nil)

	_, _, err := m.Generate(context.Background(), GenerateRequest{
		ClientName:  "svc",
		Permissions: []string{"read", "root"},
	})
	assert.ErrorIs(t, err, ErrUnknownPermission)
	assert.Zero(t, m.Count())
}

func TestGenerateExpiry(t *testing.T) {
	m, clock := newTestManager(t, nil)

	_, keyID, err := m.Generate(context.Background(), GenerateRequest{
		ClientName:    "svc",
		Permissions:   []string{"read"},
		ExpiresInDays: 7,
	})
	require.NoError(t, err)

	view, _ := m.Get(keyID)
	require.NotNil(t, view.ExpiresAt)
	assert.Equal(t, clock.now.Add(7*24*time.Hour), *view.ExpiresAt)
}

func TestHashKeyIsKeyed(t *testing.T) {
	a := NewHasher("secret-a")
	b := NewHasher("secret-b")

	assert.Equal(t, a.Hash("sk_x"), a.Hash("sk_x"))
	assert.NotEqual(t, a.Hash("sk_x"), b.Hash("sk_x"))
	assert.True(t, a.Equal("sk_x", a.Hash("sk_x")))

	long := NewHasher(strings.Repeat("s", 200))
	assert.Len(t, long.Hash("sk_x"), 64)
}

func TestValidate(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		req      GenerateRequest
		mutate   func(m *Manager, clock *testClock, keyID string)
		ip       string
		required []Permission
		wantErr  error
	}{
		{
			name: "valid",
			req:  GenerateRequest{ClientName: "svc", Permissions: []string{"read"}},
		},
		{
			name:    "inactive",
			req:     GenerateRequest{ClientName: "svc", Permissions: []string{"read"}},
			mutate:  func(m *Manager, _ *testClock, keyID string) { m.RevokeByID(keyID) },
			wantErr: ErrKeyInactive,
		},
		{
			name:    "expired",
			req:     GenerateRequest{ClientName: "svc", Permissions: []string{"read"}, ExpiresInDays: 1},
			mutate:  func(_ *Manager, clock *testClock, _ string) { clock.Advance(25 * time.Hour) },
			wantErr: ErrKeyExpired,
		},
		{
			name:    "ip not whitelisted",
			req:     GenerateRequest{ClientName: "svc", Permissions: []string{"read"}, IPWhitelist: []string{"10.0.0.1"}},
			ip:      "10.0.0.2",
			wantErr: ErrIPNotAllowed,
		},
		{
			name: "whitelisted ip",
			req:  GenerateRequest{ClientName: "svc", Permissions: []string{"read"}, IPWhitelist: []string{"10.0.0.1"}},
			ip:   "10.0.0.1",
		},
		{
			name: "empty ip skips whitelist",
			req:  GenerateRequest{ClientName: "svc", Permissions: []string{"read"}, IPWhitelist: []string{"10.0.0.1"}},
		},
		{
			name:     "unknown required permission",
			req:      GenerateRequest{ClientName: "svc", Permissions: []string{"read"}},
			required: []Permission{"superuser"},
			wantErr:  ErrUnknownPermission,
		},
		{
			name:     "missing permission",
			req:      GenerateRequest{ClientName: "svc", Permissions: []string{"read"}},
			required: []Permission{PermissionRead, PermissionAdmin},
			wantErr:  ErrInsufficientPermissions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, clock := newTestManager(t, nil)

			raw, keyID, err := m.Generate(ctx, tt.req)
			require.NoError(t, err)

			if tt.mutate != nil {
				tt.mutate(m, clock, keyID)
			}

			info, err := m.Validate(raw, tt.ip, tt.required...)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, info)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, keyID, info.KeyID)
			assert.Equal(t, "svc", info.ClientName)
		})
	}
}

func TestValidateUnknownKey(t *testing.T) {
	m, _ := newTestManager(t, nil)

	_, err := m.Validate("sk_does_not_exist", "")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestValidateReportsMissingPermissions(t *testing.T) {
	m, _ := newTestManager(t, nil)

	raw, _, err := m.Generate(context.Background(), GenerateRequest{ClientName: "svc", Permissions: []string{"read"}})
	require.NoError(t, err)

	info, err := m.Validate(raw, "", PermissionRead)
	require.NoError(t, err)
	assert.True(t, info.Has(PermissionRead))
	assert.False(t, info.Has(PermissionWrite))

	_, err = m.Validate(raw, "", PermissionWrite, PermissionAdmin)

	var permErr *PermissionError
	require.ErrorAs(t, err, &permErr)
	assert.Equal(t, []Permission{PermissionWrite, PermissionAdmin}, permErr.Missing)
	assert.Contains(t, permErr.Error(), "write, admin")
}

func TestValidateChecksInactiveBeforeExpired(t *testing.T) {
	m, clock := newTestManager(t, nil)

	raw, keyID, err := m.Generate(context.Background(), GenerateRequest{
		ClientName:    "svc",
		Permissions:   []string{"read"},
		ExpiresInDays: 1,
	})
	require.NoError(t, err)

	m.RevokeByID(keyID)
	clock.Advance(48 * time.Hour)

	_, err = m.Validate(raw, "")
	assert.ErrorIs(t, err, ErrKeyInactive)
}

func TestValidateRecordsUsage(t *testing.T) {
	m, clock := newTestManager(t, nil)

	limit := 250
	raw, keyID, err := m.Generate(context.Background(), GenerateRequest{
		ClientName:        "svc",
		Permissions:       []string{"read"},
		RateLimitOverride: &limit,
	})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	info, err := m.Validate(raw, "")
	require.NoError(t, err)
	assert.Equal(t, 250, info.RateLimit)

	_, err = m.Validate(raw, "")
	require.NoError(t, err)

	view, _ := m.Get(keyID)
	assert.Equal(t, int64(2), view.UsageCount)
	require.NotNil(t, view.LastUsedAt)
	assert.Equal(t, clock.now, *view.LastUsedAt)
}

func TestReturnedMetadataIsDetached(t *testing.T) {
	m, _ := newTestManager(t, nil)

	req := GenerateRequest{
		ClientName:  "svc",
		Permissions: []string{"read"},
		IPWhitelist: []string{"10.0.0.1"},
		Metadata:    map[string]interface{}{"team": "payroll"},
	}
	raw, keyID, err := m.Generate(context.Background(), req)
	require.NoError(t, err)

	req.Metadata["team"] = "changed by caller"
	req.IPWhitelist[0] = "0.0.0.0"

	info, err := m.Validate(raw, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "payroll", info.Metadata["team"])
	info.Metadata["team"] = "changed by handler"

	view, ok := m.Get(keyID)
	require.True(t, ok)
	assert.Equal(t, "payroll", view.Metadata["team"])
	view.Metadata["team"] = "changed by view"
	view.IPWhitelist[0] = "0.0.0.0"
	*view.LastUsedAt = time.Time{}

	again, _ := m.Get(keyID)
	assert.Equal(t, map[string]interface{}{"team": "payroll"}, again.Metadata)
	assert.Equal(t, []string{"10.0.0.1"}, again.IPWhitelist)
	assert.False(t, again.LastUsedAt.IsZero())
}

func TestRevoke(t *testing.T) {
	m, _ := newTestManager(t, nil)

	raw, keyID, err := m.Generate(context.Background(), GenerateRequest{ClientName: "svc", Permissions: []string{"read"}})
	require.NoError(t, err)

	assert.True(t, m.Revoke(raw))
	assert.False(t, m.Revoke("sk_unknown"))
	assert.False(t, m.RevokeByID("key_unknown"))

	view, ok := m.Get(keyID)
	require.True(t, ok)
	assert.False(t, view.IsActive)
	assert.Equal(t, 1, m.Count())
}

func TestListOrder(t *testing.T) {
	m, clock := newTestManager(t, nil)
	ctx := context.Background()

	_, first, err := m.Generate(ctx, GenerateRequest{ClientName: "a", Permissions: []string{"read"}})
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, second, err := m.Generate(ctx, GenerateRequest{ClientName: "b", Permissions: []string{"read"}})
	require.NoError(t, err)

	views := m.List()
	require.Len(t, views, 2)
	assert.Equal(t, first, views[0].KeyID)
	assert.Equal(t, second, views[1].KeyID)
}

func TestFlushPersistsUsage(t *testing.T) {
	repo := NewMemoryRepository()
	m, _ := newTestManager(t, repo)
	ctx := context.Background()

	raw, keyID, err := m.Generate(ctx, GenerateRequest{ClientName: "svc", Permissions: []string{"read"}})
	require.NoError(t, err)

	n, err := m.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = m.Validate(raw, "")
	require.NoError(t, err)

	n, err = m.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	reloaded, _ := newTestManager(t, repo)
	require.NoError(t, reloaded.Load(ctx))

	view, ok := reloaded.Get(keyID)
	require.True(t, ok)
	assert.Equal(t, int64(1), view.UsageCount)

	_, err = reloaded.Validate(raw, "")
	assert.NoError(t, err)
}

func TestParsePermissions(t *testing.T) {
	perms, err := ParsePermissions([]string{"write", "read", "write"})
	require.NoError(t, err)
	assert.Equal(t, []Permission{PermissionRead, PermissionWrite}, perms)

	_, err = ParsePermissions([]string{"READ"})
	assert.ErrorIs(t, err, ErrUnknownPermission)
}

func TestRecordUsable(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)

	rec := Record{IsActive: true, IPWhitelist: []string{"1.1.1.1"}}
	assert.True(t, rec.Usable(now, "1.1.1.1"))
	assert.False(t, rec.Usable(now, "2.2.2.2"))

	rec.ExpiresAt = &past
	assert.False(t, rec.Usable(now, "1.1.1.1"))
}
