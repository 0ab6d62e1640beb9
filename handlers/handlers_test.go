package handlers

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-org-registry/apikey"
	"github.com/saiset-co/sai-org-registry/cache"
	"github.com/saiset-co/sai-org-registry/config"
	"github.com/saiset-co/sai-org-registry/logger"
	"github.com/saiset-co/sai-org-registry/metrics"
	"github.com/saiset-co/sai-org-registry/middleware"
	"github.com/saiset-co/sai-org-registry/ratelimit"
	"github.com/saiset-co/sai-org-registry/registry"
	"github.com/saiset-co/sai-org-registry/server"
	"github.com/saiset-co/sai-org-registry/types"
	"github.com/saiset-co/sai-org-registry/utils"
)

type envelope struct {
	Success   bool                   `json:"success"`
	Data      interface{}            `json:"data"`
	Message   string                 `json:"message"`
	ErrorCode string                 `json:"error_code"`
	Details   map[string]interface{} `json:"details"`
}

type testApp struct {
	handler fasthttp.RequestHandler
	keys    *apikey.Manager
	store   types.CacheStore
	admin   string
	reader  string
	writer  string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	ctx := context.Background()

	cfg := config.NewLoader().Defaults()
	cm := config.NewStatic(cfg)
	log := logger.NewNop()
	mm := metrics.NewNop(log)

	repo, err := registry.OpenSQLite(ctx, log, &types.DatabaseConfig{Driver: "sqlite3", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	store := cache.NewMemoryStore(log, &types.CacheConfig{Type: "memory", MaxSize: 100})
	invalidator := cache.NewTagInvalidator(store, log)
	memo := cache.NewMemoizer(store, invalidator, log, mm)
	svc := registry.NewService(repo, memo, cache.NewInvalidationStrategies(invalidator), log)

	keys := apikey.NewManager(log, cfg.Auth, nil)
	mw := middleware.NewManager(cm, log, mm, keys, ratelimit.NewSlidingWindow())
	require.NoError(t, mw.RegisterMiddlewares())

	router := server.NewFastHTTPRouter()
	New(log, svc, keys, memo, invalidator).RegisterRoutes(router)
	require.NoError(t, router.FinalizePendingRoutes())

	app := &testApp{
		handler: server.NewHTTPServer(cm, log, mw, router).Handler(),
		keys:    keys,
		store:   store,
	}
	app.admin = app.generate(t, "admin", "read", "write")
	app.reader = app.generate(t, "read")
	app.writer = app.generate(t, "read", "write", "statistics")
	return app
}

func (a *testApp) generate(t *testing.T, permissions ...string) string {
	t.Helper()

	raw, _, err := a.keys.Generate(context.Background(), apikey.GenerateRequest{
		ClientName:  "handlers-test",
		Permissions: permissions,
	})
	require.NoError(t, err)
	return raw
}

func (a *testApp) do(t *testing.T, method, path, key, body string) (int, envelope) {
	t.Helper()

	fctx := &fasthttp.RequestCtx{}
	fctx.Request.Header.SetMethod(method)
	fctx.Request.SetRequestURI(path)
	if key != "" {
		fctx.Request.Header.Set("X-API-Key", key)
	}
	if body != "" {
		fctx.Request.Header.SetContentType("application/json")
		fctx.Request.SetBodyString(body)
	}

	a.handler(fctx)

	var resp envelope
	require.NoError(t, utils.Unmarshal(fctx.Response.Body(), &resp), string(fctx.Response.Body()))
	return fctx.Response.StatusCode(), resp
}

func idOf(t *testing.T, resp envelope) string {
	t.Helper()

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	id, ok := data["id"].(float64)
	require.True(t, ok)
	return strconv.FormatInt(int64(id), 10)
}

func TestPeopleLifecycle(t *testing.T) {
	app := newTestApp(t)

	status, resp := app.do(t, "POST", "/api/v1/people", app.writer,
		`{"first_name":"Ada","last_name":"Lovelace","email":"ada@example.com"}`)
	require.Equal(t, fasthttp.StatusCreated, status, resp.Message)
	id := idOf(t, resp)

	status, resp = app.do(t, "GET", "/api/v1/people/"+id, "", "")
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Equal(t, "Lovelace", resp.Data.(map[string]interface{})["last_name"])

	status, resp = app.do(t, "PUT", "/api/v1/people/"+id, app.writer,
		`{"first_name":"Ada","last_name":"King","email":"ada@example.com"}`)
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Equal(t, "King", resp.Data.(map[string]interface{})["last_name"])

	status, resp = app.do(t, "GET", "/api/v1/people/search?q=king", app.reader, "")
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Len(t, resp.Data, 1)

	status, _ = app.do(t, "DELETE", "/api/v1/people/"+id, app.writer, "")
	assert.Equal(t, fasthttp.StatusOK, status)

	status, resp = app.do(t, "GET", "/api/v1/people/"+id, "", "")
	assert.Equal(t, fasthttp.StatusNotFound, status)
	assert.Equal(t, utils.CodeNotFound, resp.ErrorCode)
}

func TestListReflectsWritesThroughCache(t *testing.T) {
	app := newTestApp(t)

	status, resp := app.do(t, "GET", "/api/v1/departments", "", "")
	require.Equal(t, fasthttp.StatusOK, status)
	assert.Empty(t, resp.Data)
	assert.Positive(t, app.store.Stats().Entries)

	status, _ = app.do(t, "POST", "/api/v1/departments", app.writer, `{"name":"Engineering"}`)
	require.Equal(t, fasthttp.StatusCreated, status)

	_, resp = app.do(t, "GET", "/api/v1/departments", "", "")
	assert.Len(t, resp.Data, 1)
}

func TestWriteRoutesRequireAuth(t *testing.T) {
	app := newTestApp(t)

	status, resp := app.do(t, "POST", "/api/v1/departments", "", `{"name":"Sales"}`)
	assert.Equal(t, fasthttp.StatusUnauthorized, status)
	assert.Equal(t, utils.CodeAuthenticationRequired, resp.ErrorCode)

	status, resp = app.do(t, "POST", "/api/v1/departments", app.reader, `{"name":"Sales"}`)
	assert.Equal(t, fasthttp.StatusForbidden, status)
	assert.Equal(t, utils.CodeInsufficientPermission, resp.ErrorCode)

	status, resp = app.do(t, "GET", "/api/v1/departments", "sk_unknown", "")
	assert.Equal(t, fasthttp.StatusUnauthorized, status)
	assert.Equal(t, utils.CodeInvalidAPIKey, resp.ErrorCode)
}

func TestValidationAndConflicts(t *testing.T) {
	app := newTestApp(t)

	status, resp := app.do(t, "POST", "/api/v1/people", app.writer, `{"first_name":"Ada","email":"not-an-email"}`)
	assert.Equal(t, fasthttp.StatusBadRequest, status)
	assert.Equal(t, utils.CodeValidationError, resp.ErrorCode)
	fields, ok := resp.Details["fields"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, fields, "PersonInput.LastName")
	assert.Contains(t, fields, "PersonInput.Email")

	status, _ = app.do(t, "POST", "/api/v1/people", app.writer, `{not json`)
	assert.Equal(t, fasthttp.StatusBadRequest, status)

	status, _ = app.do(t, "GET", "/api/v1/people/abc", "", "")
	assert.Equal(t, fasthttp.StatusBadRequest, status)

	status, _ = app.do(t, "POST", "/api/v1/departments", app.writer, `{"name":"Ops"}`)
	require.Equal(t, fasthttp.StatusCreated, status)
	status, resp = app.do(t, "POST", "/api/v1/departments", app.writer, `{"name":"Ops"}`)
	assert.Equal(t, fasthttp.StatusConflict, status)
	assert.Equal(t, utils.CodeConflict, resp.ErrorCode)

	status, resp = app.do(t, "POST", "/api/v1/positions", app.writer, `{"title":"Ghost","department_id":404}`)
	assert.Equal(t, fasthttp.StatusBadRequest, status)
	assert.Equal(t, utils.CodeValidationError, resp.ErrorCode)

	status, _ = app.do(t, "GET", "/api/v1/people/search", "", "")
	assert.Equal(t, fasthttp.StatusBadRequest, status)
}

func TestEmploymentAndStatistics(t *testing.T) {
	app := newTestApp(t)

	_, resp := app.do(t, "POST", "/api/v1/departments", app.writer, `{"name":"Engineering"}`)
	dept := idOf(t, resp)
	_, resp = app.do(t, "POST", "/api/v1/positions", app.writer, `{"title":"Engineer","department_id":`+dept+`}`)
	pos := idOf(t, resp)
	_, resp = app.do(t, "POST", "/api/v1/people", app.writer, `{"first_name":"Ada","last_name":"Lovelace","email":"ada@example.com"}`)
	person := idOf(t, resp)

	status, resp := app.do(t, "GET", "/api/v1/statistics", app.writer, "")
	require.Equal(t, fasthttp.StatusOK, status)
	assert.Equal(t, float64(0), resp.Data.(map[string]interface{})["active_employment"])

	status, resp = app.do(t, "POST", "/api/v1/employment", app.writer,
		`{"person_id":`+person+`,"position_id":`+pos+`,"start_date":"2026-01-05"}`)
	require.Equal(t, fasthttp.StatusCreated, status, resp.Message)
	emp := idOf(t, resp)

	_, resp = app.do(t, "GET", "/api/v1/statistics", app.writer, "")
	assert.Equal(t, float64(1), resp.Data.(map[string]interface{})["active_employment"])

	status, resp = app.do(t, "PUT", "/api/v1/employment/"+emp, app.writer,
		`{"person_id":`+person+`,"position_id":`+pos+`,"start_date":"2026-01-05","end_date":"2026-02-01"}`)
	require.Equal(t, fasthttp.StatusOK, status)
	assert.Equal(t, false, resp.Data.(map[string]interface{})["is_active"])

	status, _ = app.do(t, "POST", "/api/v1/employment", app.writer,
		`{"person_id":`+person+`,"position_id":`+pos+`,"start_date":"05/01/2026"}`)
	assert.Equal(t, fasthttp.StatusBadRequest, status)

	status, _ = app.do(t, "GET", "/api/v1/statistics", app.reader, "")
	assert.Equal(t, fasthttp.StatusForbidden, status)
}

func TestAdminKeyRoutes(t *testing.T) {
	app := newTestApp(t)

	status, resp := app.do(t, "GET", "/admin/api-keys", app.reader, "")
	assert.Equal(t, fasthttp.StatusForbidden, status)
	assert.Equal(t, utils.CodeInsufficientPermission, resp.ErrorCode)

	status, resp = app.do(t, "POST", "/admin/api-keys", app.admin,
		`{"client_name":"billing","permissions":["read","statistics"],"expires_in_days":30,"rate_limit_override":120}`)
	require.Equal(t, fasthttp.StatusCreated, status, resp.Message)
	data := resp.Data.(map[string]interface{})
	raw := data["api_key"].(string)
	keyID := data["key"].(map[string]interface{})["key_id"].(string)
	assert.NotEmpty(t, data["key"].(map[string]interface{})["expires_at"])

	status, _ = app.do(t, "GET", "/api/v1/people", raw, "")
	assert.Equal(t, fasthttp.StatusOK, status)

	status, resp = app.do(t, "GET", "/admin/api-keys", app.admin, "")
	require.Equal(t, fasthttp.StatusOK, status)
	assert.Equal(t, float64(4), resp.Data.(map[string]interface{})["total"])

	status, resp = app.do(t, "POST", "/admin/api-keys", app.admin, `{"client_name":"bad","permissions":["root"]}`)
	assert.Equal(t, fasthttp.StatusBadRequest, status)
	assert.Equal(t, utils.CodeValidationError, resp.ErrorCode)

	status, _ = app.do(t, "DELETE", "/admin/api-keys/"+keyID, app.admin, "")
	assert.Equal(t, fasthttp.StatusOK, status)

	status, resp = app.do(t, "GET", "/api/v1/people", raw, "")
	assert.Equal(t, fasthttp.StatusUnauthorized, status)
	assert.Equal(t, utils.CodeInvalidAPIKey, resp.ErrorCode)

	status, _ = app.do(t, "DELETE", "/admin/api-keys/key_missing", app.admin, "")
	assert.Equal(t, fasthttp.StatusNotFound, status)
}

func TestCacheRoutes(t *testing.T) {
	app := newTestApp(t)

	app.do(t, "GET", "/api/v1/people", "", "")

	status, resp := app.do(t, "GET", "/api/v1/cache/stats", app.admin, "")
	require.Equal(t, fasthttp.StatusOK, status)
	stats := resp.Data.(map[string]interface{})["cache"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["entries"])

	status, resp = app.do(t, "GET", "/api/v1/cache/tags/people", app.admin, "")
	require.Equal(t, fasthttp.StatusOK, status)
	assert.Equal(t, float64(1), resp.Data.(map[string]interface{})["key_count"])

	status, _ = app.do(t, "GET", "/api/v1/cache/tags/nothing", app.admin, "")
	assert.Equal(t, fasthttp.StatusNotFound, status)

	status, _ = app.do(t, "POST", "/api/v1/cache/clear", app.writer, "")
	assert.Equal(t, fasthttp.StatusForbidden, status)

	status, resp = app.do(t, "POST", "/api/v1/cache/clear", app.admin, "")
	require.Equal(t, fasthttp.StatusOK, status)
	assert.Equal(t, float64(1), resp.Data.(map[string]interface{})["entries_removed"])
	assert.Zero(t, app.store.Stats().Entries)
}
