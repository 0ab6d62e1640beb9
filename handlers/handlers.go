package handlers

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-org-registry/apikey"
	"github.com/saiset-co/sai-org-registry/cache"
	"github.com/saiset-co/sai-org-registry/registry"
	"github.com/saiset-co/sai-org-registry/types"
	"github.com/saiset-co/sai-org-registry/utils"
)

const APIPrefix = "/api/v1"

// Handlers serves the registry, cache and key administration routes.
type Handlers struct {
	registry    *registry.Service
	keys        *apikey.Manager
	memo        *cache.Memoizer
	invalidator *cache.TagInvalidator
	validate    *validator.Validate
	logger      types.Logger
}

func New(logger types.Logger, registry *registry.Service, keys *apikey.Manager, memo *cache.Memoizer, invalidator *cache.TagInvalidator) *Handlers {
	return &Handlers{
		registry:    registry,
		keys:        keys,
		memo:        memo,
		invalidator: invalidator,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger,
	}
}

// RegisterRoutes attaches every route. Reads accept an optional key; when a
// key is sent it must carry read.
func (h *Handlers) RegisterRoutes(router types.HTTPRouter) {
	read := string(apikey.PermissionRead)
	write := string(apikey.PermissionWrite)
	admin := string(apikey.PermissionAdmin)

	api := router.Group(APIPrefix)

	people := api.Group("/people")
	people.GET("", h.listPeople).WithPermissions(read)
	people.GET("/search", h.searchPeople).WithPermissions(read)
	people.GET("/{id}", h.getPerson).WithPermissions(read)
	people.POST("", h.createPerson).WithPermissions(write).RequireAuth()
	people.PUT("/{id}", h.updatePerson).WithPermissions(write).RequireAuth()
	people.DELETE("/{id}", h.deletePerson).WithPermissions(write).RequireAuth()

	departments := api.Group("/departments")
	departments.GET("", h.listDepartments).WithPermissions(read)
	departments.GET("/{id}", h.getDepartment).WithPermissions(read)
	departments.POST("", h.createDepartment).WithPermissions(write).RequireAuth()
	departments.PUT("/{id}", h.updateDepartment).WithPermissions(write).RequireAuth()

	positions := api.Group("/positions")
	positions.GET("", h.listPositions).WithPermissions(read)
	positions.GET("/{id}", h.getPosition).WithPermissions(read)
	positions.POST("", h.createPosition).WithPermissions(write).RequireAuth()

	employment := api.Group("/employment")
	employment.GET("", h.listEmployment).WithPermissions(read)
	employment.GET("/{id}", h.getEmployment).WithPermissions(read)
	employment.POST("", h.createEmployment).WithPermissions(write).RequireAuth()
	employment.PUT("/{id}", h.updateEmployment).WithPermissions(write).RequireAuth()

	api.GET("/statistics", h.statistics).WithPermissions(string(apikey.PermissionStatistics)).RequireAuth()

	cacheGroup := api.Group("/cache").WithPermissions(admin).RequireAuth()
	cacheGroup.GET("/stats", h.cacheStats)
	cacheGroup.GET("/tags/{name}", h.cacheTag)
	cacheGroup.POST("/clear", h.cacheClear)

	keys := router.Group("/admin/api-keys").WithPermissions(admin).RequireAuth()
	keys.GET("", h.listKeys)
	keys.POST("", h.createKey)
	keys.DELETE("/{key_id}", h.revokeKey)
}

// decode reads a JSON body into target and validates it. On failure the
// response is already written.
func decode[T any](h *Handlers, ctx *types.RequestCtx, target *T) bool {
	if err := utils.Unmarshal(ctx.PostBody(), target); err != nil {
		utils.WriteError(ctx.RequestCtx, fasthttp.StatusBadRequest, "Request body is not valid JSON", utils.CodeValidationError, nil)
		return false
	}

	if err := h.validate.Struct(target); err != nil {
		utils.WriteError(ctx.RequestCtx, fasthttp.StatusBadRequest, "Request validation failed", utils.CodeValidationError,
			map[string]interface{}{"fields": fieldErrors(err)})
		return false
	}

	return true
}

func fieldErrors(err error) map[string]string {
	fields := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		fields["body"] = err.Error()
		return fields
	}

	for _, fe := range validationErrors {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[fe.Namespace()] = rule
	}
	return fields
}

func pathID(ctx *types.RequestCtx, name string) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || id <= 0 {
		utils.WriteError(ctx.RequestCtx, fasthttp.StatusBadRequest, "Invalid identifier", utils.CodeValidationError,
			map[string]interface{}{name: ctx.Param(name)})
		return 0, false
	}
	return id, true
}

func pageOf(ctx *types.RequestCtx) registry.Page {
	args := ctx.QueryArgs()
	return registry.Page{
		Offset: args.GetUintOrZero("offset"),
		Limit:  args.GetUintOrZero("limit"),
	}
}

// fail maps registry errors onto the response envelope.
func (h *Handlers) fail(ctx *types.RequestCtx, err error) {
	switch {
	case errors.Is(err, types.ErrEntityNotFound):
		utils.WriteError(ctx.RequestCtx, fasthttp.StatusNotFound, err.Error(), utils.CodeNotFound, nil)
	case errors.Is(err, registry.ErrConflict):
		utils.WriteError(ctx.RequestCtx, fasthttp.StatusConflict, "Entity already exists", utils.CodeConflict, nil)
	case errors.Is(err, registry.ErrReferenced):
		utils.WriteError(ctx.RequestCtx, fasthttp.StatusBadRequest, "Referenced entity does not exist", utils.CodeValidationError, nil)
	default:
		h.logger.Error("Request failed",
			zap.String("path", string(ctx.Path())),
			zap.String("request_id", ctx.RequestID()),
			zap.Error(err))
		utils.CreateErrorResponse(ctx.RequestCtx)
	}
}

func (h *Handlers) respond(ctx *types.RequestCtx, status int, data interface{}, err error) {
	if err != nil {
		h.fail(ctx, err)
		return
	}
	utils.WriteSuccess(ctx.RequestCtx, status, data)
}
