package middleware

import (
	"strings"

	"github.com/google/uuid"

	"github.com/saiset-co/sai-org-registry/types"
)

const (
	HeaderRequestID = "X-Request-ID"

	UserValueRealIP   = "real_ip"
	UserValueMetadata = "metadata"
)

// MetadataMiddleware assigns a request id and collects tracing headers.
// The request id is echoed on the response.
type MetadataMiddleware struct {
	logger         types.Logger
	metadataConfig *MetadataConfig
	ips            *ipResolver
	weight         int
}

type MetadataConfig struct {
	PropagatedHeaders []string `json:"propagated_headers"`
	GenerateRequestID bool     `json:"generate_request_id"`
}

func NewMetadataMiddleware(config types.ConfigManager, logger types.Logger) *MetadataMiddleware {
	metadataConfig := &MetadataConfig{
		GenerateRequestID: true,
		PropagatedHeaders: []string{HeaderRequestID, "X-Real-IP", "X-Trace-ID"},
	}
	item := config.GetConfig().Middlewares.Metadata
	loadParams(item, metadataConfig, logger, "metadata")

	return &MetadataMiddleware{
		logger:         logger,
		metadataConfig: metadataConfig,
		ips:            newIPResolver(config, logger),
		weight:         weightOf(item, 30),
	}
}

func (m *MetadataMiddleware) Name() string { return "metadata" }
func (m *MetadataMiddleware) Weight() int  { return m.weight }

func (m *MetadataMiddleware) Handle(ctx *types.RequestCtx, next func(*types.RequestCtx), _ *types.RouteConfig) {
	requestID := strings.TrimSpace(string(ctx.Request.Header.Peek(HeaderRequestID)))
	if requestID == "" && m.metadataConfig.GenerateRequestID {
		requestID = uuid.NewString()
	}

	if requestID != "" {
		ctx.SetUserValue(types.UserValueRequestID, requestID)
		ctx.Response.Header.Set(HeaderRequestID, requestID)
	}

	ip := m.ips.ClientIP(ctx.RequestCtx)
	ctx.SetUserValue(UserValueRealIP, ip)

	metadata := make(map[string]string, len(m.metadataConfig.PropagatedHeaders))
	for _, header := range m.metadataConfig.PropagatedHeaders {
		if value := string(ctx.Request.Header.Peek(header)); value != "" {
			metadata[header] = value
		}
	}
	if requestID != "" {
		metadata[HeaderRequestID] = requestID
	}
	ctx.SetUserValue(UserValueMetadata, metadata)

	next(ctx)
}
