package middleware

import (
	"bytes"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-org-registry/types"
)

const (
	AlgorithmGzip   = "gzip"
	AlgorithmBrotli = "br"

	DefaultLevel   = 6
	DefaultMinSize = 1024
)

// CompressionMiddleware encodes response bodies of at least MinSize bytes,
// preferring brotli over gzip when the client accepts both.
type CompressionMiddleware struct {
	logger            types.Logger
	compressionConfig *CompressionConfig
	weight            int
	bufferPool        sync.Pool
}

type CompressionConfig struct {
	MinSize int `json:"min_size"`
	Level   int `json:"level"`
}

func NewCompressionMiddleware(config types.ConfigManager, logger types.Logger) *CompressionMiddleware {
	compressionConfig := &CompressionConfig{MinSize: DefaultMinSize, Level: DefaultLevel}
	item := config.GetConfig().Middlewares.Compression
	loadParams(item, compressionConfig, logger, "compression")

	if compressionConfig.Level < 1 || compressionConfig.Level > 9 {
		compressionConfig.Level = DefaultLevel
	}
	if compressionConfig.MinSize < 0 {
		compressionConfig.MinSize = DefaultMinSize
	}

	return &CompressionMiddleware{
		logger:            logger,
		compressionConfig: compressionConfig,
		weight:            weightOf(item, 70),
		bufferPool: sync.Pool{
			New: func() interface{} { return new(bytes.Buffer) },
		},
	}
}

func (c *CompressionMiddleware) Name() string { return "compression" }
func (c *CompressionMiddleware) Weight() int  { return c.weight }

func (c *CompressionMiddleware) Handle(ctx *types.RequestCtx, next func(*types.RequestCtx), _ *types.RouteConfig) {
	next(ctx)

	algorithm := negotiate(string(ctx.Request.Header.Peek(fasthttp.HeaderAcceptEncoding)))
	if algorithm == "" {
		return
	}

	body := ctx.Response.Body()
	if len(body) < c.compressionConfig.MinSize || len(ctx.Response.Header.ContentEncoding()) > 0 {
		return
	}

	compressed, err := c.compress(algorithm, body)
	if err != nil {
		return
	}

	ctx.Response.SetBody(compressed)
	ctx.Response.Header.SetContentEncoding(algorithm)
	ctx.Response.Header.Add(fasthttp.HeaderVary, fasthttp.HeaderAcceptEncoding)
}

func (c *CompressionMiddleware) compress(algorithm string, body []byte) ([]byte, error) {
	if algorithm == AlgorithmGzip {
		return fasthttp.AppendGzipBytesLevel(nil, body, c.compressionConfig.Level), nil
	}

	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	w := brotli.NewWriterLevel(buf, c.compressionConfig.Level)
	if _, err := w.Write(body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return append([]byte(nil), buf.Bytes()...), nil
}

func negotiate(acceptEncoding string) string {
	if acceptEncoding == "" {
		return ""
	}

	gzip := false
	for _, part := range strings.Split(acceptEncoding, ",") {
		name := strings.TrimSpace(part)
		if semi := strings.IndexByte(name, ';'); semi >= 0 {
			if strings.Contains(name[semi:], "q=0") && !strings.Contains(name[semi:], "q=0.") {
				continue
			}
			name = strings.TrimSpace(name[:semi])
		}

		switch name {
		case AlgorithmBrotli:
			return AlgorithmBrotli
		case AlgorithmGzip:
			gzip = true
		}
	}

	if gzip {
		return AlgorithmGzip
	}
	return ""
}
