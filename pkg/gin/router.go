// Package gin wires an MCP server into a gin router.
package gin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// MCPEndpoint is the path the streamable MCP handler is mounted on.
const MCPEndpoint = "/mcp"

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Endpoint   string
	ServerName string
}

// Option configures the router.
type Option func(*RouterOptions)

// WithEndpoint overrides the MCP mount path.
func WithEndpoint(endpoint string) Option {
	return func(o *RouterOptions) {
		o.Endpoint = endpoint
	}
}

// WithServerName sets the name reported by the health endpoint.
func WithServerName(name string) Option {
	return func(o *RouterOptions) {
		o.ServerName = name
	}
}

// NewRouter builds a gin engine serving the MCP server over streamable HTTP
// plus a health endpoint, with request logging and panic recovery.
func NewRouter(logger *zap.Logger, mcpServer *mcpsdk.Server, opts ...Option) *gin.Engine {
	options := &RouterOptions{
		Endpoint:   MCPEndpoint,
		ServerName: "idempay",
	}
	for _, opt := range opts {
		opt(options)
	}

	r := gin.New()
	r.Use(RequestLogger(logger), gin.Recovery())

	handler := mcpsdk.NewStreamableHTTPHandler(func(req *http.Request) *mcpsdk.Server {
		return mcpServer
	}, nil)
	r.Any(options.Endpoint, gin.WrapH(handler))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"server": options.ServerName,
		})
	})

	return r
}

// RequestLogger logs one structured line per request.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}
