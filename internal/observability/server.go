package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	logs "github.com/danmuck/urigallery/internal/logging"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer exposes /metrics and /health for a running client process.
type MetricsServer struct {
	node   string
	router *gin.Engine
	srv    *http.Server
	ln     net.Listener
}

func NewMetricsServer(node string, corsOrigins []string) *MetricsServer {
	RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(Instrument(node, *logs.Logger(), "/metrics", "/health"))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"node": node, "status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &MetricsServer{node: node, router: r}
}

func (m *MetricsServer) Handler() http.Handler { return m.router }

// Start listens on addr and serves in the background. Addr() is valid after Start returns.
func (m *MetricsServer) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	m.ln = ln
	m.srv = &http.Server{Handler: m.router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := m.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logs.Errf("observability: metrics server %s: %v", m.node, err)
		}
	}()
	logs.Infof("observability: metrics listening addr=%s", ln.Addr())
	return nil
}

func (m *MetricsServer) Addr() string {
	if m.ln == nil {
		return ""
	}
	return m.ln.Addr().String()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if m.srv == nil {
		return nil
	}
	return m.srv.Shutdown(ctx)
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost"}
	}
	return out
}
