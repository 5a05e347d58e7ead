package api

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	defaultReadTimeout = 10 * time.Second
	defaultIdleTimeout = 60 * time.Second
)

// SetupRoutes registers the route table. Requests that match no route go through the redirect
// resolver and then to fallback.
func SetupRoutes(router *gin.Engine, h *Handler, redirectStatus int, fallback gin.HandlerFunc) {
	router.GET("/ping", h.Ping)
	router.GET("/health", h.Health)

	api := router.Group("/api")
	api.GET("/token", h.IssueToken)
	api.GET("/redirects", h.ListRedirects)

	// Everything that probes remote hosts or changes rules needs a token.
	guarded := api.Group("")
	guarded.Use(h.Signer.Require())
	guarded.POST("/scan", h.Scan)
	guarded.POST("/scan/export", h.Export)
	guarded.POST("/check", h.Check)
	guarded.POST("/redirects", h.CreateRedirect)
	guarded.DELETE("/redirects/:id", h.DeleteRedirect)

	router.NoRoute(h.Redirects.Resolver(redirectStatus), fallback)
}

// NewRouter returns a gin engine with recovery, request logging and the route table.
func NewRouter(h *Handler, redirectStatus int, fallback gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	SetupRoutes(router, h, redirectStatus, fallback)
	return router
}

// NewServer has no write timeout because scan streams last as long as the scan.
func NewServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: defaultReadTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}
}

// Passthrough proxies unmatched requests to upstream, or answers 404 when upstream is empty.
func Passthrough(upstream string) (gin.HandlerFunc, error) {
	if upstream == "" {
		return func(c *gin.Context) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		}, nil
	}
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, err
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		slog.Warn("upstream request failed.", slog.String("uri", r.URL.RequestURI()),
			slog.String("err", err.Error()))
		w.WriteHeader(http.StatusBadGateway)
	}
	return func(c *gin.Context) {
		proxy.ServeHTTP(c.Writer, c.Request)
	}, nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("request served.",
			slog.String("method", c.Request.Method),
			slog.String("uri", c.Request.URL.RequestURI()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)))
	}
}
