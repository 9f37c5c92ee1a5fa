package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"wallet-pool-go/internal/models"
	"wallet-pool-go/internal/store"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Server struct {
	svc        *PoolService
	cfg        models.ServerConfig
	engine     *gin.Engine
	visitors   *visitors
	httpServer *http.Server
}

func NewServer(svc *PoolService, cfg models.ServerConfig) *Server {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.QrSize <= 0 {
		cfg.QrSize = 256
	}
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = 3 * time.Second
	}

	s := &Server{
		svc:      svc,
		cfg:      cfg,
		visitors: newVisitors(cfg.RequestsPerMinute, cfg.Burst),
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), cors.Default())

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1", s.rateLimit())
	v1.POST("/deposits", s.handleRequestDeposit)
	v1.GET("/deposits/:leaseId", s.handleDepositStatus)
	v1.GET("/deposits/:leaseId/qr.png", s.handleDepositQR)
	v1.GET("/deposits/:leaseId/ws", s.handleDepositStream)
	v1.POST("/claims", s.handleRequestClaim)
	v1.DELETE("/claims/:leaseId", s.handleCancelClaim)
	v1.GET("/balances/:userId", s.handleBalances)
	v1.GET("/balances/:userId/history", s.handleHistory)

	admin := r.Group("/admin", s.adminAuth())
	admin.GET("/resources", s.handleListResources)
	admin.POST("/resources", s.handleAddResource)
	admin.POST("/resources/:id/disable", s.handleSetEnabled(false))
	admin.POST("/resources/:id/enable", s.handleSetEnabled(true))
	admin.GET("/resources/:id/leases", s.handleResourceLeases)
	admin.POST("/claims/:leaseId/confirm", s.handleConfirmClaim)

	return r
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Shutdown. It returns once the listener is closed.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go s.visitors.cleanup(ctx, 10*time.Minute)

	zap.L().Info("HTTP server listening", zap.String("addr", s.cfg.ListenAddr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// ---------- middleware ----------

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zap.L().Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

// visitors holds one token bucket per client IP.
type visitors struct {
	mu                sync.Mutex
	limiters          map[string]*rate.Limiter
	requestsPerMinute int
	burst             int
}

func newVisitors(requestsPerMinute, burst int) *visitors {
	return &visitors{
		limiters:          make(map[string]*rate.Limiter),
		requestsPerMinute: requestsPerMinute,
		burst:             burst,
	}
}

func (v *visitors) get(ip string) *rate.Limiter {
	v.mu.Lock()
	defer v.mu.Unlock()
	limiter, ok := v.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(v.requestsPerMinute)), v.burst)
		v.limiters[ip] = limiter
	}
	return limiter
}

// cleanup drops every limiter on each interval to bound memory.
func (v *visitors) cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			v.mu.Lock()
			v.limiters = make(map[string]*rate.Limiter)
			v.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.visitors.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Error: "rate limit exceeded, try again later",
				Code:  "rate_limited",
			})
			return
		}
		c.Next()
	}
}

func (s *Server) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if s.cfg.AdminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Error: "admin token required",
				Code:  "unauthenticated",
			})
			return
		}
		c.Next()
	}
}

// ---------- errors ----------

// writeError maps the error taxonomy to HTTP statuses.
func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, ErrInvalidRequest):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, store.ErrResourceExhausted):
		status, code = http.StatusServiceUnavailable, "resource_exhausted"
		c.Header("Retry-After", "30")
	case errors.Is(err, store.ErrLeaseNotFound),
		errors.Is(err, store.ErrResourceNotFound),
		errors.Is(err, store.ErrOrderNotFound),
		errors.Is(err, store.ErrUserNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, store.ErrUnauthorized):
		status, code = http.StatusForbidden, "unauthorized"
	case errors.Is(err, store.ErrResourceLeased),
		errors.Is(err, store.ErrDuplicateResource),
		errors.Is(err, store.ErrLeaseInactive),
		errors.Is(err, store.ErrDuplicateConfirmation),
		errors.Is(err, store.ErrSettlementPending):
		status, code = http.StatusConflict, "conflict"
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		zap.L().Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, models.ErrorResponse{Error: msg, Code: code})
}
