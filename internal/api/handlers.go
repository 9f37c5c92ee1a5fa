package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"wallet-pool-go/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type depositRequest struct {
	UserId string `json:"user_id"`
}

type claimRequest struct {
	UserId string          `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.svc.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) handleRequestDeposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.Join(ErrInvalidRequest, err))
		return
	}
	addr, err := s.svc.RequestDepositAddress(c.Request.Context(), req.UserId)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusCreated
	if addr.Reused {
		status = http.StatusOK
	}
	c.JSON(status, addr)
}

func (s *Server) handleDepositStatus(c *gin.Context) {
	status, err := s.svc.CheckDepositStatus(c.Request.Context(), c.Param("leaseId"), c.Query("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleDepositQR(c *gin.Context) {
	status, err := s.svc.CheckDepositStatus(c.Request.Context(), c.Param("leaseId"), c.Query("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	png, err := qrcode.Encode(status.ResourceKey, qrcode.Medium, s.cfg.QrSize)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// handleDepositStream pushes the lease status every StreamInterval until it is terminal.
func (s *Server) handleDepositStream(c *gin.Context) {
	leaseId, userId := c.Param("leaseId"), c.Query("user_id")

	// reject unknown or foreign leases before upgrading
	status, err := s.svc.CheckDepositStatus(c.Request.Context(), leaseId, userId)
	if err != nil {
		writeError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zap.L().Warn("Failed to upgrade websocket", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.StreamInterval)
	defer ticker.Stop()
	for {
		if err := conn.WriteJSON(status); err != nil {
			return
		}
		if status.Terminal() {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(status.Outcome)),
				time.Now().Add(time.Second))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if status, err = s.svc.CheckDepositStatus(ctx, leaseId, userId); err != nil {
			zap.L().Warn("Stream status check failed", zap.String("lease_id", leaseId), zap.Error(err))
			return
		}
	}
}

func (s *Server) handleRequestClaim(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.Join(ErrInvalidRequest, err))
		return
	}
	claim, err := s.svc.RequestClaim(c.Request.Context(), req.UserId, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, claim)
}

func (s *Server) handleCancelClaim(c *gin.Context) {
	if err := s.svc.CancelClaim(c.Request.Context(), c.Param("leaseId"), c.Query("user_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleBalances(c *gin.Context) {
	balances, err := s.svc.GetUserBalances(c.Request.Context(), c.Param("userId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": c.Param("userId"), "balances": balances})
}

func (s *Server) handleHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	history, err := s.svc.GetTransactionHistory(c.Request.Context(), c.Param("userId"), c.Query("asset"), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": history})
}

func (s *Server) handleListResources(c *gin.Context) {
	kind := models.ResourceKind(c.DefaultQuery("kind", string(models.ResourceKindWallet)))
	resources, err := s.svc.ListResources(c.Request.Context(), kind, models.ResourceState(c.Query("state")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resources": resources})
}

func (s *Server) handleAddResource(c *gin.Context) {
	var req AddResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.Join(ErrInvalidRequest, err))
		return
	}
	r, err := s.svc.AddResource(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (s *Server) handleSetEnabled(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		r, err := s.svc.SetResourceEnabled(c.Request.Context(), c.Param("id"), enabled)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, r)
	}
}

func (s *Server) handleResourceLeases(c *gin.Context) {
	leases, err := s.svc.ListResourceLeases(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if leases == nil {
		leases = []models.Lease{}
	}
	c.JSON(http.StatusOK, gin.H{"resource_id": c.Param("id"), "leases": leases})
}

func (s *Server) handleConfirmClaim(c *gin.Context) {
	var req ConfirmClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.Join(ErrInvalidRequest, err))
		return
	}
	confirmation, err := s.svc.ConfirmClaim(c.Request.Context(), c.Param("leaseId"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, confirmation)
}
