package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wallet-pipeline/internal/handler/request"
	"wallet-pipeline/internal/handler/response"
	"wallet-pipeline/internal/origin"
	"wallet-pipeline/internal/service/fee"
	"wallet-pipeline/internal/service/policy"
	"wallet-pipeline/internal/service/session"
	"wallet-pipeline/pkg/errno"
	"wallet-pipeline/pkg/logger"
)

type SessionHandler struct {
	pipeline *session.Pipeline
	origins  origin.Store
}

func NewSessionHandler(pipeline *session.Pipeline, origins origin.Store) *SessionHandler {
	return &SessionHandler{pipeline: pipeline, origins: origins}
}

// Open 接收签名请求并预取 nonce/余额/合约
// POST /api/v1/requests
func (h *SessionHandler) Open(c *gin.Context) {
	var req request.OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	ctx := c.Request.Context()

	if req.TabID != "" {
		if err := h.origins.Register(ctx, req.Token, req.TabID); err != nil {
			response.Error(c, errno.InternalServerError.Wrap(err))
			return
		}
	}

	s, err := h.pipeline.Open(ctx, req.Token)
	if err != nil {
		response.Error(c, err)
		return
	}
	// 预取失败只反映在 verdict 里，不影响会话创建
	if err := s.Prepare(ctx); err != nil {
		logger.Warn("prepare session", logger.SessionID(s.ID()), zap.Error(err))
	}
	response.Success(c, s.Preview())
}

// Get GET /api/v1/requests/:id
func (h *SessionHandler) Get(c *gin.Context) {
	s, err := h.pipeline.Get(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, s.Preview())
}

// Refresh re-runs the fetches, e.g. after a StateUnavailable verdict.
// POST /api/v1/requests/:id/refresh
func (h *SessionHandler) Refresh(c *gin.Context) {
	s, err := h.pipeline.Get(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := s.Prepare(c.Request.Context()); err != nil {
		response.ErrorWithData(c, err, s.Preview())
		return
	}
	response.Success(c, s.Preview())
}

// Confirm 签名并广播
// POST /api/v1/requests/:id/confirm
func (h *SessionHandler) Confirm(c *gin.Context) {
	s, err := h.pipeline.Get(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	res, err := s.Confirm(c.Request.Context())
	if err != nil {
		data := gin.H{"preview": s.Preview()}
		if res != nil {
			data["result"] = res
			if len(res.NodeError) > 0 {
				data["title"] = policy.BroadcastErrorTitle(res.NodeError)
			}
		}
		response.ErrorWithData(c, err, data)
		return
	}
	response.Success(c, gin.H{
		"tx_id":         res.TxID,
		"status":        res.Status,
		"explorer_link": res.ExplorerLink,
	})
}

// FeeBump POST /api/v1/requests/:id/fee-bump
func (h *SessionHandler) FeeBump(c *gin.Context) {
	var req request.FeeBumpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	s, err := h.pipeline.Get(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	bumped, err := s.BumpFee(c.Request.Context(), fee.Escalation{UseCustom: req.UseCustom, CustomMultiplier: req.Multiplier})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"fee": bumped.Amount, "preview": s.Preview()})
}

// Cancel POST /api/v1/requests/:id/cancel
func (h *SessionHandler) Cancel(c *gin.Context) {
	s, err := h.pipeline.Get(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := s.Cancel(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Close ends the session without a decision, like closing the window.
// DELETE /api/v1/requests/:id
func (h *SessionHandler) Close(c *gin.Context) {
	s, err := h.pipeline.Get(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	s.Close(c.Request.Context())
	response.Success(c, nil)
}

// Journal GET /api/v1/requests/:id/journal
func (h *SessionHandler) Journal(c *gin.Context) {
	events, err := h.pipeline.Journal(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, events)
}
