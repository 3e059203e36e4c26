package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/riskreview-backend/internal/data/repos"
	types "github.com/yungbote/riskreview-backend/internal/domain"
	"github.com/yungbote/riskreview-backend/internal/http/response"
	"github.com/yungbote/riskreview-backend/internal/platform/ctxutil"
	"github.com/yungbote/riskreview-backend/internal/platform/logger"
	"github.com/yungbote/riskreview-backend/internal/services"
)

type FeedbackHandler struct {
	log      *logger.Logger
	feedback services.FeedbackService
}

func NewFeedbackHandler(log *logger.Logger, feedback services.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{log: log.With("handler", "FeedbackHandler"), feedback: feedback}
}

type submitFeedbackRequest struct {
	AdminStatus  string  `json:"adminStatus"`
	AdminComment *string `json:"adminComment"`
}

// POST /api/risks/:id/feedback
func (h *FeedbackHandler) Submit(c *gin.Context) {
	riskID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req submitFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation_error", fmt.Errorf("invalid request body: %w", err))
		return
	}
	rd := ctxutil.GetRequestData(c.Request.Context())
	fb, err := h.feedback.Submit(c.Request.Context(), riskID, rd.UserID, req.AdminStatus, req.AdminComment)
	if err != nil {
		response.RespondAPIError(c, err, "feedback_failed")
		return
	}
	response.RespondCreated(c, feedbackViews([]*types.RiskFeedback{fb})[0])
}

// GET /api/risks/:id/feedback
func (h *FeedbackHandler) ListForRisk(c *gin.Context) {
	riskID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	rows, err := h.feedback.ListForRisk(c.Request.Context(), riskID)
	if err != nil {
		response.RespondAPIError(c, err, "feedback_failed")
		return
	}
	response.RespondOK(c, gin.H{"feedback": feedbackViews(rows)})
}

// GET /api/feedback?status=&limit=&offset=
func (h *FeedbackHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	rows, err := h.feedback.List(c.Request.Context(), repos.FeedbackFilter{
		AdminStatus: c.Query("status"),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		response.RespondAPIError(c, err, "feedback_failed")
		return
	}
	response.RespondOK(c, gin.H{"feedback": feedbackViews(rows)})
}
