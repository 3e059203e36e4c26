package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/riskreview-backend/internal/http/response"
	"github.com/yungbote/riskreview-backend/internal/services"
)

type StatsHandler struct {
	stats services.StatsService
}

func NewStatsHandler(stats services.StatsService) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// GET /api/admin/stats
func (h *StatsHandler) Get(c *gin.Context) {
	st, err := h.stats.Get(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, err, "stats_failed")
		return
	}
	response.RespondOK(c, st)
}
