package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/riskreview-backend/internal/http/response"
	"github.com/yungbote/riskreview-backend/internal/platform/logger"
	"github.com/yungbote/riskreview-backend/internal/services"
)

type CorpusHandler struct {
	log    *logger.Logger
	corpus services.CorpusService
}

func NewCorpusHandler(log *logger.Logger, corpus services.CorpusService) *CorpusHandler {
	return &CorpusHandler{log: log.With("handler", "CorpusHandler"), corpus: corpus}
}

// GET /api/corpus/search?q=&kind=&category=&limit=
func (h *CorpusHandler) Search(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	res, err := h.corpus.Search(c.Request.Context(), services.CorpusQuery{
		Text:     c.Query("q"),
		Kind:     c.Query("kind"),
		Category: c.Query("category"),
		Limit:    limit,
	})
	if err != nil {
		response.RespondAPIError(c, err, "search_failed")
		return
	}
	response.RespondOK(c, gin.H{"mode": res.Mode, "results": corpusHitViews(res.Hits)})
}
