package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/riskreview-backend/internal/http/response"
	"github.com/yungbote/riskreview-backend/internal/platform/apierr"
	"github.com/yungbote/riskreview-backend/internal/platform/logger"
	"github.com/yungbote/riskreview-backend/internal/services"
)

type ReviewHandler struct {
	log      *logger.Logger
	reviews  services.ReviewService
	maxBytes int64
}

func NewReviewHandler(log *logger.Logger, reviews services.ReviewService, maxBytes int64) *ReviewHandler {
	if maxBytes <= 0 {
		maxBytes = services.DefaultMaxDocumentBytes
	}
	return &ReviewHandler{log: log.With("handler", "ReviewHandler"), reviews: reviews, maxBytes: maxBytes}
}

type submitReviewRequest struct {
	FileName  string `json:"fileName"`
	Text      string `json:"text"`
	SourceURI string `json:"sourceUri"`
	Size      int64  `json:"size"`
}

// POST /api/reviews
func (h *ReviewHandler) Submit(c *gin.Context) {
	var in services.SubmitInput
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		parsed, err := h.readUpload(c)
		if err != nil {
			response.RespondAPIError(c, err, "upload_failed")
			return
		}
		in = parsed
	} else {
		var req submitReviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "validation_error", fmt.Errorf("invalid request body: %w", err))
			return
		}
		in = services.SubmitInput{FileName: req.FileName, Text: req.Text, SourceURI: req.SourceURI, Size: req.Size}
	}

	job, err := h.reviews.Submit(c.Request.Context(), in)
	if err != nil {
		response.RespondAPIError(c, err, "submit_failed")
		return
	}
	response.RespondCreated(c, gin.H{"id": job.ID.String()})
}

func (h *ReviewHandler) readUpload(c *gin.Context) (services.SubmitInput, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return services.SubmitInput{}, fmt.Errorf("%w: multipart field \"file\" is required", apierr.ErrValidation)
	}
	if fh.Size > h.maxBytes {
		return services.SubmitInput{}, fmt.Errorf("%w: document exceeds the upload limit", apierr.ErrValidation)
	}
	f, err := fh.Open()
	if err != nil {
		return services.SubmitInput{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	raw, err := io.ReadAll(io.LimitReader(f, h.maxBytes+1))
	if err != nil {
		return services.SubmitInput{}, fmt.Errorf("read upload: %w", err)
	}
	name := strings.TrimSpace(c.PostForm("fileName"))
	if name == "" {
		name = fh.Filename
	}
	return services.SubmitInput{
		FileName:    name,
		ContentType: fh.Header.Get("Content-Type"),
		Text:        string(raw),
		Size:        int64(len(raw)),
	}, nil
}

// GET /api/reviews/:id/status
func (h *ReviewHandler) GetStatus(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	job, err := h.reviews.GetStatus(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err, "status_failed")
		return
	}
	response.RespondOK(c, statusView(job))
}

// GET /api/reviews/:id
func (h *ReviewHandler) Get(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	d, err := h.reviews.GetDetail(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err, "review_failed")
		return
	}
	response.RespondOK(c, gin.H{"review": fullView(d.Job), "risks": riskViews(d.Risks)})
}

// GET /api/reviews?all=true&status=&limit=&offset=
func (h *ReviewHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	all, _ := strconv.ParseBool(c.DefaultQuery("all", "false"))
	jobs, err := h.reviews.List(c.Request.Context(), services.ReviewListQuery{
		All:    all,
		Status: strings.TrimSpace(c.Query("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		response.RespondAPIError(c, err, "list_failed")
		return
	}
	out := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, fullView(j))
	}
	response.RespondOK(c, gin.H{"reviews": out})
}

// POST /api/reviews/:id/ignore
func (h *ReviewHandler) Ignore(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	job, err := h.reviews.Ignore(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err, "ignore_failed")
		return
	}
	response.RespondOK(c, statusView(job))
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		// Ids are opaque to callers; one that cannot exist is simply unknown.
		response.RespondError(c, http.StatusNotFound, "not_found", errors.New(name+" not found"))
		return uuid.Nil, false
	}
	return id, true
}
