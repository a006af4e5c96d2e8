package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/behzadon/podium/internal/auth"
	"github.com/behzadon/podium/internal/domain"
	"github.com/behzadon/podium/internal/engagement"
	"github.com/behzadon/podium/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ShareHistory lists journaled share attempts.
type ShareHistory interface {
	ListShareAttempts(ctx context.Context, userID, voteID string, limit int) ([]domain.ShareAttempt, error)
}

type Handler struct {
	flows       *engagement.Registry
	history     ShareHistory
	logger      *zap.Logger
	rateLimiter *RateLimiter
	now         func() time.Time
}

func NewHandler(flows *engagement.Registry, history ShareHistory, redis RedisClient, logger *zap.Logger) *Handler {
	return &Handler{
		flows:       flows,
		history:     history,
		logger:      logger,
		rateLimiter: NewRateLimiter(redis, logger),
		now:         time.Now,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine, validator auth.TokenValidator) {
	r.Use(metrics.MetricsMiddleware())

	r.GET("/healthz", h.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	vote := r.Group(engagement.BasePath)
	vote.Use(auth.AuthMiddleware(validator, h.logger), h.rateLimiter.RateLimit())
	{
		vote.GET("", h.getToday)
		vote.GET("/shares", h.listShares)
		vote.GET("/:date", h.getByDate)
		vote.POST("", h.rateLimiter.BurstLimit(), h.submitVote)
		vote.PUT("/selection", h.rateLimiter.BurstLimit(), h.updateSelection)
		vote.POST("/share", h.rateLimiter.BurstLimit(), h.shareVote)
		vote.POST("/skip", h.rateLimiter.BurstLimit(), h.skipShare)
	}
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// getToday loads today's view. A user who already voted is sent to the dated
// location instead.
func (h *Handler) getToday(c *gin.Context) {
	flow := h.flows.Get(c.GetString(auth.ContextUserID))
	view, err := flow.Load(c.Request.Context(), nil, false)
	if err != nil {
		h.respondError(c, view, err)
		return
	}

	if loc, ok := engagement.CanonicalRedirect(flow.User(), nil, h.now()); ok {
		c.Redirect(http.StatusFound, loc)
		return
	}
	h.respondView(c, http.StatusOK, view, engagement.BasePath)
}

func (h *Handler) getByDate(c *gin.Context) {
	date, err := engagement.ParseDate(c.Param("date"))
	if err != nil {
		h.respondError(c, engagement.NotFound{}, err)
		return
	}

	justSubmitted := c.Query(engagement.SuccessMarker) != ""
	flow := h.flows.Get(c.GetString(auth.ContextUserID))
	view, err := flow.Load(c.Request.Context(), date, justSubmitted)
	if err != nil {
		h.respondError(c, view, err)
		return
	}
	h.respondView(c, http.StatusOK, view, engagement.Location(*date, false))
}

type selectionRequest struct {
	BrandIDs []int             `json:"brandIds"`
	Brands   []domain.BrandRef `json:"brands"`
}

// selection returns the display-ordered brands of the request. Full brand
// refs win over bare ids.
func (r selectionRequest) selection() []domain.BrandRef {
	if len(r.Brands) > 0 {
		return r.Brands
	}
	if len(r.BrandIDs) == 0 {
		return nil
	}
	brands := make([]domain.BrandRef, len(r.BrandIDs))
	for i, id := range r.BrandIDs {
		brands[i] = domain.BrandRef{ID: id}
	}
	return brands
}

func (h *Handler) submitVote(c *gin.Context) {
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "Invalid request body",
		})
		return
	}

	userID := c.GetString(auth.ContextUserID)
	view, err := h.flows.Get(userID).Submit(c.Request.Context(), req.selection())
	if err != nil {
		if !errors.Is(err, domain.ErrValidation) {
			h.logger.Warn("vote submission failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
		h.respondError(c, view, err)
		return
	}
	h.respondView(c, http.StatusCreated, view, engagement.Location(domain.DayStart(h.now()), true))
}

func (h *Handler) updateSelection(c *gin.Context) {
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "Invalid request body",
		})
		return
	}

	view := h.flows.Get(c.GetString(auth.ContextUserID)).Select(req.selection())
	if view.State() != engagement.StatePodium {
		h.respondError(c, view, domain.NewFlowError("select brands", domain.ErrConflict,
			"Your podium can only change before you vote.", nil))
		return
	}
	h.respondView(c, http.StatusOK, view, "")
}

func (h *Handler) shareVote(c *gin.Context) {
	userID := c.GetString(auth.ContextUserID)
	view, err := h.flows.Get(userID).ShareAndVerify(c.Request.Context())
	if err != nil {
		h.logger.Info("share not verified",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		h.respondError(c, view, err)
		return
	}
	h.respondView(c, http.StatusOK, view, "")
}

func (h *Handler) skipShare(c *gin.Context) {
	view, err := h.flows.Get(c.GetString(auth.ContextUserID)).Skip(c.Request.Context())
	if err != nil {
		h.respondError(c, view, err)
		return
	}
	h.respondView(c, http.StatusOK, view, "")
}

func (h *Handler) listShares(c *gin.Context) {
	voteID := c.Query("voteId")
	if voteID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "voteId is required",
		})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(domain.DefaultHistoryLimit)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "Invalid limit",
		})
		return
	}

	userID := c.GetString(auth.ContextUserID)
	attempts, err := h.history.ListShareAttempts(c.Request.Context(), userID, voteID, limit)
	if err != nil {
		h.logger.Error("failed to list share attempts",
			zap.Error(err),
			zap.String("user_id", userID),
			zap.String("vote_id", voteID),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Failed to get share history",
		})
		return
	}
	if attempts == nil {
		attempts = []domain.ShareAttempt{}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"attempts": attempts,
	})
}

func (h *Handler) respondView(c *gin.Context, code int, view engagement.View, location string) {
	body := gin.H{
		"status": "success",
		"state":  view.State(),
		"view":   view,
	}
	if location != "" {
		body["location"] = location
	}
	c.JSON(code, body)
}

// respondError renders the view the flow settled on together with the one
// message and affordance the user gets for err.
func (h *Handler) respondError(c *gin.Context, view engagement.View, err error) {
	c.JSON(statusFor(err), gin.H{
		"status":     "error",
		"state":      view.State(),
		"view":       view,
		"message":    domain.UserMessage(err),
		"affordance": domain.AffordanceFor(err),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrSubmitInFlight), errors.Is(err, domain.ErrShareInFlight):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrCancelled):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
