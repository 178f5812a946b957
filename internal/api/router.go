package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/topicstream/topicstream/internal/discourse"
	"github.com/topicstream/topicstream/internal/feed"
	"github.com/topicstream/topicstream/internal/models"
	"github.com/topicstream/topicstream/internal/notify"
	"github.com/topicstream/topicstream/internal/summary"
	"github.com/topicstream/topicstream/pkg/logging"
)

// SessionChecker answers session status queries.
type SessionChecker interface {
	Status(ctx context.Context) models.SessionStatus
	ClearCache(ctx context.Context) error
	Logout(ctx context.Context) error
}

// PostsFetcher loads the posts of one topic.
type PostsFetcher interface {
	FetchPosts(ctx context.Context, topicID int64) ([]models.Post, error)
}

// Summarizer produces a thread summary at the requested depth.
type Summarizer interface {
	Configured() bool
	Summarize(ctx context.Context, title string, posts []models.Post, depth string) *summary.Result
}

// NotificationSink exposes pending keyword alerts for collection.
type NotificationSink interface {
	Drain() []notify.Notification
	Pending() int
}

// Router sets up API routes
type Router struct {
	engine     *feed.Engine
	poller     *feed.Poller
	checker    SessionChecker
	posts      PostsFetcher
	summarizer Summarizer
	alerts     NotificationSink
	logger     *zap.Logger
}

// NewRouter creates a new API router
func NewRouter(engine *feed.Engine, poller *feed.Poller, checker SessionChecker, posts PostsFetcher, summarizer Summarizer, alerts NotificationSink) *Router {
	return &Router{
		engine:     engine,
		poller:     poller,
		checker:    checker,
		posts:      posts,
		summarizer: summarizer,
		alerts:     alerts,
		logger:     logging.GetLogger().With(zap.String("component", "api-router")),
	}
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	// Health check endpoints
	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)

	api := engine.Group("/api")
	{
		api.GET("/feed", r.getFeed)
		api.POST("/feed/refresh", r.refreshFeed)
		api.GET("/feed/progress", r.getProgress)

		api.POST("/topics/:id/read", r.markRead)
		api.DELETE("/topics/:id/read", r.markUnread)
		api.POST("/topics/:id/summarize", r.summarizeTopic)

		api.GET("/session", r.getSession)
		api.POST("/session/refresh", r.refreshSession)
		api.POST("/logout", r.logout)

		api.GET("/settings", r.getConfig)
		api.PUT("/settings", r.putConfig)
		api.GET("/settings/user", r.getUserSettings)
		api.PUT("/settings/user", r.putUserSettings)
		api.GET("/categories", r.getCategories)

		api.GET("/notifications", r.getNotifications)
	}
}

func (r *Router) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "OK",
		"service": "topicstream-api",
	})
}

func (r *Router) getFeed(c *gin.Context) {
	c.JSON(http.StatusOK, r.engine.View())
}

func (r *Router) refreshFeed(c *gin.Context) {
	if err := r.engine.Load(c.Request.Context()); err != nil {
		r.feedError(c, err)
		return
	}
	r.poller.ResetProgress()
	c.JSON(http.StatusOK, r.engine.View())
}

func (r *Router) getProgress(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"intervalSeconds": r.poller.Interval(),
		"progress":        r.poller.Progress(),
	})
}

type markReadRequest struct {
	PostNumber int `json:"post_number"`
}

func (r *Router) markRead(c *gin.Context) {
	topicID, ok := r.topicID(c)
	if !ok {
		return
	}

	var req markReadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			NewError(http.StatusBadRequest, "invalid request body").abort(c)
			return
		}
	}

	if err := r.engine.MarkRead(c.Request.Context(), topicID, req.PostNumber); err != nil {
		r.logger.Error("Failed to mark topic read", zap.Int64("topic_id", topicID), zap.Error(err))
		NewError(http.StatusInternalServerError, "failed to mark topic read").abort(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"topicId": topicID, "read": true})
}

func (r *Router) markUnread(c *gin.Context) {
	topicID, ok := r.topicID(c)
	if !ok {
		return
	}

	if err := r.engine.MarkUnread(c.Request.Context(), topicID); err != nil {
		r.logger.Error("Failed to mark topic unread", zap.Int64("topic_id", topicID), zap.Error(err))
		NewError(http.StatusInternalServerError, "failed to mark topic unread").abort(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"topicId": topicID, "read": false})
}

type summarizeRequest struct {
	Title string `json:"title"`
	Depth string `json:"depth"`
}

func (r *Router) summarizeTopic(c *gin.Context) {
	topicID, ok := r.topicID(c)
	if !ok {
		return
	}
	if !r.summarizer.Configured() {
		NewError(http.StatusServiceUnavailable, "summarization is not configured").abort(c)
		return
	}

	var req summarizeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			NewError(http.StatusBadRequest, "invalid request body").abort(c)
			return
		}
	}

	posts, err := r.posts.FetchPosts(c.Request.Context(), topicID)
	if err != nil {
		r.feedError(c, err)
		return
	}

	res := r.summarizer.Summarize(c.Request.Context(), req.Title, posts, req.Depth)
	if !res.Success {
		r.logger.Error("Summarization failed", zap.Int64("topic_id", topicID), zap.String("error", res.Error))
		NewError(http.StatusBadGateway, res.Error).abort(c)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (r *Router) getSession(c *gin.Context) {
	c.JSON(http.StatusOK, r.checker.Status(c.Request.Context()))
}

func (r *Router) refreshSession(c *gin.Context) {
	if err := r.checker.ClearCache(c.Request.Context()); err != nil {
		r.logger.Warn("Failed to clear session cache", zap.Error(err))
	}
	c.JSON(http.StatusOK, r.checker.Status(c.Request.Context()))
}

func (r *Router) logout(c *gin.Context) {
	if err := r.checker.Logout(c.Request.Context()); err != nil {
		r.logger.Error("Logout failed", zap.Error(err))
		NewError(http.StatusBadGateway, "logout failed").abort(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"loggedIn": false})
}

func (r *Router) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, r.engine.Config())
}

func (r *Router) putConfig(c *gin.Context) {
	var cfg models.FilterConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		NewError(http.StatusBadRequest, "invalid request body").abort(c)
		return
	}

	previous := r.engine.Config()
	if err := r.engine.UpdateConfig(c.Request.Context(), cfg); err != nil {
		NewError(http.StatusBadRequest, err.Error()).abort(c)
		return
	}

	if cfg.PollingInterval != previous.PollingInterval {
		r.poller.SetInterval(cfg.PollingInterval)
		r.poller.Start(context.Background())
	}

	c.JSON(http.StatusOK, r.engine.Config())
}

func (r *Router) getUserSettings(c *gin.Context) {
	c.JSON(http.StatusOK, r.engine.UserSettings())
}

func (r *Router) putUserSettings(c *gin.Context) {
	var s models.UserSettings
	if err := c.ShouldBindJSON(&s); err != nil {
		NewError(http.StatusBadRequest, "invalid request body").abort(c)
		return
	}

	previous := r.engine.UserSettings()
	if err := r.engine.UpdateUserSettings(c.Request.Context(), s); err != nil {
		NewError(http.StatusInternalServerError, "failed to save settings").abort(c)
		return
	}

	// A changed selector invalidates the collection; reload it.
	if s.CategoryFilter != previous.CategoryFilter || s.SubCategoryFilter != previous.SubCategoryFilter {
		if err := r.engine.Load(c.Request.Context()); err != nil {
			r.logger.Warn("Reload after settings change failed", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, r.engine.UserSettings())
}

func (r *Router) getCategories(c *gin.Context) {
	c.JSON(http.StatusOK, r.engine.Categories())
}

func (r *Router) getNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"notifications": r.alerts.Drain()})
}

func (r *Router) topicID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		NewError(http.StatusBadRequest, "invalid topic id").abort(c)
		return 0, false
	}
	return id, true
}

func (r *Router) feedError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, discourse.ErrRateLimited):
		apiErr := NewError(http.StatusTooManyRequests, "forum rate limit reached")
		if status := r.checker.Status(c.Request.Context()); status.RetryAfter > 0 {
			apiErr.withRetryAfter(status.RetryAfter)
		}
		apiErr.abort(c)
	case errors.Is(err, discourse.ErrForbidden):
		NewError(http.StatusForbidden, "forum denied the request").abort(c)
	default:
		NewError(http.StatusBadGateway, err.Error()).abort(c)
	}
}
