package session

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/topicstream/topicstream/internal/cache"
	"github.com/topicstream/topicstream/internal/discourse"
	"github.com/topicstream/topicstream/internal/models"
	"github.com/topicstream/topicstream/pkg/config"
	"github.com/topicstream/topicstream/pkg/logging"
)

// Cache keys for the session status and the rate-limit cooldown.
const (
	KeyUserStatus     = "cachedUserStatus"
	KeyRateLimitUntil = "rateLimitUntil"
)

// Gateway is the slice of the forum client the checker needs.
type Gateway interface {
	FetchSession(ctx context.Context) (*models.User, error)
	Logout(ctx context.Context) error
}

// Checker answers "is the user logged in" with a TTL cache and a
// rate-limit cooldown that suppresses live checks after a 429.
type Checker struct {
	gateway  Gateway
	cache    cache.Store
	ttl      time.Duration
	cooldown time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a session checker.
func New(gateway Gateway, store cache.Store, cfg *config.ForumConfig) *Checker {
	return &Checker{
		gateway:  gateway,
		cache:    store,
		ttl:      cfg.SessionTTL,
		cooldown: cfg.RateCooldown,
		logger:   logging.GetLogger().With(zap.String("component", "session-checker")),
		now:      time.Now,
	}
}

// Status returns the current session status. Within the cooldown window no
// network call is made; within the TTL the cached result is returned
// verbatim, whether it reported logged in or not. A live check result is
// always persisted with a fresh timestamp, including failures.
func (c *Checker) Status(ctx context.Context) models.SessionStatus {
	now := c.now()
	nowMs := now.UnixMilli()

	// 1. Cooldown short-circuit after a 429.
	if until, ok := c.cooldownUntil(ctx); ok && nowMs < until {
		remaining := int((until - nowMs + 999) / 1000)
		return models.SessionStatus{
			LoggedIn:    false,
			RateLimited: true,
			RetryAfter:  remaining,
			Timestamp:   nowMs,
		}
	}

	// 2. Cached result within TTL, positive or negative.
	if cached, ok := c.cachedStatus(ctx); ok {
		age := nowMs - cached.Timestamp
		if age >= 0 && age < c.ttl.Milliseconds() {
			return cached
		}
	}

	// 3. Live check.
	status := c.liveCheck(ctx, nowMs)

	// 4. Persist unconditionally, overwriting any stale entry.
	if raw, err := json.Marshal(status); err == nil {
		if err := c.cache.Set(ctx, KeyUserStatus, string(raw), c.ttl); err != nil {
			c.logger.Warn("Failed to cache session status", zap.Error(err))
		}
	}

	// 5. Install the cooldown on a 429.
	if status.RateLimited {
		until := nowMs + c.cooldown.Milliseconds()
		if err := c.cache.Set(ctx, KeyRateLimitUntil, strconv.FormatInt(until, 10), c.cooldown); err != nil {
			c.logger.Warn("Failed to persist rate limit cooldown", zap.Error(err))
		}
		status.RetryAfter = int((c.cooldown.Milliseconds() + 999) / 1000)
	}

	return status
}

func (c *Checker) liveCheck(ctx context.Context, nowMs int64) models.SessionStatus {
	user, err := c.gateway.FetchSession(ctx)
	switch {
	case errors.Is(err, discourse.ErrRateLimited):
		c.logger.Warn("Session check rate limited")
		return models.SessionStatus{
			LoggedIn:    false,
			RateLimited: true,
			Error:       "Too Many Requests",
			Timestamp:   nowMs,
		}
	case err != nil:
		// A failed check is cached like a normal negative result.
		c.logger.Warn("Session check failed", zap.Error(err))
		return models.SessionStatus{
			LoggedIn:  false,
			Error:     err.Error(),
			Timestamp: nowMs,
		}
	case user != nil:
		return models.SessionStatus{
			LoggedIn:  true,
			User:      user,
			Timestamp: nowMs,
		}
	default:
		return models.SessionStatus{
			LoggedIn:  false,
			Timestamp: nowMs,
		}
	}
}

func (c *Checker) cooldownUntil(ctx context.Context) (int64, bool) {
	raw, err := c.cache.Get(ctx, KeyRateLimitUntil)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn("Failed to read cooldown", zap.Error(err))
		}
		return 0, false
	}
	until, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return until, true
}

func (c *Checker) cachedStatus(ctx context.Context) (models.SessionStatus, bool) {
	raw, err := c.cache.Get(ctx, KeyUserStatus)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn("Failed to read cached session status", zap.Error(err))
		}
		return models.SessionStatus{}, false
	}
	var status models.SessionStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return models.SessionStatus{}, false
	}
	return status, true
}

// ClearCache drops the cached status and cooldown, used on manual refresh.
func (c *Checker) ClearCache(ctx context.Context) error {
	return c.cache.Delete(ctx, KeyUserStatus, KeyRateLimitUntil)
}

// Logout invalidates the remote session and clears the cache.
func (c *Checker) Logout(ctx context.Context) error {
	if err := c.gateway.Logout(ctx); err != nil {
		return err
	}
	return c.ClearCache(ctx)
}
