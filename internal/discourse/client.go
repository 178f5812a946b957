package discourse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/topicstream/topicstream/internal/models"
	"github.com/topicstream/topicstream/pkg/config"
	"github.com/topicstream/topicstream/pkg/logging"
	"github.com/topicstream/topicstream/pkg/telemetry"
)

var (
	// ErrRateLimited is returned when the forum answers with HTTP 429.
	ErrRateLimited = errors.New("rate limited by forum")
	// ErrForbidden is returned when a request still gets HTTP 403 after
	// the bounded retry.
	ErrForbidden = errors.New("forbidden by forum")
)

// Client performs all outbound HTTP against the Discourse forum.
type Client struct {
	baseURL    string
	userAgent  string
	maxRetries int
	http       *http.Client
	logger     *zap.Logger
}

// New creates a new forum client
func New(cfg *config.ForumConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("forum_base_url is required")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	logger := logging.GetLogger().With(zap.String("component", "discourse-client"))

	client := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		maxRetries: cfg.MaxRetries,
		http: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}

	logger.Info("Forum client initialized", zap.String("url", cfg.BaseURL))

	return client, nil
}

// FetchTopics fetches one topic list page for the given selector and
// normalizes it to a flat TopicPage. HTTP 403 is retried up to the
// configured bound with no backoff.
func (c *Client) FetchTopics(ctx context.Context, sel Selector) (*models.TopicPage, error) {
	ctx, span := telemetry.StartSpan(ctx, "discourse.fetch_topics")
	defer span.End()

	endpoint, err := sel.Endpoint()
	if err != nil {
		return nil, err
	}

	body, err := c.getJSON(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch topics %q: %w", endpoint, err)
	}

	page, err := DecodeTopicPage(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode topic page %q: %w", endpoint, err)
	}

	c.logger.Debug("Fetched topic page",
		zap.String("endpoint", endpoint),
		zap.Int("topics", len(page.Topics)),
		zap.Int("users", len(page.Users)))

	return page, nil
}

// FetchPosts fetches the posts of one topic.
func (c *Client) FetchPosts(ctx context.Context, topicID int64) ([]models.Post, error) {
	ctx, span := telemetry.StartSpan(ctx, "discourse.fetch_posts")
	defer span.End()

	endpoint := fmt.Sprintf("/t/%d/posts.json", topicID)
	body, err := c.getJSON(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch posts for topic %d: %w", topicID, err)
	}

	posts, err := DecodePostList(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode posts for topic %d: %w", topicID, err)
	}

	return posts, nil
}

// FetchSession performs a live session check. A nil user with nil error
// means the forum reports no logged-in user. HTTP 429 returns
// ErrRateLimited so the caller can install a cooldown.
func (c *Client) FetchSession(ctx context.Context) (*models.User, error) {
	ctx, span := telemetry.StartSpan(ctx, "discourse.fetch_session")
	defer span.End()

	// Cache buster mirrors the forum web client.
	endpoint := fmt.Sprintf("/session/current.json?_t=%d", time.Now().UnixMilli())

	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Discourse-Present", "true")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("session check failed: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read session response: %w", err)
	}

	user, err := DecodeCurrentUser(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode session response: %w", err)
	}

	return user, nil
}

// MarkRead reports a read watermark to the forum. Best-effort contract:
// callers dispatch it through the background queue and never retry.
func (c *Client) MarkRead(ctx context.Context, topicID int64, postNumber int) error {
	ctx, span := telemetry.StartSpan(ctx, "discourse.mark_read")
	defer span.End()

	form := url.Values{}
	form.Set("topic_id", strconv.FormatInt(topicID, 10))
	form.Set("post_number", strconv.Itoa(postNumber))

	req, err := c.newRequest(ctx, http.MethodPost, "/topics/read", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("mark read failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mark read failed: HTTP %d", resp.StatusCode)
	}

	c.logger.Debug("Reported read watermark",
		zap.Int64("topic_id", topicID),
		zap.Int("post_number", postNumber))

	return nil
}

// Logout invalidates the remote session.
func (c *Client) Logout(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "discourse.logout")
	defer span.End()

	req, err := c.newRequest(ctx, http.MethodGet, "/logout", nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return nil
}

// getJSON fetches one JSON endpoint with the 403 retry policy. The
// ".json" suffix is appended when the endpoint lacks one.
func (c *Client) getJSON(ctx context.Context, endpoint string) ([]byte, error) {
	if !strings.Contains(endpoint, ".json") {
		endpoint += ".json"
	}

	var lastStatus int
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("failed to read response: %w", err)
			}
			return body, nil
		case resp.StatusCode == http.StatusForbidden:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastStatus = resp.StatusCode
			c.logger.Warn("Forbidden response, retrying",
				zap.String("endpoint", endpoint),
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", c.maxRetries))
			continue
		case resp.StatusCode == http.StatusTooManyRequests:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil, ErrRateLimited
		default:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
		}
	}

	return nil, fmt.Errorf("HTTP %d after %d retries: %w", lastStatus, c.maxRetries, ErrForbidden)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	u := endpoint
	if !strings.HasPrefix(endpoint, "http") {
		u = c.baseURL + endpoint
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	return req, nil
}
