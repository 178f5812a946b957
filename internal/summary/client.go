package summary

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/topicstream/topicstream/internal/models"
	"github.com/topicstream/topicstream/pkg/config"
	"github.com/topicstream/topicstream/pkg/logging"
	"github.com/topicstream/topicstream/pkg/telemetry"
)

// Client produces thread summaries through a configured completion
// endpoint.
type Client struct {
	cfg    config.AIConfig
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a summarization client.
func NewClient(cfg config.AIConfig) *Client {
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logging.GetLogger().With(zap.String("component", "summary-client")),
	}
}

// Configured reports whether an endpoint and key are set.
func (c *Client) Configured() bool {
	return c.cfg.APIURL != "" && c.cfg.APIKey != ""
}

// Result is the outcome of one summarization call. Failures are carried
// inline rather than as a transport error.
type Result struct {
	Success   bool   `json:"success"`
	Summary   string `json:"summary,omitempty"`
	Depth     string `json:"depth,omitempty"`
	PostCount int    `json:"postCount,omitempty"`
	Usage     *Usage `json:"usage,omitempty"`
	Error     string `json:"error,omitempty"`
}

func failure(msg string) *Result {
	return &Result{Success: false, Error: msg}
}

// Summarize selects posts per the requested depth, assembles the prompt,
// and runs one completion call. An empty depth uses the configured
// default.
func (c *Client) Summarize(ctx context.Context, title string, posts []models.Post, depth string) *Result {
	ctx, span := telemetry.StartSpan(ctx, "summary.summarize")
	defer span.End()

	if !c.Configured() {
		return failure("summarization endpoint is not configured")
	}
	if depth == "" {
		depth = c.cfg.DefaultDepth
	}

	resolved := ResolveDepth(depth, title)
	selected := SelectPosts(posts, resolved)
	if len(selected) == 0 {
		return failure(fmt.Sprintf("no posts to summarize at depth %q", resolved))
	}

	prompt := BuildPrompt(title, selected, resolved)
	provider := ClassifyProvider(c.cfg.APIURL)

	body, err := provider.BuildBody(c.cfg, prompt)
	if err != nil {
		return failure(fmt.Sprintf("failed to build completion request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.RequestURL(c.cfg.APIURL), bytes.NewReader(body))
	if err != nil {
		return failure(fmt.Sprintf("failed to build completion request: %v", err))
	}
	provider.SetHeaders(req, c.cfg.APIKey)

	c.logger.Info("Requesting summary",
		zap.String("provider", provider.String()),
		zap.String("depth", resolved),
		zap.Int("posts", len(selected)))

	resp, err := c.http.Do(req)
	if err != nil {
		return failure(fmt.Sprintf("completion request failed: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return failure(fmt.Sprintf("failed to read completion response: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		return failure(ExtractError(respBody, resp.Status).Error())
	}

	content, usage, err := provider.ExtractContent(respBody)
	if err != nil {
		return failure(err.Error())
	}

	return &Result{
		Success:   true,
		Summary:   content,
		Depth:     resolved,
		PostCount: len(selected),
		Usage:     usage,
	}
}
