package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/topicstream/topicstream/internal/discourse"
	"github.com/topicstream/topicstream/internal/feed"
	"github.com/topicstream/topicstream/internal/models"
	"github.com/topicstream/topicstream/internal/notify"
	"github.com/topicstream/topicstream/internal/summary"
	"github.com/topicstream/topicstream/pkg/config"
)

type stubGateway struct {
	page *models.TopicPage
	err  error
}

func (g *stubGateway) FetchTopics(ctx context.Context, sel discourse.Selector) (*models.TopicPage, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.page, nil
}

func (g *stubGateway) MarkRead(ctx context.Context, topicID int64, postNumber int) error {
	return nil
}

type stubReadMarks struct {
	ids map[int64]struct{}
}

func (s *stubReadMarks) List(ctx context.Context) ([]int64, error) { return nil, nil }

func (s *stubReadMarks) Add(ctx context.Context, topicID int64) error {
	s.ids[topicID] = struct{}{}
	return nil
}

func (s *stubReadMarks) Remove(ctx context.Context, topicID int64) error {
	delete(s.ids, topicID)
	return nil
}

type stubSettings struct{}

func (stubSettings) GetFilterConfig(ctx context.Context, d models.FilterConfig) (models.FilterConfig, error) {
	return d, nil
}
func (stubSettings) SaveFilterConfig(ctx context.Context, cfg models.FilterConfig) error { return nil }
func (stubSettings) GetUserSettings(ctx context.Context, d models.UserSettings) (models.UserSettings, error) {
	return d, nil
}
func (stubSettings) SaveUserSettings(ctx context.Context, s models.UserSettings) error { return nil }

type stubChecker struct {
	status    models.SessionStatus
	cleared   bool
	loggedOut bool
}

func (s *stubChecker) Status(ctx context.Context) models.SessionStatus { return s.status }

func (s *stubChecker) ClearCache(ctx context.Context) error {
	s.cleared = true
	return nil
}
func (s *stubChecker) Logout(ctx context.Context) error {
	s.loggedOut = true
	return nil
}

type stubPosts struct {
	posts []models.Post
	err   error
}

func (s *stubPosts) FetchPosts(ctx context.Context, topicID int64) ([]models.Post, error) {
	return s.posts, s.err
}

type stubSummarizer struct {
	configured bool
	result     *summary.Result
}

func (s *stubSummarizer) Configured() bool { return s.configured }

func (s *stubSummarizer) Summarize(ctx context.Context, title string, posts []models.Post, depth string) *summary.Result {
	return s.result
}

func testRouter(t *testing.T, gw *stubGateway, checker *stubChecker, summarizer *stubSummarizer) (*gin.Engine, *feed.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := feed.NewEngine(feed.Options{
		Gateway:   gw,
		ReadMarks: &stubReadMarks{ids: make(map[int64]struct{})},
		Settings:  stubSettings{},
		Categories: []config.Category{
			{ID: 4, Name: "开发调优", Slug: "develop"},
		},
		FreshWindow: 4 * time.Hour,
		Defaults: models.FilterConfig{
			PollingInterval:  60,
			ReadStatusAction: "fade",
			ShowBadge:        true,
		},
		UserDefault: models.UserSettings{CategoryFilter: "all", SortFilter: "latest"},
	})
	if err := engine.Init(context.Background()); err != nil {
		t.Fatalf("engine.Init() error: %v", err)
	}

	poller := feed.NewPoller(0, func(ctx context.Context) {})
	router := NewRouter(engine, poller, checker, &stubPosts{}, summarizer, notify.NewCenter())

	g := gin.New()
	router.SetupRoutes(g)
	return g, engine
}

func perform(g *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	return w
}

func feedPage() *models.TopicPage {
	now := time.Now()
	return &models.TopicPage{
		Topics: []models.Topic{
			{ID: 1, Title: "第一帖", PostsCount: 20, CreatedAt: now.Add(-time.Hour), LastPostedAt: now},
			{ID: 2, Title: "第二帖", PostsCount: 15, CreatedAt: now.Add(-2 * time.Hour), LastPostedAt: now.Add(-time.Minute)},
		},
	}
}

func TestHealthEndpoint(t *testing.T) {
	g, _ := testRouter(t, &stubGateway{page: feedPage()}, &stubChecker{}, &stubSummarizer{})

	w := perform(g, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "topicstream-api") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestGetFeedAndRefresh(t *testing.T) {
	g, _ := testRouter(t, &stubGateway{page: feedPage()}, &stubChecker{}, &stubSummarizer{})

	w := perform(g, http.MethodGet, "/api/feed", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/feed status = %d", w.Code)
	}
	var snap feed.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("snapshot decode: %v", err)
	}
	if snap.State != "idle" {
		t.Errorf("initial state = %q, want idle", snap.State)
	}

	w = perform(g, http.MethodPost, "/api/feed/refresh", "")
	if w.Code != http.StatusOK {
		t.Fatalf("POST /api/feed/refresh status = %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("snapshot decode: %v", err)
	}
	if snap.State != "ready" || snap.TotalTopics != 2 {
		t.Errorf("snapshot = state %q, total %d", snap.State, snap.TotalTopics)
	}
}

func TestRefreshErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "rate limited", err: discourse.ErrRateLimited, wantStatus: http.StatusTooManyRequests},
		{name: "forbidden", err: discourse.ErrForbidden, wantStatus: http.StatusForbidden},
		{name: "other", err: context.DeadlineExceeded, wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := testRouter(t, &stubGateway{err: tt.err}, &stubChecker{}, &stubSummarizer{})
			w := perform(g, http.MethodPost, "/api/feed/refresh", "")
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRefreshRateLimitRetryAfter(t *testing.T) {
	checker := &stubChecker{status: models.SessionStatus{RateLimited: true, RetryAfter: 42}}
	g, _ := testRouter(t, &stubGateway{err: discourse.ErrRateLimited}, checker, &stubSummarizer{})

	w := perform(g, http.MethodPost, "/api/feed/refresh", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"retry_after":42`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestMarkReadEndpoints(t *testing.T) {
	g, engine := testRouter(t, &stubGateway{page: feedPage()}, &stubChecker{}, &stubSummarizer{})
	perform(g, http.MethodPost, "/api/feed/refresh", "")

	w := perform(g, http.MethodPost, "/api/topics/1/read", `{"post_number":20}`)
	if w.Code != http.StatusOK {
		t.Fatalf("mark read status = %d: %s", w.Code, w.Body.String())
	}
	snap := engine.View()
	for _, v := range snap.Topics {
		if v.ID == 1 && !v.IsRead {
			t.Error("topic 1 not read after the call")
		}
	}

	w = perform(g, http.MethodDelete, "/api/topics/1/read", "")
	if w.Code != http.StatusOK {
		t.Fatalf("mark unread status = %d", w.Code)
	}
	snap = engine.View()
	for _, v := range snap.Topics {
		if v.ID == 1 && v.IsRead {
			t.Error("topic 1 still read after unread")
		}
	}

	w = perform(g, http.MethodPost, "/api/topics/abc/read", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid id status = %d, want 400", w.Code)
	}
}

func TestSessionEndpoints(t *testing.T) {
	checker := &stubChecker{status: models.SessionStatus{LoggedIn: true, Timestamp: 123}}
	g, _ := testRouter(t, &stubGateway{page: feedPage()}, checker, &stubSummarizer{})

	w := perform(g, http.MethodGet, "/api/session", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/session status = %d", w.Code)
	}
	var status models.SessionStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("status decode: %v", err)
	}
	if !status.LoggedIn || status.Timestamp != 123 {
		t.Errorf("status = %+v", status)
	}

	w = perform(g, http.MethodPost, "/api/session/refresh", "")
	if w.Code != http.StatusOK {
		t.Fatalf("session refresh status = %d", w.Code)
	}
	if !checker.cleared {
		t.Error("checker.ClearCache not called")
	}

	w = perform(g, http.MethodPost, "/api/logout", "")
	if w.Code != http.StatusOK {
		t.Fatalf("logout status = %d", w.Code)
	}
	if !checker.loggedOut {
		t.Error("checker.Logout not called")
	}
}

func TestConfigEndpoints(t *testing.T) {
	g, _ := testRouter(t, &stubGateway{page: feedPage()}, &stubChecker{}, &stubSummarizer{})

	w := perform(g, http.MethodGet, "/api/settings", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET config status = %d", w.Code)
	}

	body := `{"pollingInterval":120,"readStatusAction":"hide","showBadge":true}`
	w = perform(g, http.MethodPut, "/api/settings", body)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT config status = %d: %s", w.Code, w.Body.String())
	}
	var cfg models.FilterConfig
	if err := json.Unmarshal(w.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("config decode: %v", err)
	}
	if cfg.PollingInterval != 120 || cfg.ReadStatusAction != "hide" {
		t.Errorf("config = %+v", cfg)
	}

	w = perform(g, http.MethodPut, "/api/settings", `{"readStatusAction":"explode"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid config status = %d, want 400", w.Code)
	}
}

func TestSummarizeEndpoint(t *testing.T) {
	summarizer := &stubSummarizer{configured: true, result: &summary.Result{
		Success:   true,
		Summary:   "一句话总结",
		Depth:     summary.DepthHot,
		PostCount: 3,
	}}
	g, _ := testRouter(t, &stubGateway{page: feedPage()}, &stubChecker{}, summarizer)

	w := perform(g, http.MethodPost, "/api/topics/1/summarize", `{"title":"第一帖","depth":"hot"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("summarize status = %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "一句话总结") {
		t.Errorf("body = %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"postCount":3`) {
		t.Errorf("body missing post count: %s", w.Body.String())
	}
}

func TestSummarizeFailure(t *testing.T) {
	summarizer := &stubSummarizer{configured: true, result: &summary.Result{
		Success: false,
		Error:   "completion request failed",
	}}
	g, _ := testRouter(t, &stubGateway{page: feedPage()}, &stubChecker{}, summarizer)

	w := perform(g, http.MethodPost, "/api/topics/1/summarize", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"success":false`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestSummarizeUnconfigured(t *testing.T) {
	g, _ := testRouter(t, &stubGateway{page: feedPage()}, &stubChecker{}, &stubSummarizer{configured: false})

	w := perform(g, http.MethodPost, "/api/topics/1/summarize", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestNotificationsDrain(t *testing.T) {
	gin.SetMode(gin.TestMode)
	center := notify.NewCenter()
	center.Notify(notify.Notification{TopicID: 1, Title: "标题"})

	gw := &stubGateway{page: feedPage()}
	engine := feed.NewEngine(feed.Options{
		Gateway:     gw,
		ReadMarks:   &stubReadMarks{ids: make(map[int64]struct{})},
		Settings:    stubSettings{},
		FreshWindow: time.Hour,
		Defaults:    models.FilterConfig{ReadStatusAction: "none"},
	})
	if err := engine.Init(context.Background()); err != nil {
		t.Fatalf("engine.Init() error: %v", err)
	}
	router := NewRouter(engine, feed.NewPoller(0, func(ctx context.Context) {}), &stubChecker{}, &stubPosts{}, &stubSummarizer{}, center)
	g := gin.New()
	router.SetupRoutes(g)

	w := perform(g, http.MethodGet, "/api/notifications", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"topic_id":1`) {
		t.Errorf("body = %s", w.Body.String())
	}
	if center.Pending() != 0 {
		t.Errorf("Pending() = %d after drain", center.Pending())
	}
}
