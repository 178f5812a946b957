package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/topicstream/topicstream/internal/discourse"
	"github.com/topicstream/topicstream/internal/models"
	"github.com/topicstream/topicstream/internal/notify"
	"github.com/topicstream/topicstream/pkg/config"
	"github.com/topicstream/topicstream/pkg/logging"
	"github.com/topicstream/topicstream/pkg/telemetry"
)

// State is the engine's load state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Gateway is the slice of the forum client the engine needs.
type Gateway interface {
	FetchTopics(ctx context.Context, sel discourse.Selector) (*models.TopicPage, error)
	MarkRead(ctx context.Context, topicID int64, postNumber int) error
}

// ReadMarkStore persists the locally read topic id set.
type ReadMarkStore interface {
	List(ctx context.Context) ([]int64, error)
	Add(ctx context.Context, topicID int64) error
	Remove(ctx context.Context, topicID int64) error
}

// SettingsStore persists the filter config and feed selector state.
type SettingsStore interface {
	GetFilterConfig(ctx context.Context, defaults models.FilterConfig) (models.FilterConfig, error)
	SaveFilterConfig(ctx context.Context, cfg models.FilterConfig) error
	GetUserSettings(ctx context.Context, defaults models.UserSettings) (models.UserSettings, error)
	SaveUserSettings(ctx context.Context, s models.UserSettings) error
}

// TaskQueue dispatches best-effort side effects off the caller's path.
type TaskQueue interface {
	Submit(task notify.Task)
}

// Notifier receives keyword alert notifications.
type Notifier interface {
	Notify(n notify.Notification)
}

// Engine owns the authoritative topic collection, the read state, and the
// user's view parameters. The Presentation Layer only reads snapshots and
// calls engine operations; nothing else mutates this state.
type Engine struct {
	gateway   Gateway
	readMarks ReadMarkStore
	settings  SettingsStore
	queue     TaskQueue
	notifier  Notifier
	cats      CategoryIndex

	freshWindow time.Duration
	logger      *zap.Logger
	now         func() time.Time

	mu        sync.Mutex
	topics    []models.Topic
	users     models.UsersMap
	readState *ReadState
	cfg       models.FilterConfig
	userSet   models.UserSettings
	state     State
	lastError string
	loadGen   uint64
}

// Options carries the engine's collaborators and defaults.
type Options struct {
	Gateway     Gateway
	ReadMarks   ReadMarkStore
	Settings    SettingsStore
	Queue       TaskQueue
	Notifier    Notifier
	Categories  []config.Category
	FreshWindow time.Duration
	Defaults    models.FilterConfig
	UserDefault models.UserSettings
}

// NewEngine creates a feed engine. Call Init to load persisted state
// before the first use.
func NewEngine(opts Options) *Engine {
	fresh := opts.FreshWindow
	if fresh <= 0 {
		fresh = 4 * time.Hour
	}
	return &Engine{
		gateway:     opts.Gateway,
		readMarks:   opts.ReadMarks,
		settings:    opts.Settings,
		queue:       opts.Queue,
		notifier:    opts.Notifier,
		cats:        NewCategoryIndex(opts.Categories),
		freshWindow: fresh,
		logger:      logging.GetLogger().With(zap.String("component", "feed-engine")),
		now:         time.Now,
		readState:   NewReadState(nil),
		cfg:         opts.Defaults,
		userSet:     opts.UserDefault,
		state:       StateIdle,
	}
}

// Init loads the persisted read set and settings.
func (e *Engine) Init(ctx context.Context) error {
	ids, err := e.readMarks.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load read marks: %w", err)
	}

	e.mu.Lock()
	defaults := e.cfg
	userDefaults := e.userSet
	e.mu.Unlock()

	cfg, err := e.settings.GetFilterConfig(ctx, defaults)
	if err != nil {
		return fmt.Errorf("failed to load filter config: %w", err)
	}
	userSet, err := e.settings.GetUserSettings(ctx, userDefaults)
	if err != nil {
		return fmt.Errorf("failed to load user settings: %w", err)
	}

	e.mu.Lock()
	e.readState = NewReadState(ids)
	e.cfg = cfg
	e.userSet = userSet
	e.mu.Unlock()

	e.logger.Info("Feed engine initialized",
		zap.Int("read_topics", len(ids)),
		zap.Int("polling_interval", cfg.PollingInterval))

	return nil
}

// Load fetches one topic page for the current selector and replaces the
// entire working collection with it. The previous collection is kept only
// when the load fails. Overlapping loads resolve latest-requested-wins: a
// response is discarded when a newer load has started since.
func (e *Engine) Load(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "feed.load")
	defer span.End()

	e.mu.Lock()
	e.loadGen++
	gen := e.loadGen
	e.state = StateLoading
	sel := e.selectorLocked()
	e.mu.Unlock()

	page, err := e.gateway.FetchTopics(ctx, sel)

	e.mu.Lock()
	if gen != e.loadGen {
		// A newer load was requested while this one was in flight.
		e.mu.Unlock()
		e.logger.Debug("Discarding superseded load", zap.Uint64("generation", gen))
		return nil
	}

	if err != nil {
		e.state = StateError
		e.lastError = err.Error()
		count := len(e.topics)
		e.mu.Unlock()
		e.logger.Error("Feed load failed, keeping previous collection",
			zap.String("selector", sel.String()),
			zap.Int("retained_topics", count),
			zap.Error(err))
		return err
	}

	e.topics = page.Topics
	e.users = models.BuildUsersMap(page.Users)
	e.state = StateReady
	e.lastError = ""
	notifications := e.matchNotificationsLocked(page.Topics)
	e.mu.Unlock()

	e.emit(notifications)

	e.logger.Info("Feed loaded",
		zap.String("selector", sel.String()),
		zap.Int("topics", len(page.Topics)),
		zap.Int("notifications", len(notifications)))

	return nil
}

// AddTopics merges externally pushed topics into the collection, keeping
// only ids not already present and prepending them. New arrivals go
// through the same notification matching as a full load.
func (e *Engine) AddTopics(topics []models.Topic) int {
	e.mu.Lock()
	seen := make(map[int64]struct{}, len(e.topics))
	for _, t := range e.topics {
		seen[t.ID] = struct{}{}
	}
	var unique []models.Topic
	for _, t := range topics {
		if _, ok := seen[t.ID]; !ok {
			unique = append(unique, t)
		}
	}
	if len(unique) > 0 {
		e.topics = append(unique, e.topics...)
	}
	notifications := e.matchNotificationsLocked(unique)
	e.mu.Unlock()

	e.emit(notifications)
	return len(unique)
}

// MarkRead persists the read mark, then adds the topic to the local read
// set, so a store failure leaves memory and store in agreement. When sync
// is enabled and a post number is known, the watermark report is
// dispatched as a background task; its failure is logged, never retried,
// and never surfaced.
func (e *Engine) MarkRead(ctx context.Context, topicID int64, postNumber int) error {
	if err := e.readMarks.Add(ctx, topicID); err != nil {
		return err
	}

	e.mu.Lock()
	e.readState.Add(topicID)
	syncEnabled := e.cfg.SyncReadStatus
	e.mu.Unlock()

	if syncEnabled && postNumber > 0 && e.queue != nil {
		id, pn := topicID, postNumber
		e.queue.Submit(notify.Task{
			Name: "mark-read-on-site",
			Run: func(taskCtx context.Context) error {
				return e.gateway.MarkRead(taskCtx, id, pn)
			},
		})
	}

	return nil
}

// MarkUnread persists the removal, then drops the topic from the local
// read set. The remote watermark is not retracted.
func (e *Engine) MarkUnread(ctx context.Context, topicID int64) error {
	if err := e.readMarks.Remove(ctx, topicID); err != nil {
		return err
	}

	e.mu.Lock()
	e.readState.Remove(topicID)
	e.mu.Unlock()
	return nil
}

// Config returns the current filter config.
func (e *Engine) Config() models.FilterConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// UpdateConfig persists and applies a new filter config.
func (e *Engine) UpdateConfig(ctx context.Context, cfg models.FilterConfig) error {
	if err := validateFilterConfig(cfg); err != nil {
		return err
	}
	if err := e.settings.SaveFilterConfig(ctx, cfg); err != nil {
		return err
	}
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
	return nil
}

// UserSettings returns the current feed selector state.
func (e *Engine) UserSettings() models.UserSettings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userSet
}

// UpdateUserSettings persists and applies the feed selector state.
func (e *Engine) UpdateUserSettings(ctx context.Context, s models.UserSettings) error {
	if err := e.settings.SaveUserSettings(ctx, s); err != nil {
		return err
	}
	e.mu.Lock()
	e.userSet = s
	e.mu.Unlock()
	return nil
}

// Categories returns the configured category table.
func (e *Engine) Categories() []config.Category {
	out := make([]config.Category, 0, len(e.cats))
	for _, c := range e.cats {
		out = append(out, c)
	}
	return out
}

func validateFilterConfig(cfg models.FilterConfig) error {
	if cfg.PollingInterval < 0 {
		return fmt.Errorf("pollingInterval must not be negative")
	}
	switch cfg.ReadStatusAction {
	case "fade", "hide", "none":
	default:
		return fmt.Errorf("readStatusAction must be one of fade, hide, none")
	}
	return nil
}

// selectorLocked resolves the current feed selector. Callers hold e.mu.
func (e *Engine) selectorLocked() discourse.Selector {
	switch e.userSet.CategoryFilter {
	case "top":
		return discourse.Top()
	case "categories":
		if c, ok := e.cats[e.userSet.SubCategoryFilter]; ok {
			return discourse.Category(c.Slug, c.ID)
		}
		return discourse.Latest()
	default:
		return discourse.Latest()
	}
}

// matchNotificationsLocked runs keyword matching over topics. Callers
// hold e.mu.
func (e *Engine) matchNotificationsLocked(topics []models.Topic) []notify.Notification {
	rs := e.readState
	syncEnabled := e.cfg.SyncReadStatus
	return CheckNotifications(topics,
		func(t models.Topic) bool { return rs.IsRead(t, syncEnabled) },
		e.cfg.NotifyKeywords, e.freshWindow, e.now())
}

func (e *Engine) emit(notifications []notify.Notification) {
	if e.notifier == nil {
		return
	}
	for _, n := range notifications {
		e.notifier.Notify(n)
	}
}
