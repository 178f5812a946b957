package feed

import (
	"time"

	"github.com/topicstream/topicstream/internal/models"
)

// TopicView is one topic decorated for display.
type TopicView struct {
	ID                 int64     `json:"id"`
	Title              string    `json:"title"`
	CategoryID         *int64    `json:"categoryId,omitempty"`
	CategoryName       string    `json:"categoryName,omitempty"`
	CategorySlug       string    `json:"categorySlug,omitempty"`
	Tags               []string  `json:"tags,omitempty"`
	PostsCount         int       `json:"postsCount"`
	Views              int       `json:"views"`
	CreatedAt          time.Time `json:"createdAt"`
	LastPostedAt       time.Time `json:"lastPostedAt"`
	Excerpt            string    `json:"excerpt,omitempty"`
	LastPosterUsername string    `json:"lastPosterUsername"`
	HighestPostNumber  int       `json:"highestPostNumber"`
	TrustLevel         int       `json:"trustLevel"`
	IsAdmin            bool      `json:"isAdmin"`
	IsRead             bool      `json:"isRead"`
	IsNew              bool      `json:"isNew"`
}

// Snapshot is a self-contained view of the feed for the Presentation
// Layer. It is computed on demand and never mutated afterwards.
type Snapshot struct {
	State       string      `json:"state"`
	Error       string      `json:"error,omitempty"`
	Topics      []TopicView `json:"topics"`
	TotalTopics int         `json:"totalTopics"`
	UnreadCount int         `json:"unreadCount"`
	BadgeCount  int         `json:"badgeCount"`
	BadgeText   string      `json:"badgeText"`
}

// View builds a display snapshot of the current collection with filters,
// sorting, and per-topic decorations applied. The underlying collection
// is not modified.
func (e *Engine) View() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	rs := e.readState
	syncEnabled := e.cfg.SyncReadStatus
	isRead := func(t models.Topic) bool { return rs.IsRead(t, syncEnabled) }

	filtered := ApplyFilters(e.topics, e.cfg, e.cats, isRead)
	filtered = ApplySorting(filtered, e.userSet.SortFilter)

	unread := UnreadCount(filtered, isRead)

	now := e.now()
	views := make([]TopicView, 0, len(filtered))
	for _, t := range filtered {
		read := isRead(t)
		v := TopicView{
			ID:                 t.ID,
			Title:              t.Title,
			CategoryID:         t.CategoryID,
			CategoryName:       e.cats.Name(t.CategoryID),
			CategorySlug:       e.cats.Slug(t.CategoryID),
			Tags:               t.Tags,
			PostsCount:         t.PostsCount,
			Views:              t.Views,
			CreatedAt:          t.CreatedAt,
			LastPostedAt:       t.LastPostedAt,
			LastPosterUsername: t.LastPosterUsername,
			HighestPostNumber:  t.HighestPostNumber,
			IsRead:             read,
			IsNew:              !read && now.Sub(t.CreatedAt) < e.freshWindow,
		}
		if !e.cfg.LowDataMode {
			v.Excerpt = t.Excerpt
		}
		if posterID, ok := t.LatestPosterID(); ok {
			if u, found := e.users[posterID]; found {
				v.TrustLevel = u.TrustLevel
				v.IsAdmin = u.Admin
			}
		}
		views = append(views, v)
	}

	badge := 0
	if e.cfg.ShowBadge {
		badge = unread
	}

	return Snapshot{
		State:       e.state.String(),
		Error:       e.lastError,
		Topics:      views,
		TotalTopics: len(e.topics),
		UnreadCount: unread,
		BadgeCount:  badge,
		BadgeText:   BadgeText(badge),
	}
}
