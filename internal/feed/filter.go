package feed

import (
	"sort"
	"strconv"
	"strings"

	"github.com/topicstream/topicstream/internal/models"
	"github.com/topicstream/topicstream/pkg/config"
)

// minEngagementPosts is the posts_count threshold for the quality filter:
// topics at or below it are hidden when the filter is on.
const minEngagementPosts = 10

// CategoryIndex resolves category ids to their configured entries.
type CategoryIndex map[int64]config.Category

// NewCategoryIndex builds an index from the configured category table.
func NewCategoryIndex(cats []config.Category) CategoryIndex {
	idx := make(CategoryIndex, len(cats))
	for _, c := range cats {
		idx[c.ID] = c
	}
	return idx
}

// Slug resolves a topic's category slug; unmatched or absent categories
// return "".
func (idx CategoryIndex) Slug(categoryID *int64) string {
	if categoryID == nil {
		return ""
	}
	if c, ok := idx[*categoryID]; ok {
		return c.Slug
	}
	return ""
}

// Name resolves a topic's category display name.
func (idx CategoryIndex) Name(categoryID *int64) string {
	if categoryID == nil {
		return ""
	}
	if c, ok := idx[*categoryID]; ok {
		return c.Name
	}
	return ""
}

// SplitKeywords splits a comma-separated keyword string into trimmed,
// lowercased, non-empty entries.
func SplitKeywords(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if k := strings.ToLower(strings.TrimSpace(part)); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// ApplyFilters removes topics blocked by category, keyword blacklist,
// the engagement threshold, and the hide-read policy. The predicates are
// independent and conjunctive, so application order does not matter and
// the function is idempotent. The input slice is not modified.
func ApplyFilters(topics []models.Topic, cfg models.FilterConfig, cats CategoryIndex, isRead func(models.Topic) bool) []models.Topic {
	blocked := make(map[string]struct{}, len(cfg.BlockCategories))
	for _, slug := range cfg.BlockCategories {
		blocked[slug] = struct{}{}
	}
	keywords := SplitKeywords(cfg.KeywordBlacklist)
	hideRead := cfg.ReadStatusAction == "hide"

	out := make([]models.Topic, 0, len(topics))
	for _, t := range topics {
		if len(blocked) > 0 {
			// Topics with an unmatched category always pass.
			if slug := cats.Slug(t.CategoryID); slug != "" {
				if _, ok := blocked[slug]; ok {
					continue
				}
			}
		}

		if len(keywords) > 0 && titleMatchesAny(t.Title, keywords) {
			continue
		}

		if cfg.QualityFilter && t.PostsCount <= minEngagementPosts {
			continue
		}

		if hideRead && isRead != nil && isRead(t) {
			continue
		}

		out = append(out, t)
	}
	return out
}

func titleMatchesAny(title string, keywords []string) bool {
	lower := strings.ToLower(title)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// ApplySorting returns a copy of topics sorted descending by the chosen
// key. Unknown keys sort as "latest". The sort is stable, so ties keep
// their input order.
func ApplySorting(topics []models.Topic, sortKey string) []models.Topic {
	out := make([]models.Topic, len(topics))
	copy(out, topics)

	switch sortKey {
	case "created":
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	case "views":
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Views > out[j].Views
		})
	case "replies":
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].PostsCount > out[j].PostsCount
		})
	default: // "latest"
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].LastPostedAt.After(out[j].LastPostedAt)
		})
	}
	return out
}

// UnreadCount counts the topics the read reconciliation leaves unread.
// Badge gating on top of the count is the caller's concern.
func UnreadCount(topics []models.Topic, isRead func(models.Topic) bool) int {
	n := 0
	for _, t := range topics {
		if !isRead(t) {
			n++
		}
	}
	return n
}

// BadgeText renders a badge count the way the toolbar badge shows it.
func BadgeText(count int) string {
	switch {
	case count <= 0:
		return ""
	case count > 99:
		return "99+"
	default:
		return strconv.Itoa(count)
	}
}
