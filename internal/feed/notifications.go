package feed

import (
	"strings"
	"time"

	"github.com/topicstream/topicstream/internal/models"
	"github.com/topicstream/topicstream/internal/notify"
)

// CheckNotifications matches fresh unread topics against the configured
// keyword list and returns one notification per matching topic. Callers
// invoke it once per refresh with the full page; emission is not
// deduplicated across calls, so a topic that stays fresh and unread over
// several polls alerts each time.
func CheckNotifications(topics []models.Topic, isRead func(models.Topic) bool, notifyKeywords string, freshWindow time.Duration, now time.Time) []notify.Notification {
	keywords := SplitKeywords(notifyKeywords)
	if len(keywords) == 0 {
		return nil
	}

	var out []notify.Notification
	for _, t := range topics {
		if now.Sub(t.CreatedAt) >= freshWindow {
			continue
		}
		if isRead != nil && isRead(t) {
			continue
		}
		title := strings.ToLower(t.Title)
		for _, k := range keywords {
			if strings.Contains(title, k) {
				out = append(out, notify.Notification{
					TopicID:   t.ID,
					Title:     t.Title,
					CreatedAt: now,
				})
				break
			}
		}
	}
	return out
}
