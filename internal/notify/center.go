package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/topicstream/topicstream/pkg/logging"
)

// Notification is one keyword alert for a fresh unread topic.
type Notification struct {
	TopicID   int64     `json:"topic_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Center collects emitted notifications until a client drains them.
// Emission is deliberately not deduplicated across refresh cycles.
type Center struct {
	mu      sync.Mutex
	pending []Notification
	logger  *zap.Logger
}

// NewCenter creates a notification center.
func NewCenter() *Center {
	return &Center{
		logger: logging.GetLogger().With(zap.String("component", "notify-center")),
	}
}

// Notify records one notification.
func (c *Center) Notify(n Notification) {
	c.mu.Lock()
	c.pending = append(c.pending, n)
	c.mu.Unlock()

	c.logger.Info("Notification",
		zap.Int64("topic_id", n.TopicID),
		zap.String("title", n.Title))
}

// Drain returns and clears all pending notifications.
func (c *Center) Drain() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.pending
	c.pending = nil
	return out
}

// Pending returns the number of queued notifications.
func (c *Center) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
