package models

import "time"

// Post represents a post inside a topic, as returned by the posts endpoint.
type Post struct {
	ID         int64     `json:"id"`
	PostNumber int       `json:"post_number"`
	Username   string    `json:"username"`
	LikeCount  int       `json:"like_count"`
	Cooked     string    `json:"cooked"` // rendered HTML body
	CreatedAt  time.Time `json:"created_at"`
}
