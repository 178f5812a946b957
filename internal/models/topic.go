package models

import (
	"time"
)

// Topic represents one forum thread surfaced in the feed. Field tags match
// the Discourse topic list wire format.
type Topic struct {
	ID                 int64     `json:"id"`
	Title              string    `json:"title"`
	CategoryID         *int64    `json:"category_id,omitempty"`
	Tags               []string  `json:"tags,omitempty"`
	PostsCount         int       `json:"posts_count"`
	Views              int       `json:"views"`
	CreatedAt          time.Time `json:"created_at"`
	LastPostedAt       time.Time `json:"last_posted_at"`
	Excerpt            string    `json:"excerpt,omitempty"`
	LastPosterUsername string    `json:"last_poster_username,omitempty"`
	HighestPostNumber  int       `json:"highest_post_number"`
	LastReadPostNumber *int      `json:"last_read_post_number,omitempty"`
	Posters            []Poster  `json:"posters,omitempty"`
}

// Poster is one entry of a topic's poster sequence. The poster flagged
// "latest" in extras is the most recent participant.
type Poster struct {
	UserID      int64  `json:"user_id"`
	Extras      string `json:"extras,omitempty"`
	Description string `json:"description,omitempty"`
}

// LatestPosterID returns the user id of the most recent poster, falling
// back to the last entry when none is flagged.
func (t *Topic) LatestPosterID() (int64, bool) {
	if len(t.Posters) == 0 {
		return 0, false
	}
	for _, p := range t.Posters {
		if p.Extras == "latest" {
			return p.UserID, true
		}
	}
	return t.Posters[len(t.Posters)-1].UserID, true
}

// User is a forum user as returned in the users side-array of a topic page.
type User struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	TrustLevel int    `json:"trust_level"`
	Admin      bool   `json:"admin"`
}

// UsersMap resolves user ids to user records. It is transient state,
// rebuilt on every fetch and never persisted.
type UsersMap map[int64]User

// BuildUsersMap indexes a users side-array by id.
func BuildUsersMap(users []User) UsersMap {
	m := make(UsersMap, len(users))
	for _, u := range users {
		m[u.ID] = u
	}
	return m
}

// TopicPage is one normalized topic list response: the flat topic slice
// plus the sibling users and current_user fields.
type TopicPage struct {
	Topics      []Topic `json:"topics"`
	Users       []User  `json:"users,omitempty"`
	CurrentUser *User   `json:"current_user,omitempty"`
}
