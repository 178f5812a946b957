package models

// SessionStatus is the cached result of a session check against the forum.
// Timestamp is epoch milliseconds of when the result was obtained.
type SessionStatus struct {
	LoggedIn    bool   `json:"loggedIn"`
	User        *User  `json:"user,omitempty"`
	Timestamp   int64  `json:"timestamp"`
	Error       string `json:"error,omitempty"`
	RateLimited bool   `json:"rateLimited,omitempty"`
	RetryAfter  int    `json:"retryAfter,omitempty"`
}
