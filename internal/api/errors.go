package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// Error represents an API error with its HTTP status. Success is always
// false so error bodies share one envelope.
type Error struct {
	Code       int    `json:"-"`
	Success    bool   `json:"success"`
	Message    string `json:"error"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// NewError creates a new API error
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// withRetryAfter attaches a cooldown hint in seconds.
func (e *Error) withRetryAfter(seconds int) *Error {
	e.RetryAfter = seconds
	return e
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

// abort writes the error as the JSON response body.
func (e *Error) abort(c *gin.Context) {
	c.JSON(e.Code, e)
}
