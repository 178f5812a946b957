package discourse

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/topicstream/topicstream/internal/models"
)

// PageShape classifies the three topic list wire shapes the forum is known
// to return. Classification is explicit and exhaustive rather than probing
// optional fields at each use site.
type PageShape int

const (
	ShapeUnknown PageShape = iota
	ShapeTopicList           // {"topic_list": {"topics": [...]}, "users": [...]}
	ShapeFlatTopics          // {"topics": [...]}
	ShapeBareArray           // [...]
)

// String returns the shape name for diagnostics.
func (s PageShape) String() string {
	switch s {
	case ShapeTopicList:
		return "topic_list"
	case ShapeFlatTopics:
		return "topics"
	case ShapeBareArray:
		return "array"
	default:
		return "unknown"
	}
}

type pageEnvelope struct {
	TopicList *struct {
		Topics []models.Topic `json:"topics"`
	} `json:"topic_list"`
	Topics      []models.Topic `json:"topics"`
	Users       []models.User  `json:"users"`
	CurrentUser *models.User   `json:"current_user"`
}

// ClassifyPage determines which of the known shapes a raw topic page uses.
func ClassifyPage(raw []byte) PageShape {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return ShapeBareArray
	}

	var env pageEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ShapeUnknown
	}
	if env.TopicList != nil {
		return ShapeTopicList
	}
	if env.Topics != nil {
		return ShapeFlatTopics
	}
	return ShapeUnknown
}

// DecodeTopicPage normalizes a raw topic list response into a flat page.
func DecodeTopicPage(raw []byte) (*models.TopicPage, error) {
	shape := ClassifyPage(raw)

	switch shape {
	case ShapeBareArray:
		var topics []models.Topic
		if err := json.Unmarshal(raw, &topics); err != nil {
			return nil, fmt.Errorf("bare array shape: %w", err)
		}
		return &models.TopicPage{Topics: topics}, nil

	case ShapeTopicList, ShapeFlatTopics:
		var env pageEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("%s shape: %w", shape, err)
		}
		page := &models.TopicPage{
			Users:       env.Users,
			CurrentUser: env.CurrentUser,
		}
		if shape == ShapeTopicList {
			page.Topics = env.TopicList.Topics
		} else {
			page.Topics = env.Topics
		}
		return page, nil

	default:
		return nil, fmt.Errorf("unrecognized topic page shape")
	}
}

type postEnvelope struct {
	PostStream *struct {
		Posts []models.Post `json:"posts"`
	} `json:"post_stream"`
	Posts []models.Post `json:"posts"`
}

// DecodePostList normalizes the two known post list shapes.
func DecodePostList(raw []byte) ([]models.Post, error) {
	var env postEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if env.PostStream != nil {
		return env.PostStream.Posts, nil
	}
	if env.Posts != nil {
		return env.Posts, nil
	}
	return nil, fmt.Errorf("unrecognized post list shape")
}

// DecodeCurrentUser extracts current_user from a session response. A null
// or absent current_user means logged out and yields a nil user.
func DecodeCurrentUser(raw []byte) (*models.User, error) {
	var env struct {
		CurrentUser *models.User `json:"current_user"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return env.CurrentUser, nil
}
