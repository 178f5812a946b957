package models

import "time"

// FilterConfig holds the user-controlled view parameters. It is persisted
// as a single JSON value under the "config" settings key.
type FilterConfig struct {
	PollingInterval  int      `json:"pollingInterval"`
	LowDataMode      bool     `json:"lowDataMode"`
	BlockCategories  []string `json:"blockCategories"`
	KeywordBlacklist string   `json:"keywordBlacklist"`
	QualityFilter    bool     `json:"qualityFilter"`
	ReadStatusAction string   `json:"readStatusAction"` // "fade" | "hide" | "none"
	ShowBadge        bool     `json:"showBadge"`
	NotifyKeywords   string   `json:"notifyKeywords"`
	SyncReadStatus   bool     `json:"syncReadStatus"`
	ClickBehavior    string   `json:"clickBehavior"`
}

// UserSettings holds the feed selector state, persisted under the
// "userSettings" key separately from FilterConfig.
type UserSettings struct {
	AutoRefreshEnabled bool   `json:"autoRefreshEnabled"`
	CategoryFilter     string `json:"categoryFilter"` // "all" | "top" | "categories"
	SubCategoryFilter  int64  `json:"subCategoryFilter"`
	SortFilter         string `json:"sortFilter"` // "latest" | "created" | "views" | "replies"
}

// ReadMark is one locally read topic id.
type ReadMark struct {
	TopicID  int64     `gorm:"primaryKey;autoIncrement:false;column:topic_id"`
	MarkedAt time.Time `gorm:"not null;column:marked_at"`
}

// TableName specifies the table name for ReadMark
func (ReadMark) TableName() string {
	return "feed_read_marks"
}

// Setting is a persisted key-value row for configuration blobs.
type Setting struct {
	Key   string `gorm:"primaryKey;type:varchar(64);column:key"`
	Value string `gorm:"type:text;not null;column:value"`
}

// TableName specifies the table name for Setting
func (Setting) TableName() string {
	return "feed_settings"
}
