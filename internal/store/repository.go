package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/topicstream/topicstream/internal/models"
)

// Setting keys for the persisted configuration blobs.
const (
	KeyConfig       = "config"
	KeyUserSettings = "userSettings"
)

// Repository provides database access methods
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ReadMarkRepository persists the locally read topic id set.
type ReadMarkRepository struct {
	*Repository
}

// NewReadMarkRepository creates a new read mark repository
func NewReadMarkRepository(repo *Repository) *ReadMarkRepository {
	return &ReadMarkRepository{Repository: repo}
}

// List returns all locally read topic ids.
func (r *ReadMarkRepository) List(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := r.db.WithContext(ctx).Model(&models.ReadMark{}).Pluck("topic_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list read marks: %w", err)
	}
	return ids, nil
}

// Add marks one topic id as read. Re-marking an already read topic is a no-op.
func (r *ReadMarkRepository) Add(ctx context.Context, topicID int64) error {
	mark := &models.ReadMark{TopicID: topicID, MarkedAt: time.Now().UTC()}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(mark).Error
	if err != nil {
		return fmt.Errorf("failed to add read mark %d: %w", topicID, err)
	}
	return nil
}

// Remove unmarks one topic id.
func (r *ReadMarkRepository) Remove(ctx context.Context, topicID int64) error {
	err := r.db.WithContext(ctx).
		Delete(&models.ReadMark{}, "topic_id = ?", topicID).Error
	if err != nil {
		return fmt.Errorf("failed to remove read mark %d: %w", topicID, err)
	}
	return nil
}

// SettingsRepository persists configuration blobs as key-value rows.
type SettingsRepository struct {
	*Repository
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(repo *Repository) *SettingsRepository {
	return &SettingsRepository{Repository: repo}
}

// Get retrieves a raw setting value. Absent keys return ("", nil).
func (r *SettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var row models.Setting
	if err := r.db.WithContext(ctx).First(&row, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get setting %q: %w", key, err)
	}
	return row.Value, nil
}

// Set upserts a raw setting value.
func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	row := &models.Setting{Key: key, Value: value}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to set setting %q: %w", key, err)
	}
	return nil
}

// GetFilterConfig loads the persisted filter config, falling back to the
// provided defaults when no row exists.
func (r *SettingsRepository) GetFilterConfig(ctx context.Context, defaults models.FilterConfig) (models.FilterConfig, error) {
	raw, err := r.Get(ctx, KeyConfig)
	if err != nil {
		return defaults, err
	}
	if raw == "" {
		return defaults, nil
	}
	cfg := defaults
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return defaults, fmt.Errorf("failed to decode stored config: %w", err)
	}
	return cfg, nil
}

// SaveFilterConfig persists the filter config.
func (r *SettingsRepository) SaveFilterConfig(ctx context.Context, cfg models.FilterConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return r.Set(ctx, KeyConfig, string(raw))
}

// GetUserSettings loads the persisted feed selector state.
func (r *SettingsRepository) GetUserSettings(ctx context.Context, defaults models.UserSettings) (models.UserSettings, error) {
	raw, err := r.Get(ctx, KeyUserSettings)
	if err != nil {
		return defaults, err
	}
	if raw == "" {
		return defaults, nil
	}
	s := defaults
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return defaults, fmt.Errorf("failed to decode stored user settings: %w", err)
	}
	return s, nil
}

// SaveUserSettings persists the feed selector state.
func (r *SettingsRepository) SaveUserSettings(ctx context.Context, s models.UserSettings) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode user settings: %w", err)
	}
	return r.Set(ctx, KeyUserSettings, string(raw))
}
