package services

import (
	"fmt"
	"time"

	"github.com/tracklane/tracklane-backend/internal/database"
	"github.com/tracklane/tracklane-backend/internal/models"
	apperrors "github.com/tracklane/tracklane-backend/pkg/errors"
	"github.com/tracklane/tracklane-backend/pkg/logger"
	"gorm.io/gorm"
)

// EventPayload addresses one lifecycle event to one recipient.
type EventPayload struct {
	GroupID   string
	ProjectID string
	Extra     string
}

// ChangelogService persists lifecycle notifications and answers the
// changelog inbox queries. Emission is best-effort: a failed insert is
// logged and swallowed so it can never roll back the state transition
// that triggered it.
type ChangelogService struct {
	db *gorm.DB
}

func NewChangelogService(db *gorm.DB) *ChangelogService {
	return &ChangelogService{db: db}
}

func unreadCacheKey(userID string) string {
	return fmt.Sprintf("changelog:unread:%s", userID)
}

// Emit writes one changelog row for the recipient within the caller's
// transaction.
func (s *ChangelogService) Emit(tx *gorm.DB, recipientID string, event models.ChangelogEvent, payload EventPayload) {
	entry := models.Changelog{
		UserID:  recipientID,
		Event:   event,
		Extra:   payload.Extra,
		Message: event.Message(payload.Extra),
	}
	if payload.GroupID != "" {
		entry.GroupID = &payload.GroupID
	}
	if payload.ProjectID != "" {
		entry.ProjectID = &payload.ProjectID
	}

	if err := tx.Create(&entry).Error; err != nil {
		logger.Warn().
			Err(err).
			Str("recipient", recipientID).
			Str("event", string(event)).
			Msg("Failed to emit changelog event")
		return
	}
	database.CacheInvalidate(unreadCacheKey(recipientID))
}

// EmitToAll emits the same event to every recipient.
func (s *ChangelogService) EmitToAll(tx *gorm.DB, recipientIDs []string, event models.ChangelogEvent, payload EventPayload) {
	for _, id := range recipientIDs {
		s.Emit(tx, id, event, payload)
	}
}

// List returns the recipient's changelogs newest-first.
func (s *ChangelogService) List(userID string, limit int) ([]models.Changelog, *apperrors.AppError) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var entries []models.Changelog
	if err := s.db.Where("user_id = ?", userID).Order("created_at desc").Limit(limit).Find(&entries).Error; err != nil {
		return nil, apperrors.Internal("Failed to fetch changelogs")
	}
	return entries, nil
}

// UnreadCount returns the number of unread changelogs, cached in redis
// for a minute.
func (s *ChangelogService) UnreadCount(userID string) (int64, *apperrors.AppError) {
	key := unreadCacheKey(userID)
	var cached int64
	if err := database.CacheGet(key, &cached); err == nil {
		return cached, nil
	}

	var count int64
	if err := s.db.Model(&models.Changelog{}).Where("user_id = ? AND is_read = ?", userID, false).Count(&count).Error; err != nil {
		return 0, apperrors.Internal("Failed to count changelogs")
	}
	database.CacheSet(key, count, time.Minute)
	return count, nil
}

// MarkRead marks one changelog of the recipient as read.
func (s *ChangelogService) MarkRead(userID, changelogID string) *apperrors.AppError {
	var entry models.Changelog
	if err := s.db.First(&entry, "id = ?", changelogID).Error; err != nil {
		return apperrors.NotFound("Changelog not found")
	}
	if entry.UserID != userID {
		return apperrors.ErrUnauthorized
	}
	if err := s.db.Model(&entry).Update("is_read", true).Error; err != nil {
		return apperrors.Internal("Failed to mark changelog as read")
	}
	database.CacheInvalidate(unreadCacheKey(userID))
	return nil
}

// MarkAllRead marks every unread changelog of the recipient as read.
func (s *ChangelogService) MarkAllRead(userID string) *apperrors.AppError {
	if err := s.db.Model(&models.Changelog{}).Where("user_id = ? AND is_read = ?", userID, false).Update("is_read", true).Error; err != nil {
		return apperrors.Internal("Failed to mark changelogs as read")
	}
	database.CacheInvalidate(unreadCacheKey(userID))
	return nil
}

// Delete removes one changelog of the recipient.
func (s *ChangelogService) Delete(userID, changelogID string) *apperrors.AppError {
	var entry models.Changelog
	if err := s.db.First(&entry, "id = ?", changelogID).Error; err != nil {
		return apperrors.NotFound("Changelog not found")
	}
	if entry.UserID != userID {
		return apperrors.ErrUnauthorized
	}
	if err := s.db.Delete(&entry).Error; err != nil {
		return apperrors.Internal("Failed to delete changelog")
	}
	database.CacheInvalidate(unreadCacheKey(userID))
	return nil
}
