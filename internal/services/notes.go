package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/tracklane/tracklane-backend/internal/database"
	"github.com/tracklane/tracklane-backend/internal/models"
	apperrors "github.com/tracklane/tracklane-backend/pkg/errors"
	"gorm.io/gorm"
)

// NoteService owns the change-note workflow nested inside project
// updates. Every operation is gated by the owning update's status: a
// PUBLISHED update is immutable, and done-marking additionally requires
// the update to be IN_DEVELOPMENT.
type NoteService struct {
	db       *gorm.DB
	projects *ProjectService
}

func NewNoteService(db *gorm.DB, projects *ProjectService) *NoteService {
	return &NoteService{db: db, projects: projects}
}

func validateNoteContent(content string) *apperrors.AppError {
	if strings.TrimSpace(content) == "" {
		return apperrors.Validation("Note content is required")
	}
	if len(content) > models.MaxNoteContentLength {
		return apperrors.Validation(fmt.Sprintf("Note content must be at most %d characters", models.MaxNoteContentLength))
	}
	return nil
}

// Add appends a note to the update.
func (s *NoteService) Add(actorID, updateID, content string) (*models.ChangeNote, *apperrors.AppError) {
	if err := validateNoteContent(content); err != nil {
		return nil, err
	}

	var note models.ChangeNote
	appErr := runInTx(s.db, func(tx *gorm.DB) *apperrors.AppError {
		update, err := s.loadOwningUpdate(tx, updateID, actorID)
		if err != nil {
			return err
		}
		if update.Status == models.UpdatePublished {
			return apperrors.InvalidState("A published update cannot be modified")
		}

		note = models.ChangeNote{
			UpdateID: updateID,
			AuthorID: actorID,
			Content:  content,
		}
		if err := tx.Create(&note).Error; err != nil {
			return apperrors.Internal("Failed to add change note")
		}
		return nil
	})
	if appErr != nil {
		return nil, appErr
	}
	return &note, nil
}

// Edit replaces the note content.
func (s *NoteService) Edit(actorID, noteID, content string) *apperrors.AppError {
	if err := validateNoteContent(content); err != nil {
		return err
	}

	return runInTx(s.db, func(tx *gorm.DB) *apperrors.AppError {
		note, update, err := s.loadNote(tx, noteID, actorID)
		if err != nil {
			return err
		}
		if update.Status == models.UpdatePublished {
			return apperrors.InvalidState("A published update cannot be modified")
		}

		if err := tx.Model(note).Update("content", content).Error; err != nil {
			return apperrors.Internal("Failed to edit change note")
		}
		return nil
	})
}

// MarkDone flags the note as completed, recording marker and mark time.
func (s *NoteService) MarkDone(actorID, noteID string) *apperrors.AppError {
	return runInTx(s.db, func(tx *gorm.DB) *apperrors.AppError {
		note, update, err := s.loadNote(tx, noteID, actorID)
		if err != nil {
			return err
		}
		if update.Status != models.UpdateInDevelopment {
			return apperrors.InvalidState("Notes can only be marked while the update is in development")
		}

		now := time.Now()
		if err := tx.Model(note).Updates(map[string]interface{}{
			"marked_as_done": true,
			"marked_by":      actorID,
			"marked_at":      now,
		}).Error; err != nil {
			return apperrors.Internal("Failed to mark change note")
		}
		return nil
	})
}

// MarkToDo clears the done flag, marker and mark time.
func (s *NoteService) MarkToDo(actorID, noteID string) *apperrors.AppError {
	return runInTx(s.db, func(tx *gorm.DB) *apperrors.AppError {
		note, update, err := s.loadNote(tx, noteID, actorID)
		if err != nil {
			return err
		}
		if update.Status != models.UpdateInDevelopment {
			return apperrors.InvalidState("Notes can only be unmarked while the update is in development")
		}

		if err := tx.Model(note).Updates(map[string]interface{}{
			"marked_as_done": false,
			"marked_by":      "",
			"marked_at":      nil,
		}).Error; err != nil {
			return apperrors.Internal("Failed to unmark change note")
		}
		return nil
	})
}

// Move reassigns the note from one update to a sibling update of the
// same project. A done note, a published update on either side, a cross-project
// target or an id collision in the target all reject the move.
func (s *NoteService) Move(actorID, noteID, fromUpdateID, toUpdateID string) *apperrors.AppError {
	if fromUpdateID == toUpdateID {
		return apperrors.Validation("Source and target update are the same")
	}

	return runInTx(s.db, func(tx *gorm.DB) *apperrors.AppError {
		fromUpdate, err := s.loadOwningUpdate(tx, fromUpdateID, actorID)
		if err != nil {
			return err
		}

		var note models.ChangeNote
		if dbErr := tx.First(&note, "id = ? AND update_id = ?", noteID, fromUpdateID).Error; dbErr != nil {
			var exists int64
			tx.Model(&models.ChangeNote{}).Where("id = ?", noteID).Count(&exists)
			if exists > 0 {
				return apperrors.Validation("The note does not belong to the source update")
			}
			return apperrors.NotFound("Change note not found")
		}
		if note.MarkedAsDone {
			return apperrors.InvalidState("A completed note cannot be moved")
		}
		if fromUpdate.Status == models.UpdatePublished {
			return apperrors.InvalidState("A published update cannot be modified")
		}

		var toUpdate models.ProjectUpdate
		if err := database.LockForUpdate(tx).First(&toUpdate, "id = ?", toUpdateID).Error; err != nil {
			return apperrors.NotFound("Target update not found")
		}
		if toUpdate.ProjectID != fromUpdate.ProjectID {
			return apperrors.Validation("Notes cannot be moved across projects")
		}
		if toUpdate.Status == models.UpdatePublished {
			return apperrors.InvalidState("A published update cannot be modified")
		}

		var count int64
		tx.Model(&models.ChangeNote{}).
			Where("update_id = ? AND id = ?", toUpdateID, noteID).
			Count(&count)
		if count > 0 {
			return apperrors.Conflict("The target update already contains this note")
		}

		if err := tx.Model(&models.ChangeNote{}).
			Where("id = ? AND update_id = ?", noteID, fromUpdateID).
			Update("update_id", toUpdateID).Error; err != nil {
			return apperrors.Internal("Failed to move change note")
		}
		return nil
	})
}

// Delete removes the note.
func (s *NoteService) Delete(actorID, noteID string) *apperrors.AppError {
	return runInTx(s.db, func(tx *gorm.DB) *apperrors.AppError {
		note, update, err := s.loadNote(tx, noteID, actorID)
		if err != nil {
			return err
		}
		if update.Status == models.UpdatePublished {
			return apperrors.InvalidState("A published update cannot be modified")
		}

		if err := tx.Delete(&models.ChangeNote{}, "id = ? AND update_id = ?", note.ID, note.UpdateID).Error; err != nil {
			return apperrors.Internal("Failed to delete change note")
		}
		return nil
	})
}

// loadNote fetches the note plus its owning update and checks project
// access for the actor.
func (s *NoteService) loadNote(tx *gorm.DB, noteID, actorID string) (*models.ChangeNote, *models.ProjectUpdate, *apperrors.AppError) {
	var note models.ChangeNote
	if err := tx.First(&note, "id = ?", noteID).Error; err != nil {
		return nil, nil, apperrors.NotFound("Change note not found")
	}
	update, err := s.loadOwningUpdate(tx, note.UpdateID, actorID)
	if err != nil {
		return nil, nil, err
	}
	return &note, update, nil
}

func (s *NoteService) loadOwningUpdate(tx *gorm.DB, updateID, actorID string) (*models.ProjectUpdate, *apperrors.AppError) {
	var update models.ProjectUpdate
	if err := database.LockForUpdate(tx).First(&update, "id = ?", updateID).Error; err != nil {
		return nil, apperrors.NotFound("Update not found")
	}
	var project models.Project
	if err := tx.First(&project, "id = ?", update.ProjectID).Error; err != nil {
		return nil, apperrors.NotFound("Project not found")
	}
	if !s.projects.hasProjectAccess(tx, &project, actorID) {
		return nil, apperrors.ErrUnauthorized
	}
	return &update, nil
}
