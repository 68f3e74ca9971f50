package services

import (
	"time"

	"github.com/tracklane/tracklane-backend/internal/database"
	"github.com/tracklane/tracklane-backend/internal/models"
	apperrors "github.com/tracklane/tracklane-backend/pkg/errors"
	"github.com/tracklane/tracklane-backend/pkg/utils"
	"gorm.io/gorm"
)

const dayMillis = 86_400_000

// ceilDays returns ceil((to - from) / 1 day) in whole days.
func ceilDays(from, to time.Time) int {
	ms := to.Sub(from).Milliseconds()
	if ms <= 0 {
		return 0
	}
	return int((ms + dayMillis - 1) / dayMillis)
}

// UpdateService owns the project-update state machine:
// SCHEDULED -> IN_DEVELOPMENT -> PUBLISHED, strictly forward, plus the
// development-duration accounting derived from it.
type UpdateService struct {
	db        *gorm.DB
	members   *MembershipService
	projects  *ProjectService
	changelog *ChangelogService
}

func NewUpdateService(db *gorm.DB, members *MembershipService, projects *ProjectService, changelog *ChangelogService) *UpdateService {
	return &UpdateService{db: db, members: members, projects: projects, changelog: changelog}
}

// groupRecipients collects the joined members of every group the
// project is shared with, minus the acting user. Empty when the project
// has no group association, in which case no event fires.
func (s *UpdateService) groupRecipients(tx *gorm.DB, projectID, actorID string) ([]string, *apperrors.AppError) {
	var userIDs []string
	err := tx.Model(&models.GroupMember{}).
		Distinct("user_id").
		Joins(`JOIN "ProjectGroup" pg ON pg.group_id = "GroupMember".group_id`).
		Where(`pg.project_id = ? AND "GroupMember".status = ? AND "GroupMember".user_id <> ?`,
			projectID, models.InvitationJoined, actorID).
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, apperrors.Internal("Failed to resolve group members")
	}
	return userIDs, nil
}

// Schedule creates a new update in SCHEDULED with the given change
// notes. The target version must be well-formed and unused within the
// project.
func (s *UpdateService) Schedule(actorID, projectID, targetVersion string, initialNotes []string) (*models.ProjectUpdate, *apperrors.AppError) {
	if !utils.IsValidVersion(targetVersion) {
		return nil, apperrors.Validation("Invalid target version format")
	}
	for _, content := range initialNotes {
		if err := validateNoteContent(content); err != nil {
			return nil, err
		}
	}

	var update models.ProjectUpdate
	appErr := runInTx(s.db, func(tx *gorm.DB) *apperrors.AppError {
		var project models.Project
		if err := tx.First(&project, "id = ?", projectID).Error; err != nil {
			return apperrors.NotFound("Project not found")
		}
		if !s.projects.hasProjectAccess(tx, &project, actorID) {
			return apperrors.ErrUnauthorized
		}

		var count int64
		tx.Model(&models.ProjectUpdate{}).
			Where("project_id = ? AND target_version = ?", projectID, targetVersion).
			Count(&count)
		if count > 0 {
			return apperrors.Conflict("An update with this target version already exists")
		}

		update = models.ProjectUpdate{
			ProjectID:     projectID,
			AuthorID:      actorID,
			TargetVersion: targetVersion,
			Status:        models.UpdateScheduled,
		}
		if err := tx.Create(&update).Error; err != nil {
			return apperrors.Internal("Failed to schedule update")
		}

		for _, content := range initialNotes {
			note := models.ChangeNote{
				UpdateID: update.ID,
				AuthorID: actorID,
				Content:  content,
			}
			if err := tx.Create(&note).Error; err != nil {
				return apperrors.Internal("Failed to create change note")
			}
			update.Notes = append(update.Notes, note)
		}

		recipients, err := s.groupRecipients(tx, projectID, actorID)
		if err != nil {
			return err
		}
		s.changelog.EmitToAll(tx, recipients, models.EventUpdateScheduled,
			EventPayload{ProjectID: projectID, Extra: targetVersion})
		return nil
	})
	if appErr != nil {
		return nil, appErr
	}
	return &update, nil
}

// Start moves the update SCHEDULED -> IN_DEVELOPMENT and records who
// started it and when.
func (s *UpdateService) Start(actorID, updateID string) *apperrors.AppError {
	return runInTx(s.db, func(tx *gorm.DB) *apperrors.AppError {
		update, project, err := s.loadUpdate(tx, updateID, actorID)
		if err != nil {
			return err
		}
		if update.Status != models.UpdateScheduled {
			return apperrors.InvalidState("Only a scheduled update can be started")
		}

		now := time.Now()
		if err := tx.Model(update).Updates(map[string]interface{}{
			"status":     models.UpdateInDevelopment,
			"start_date": now,
			"started_by": actorID,
		}).Error; err != nil {
			return apperrors.Internal("Failed to start update")
		}

		recipients, appErr := s.groupRecipients(tx, project.ID, actorID)
		if appErr != nil {
			return appErr
		}
		s.changelog.EmitToAll(tx, recipients, models.EventUpdateStarted,
			EventPayload{ProjectID: project.ID, Extra: update.TargetVersion})
		return nil
	})
}

// Publish moves the update IN_DEVELOPMENT -> PUBLISHED, fixes the
// development duration and promotes the project's displayed version to
// the update's target version.
func (s *UpdateService) Publish(actorID, updateID string) *apperrors.AppError {
	return runInTx(s.db, func(tx *gorm.DB) *apperrors.AppError {
		update, project, err := s.loadUpdate(tx, updateID, actorID)
		if err != nil {
			return err
		}
		if update.Status != models.UpdateInDevelopment {
			return apperrors.InvalidState("Only an update in development can be published")
		}

		now := time.Now()
		duration := 0
		if update.StartDate != nil {
			duration = ceilDays(*update.StartDate, now)
		}
		if err := tx.Model(update).Updates(map[string]interface{}{
			"status":               models.UpdatePublished,
			"publish_date":         now,
			"published_by":         actorID,
			"development_duration": duration,
		}).Error; err != nil {
			return apperrors.Internal("Failed to publish update")
		}

		if err := tx.Model(project).Update("version", update.TargetVersion).Error; err != nil {
			return apperrors.Internal("Failed to promote project version")
		}

		recipients, appErr := s.groupRecipients(tx, project.ID, actorID)
		if appErr != nil {
			return appErr
		}
		s.changelog.EmitToAll(tx, recipients, models.EventUpdatePublished,
			EventPayload{ProjectID: project.ID, Extra: update.TargetVersion})
		return nil
	})
}

// Delete removes the update and its change notes. Permitted in any
// state.
func (s *UpdateService) Delete(actorID, updateID string) *apperrors.AppError {
	return runInTx(s.db, func(tx *gorm.DB) *apperrors.AppError {
		update, project, err := s.loadUpdate(tx, updateID, actorID)
		if err != nil {
			return err
		}

		if err := tx.Where("update_id = ?", updateID).Delete(&models.ChangeNote{}).Error; err != nil {
			return apperrors.Internal("Failed to delete change notes")
		}
		if err := tx.Delete(&models.ProjectUpdate{}, "id = ?", updateID).Error; err != nil {
			return apperrors.Internal("Failed to delete update")
		}

		recipients, appErr := s.groupRecipients(tx, project.ID, actorID)
		if appErr != nil {
			return appErr
		}
		s.changelog.EmitToAll(tx, recipients, models.EventUpdateDeleted,
			EventPayload{ProjectID: project.ID, Extra: update.TargetVersion})
		return nil
	})
}

// loadUpdate fetches the update and its project with the update row
// locked, and checks the actor can reach the project.
func (s *UpdateService) loadUpdate(tx *gorm.DB, updateID, actorID string) (*models.ProjectUpdate, *models.Project, *apperrors.AppError) {
	var update models.ProjectUpdate
	if err := database.LockForUpdate(tx).First(&update, "id = ?", updateID).Error; err != nil {
		return nil, nil, apperrors.NotFound("Update not found")
	}
	var project models.Project
	if err := tx.First(&project, "id = ?", update.ProjectID).Error; err != nil {
		return nil, nil, apperrors.NotFound("Project not found")
	}
	if !s.projects.hasProjectAccess(tx, &project, actorID) {
		return nil, nil, apperrors.ErrUnauthorized
	}
	return &update, &project, nil
}

// TotalDevelopmentDays sums the development duration of the project's
// published updates.
func (s *UpdateService) TotalDevelopmentDays(projectID string) (int, *apperrors.AppError) {
	var total int64
	err := s.db.Model(&models.ProjectUpdate{}).
		Where("project_id = ? AND status = ?", projectID, models.UpdatePublished).
		Select("COALESCE(SUM(development_duration), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, apperrors.Internal("Failed to compute development days")
	}
	return int(total), nil
}

// AverageDevelopmentTime returns total development days over the number
// of published updates, zero when nothing was published.
func (s *UpdateService) AverageDevelopmentTime(projectID string) (int, *apperrors.AppError) {
	var count int64
	err := s.db.Model(&models.ProjectUpdate{}).
		Where("project_id = ? AND status = ?", projectID, models.UpdatePublished).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.Internal("Failed to count published updates")
	}
	if count == 0 {
		return 0, nil
	}
	total, appErr := s.TotalDevelopmentDays(projectID)
	if appErr != nil {
		return 0, appErr
	}
	return total / int(count), nil
}
