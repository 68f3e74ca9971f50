package services

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/tracklane/tracklane-backend/internal/models"
	"github.com/tracklane/tracklane-backend/internal/storage"
	apperrors "github.com/tracklane/tracklane-backend/pkg/errors"
	"github.com/tracklane/tracklane-backend/pkg/logger"
	"github.com/tracklane/tracklane-backend/pkg/utils"
	"gorm.io/gorm"
)

// ProjectInput carries the caller-editable fields of a project. Groups
// is the desired set of group ids the project is shared with.
type ProjectInput struct {
	Name          string   `json:"name" binding:"required"`
	Description   string   `json:"description"`
	Version       string   `json:"version"`
	RepositoryURL string   `json:"repository"`
	Groups        []string `json:"groups"`
}

// ProjectService owns project CRUD and the project-to-group
// association sync.
type ProjectService struct {
	db        *gorm.DB
	members   *MembershipService
	changelog *ChangelogService
	store     storage.ResourceStore
}

func NewProjectService(db *gorm.DB, members *MembershipService, changelog *ChangelogService, store storage.ResourceStore) *ProjectService {
	return &ProjectService{db: db, members: members, changelog: changelog, store: store}
}

func validateProjectInput(in *ProjectInput) *apperrors.AppError {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return apperrors.Validation("Project name is required")
	}
	if len(in.Name) > models.MaxProjectNameLength {
		return apperrors.Validation(fmt.Sprintf("Project name must be at most %d characters", models.MaxProjectNameLength))
	}
	if in.Version != "" && !utils.IsValidVersion(in.Version) {
		return apperrors.Validation("Invalid version format")
	}
	if in.RepositoryURL != "" {
		u, err := url.Parse(in.RepositoryURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return apperrors.Validation("Invalid repository URL")
		}
	}
	return nil
}

// CreateProject creates a project owned by the actor and shares it with
// the requested groups.
func (s *ProjectService) CreateProject(actorID string, in ProjectInput) (*models.Project, *apperrors.AppError) {
	if err := validateProjectInput(&in); err != nil {
		return nil, err
	}

	var project models.Project
	appErr := runInTx(s.db, func(tx *gorm.DB) *apperrors.AppError {
		var count int64
		tx.Model(&models.Project{}).Where("name = ?", in.Name).Count(&count)
		if count > 0 {
			return apperrors.Conflict("A project with this name already exists")
		}

		project = models.Project{
			Name:          in.Name,
			Description:   in.Description,
			Version:       in.Version,
			RepositoryURL: in.RepositoryURL,
			AuthorID:      actorID,
		}
		if err := tx.Create(&project).Error; err != nil {
			return apperrors.Internal("Failed to create project")
		}

		return s.syncGroups(tx, &project, in.Groups, actorID)
	})
	if appErr != nil {
		return nil, appErr
	}
	return &project, nil
}

// EditProject updates the project fields (author only) and reconciles
// its group associations against the desired list.
func (s *ProjectService) EditProject(actorID, projectID string, in ProjectInput) (*models.Project, *apperrors.AppError) {
	if err := validateProjectInput(&in); err != nil {
		return nil, err
	}

	var project models.Project
	appErr := runInTx(s.db, func(tx *gorm.DB) *apperrors.AppError {
		if err := tx.First(&project, "id = ?", projectID).Error; err != nil {
			return apperrors.NotFound("Project not found")
		}
		if project.AuthorID != actorID {
			return apperrors.Authorization("Only the project author can edit the project")
		}

		if in.Name != project.Name {
			var count int64
			tx.Model(&models.Project{}).Where("name = ? AND id <> ?", in.Name, projectID).Count(&count)
			if count > 0 {
				return apperrors.Conflict("A project with this name already exists")
			}
		}
		if err := tx.Model(&project).Updates(map[string]interface{}{
			"name":           in.Name,
			"description":    in.Description,
			"version":        in.Version,
			"repository_url": in.RepositoryURL,
		}).Error; err != nil {
			return apperrors.Internal("Failed to update project")
		}
		project.Name = in.Name
		project.Description = in.Description
		project.Version = in.Version
		project.RepositoryURL = in.RepositoryURL

		return s.syncGroups(tx, &project, in.Groups, actorID)
	})
	if appErr != nil {
		return nil, appErr
	}
	return &project, nil
}

// syncGroups reconciles the project's group associations against the
// desired id set. The actor must hold a joined membership in every
// newly associated group. Joined members of each affected group are
// notified per inserted/removed association.
func (s *ProjectService) syncGroups(tx *gorm.DB, project *models.Project, desired []string, actorID string) *apperrors.AppError {
	var current []string
	if err := tx.Model(&models.ProjectGroup{}).Where("project_id = ?", project.ID).
		Pluck("group_id", &current).Error; err != nil {
		return apperrors.Internal("Failed to fetch group associations")
	}

	toAdd, toRemove := Reconcile(dedupe(desired, ""), current)

	for _, groupID := range toAdd {
		member, err := s.members.GetMember(tx, groupID, actorID)
		if err != nil {
			return apperrors.Authorization("You are not a member of one of the groups")
		}
		if !member.Joined() {
			return apperrors.Authorization("You are not a joined member of one of the groups")
		}
	}

	for _, groupID := range toAdd {
		if err := tx.Create(&models.ProjectGroup{ProjectID: project.ID, GroupID: groupID}).Error; err != nil {
			return apperrors.Internal("Failed to associate group")
		}
	}
	if len(toRemove) > 0 {
		if err := tx.Where("project_id = ? AND group_id IN ?", project.ID, toRemove).
			Delete(&models.ProjectGroup{}).Error; err != nil {
			return apperrors.Internal("Failed to disassociate groups")
		}
	}

	for _, groupID := range toAdd {
		joined, err := s.members.ListJoined(tx, groupID)
		if err != nil {
			return err
		}
		s.changelog.EmitToAll(tx, joinedIDs(joined), models.EventProjectAdded,
			EventPayload{GroupID: groupID, ProjectID: project.ID, Extra: project.Name})
	}
	for _, groupID := range toRemove {
		joined, err := s.members.ListJoined(tx, groupID)
		if err != nil {
			return err
		}
		s.changelog.EmitToAll(tx, joinedIDs(joined), models.EventProjectRemoved,
			EventPayload{GroupID: groupID, ProjectID: project.ID, Extra: project.Name})
	}
	return nil
}

// hasProjectAccess reports whether the user is the author or a joined
// member of any associated group.
func (s *ProjectService) hasProjectAccess(tx *gorm.DB, project *models.Project, userID string) bool {
	if project.AuthorID == userID {
		return true
	}
	var count int64
	tx.Model(&models.ProjectGroup{}).
		Joins(`JOIN "GroupMember" gm ON gm.group_id = "ProjectGroup".group_id`).
		Where(`"ProjectGroup".project_id = ? AND gm.user_id = ? AND gm.status = ?`,
			project.ID, userID, models.InvitationJoined).
		Count(&count)
	return count > 0
}

// GetProject returns the project with its updates and notes, newest
// update first.
func (s *ProjectService) GetProject(userID, projectID string) (*models.Project, *apperrors.AppError) {
	var project models.Project
	err := s.db.
		Preload("Updates", func(db *gorm.DB) *gorm.DB {
			return db.Order("create_date desc")
		}).
		Preload("Updates.Notes").
		First(&project, "id = ?", projectID).Error
	if err != nil {
		return nil, apperrors.NotFound("Project not found")
	}
	if !s.hasProjectAccess(s.db, &project, userID) {
		return nil, apperrors.ErrUnauthorized
	}
	return &project, nil
}

// ListProjects returns the projects the user authored or can reach
// through a joined group membership.
func (s *ProjectService) ListProjects(userID string) ([]models.Project, *apperrors.AppError) {
	var projects []models.Project
	err := s.db.
		Where(`author_id = ? OR id IN (?)`, userID,
			s.db.Model(&models.ProjectGroup{}).
				Select("project_id").
				Joins(`JOIN "GroupMember" gm ON gm.group_id = "ProjectGroup".group_id`).
				Where("gm.user_id = ? AND gm.status = ?", userID, models.InvitationJoined)).
		Order("created_at desc").
		Find(&projects).Error
	if err != nil {
		return nil, apperrors.Internal("Failed to fetch projects")
	}
	return projects, nil
}

// DeleteProject removes the project, its updates and notes, its group
// associations and its icon blob. Author only.
func (s *ProjectService) DeleteProject(actorID, projectID string) *apperrors.AppError {
	return runInTx(s.db, func(tx *gorm.DB) *apperrors.AppError {
		var project models.Project
		if err := tx.First(&project, "id = ?", projectID).Error; err != nil {
			return apperrors.NotFound("Project not found")
		}
		if project.AuthorID != actorID {
			return apperrors.Authorization("Only the project author can delete the project")
		}

		var updateIDs []string
		if err := tx.Model(&models.ProjectUpdate{}).Where("project_id = ?", projectID).
			Pluck("id", &updateIDs).Error; err != nil {
			return apperrors.Internal("Failed to resolve updates")
		}
		if len(updateIDs) > 0 {
			if err := tx.Where("update_id IN ?", updateIDs).Delete(&models.ChangeNote{}).Error; err != nil {
				return apperrors.Internal("Failed to delete change notes")
			}
			if err := tx.Where("project_id = ?", projectID).Delete(&models.ProjectUpdate{}).Error; err != nil {
				return apperrors.Internal("Failed to delete updates")
			}
		}
		if err := tx.Where("project_id = ?", projectID).Delete(&models.ProjectGroup{}).Error; err != nil {
			return apperrors.Internal("Failed to delete group associations")
		}
		if err := tx.Delete(&models.Project{}, "id = ?", projectID).Error; err != nil {
			return apperrors.Internal("Failed to delete project")
		}

		if project.IconKey != "" {
			if err := s.store.Delete(context.Background(), project.IconKey); err != nil {
				logger.Warn().Err(err).Str("project", projectID).Msg("Failed to delete project icon")
			}
		}
		return nil
	})
}

// SetIcon stores the project icon blob and records its key/URL. Author
// only.
func (s *ProjectService) SetIcon(actorID, projectID, ext, contentType string, body io.Reader) (string, *apperrors.AppError) {
	var project models.Project
	if err := s.db.First(&project, "id = ?", projectID).Error; err != nil {
		return "", apperrors.NotFound("Project not found")
	}
	if project.AuthorID != actorID {
		return "", apperrors.Authorization("Only the project author can change the icon")
	}

	key := fmt.Sprintf("projects/%s%s", projectID, ext)
	url, putErr := s.store.Put(context.Background(), key, body, contentType)
	if putErr != nil {
		return "", apperrors.Internal("Failed to store icon")
	}

	if dbErr := s.db.Model(&project).Updates(map[string]interface{}{
		"icon_key": key,
		"icon_url": url,
	}).Error; dbErr != nil {
		return "", apperrors.Internal("Failed to save icon reference")
	}
	return url, nil
}
