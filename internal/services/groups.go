package services

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tracklane/tracklane-backend/internal/database"
	"github.com/tracklane/tracklane-backend/internal/models"
	"github.com/tracklane/tracklane-backend/internal/storage"
	apperrors "github.com/tracklane/tracklane-backend/pkg/errors"
	"github.com/tracklane/tracklane-backend/pkg/logger"
	"gorm.io/gorm"
)

// GroupInput carries the caller-editable fields of a group. Members is
// the desired set of invited/joined user ids (the author is implicit
// and never part of the diff); Projects is the desired set of
// associated project ids.
type GroupInput struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Members     []string `json:"members"`
	Projects    []string `json:"projects"`
}

// GroupService owns the group lifecycle: creation, edits, membership
// management with admin-succession invariants, and deletion. Every
// mutation runs in one transaction with the affected member rows locked
// so the "at least one JOINED admin" invariant survives concurrent
// requests.
type GroupService struct {
	db        *gorm.DB
	members   *MembershipService
	changelog *ChangelogService
	store     storage.ResourceStore
}

func NewGroupService(db *gorm.DB, members *MembershipService, changelog *ChangelogService, store storage.ResourceStore) *GroupService {
	return &GroupService{db: db, members: members, changelog: changelog, store: store}
}

func validateGroupInput(in *GroupInput) *apperrors.AppError {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return apperrors.Validation("Group name is required")
	}
	if len(in.Name) > models.MaxGroupNameLength {
		return apperrors.Validation(fmt.Sprintf("Group name must be at most %d characters", models.MaxGroupNameLength))
	}
	if len(in.Description) > models.MaxGroupDescriptionLength {
		return apperrors.Validation(fmt.Sprintf("Group description must be at most %d characters", models.MaxGroupDescriptionLength))
	}
	return nil
}

// CreateGroup creates a group with the actor as implicit ADMIN/JOINED
// member, invites the requested members and associates the requested
// projects.
func (s *GroupService) CreateGroup(actorID string, in GroupInput) (*models.Group, *apperrors.AppError) {
	if err := validateGroupInput(&in); err != nil {
		return nil, err
	}

	var group models.Group
	appErr := runInTx(s.db, func(tx *gorm.DB) *apperrors.AppError {
		var author models.User
		if err := tx.First(&author, "id = ?", actorID).Error; err != nil {
			return apperrors.NotFound("User not found")
		}

		var count int64
		tx.Model(&models.Group{}).Where("author_id = ? AND name = ?", actorID, in.Name).Count(&count)
		if count > 0 {
			return apperrors.Conflict("You already own a group with this name")
		}

		group = models.Group{
			Name:        in.Name,
			Description: in.Description,
			AuthorID:    actorID,
		}
		if err := tx.Create(&group).Error; err != nil {
			return apperrors.Internal("Failed to create group")
		}

		authorMember := models.GroupMember{
			GroupID:        group.ID,
			UserID:         author.ID,
			Name:           author.Name,
			Surname:        author.Surname,
			Email:          author.Email,
			ProfilePicture: author.ProfilePicture,
			Role:           models.RoleAdmin,
			Status:         models.InvitationJoined,
		}
		if err := tx.Create(&authorMember).Error; err != nil {
			return apperrors.Internal("Failed to create group author membership")
		}

		if err := s.inviteMembers(tx, &group, dedupe(in.Members, actorID)); err != nil {
			return err
		}

		return s.syncProjects(tx, &group, in.Projects, actorID)
	})
	if appErr != nil {
		return nil, appErr
	}
	return &group, nil
}

// EditGroup updates name/description (author only) and synchronizes the
// member and project sets against the supplied desired lists. The
// requester is excluded from removal consideration; removed members
// lose their row silently. After any member-set change every currently
// joined member gets a membership-refresh notice.
func (s *GroupService) EditGroup(actorID, groupID string, in GroupInput) (*models.Group, *apperrors.AppError) {
	if err := validateGroupInput(&in); err != nil {
		return nil, err
	}

	var group models.Group
	appErr := runInTx(s.db, func(tx *gorm.DB) *apperrors.AppError {
		if err := tx.First(&group, "id = ?", groupID).Error; err != nil {
			return apperrors.NotFound("Group not found")
		}
		if group.AuthorID != actorID {
			return apperrors.Authorization("Only the group author can edit the group")
		}

		if in.Name != group.Name {
			var count int64
			tx.Model(&models.Group{}).Where("author_id = ? AND name = ? AND id <> ?", actorID, in.Name, groupID).Count(&count)
			if count > 0 {
				return apperrors.Conflict("You already own a group with this name")
			}
		}
		if err := tx.Model(&group).Updates(map[string]interface{}{
			"name":        in.Name,
			"description": in.Description,
		}).Error; err != nil {
			return apperrors.Internal("Failed to update group")
		}
		group.Name = in.Name
		group.Description = in.Description

		current, err := s.members.ListAll(database.LockForUpdate(tx), groupID)
		if err != nil {
			return err
		}
		currentIDs := make([]string, 0, len(current))
		for _, m := range current {
			if m.UserID != group.AuthorID {
				currentIDs = append(currentIDs, m.UserID)
			}
		}

		toInvite, toRemove := Reconcile(dedupe(in.Members, group.AuthorID), currentIDs)

		if err := s.inviteMembers(tx, &group, toInvite); err != nil {
			return err
		}
		if len(toRemove) > 0 {
			if err := tx.Where("group_id = ? AND user_id IN ?", groupID, toRemove).
				Delete(&models.GroupMember{}).Error; err != nil {
				return apperrors.Internal("Failed to remove members")
			}
		}

		if len(toInvite)+len(toRemove) > 0 {
			joined, err := s.members.ListJoined(tx, groupID)
			if err != nil {
				return err
			}
			s.changelog.EmitToAll(tx, joinedIDs(joined), models.EventMembersChanged,
				EventPayload{GroupID: groupID, Extra: group.Name})
		}

		return s.syncProjects(tx, &group, in.Projects, actorID)
	})
	if appErr != nil {
		return nil, appErr
	}
	return &group, nil
}

// inviteMembers creates PENDING/DEVELOPER rows for the given user ids,
// copying display fields from the user records, and emits an invite
// changelog to each. All invited users are resolved before the first
// row is written.
func (s *GroupService) inviteMembers(tx *gorm.DB, group *models.Group, userIDs []string) *apperrors.AppError {
	if len(userIDs) == 0 {
		return nil
	}

	var users []models.User
	if err := tx.Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return apperrors.Internal("Failed to resolve invited users")
	}
	if len(users) != len(userIDs) {
		return apperrors.NotFound("One or more invited users do not exist")
	}

	for _, user := range users {
		member := models.GroupMember{
			GroupID:        group.ID,
			UserID:         user.ID,
			Name:           user.Name,
			Surname:        user.Surname,
			Email:          user.Email,
			ProfilePicture: user.ProfilePicture,
			Role:           models.RoleDeveloper,
			Status:         models.InvitationPending,
		}
		if err := tx.Create(&member).Error; err != nil {
			return apperrors.Internal("Failed to invite member")
		}
		s.changelog.Emit(tx, user.ID, models.EventInvitedGroup,
			EventPayload{GroupID: group.ID, Extra: group.Name})
	}
	return nil
}

// syncProjects reconciles the group's project associations against the
// desired id set and notifies every currently joined member of each
// inserted and removed association.
func (s *GroupService) syncProjects(tx *gorm.DB, group *models.Group, desired []string, actorID string) *apperrors.AppError {
	var current []string
	if err := tx.Model(&models.ProjectGroup{}).Where("group_id = ?", group.ID).
		Pluck("project_id", &current).Error; err != nil {
		return apperrors.Internal("Failed to fetch project associations")
	}

	toAdd, toRemove := Reconcile(dedupe(desired, ""), current)
	if len(toAdd)+len(toRemove) == 0 {
		return nil
	}

	names := make(map[string]string)
	if len(toAdd) > 0 {
		var projects []models.Project
		if err := tx.Where("id IN ?", toAdd).Find(&projects).Error; err != nil {
			return apperrors.Internal("Failed to resolve projects")
		}
		if len(projects) != len(toAdd) {
			return apperrors.NotFound("One or more projects do not exist")
		}
		for _, p := range projects {
			if p.AuthorID != actorID {
				return apperrors.Authorization("Only your own projects can be shared with a group")
			}
			names[p.ID] = p.Name
		}
	}
	if len(toRemove) > 0 {
		var projects []models.Project
		tx.Where("id IN ?", toRemove).Find(&projects)
		for _, p := range projects {
			names[p.ID] = p.Name
		}
	}

	for _, id := range toAdd {
		if err := tx.Create(&models.ProjectGroup{ProjectID: id, GroupID: group.ID}).Error; err != nil {
			return apperrors.Internal("Failed to associate project")
		}
	}
	if len(toRemove) > 0 {
		if err := tx.Where("group_id = ? AND project_id IN ?", group.ID, toRemove).
			Delete(&models.ProjectGroup{}).Error; err != nil {
			return apperrors.Internal("Failed to disassociate projects")
		}
	}

	joined, appErr := s.members.ListJoined(tx, group.ID)
	if appErr != nil {
		return appErr
	}
	recipients := joinedIDs(joined)
	for _, id := range toAdd {
		s.changelog.EmitToAll(tx, recipients, models.EventProjectAdded,
			EventPayload{GroupID: group.ID, ProjectID: id, Extra: names[id]})
	}
	for _, id := range toRemove {
		s.changelog.EmitToAll(tx, recipients, models.EventProjectRemoved,
			EventPayload{GroupID: group.ID, ProjectID: id, Extra: names[id]})
	}
	return nil
}

// ChangeMemberRole changes the target member's role. The actor must be
// a JOINED maintainer or admin acting on somebody else; a maintainer
// may only touch plain developers. Demoting an admin requires another
// JOINED admin to remain.
func (s *GroupService) ChangeMemberRole(actorID, groupID, targetUserID string, newRole models.Role) *apperrors.AppError {
	switch newRole {
	case models.RoleAdmin, models.RoleMaintainer, models.RoleDeveloper:
	default:
		return apperrors.Validation("Unknown role")
	}

	return runInTx(s.db, func(tx *gorm.DB) *apperrors.AppError {
		return s.changeMemberRole(tx, actorID, groupID, targetUserID, newRole)
	})
}

func (s *GroupService) changeMemberRole(tx *gorm.DB, actorID, groupID, targetUserID string, newRole models.Role) *apperrors.AppError {
	if actorID == targetUserID {
		return apperrors.Authorization("You cannot change your own role")
	}

	actor, err := s.members.GetMember(database.LockForUpdate(tx), groupID, actorID)
	if err != nil {
		return err
	}
	if !actor.Joined() || !actor.IsMaintainer() {
		return apperrors.Authorization("Changing roles requires at least the maintainer role")
	}

	target, err := s.members.GetMember(database.LockForUpdate(tx), groupID, targetUserID)
	if err != nil {
		return err
	}
	if !target.Joined() {
		return apperrors.InvalidState("The member has not joined the group yet")
	}
	if !actor.IsAdmin() && target.IsMaintainer() {
		return apperrors.Authorization("Maintainers can only manage developers")
	}

	if target.IsAdmin() && newRole != models.RoleAdmin {
		hasOther, err := s.members.HasOtherAdmins(tx, groupID, targetUserID)
		if err != nil {
			return err
		}
		if !hasOther {
			return apperrors.Invariant("The group must keep at least one admin")
		}
	}

	if err := tx.Model(&models.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, targetUserID).
		Update("role", newRole).Error; err != nil {
		return apperrors.Internal("Failed to change role")
	}

	s.changelog.Emit(tx, targetUserID, models.EventRoleChanged,
		EventPayload{GroupID: groupID, Extra: string(newRole)})
	return nil
}

// RemoveMember deletes the target's membership row. Same authorization
// rule as ChangeMemberRole; the group author is never removable; no
// notification is sent to the removed user.
func (s *GroupService) RemoveMember(actorID, groupID, targetUserID string) *apperrors.AppError {
	return runInTx(s.db, func(tx *gorm.DB) *apperrors.AppError {
		if actorID == targetUserID {
			return apperrors.Authorization("Leave the group instead of removing yourself")
		}

		var group models.Group
		if err := tx.First(&group, "id = ?", groupID).Error; err != nil {
			return apperrors.NotFound("Group not found")
		}
		if targetUserID == group.AuthorID {
			return apperrors.Authorization("The group author cannot be removed")
		}

		actor, err := s.members.GetMember(database.LockForUpdate(tx), groupID, actorID)
		if err != nil {
			return err
		}
		if !actor.Joined() || !actor.IsMaintainer() {
			return apperrors.Authorization("Removing members requires at least the maintainer role")
		}

		target, err := s.members.GetMember(database.LockForUpdate(tx), groupID, targetUserID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && target.IsMaintainer() {
			return apperrors.Authorization("Maintainers can only manage developers")
		}

		if target.Joined() && target.IsAdmin() {
			hasOther, err := s.members.HasOtherAdmins(tx, groupID, targetUserID)
			if err != nil {
				return err
			}
			if !hasOther {
				return apperrors.Invariant("The group must keep at least one admin")
			}
		}

		if err := tx.Where("group_id = ? AND user_id = ?", groupID, targetUserID).
			Delete(&models.GroupMember{}).Error; err != nil {
			return apperrors.Internal("Failed to remove member")
		}
		// Removal is silent: no changelog for the removed user.
		return nil
	})
}

// AcceptInvitation transitions the caller's membership PENDING->JOINED.
// A matching invite changelog addressed to the caller must exist and is
// consumed; every other joined member is notified.
func (s *GroupService) AcceptInvitation(userID, groupID, changelogID string) *apperrors.AppError {
	return runInTx(s.db, func(tx *gorm.DB) *apperrors.AppError {
		entry, err := s.matchInvitation(tx, userID, groupID, changelogID)
		if err != nil {
			return err
		}

		member, err := s.members.GetMember(database.LockForUpdate(tx), groupID, userID)
		if err != nil {
			return err
		}
		if member.Joined() {
			return apperrors.InvalidState("Invitation already accepted")
		}

		if err := tx.Model(&models.GroupMember{}).
			Where("group_id = ? AND user_id = ?", groupID, userID).
			Update("status", models.InvitationJoined).Error; err != nil {
			return apperrors.Internal("Failed to accept invitation")
		}
		if err := tx.Delete(&models.Changelog{}, "id = ?", entry.ID).Error; err != nil {
			return apperrors.Internal("Failed to consume invitation")
		}

		joined, appErr := s.members.ListJoined(tx, groupID)
		if appErr != nil {
			return appErr
		}
		fullName := fmt.Sprintf("%s %s", member.Name, member.Surname)
		for _, m := range joined {
			if m.UserID == userID {
				continue
			}
			s.changelog.Emit(tx, m.UserID, models.EventJoinedGroup,
				EventPayload{GroupID: groupID, Extra: fullName})
		}
		return nil
	})
}

// DeclineInvitation removes the caller's pending membership and the
// matching invite changelog. Fails once the invitation was accepted.
func (s *GroupService) DeclineInvitation(userID, groupID, changelogID string) *apperrors.AppError {
	return runInTx(s.db, func(tx *gorm.DB) *apperrors.AppError {
		entry, err := s.matchInvitation(tx, userID, groupID, changelogID)
		if err != nil {
			return err
		}

		member, err := s.members.GetMember(database.LockForUpdate(tx), groupID, userID)
		if err != nil {
			return err
		}
		if member.Joined() {
			return apperrors.InvalidState("Invitation already accepted")
		}

		if err := tx.Where("group_id = ? AND user_id = ?", groupID, userID).
			Delete(&models.GroupMember{}).Error; err != nil {
			return apperrors.Internal("Failed to decline invitation")
		}
		if err := tx.Delete(&models.Changelog{}, "id = ?", entry.ID).Error; err != nil {
			return apperrors.Internal("Failed to consume invitation")
		}
		return nil
	})
}

func (s *GroupService) matchInvitation(tx *gorm.DB, userID, groupID, changelogID string) (*models.Changelog, *apperrors.AppError) {
	var entry models.Changelog
	err := tx.First(&entry, "id = ? AND user_id = ? AND event = ? AND group_id = ?",
		changelogID, userID, models.EventInvitedGroup, groupID).Error
	if err != nil {
		return nil, apperrors.Authorization("No matching invitation for this group")
	}
	return &entry, nil
}

// LeaveGroup removes the caller from the group.
//
// Cases, in order: a group with no other members is deleted outright; a
// non-admin (or an admin covered by another JOINED admin) just leaves;
// the sole admin of a non-empty group must hand over to nextAdminID,
// an existing JOINED member, before leaving. Projects authored by the
// leaving user are disassociated from the group, not deleted.
func (s *GroupService) LeaveGroup(userID, groupID, nextAdminID string) *apperrors.AppError {
	return runInTx(s.db, func(tx *gorm.DB) *apperrors.AppError {
		var group models.Group
		if err := tx.First(&group, "id = ?", groupID).Error; err != nil {
			return apperrors.NotFound("Group not found")
		}

		member, err := s.members.GetMember(database.LockForUpdate(tx), groupID, userID)
		if err != nil {
			return err
		}
		if !member.Joined() {
			return apperrors.InvalidState("Pending invitations are declined, not left")
		}

		all, err := s.members.ListAll(database.LockForUpdate(tx), groupID)
		if err != nil {
			return err
		}
		others := 0
		for _, m := range all {
			if m.UserID != userID {
				others++
			}
		}
		if others == 0 {
			return s.deleteGroup(tx, &group)
		}

		if member.IsAdmin() {
			hasOther, err := s.members.HasOtherAdmins(tx, groupID, userID)
			if err != nil {
				return err
			}
			if !hasOther {
				if nextAdminID == "" || nextAdminID == userID {
					return apperrors.Invariant("A next admin must be named before the last admin can leave")
				}
				if err := s.changeMemberRole(tx, userID, groupID, nextAdminID, models.RoleAdmin); err != nil {
					return apperrors.Invariant("The named next admin is not a joined member of the group")
				}
			}
		}

		// Projects authored by the leaving user stay alive but lose the
		// group association.
		var authoredIDs []string
		if err := tx.Model(&models.Project{}).Where("author_id = ?", userID).
			Pluck("id", &authoredIDs).Error; err != nil {
			return apperrors.Internal("Failed to resolve authored projects")
		}
		if len(authoredIDs) > 0 {
			if err := tx.Where("group_id = ? AND project_id IN ?", groupID, authoredIDs).
				Delete(&models.ProjectGroup{}).Error; err != nil {
				return apperrors.Internal("Failed to disassociate projects")
			}
		}

		if err := tx.Where("group_id = ? AND user_id = ?", groupID, userID).
			Delete(&models.GroupMember{}).Error; err != nil {
			return apperrors.Internal("Failed to leave group")
		}

		joined, appErr := s.members.ListJoined(tx, groupID)
		if appErr != nil {
			return appErr
		}
		fullName := fmt.Sprintf("%s %s", member.Name, member.Surname)
		s.changelog.EmitToAll(tx, joinedIDs(joined), models.EventLeftGroup,
			EventPayload{GroupID: groupID, Extra: fullName})
		return nil
	})
}

// DeleteGroup removes the group with all memberships and project
// associations. Admin only. Every member joined at deletion time is
// notified; associated projects survive.
func (s *GroupService) DeleteGroup(actorID, groupID string) *apperrors.AppError {
	return runInTx(s.db, func(tx *gorm.DB) *apperrors.AppError {
		var group models.Group
		if err := tx.First(&group, "id = ?", groupID).Error; err != nil {
			return apperrors.NotFound("Group not found")
		}

		actor, err := s.members.GetMember(database.LockForUpdate(tx), groupID, actorID)
		if err != nil {
			return err
		}
		if !actor.Joined() || !actor.IsAdmin() {
			return apperrors.Authorization("Deleting a group requires the admin role")
		}

		return s.deleteGroup(tx, &group)
	})
}

func (s *GroupService) deleteGroup(tx *gorm.DB, group *models.Group) *apperrors.AppError {
	joined, appErr := s.members.ListJoined(tx, group.ID)
	if appErr != nil {
		return appErr
	}

	if err := tx.Where("group_id = ?", group.ID).Delete(&models.GroupMember{}).Error; err != nil {
		return apperrors.Internal("Failed to delete memberships")
	}
	if err := tx.Where("group_id = ?", group.ID).Delete(&models.ProjectGroup{}).Error; err != nil {
		return apperrors.Internal("Failed to delete project associations")
	}
	if err := tx.Delete(&models.Group{}, "id = ?", group.ID).Error; err != nil {
		return apperrors.Internal("Failed to delete group")
	}

	if group.LogoKey != "" {
		if err := s.store.Delete(context.Background(), group.LogoKey); err != nil {
			logger.Warn().Err(err).Str("group", group.ID).Msg("Failed to delete group logo")
		}
	}

	s.changelog.EmitToAll(tx, joinedIDs(joined), models.EventGroupDeleted,
		EventPayload{GroupID: group.ID, Extra: group.Name})
	return nil
}

// SetLogo stores the group logo blob and records its key/URL. Author or
// any joined admin may change it.
func (s *GroupService) SetLogo(actorID, groupID, ext, contentType string, body io.Reader) (string, *apperrors.AppError) {
	var group models.Group
	if err := s.db.First(&group, "id = ?", groupID).Error; err != nil {
		return "", apperrors.NotFound("Group not found")
	}

	actor, err := s.members.GetMember(s.db, groupID, actorID)
	if err != nil {
		return "", err
	}
	if !actor.Joined() || !actor.IsAdmin() {
		return "", apperrors.Authorization("Changing the logo requires the admin role")
	}

	key := fmt.Sprintf("groups/%s%s", groupID, ext)
	url, putErr := s.store.Put(context.Background(), key, body, contentType)
	if putErr != nil {
		return "", apperrors.Internal("Failed to store logo")
	}

	if dbErr := s.db.Model(&group).Updates(map[string]interface{}{
		"logo_key": key,
		"logo_url": url,
	}).Error; dbErr != nil {
		return "", apperrors.Internal("Failed to save logo reference")
	}
	return url, nil
}

// GetGroup returns the group with its members; the requester must hold
// a membership row (any status).
func (s *GroupService) GetGroup(userID, groupID string) (*models.Group, *apperrors.AppError) {
	if _, err := s.members.GetMember(s.db, groupID, userID); err != nil {
		return nil, apperrors.ErrUnauthorized
	}
	var group models.Group
	if err := s.db.Preload("Members").First(&group, "id = ?", groupID).Error; err != nil {
		return nil, apperrors.NotFound("Group not found")
	}
	return &group, nil
}

// ListGroups returns every group the user holds a membership row in.
func (s *GroupService) ListGroups(userID string) ([]models.Group, *apperrors.AppError) {
	var groups []models.Group
	err := s.db.
		Joins(`JOIN "GroupMember" gm ON gm.group_id = "Group".id`).
		Where("gm.user_id = ?", userID).
		Order(`"Group".created_at desc`).
		Find(&groups).Error
	if err != nil {
		return nil, apperrors.Internal("Failed to fetch groups")
	}
	return groups, nil
}

// CandidateNextAdmins lists the joined members the caller could hand
// the admin role to before leaving.
func (s *GroupService) CandidateNextAdmins(userID, groupID string) ([]models.GroupMember, *apperrors.AppError) {
	if _, err := s.members.GetMember(s.db, groupID, userID); err != nil {
		return nil, apperrors.ErrUnauthorized
	}
	joined, err := s.members.ListJoined(s.db, groupID)
	if err != nil {
		return nil, err
	}
	candidates := make([]models.GroupMember, 0, len(joined))
	for _, m := range joined {
		if m.UserID != userID {
			candidates = append(candidates, m)
		}
	}
	return candidates, nil
}

// dedupe collapses duplicates and drops the excluded id.
func dedupe(ids []string, excluding string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || id == excluding {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
