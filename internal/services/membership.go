package services

import (
	"github.com/tracklane/tracklane-backend/internal/models"
	apperrors "github.com/tracklane/tracklane-backend/pkg/errors"
	"gorm.io/gorm"
)

// MembershipService answers read-only membership and permission
// queries. All mutation goes through GroupService so invariants are
// checked atomically with the write; every method takes the caller's
// transaction handle for the same reason.
type MembershipService struct {
	db *gorm.DB
}

func NewMembershipService(db *gorm.DB) *MembershipService {
	return &MembershipService{db: db}
}

// GetMember fetches the membership row for (group, user).
func (s *MembershipService) GetMember(tx *gorm.DB, groupID, userID string) (*models.GroupMember, *apperrors.AppError) {
	var member models.GroupMember
	if err := tx.First(&member, "group_id = ? AND user_id = ?", groupID, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("Member not found")
		}
		return nil, apperrors.Internal("Failed to fetch member")
	}
	return &member, nil
}

// ListJoined returns the group's JOINED members.
func (s *MembershipService) ListJoined(tx *gorm.DB, groupID string) ([]models.GroupMember, *apperrors.AppError) {
	var members []models.GroupMember
	if err := tx.Where("group_id = ? AND status = ?", groupID, models.InvitationJoined).Find(&members).Error; err != nil {
		return nil, apperrors.Internal("Failed to fetch members")
	}
	return members, nil
}

// ListAll returns every membership row of the group, any status.
func (s *MembershipService) ListAll(tx *gorm.DB, groupID string) ([]models.GroupMember, *apperrors.AppError) {
	var members []models.GroupMember
	if err := tx.Where("group_id = ?", groupID).Find(&members).Error; err != nil {
		return nil, apperrors.Internal("Failed to fetch members")
	}
	return members, nil
}

// HasOtherAdmins reports whether the group has at least one JOINED
// ADMIN besides the excluded user.
func (s *MembershipService) HasOtherAdmins(tx *gorm.DB, groupID, excludingUserID string) (bool, *apperrors.AppError) {
	var count int64
	err := tx.Model(&models.GroupMember{}).
		Where("group_id = ? AND user_id <> ? AND role = ? AND status = ?",
			groupID, excludingUserID, models.RoleAdmin, models.InvitationJoined).
		Count(&count).Error
	if err != nil {
		return false, apperrors.Internal("Failed to count admins")
	}
	return count > 0, nil
}

// joinedIDs extracts user ids from member rows.
func joinedIDs(members []models.GroupMember) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return ids
}
