package models

import (
	"time"

	"github.com/tracklane/tracklane-backend/pkg/utils"
	"gorm.io/gorm"
)

const (
	MaxGroupNameLength        = 15
	MaxGroupDescriptionLength = 30
)

// Role is a member's permission level within a group
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleMaintainer Role = "MAINTAINER"
	RoleDeveloper  Role = "DEVELOPER"
)

// InvitationStatus tracks whether an invited member has joined
type InvitationStatus string

const (
	InvitationPending InvitationStatus = "PENDING"
	InvitationJoined  InvitationStatus = "JOINED"
)

// Group is a named collection of users collaborating on shared projects.
// The author is immutable and always an implicit ADMIN/JOINED member.
type Group struct {
	ID          string    `gorm:"primaryKey;type:text" json:"id"`
	Name        string    `gorm:"uniqueIndex:idx_group_author_name;not null" json:"name"`
	Description string    `json:"description"`
	LogoKey     string    `json:"-"`
	LogoURL     string    `json:"logo"`
	AuthorID    string    `gorm:"uniqueIndex:idx_group_author_name;index;not null" json:"authorId"`
	CreatedAt   time.Time `json:"createdAt"`

	Members []GroupMember `gorm:"foreignKey:GroupID" json:"members,omitempty"`
}

func (Group) TableName() string {
	return "Group"
}

func (g *Group) BeforeCreate(tx *gorm.DB) (err error) {
	if g.ID == "" {
		g.ID = utils.GenerateID()
	}
	return
}

// GroupMember is the membership row for one user in one group.
// Display fields are denormalized from User at invite time.
type GroupMember struct {
	GroupID        string           `gorm:"primaryKey;type:text" json:"groupId"`
	UserID         string           `gorm:"primaryKey;type:text" json:"userId"`
	Name           string           `json:"name"`
	Surname        string           `json:"surname"`
	Email          string           `json:"email"`
	ProfilePicture string           `json:"profilePicture"`
	Role           Role             `gorm:"type:varchar(20);not null" json:"role"`
	Status         InvitationStatus `gorm:"type:varchar(20);not null;default:'PENDING'" json:"invitationStatus"`
	CreatedAt      time.Time        `json:"createdAt"`
}

func (GroupMember) TableName() string {
	return "GroupMember"
}

// IsAdmin reports whether the member holds the ADMIN role. Callers must
// only evaluate JOINED members; a PENDING member has no authorization.
func (m *GroupMember) IsAdmin() bool {
	return m.Role == RoleAdmin
}

// IsMaintainer reports whether the member is MAINTAINER or above.
func (m *GroupMember) IsMaintainer() bool {
	return m.IsAdmin() || m.Role == RoleMaintainer
}

// Joined reports whether the invitation has been accepted.
func (m *GroupMember) Joined() bool {
	return m.Status == InvitationJoined
}
