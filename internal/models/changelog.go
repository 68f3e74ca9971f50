package models

import (
	"fmt"
	"time"

	"github.com/tracklane/tracklane-backend/pkg/utils"
	"gorm.io/gorm"
)

// ChangelogEvent is the closed set of lifecycle transitions a changelog
// row can describe. Adding a variant requires extending Message below;
// the default branch exists only to satisfy the compiler and should
// never be reached.
type ChangelogEvent string

const (
	EventInvitedGroup    ChangelogEvent = "INVITED_GROUP"
	EventJoinedGroup     ChangelogEvent = "JOINED_GROUP"
	EventMembersChanged  ChangelogEvent = "GROUP_MEMBERS_CHANGED"
	EventRoleChanged     ChangelogEvent = "ROLE_CHANGED"
	EventLeftGroup       ChangelogEvent = "LEFT_GROUP"
	EventGroupDeleted    ChangelogEvent = "GROUP_DELETED"
	EventProjectAdded    ChangelogEvent = "PROJECT_ADDED"
	EventProjectRemoved  ChangelogEvent = "PROJECT_REMOVED"
	EventUpdateScheduled ChangelogEvent = "UPDATE_SCHEDULED"
	EventUpdateStarted   ChangelogEvent = "UPDATE_STARTED"
	EventUpdatePublished ChangelogEvent = "UPDATE_PUBLISHED"
	EventUpdateDeleted   ChangelogEvent = "UPDATE_DELETED"
)

// Message renders the human-readable text for the event. Total over all
// variants; extra carries the variant-specific detail (group name, new
// role, target version).
func (e ChangelogEvent) Message(extra string) string {
	switch e {
	case EventInvitedGroup:
		return fmt.Sprintf("You have been invited to join the %s group", extra)
	case EventJoinedGroup:
		return fmt.Sprintf("%s joined the group", extra)
	case EventMembersChanged:
		return fmt.Sprintf("The member list of the %s group has changed", extra)
	case EventRoleChanged:
		return fmt.Sprintf("Your role has been changed to %s", extra)
	case EventLeftGroup:
		return fmt.Sprintf("%s left the group", extra)
	case EventGroupDeleted:
		return fmt.Sprintf("The %s group has been deleted", extra)
	case EventProjectAdded:
		return fmt.Sprintf("The %s project has been added to the group", extra)
	case EventProjectRemoved:
		return fmt.Sprintf("The %s project has been removed from the group", extra)
	case EventUpdateScheduled:
		return fmt.Sprintf("A new update %s has been scheduled", extra)
	case EventUpdateStarted:
		return fmt.Sprintf("The update %s is now in development", extra)
	case EventUpdatePublished:
		return fmt.Sprintf("The update %s has been published", extra)
	case EventUpdateDeleted:
		return fmt.Sprintf("The update %s has been deleted", extra)
	default:
		return string(e)
	}
}

// Changelog is one lifecycle notification addressed to one user.
// Accepting a group invitation consumes the matching INVITED_GROUP row.
type Changelog struct {
	ID        string         `gorm:"primaryKey;type:text" json:"id"`
	UserID    string         `gorm:"index;type:text;not null" json:"userId"` // Recipient
	Event     ChangelogEvent `gorm:"type:varchar(30);not null" json:"event"`
	GroupID   *string        `gorm:"index;type:text" json:"groupId,omitempty"`
	ProjectID *string        `gorm:"index;type:text" json:"projectId,omitempty"`
	Extra     string         `gorm:"type:text" json:"extra,omitempty"`
	Message   string         `gorm:"type:text" json:"message"`
	IsRead    bool           `gorm:"default:false" json:"isRead"`
	CreatedAt time.Time      `json:"createdAt"`
}

func (Changelog) TableName() string {
	return "Changelog"
}

func (cl *Changelog) BeforeCreate(tx *gorm.DB) (err error) {
	if cl.ID == "" {
		cl.ID = utils.GenerateID()
	}
	if cl.CreatedAt.IsZero() {
		cl.CreatedAt = time.Now()
	}
	return
}
