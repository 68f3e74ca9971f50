package models

import (
	"time"

	"github.com/tracklane/tracklane-backend/pkg/utils"
	"gorm.io/gorm"
)

const (
	MaxProjectNameLength = 15
	MaxNoteContentLength = 200
)

// UpdateStatus is the lifecycle state of a project update. Transitions
// are monotonic: SCHEDULED -> IN_DEVELOPMENT -> PUBLISHED, no skipping,
// no regression.
type UpdateStatus string

const (
	UpdateScheduled     UpdateStatus = "SCHEDULED"
	UpdateInDevelopment UpdateStatus = "IN_DEVELOPMENT"
	UpdatePublished     UpdateStatus = "PUBLISHED"
)

// Project is a tracked codebase owned by a user and optionally shared
// with groups.
type Project struct {
	ID            string    `gorm:"primaryKey;type:text" json:"id"`
	Name          string    `gorm:"uniqueIndex;not null" json:"name"`
	Description   string    `gorm:"type:text" json:"description"`
	Version       string    `json:"version"`
	RepositoryURL string    `json:"repository"`
	IconKey       string    `json:"-"`
	IconURL       string    `json:"icon"`
	AuthorID      string    `gorm:"index;not null" json:"authorId"`
	CreatedAt     time.Time `json:"createdAt"`

	Updates []ProjectUpdate `gorm:"foreignKey:ProjectID" json:"updates,omitempty"`
}

func (Project) TableName() string {
	return "Project"
}

func (p *Project) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == "" {
		p.ID = utils.GenerateID()
	}
	return
}

// ProjectGroup links a project to a group (many-to-many).
type ProjectGroup struct {
	ProjectID string    `gorm:"primaryKey;type:text" json:"projectId"`
	GroupID   string    `gorm:"primaryKey;type:text" json:"groupId"`
	CreatedAt time.Time `json:"createdAt"`
}

func (ProjectGroup) TableName() string {
	return "ProjectGroup"
}

// ProjectUpdate is a versioned unit of work on a project.
type ProjectUpdate struct {
	ID            string       `gorm:"primaryKey;type:text" json:"id"`
	ProjectID     string       `gorm:"index;uniqueIndex:idx_update_project_version;not null" json:"projectId"`
	AuthorID      string       `gorm:"not null" json:"authorId"`
	TargetVersion string       `gorm:"uniqueIndex:idx_update_project_version;not null" json:"targetVersion"`
	Status        UpdateStatus `gorm:"type:varchar(20);not null;default:'SCHEDULED'" json:"status"`
	CreateDate    time.Time    `json:"createDate"`
	StartDate     *time.Time   `json:"startDate,omitempty"`
	StartedBy     string       `json:"startedBy,omitempty"`
	PublishDate   *time.Time   `json:"publishDate,omitempty"`
	PublishedBy   string       `json:"publishedBy,omitempty"`

	// DevelopmentDuration is the ceil'd number of days between start
	// and publish; zero until the update is PUBLISHED.
	DevelopmentDuration int `json:"developmentDuration"`

	Notes []ChangeNote `gorm:"foreignKey:UpdateID" json:"notes,omitempty"`
}

func (ProjectUpdate) TableName() string {
	return "ProjectUpdate"
}

func (u *ProjectUpdate) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = utils.GenerateID()
	}
	if u.CreateDate.IsZero() {
		u.CreateDate = time.Now()
	}
	return
}

// ChangeNote is a to-do line item attached to exactly one update. The
// key is composite: a note id is unique within its owning update, which
// is what the move collision check guards.
type ChangeNote struct {
	ID           string     `gorm:"primaryKey;type:text" json:"id"`
	UpdateID     string     `gorm:"primaryKey;type:text" json:"updateId"`
	AuthorID     string     `gorm:"not null" json:"authorId"`
	Content      string     `gorm:"type:text;not null" json:"content"`
	MarkedAsDone bool       `gorm:"default:false" json:"markedAsDone"`
	MarkedBy     string     `json:"markedBy,omitempty"`
	MarkedAt     *time.Time `json:"markedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

func (ChangeNote) TableName() string {
	return "ChangeNote"
}

func (n *ChangeNote) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == "" {
		n.ID = utils.GenerateID()
	}
	return
}
