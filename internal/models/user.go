package models

import (
	"time"

	"github.com/tracklane/tracklane-backend/pkg/utils"
	"gorm.io/gorm"
)

// User is an account in the system. Profile fields are copied into
// GroupMember rows at invite time so member lists render without joins.
type User struct {
	ID             string    `gorm:"primaryKey;type:text" json:"id"`
	Name           string    `gorm:"not null" json:"name"`
	Surname        string    `gorm:"not null" json:"surname"`
	Email          string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash   string    `gorm:"not null" json:"-"`
	ProfilePicture string    `json:"profilePicture"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (User) TableName() string {
	return "User"
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = utils.GenerateID()
	}
	return
}
