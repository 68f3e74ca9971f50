package services

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tracklane/tracklane-backend/internal/models"
	"github.com/tracklane/tracklane-backend/internal/storage"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// testEnv wires the service graph over an in-memory SQLite DB.
type testEnv struct {
	db        *gorm.DB
	store     *storage.MemoryStore
	members   *MembershipService
	changelog *ChangelogService
	groups    *GroupService
	projects  *ProjectService
	updates   *UpdateService
	notes     *NoteService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	// A named shared-cache DB per test keeps the pool on one database
	// while isolating tests from each other.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Group{},
		&models.GroupMember{},
		&models.Project{},
		&models.ProjectGroup{},
		&models.ProjectUpdate{},
		&models.ChangeNote{},
		&models.Changelog{},
	))

	store := storage.NewMemoryStore()
	members := NewMembershipService(db)
	changelog := NewChangelogService(db)
	groups := NewGroupService(db, members, changelog, store)
	projects := NewProjectService(db, members, changelog, store)
	updates := NewUpdateService(db, members, projects, changelog)
	notes := NewNoteService(db, projects)

	return &testEnv{
		db:        db,
		store:     store,
		members:   members,
		changelog: changelog,
		groups:    groups,
		projects:  projects,
		updates:   updates,
		notes:     notes,
	}
}

func (e *testEnv) createUser(t *testing.T, name string) *models.User {
	t.Helper()
	user := models.User{
		Name:         name,
		Surname:      "Tester",
		Email:        fmt.Sprintf("%s@example.com", strings.ToLower(name)),
		PasswordHash: "x",
	}
	require.NoError(t, e.db.Create(&user).Error)
	return &user
}

// memberRow fetches the membership row or fails the test.
func (e *testEnv) memberRow(t *testing.T, groupID, userID string) *models.GroupMember {
	t.Helper()
	var m models.GroupMember
	require.NoError(t, e.db.First(&m, "group_id = ? AND user_id = ?", groupID, userID).Error)
	return &m
}

// inviteChangelog finds the pending invite addressed to the user.
func (e *testEnv) inviteChangelog(t *testing.T, groupID, userID string) *models.Changelog {
	t.Helper()
	var entry models.Changelog
	require.NoError(t, e.db.First(&entry,
		"user_id = ? AND event = ? AND group_id = ?", userID, models.EventInvitedGroup, groupID).Error)
	return &entry
}

// countEvents counts changelog rows for a recipient and event kind.
func (e *testEnv) countEvents(t *testing.T, userID string, event models.ChangelogEvent) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.db.Model(&models.Changelog{}).
		Where("user_id = ? AND event = ?", userID, event).Count(&count).Error)
	return count
}

// joinGroup walks the invite-accept flow for the user.
func (e *testEnv) joinGroup(t *testing.T, groupID, userID string) {
	t.Helper()
	entry := e.inviteChangelog(t, groupID, userID)
	require.Nil(t, e.groups.AcceptInvitation(userID, groupID, entry.ID))
}
