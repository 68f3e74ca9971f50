package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tracklane/tracklane-backend/internal/models"
	apperrors "github.com/tracklane/tracklane-backend/pkg/errors"
	"gorm.io/gorm"
)

func TestCreateGroup_AuthorIsImplicitAdmin(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "Alice")
	bob := env.createUser(t, "Bob")

	group, appErr := env.groups.CreateGroup(alice.ID, GroupInput{
		Name:        "core",
		Description: "core team",
		Members:     []string{bob.ID},
	})
	require.Nil(t, appErr)

	author := env.memberRow(t, group.ID, alice.ID)
	assert.Equal(t, models.RoleAdmin, author.Role)
	assert.Equal(t, models.InvitationJoined, author.Status)

	invited := env.memberRow(t, group.ID, bob.ID)
	assert.Equal(t, models.RoleDeveloper, invited.Role)
	assert.Equal(t, models.InvitationPending, invited.Status)
	assert.Equal(t, "Bob", invited.Name)

	assert.EqualValues(t, 1, env.countEvents(t, bob.ID, models.EventInvitedGroup))
}

func TestCreateGroup_Validation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "Alice")

	_, appErr := env.groups.CreateGroup(alice.ID, GroupInput{Name: strings.Repeat("x", 16)})
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindValidation, appErr.Kind)

	_, appErr = env.groups.CreateGroup(alice.ID, GroupInput{
		Name:        "core",
		Description: strings.Repeat("x", 31),
	})
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindValidation, appErr.Kind)
}

func TestCreateGroup_DuplicateNamePerAuthor(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "Alice")
	bob := env.createUser(t, "Bob")

	_, appErr := env.groups.CreateGroup(alice.ID, GroupInput{Name: "core"})
	require.Nil(t, appErr)

	_, appErr = env.groups.CreateGroup(alice.ID, GroupInput{Name: "core"})
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindConflict, appErr.Kind)

	// Another author may reuse the name
	_, appErr = env.groups.CreateGroup(bob.ID, GroupInput{Name: "core"})
	assert.Nil(t, appErr)
}

func TestAcceptInvitation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "Alice")
	bob := env.createUser(t, "Bob")

	group, appErr := env.groups.CreateGroup(alice.ID, GroupInput{Name: "core", Members: []string{bob.ID}})
	require.Nil(t, appErr)

	entry := env.inviteChangelog(t, group.ID, bob.ID)
	require.Nil(t, env.groups.AcceptInvitation(bob.ID, group.ID, entry.ID))

	member := env.memberRow(t, group.ID, bob.ID)
	assert.Equal(t, models.InvitationJoined, member.Status)

	// The invite changelog is consumed
	err := env.db.First(&models.Changelog{}, "id = ?", entry.ID).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// The other joined member is notified
	assert.EqualValues(t, 1, env.countEvents(t, alice.ID, models.EventJoinedGroup))
	assert.EqualValues(t, 0, env.countEvents(t, bob.ID, models.EventJoinedGroup))
}

func TestAcceptInvitation_NoMatchingChangelog(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "Alice")
	bob := env.createUser(t, "Bob")

	group, appErr := env.groups.CreateGroup(alice.ID, GroupInput{Name: "core", Members: []string{bob.ID}})
	require.Nil(t, appErr)

	appErr = env.groups.AcceptInvitation(bob.ID, group.ID, "bogus")
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindAuthorization, appErr.Kind)

	member := env.memberRow(t, group.ID, bob.ID)
	assert.Equal(t, models.InvitationPending, member.Status)
}

func TestDeclineInvitation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "Alice")
	bob := env.createUser(t, "Bob")

	group, appErr := env.groups.CreateGroup(alice.ID, GroupInput{Name: "core", Members: []string{bob.ID}})
	require.Nil(t, appErr)

	entry := env.inviteChangelog(t, group.ID, bob.ID)
	require.Nil(t, env.groups.DeclineInvitation(bob.ID, group.ID, entry.ID))

	err := env.db.First(&models.GroupMember{}, "group_id = ? AND user_id = ?", group.ID, bob.ID).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	err = env.db.First(&models.Changelog{}, "id = ?", entry.ID).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDeclineInvitation_AfterJoining(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "Alice")
	bob := env.createUser(t, "Bob")

	group, appErr := env.groups.CreateGroup(alice.ID, GroupInput{Name: "core", Members: []string{bob.ID}})
	require.Nil(t, appErr)

	// Joining consumes the invite, so a fresh one is forged to exercise
	// the status check alone.
	env.joinGroup(t, group.ID, bob.ID)
	forged := models.Changelog{UserID: bob.ID, Event: models.EventInvitedGroup, GroupID: &group.ID}
	require.NoError(t, env.db.Create(&forged).Error)

	appErr = env.groups.DeclineInvitation(bob.ID, group.ID, forged.ID)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindInvalidState, appErr.Kind)
}

func TestChangeMemberRole_MaintainerCannotTouchAdmin(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "Alice")
	bob := env.createUser(t, "Bob")

	group, appErr := env.groups.CreateGroup(alice.ID, GroupInput{Name: "core", Members: []string{bob.ID}})
	require.Nil(t, appErr)
	env.joinGroup(t, group.ID, bob.ID)

	// Admin promotes developer to maintainer
	require.Nil(t, env.groups.ChangeMemberRole(alice.ID, group.ID, bob.ID, models.RoleMaintainer))
	assert.Equal(t, models.RoleMaintainer, env.memberRow(t, group.ID, bob.ID).Role)
	assert.EqualValues(t, 1, env.countEvents(t, bob.ID, models.EventRoleChanged))

	// Maintainer demoting the admin is rejected
	appErr = env.groups.ChangeMemberRole(bob.ID, group.ID, alice.ID, models.RoleDeveloper)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindAuthorization, appErr.Kind)
	assert.Equal(t, models.RoleAdmin, env.memberRow(t, group.ID, alice.ID).Role)
}

func TestChangeMemberRole_Preconditions(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "Alice")
	bob := env.createUser(t, "Bob")
	carol := env.createUser(t, "Carol")

	group, appErr := env.groups.CreateGroup(alice.ID, GroupInput{Name: "core", Members: []string{bob.ID, carol.ID}})
	require.Nil(t, appErr)
	env.joinGroup(t, group.ID, bob.ID)

	// Own role
	appErr = env.groups.ChangeMemberRole(alice.ID, group.ID, alice.ID, models.RoleDeveloper)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindAuthorization, appErr.Kind)

	// Pending target
	appErr = env.groups.ChangeMemberRole(alice.ID, group.ID, carol.ID, models.RoleMaintainer)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindInvalidState, appErr.Kind)

	// Developer actor lacks the role
	appErr = env.groups.ChangeMemberRole(bob.ID, group.ID, carol.ID, models.RoleMaintainer)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindAuthorization, appErr.Kind)
}

func TestRemoveMember_IsSilent(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "Alice")
	bob := env.createUser(t, "Bob")

	group, appErr := env.groups.CreateGroup(alice.ID, GroupInput{Name: "core", Members: []string{bob.ID}})
	require.Nil(t, appErr)
	env.joinGroup(t, group.ID, bob.ID)

	before := env.countEvents(t, bob.ID, models.EventLeftGroup)
	require.Nil(t, env.groups.RemoveMember(alice.ID, group.ID, bob.ID))

	err := env.db.First(&models.GroupMember{}, "group_id = ? AND user_id = ?", group.ID, bob.ID).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// No notification of any kind reaches the removed user
	assert.Equal(t, before, env.countEvents(t, bob.ID, models.EventLeftGroup))
}

func TestRemoveMember_AuthorIsProtected(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "Alice")
	bob := env.createUser(t, "Bob")

	group, appErr := env.groups.CreateGroup(alice.ID, GroupInput{Name: "core", Members: []string{bob.ID}})
	require.Nil(t, appErr)
	env.joinGroup(t, group.ID, bob.ID)
	require.Nil(t, env.groups.ChangeMemberRole(alice.ID, group.ID, bob.ID, models.RoleAdmin))

	appErr = env.groups.RemoveMember(bob.ID, group.ID, alice.ID)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindAuthorization, appErr.Kind)
}

func TestLeaveGroup_LastMemberDeletesGroup(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "Alice")

	group, appErr := env.groups.CreateGroup(alice.ID, GroupInput{Name: "core"})
	require.Nil(t, appErr)

	require.Nil(t, env.groups.LeaveGroup(alice.ID, group.ID, ""))

	err := env.db.First(&models.Group{}, "id = ?", group.ID).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestLeaveGroup_SoleAdminRequiresSuccessor(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "Alice")
	bob := env.createUser(t, "Bob")

	group, appErr := env.groups.CreateGroup(alice.ID, GroupInput{Name: "core", Members: []string{bob.ID}})
	require.Nil(t, appErr)
	env.joinGroup(t, group.ID, bob.ID)

	// Without a successor the leave is rejected and nothing changes
	appErr = env.groups.LeaveGroup(alice.ID, group.ID, "")
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindInvariant, appErr.Kind)
	assert.Equal(t, models.InvitationJoined, env.memberRow(t, group.ID, alice.ID).Status)

	// A bogus successor is rejected too
	appErr = env.groups.LeaveGroup(alice.ID, group.ID, "nope")
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindInvariant, appErr.Kind)

	// Naming an existing joined member promotes them before the leave
	require.Nil(t, env.groups.LeaveGroup(alice.ID, group.ID, bob.ID))
	assert.Equal(t, models.RoleAdmin, env.memberRow(t, group.ID, bob.ID).Role)

	err := env.db.First(&models.GroupMember{}, "group_id = ? AND user_id = ?", group.ID, alice.ID).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.EqualValues(t, 1, env.countEvents(t, bob.ID, models.EventLeftGroup))
}

func TestLeaveGroup_AdminInvariantHolds(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "Alice")
	bob := env.createUser(t, "Bob")

	group, appErr := env.groups.CreateGroup(alice.ID, GroupInput{Name: "core", Members: []string{bob.ID}})
	require.Nil(t, appErr)
	env.joinGroup(t, group.ID, bob.ID)
	require.Nil(t, env.groups.ChangeMemberRole(alice.ID, group.ID, bob.ID, models.RoleAdmin))

	// Another admin covers succession, the leave goes through directly
	require.Nil(t, env.groups.LeaveGroup(alice.ID, group.ID, ""))

	var admins int64
	require.NoError(t, env.db.Model(&models.GroupMember{}).
		Where("group_id = ? AND role = ? AND status = ?", group.ID, models.RoleAdmin, models.InvitationJoined).
		Count(&admins).Error)
	assert.GreaterOrEqual(t, admins, int64(1))
}

func TestLeaveGroup_DisassociatesAuthoredProjects(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "Alice")
	bob := env.createUser(t, "Bob")

	group, appErr := env.groups.CreateGroup(alice.ID, GroupInput{Name: "core", Members: []string{bob.ID}})
	require.Nil(t, appErr)
	env.joinGroup(t, group.ID, bob.ID)
	require.Nil(t, env.groups.ChangeMemberRole(alice.ID, group.ID, bob.ID, models.RoleAdmin))

	project, appErr := env.projects.CreateProject(alice.ID, ProjectInput{Name: "app", Groups: []string{group.ID}})
	require.Nil(t, appErr)

	require.Nil(t, env.groups.LeaveGroup(alice.ID, group.ID, ""))

	// The project survives but the association is gone
	require.NoError(t, env.db.First(&models.Project{}, "id = ?", project.ID).Error)
	err := env.db.First(&models.ProjectGroup{}, "project_id = ? AND group_id = ?", project.ID, group.ID).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDeleteGroup(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "Alice")
	bob := env.createUser(t, "Bob")

	group, appErr := env.groups.CreateGroup(alice.ID, GroupInput{Name: "core", Members: []string{bob.ID}})
	require.Nil(t, appErr)
	env.joinGroup(t, group.ID, bob.ID)

	// Only admins may delete
	appErr = env.groups.DeleteGroup(bob.ID, group.ID)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindAuthorization, appErr.Kind)

	require.Nil(t, env.groups.DeleteGroup(alice.ID, group.ID))

	err := env.db.First(&models.Group{}, "id = ?", group.ID).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	var memberships int64
	env.db.Model(&models.GroupMember{}).Where("group_id = ?", group.ID).Count(&memberships)
	assert.Zero(t, memberships)

	// Every member joined at deletion time is notified
	assert.EqualValues(t, 1, env.countEvents(t, alice.ID, models.EventGroupDeleted))
	assert.EqualValues(t, 1, env.countEvents(t, bob.ID, models.EventGroupDeleted))
}

func TestEditGroup_SynchronizesMembers(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "Alice")
	bob := env.createUser(t, "Bob")
	carol := env.createUser(t, "Carol")

	group, appErr := env.groups.CreateGroup(alice.ID, GroupInput{Name: "core", Members: []string{bob.ID}})
	require.Nil(t, appErr)
	env.joinGroup(t, group.ID, bob.ID)

	// Only the author can edit
	_, appErr = env.groups.EditGroup(bob.ID, group.ID, GroupInput{Name: "core"})
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindAuthorization, appErr.Kind)

	// Swap bob for carol
	_, appErr = env.groups.EditGroup(alice.ID, group.ID, GroupInput{
		Name:    "core",
		Members: []string{carol.ID},
	})
	require.Nil(t, appErr)

	err := env.db.First(&models.GroupMember{}, "group_id = ? AND user_id = ?", group.ID, bob.ID).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Equal(t, models.InvitationPending, env.memberRow(t, group.ID, carol.ID).Status)
	assert.EqualValues(t, 1, env.countEvents(t, carol.ID, models.EventInvitedGroup))

	// Joined members got the membership-refresh notice
	assert.EqualValues(t, 1, env.countEvents(t, alice.ID, models.EventMembersChanged))
}

func TestEditGroup_UnchangedMemberListIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "Alice")
	bob := env.createUser(t, "Bob")

	group, appErr := env.groups.CreateGroup(alice.ID, GroupInput{Name: "core", Members: []string{bob.ID}})
	require.Nil(t, appErr)
	env.joinGroup(t, group.ID, bob.ID)

	_, appErr = env.groups.EditGroup(alice.ID, group.ID, GroupInput{
		Name:    "core",
		Members: []string{bob.ID},
	})
	require.Nil(t, appErr)

	assert.Equal(t, models.InvitationJoined, env.memberRow(t, group.ID, bob.ID).Status)
	assert.EqualValues(t, 0, env.countEvents(t, alice.ID, models.EventMembersChanged))
	// The accepted invite was consumed and no re-invite happened
	assert.EqualValues(t, 0, env.countEvents(t, bob.ID, models.EventInvitedGroup))
}
