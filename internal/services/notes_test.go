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

// noteFixture sets up a project with two scheduled updates and one note
// on the first.
type noteFixture struct {
	env     *testEnv
	userID  string
	project *models.Project
	from    *models.ProjectUpdate
	to      *models.ProjectUpdate
	note    *models.ChangeNote
}

func newNoteFixture(t *testing.T) *noteFixture {
	env := newTestEnv(t)
	alice := env.createUser(t, "Alice")

	project, appErr := env.projects.CreateProject(alice.ID, ProjectInput{Name: "app"})
	require.Nil(t, appErr)
	from, appErr := env.updates.Schedule(alice.ID, project.ID, "1.0", nil)
	require.Nil(t, appErr)
	to, appErr := env.updates.Schedule(alice.ID, project.ID, "2.0", nil)
	require.Nil(t, appErr)
	note, appErr := env.notes.Add(alice.ID, from.ID, "refactor parser")
	require.Nil(t, appErr)

	return &noteFixture{env: env, userID: alice.ID, project: project, from: from, to: to, note: note}
}

func TestNoteAdd_Validation(t *testing.T) {
	f := newNoteFixture(t)

	_, appErr := f.env.notes.Add(f.userID, f.from.ID, "  ")
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindValidation, appErr.Kind)

	_, appErr = f.env.notes.Add(f.userID, f.from.ID, strings.Repeat("x", 201))
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindValidation, appErr.Kind)
}

func TestNoteMarking_RequiresInDevelopment(t *testing.T) {
	f := newNoteFixture(t)

	// SCHEDULED: marking is rejected
	appErr := f.env.notes.MarkDone(f.userID, f.note.ID)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindInvalidState, appErr.Kind)

	require.Nil(t, f.env.updates.Start(f.userID, f.from.ID))

	require.Nil(t, f.env.notes.MarkDone(f.userID, f.note.ID))
	var marked models.ChangeNote
	require.NoError(t, f.env.db.First(&marked, "id = ?", f.note.ID).Error)
	assert.True(t, marked.MarkedAsDone)
	assert.Equal(t, f.userID, marked.MarkedBy)
	assert.NotNil(t, marked.MarkedAt)

	require.Nil(t, f.env.notes.MarkToDo(f.userID, f.note.ID))
	var cleared models.ChangeNote
	require.NoError(t, f.env.db.First(&cleared, "id = ?", f.note.ID).Error)
	assert.False(t, cleared.MarkedAsDone)
	assert.Empty(t, cleared.MarkedBy)
	assert.Nil(t, cleared.MarkedAt)
}

func TestNoteOperations_RejectedOnPublishedUpdate(t *testing.T) {
	f := newNoteFixture(t)

	require.Nil(t, f.env.updates.Start(f.userID, f.from.ID))
	require.Nil(t, f.env.updates.Publish(f.userID, f.from.ID))

	_, appErr := f.env.notes.Add(f.userID, f.from.ID, "too late")
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindInvalidState, appErr.Kind)

	appErr = f.env.notes.Edit(f.userID, f.note.ID, "too late")
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindInvalidState, appErr.Kind)

	appErr = f.env.notes.Move(f.userID, f.note.ID, f.from.ID, f.to.ID)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindInvalidState, appErr.Kind)

	appErr = f.env.notes.Delete(f.userID, f.note.ID)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindInvalidState, appErr.Kind)
}

func TestNoteMove(t *testing.T) {
	f := newNoteFixture(t)

	require.Nil(t, f.env.notes.Move(f.userID, f.note.ID, f.from.ID, f.to.ID))

	var moved models.ChangeNote
	require.NoError(t, f.env.db.First(&moved, "id = ?", f.note.ID).Error)
	assert.Equal(t, f.to.ID, moved.UpdateID)

	// Single-owner reassignment, not a copy
	var count int64
	f.env.db.Model(&models.ChangeNote{}).Where("id = ?", f.note.ID).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestNoteMove_Rejections(t *testing.T) {
	f := newNoteFixture(t)

	// Wrong source update
	appErr := f.env.notes.Move(f.userID, f.note.ID, f.to.ID, f.from.ID)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindValidation, appErr.Kind)

	// Done notes stay put
	require.Nil(t, f.env.updates.Start(f.userID, f.from.ID))
	require.Nil(t, f.env.notes.MarkDone(f.userID, f.note.ID))
	appErr = f.env.notes.Move(f.userID, f.note.ID, f.from.ID, f.to.ID)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindInvalidState, appErr.Kind)
	require.Nil(t, f.env.notes.MarkToDo(f.userID, f.note.ID))

	// Id collision in the target update
	colliding := models.ChangeNote{ID: f.note.ID, UpdateID: f.to.ID, AuthorID: f.userID, Content: "other"}
	require.NoError(t, f.env.db.Create(&colliding).Error)
	appErr = f.env.notes.Move(f.userID, f.note.ID, f.from.ID, f.to.ID)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindConflict, appErr.Kind)

	// Source and target must differ
	appErr = f.env.notes.Move(f.userID, f.note.ID, f.from.ID, f.from.ID)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindValidation, appErr.Kind)
}

func TestNoteMove_CrossProjectRejected(t *testing.T) {
	f := newNoteFixture(t)

	other, appErr := f.env.projects.CreateProject(f.userID, ProjectInput{Name: "other"})
	require.Nil(t, appErr)
	foreign, appErr := f.env.updates.Schedule(f.userID, other.ID, "1.0", nil)
	require.Nil(t, appErr)

	moveErr := f.env.notes.Move(f.userID, f.note.ID, f.from.ID, foreign.ID)
	require.NotNil(t, moveErr)
	assert.Equal(t, apperrors.KindValidation, moveErr.Kind)

	var unmoved models.ChangeNote
	require.NoError(t, f.env.db.First(&unmoved, "id = ?", f.note.ID).Error)
	assert.Equal(t, f.from.ID, unmoved.UpdateID)
}

func TestNoteEditAndDelete(t *testing.T) {
	f := newNoteFixture(t)

	require.Nil(t, f.env.notes.Edit(f.userID, f.note.ID, "rewrite parser"))
	var edited models.ChangeNote
	require.NoError(t, f.env.db.First(&edited, "id = ?", f.note.ID).Error)
	assert.Equal(t, "rewrite parser", edited.Content)

	require.Nil(t, f.env.notes.Delete(f.userID, f.note.ID))
	err := f.env.db.First(&models.ChangeNote{}, "id = ?", f.note.ID).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
