package services_test

import (
	"context"
	"testing"

	"github.com/bk-med/kanban/internal/apperrors"
	"github.com/bk-med/kanban/internal/models"
	"github.com/bk-med/kanban/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommentService_AuthorRules(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	evaluator := services.MustEvaluator()
	projects := services.NewProjectService(db, evaluator)
	tasks := services.NewTaskService(db, evaluator, nil, quietLogger())
	comments := services.NewCommentService(db, evaluator)

	owner := createUser(t, db, "owner", false)
	member := createUser(t, db, "member", false)
	stranger := createUser(t, db, "stranger", false)
	admin := createUser(t, db, "admin", true)

	project, err := projects.CreateProject(ctx, actorOf(owner), services.ProjectInput{Name: "P"})
	require.NoError(t, err)
	_, err = projects.AddMember(ctx, actorOf(owner), project.ID, member.ID)
	require.NoError(t, err)
	task, err := tasks.CreateTask(ctx, actorOf(owner), project.ID, services.TaskInput{Title: "T"})
	require.NoError(t, err)

	comment, err := comments.CreateComment(ctx, actorOf(member), task.ID, services.CommentInput{Content: "first!"})
	require.NoError(t, err)
	assert.Equal(t, member.ID, comment.AuthorID)
	assert.Equal(t, "member", comment.Author.Username)

	_, err = comments.CreateComment(ctx, actorOf(stranger), task.ID, services.CommentInput{Content: "hi"})
	assert.True(t, apperrors.Is(err, apperrors.KindAuthorization))

	_, err = comments.CreateComment(ctx, actorOf(member), task.ID, services.CommentInput{Content: "   "})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	_, err = comments.UpdateComment(ctx, actorOf(owner), comment.ID, services.CommentInput{Content: "edited by owner"})
	assert.True(t, apperrors.Is(err, apperrors.KindAuthorization))

	edited, err := comments.UpdateComment(ctx, actorOf(member), comment.ID, services.CommentInput{Content: "edited"})
	require.NoError(t, err)
	assert.Equal(t, "edited", edited.Content)

	list, err := comments.ListComments(ctx, actorOf(owner), task.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, comments.DeleteComment(ctx, actorOf(admin), comment.ID))
	list, err = comments.ListComments(ctx, actorOf(owner), task.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCommentService_ListActivity(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	evaluator := services.MustEvaluator()
	projects := services.NewProjectService(db, evaluator)
	tasks := services.NewTaskService(db, evaluator, nil, quietLogger())
	comments := services.NewCommentService(db, evaluator)

	owner := createUser(t, db, "owner", false)
	stranger := createUser(t, db, "stranger", false)

	project, err := projects.CreateProject(ctx, actorOf(owner), services.ProjectInput{Name: "P"})
	require.NoError(t, err)
	task, err := tasks.CreateTask(ctx, actorOf(owner), project.ID, services.TaskInput{Title: "T"})
	require.NoError(t, err)
	done := models.StatusDone
	_, err = tasks.UpdateTask(ctx, actorOf(owner), task.ID, services.TaskPatch{Status: &done}, false)
	require.NoError(t, err)

	logs, err := comments.ListActivity(ctx, actorOf(owner), task.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	actions := []string{logs[0].Action, logs[1].Action}
	assert.ElementsMatch(t, []string{"created task", "status changed to DONE"}, actions)
	require.NotNil(t, logs[0].User)
	assert.Equal(t, "owner", logs[0].User.Username)

	_, err = comments.ListActivity(ctx, actorOf(stranger), task.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindAuthorization))
}
