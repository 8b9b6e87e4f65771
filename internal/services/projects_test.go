package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/bk-med/kanban/internal/apperrors"
	"github.com/bk-med/kanban/internal/models"
	"github.com/bk-med/kanban/internal/services"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectService_CreateAddsOwnerAsMember(t *testing.T) {
	db := newTestDB(t)
	svc := services.NewProjectService(db, services.MustEvaluator())
	owner := createUser(t, db, "owner", false)

	project, err := svc.CreateProject(context.Background(), actorOf(owner), services.ProjectInput{Name: "  Roadmap  "})
	require.NoError(t, err)

	assert.Equal(t, "Roadmap", project.Name)
	assert.Equal(t, owner.ID, project.OwnerID)
	assert.Equal(t, "owner", project.Owner.Username)
	assert.Equal(t, int64(1), project.MemberCount)
	assert.Equal(t, int64(0), project.TaskCount)
	assert.True(t, project.HasMember(owner.ID))
}

func TestProjectService_CreateRequiresName(t *testing.T) {
	db := newTestDB(t)
	svc := services.NewProjectService(db, services.MustEvaluator())
	owner := createUser(t, db, "owner", false)

	_, err := svc.CreateProject(context.Background(), actorOf(owner), services.ProjectInput{})

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "This field is required.", appErr.Fields["name"])
}

func TestProjectService_ListIsScopedToMembership(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	svc := services.NewProjectService(db, services.MustEvaluator())
	alice := createUser(t, db, "alice", false)
	bob := createUser(t, db, "bob", false)
	admin := createUser(t, db, "admin", true)

	mine, err := svc.CreateProject(ctx, actorOf(alice), services.ProjectInput{Name: "Alice's"})
	require.NoError(t, err)
	_, err = svc.CreateProject(ctx, actorOf(bob), services.ProjectInput{Name: "Bob's"})
	require.NoError(t, err)
	shared, err := svc.CreateProject(ctx, actorOf(bob), services.ProjectInput{Name: "Shared"})
	require.NoError(t, err)
	_, err = svc.AddMember(ctx, actorOf(bob), shared.ID, alice.ID)
	require.NoError(t, err)

	projects, err := svc.ListProjects(ctx, actorOf(alice))
	require.NoError(t, err)
	var ids []uuid.UUID
	for _, p := range projects {
		ids = append(ids, p.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{mine.ID, shared.ID}, ids)

	all, err := svc.ListProjects(ctx, actorOf(admin))
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestProjectService_OwnerOnlyOperations(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	svc := services.NewProjectService(db, services.MustEvaluator())
	owner := createUser(t, db, "owner", false)
	member := createUser(t, db, "member", false)

	project, err := svc.CreateProject(ctx, actorOf(owner), services.ProjectInput{Name: "P"})
	require.NoError(t, err)
	_, err = svc.AddMember(ctx, actorOf(owner), project.ID, member.ID)
	require.NoError(t, err)

	name := "Renamed"
	_, err = svc.UpdateProject(ctx, actorOf(member), project.ID, services.ProjectPatch{Name: &name}, false)
	assert.True(t, apperrors.Is(err, apperrors.KindAuthorization))

	err = svc.DeleteProject(ctx, actorOf(member), project.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindAuthorization))

	_, err = svc.AddMember(ctx, actorOf(member), project.ID, member.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindAuthorization))

	updated, err := svc.UpdateProject(ctx, actorOf(owner), project.ID, services.ProjectPatch{Name: &name}, false)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, int64(2), updated.MemberCount)
}

func TestProjectService_MemberManagement(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	svc := services.NewProjectService(db, services.MustEvaluator())
	owner := createUser(t, db, "owner", false)
	member := createUser(t, db, "member", false)

	project, err := svc.CreateProject(ctx, actorOf(owner), services.ProjectInput{Name: "P"})
	require.NoError(t, err)

	project, err = svc.AddMember(ctx, actorOf(owner), project.ID, member.ID)
	require.NoError(t, err)
	assert.True(t, project.HasMember(member.ID))

	_, err = svc.AddMember(ctx, actorOf(owner), project.ID, member.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	_, err = svc.AddMember(ctx, actorOf(owner), project.ID, uuid.Must(uuid.NewV4()))
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	_, err = svc.RemoveMember(ctx, actorOf(owner), project.ID, owner.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	project, err = svc.RemoveMember(ctx, actorOf(owner), project.ID, member.ID)
	require.NoError(t, err)
	assert.False(t, project.HasMember(member.ID))
	assert.Equal(t, int64(1), project.MemberCount)
}

func TestProjectService_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	evaluator := services.MustEvaluator()
	projects := services.NewProjectService(db, evaluator)
	tasks := services.NewTaskService(db, evaluator, nil, quietLogger())
	comments := services.NewCommentService(db, evaluator)
	owner := createUser(t, db, "owner", false)
	admin := createUser(t, db, "admin", true)

	project, err := projects.CreateProject(ctx, actorOf(owner), services.ProjectInput{Name: "Doomed"})
	require.NoError(t, err)
	task, err := tasks.CreateTask(ctx, actorOf(owner), project.ID, services.TaskInput{Title: "T"})
	require.NoError(t, err)
	_, err = comments.CreateComment(ctx, actorOf(owner), task.ID, services.CommentInput{Content: "c"})
	require.NoError(t, err)

	require.NoError(t, projects.DeleteProject(ctx, actorOf(admin), project.ID))

	for _, model := range []interface{}{&models.Project{}, &models.Task{}, &models.Comment{}, &models.ActivityLog{}} {
		var count int64
		require.NoError(t, db.Model(model).Count(&count).Error)
		assert.Zero(t, count, "%T rows left behind", model)
	}
	var memberships int64
	db.Table("project_members").Count(&memberships)
	assert.Zero(t, memberships)

	_, err = projects.GetProject(ctx, actorOf(admin), project.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
	_, err = projects.GetProject(ctx, actorOf(owner), project.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindAuthorization))
}

func TestProjectService_Stats(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	evaluator := services.MustEvaluator()
	now := time.Date(2026, 4, 10, 15, 0, 0, 0, time.UTC)
	projects := services.NewProjectService(db, evaluator).WithClock(func() time.Time { return now })
	tasks := services.NewTaskService(db, evaluator, nil, quietLogger())
	owner := createUser(t, db, "owner", false)
	member := createUser(t, db, "member", false)

	project, err := projects.CreateProject(ctx, actorOf(owner), services.ProjectInput{Name: "Stats"})
	require.NoError(t, err)
	_, err = projects.AddMember(ctx, actorOf(owner), project.ID, member.ID)
	require.NoError(t, err)

	date := func(d int) *models.Date {
		v := models.NewDate(2026, 4, d)
		return &v
	}
	ownerID, memberID := owner.ID, member.ID
	inputs := []services.TaskInput{
		{Title: "overdue", DueDate: date(9)},
		{Title: "today", DueDate: date(10)},
		{Title: "soon", DueDate: date(17)},
		{Title: "later", DueDate: date(18)},
		{Title: "done late", Status: models.StatusDone, DueDate: date(1), AssignedToID: &memberID},
		{Title: "done 2", Status: models.StatusDone, AssignedToID: &memberID},
		{Title: "done 3", Status: models.StatusDone, AssignedToID: &ownerID},
		{Title: "wip", Status: models.StatusInProgress},
	}
	for _, in := range inputs {
		_, err := tasks.CreateTask(ctx, actorOf(owner), project.ID, in)
		require.NoError(t, err)
	}

	stats, err := projects.Stats(ctx, actorOf(member), project.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(8), stats.TotalTasks)
	assert.Equal(t, int64(4), stats.TasksByStatus[models.StatusTodo])
	assert.Equal(t, int64(3), stats.TasksByStatus[models.StatusDone])
	assert.Equal(t, int64(1), stats.TasksByStatus[models.StatusInProgress])

	titles := func(ds []services.TaskDigest) []string {
		out := []string{}
		for _, d := range ds {
			out = append(out, d.Title)
		}
		return out
	}
	assert.ElementsMatch(t, []string{"overdue"}, titles(stats.Overdue))
	assert.ElementsMatch(t, []string{"today", "soon"}, titles(stats.DueSoon))

	require.Len(t, stats.MemberRanking, 2)
	assert.Equal(t, "member", stats.MemberRanking[0].Username)
	assert.Equal(t, int64(2), stats.MemberRanking[0].CompletedTasks)
	assert.Equal(t, "owner", stats.MemberRanking[1].Username)

	stranger := createUser(t, db, "stranger", false)
	_, err = projects.Stats(ctx, actorOf(stranger), project.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindAuthorization))
}
