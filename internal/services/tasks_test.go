package services_test

import (
	"context"
	"testing"

	"github.com/bk-med/kanban/internal/apperrors"
	"github.com/bk-med/kanban/internal/models"
	"github.com/bk-med/kanban/internal/services"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type TaskServiceTestSuite struct {
	suite.Suite
	ctx      context.Context
	db       *gorm.DB
	notifier *recordingNotifier
	projects *services.ProjectServiceImpl
	tasks    *services.TaskServiceImpl
	comments *services.CommentServiceImpl

	owner, member, stranger, admin models.User
	project                        *models.Project
}

func (suite *TaskServiceTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.db = newTestDB(suite.T())
	evaluator := services.MustEvaluator()
	suite.notifier = &recordingNotifier{}
	suite.projects = services.NewProjectService(suite.db, evaluator)
	suite.tasks = services.NewTaskService(suite.db, evaluator, suite.notifier, quietLogger())
	suite.comments = services.NewCommentService(suite.db, evaluator)

	suite.owner = createUser(suite.T(), suite.db, "owner", false)
	suite.member = createUser(suite.T(), suite.db, "member", false)
	suite.stranger = createUser(suite.T(), suite.db, "stranger", false)
	suite.admin = createUser(suite.T(), suite.db, "admin", true)

	project, err := suite.projects.CreateProject(suite.ctx, actorOf(suite.owner), services.ProjectInput{Name: "Launch"})
	suite.Require().NoError(err)
	project, err = suite.projects.AddMember(suite.ctx, actorOf(suite.owner), project.ID, suite.member.ID)
	suite.Require().NoError(err)
	suite.project = project
}

func (suite *TaskServiceTestSuite) createTask(title string) *models.Task {
	task, err := suite.tasks.CreateTask(suite.ctx, actorOf(suite.member), suite.project.ID, services.TaskInput{Title: title})
	suite.Require().NoError(err)
	return task
}

func (suite *TaskServiceTestSuite) logsOf(taskID uuid.UUID) []string {
	var logs []models.ActivityLog
	suite.Require().NoError(suite.db.Where("task_id = ?", taskID).Find(&logs).Error)
	actions := make([]string, len(logs))
	for i, l := range logs {
		actions[i] = l.Action
	}
	return actions
}

func (suite *TaskServiceTestSuite) TestCreateTask_DefaultsAndLog() {
	task := suite.createTask("Write docs")

	suite.Equal(models.StatusTodo, task.Status)
	suite.Equal(models.PriorityMedium, task.Priority)
	suite.Equal(suite.project.ID, task.ProjectID)
	suite.Equal([]string{"created task"}, suite.logsOf(task.ID))
}

func (suite *TaskServiceTestSuite) TestCreateTask_ValidationListsAllFields() {
	_, err := suite.tasks.CreateTask(suite.ctx, actorOf(suite.member), suite.project.ID, services.TaskInput{
		Title:    "  ",
		Status:   "BLOCKED",
		Priority: "URGENT",
	})

	var appErr *apperrors.AppError
	suite.Require().ErrorAs(err, &appErr)
	suite.Equal(apperrors.KindValidation, appErr.Kind)
	suite.Contains(appErr.Fields, "title")
	suite.Contains(appErr.Fields, "status")
	suite.Contains(appErr.Fields, "priority")
}

func (suite *TaskServiceTestSuite) TestCreateThenList_RoundTrip() {
	created := suite.createTask("Round trip")

	tasks, err := suite.tasks.ListTasks(suite.ctx, actorOf(suite.owner), suite.project.ID, services.TaskFilter{})
	suite.Require().NoError(err)
	suite.Require().Len(tasks, 1)
	suite.Equal(created.ID, tasks[0].ID)
	suite.Equal(created.Title, tasks[0].Title)
	suite.Equal(created.Status, tasks[0].Status)
}

func (suite *TaskServiceTestSuite) TestUpdateTask_OneLogPerChangedField() {
	task := suite.createTask("Ship")
	done := models.StatusDone
	high := models.PriorityHigh
	due := models.NewDate(2026, 3, 14)

	updated, err := suite.tasks.UpdateTask(suite.ctx, actorOf(suite.member), task.ID, services.TaskPatch{
		Status:       &done,
		Priority:     &high,
		DueDate:      services.Some(due),
		AssignedToID: services.Some(suite.owner.ID),
	}, false)
	suite.Require().NoError(err)

	suite.Equal(models.StatusDone, updated.Status)
	suite.Equal(models.PriorityHigh, updated.Priority)
	suite.Require().NotNil(updated.DueDate)
	suite.Equal("2026-03-14", updated.DueDate.String())
	suite.Require().NotNil(updated.AssignedTo)
	suite.Equal("owner", updated.AssignedTo.Username)

	suite.ElementsMatch([]string{
		"created task",
		"status changed to DONE",
		"priority changed to HIGH",
		"due date set to 2026-03-14",
		"assigned to owner",
	}, suite.logsOf(task.ID))

	suite.Require().Len(suite.notifier.sent, 1)
	suite.Equal(services.NotificationTaskAssigned, suite.notifier.sent[0].Type)
	suite.Equal("owner@example.com", suite.notifier.sent[0].Recipient)
}

func (suite *TaskServiceTestSuite) TestUpdateTask_NoOpWritesNoLog() {
	task := suite.createTask("Same")
	todo := models.StatusTodo
	title := "Same"

	_, err := suite.tasks.UpdateTask(suite.ctx, actorOf(suite.member), task.ID, services.TaskPatch{Status: &todo, Title: &title}, false)
	suite.Require().NoError(err)

	suite.Equal([]string{"created task"}, suite.logsOf(task.ID))
}

func (suite *TaskServiceTestSuite) TestUpdateTask_UnassignAndClearDueDate() {
	due := models.NewDate(2026, 1, 2)
	assignee := suite.member.ID
	task, err := suite.tasks.CreateTask(suite.ctx, actorOf(suite.owner), suite.project.ID, services.TaskInput{
		Title:        "Clear me",
		AssignedToID: &assignee,
		DueDate:      &due,
	})
	suite.Require().NoError(err)

	updated, err := suite.tasks.UpdateTask(suite.ctx, actorOf(suite.owner), task.ID, services.TaskPatch{
		AssignedToID: services.Null[uuid.UUID](),
		DueDate:      services.Null[models.Date](),
	}, false)
	suite.Require().NoError(err)

	suite.Nil(updated.AssignedToID)
	suite.Nil(updated.DueDate)
	suite.Contains(suite.logsOf(task.ID), "unassigned from member")
	suite.Contains(suite.logsOf(task.ID), "due date cleared")
}

func (suite *TaskServiceTestSuite) TestUpdateTask_StatusChangeNotifiesAssignee() {
	assignee := suite.member.ID
	task, err := suite.tasks.CreateTask(suite.ctx, actorOf(suite.owner), suite.project.ID, services.TaskInput{Title: "Notify", AssignedToID: &assignee})
	suite.Require().NoError(err)
	suite.notifier.sent = nil

	progress := models.StatusInProgress
	_, err = suite.tasks.UpdateTask(suite.ctx, actorOf(suite.owner), task.ID, services.TaskPatch{Status: &progress}, false)
	suite.Require().NoError(err)

	suite.Require().Len(suite.notifier.sent, 1)
	suite.Equal(services.NotificationTaskStatusChanged, suite.notifier.sent[0].Type)
	suite.Equal(models.StatusInProgress, suite.notifier.sent[0].Status)
	suite.Equal(models.StatusTodo, suite.notifier.sent[0].PreviousStatus)
	suite.Equal("owner", suite.notifier.sent[0].ActorName)
}

func (suite *TaskServiceTestSuite) TestUpdateTask_InvalidStatusRejected() {
	task := suite.createTask("Strict")
	bogus := models.Status("BLOCKED")

	_, err := suite.tasks.UpdateTask(suite.ctx, actorOf(suite.member), task.ID, services.TaskPatch{Status: &bogus}, false)
	suite.True(apperrors.Is(err, apperrors.KindValidation))
	suite.Equal([]string{"created task"}, suite.logsOf(task.ID))
}

func (suite *TaskServiceTestSuite) TestUpdateTask_ProjectIsImmutable() {
	task := suite.createTask("Pinned")
	other, err := suite.projects.CreateProject(suite.ctx, actorOf(suite.member), services.ProjectInput{Name: "Other"})
	suite.Require().NoError(err)

	_, err = suite.tasks.UpdateTask(suite.ctx, actorOf(suite.member), task.ID, services.TaskPatch{Project: &other.ID}, false)
	suite.True(apperrors.Is(err, apperrors.KindValidation))

	reloaded, err := suite.tasks.GetTask(suite.ctx, actorOf(suite.member), task.ID)
	suite.Require().NoError(err)
	suite.Equal(suite.project.ID, reloaded.ProjectID)
}

func (suite *TaskServiceTestSuite) TestUpdateTask_LogFailureRollsBack() {
	task := suite.createTask("Atomic")
	suite.Require().NoError(suite.db.Migrator().DropTable(&models.ActivityLog{}))

	done := models.StatusDone
	_, err := suite.tasks.UpdateTask(suite.ctx, actorOf(suite.member), task.ID, services.TaskPatch{Status: &done}, false)
	suite.Error(err)

	var reloaded models.Task
	suite.Require().NoError(suite.db.First(&reloaded, "id = ?", task.ID).Error)
	suite.Equal(models.StatusTodo, reloaded.Status)
}

func (suite *TaskServiceTestSuite) TestUpdateTask_ReplaceRequiresTitle() {
	task := suite.createTask("Put")
	_, err := suite.tasks.UpdateTask(suite.ctx, actorOf(suite.member), task.ID, services.TaskPatch{}, true)
	suite.True(apperrors.Is(err, apperrors.KindValidation))
}

func (suite *TaskServiceTestSuite) TestPermissions_StrangerAndMissing() {
	task := suite.createTask("Private")

	_, err := suite.tasks.GetTask(suite.ctx, actorOf(suite.stranger), task.ID)
	suite.True(apperrors.Is(err, apperrors.KindAuthorization))

	missing := uuid.Must(uuid.NewV4())
	_, err = suite.tasks.GetTask(suite.ctx, actorOf(suite.stranger), missing)
	suite.True(apperrors.Is(err, apperrors.KindAuthorization), "non-admins cannot probe for existence")

	_, err = suite.tasks.GetTask(suite.ctx, actorOf(suite.admin), missing)
	suite.True(apperrors.Is(err, apperrors.KindNotFound))

	_, err = suite.tasks.CreateTask(suite.ctx, actorOf(suite.stranger), suite.project.ID, services.TaskInput{Title: "Nope"})
	suite.True(apperrors.Is(err, apperrors.KindAuthorization))
}

func (suite *TaskServiceTestSuite) TestListTasks_Filters() {
	high := models.PriorityHigh
	due := models.NewDate(2026, 5, 1)
	late := models.NewDate(2026, 6, 1)
	assignee := suite.owner.ID

	_, err := suite.tasks.CreateTask(suite.ctx, actorOf(suite.member), suite.project.ID, services.TaskInput{Title: "A", Priority: high, DueDate: &due})
	suite.Require().NoError(err)
	_, err = suite.tasks.CreateTask(suite.ctx, actorOf(suite.member), suite.project.ID, services.TaskInput{Title: "B", Status: models.StatusDone, DueDate: &late, AssignedToID: &assignee})
	suite.Require().NoError(err)

	byPriority, err := suite.tasks.ListTasks(suite.ctx, actorOf(suite.member), suite.project.ID, services.TaskFilter{Priority: models.PriorityHigh})
	suite.Require().NoError(err)
	suite.Require().Len(byPriority, 1)
	suite.Equal("A", byPriority[0].Title)

	byStatus, err := suite.tasks.ListTasks(suite.ctx, actorOf(suite.member), suite.project.ID, services.TaskFilter{Status: models.StatusDone})
	suite.Require().NoError(err)
	suite.Require().Len(byStatus, 1)
	suite.Equal("B", byStatus[0].Title)

	byAssignee, err := suite.tasks.ListTasks(suite.ctx, actorOf(suite.member), suite.project.ID, services.TaskFilter{AssignedTo: &assignee})
	suite.Require().NoError(err)
	suite.Len(byAssignee, 1)

	cutoff := models.NewDate(2026, 5, 15)
	before, err := suite.tasks.ListTasks(suite.ctx, actorOf(suite.member), suite.project.ID, services.TaskFilter{DueBefore: &cutoff})
	suite.Require().NoError(err)
	suite.Require().Len(before, 1)
	suite.Equal("A", before[0].Title)

	after, err := suite.tasks.ListTasks(suite.ctx, actorOf(suite.member), suite.project.ID, services.TaskFilter{DueAfter: &cutoff})
	suite.Require().NoError(err)
	suite.Require().Len(after, 1)
	suite.Equal("B", after[0].Title)

	_, err = suite.tasks.ListTasks(suite.ctx, actorOf(suite.member), suite.project.ID, services.TaskFilter{Status: "LATER"})
	suite.True(apperrors.Is(err, apperrors.KindValidation))
}

func (suite *TaskServiceTestSuite) TestListTasks_SearchAndOrdering() {
	low, high := models.PriorityLow, models.PriorityHigh
	early := models.NewDate(2026, 5, 1)
	late := models.NewDate(2026, 6, 1)

	for _, in := range []services.TaskInput{
		{Title: "Write launch copy", Priority: low, DueDate: &late},
		{Title: "Fix header", Description: "Logo overlaps the COPY block", Priority: high},
		{Title: "Ship 100% of assets", Priority: models.PriorityMedium, DueDate: &early},
	} {
		_, err := suite.tasks.CreateTask(suite.ctx, actorOf(suite.member), suite.project.ID, in)
		suite.Require().NoError(err)
	}
	list := func(filter services.TaskFilter) []string {
		tasks, err := suite.tasks.ListTasks(suite.ctx, actorOf(suite.member), suite.project.ID, filter)
		suite.Require().NoError(err)
		titles := make([]string, 0, len(tasks))
		for _, t := range tasks {
			titles = append(titles, t.Title)
		}
		return titles
	}

	suite.Equal([]string{"Write launch copy", "Fix header"}, list(services.TaskFilter{Search: "copy"}))
	suite.Equal([]string{"Fix header"}, list(services.TaskFilter{Search: "copy LOGO"}))
	suite.Equal([]string{"Ship 100% of assets"}, list(services.TaskFilter{Search: "100%"}))
	suite.Empty(list(services.TaskFilter{Search: "_"}))

	suite.Equal([]string{"Write launch copy", "Fix header", "Ship 100% of assets"}, list(services.TaskFilter{}))
	suite.Equal([]string{"Fix header", "Ship 100% of assets", "Write launch copy"}, list(services.TaskFilter{Ordering: "-priority"}))
	suite.Equal([]string{"Write launch copy", "Ship 100% of assets", "Fix header"}, list(services.TaskFilter{Ordering: "priority"}))
	suite.Equal([]string{"Ship 100% of assets", "Fix header", "Write launch copy"}, list(services.TaskFilter{Ordering: "-created_at"}))
	suite.Equal([]string{"Write launch copy", "Ship 100% of assets"}, list(services.TaskFilter{DueAfter: &early, Ordering: "-due_date"}))

	_, err := suite.tasks.ListTasks(suite.ctx, actorOf(suite.member), suite.project.ID, services.TaskFilter{Ordering: "title"})
	suite.True(apperrors.Is(err, apperrors.KindValidation))
}

func (suite *TaskServiceTestSuite) TestDeleteTask_CascadesCommentsAndLogs() {
	task := suite.createTask("Doomed")
	_, err := suite.comments.CreateComment(suite.ctx, actorOf(suite.owner), task.ID, services.CommentInput{Content: "bye"})
	suite.Require().NoError(err)

	suite.Require().NoError(suite.tasks.DeleteTask(suite.ctx, actorOf(suite.member), task.ID))

	var comments, logs int64
	suite.db.Model(&models.Comment{}).Where("task_id = ?", task.ID).Count(&comments)
	suite.db.Model(&models.ActivityLog{}).Where("task_id = ?", task.ID).Count(&logs)
	suite.Zero(comments)
	suite.Zero(logs)
}

func TestTaskServiceTestSuite(t *testing.T) {
	suite.Run(t, new(TaskServiceTestSuite))
}
