package client

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

// Statuses lists the board columns in display order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone}

func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	IsActive    bool   `json:"is_active"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
}

type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerID     string    `json:"owner_id"`
	Owner       User      `json:"owner"`
	Members     []User    `json:"members"`
	TaskCount   int64     `json:"task_count"`
	MemberCount int64     `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type Task struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ProjectID    string    `json:"project"`
	Status       Status    `json:"status"`
	Priority     string    `json:"priority"`
	AssignedToID *string   `json:"assigned_to_id"`
	AssignedTo   *User     `json:"assigned_to"`
	DueDate      *string   `json:"due_date"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task"`
	Author    User      `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type ActivityLog struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task"`
	User      *User     `json:"user"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}

type TaskInput struct {
	Title        string  `json:"title"`
	Description  string  `json:"description,omitempty"`
	Status       Status  `json:"status,omitempty"`
	Priority     string  `json:"priority,omitempty"`
	AssignedToID *string `json:"assigned_to_id,omitempty"`
	DueDate      *string `json:"due_date,omitempty"`
}

type TaskFilter struct {
	Status     Status
	Priority   string
	AssignedTo string
	DueBefore  string
	DueAfter   string
	Search     string
	// Ordering is passed through, e.g. "-priority,due_date".
	Ordering string
}

func (f TaskFilter) query() url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("status", string(f.Status))
	set("priority", f.Priority)
	set("assigned_to", f.AssignedTo)
	set("due_before", f.DueBefore)
	set("due_after", f.DueAfter)
	set("search", f.Search)
	set("ordering", f.Ordering)
	return q
}

func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	raw, err := c.getRaw(ctx, "/projects", nil)
	if err != nil {
		return nil, err
	}
	return decodeList[Project](raw)
}

func (c *Client) GetProject(ctx context.Context, id string) (*Project, error) {
	var p Project
	if err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) CreateProject(ctx context.Context, name, description string) (*Project, error) {
	var p Project
	body := map[string]string{"name": name, "description": description}
	if err := c.do(ctx, http.MethodPost, "/projects", body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/projects/"+url.PathEscape(id), nil, nil)
}

func (c *Client) AddMember(ctx context.Context, projectID, userID string) (*Project, error) {
	var p Project
	body := map[string]string{"user_id": userID}
	if err := c.do(ctx, http.MethodPost, "/projects/"+url.PathEscape(projectID)+"/members", body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) RemoveMember(ctx context.Context, projectID, userID string) (*Project, error) {
	var p Project
	path := "/projects/" + url.PathEscape(projectID) + "/members/" + url.PathEscape(userID)
	if err := c.do(ctx, http.MethodDelete, path, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) ListTasks(ctx context.Context, projectID string, filter TaskFilter) ([]Task, error) {
	raw, err := c.getRaw(ctx, "/projects/"+url.PathEscape(projectID)+"/tasks", filter.query())
	if err != nil {
		return nil, err
	}
	return decodeList[Task](raw)
}

func (c *Client) GetTask(ctx context.Context, id string) (*Task, error) {
	var t Task
	if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) CreateTask(ctx context.Context, projectID string, input TaskInput) (*Task, error) {
	var t Task
	if err := c.do(ctx, http.MethodPost, "/projects/"+url.PathEscape(projectID)+"/tasks", input, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) UpdateTaskStatus(ctx context.Context, id string, status Status) (*Task, error) {
	var t Task
	body := map[string]Status{"status": status}
	if err := c.do(ctx, http.MethodPatch, "/tasks/"+url.PathEscape(id), body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ListComments(ctx context.Context, taskID string) ([]Comment, error) {
	raw, err := c.getRaw(ctx, "/tasks/"+url.PathEscape(taskID)+"/comments", nil)
	if err != nil {
		return nil, err
	}
	return decodeList[Comment](raw)
}

func (c *Client) AddComment(ctx context.Context, taskID, content string) (*Comment, error) {
	var cm Comment
	body := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(taskID)+"/comments", body, &cm); err != nil {
		return nil, err
	}
	return &cm, nil
}

func (c *Client) ListActivity(ctx context.Context, taskID string) ([]ActivityLog, error) {
	raw, err := c.getRaw(ctx, "/tasks/"+url.PathEscape(taskID)+"/logs", nil)
	if err != nil {
		return nil, err
	}
	return decodeList[ActivityLog](raw)
}
