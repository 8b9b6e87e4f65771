package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/bk-med/kanban/internal/models"

	"github.com/gofrs/uuid"
)

func TestStatus_Valid(t *testing.T) {
	for _, status := range models.Statuses {
		if !status.Valid() {
			t.Errorf("Expected status '%s' to be valid", status)
		}
	}

	for _, status := range []models.Status{"", "pending", "TO_DO", "done"} {
		if status.Valid() {
			t.Errorf("Expected status '%s' to be invalid", status)
		}
	}
}

func TestPriority_Valid(t *testing.T) {
	if !models.PriorityHigh.Valid() || !models.PriorityLow.Valid() || !models.PriorityMedium.Valid() {
		t.Error("Expected all declared priorities to be valid")
	}
	if models.Priority("URGENT").Valid() {
		t.Error("Expected URGENT to be invalid")
	}
}

func TestTask_BeforeCreateDefaults(t *testing.T) {
	task := models.Task{Title: "Write docs"}
	if err := task.BeforeCreate(nil); err != nil {
		t.Fatalf("BeforeCreate failed: %v", err)
	}

	if task.ID.IsNil() {
		t.Error("Expected ID to be generated")
	}
	if task.Status != models.StatusTodo {
		t.Errorf("Expected default status TODO, got %s", task.Status)
	}
	if task.Priority != models.PriorityMedium {
		t.Errorf("Expected default priority MEDIUM, got %s", task.Priority)
	}
}

func TestProject_HasMemberIncludesOwner(t *testing.T) {
	owner := uuid.Must(uuid.NewV4())
	member := uuid.Must(uuid.NewV4())
	stranger := uuid.Must(uuid.NewV4())

	project := models.Project{OwnerID: owner, Members: []models.User{{ID: member}}}

	if !project.HasMember(owner) {
		t.Error("Expected owner to count as member")
	}
	if !project.HasMember(member) {
		t.Error("Expected listed member to be a member")
	}
	if project.HasMember(stranger) {
		t.Error("Expected stranger not to be a member")
	}
	if project.IsOwner(member) {
		t.Error("Expected member not to be owner")
	}
}

func TestNewActor_ResolvesRole(t *testing.T) {
	cases := []struct {
		name string
		user models.User
		want models.Role
	}{
		{"regular", models.User{}, models.RoleMember},
		{"staff", models.User{IsStaff: true}, models.RoleAdmin},
		{"superuser", models.User{IsSuperuser: true}, models.RoleAdmin},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := models.NewActor(&tc.user).Role; got != tc.want {
				t.Errorf("Expected role %s, got %s", tc.want, got)
			}
		})
	}
}

func TestDate_JSON(t *testing.T) {
	var payload struct {
		Due *models.Date `json:"due_date"`
	}

	if err := json.Unmarshal([]byte(`{"due_date":"2026-03-14"}`), &payload); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if payload.Due == nil || payload.Due.String() != "2026-03-14" {
		t.Fatalf("Unexpected date %v", payload.Due)
	}

	out, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(out) != `{"due_date":"2026-03-14"}` {
		t.Errorf("Unexpected JSON %s", out)
	}

	if err := json.Unmarshal([]byte(`{"due_date":"14/03/2026"}`), &payload); err == nil {
		t.Error("Expected error for malformed date")
	}
}

func TestDate_Scan(t *testing.T) {
	var d models.Date

	if err := d.Scan(time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)); err != nil {
		t.Fatalf("Scan time failed: %v", err)
	}
	if d.String() != "2026-01-02" {
		t.Errorf("Expected 2026-01-02, got %s", d)
	}

	if err := d.Scan("2026-05-06 00:00:00+00:00"); err != nil {
		t.Fatalf("Scan string failed: %v", err)
	}
	if d.String() != "2026-05-06" {
		t.Errorf("Expected 2026-05-06, got %s", d)
	}

	if err := d.Scan(42); err == nil {
		t.Error("Expected error scanning int")
	}
}

func TestDate_Arithmetic(t *testing.T) {
	today := models.NewDate(2026, 12, 30)
	later := today.AddDays(7)

	if later.String() != "2027-01-06" {
		t.Errorf("Expected 2027-01-06, got %s", later)
	}
	if !today.Before(later) || !later.After(today) {
		t.Error("Expected ordering to hold")
	}
}

func TestActivityLog_Immutable(t *testing.T) {
	entry := models.ActivityLog{Action: "created task"}
	if err := entry.BeforeUpdate(nil); err != models.ErrImmutableLog {
		t.Errorf("Expected ErrImmutableLog, got %v", err)
	}
}
