package services

import (
	"embed"
	"fmt"
	"strings"

	"github.com/bk-med/kanban/internal/models"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	"github.com/gofrs/uuid"
)

//go:embed authz_model.conf authz_policy.csv
var policyFS embed.FS

// Target describes the object an actor wants to act on. Project is the
// project itself for project checks and the parent project for tasks,
// comments and logs; it is nil for collection-level project checks.
type Target struct {
	Resource models.Resource
	Project  *models.Project
	AuthorID *uuid.UUID
	UserID   *uuid.UUID
}

func ProjectTarget(p *models.Project) Target {
	return Target{Resource: models.ResourceProject, Project: p}
}

func TaskTarget(p *models.Project) Target {
	return Target{Resource: models.ResourceTask, Project: p}
}

func CommentTarget(p *models.Project, c *models.Comment) Target {
	t := Target{Resource: models.ResourceComment, Project: p}
	if c != nil {
		author := c.AuthorID
		t.AuthorID = &author
	}
	return t
}

func ActivityLogTarget(p *models.Project) Target {
	return Target{Resource: models.ResourceActivityLog, Project: p}
}

func UserTarget(id *uuid.UUID) Target {
	return Target{Resource: models.ResourceUser, UserID: id}
}

type AuthorizationDecision struct {
	Allowed   bool
	Relations []models.Role
	Reason    string
}

type AuthorizationService interface {
	Decide(actor models.Actor, target Target, action models.Action) AuthorizationDecision
	Allowed(actor models.Actor, target Target, action models.Action) bool
}

// Evaluator answers permission questions from the actor's relation to the
// target and an embedded policy table. It performs no I/O after construction.
type Evaluator struct {
	enforcer *casbin.Enforcer
}

func NewEvaluator() (*Evaluator, error) {
	modelText, err := policyFS.ReadFile("authz_model.conf")
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(string(modelText))
	if err != nil {
		return nil, fmt.Errorf("failed to parse authorization model: %w", err)
	}

	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create enforcer: %w", err)
	}

	rules, err := loadPolicyRules()
	if err != nil {
		return nil, err
	}
	if _, err := enforcer.AddPolicies(rules); err != nil {
		return nil, fmt.Errorf("failed to load authorization policy: %w", err)
	}

	return &Evaluator{enforcer: enforcer}, nil
}

// MustEvaluator panics if the embedded policy cannot be loaded.
func MustEvaluator() *Evaluator {
	e, err := NewEvaluator()
	if err != nil {
		panic(err)
	}
	return e
}

func loadPolicyRules() ([][]string, error) {
	data, err := policyFS.ReadFile("authz_policy.csv")
	if err != nil {
		return nil, err
	}

	var rules [][]string
	for n, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 4 || strings.TrimSpace(fields[0]) != "p" {
			return nil, fmt.Errorf("authz_policy.csv:%d: malformed rule %q", n+1, line)
		}
		rules = append(rules, []string{
			strings.TrimSpace(fields[1]),
			strings.TrimSpace(fields[2]),
			strings.TrimSpace(fields[3]),
		})
	}
	return rules, nil
}

func (e *Evaluator) Decide(actor models.Actor, target Target, action models.Action) AuthorizationDecision {
	if actor.IsAdmin() {
		return AuthorizationDecision{
			Allowed:   true,
			Relations: []models.Role{models.RoleAdmin},
			Reason:    "admin",
		}
	}

	relations := relationsOf(actor, target)
	for _, rel := range relations {
		ok, err := e.enforcer.Enforce(string(rel), string(target.Resource), string(action))
		if err != nil {
			return AuthorizationDecision{Relations: relations, Reason: err.Error()}
		}
		if ok {
			return AuthorizationDecision{
				Allowed:   true,
				Relations: relations,
				Reason:    fmt.Sprintf("%s may %s %s", rel, action, target.Resource),
			}
		}
	}

	return AuthorizationDecision{
		Relations: relations,
		Reason:    fmt.Sprintf("no rule grants %s on %s", action, target.Resource),
	}
}

func (e *Evaluator) Allowed(actor models.Actor, target Target, action models.Action) bool {
	return e.Decide(actor, target, action).Allowed
}

// relationsOf lists every relation the actor holds towards the target; the
// decision allows if any of them is granted the action.
func relationsOf(actor models.Actor, target Target) []models.Role {
	var relations []models.Role

	switch target.Resource {
	case models.ResourceUser:
		if target.UserID != nil && *target.UserID == actor.ID {
			relations = append(relations, models.RoleSelf)
		}
	case models.ResourceProject:
		if target.Project == nil {
			relations = append(relations, models.RoleMember)
			break
		}
		relations = append(relations, projectRelation(actor, target.Project)...)
	default:
		if target.Project != nil {
			relations = append(relations, projectRelation(actor, target.Project)...)
		}
		if target.AuthorID != nil && *target.AuthorID == actor.ID {
			relations = append(relations, models.RoleAuthor)
		}
	}

	if len(relations) == 0 {
		relations = append(relations, models.RoleNone)
	}
	return relations
}

func projectRelation(actor models.Actor, p *models.Project) []models.Role {
	switch {
	case p.IsOwner(actor.ID):
		return []models.Role{models.RoleOwner}
	case p.HasMember(actor.ID):
		return []models.Role{models.RoleMember}
	}
	return nil
}
