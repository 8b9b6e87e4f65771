package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bk-med/kanban/pkg/client"
)

// fakeKanban serves just enough of the API for the commands.
type fakeKanban struct {
	mu       sync.Mutex
	tasks    []client.Task
	failMove bool
	deletes  atomic.Int32
}

func (f *fakeKanban) handler() http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(v)
	}
	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer access-1" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
				return
			}
			next(w, r)
		}
	}

	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_credentials", "message": "Invalid username or password"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"access": "access-1", "refresh": "refresh-1"})
	})
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"detail": "Successfully logged out."})
	})
	mux.HandleFunc("GET /auth/me", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, client.User{ID: "u1", Username: "alice", Email: "alice@example.com"})
	}))
	mux.HandleFunc("GET /projects", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []client.Project{{ID: "p1", Name: "Website", Owner: client.User{Username: "alice"}, TaskCount: 2, MemberCount: 1}})
	}))
	mux.HandleFunc("GET /projects/p1/tasks", authed(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, http.StatusOK, f.tasks)
	}))
	mux.HandleFunc("POST /projects/p1/tasks", authed(func(w http.ResponseWriter, r *http.Request) {
		var in client.TaskInput
		json.NewDecoder(r.Body).Decode(&in)
		f.mu.Lock()
		defer f.mu.Unlock()
		t := client.Task{ID: "t9", Title: in.Title, Status: client.StatusTodo, Priority: in.Priority}
		f.tasks = append(f.tasks, t)
		writeJSON(w, http.StatusCreated, t)
	}))
	mux.HandleFunc("PATCH /tasks/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		if f.failMove {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": "An unexpected error occurred"})
			return
		}
		var in struct {
			Status client.Status `json:"status"`
		}
		json.NewDecoder(r.Body).Decode(&in)
		f.mu.Lock()
		defer f.mu.Unlock()
		for i := range f.tasks {
			if f.tasks[i].ID == r.PathValue("id") {
				f.tasks[i].Status = in.Status
				writeJSON(w, http.StatusOK, f.tasks[i])
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
	}))
	mux.HandleFunc("DELETE /tasks/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		f.deletes.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	return mux
}

type cliHarness struct {
	t      *testing.T
	srv    *httptest.Server
	api    *fakeKanban
	config string
	creds  string
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	api := &fakeKanban{tasks: []client.Task{
		{ID: "t1", Title: "Design", Status: client.StatusTodo, Priority: "HIGH"},
		{ID: "t2", Title: "Build", Status: client.StatusInProgress, Priority: "MEDIUM"},
	}}
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	creds := filepath.Join(dir, "credentials.yaml")
	config := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(config, []byte("server: "+srv.URL+"\ncredentials: "+creds+"\n"), 0o600))

	return &cliHarness{t: t, srv: srv, api: api, config: config, creds: creds}
}

func (h *cliHarness) run(stdin string, args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	app := &App{In: strings.NewReader(stdin), Out: &out, Err: &errOut}
	err := Execute(context.Background(), app, append([]string{"--config", h.config}, args...))
	return out.String(), errOut.String(), err
}

func (h *cliHarness) login() {
	_, _, err := h.run("", "login", "-u", "alice", "-p", "secret")
	require.NoError(h.t, err)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, defaultServer, cfg.Server)
	assert.Equal(t, filepath.Join(HomeDir(), "credentials.yaml"), cfg.Credentials)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: https://kanban.example.com\n"), 0o600))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://kanban.example.com", cfg.Server)

	t.Setenv("KANBAN_SERVER", "http://override:9000")
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://override:9000", cfg.Server)
}

func TestParseStatus(t *testing.T) {
	tests := map[string]client.Status{
		"todo":        client.StatusTodo,
		"in-progress": client.StatusInProgress,
		"In Progress": client.StatusInProgress,
		"DONE":        client.StatusDone,
	}
	for raw, want := range tests {
		got, err := parseStatus(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}

	_, err := parseStatus("blocked")
	assert.Error(t, err)
}

func TestLoginPromptsAndStoresCredentials(t *testing.T) {
	h := newCLIHarness(t)

	out, _, err := h.run("alice\nsecret\n", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as alice")

	data, err := os.ReadFile(h.creds)
	require.NoError(t, err)
	assert.Contains(t, string(data), "refresh: refresh-1")

	out, _, err = h.run("", "whoami")
	require.NoError(t, err)
	assert.Equal(t, "alice <alice@example.com> (member)\n", out)
}

func TestLoginWrongPassword(t *testing.T) {
	h := newCLIHarness(t)

	_, errOut, err := h.run("", "login", "-u", "alice", "-p", "nope")
	require.Error(t, err)
	assert.Contains(t, errOut, "Invalid username or password")
	_, statErr := os.Stat(h.creds)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCommandsRequireLogin(t *testing.T) {
	h := newCLIHarness(t)

	_, errOut, err := h.run("", "projects")
	assert.ErrorIs(t, err, client.ErrNotLoggedIn)
	assert.Contains(t, errOut, "run `kanban login`")
}

func TestProjectsAndBoard(t *testing.T) {
	h := newCLIHarness(t)
	h.login()

	out, _, err := h.run("", "projects")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"ID", "NAME", "OWNER", "TASKS", "MEMBERS"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"p1", "Website", "alice", "2", "1"}, strings.Fields(lines[1]))

	out, _, err = h.run("", "board", "p1")
	require.NoError(t, err)
	assert.Contains(t, out, "TODO (1)")
	assert.Contains(t, out, "IN_PROGRESS (1)")
	assert.Contains(t, out, "DONE (0)")
	assert.Less(t, strings.Index(out, "Design"), strings.Index(out, "Build"))
}

func TestMoveAddRemove(t *testing.T) {
	h := newCLIHarness(t)
	h.login()

	out, _, err := h.run("", "move", "p1", "t1", "done")
	require.NoError(t, err)
	assert.Equal(t, "t1 \"Design\" is now DONE\n", out)

	out, _, err = h.run("", "add", "p1", "Write tests", "--priority", "low")
	require.NoError(t, err)
	assert.Equal(t, "Created t9 \"Write tests\" in TODO\n", out)
	assert.Equal(t, "LOW", h.api.tasks[2].Priority)

	out, _, err = h.run("", "rm", "p1", "t9", "--yes")
	require.NoError(t, err)
	assert.Equal(t, "Deleted t9\n", out)
}

func TestRemoveAsksForConfirmation(t *testing.T) {
	h := newCLIHarness(t)
	h.login()

	for _, answer := range []string{"n\n", "\n", "maybe\n", ""} {
		out, _, err := h.run(answer, "rm", "p1", "t1")
		require.NoError(t, err)
		assert.Contains(t, out, "Delete task t1? [y/N]")
		assert.Contains(t, out, "Aborted")
		assert.NotContains(t, out, "Deleted")
	}
	assert.Zero(t, h.api.deletes.Load())

	out, _, err := h.run("Yes\n", "rm", "p1", "t1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted t1")
	assert.EqualValues(t, 1, h.api.deletes.Load())
}

func TestMoveFailureReportsRollback(t *testing.T) {
	h := newCLIHarness(t)
	h.login()
	h.api.failMove = true

	_, errOut, err := h.run("", "move", "p1", "t1", "IN_PROGRESS")
	require.Error(t, err)
	assert.Contains(t, errOut, "move rejected, task stays in TODO")
}

func TestLogoutForgetsCredentials(t *testing.T) {
	h := newCLIHarness(t)
	h.login()

	out, _, err := h.run("", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")
	_, statErr := os.Stat(h.creds)
	assert.True(t, os.IsNotExist(statErr))

	_, _, err = h.run("", "whoami")
	assert.ErrorIs(t, err, client.ErrNotLoggedIn)
}
