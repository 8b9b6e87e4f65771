// Package board keeps the task columns of one project in memory and applies
// status changes optimistically.
//
// A move changes the task locally before the request is sent. Every move
// takes a new generation number; a response is applied only while its
// generation is still the task's latest, so completion order does not
// matter. When the latest move fails the task returns to the state it had
// before the first of its overlapping moves.
package board

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bk-med/kanban/pkg/client"
)

// API is the part of the kanban client the board needs.
type API interface {
	ListTasks(ctx context.Context, projectID string, filter client.TaskFilter) ([]client.Task, error)
	CreateTask(ctx context.Context, projectID string, input client.TaskInput) (*client.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status client.Status) (*client.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// EventKind names what happened to the board.
type EventKind int

const (
	EventLoaded EventKind = iota
	EventLoadFailed
	EventMoved
	EventConfirmed
	EventRolledBack
	EventCreated
	EventDeleted
)

func (k EventKind) String() string {
	switch k {
	case EventLoaded:
		return "loaded"
	case EventLoadFailed:
		return "load_failed"
	case EventMoved:
		return "moved"
	case EventConfirmed:
		return "confirmed"
	case EventRolledBack:
		return "rolled_back"
	case EventCreated:
		return "created"
	case EventDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event describes one change to the board. TaskID is empty for Load events.
type Event struct {
	Kind   EventKind
	TaskID string
	Err    error
}

type entry struct {
	task client.Task

	// gen is the generation of the latest move. inflight holds the
	// generations whose requests have not completed.
	gen      uint64
	inflight map[uint64]struct{}

	// baseline is the last state confirmed by the server while moves are
	// in flight.
	baseline *client.Task
}

// Board is safe for concurrent use. The mutex is never held across API calls.
type Board struct {
	api       API
	projectID string
	logger    logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	order    []string
	tasks    map[string]*entry
	seq      uint64
	err      error
	closed   bool
	subs     map[int]func(Event)
	nextSubs int
}

type Option func(*Board)

// WithLogger sets the logger for request failures and rollbacks.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(b *Board) { b.logger = logger }
}

// New returns an empty board for projectID. Call Load to fill it.
func New(api API, projectID string, opts ...Option) *Board {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	b := &Board{
		api:       api,
		projectID: projectID,
		logger:    quiet,
		ctx:       ctx,
		cancel:    cancel,
		tasks:     make(map[string]*entry),
		subs:      make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.WithField("project_id", projectID)
	return b
}

func (b *Board) ProjectID() string {
	return b.projectID
}

// Load replaces the whole collection with the server's. On failure the
// board is emptied and a *LoadError is returned and recorded.
func (b *Board) Load(ctx context.Context) error {
	ctx, cancel := b.requestContext(ctx)
	defer cancel()

	tasks, err := b.api.ListTasks(ctx, b.projectID, client.TaskFilter{})

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.order = nil
	b.tasks = make(map[string]*entry)

	var ev Event
	if err != nil {
		loadErr := &LoadError{ProjectID: b.projectID, Err: err}
		b.err = loadErr
		ev = Event{Kind: EventLoadFailed, Err: loadErr}
		err = loadErr
	} else {
		for _, t := range tasks {
			if _, dup := b.tasks[t.ID]; dup {
				continue
			}
			b.order = append(b.order, t.ID)
			b.tasks[t.ID] = &entry{task: t, inflight: make(map[uint64]struct{})}
		}
		b.err = nil
		ev = Event{Kind: EventLoaded}
	}
	subs := b.subscribers()
	b.mu.Unlock()

	if err != nil {
		b.logger.WithError(err).Warn("Board load failed")
	} else {
		b.logger.WithField("tasks", len(tasks)).Debug("Board loaded")
	}
	publish(subs, ev)
	return err
}

// Move sets the task's status immediately and confirms it with the server.
// It returns nil when the move succeeded or was superseded by a later move
// of the same task, and a *MoveError when it failed and was rolled back.
func (b *Board) Move(ctx context.Context, taskID string, status client.Status) error {
	gen, err := b.beginMove(taskID, status)
	if err != nil || gen == 0 {
		return err
	}

	ctx, cancel := b.requestContext(ctx)
	defer cancel()
	task, err := b.api.UpdateTaskStatus(ctx, taskID, status)
	return b.finishMove(taskID, gen, status, task, err)
}

// MoveAsync applies the local change before returning and sends the request
// in the background. The channel receives the same result Move would return
// and is then closed.
func (b *Board) MoveAsync(taskID string, status client.Status) <-chan error {
	done := make(chan error, 1)

	gen, err := b.beginMove(taskID, status)
	if err != nil || gen == 0 {
		done <- err
		close(done)
		return done
	}

	go func() {
		defer close(done)
		task, err := b.api.UpdateTaskStatus(b.ctx, taskID, status)
		done <- b.finishMove(taskID, gen, status, task, err)
	}()
	return done
}

// beginMove returns the generation of the new move, or 0 when there is
// nothing to send.
func (b *Board) beginMove(taskID string, status client.Status) (uint64, error) {
	if !status.Valid() {
		return 0, ErrInvalidStatus
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, ErrClosed
	}
	e, ok := b.tasks[taskID]
	if !ok {
		b.mu.Unlock()
		return 0, ErrUnknownTask
	}
	if len(e.inflight) == 0 && e.task.Status == status {
		b.mu.Unlock()
		return 0, nil
	}

	if len(e.inflight) == 0 {
		snapshot := e.task
		e.baseline = &snapshot
	}
	b.seq++
	e.gen = b.seq
	e.inflight[e.gen] = struct{}{}
	e.task.Status = status
	gen := e.gen
	subs := b.subscribers()
	b.mu.Unlock()

	publish(subs, Event{Kind: EventMoved, TaskID: taskID})
	return gen, nil
}

func (b *Board) finishMove(taskID string, gen uint64, status client.Status, task *client.Task, reqErr error) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		if reqErr != nil {
			return reqErr
		}
		return ErrClosed
	}

	e, ok := b.tasks[taskID]
	if !ok {
		// Deleted or reloaded while the request was in flight.
		b.mu.Unlock()
		return reqErr
	}
	if _, mine := e.inflight[gen]; !mine {
		b.mu.Unlock()
		return reqErr
	}
	delete(e.inflight, gen)

	if gen != e.gen {
		b.mu.Unlock()
		b.logger.WithFields(logrus.Fields{"task_id": taskID, "generation": gen}).Debug("Ignoring superseded move")
		return nil
	}

	var ev Event
	var result error
	if reqErr == nil {
		if task != nil && task.ID == taskID {
			e.task = *task
		}
		confirmed := e.task
		e.baseline = &confirmed
		ev = Event{Kind: EventConfirmed, TaskID: taskID}
	} else {
		restored := e.task
		if e.baseline != nil {
			restored = *e.baseline
		}
		e.task = restored
		moveErr := &MoveError{TaskID: taskID, To: status, Restored: restored.Status, Err: reqErr}
		b.err = moveErr
		ev = Event{Kind: EventRolledBack, TaskID: taskID, Err: moveErr}
		result = moveErr
	}
	if len(e.inflight) == 0 {
		e.baseline = nil
	}
	subs := b.subscribers()
	b.mu.Unlock()

	if result != nil {
		b.logger.WithError(reqErr).WithField("task_id", taskID).Warn("Move failed, rolled back")
	}
	publish(subs, ev)
	return result
}

// Create adds the task once the server has stored it.
func (b *Board) Create(ctx context.Context, input client.TaskInput) (*client.Task, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	ctx, cancel := b.requestContext(ctx)
	defer cancel()
	task, err := b.api.CreateTask(ctx, b.projectID, input)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	if err != nil {
		b.err = err
		b.mu.Unlock()
		return nil, err
	}
	if _, exists := b.tasks[task.ID]; !exists {
		b.order = append(b.order, task.ID)
		b.tasks[task.ID] = &entry{task: *task, inflight: make(map[uint64]struct{})}
	}
	subs := b.subscribers()
	b.mu.Unlock()

	publish(subs, Event{Kind: EventCreated, TaskID: task.ID})
	return task, nil
}

// Delete removes the task once the server confirms. A task the server no
// longer knows is removed as well.
func (b *Board) Delete(ctx context.Context, taskID string) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	ctx, cancel := b.requestContext(ctx)
	defer cancel()
	err := b.api.DeleteTask(ctx, taskID)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if err != nil && !client.IsNotFound(err) {
		b.err = err
		b.mu.Unlock()
		return err
	}
	b.remove(taskID)
	subs := b.subscribers()
	b.mu.Unlock()

	publish(subs, Event{Kind: EventDeleted, TaskID: taskID})
	return nil
}

func (b *Board) remove(taskID string) {
	if _, ok := b.tasks[taskID]; !ok {
		return
	}
	delete(b.tasks, taskID)
	for i, id := range b.order {
		if id == taskID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Tasks returns the tasks in arrival order.
func (b *Board) Tasks() []client.Task {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]client.Task, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.tasks[id].task)
	}
	return out
}

// Task returns a copy of the task and whether the board holds it.
func (b *Board) Task(taskID string) (client.Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.tasks[taskID]
	if !ok {
		return client.Task{}, false
	}
	return e.task, true
}

// Columns groups the tasks by status, keeping arrival order inside each
// column. Every status has an entry.
func (b *Board) Columns() map[client.Status][]client.Task {
	cols := make(map[client.Status][]client.Task, len(client.Statuses))
	for _, s := range client.Statuses {
		cols[s] = []client.Task{}
	}
	for _, t := range b.Tasks() {
		cols[t.Status] = append(cols[t.Status], t)
	}
	return cols
}

// Pending reports whether a move of the task is awaiting the server.
func (b *Board) Pending(taskID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.tasks[taskID]
	return ok && len(e.inflight) > 0
}

// Err returns the most recent failure, or nil after a successful Load.
func (b *Board) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Subscribe registers fn for change events and returns a function that
// removes it. fn runs outside the board's lock and may call back into it.
func (b *Board) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSubs
	b.nextSubs++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Close cancels outstanding requests and detaches subscribers. The board
// state does not change after Close returns.
func (b *Board) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.subs = make(map[int]func(Event))
	b.cancel()
}

func (b *Board) checkOpen() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// requestContext derives a context that ends with either ctx or the board.
func (b *Board) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(b.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (b *Board) subscribers() []func(Event) {
	if len(b.subs) == 0 {
		return nil
	}
	out := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		out = append(out, fn)
	}
	return out
}

func publish(subs []func(Event), ev Event) {
	for _, fn := range subs {
		fn(ev)
	}
}

// IsRetryable reports whether err from Load may go away on retry.
func IsRetryable(err error) bool {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Retryable()
	}
	return client.IsTransient(err)
}
