package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type JobType string

const (
	JobTypeTaskAssigned      JobType = "task_assigned"
	JobTypeTaskStatusChanged JobType = "task_status_changed"
	JobTypeTaskDueSoon       JobType = "task_due_soon"
	JobTypeCleanup           JobType = "cleanup"
)

const (
	QueueNotifications = "notifications"
	QueueMaintenance   = "maintenance"
	QueueRetry         = "retry_queue"
	QueueDead          = "dead_queue"
)

const defaultMaxTries = 3

type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	MaxTries  int             `json:"max_tries"`
	CreatedAt time.Time       `json:"created_at"`
	ProcessAt time.Time       `json:"process_at"`
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v interface{}) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", j.Type, err)
	}
	return nil
}

type JobHandler func(ctx context.Context, job *Job) error

// DeadJob is what lands on the dead-letter queue.
type DeadJob struct {
	Job      *Job      `json:"original_job"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// errNotDue signals that a popped job was pushed back because its
// ProcessAt is still in the future.
var errNotDue = errors.New("job not due yet")

type Worker struct {
	client      *redis.Client
	handlers    map[JobType]JobHandler
	queues      []string
	pollTimeout time.Duration
	jobTimeout  time.Duration
	retryBase   time.Duration
	logger      logrus.FieldLogger
	now         func() time.Time

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type WorkerConfig struct {
	RedisClient *redis.Client
	Concurrency int
	// PollInterval bounds each BLPOP; Redis rounds it up to whole seconds.
	PollInterval time.Duration
	Queues       []string
	JobTimeout   time.Duration
	// RetryBase is doubled for every failed attempt.
	RetryBase time.Duration
	Logger    logrus.FieldLogger
}

func NewWorker(config WorkerConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if len(config.Queues) == 0 {
		config.Queues = []string{QueueNotifications, QueueMaintenance, QueueRetry}
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 30 * time.Second
	}
	if config.RetryBase <= 0 {
		config.RetryBase = time.Minute
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}

	return &Worker{
		client:      config.RedisClient,
		handlers:    make(map[JobType]JobHandler),
		queues:      config.Queues,
		pollTimeout: config.PollInterval,
		jobTimeout:  config.JobTimeout,
		retryBase:   config.RetryBase,
		logger:      config.Logger.WithField("component", "worker"),
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (w *Worker) RegisterHandler(jobType JobType, handler JobHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

func (w *Worker) Start(concurrency int) {
	if concurrency <= 0 {
		concurrency = 1
	}
	w.logger.WithField("concurrency", concurrency).Info("Starting worker")

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop()
	}
}

// Stop waits for in-flight jobs; a blocked BLPOP may hold it for up to one
// poll interval.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker")
	w.cancel()
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}

func (w *Worker) workerLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		err := w.processNextJob()
		if err == nil {
			continue
		}
		if w.ctx.Err() != nil {
			return
		}
		if !errors.Is(err, errNotDue) {
			w.logger.WithError(err).Error("Error processing job")
		}
		select {
		case <-w.ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (w *Worker) processNextJob() error {
	result, err := w.client.BLPop(w.ctx, w.pollTimeout, w.queues...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to pop job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	queue := result[0]
	jobData := result[1]

	var job Job
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		w.logger.WithError(err).WithField("queue", queue).Error("Dropping malformed job")
		return w.pushDead(&DeadJob{Error: err.Error(), FailedAt: w.now()})
	}

	if w.now().Before(job.ProcessAt) {
		if err := w.enqueueJob(queue, &job); err != nil {
			return err
		}
		return errNotDue
	}

	return w.executeJob(&job)
}

func (w *Worker) executeJob(job *Job) error {
	w.mu.RLock()
	handler, exists := w.handlers[job.Type]
	w.mu.RUnlock()

	log := w.logger.WithFields(logrus.Fields{"job_id": job.ID, "job_type": job.Type})

	if !exists {
		log.Warn("No handler registered for job type")
		return w.moveToDeadQueue(job, fmt.Errorf("no handler registered for job type: %s", job.Type))
	}

	log.Debug("Processing job")

	ctx, cancel := context.WithTimeout(w.ctx, w.jobTimeout)
	defer cancel()

	err := handler(ctx, job)
	if err != nil {
		job.Attempts++
		if job.Attempts < job.MaxTries {
			log.WithError(err).WithField("attempt", job.Attempts).Warn("Job failed, retrying")
			return w.retryJob(job)
		}

		log.WithError(err).WithField("attempts", job.Attempts).Error("Job failed permanently")
		return w.moveToDeadQueue(job, err)
	}

	log.Debug("Job completed")
	return nil
}

func (w *Worker) retryJob(job *Job) error {
	delay := time.Duration(1<<(job.Attempts-1)) * w.retryBase
	job.ProcessAt = w.now().Add(delay)

	return w.enqueueJob(QueueRetry, job)
}

func (w *Worker) enqueueJob(queue string, job *Job) error {
	jobData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return w.client.RPush(w.ctx, queue, jobData).Err()
}

func (w *Worker) moveToDeadQueue(job *Job, jobErr error) error {
	return w.pushDead(&DeadJob{Job: job, Error: jobErr.Error(), FailedAt: w.now()})
}

func (w *Worker) pushDead(dead *DeadJob) error {
	deadJobData, err := json.Marshal(dead)
	if err != nil {
		return fmt.Errorf("failed to marshal dead job: %w", err)
	}

	return w.client.RPush(w.ctx, QueueDead, deadJobData).Err()
}

type JobQueue struct {
	client *redis.Client
}

func NewJobQueue(client *redis.Client) *JobQueue {
	return &JobQueue{client: client}
}

func (q *JobQueue) Enqueue(ctx context.Context, queue string, jobType JobType, payload interface{}) error {
	return q.EnqueueAt(ctx, queue, jobType, payload, time.Now())
}

func (q *JobQueue) EnqueueAt(ctx context.Context, queue string, jobType JobType, payload interface{}, processAt time.Time) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return err
	}

	job := &Job{
		ID:        id.String(),
		Type:      jobType,
		Payload:   raw,
		MaxTries:  defaultMaxTries,
		CreatedAt: time.Now(),
		ProcessAt: processAt,
	}

	jobData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return q.client.RPush(ctx, queue, jobData).Err()
}

func (q *JobQueue) GetQueueSize(ctx context.Context, queue string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return q.client.LLen(ctx, queue).Result()
}
