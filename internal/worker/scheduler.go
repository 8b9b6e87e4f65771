package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/bk-med/kanban/internal/models"
	"github.com/bk-med/kanban/internal/services"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Scheduler periodically enqueues maintenance work: due-soon reminders for
// assigned open tasks and the expired refresh token sweep.
type Scheduler struct {
	db       *gorm.DB
	queue    *JobQueue
	interval time.Duration
	logger   logrus.FieldLogger
	now      func() time.Time
}

func NewScheduler(db *gorm.DB, queue *JobQueue, interval time.Duration, logger logrus.FieldLogger) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{
		db:       db,
		queue:    queue,
		interval: interval,
		logger:   logger.WithField("component", "scheduler"),
		now:      time.Now,
	}
}

// Run ticks until ctx is cancelled, starting with an immediate round.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.WithError(err).Error("Scheduled round failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) Tick(ctx context.Context) error {
	if err := s.queue.Enqueue(ctx, QueueMaintenance, JobTypeCleanup, struct{}{}); err != nil {
		return fmt.Errorf("failed to enqueue cleanup: %w", err)
	}

	today := models.DateOf(s.now().UTC())
	var tasks []models.Task
	err := s.db.WithContext(ctx).
		Preload("AssignedTo").
		Where("status <> ? AND assigned_to_id IS NOT NULL", models.StatusDone).
		Where("due_date >= ? AND due_date <= ?", today, today.AddDays(1)).
		Find(&tasks).Error
	if err != nil {
		return fmt.Errorf("failed to scan due tasks: %w", err)
	}

	for i := range tasks {
		note := services.NotificationFor(services.NotificationTaskDueSoon, &tasks[i])
		if err := s.queue.Enqueue(ctx, QueueNotifications, JobTypeTaskDueSoon, note); err != nil {
			return fmt.Errorf("failed to enqueue reminder: %w", err)
		}
	}
	s.logger.WithField("reminders", len(tasks)).Debug("Scheduled round complete")
	return nil
}

// CleanupHandler removes refresh tokens that have expired.
func CleanupHandler(db *gorm.DB, logger logrus.FieldLogger) JobHandler {
	return func(ctx context.Context, job *Job) error {
		result := db.WithContext(ctx).Where("expires_at <= ?", time.Now()).Delete(&models.Token{})
		if result.Error != nil {
			return fmt.Errorf("failed to purge expired tokens: %w", result.Error)
		}
		logger.WithField("purged", result.RowsAffected).Info("Expired refresh tokens purged")
		return nil
	}
}

// Register wires every job type this service produces onto w.
func Register(w *Worker, db *gorm.DB, mailer Mailer, logger logrus.FieldLogger) {
	notify := NotificationHandler(mailer, logger)
	w.RegisterHandler(JobTypeTaskAssigned, notify)
	w.RegisterHandler(JobTypeTaskStatusChanged, notify)
	w.RegisterHandler(JobTypeTaskDueSoon, notify)
	w.RegisterHandler(JobTypeCleanup, CleanupHandler(db, logger))
}
