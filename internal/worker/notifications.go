package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/bk-med/kanban/internal/services"

	"github.com/sirupsen/logrus"
)

// QueueNotifier hands task notifications to the worker through Redis.
type QueueNotifier struct {
	queue *JobQueue
}

func NewQueueNotifier(queue *JobQueue) *QueueNotifier {
	return &QueueNotifier{queue: queue}
}

func (n *QueueNotifier) Notify(ctx context.Context, note services.Notification) error {
	return n.queue.Enqueue(ctx, QueueNotifications, JobType(note.Type), note)
}

type Message struct {
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of delivering them.
type LogMailer struct {
	Logger logrus.FieldLogger
}

func (m LogMailer) Send(ctx context.Context, msg Message) error {
	m.Logger.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info(msg.Body)
	return nil
}

// NotificationHandler renders a queued notification and mails it to the
// assignee. Notifications without a recipient address are dropped.
func NotificationHandler(mailer Mailer, logger logrus.FieldLogger) JobHandler {
	return func(ctx context.Context, job *Job) error {
		var note services.Notification
		if err := job.Decode(&note); err != nil {
			return err
		}
		if note.Recipient == "" {
			logger.WithField("task_id", note.TaskID).Debug("Assignee has no email address, skipping notification")
			return nil
		}
		msg, err := render(note)
		if err != nil {
			return err
		}
		return mailer.Send(ctx, msg)
	}
}

func render(note services.Notification) (Message, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", note.Username)

	var subject string
	switch note.Type {
	case services.NotificationTaskAssigned:
		subject = "New task assigned: " + note.TaskTitle
		fmt.Fprintf(&b, "A task has been assigned to you: %s\n", note.TaskTitle)
		fmt.Fprintf(&b, "Priority: %s\nStatus: %s\n", note.Priority, note.Status)
		if note.DueDate != nil {
			fmt.Fprintf(&b, "Due date: %s\n", note.DueDate)
		} else {
			b.WriteString("Due date: not set\n")
		}
	case services.NotificationTaskStatusChanged:
		subject = "Task status changed: " + note.TaskTitle
		fmt.Fprintf(&b, "The status of your task %s changed", note.TaskTitle)
		if note.PreviousStatus != "" {
			fmt.Fprintf(&b, " from %s", note.PreviousStatus)
		}
		fmt.Fprintf(&b, " to %s", note.Status)
		if note.ActorName != "" {
			fmt.Fprintf(&b, " by %s", note.ActorName)
		}
		b.WriteString(".\n")
	case services.NotificationTaskDueSoon:
		subject = "Task due soon: " + note.TaskTitle
		fmt.Fprintf(&b, "Your task %s is due on %s and is still %s.\n", note.TaskTitle, note.DueDate, note.Status)
	default:
		return Message{}, fmt.Errorf("unknown notification type %q", note.Type)
	}

	return Message{To: note.Recipient, Subject: subject, Body: b.String()}, nil
}
