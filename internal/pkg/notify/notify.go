// Package notify fans user-facing notifications out to email, mobile push
// and the in-app inbox. Email and push go through the job queue.
package notify

import (
	"context"
	"fmt"

	"github.com/talentbridge/jobboard/app/models"
	"github.com/talentbridge/jobboard/app/repository"
	"github.com/talentbridge/jobboard/internal/pkg/jobqueue"
	"github.com/talentbridge/jobboard/internal/pkg/mail"
	"github.com/talentbridge/jobboard/internal/pkg/push"
)

const (
	TemplateSubscriptionActivated = "subscription_activated"
	TemplateSalesNotification     = "sales_notification"
	TemplatePaymentFailed         = "payment_failed"
	TemplateSubscriptionEnded     = "subscription_ended"
	TemplateAddOnActivated        = "addon_activated"
)

type Email struct {
	To       []string
	Subject  string
	Template string
	Data     map[string]interface{}
}

type Push struct {
	AccountIDs []uint
	Title      string
	Body       string
	Data       map[string]string
}

type Notifier interface {
	SendEmail(ctx context.Context, email Email) error
	SendPush(ctx context.Context, p Push) error
	InApp(ctx context.Context, notifications []models.Notification) error
}

// Enqueuer is the job queue as seen by the notifier
type Enqueuer interface {
	EnqueueJob(ctx context.Context, jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error)
}

type QueueNotifier struct {
	queue         Enqueuer
	notifications repository.NotificationRepository
}

func NewQueueNotifier(queue Enqueuer, notifications repository.NotificationRepository) *QueueNotifier {
	return &QueueNotifier{queue: queue, notifications: notifications}
}

func (n *QueueNotifier) SendEmail(ctx context.Context, email Email) error {
	if len(email.To) == 0 {
		return nil
	}
	payload := jobqueue.SendEmailJobPayload{
		To:       email.To,
		Subject:  email.Subject,
		Template: email.Template,
		Data:     email.Data,
	}
	if _, err := n.queue.EnqueueJob(ctx, jobqueue.JobTypeSendEmail, payload.ToMap()); err != nil {
		return fmt.Errorf("enqueue email %s: %w", email.Template, err)
	}
	return nil
}

func (n *QueueNotifier) SendPush(ctx context.Context, p Push) error {
	if len(p.AccountIDs) == 0 {
		return nil
	}
	payload := jobqueue.SendPushJobPayload{
		AccountIDs: p.AccountIDs,
		Title:      p.Title,
		Body:       p.Body,
		Data:       p.Data,
	}
	if _, err := n.queue.EnqueueJob(ctx, jobqueue.JobTypeSendPush, payload.ToMap()); err != nil {
		return fmt.Errorf("enqueue push: %w", err)
	}
	return nil
}

// InApp stores inbox entries directly; they need no external delivery
func (n *QueueNotifier) InApp(_ context.Context, notifications []models.Notification) error {
	return n.notifications.CreateBatch(notifications)
}

// EmailHandler delivers queued email jobs
func EmailHandler(sender mail.Sender) jobqueue.Handler {
	return func(ctx context.Context, job *jobqueue.Job) error {
		p, err := jobqueue.SendEmailJobPayloadFromMap(job.Payload)
		if err != nil {
			return fmt.Errorf("invalid email payload: %w", err)
		}
		return sender.Send(ctx, mail.Message{
			To:       p.To,
			Subject:  p.Subject,
			Template: p.Template,
			Data:     p.Data,
		})
	}
}

// PushHandler publishes queued push jobs
func PushHandler(pub push.Publisher) jobqueue.Handler {
	return func(ctx context.Context, job *jobqueue.Job) error {
		p, err := jobqueue.SendPushJobPayloadFromMap(job.Payload)
		if err != nil {
			return fmt.Errorf("invalid push payload: %w", err)
		}
		return pub.Publish(ctx, push.Message{
			AccountIDs: p.AccountIDs,
			Title:      p.Title,
			Body:       p.Body,
			Data:       p.Data,
		})
	}
}

// Register installs the email and push handlers on q
func Register(q *jobqueue.Queue, sender mail.Sender, pub push.Publisher) {
	q.Handle(jobqueue.JobTypeSendEmail, EmailHandler(sender))
	q.Handle(jobqueue.JobTypeSendPush, PushHandler(pub))
}
