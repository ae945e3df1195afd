package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const QueueEmails = "emails"

// QueueMailer hands cash pickup emails to asynq so delivery retries happen
// outside the request path.
type QueueMailer struct {
	client *asynq.Client
}

func NewQueueMailer(client *asynq.Client) *QueueMailer {
	return &QueueMailer{client: client}
}

func (m *QueueMailer) SendCashPickupEmail(ctx context.Context, userID string, email CashPickupEmail) error {
	b, err := json.Marshal(CashPickupPayload{UserID: userID, Email: email, SentAt: time.Now()})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskCashPickupEmail, b, asynq.MaxRetry(5))
	if _, err := m.client.EnqueueContext(ctx, task, asynq.Queue(QueueEmails)); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", TaskCashPickupEmail, err)
	}
	return nil
}

type Sender interface {
	Send(to, subject, body string) error
}

// EmailWorker consumes queued email tasks.
type EmailWorker struct {
	directory Directory
	sender    Sender
	log       *zap.Logger
}

func NewEmailWorker(directory Directory, sender Sender, log *zap.Logger) *EmailWorker {
	return &EmailWorker{directory: directory, sender: sender, log: log.Named("email_worker")}
}

func (w *EmailWorker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskCashPickupEmail, w.HandleCashPickupEmail)
}

func (w *EmailWorker) HandleCashPickupEmail(ctx context.Context, t *asynq.Task) error {
	var p CashPickupPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("bad payload: %v: %w", err, asynq.SkipRetry)
	}
	to, err := w.directory.EmailFor(ctx, p.UserID)
	if err != nil {
		return err
	}
	if err := w.sender.Send(to, cashPickupSubject(p.Email), cashPickupBody(p.Email)); err != nil {
		w.log.Error("cash pickup email failed", zap.String("payout_id", p.Email.PayoutID), zap.Error(err))
		return err
	}
	w.log.Info("cash pickup email sent", zap.String("payout_id", p.Email.PayoutID), zap.String("user_id", p.UserID))
	return nil
}
