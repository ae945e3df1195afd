package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	mu    sync.Mutex
	got   []Notification
	err   error
	panic bool
}

func (n *recordingNotifier) Notify(ctx context.Context, note Notification) error {
	if n.panic {
		panic("boom")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, note)
	return n.err
}

type blockingMailer struct{}

func (blockingMailer) SendCashPickupEmail(ctx context.Context, userID string, email CashPickupEmail) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("db down")}
	d := NewDispatcher(notifier, nil, time.Second, zap.NewNop())

	d.Notify(Notification{UserID: "u1", Type: TypePayoutRequested})
	d.Wait()

	assert.Len(t, notifier.got, 1)
}

func TestDispatcherRecoversPanics(t *testing.T) {
	d := NewDispatcher(&recordingNotifier{panic: true}, nil, time.Second, zap.NewNop())
	assert.NotPanics(t, func() {
		d.Notify(Notification{UserID: "u1"})
		d.Wait()
	})
}

func TestDispatcherDoesNotBlockCaller(t *testing.T) {
	d := NewDispatcher(nil, blockingMailer{}, 200*time.Millisecond, zap.NewNop())

	start := time.Now()
	d.CashPickupEmail("u1", CashPickupEmail{Reference: "ABCDEFGH23"})
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	d.Wait()
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

type fakeDirectory map[string]string

func (f fakeDirectory) EmailFor(ctx context.Context, userID string) (string, error) {
	if email, ok := f[userID]; ok {
		return email, nil
	}
	return "", ErrNoEmail
}

type fakeSender struct {
	to, subject, body string
}

func (s *fakeSender) Send(to, subject, body string) error {
	s.to, s.subject, s.body = to, subject, body
	return nil
}

func TestEmailWorkerSendsCashPickupEmail(t *testing.T) {
	sender := &fakeSender{}
	worker := NewEmailWorker(fakeDirectory{"u1": "ana@example.com"}, sender, zap.NewNop())

	payload, err := json.Marshal(CashPickupPayload{UserID: "u1", Email: CashPickupEmail{
		PayoutID:      "p1",
		Reference:     "K7M2P9QXZA",
		Provider:      "Western Union",
		RecipientName: "Ana Ruiz",
		City:          "Lima",
		Country:       "PE",
		Amount:        decimal.NewFromInt(100),
		NetAmount:     decimal.NewFromInt(97),
		Currency:      "EUR",
		Instructions:  []string{"Bring your ID."},
	}})
	require.NoError(t, err)

	require.NoError(t, worker.HandleCashPickupEmail(context.Background(), asynq.NewTask(TaskCashPickupEmail, payload)))
	assert.Equal(t, "ana@example.com", sender.to)
	assert.Contains(t, sender.subject, "K7M2P9QXZA")
	assert.Contains(t, sender.body, "97.00 EUR")
	assert.Contains(t, sender.body, "fee 3.00")
	assert.Contains(t, sender.body, "- Bring your ID.")
}

func TestEmailWorkerRejectsBadPayload(t *testing.T) {
	worker := NewEmailWorker(fakeDirectory{}, &fakeSender{}, zap.NewNop())
	err := worker.HandleCashPickupEmail(context.Background(), asynq.NewTask(TaskCashPickupEmail, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestEmailWorkerUnknownUser(t *testing.T) {
	worker := NewEmailWorker(fakeDirectory{}, &fakeSender{}, zap.NewNop())
	payload, _ := json.Marshal(CashPickupPayload{UserID: "missing"})
	err := worker.HandleCashPickupEmail(context.Background(), asynq.NewTask(TaskCashPickupEmail, payload))
	assert.True(t, errors.Is(err, ErrNoEmail))
}
