package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Dispatcher runs notifications and emails in the background. Each call gets
// its own context and timeout, and failures are only logged.
type Dispatcher struct {
	notifier Notifier
	mailer   Mailer
	timeout  time.Duration
	log      *zap.Logger
	wg       sync.WaitGroup
}

func NewDispatcher(notifier Notifier, mailer Mailer, timeout time.Duration, log *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{notifier: notifier, mailer: mailer, timeout: timeout, log: log.Named("alerts")}
}

func (d *Dispatcher) Notify(n Notification) {
	if d.notifier == nil {
		return
	}
	d.goSafe("notify:"+n.Type, func(ctx context.Context) error {
		return d.notifier.Notify(ctx, n)
	})
}

func (d *Dispatcher) CashPickupEmail(userID string, email CashPickupEmail) {
	if d.mailer == nil {
		return
	}
	d.goSafe(TaskCashPickupEmail, func(ctx context.Context) error {
		return d.mailer.SendCashPickupEmail(ctx, userID, email)
	})
}

// Wait blocks until all dispatched calls have returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) goSafe(name string, fn func(ctx context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return fn(ctx)
		}()
		if err != nil {
			d.log.Warn("best-effort delivery failed", zap.String("task", name), zap.Error(err))
		}
	}()
}
