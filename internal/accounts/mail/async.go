package mail

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/accounts/pkg/slogx"
)

// DefaultAsyncTimeout bounds a single background delivery.
const DefaultAsyncTimeout = 30 * time.Second

// AsyncMailer hands messages to next on a background goroutine so callers
// return before delivery finishes. Delivery errors are logged, not returned.
type AsyncMailer struct {
	next    Mailer
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAsyncMailer(next Mailer, timeout time.Duration) *AsyncMailer {
	if timeout <= 0 {
		timeout = DefaultAsyncTimeout
	}
	return &AsyncMailer{next: next, timeout: timeout}
}

// Send validates msg and schedules delivery. The delivery context keeps
// the values of ctx but not its cancellation, so it outlives the request.
func (m *AsyncMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}

	detached := context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		sendCtx, cancel := context.WithTimeout(detached, m.timeout)
		defer cancel()

		if err := m.next.Send(sendCtx, msg); err != nil {
			slogx.FromContext(sendCtx).Error("email delivery failed",
				slog.String("to", msg.To),
				slog.String("subject", msg.Subject),
				slog.Any("err", err),
			)
		}
	}()
	return nil
}

// Wait blocks until every scheduled delivery has finished.
func (m *AsyncMailer) Wait() {
	m.wg.Wait()
}
