package alerts

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how often a single notifier is tried for one message.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetryPolicy tries three times, three seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: 3 * time.Second}
}

// Dispatcher fans a message out to every notifier, retrying each one under a
// RetryPolicy. Failures are logged and never returned to the caller.
type Dispatcher struct {
	notifiers []Notifier
	policy    RetryPolicy
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher over the given notifiers.
func NewDispatcher(notifiers []Notifier, policy RetryPolicy, logger *slog.Logger) *Dispatcher {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	return &Dispatcher{
		notifiers: notifiers,
		policy:    policy,
		logger:    logger,
	}
}

// Notifiers returns the names of the configured notifiers.
func (d *Dispatcher) Notifiers() []string {
	names := make([]string, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		names = append(names, n.Name())
	}
	return names
}

// Deliver sends msg through every notifier and reports whether at least one
// accepted it.
func (d *Dispatcher) Deliver(ctx context.Context, msg Message) bool {
	if len(d.notifiers) == 0 {
		d.logger.Warn("no notifiers configured, message dropped",
			"message_id", msg.ID,
			"subject", msg.Subject,
		)
		return false
	}

	delivered := false
	for _, n := range d.notifiers {
		if err := d.send(ctx, n, msg); err != nil {
			d.logger.Error("notification undeliverable",
				"notifier", n.Name(),
				"message_id", msg.ID,
				"subject", msg.Subject,
				"error", err,
			)
			continue
		}
		delivered = true
	}
	return delivered
}

func (d *Dispatcher) send(ctx context.Context, n Notifier, msg Message) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(d.policy.Backoff), uint64(d.policy.Attempts-1)),
		ctx,
	)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		return n.Send(ctx, msg)
	}, policy, func(err error, wait time.Duration) {
		d.logger.Warn("notification attempt failed",
			"notifier", n.Name(),
			"message_id", msg.ID,
			"attempt", attempt,
			"max_attempts", d.policy.Attempts,
			"retry_in", wait,
			"error", err,
		)
	})
	if err != nil {
		return &NotifyError{Notifier: n.Name(), Attempts: attempt, Err: err}
	}

	d.logger.Info("notification sent",
		"notifier", n.Name(),
		"message_id", msg.ID,
		"recipient", msg.Recipient,
		"subject", msg.Subject,
		"attempt", attempt,
	)
	return nil
}
