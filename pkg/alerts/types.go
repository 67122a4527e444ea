package alerts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Kind distinguishes threshold alerts from periodic reports.
type Kind string

const (
	KindUsageAlert  Kind = "usage_alert"  // A window's delta exceeded its threshold
	KindUsageReport Kind = "usage_report" // Periodic total usage summary
)

// Message is a notification ready for delivery.
type Message struct {
	ID        string `json:"id"`
	Kind      Kind   `json:"kind"`
	Window    string `json:"window,omitempty"`
	Recipient string `json:"recipient"`
	Sender    string `json:"sender"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// Envelope holds the addressing applied to every composed message.
type Envelope struct {
	From string
	To   string
}

// Compose builds a message with a fresh ID.
func (e Envelope) Compose(kind Kind, subject, body string) Message {
	return Message{
		ID:        uuid.New().String(),
		Kind:      kind,
		Recipient: e.To,
		Sender:    e.From,
		Subject:   subject,
		Body:      body,
	}
}

// Notifier sends messages to external systems.
type Notifier interface {
	// Name returns the notifier identifier.
	Name() string

	// Send delivers a message once. Implementations must be safe for concurrent use.
	Send(ctx context.Context, msg Message) error
}

// NotifyError reports a delivery that failed on every attempt.
type NotifyError struct {
	Notifier string
	Attempts int
	Err      error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify via %s failed after %d attempts: %v", e.Notifier, e.Attempts, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }
