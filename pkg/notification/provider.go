package notification

import (
	"context"
	"errors"
)

// ErrProviderRejected is returned when the provider refuses a whole chunk.
var ErrProviderRejected = errors.New("provider rejected request")

// Message is a single push notification addressed to one device token.
type Message struct {
	To    string
	Title string
	Body  string
	Sound string
	Data  map[string]string
	Ref   string // caller's recipient reference, never sent
}

// Tag returns the data tag identifying the message kind.
func (m Message) Tag() string {
	return m.Data["type"]
}

// TicketStatus is the per-message acknowledgement state returned by a provider.
type TicketStatus string

const (
	TicketOK    TicketStatus = "ok"
	TicketError TicketStatus = "error"
)

// Ticket is a provider's acknowledgement of one submitted message.
// It confirms submission only, not delivery to the device.
type Ticket struct {
	To      string       `json:"to"`
	ID      string       `json:"id,omitempty"`
	Status  TicketStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// Provider is a push delivery backend.
type Provider interface {
	// Name identifies the provider in logs.
	Name() string
	// ValidToken reports whether token has the provider's expected format.
	ValidToken(token string) bool
	// MaxBatchSize is the largest number of messages accepted per Send.
	MaxBatchSize() int
	// Send submits one chunk. A non-nil error means the whole chunk failed.
	Send(ctx context.Context, msgs []Message) ([]Ticket, error)
}
