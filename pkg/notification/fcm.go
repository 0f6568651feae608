package notification

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCMMaxBatchSize is the SendEach limit of the FCM v1 API.
const FCMMaxBatchSize = 500

// fcmSender is the part of *messaging.Client the provider uses
type fcmSender interface {
	SendEach(ctx context.Context, messages []*messaging.Message) (*messaging.BatchResponse, error)
}

// FCMProvider handles FCM notifications. The zero value validates tokens
// but cannot send, which is all a dry run needs.
type FCMProvider struct {
	client fcmSender
}

// NewFCMProvider creates a new FCM provider from a service account file
func NewFCMProvider(ctx context.Context, credentialsFile string) (*FCMProvider, error) {
	if credentialsFile == "" {
		return nil, fmt.Errorf("firebase credentials file is required")
	}

	opt := option.WithCredentialsFile(credentialsFile)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("get messaging client: %w", err)
	}

	return &FCMProvider{client: client}, nil
}

func (p *FCMProvider) Name() string { return "fcm" }

func (p *FCMProvider) MaxBatchSize() int { return FCMMaxBatchSize }

// ValidToken performs a shape check only; FCM registration tokens are opaque.
// Expo tokens are rejected so a misconfigured provider fails loudly.
func (p *FCMProvider) ValidToken(token string) bool {
	if len(token) < 32 || len(token) > 4096 {
		return false
	}
	if strings.ContainsAny(token, " \t\r\n") {
		return false
	}
	return !IsExpoPushToken(token)
}

// Send submits one chunk with SendEach and converts the per-message responses
func (p *FCMProvider) Send(ctx context.Context, msgs []Message) ([]Ticket, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	if p.client == nil {
		return nil, fmt.Errorf("%w: fcm provider has no credentials", ErrProviderRejected)
	}
	if len(msgs) > FCMMaxBatchSize {
		return nil, fmt.Errorf("%w: chunk of %d exceeds %d", ErrProviderRejected, len(msgs), FCMMaxBatchSize)
	}

	batch := make([]*messaging.Message, len(msgs))
	for i, m := range msgs {
		sound := m.Sound
		if sound == "" {
			sound = "default"
		}
		batch[i] = &messaging.Message{
			Token: m.To,
			Notification: &messaging.Notification{
				Title: m.Title,
				Body:  m.Body,
			},
			Data: m.Data,
			Android: &messaging.AndroidConfig{
				Priority: "high",
				Notification: &messaging.AndroidNotification{
					Sound: sound,
				},
			},
			APNS: &messaging.APNSConfig{
				Payload: &messaging.APNSPayload{
					Aps: &messaging.Aps{
						Sound: sound,
					},
				},
			},
		}
	}

	br, err := p.client.SendEach(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("error sending fcm batch: %w", err)
	}

	tickets := make([]Ticket, len(msgs))
	for i := range msgs {
		tickets[i] = Ticket{To: msgs[i].To, Status: TicketError, Message: "missing response"}
		if i >= len(br.Responses) || br.Responses[i] == nil {
			continue
		}
		resp := br.Responses[i]
		if resp.Success {
			tickets[i] = Ticket{To: msgs[i].To, ID: resp.MessageID, Status: TicketOK}
		} else if resp.Error != nil {
			tickets[i].Message = resp.Error.Error()
		}
	}
	return tickets, nil
}
