package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	// DefaultExpoURL is the Expo push send endpoint.
	DefaultExpoURL = "https://exp.host/--/api/v2/push/send"

	// ExpoMaxBatchSize is the number of messages Expo accepts per request.
	ExpoMaxBatchSize = 100
)

// expoDeviceToken is the bare device-id token form expo-server-sdk accepts.
// Unlike a strict UUID it allows any ASCII letter.
var expoDeviceToken = regexp.MustCompile(`(?i)^[a-z\d]{8}-[a-z\d]{4}-[a-z\d]{4}-[a-z\d]{4}-[a-z\d]{12}$`)

// ExpoConfig configures the Expo push provider
type ExpoConfig struct {
	URL         string
	AccessToken string // optional, enables enhanced push security
	Timeout     time.Duration
}

// ExpoProvider sends notifications through the Expo push service
type ExpoProvider struct {
	url         string
	accessToken string
	client      *http.Client
}

// NewExpoProvider creates an Expo provider. The HTTP client timeout is a
// backstop; callers still bound each chunk with a context deadline.
func NewExpoProvider(cfg ExpoConfig) *ExpoProvider {
	if cfg.URL == "" {
		cfg.URL = DefaultExpoURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &ExpoProvider{
		url:         cfg.URL,
		accessToken: cfg.AccessToken,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *ExpoProvider) Name() string { return "expo" }

func (p *ExpoProvider) MaxBatchSize() int { return ExpoMaxBatchSize }

// ValidToken accepts ExponentPushToken[...], ExpoPushToken[...] or a bare device id.
func (p *ExpoProvider) ValidToken(token string) bool {
	return IsExpoPushToken(token)
}

// IsExpoPushToken reports whether token has one of Expo's token shapes.
func IsExpoPushToken(token string) bool {
	if (strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[")) &&
		strings.HasSuffix(token, "]") {
		return true
	}
	return expoDeviceToken.MatchString(token)
}

type expoMessage struct {
	To    string            `json:"to"`
	Title string            `json:"title,omitempty"`
	Body  string            `json:"body,omitempty"`
	Sound string            `json:"sound,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

type expoTicket struct {
	Status  string          `json:"status"`
	ID      string          `json:"id"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

type expoError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type expoResponse struct {
	Data   []expoTicket `json:"data"`
	Errors []expoError  `json:"errors"`
}

// Send posts one chunk to Expo and maps the returned tickets back to tokens
func (p *ExpoProvider) Send(ctx context.Context, msgs []Message) ([]Ticket, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	if len(msgs) > ExpoMaxBatchSize {
		return nil, fmt.Errorf("%w: chunk of %d exceeds %d", ErrProviderRejected, len(msgs), ExpoMaxBatchSize)
	}

	payload := make([]expoMessage, len(msgs))
	for i, m := range msgs {
		payload[i] = expoMessage{To: m.To, Title: m.Title, Body: m.Body, Sound: m.Sound, Data: m.Data}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode expo payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.accessToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("expo request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read expo response: %w", err)
	}

	var out expoResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: status %d", ErrProviderRejected, resp.StatusCode)
		}
		return nil, fmt.Errorf("decode expo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || len(out.Errors) > 0 {
		msg := http.StatusText(resp.StatusCode)
		if len(out.Errors) > 0 {
			msg = out.Errors[0].Code + ": " + out.Errors[0].Message
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrProviderRejected, resp.StatusCode, msg)
	}
	if len(out.Data) != len(msgs) {
		return nil, fmt.Errorf("%w: got %d tickets for %d messages", ErrProviderRejected, len(out.Data), len(msgs))
	}

	tickets := make([]Ticket, len(msgs))
	for i, t := range out.Data {
		tickets[i] = Ticket{To: msgs[i].To, ID: t.ID, Status: TicketStatus(t.Status), Message: t.Message}
		if tickets[i].Status != TicketOK {
			tickets[i].Status = TicketError
		}
	}
	return tickets, nil
}
