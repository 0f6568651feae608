package notification

import (
	"context"
	"errors"
	"strings"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFCM struct {
	got  []*messaging.Message
	resp *messaging.BatchResponse
	err  error
}

func (s *stubFCM) SendEach(_ context.Context, msgs []*messaging.Message) (*messaging.BatchResponse, error) {
	s.got = msgs
	return s.resp, s.err
}

func TestFCMProvider_ValidToken(t *testing.T) {
	p := &FCMProvider{}
	assert.True(t, p.ValidToken(strings.Repeat("a", 152)))
	assert.False(t, p.ValidToken("short"))
	assert.False(t, p.ValidToken(strings.Repeat("a", 40)+" "+strings.Repeat("b", 40)))
	assert.False(t, p.ValidToken("ExponentPushToken[xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx]"))
}

func TestFCMProvider_SendMapsResponses(t *testing.T) {
	stub := &stubFCM{resp: &messaging.BatchResponse{
		SuccessCount: 1,
		FailureCount: 1,
		Responses: []*messaging.SendResponse{
			{Success: true, MessageID: "projects/p/messages/1"},
			{Success: false, Error: errors.New("registration-token-not-registered")},
		},
	}}
	p := &FCMProvider{client: stub}

	tickets, err := p.Send(context.Background(), []Message{
		{To: "tok-a", Title: "T", Body: "B", Data: map[string]string{"type": "habit_followup", "pushType": "NO_DAY_3"}},
		{To: "tok-b", Title: "T", Body: "B"},
	})
	require.NoError(t, err)

	require.Len(t, stub.got, 2)
	assert.Equal(t, "tok-a", stub.got[0].Token)
	assert.Equal(t, "NO_DAY_3", stub.got[0].Data["pushType"])
	assert.Equal(t, "default", stub.got[0].APNS.Payload.Aps.Sound)

	assert.Equal(t, TicketOK, tickets[0].Status)
	assert.Equal(t, "projects/p/messages/1", tickets[0].ID)
	assert.Equal(t, TicketError, tickets[1].Status)
	assert.Contains(t, tickets[1].Message, "not-registered")
}

func TestFCMProvider_SendFailureFailsChunk(t *testing.T) {
	p := &FCMProvider{client: &stubFCM{err: errors.New("unavailable")}}
	_, err := p.Send(context.Background(), []Message{{To: "tok"}})
	assert.Error(t, err)
}

func TestFCMProvider_ZeroValueCannotSend(t *testing.T) {
	p := &FCMProvider{}
	_, err := p.Send(context.Background(), []Message{{To: strings.Repeat("a", 152), Title: "t"}})
	assert.ErrorIs(t, err, ErrProviderRejected)
}
