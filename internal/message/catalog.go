package message

import (
	"errors"
	"fmt"

	"github.com/quocanhngo/habitnudge/internal/engine"
	"github.com/quocanhngo/habitnudge/pkg/notification"
)

// ErrNoTemplate means a decision has no copy in the catalog. This is a
// programming error and must not be confused with a "none" decision.
var ErrNoTemplate = errors.New("no message template")

// Data tags carried in every push payload.
const (
	TagDailyReminder = "daily_reminder"
	TagHabitFollowup = "habit_followup"

	defaultSound = "default"
)

// Content is the visible part of a push notification.
type Content struct {
	Title string
	Body  string
}

func (c Content) valid() bool {
	return c.Title != "" && c.Body != ""
}

var dailyContent = Content{
	Title: "Seu momento com Deus ✨",
	Body:  "Reserve um instante para sua reflexão espiritual de hoje.",
}

var followupContent = map[engine.Category]Content{
	engine.BrokeStreak: {
		Title: "Tá quase virando hábito ✨",
		Body:  "Você vem em uma boa sequência. Bora retomar hoje, sem peso, só mais um passo. 🕯️",
	},
	engine.NoDay3: {
		Title: "Continuo aqui por você 💛",
		Body:  "Que tal separar 3 minutinhos hoje pra se recentrar?",
	},
	engine.NoDay7: {
		Title: "Uma semana passa voando…",
		Body:  "Se quiser, hoje pode ser um recomeço tranquilo. 🕯️",
	},
	engine.NoDayMultipleOf7: {
		Title: "Toda pausa pode virar recomeço ✨",
		Body:  "Se sentir que faz sentido, tire um tempo para se recentrar hoje. 🌱",
	},
}

// Renderer maps decisions to push payloads.
type Renderer struct {
	daily    Content
	followup map[engine.Category]Content
}

// NewRenderer returns a renderer over the built-in catalog.
func NewRenderer() *Renderer {
	return &Renderer{daily: dailyContent, followup: followupContent}
}

// Daily returns the fixed daily reminder copy.
func (r *Renderer) Daily() Content {
	return r.daily
}

// Followup returns the copy for a lapse category.
func (r *Renderer) Followup(c engine.Category) (Content, error) {
	content, ok := r.followup[c]
	if !ok || !content.valid() {
		return Content{}, fmt.Errorf("%w: category %q", ErrNoTemplate, c)
	}
	return content, nil
}

// Render builds the push message for a decision addressed to token.
// A None decision is rejected; callers filter those out before rendering.
func (r *Renderer) Render(d engine.Decision, token string) (notification.Message, error) {
	switch d.Kind {
	case engine.KindDailyReminder:
		return notification.Message{
			To:    token,
			Title: r.daily.Title,
			Body:  r.daily.Body,
			Sound: defaultSound,
			Data:  map[string]string{"type": TagDailyReminder},
		}, nil
	case engine.KindLapse:
		content, err := r.Followup(d.Category)
		if err != nil {
			return notification.Message{}, err
		}
		return notification.Message{
			To:    token,
			Title: content.Title,
			Body:  content.Body,
			Sound: defaultSound,
			Data: map[string]string{
				"type":     TagHabitFollowup,
				"pushType": string(d.Category),
			},
		}, nil
	}
	return notification.Message{}, fmt.Errorf("%w: decision %s", ErrNoTemplate, d.Kind)
}
