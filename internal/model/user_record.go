package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedRecord is returned when a store value cannot be decoded into a UserRecord.
var ErrMalformedRecord = errors.New("malformed user record")

// UserRecord is one row of the per-user snapshot read at the start of a run.
type UserRecord struct {
	ID                   string
	PushToken            string
	NotificationsEnabled bool
	ReminderTime         string
	CompletedDates       []string
}

// userValue mirrors the JSON document the mobile app stores per user.
type userValue struct {
	PushToken            *string  `json:"pushToken"`
	NotificationsEnabled *bool    `json:"notificationsEnabled"`
	ReminderTime         *string  `json:"reminderTime"`
	NotificationTime     *string  `json:"notificationTime"` // legacy name of reminderTime
	CompletedDates       []string `json:"completedDates"`
}

// DecodeUserRecord builds a UserRecord from a store key and its JSON value.
// A null or empty value decodes to a record with defaults only.
func DecodeUserRecord(key string, raw []byte) (UserRecord, error) {
	rec := UserRecord{ID: key, NotificationsEnabled: true}
	if len(raw) == 0 || string(raw) == "null" {
		return rec, nil
	}

	var v userValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return UserRecord{}, fmt.Errorf("%w: key %s: %v", ErrMalformedRecord, key, err)
	}

	if v.PushToken != nil {
		rec.PushToken = *v.PushToken
	}
	if v.NotificationsEnabled != nil {
		rec.NotificationsEnabled = *v.NotificationsEnabled
	}
	switch {
	case v.ReminderTime != nil && *v.ReminderTime != "":
		rec.ReminderTime = *v.ReminderTime
	case v.NotificationTime != nil:
		rec.ReminderTime = *v.NotificationTime
	}
	rec.CompletedDates = v.CompletedDates
	return rec, nil
}

// EncodeValue renders the record back into the app's JSON document shape.
// Only the seeder writes records; the worker never does.
func (r UserRecord) EncodeValue() ([]byte, error) {
	v := userValue{
		NotificationsEnabled: &r.NotificationsEnabled,
		CompletedDates:       r.CompletedDates,
	}
	if r.PushToken != "" {
		v.PushToken = &r.PushToken
	}
	if r.ReminderTime != "" {
		v.ReminderTime = &r.ReminderTime
	}
	return json.Marshal(v)
}
