package types

import "time"

// NotificationKind is the severity of a user-facing notification
type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
)

// Notification is a toast-style message delivered to front-desk screens
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
	SentAt  time.Time        `json:"sent_at"`
}
