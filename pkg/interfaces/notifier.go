package interfaces

import "github.com/mehdi-it48/medisync-lite/pkg/types"

// Notifier delivers user-facing messages. Delivery is fire-and-forget.
type Notifier interface {
	Notify(kind types.NotificationKind, title, message string)
}
