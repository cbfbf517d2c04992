// Package notify delivers front-desk notifications: to the service log, to
// connected screens over websocket, or to several sinks at once.
package notify

import (
	"github.com/mehdi-it48/medisync-lite/pkg/interfaces"
	"github.com/mehdi-it48/medisync-lite/pkg/logger"
	"github.com/mehdi-it48/medisync-lite/pkg/monitoring"
	"github.com/mehdi-it48/medisync-lite/pkg/types"
	"github.com/sirupsen/logrus"
)

// LogNotifier writes notifications to the service log
type LogNotifier struct {
	logger *logrus.Entry
}

// NewLogNotifier creates a notifier logging through log
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log.WithComponent("notify")}
}

// Notify implements interfaces.Notifier
func (n *LogNotifier) Notify(kind types.NotificationKind, title, message string) {
	entry := n.logger.WithFields(logrus.Fields{
		"kind":  kind,
		"title": title,
	})
	if kind == types.NotifyError {
		entry.Warn(message)
		return
	}
	entry.Info(message)
}

// Fanout forwards every notification to each of its sinks in order
type Fanout struct {
	sinks   []interfaces.Notifier
	metrics *monitoring.MetricsCollector
}

// NewFanout creates a notifier forwarding to sinks. Nil sinks are skipped.
func NewFanout(metrics *monitoring.MetricsCollector, sinks ...interfaces.Notifier) *Fanout {
	f := &Fanout{metrics: metrics}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Notify implements interfaces.Notifier
func (f *Fanout) Notify(kind types.NotificationKind, title, message string) {
	f.metrics.RecordNotification(string(kind))
	for _, s := range f.sinks {
		s.Notify(kind, title, message)
	}
}
