// Package notifier delivers completion events to external sinks. Delivery
// is best effort: failures are logged and never reach the detection loop.
package notifier

import (
	"context"
	"fmt"

	"github.com/julianstephens/repcam/internal/config"
	"github.com/julianstephens/repcam/internal/constants"
	"github.com/julianstephens/repcam/internal/models"
)

// Sink receives completion events.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev models.CompletionEvent) error
}

// Message renders ev as one line of notification text.
func Message(ev models.CompletionEvent) string {
	name := ev.HabitName
	if name == "" {
		name = "Habit"
	}
	if ev.GoalReached {
		days := "days"
		if ev.Streak == 1 {
			days = "day"
		}
		return fmt.Sprintf("%s: daily goal reached (%d/%d). Streak: %d %s", name, ev.Count, ev.Goal, ev.Streak, days)
	}
	return fmt.Sprintf("%s: rep %d of %d done", name, ev.Count, ev.Goal)
}

// FromSettings builds the dispatcher for the configured sinks. It has no
// sinks when notifications are disabled.
func FromSettings(s models.Settings, cfg config.Config) *Dispatcher {
	s = cfg.ApplySettings(s)
	d := NewDispatcher(constants.SinkTimeout)
	if !s.NotificationsEnabled {
		return d
	}
	if s.TrayEnabled {
		d.Add(NewTray())
	}
	if s.MQTTBroker != "" {
		username, password := cfg.MQTTCredentials()
		d.Add(NewMQTTSink(MQTTOptions{
			Broker:   s.MQTTBroker,
			ClientID: s.MQTTClientID,
			Topic:    s.MQTTTopic,
			Username: username,
			Password: password,
		}))
	}
	return d
}
