// Package notify delivers user-visible notifications.
package notify

import "log/slog"

// Notifier shows a short message to the user. isError marks warnings and
// failures.
type Notifier interface {
	Notify(message string, isError bool)
}

// Func adapts a function to Notifier.
type Func func(message string, isError bool)

func (f Func) Notify(message string, isError bool) { f(message, isError) }

// Discard drops every notification.
var Discard Notifier = Func(func(string, bool) {})

// Log writes notifications to logger: errors at Warn, the rest at Info.
func Log(logger *slog.Logger) Notifier {
	return Func(func(message string, isError bool) {
		if isError {
			logger.Warn("notification", slog.String("message", message))
			return
		}
		logger.Info("notification", slog.String("message", message))
	})
}

// Multi fans a notification out to every non-nil notifier.
func Multi(ns ...Notifier) Notifier {
	return Func(func(message string, isError bool) {
		for _, n := range ns {
			if n != nil {
				n.Notify(message, isError)
			}
		}
	})
}
