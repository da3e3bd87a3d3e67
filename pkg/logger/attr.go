package logger

import (
	"log/slog"
	"strconv"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// ReferenceID records the billed entity identifier under the key "reference_id".
// If id is empty, it returns an empty Attr.
func ReferenceID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("reference_id", id)
}

// SubscriptionID records the local subscription identifier under the key
// "subscription_id". If id is nil, it returns an empty Attr.
func SubscriptionID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("subscription_id", id)
}

// Plan records the plan code under the key "plan".
func Plan(code string) slog.Attr {
	return slog.String("plan", code)
}

// RequestID records the request identifier under the key "request_id".
// If id is nil, it returns an empty Attr.
func RequestID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("request_id", id)
}

// EventID records the webhook event identifier under the key "event_id".
func EventID(id string) slog.Attr {
	return slog.String("event_id", id)
}

// EventType records the webhook event type under the key "event_type".
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}
