package logger

import "log/slog"

// Error records err under "error". A nil error yields an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the subject user under "user_id".
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

// RequestID records the request identifier under "request_id".
func RequestID(id string) slog.Attr {
	return slog.String("request_id", id)
}

// Provider records which payment rail a message concerns.
func Provider(name string) slog.Attr {
	return slog.String("provider", name)
}

// EventType records the provider or engine event type.
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// EventID records the provider event identifier.
func EventID(id string) slog.Attr {
	return slog.String("event_id", id)
}

// ProductID records the purchased product or price.
func ProductID(id string) slog.Attr {
	return slog.String("product_id", id)
}

// CustomerID records a provider customer identifier.
func CustomerID(id string) slog.Attr {
	return slog.String("customer_id", id)
}

// SubscriptionID records a provider subscription identifier.
func SubscriptionID(id string) slog.Attr {
	return slog.String("subscription_id", id)
}

// Step records the step of a multi-step procedure.
func Step(name string) slog.Attr {
	return slog.String("step", name)
}

// Component records the component name.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// TaskID records an inbox task identifier.
func TaskID(id any) slog.Attr {
	return slog.Any("task_id", id)
}

// RetryCount records how many attempts were already made.
func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}
