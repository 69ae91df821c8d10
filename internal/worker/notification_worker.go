package worker

import (
	"github.com/spec-kit/ticketflow/internal/events"
	"github.com/spec-kit/ticketflow/internal/service"
)

// StartEventSubscribers registers the in-process notification handlers and,
// when configured, the Redis stream sink on the dispatcher.
func StartEventSubscribers(dispatcher events.Dispatcher, notificationService *service.NotificationService, sink *events.RedisStreamSink) {
	if dispatcher == nil {
		return
	}
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	sink.Register(dispatcher)
}
