package service

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/ticketflow/internal/config"
	"github.com/spec-kit/ticketflow/internal/events"
)

func TestNotificationService_LogsEveryTicketEvent(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	dispatcher := events.NewInMemoryDispatcher()
	notifier := NewNotificationService(dispatcher, zap.New(core), config.NotificationConfig{WebhookURL: "http://hooks.local"})
	notifier.RegisterHandlers()

	for _, eventType := range events.AllEventTypes {
		if err := dispatcher.Publish(context.Background(), events.Event{Type: eventType, TicketID: "ABCD1234"}); err != nil {
			t.Fatalf("Publish(%s): %v", eventType, err)
		}
	}

	if got := logs.FilterMessage("webhook notification").Len(); got != len(events.AllEventTypes)-1 {
		t.Fatalf("webhook notifications = %d, want %d", got, len(events.AllEventTypes)-1)
	}
	if got := logs.FilterField(zap.String("ticket_id", "ABCD1234")).Len(); got == 0 {
		t.Fatalf("expected ticket_id on log entries")
	}
}
