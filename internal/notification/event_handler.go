package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mediconnect/appointment-management/internal/core/events"
)

// EventHandler turns booking outcomes into notification log entries. Actual
// SMS/email delivery belongs to a separate notification service; this handler
// is the integration point it will hang off.
type EventHandler struct {
	logger *slog.Logger
}

func NewEventHandler(logger *slog.Logger) *EventHandler {
	return &EventHandler{logger: logger}
}

func (h *EventHandler) HandlePaymentCompleted(ctx context.Context, event events.Event) error {
	completed, ok := event.(*events.PaymentCompletedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment completed handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentCompletedEvent, got %T", event)
	}

	h.logger.Info("notify: appointment confirmed",
		"appointment_id", completed.AppointmentID,
		"mpesa_receipt", completed.MpesaReceipt,
		"amount", completed.Amount,
		"event_id", completed.EventID())
	return nil
}

func (h *EventHandler) HandlePaymentFailed(ctx context.Context, event events.Event) error {
	failed, ok := event.(*events.PaymentFailedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment failed handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentFailedEvent, got %T", event)
	}

	h.logger.Info("notify: appointment payment failed",
		"appointment_id", failed.AppointmentID,
		"result_code", failed.ResultCode,
		"result_desc", failed.ResultDesc,
		"event_id", failed.EventID())
	return nil
}

func (h *EventHandler) HandleReservationExpired(ctx context.Context, event events.Event) error {
	expired, ok := event.(*events.ReservationExpiredEvent)
	if !ok {
		h.logger.Error("invalid event type for reservation expired handler", "event_type", event.EventType())
		return fmt.Errorf("expected ReservationExpiredEvent, got %T", event)
	}

	h.logger.Info("notify: reservations expired unpaid",
		"appointment_ids", expired.AppointmentIDs,
		"event_id", expired.EventID())
	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentCompleted, h.HandlePaymentCompleted)
	eventBus.Subscribe(events.EventTypePaymentFailed, h.HandlePaymentFailed)
	eventBus.Subscribe(events.EventTypeReservationExpired, h.HandleReservationExpired)

	h.logger.Info("notification event handlers registered",
		"handlers", []string{
			events.EventTypePaymentCompleted,
			events.EventTypePaymentFailed,
			events.EventTypeReservationExpired,
		})
}
