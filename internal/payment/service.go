package payment

import (
	"context"
	"log/slog"

	paymentdm "github.com/mediconnect/appointment-management/internal/core/datamodel/payment"
	"github.com/mediconnect/appointment-management/internal/core/events"
	"github.com/mediconnect/appointment-management/internal/observability/metrics"
)

// RepositoryAPI applies a callback verdict to the reservation it references.
// Both writes are guarded by the PendingPayment status; applied reports
// whether this callback was the one that decided the row.
type RepositoryAPI interface {
	ApplySuccess(record *paymentdm.MpesaPayment) (applied bool, err error)
	ApplyFailure(appointmentID int64) (applied bool, err error)
}

// Service settles reservations from gateway callbacks. Replays and callbacks
// for unknown or already-decided reservations are acknowledged but change
// nothing.
type Service struct {
	repo     RepositoryAPI
	eventBus *events.EventBus
	metrics  *metrics.BookingMetrics
	logger   *slog.Logger
}

func NewService(repo RepositoryAPI, eventBus *events.EventBus, m *metrics.BookingMetrics, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		eventBus: eventBus,
		metrics:  m,
		logger:   logger,
	}
}

// ProcessCallback applies the gateway verdict. It is safe to call any number
// of times with the same payload; only the first delivery mutates state.
func (s *Service) ProcessCallback(cb *STKCallback) error {
	appointmentID, err := cb.AppointmentID()
	if err != nil {
		s.logger.Warn("callback carries unusable account reference",
			"account_reference", cb.AccountReference,
			"checkout_request_id", cb.CheckoutRequestID)
		s.metrics.ObserveCallback("malformed")
		return err
	}

	if !cb.Succeeded() {
		return s.applyFailure(appointmentID, cb)
	}
	return s.applySuccess(appointmentID, cb)
}

func (s *Service) applySuccess(appointmentID int64, cb *STKCallback) error {
	record := &paymentdm.MpesaPayment{
		AppointmentID:     appointmentID,
		CheckoutRequestID: cb.CheckoutRequestID,
		Amount:            int64(cb.Amount),
		MpesaReceipt:      cb.MpesaReceiptNumber,
		TransactionDate:   cb.TransactionDate.String(),
	}

	applied, err := s.repo.ApplySuccess(record)
	if err != nil {
		s.logger.Error("failed to settle successful payment",
			"error", err,
			"appointment_id", appointmentID,
			"checkout_request_id", cb.CheckoutRequestID)
		s.metrics.ObserveCallback("error")
		return err
	}
	if !applied {
		s.logger.Info("success callback ignored: reservation not pending",
			"appointment_id", appointmentID,
			"checkout_request_id", cb.CheckoutRequestID)
		s.metrics.ObserveCallback("duplicate")
		return nil
	}

	s.logger.Info("payment completed, appointment booked",
		"appointment_id", appointmentID,
		"mpesa_receipt", cb.MpesaReceiptNumber,
		"amount", cb.Amount)
	s.metrics.ObserveCallback("completed")

	event := events.NewPaymentCompletedEvent(appointmentID, cb.MpesaReceiptNumber, int64(cb.Amount))
	s.eventBus.Publish(context.Background(), event)
	return nil
}

func (s *Service) applyFailure(appointmentID int64, cb *STKCallback) error {
	applied, err := s.repo.ApplyFailure(appointmentID)
	if err != nil {
		s.logger.Error("failed to settle failed payment",
			"error", err,
			"appointment_id", appointmentID,
			"result_code", cb.ResultCode)
		s.metrics.ObserveCallback("error")
		return err
	}
	if !applied {
		s.logger.Info("failure callback ignored: reservation not pending",
			"appointment_id", appointmentID,
			"result_code", cb.ResultCode)
		s.metrics.ObserveCallback("duplicate")
		return nil
	}

	s.logger.Info("payment failed, appointment marked failed",
		"appointment_id", appointmentID,
		"result_code", cb.ResultCode,
		"result_desc", cb.ResultDesc)
	s.metrics.ObserveCallback("failed")

	event := events.NewPaymentFailedEvent(appointmentID, cb.ResultCode, cb.ResultDesc)
	s.eventBus.Publish(context.Background(), event)
	return nil
}
