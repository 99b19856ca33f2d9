package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentCompleted   = "payment.completed"
	EventTypePaymentFailed      = "payment.failed"
	EventTypeReservationExpired = "reservation.expired"
)

type PaymentCompletedEvent struct {
	BaseEvent
	AppointmentID int64  `json:"appointment_id"`
	MpesaReceipt  string `json:"mpesa_receipt"`
	Amount        int64  `json:"amount"`
}

func NewPaymentCompletedEvent(appointmentID int64, receipt string, amount int64) *PaymentCompletedEvent {
	return &PaymentCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentCompleted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"appointment_id": appointmentID,
				"mpesa_receipt":  receipt,
				"amount":         amount,
			},
		},
		AppointmentID: appointmentID,
		MpesaReceipt:  receipt,
		Amount:        amount,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	AppointmentID int64  `json:"appointment_id"`
	ResultCode    int    `json:"result_code"`
	ResultDesc    string `json:"result_desc"`
}

func NewPaymentFailedEvent(appointmentID int64, resultCode int, resultDesc string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"appointment_id": appointmentID,
				"result_code":    resultCode,
				"result_desc":    resultDesc,
			},
		},
		AppointmentID: appointmentID,
		ResultCode:    resultCode,
		ResultDesc:    resultDesc,
	}
}

type ReservationExpiredEvent struct {
	BaseEvent
	AppointmentIDs []int64 `json:"appointment_ids"`
}

func NewReservationExpiredEvent(appointmentIDs []int64) *ReservationExpiredEvent {
	return &ReservationExpiredEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeReservationExpired,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"appointment_ids": appointmentIDs,
			},
		},
		AppointmentIDs: appointmentIDs,
	}
}
