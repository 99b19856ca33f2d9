package payment

import (
	"time"
)

// MpesaPayment is the append-only record of a gateway callback that carried a
// receipt. One row per completed charge; never updated after insert.
type MpesaPayment struct {
	ID                int64     `json:"id" gorm:"primaryKey"`
	AppointmentID     int64     `json:"appointment_id" gorm:"column:appointment_id;not null;index"`
	CheckoutRequestID string    `json:"checkout_request_id" gorm:"column:checkout_request_id;not null"`
	Amount            int64     `json:"amount" gorm:"column:amount;not null"`
	MpesaReceipt      string    `json:"mpesa_receipt" gorm:"column:mpesa_receipt;not null"`
	TransactionDate   string    `json:"transaction_date" gorm:"column:transaction_date"`
	CreatedAt         time.Time `json:"created_at" gorm:"column:created_at;default:now()"`
}

func (MpesaPayment) TableName() string {
	return "mpesa_payments"
}
