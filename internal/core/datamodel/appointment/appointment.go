package appointment

import (
	"time"
)

// Status is the booking state machine. A row leaves StatusPendingPayment
// exactly once; every transition out of it is a conditional write guarded on
// the current status so racing writers observe zero affected rows.
const (
	StatusPendingPayment = "PendingPayment"
	StatusBooked         = "Booked"
	StatusFailed         = "Failed"
	StatusExpired        = "Expired"
)

const (
	PaymentStatusCompleted = "Completed"
	PaymentStatusFailed    = "Failed"
)

type Appointment struct {
	ID              int64     `json:"id" gorm:"primaryKey"`
	ClientID        int64     `json:"client_id" gorm:"column:client_id;not null;index"`
	DoctorID        int64     `json:"doctor_id" gorm:"column:doctor_id;not null;index:idx_doctor_slot"`
	AppointmentDate time.Time `json:"appointment_date" gorm:"column:appointment_date;not null;index:idx_doctor_slot"`
	Amount          int64     `json:"amount" gorm:"column:amount;not null"`
	PhoneNumber     string    `json:"phone_number" gorm:"column:phone_number;not null"`
	Status          string    `json:"status" gorm:"column:status;default:PendingPayment"`
	PaymentStatus   *string   `json:"payment_status,omitempty" gorm:"column:payment_status"`
	TransactionID   *string   `json:"transaction_id,omitempty" gorm:"column:transaction_id"`
	CreatedAt       time.Time `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (Appointment) TableName() string {
	return "appointments"
}

// IsPending reports whether the row still holds a reclaimable reservation.
func (a *Appointment) IsPending() bool {
	return a.Status == StatusPendingPayment
}
