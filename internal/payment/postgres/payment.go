package postgres

import (
	"time"

	appointmentdm "github.com/mediconnect/appointment-management/internal/core/datamodel/appointment"
	paymentdm "github.com/mediconnect/appointment-management/internal/core/datamodel/payment"
	paymentpkg "github.com/mediconnect/appointment-management/internal/payment"
	"gorm.io/gorm"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) paymentpkg.RepositoryAPI {
	return &PaymentRepository{
		db: db,
	}
}

// ApplySuccess books the appointment and records the receipt in one
// transaction. The status guard makes replayed callbacks a no-op, and the
// slot guard refuses to book when another reservation for the same doctor
// and date already won; the losing row stays pending for the sweeper.
func (r *PaymentRepository) ApplySuccess(record *paymentdm.MpesaPayment) (bool, error) {
	applied := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var appt appointmentdm.Appointment
		err := tx.Where("id = ? AND status = ?", record.AppointmentID, appointmentdm.StatusPendingPayment).
			First(&appt).Error
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		var taken int64
		err = tx.Model(&appointmentdm.Appointment{}).
			Where("doctor_id = ? AND appointment_date = ? AND status = ? AND id <> ?",
				appt.DoctorID, appt.AppointmentDate, appointmentdm.StatusBooked, appt.ID).
			Count(&taken).Error
		if err != nil {
			return err
		}
		if taken > 0 {
			return nil
		}

		res := tx.Model(&appointmentdm.Appointment{}).
			Where("id = ? AND status = ?", record.AppointmentID, appointmentdm.StatusPendingPayment).
			Updates(map[string]interface{}{
				"status":         appointmentdm.StatusBooked,
				"payment_status": appointmentdm.PaymentStatusCompleted,
				"transaction_id": record.MpesaReceipt,
				"updated_at":     time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		if err := tx.Create(record).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// ApplyFailure marks the appointment Failed, keeping the row so the slot
// stays consumed and the outcome stays visible.
func (r *PaymentRepository) ApplyFailure(appointmentID int64) (bool, error) {
	res := r.db.Model(&appointmentdm.Appointment{}).
		Where("id = ? AND status = ?", appointmentID, appointmentdm.StatusPendingPayment).
		Updates(map[string]interface{}{
			"status":         appointmentdm.StatusFailed,
			"payment_status": appointmentdm.PaymentStatusFailed,
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
