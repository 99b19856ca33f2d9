package postgres

import (
	"time"

	appointmentdm "github.com/mediconnect/appointment-management/internal/core/datamodel/appointment"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AppointmentRepository implements the appointment.Repository interface using
// GORM. Every state transition is a conditional write guarded by the current
// status, so concurrent bookers and the payment callback cannot clobber each
// other.
type AppointmentRepository struct {
	db *gorm.DB
}

// NewAppointmentRepository creates a new appointment repository
func NewAppointmentRepository(db *gorm.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// Create saves a new appointment row
func (r *AppointmentRepository) Create(appt *appointmentdm.Appointment) error {
	return r.db.Create(appt).Error
}

// FindPendingForClient returns the client's own pending reservation for the
// exact doctor/slot pair, or nil when none exists.
func (r *AppointmentRepository) FindPendingForClient(clientID, doctorID int64, date time.Time) (*appointmentdm.Appointment, error) {
	var appt appointmentdm.Appointment
	err := r.db.Where("client_id = ? AND doctor_id = ? AND appointment_date = ? AND status = ?",
		clientID, doctorID, date, appointmentdm.StatusPendingPayment).
		First(&appt).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &appt, nil
}

// RefreshPending restarts the payment window on a pending reservation. It
// reports false when the row has meanwhile left PendingPayment, which means
// the caller must re-run the conflict check.
func (r *AppointmentRepository) RefreshPending(id int64) (bool, error) {
	res := r.db.Model(&appointmentdm.Appointment{}).
		Where("id = ? AND status = ?", id, appointmentdm.StatusPendingPayment).
		Updates(map[string]interface{}{
			"created_at": time.Now(),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// HasBlockingAppointment reports whether the doctor's slot is already taken.
// Any live row blocks, including another client's pending reservation; only
// Expired rows free the slot. The caller resolves the client's own pending
// row through FindPendingForClient before asking.
func (r *AppointmentRepository) HasBlockingAppointment(doctorID int64, date time.Time) (bool, error) {
	var count int64
	err := r.db.Model(&appointmentdm.Appointment{}).
		Where("doctor_id = ? AND appointment_date = ? AND status <> ?",
			doctorID, date, appointmentdm.StatusExpired).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// DeletePending removes a reservation that is still awaiting payment. The
// status guard keeps a compensating delete from erasing a row the callback
// already decided.
func (r *AppointmentRepository) DeletePending(id int64) (bool, error) {
	res := r.db.Where("id = ? AND status = ?", id, appointmentdm.StatusPendingPayment).
		Delete(&appointmentdm.Appointment{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ExpirePending marks reservations that outlived the payment window. The
// RETURNING clause makes the reported ids exactly the rows this statement
// flipped, so a row a concurrent callback just booked is never listed.
func (r *AppointmentRepository) ExpirePending(olderThan time.Time) ([]int64, error) {
	var expired []appointmentdm.Appointment
	res := r.db.Model(&expired).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "id"}}}).
		Where("status = ? AND created_at < ?", appointmentdm.StatusPendingPayment, olderThan).
		Updates(map[string]interface{}{
			"status":     appointmentdm.StatusExpired,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if len(expired) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(expired))
	for i := range expired {
		ids = append(ids, expired[i].ID)
	}
	return ids, nil
}

// ListByClient retrieves the client's appointments, newest slot first
func (r *AppointmentRepository) ListByClient(clientID int64) ([]*appointmentdm.Appointment, error) {
	var appts []*appointmentdm.Appointment
	err := r.db.Where("client_id = ?", clientID).
		Order("appointment_date DESC").
		Find(&appts).Error
	return appts, err
}

// ListByDoctor retrieves the doctor's appointments, newest slot first
func (r *AppointmentRepository) ListByDoctor(doctorID int64) ([]*appointmentdm.Appointment, error) {
	var appts []*appointmentdm.Appointment
	err := r.db.Where("doctor_id = ?", doctorID).
		Order("appointment_date DESC").
		Find(&appts).Error
	return appts, err
}
