package postgres

import (
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	appointmentdm "github.com/mediconnect/appointment-management/internal/core/datamodel/appointment"
)

func TestAppointmentRepository(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Appointment Repository Suite")
}

// AppointmentSQLite mirrors the appointments table without the now() column
// defaults, which SQLite's DDL does not accept
type AppointmentSQLite struct {
	ID              int64     `gorm:"primaryKey"`
	ClientID        int64     `gorm:"column:client_id;not null;index"`
	DoctorID        int64     `gorm:"column:doctor_id;not null;index:idx_doctor_slot"`
	AppointmentDate time.Time `gorm:"column:appointment_date;not null;index:idx_doctor_slot"`
	Amount          int64     `gorm:"column:amount;not null"`
	PhoneNumber     string    `gorm:"column:phone_number;not null"`
	Status          string    `gorm:"column:status;default:PendingPayment"`
	PaymentStatus   *string   `gorm:"column:payment_status"`
	TransactionID   *string   `gorm:"column:transaction_id"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

func (AppointmentSQLite) TableName() string {
	return "appointments"
}

var _ = ginkgo.Describe("AppointmentRepository", func() {
	var (
		db   *gorm.DB
		repo *AppointmentRepository
		slot time.Time
	)

	newPending := func(clientID, doctorID int64, createdAt time.Time) *appointmentdm.Appointment {
		appt := &appointmentdm.Appointment{
			ClientID:        clientID,
			DoctorID:        doctorID,
			AppointmentDate: slot,
			Amount:          1500,
			PhoneNumber:     "254712345678",
			Status:          appointmentdm.StatusPendingPayment,
			CreatedAt:       createdAt,
			UpdatedAt:       createdAt,
		}
		gomega.Expect(repo.Create(appt)).To(gomega.Succeed())
		return appt
	}

	ginkgo.BeforeEach(func() {
		// Use in-memory SQLite for testing
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			NowFunc: func() time.Time {
				return time.Now().UTC()
			},
		})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		err = db.AutoMigrate(&AppointmentSQLite{})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		repo = NewAppointmentRepository(db)
		slot = time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC)
	})

	ginkgo.Describe("FindPendingForClient", func() {
		ginkgo.It("should find the client's own pending reservation", func() {
			appt := newPending(7, 42, time.Now().UTC())

			found, err := repo.FindPendingForClient(7, 42, slot)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(found).ToNot(gomega.BeNil())
			gomega.Expect(found.ID).To(gomega.Equal(appt.ID))
		})

		ginkgo.It("should return nil when no reservation exists", func() {
			found, err := repo.FindPendingForClient(7, 42, slot)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(found).To(gomega.BeNil())
		})

		ginkgo.It("should not match another client's reservation", func() {
			newPending(3, 42, time.Now().UTC())

			found, err := repo.FindPendingForClient(7, 42, slot)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(found).To(gomega.BeNil())
		})
	})

	ginkgo.Describe("RefreshPending", func() {
		ginkgo.It("should restart the window on a pending reservation", func() {
			stale := time.Now().UTC().Add(-20 * time.Minute)
			appt := newPending(7, 42, stale)

			refreshed, err := repo.RefreshPending(appt.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(refreshed).To(gomega.BeTrue())

			var reloaded appointmentdm.Appointment
			gomega.Expect(db.First(&reloaded, appt.ID).Error).ToNot(gomega.HaveOccurred())
			gomega.Expect(reloaded.CreatedAt.After(stale)).To(gomega.BeTrue())
		})

		ginkgo.It("should report false once the reservation is decided", func() {
			appt := newPending(7, 42, time.Now().UTC())
			gomega.Expect(db.Model(appt).Update("status", appointmentdm.StatusBooked).Error).ToNot(gomega.HaveOccurred())

			refreshed, err := repo.RefreshPending(appt.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(refreshed).To(gomega.BeFalse())
		})
	})

	ginkgo.Describe("HasBlockingAppointment", func() {
		ginkgo.It("should block on a booked slot", func() {
			appt := newPending(7, 42, time.Now().UTC())
			gomega.Expect(db.Model(appt).Update("status", appointmentdm.StatusBooked).Error).ToNot(gomega.HaveOccurred())

			blocked, err := repo.HasBlockingAppointment(42, slot)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(blocked).To(gomega.BeTrue())
		})

		ginkgo.It("should block on a failed payment", func() {
			appt := newPending(7, 42, time.Now().UTC())
			gomega.Expect(db.Model(appt).Update("status", appointmentdm.StatusFailed).Error).ToNot(gomega.HaveOccurred())

			blocked, err := repo.HasBlockingAppointment(42, slot)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(blocked).To(gomega.BeTrue())
		})

		ginkgo.It("should block on another client's pending reservation", func() {
			newPending(7, 42, time.Now().UTC())

			blocked, err := repo.HasBlockingAppointment(42, slot)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(blocked).To(gomega.BeTrue())
		})

		ginkgo.It("should not block on an expired reservation", func() {
			appt := newPending(7, 42, time.Now().UTC())
			gomega.Expect(db.Model(appt).Update("status", appointmentdm.StatusExpired).Error).ToNot(gomega.HaveOccurred())

			blocked, err := repo.HasBlockingAppointment(42, slot)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(blocked).To(gomega.BeFalse())
		})

		ginkgo.It("should not block a different slot of the same doctor", func() {
			appt := newPending(7, 42, time.Now().UTC())
			gomega.Expect(db.Model(appt).Update("status", appointmentdm.StatusBooked).Error).ToNot(gomega.HaveOccurred())

			blocked, err := repo.HasBlockingAppointment(42, slot.Add(time.Hour))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(blocked).To(gomega.BeFalse())
		})
	})

	ginkgo.Describe("DeletePending", func() {
		ginkgo.It("should delete a pending reservation", func() {
			appt := newPending(7, 42, time.Now().UTC())

			deleted, err := repo.DeletePending(appt.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(deleted).To(gomega.BeTrue())

			var count int64
			db.Model(&appointmentdm.Appointment{}).Count(&count)
			gomega.Expect(count).To(gomega.BeZero())
		})

		ginkgo.It("should refuse to delete a decided reservation", func() {
			appt := newPending(7, 42, time.Now().UTC())
			gomega.Expect(db.Model(appt).Update("status", appointmentdm.StatusBooked).Error).ToNot(gomega.HaveOccurred())

			deleted, err := repo.DeletePending(appt.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(deleted).To(gomega.BeFalse())

			var count int64
			db.Model(&appointmentdm.Appointment{}).Count(&count)
			gomega.Expect(count).To(gomega.Equal(int64(1)))
		})
	})

	ginkgo.Describe("ExpirePending", func() {
		ginkgo.It("should expire reservations older than the cutoff", func() {
			old := newPending(7, 42, time.Now().UTC().Add(-20*time.Minute))
			fresh := newPending(8, 42, time.Now().UTC())

			ids, err := repo.ExpirePending(time.Now().UTC().Add(-15 * time.Minute))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(ids).To(gomega.ConsistOf(old.ID))

			var expired appointmentdm.Appointment
			gomega.Expect(db.First(&expired, old.ID).Error).ToNot(gomega.HaveOccurred())
			gomega.Expect(expired.Status).To(gomega.Equal(appointmentdm.StatusExpired))

			var untouched appointmentdm.Appointment
			gomega.Expect(db.First(&untouched, fresh.ID).Error).ToNot(gomega.HaveOccurred())
			gomega.Expect(untouched.Status).To(gomega.Equal(appointmentdm.StatusPendingPayment))
		})

		ginkgo.It("should leave decided rows alone regardless of age", func() {
			appt := newPending(7, 42, time.Now().UTC().Add(-20*time.Minute))
			gomega.Expect(db.Model(appt).Update("status", appointmentdm.StatusBooked).Error).ToNot(gomega.HaveOccurred())

			ids, err := repo.ExpirePending(time.Now().UTC().Add(-15 * time.Minute))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(ids).To(gomega.BeEmpty())
		})

		ginkgo.It("should report only the rows it actually flipped", func() {
			overdue := newPending(7, 42, time.Now().UTC().Add(-20*time.Minute))
			won := newPending(8, 43, time.Now().UTC().Add(-20*time.Minute))
			gomega.Expect(db.Model(won).Update("status", appointmentdm.StatusBooked).Error).ToNot(gomega.HaveOccurred())

			ids, err := repo.ExpirePending(time.Now().UTC().Add(-15 * time.Minute))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(ids).To(gomega.ConsistOf(overdue.ID))

			var reloaded appointmentdm.Appointment
			gomega.Expect(db.First(&reloaded, won.ID).Error).ToNot(gomega.HaveOccurred())
			gomega.Expect(reloaded.Status).To(gomega.Equal(appointmentdm.StatusBooked))
		})

		ginkgo.It("should return nothing when no reservation is overdue", func() {
			newPending(7, 42, time.Now().UTC())

			ids, err := repo.ExpirePending(time.Now().UTC().Add(-15 * time.Minute))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(ids).To(gomega.BeEmpty())
		})
	})

	ginkgo.Describe("ListByClient", func() {
		ginkgo.It("should return rows newest slot first", func() {
			early := newPending(7, 42, time.Now().UTC())

			later := &appointmentdm.Appointment{
				ClientID:        7,
				DoctorID:        43,
				AppointmentDate: slot.Add(2 * time.Hour),
				Amount:          2000,
				PhoneNumber:     "254712345678",
				Status:          appointmentdm.StatusPendingPayment,
				CreatedAt:       time.Now().UTC(),
				UpdatedAt:       time.Now().UTC(),
			}
			gomega.Expect(repo.Create(later)).To(gomega.Succeed())

			appts, err := repo.ListByClient(7)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(appts).To(gomega.HaveLen(2))
			gomega.Expect(appts[0].ID).To(gomega.Equal(later.ID))
			gomega.Expect(appts[1].ID).To(gomega.Equal(early.ID))
		})
	})
})
