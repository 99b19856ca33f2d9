package appointment_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	apperrors "github.com/mediconnect/appointment-management/internal"
	"github.com/mediconnect/appointment-management/internal/appointment"
	appointmentdm "github.com/mediconnect/appointment-management/internal/core/datamodel/appointment"
	directorydm "github.com/mediconnect/appointment-management/internal/core/datamodel/directory"
	"github.com/mediconnect/appointment-management/internal/mpesa"
	"github.com/mediconnect/appointment-management/internal/observability/metrics"
)

// Mock repository for testing
type mockAppointmentRepository struct {
	appointments map[int64]*appointmentdm.Appointment
	nextID       int64

	findError    error
	createError  error
	refreshError error
	deleteError  error
	listError    error

	refreshResult bool
	deleteCalls   int
}

func newMockAppointmentRepository() *mockAppointmentRepository {
	return &mockAppointmentRepository{
		appointments:  make(map[int64]*appointmentdm.Appointment),
		nextID:        1,
		refreshResult: true,
	}
}

func (m *mockAppointmentRepository) FindPendingForClient(clientID, doctorID int64, date time.Time) (*appointmentdm.Appointment, error) {
	if m.findError != nil {
		return nil, m.findError
	}
	for _, appt := range m.appointments {
		if appt.ClientID == clientID && appt.DoctorID == doctorID &&
			appt.AppointmentDate.Equal(date) && appt.Status == appointmentdm.StatusPendingPayment {
			return appt, nil
		}
	}
	return nil, nil
}

func (m *mockAppointmentRepository) RefreshPending(id int64) (bool, error) {
	if m.refreshError != nil {
		return false, m.refreshError
	}
	return m.refreshResult, nil
}

func (m *mockAppointmentRepository) HasBlockingAppointment(doctorID int64, date time.Time) (bool, error) {
	for _, appt := range m.appointments {
		if appt.DoctorID != doctorID || !appt.AppointmentDate.Equal(date) {
			continue
		}
		if appt.Status != appointmentdm.StatusExpired {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockAppointmentRepository) Create(appt *appointmentdm.Appointment) error {
	if m.createError != nil {
		return m.createError
	}
	appt.ID = m.nextID
	m.nextID++
	m.appointments[appt.ID] = appt
	return nil
}

func (m *mockAppointmentRepository) DeletePending(id int64) (bool, error) {
	m.deleteCalls++
	if m.deleteError != nil {
		return false, m.deleteError
	}
	appt, exists := m.appointments[id]
	if !exists || appt.Status != appointmentdm.StatusPendingPayment {
		return false, nil
	}
	delete(m.appointments, id)
	return true, nil
}

func (m *mockAppointmentRepository) ListByClient(clientID int64) ([]*appointmentdm.Appointment, error) {
	if m.listError != nil {
		return nil, m.listError
	}
	var result []*appointmentdm.Appointment
	for _, appt := range m.appointments {
		if appt.ClientID == clientID {
			result = append(result, appt)
		}
	}
	return result, nil
}

func (m *mockAppointmentRepository) ListByDoctor(doctorID int64) ([]*appointmentdm.Appointment, error) {
	if m.listError != nil {
		return nil, m.listError
	}
	var result []*appointmentdm.Appointment
	for _, appt := range m.appointments {
		if appt.DoctorID == doctorID {
			result = append(result, appt)
		}
	}
	return result, nil
}

// Mock payment gateway for testing
type mockPaymentGateway struct {
	pushError    error
	lastRequest  *mpesa.STKPushRequest
	pushResponse *mpesa.STKPushResponse
	calls        int
}

func newMockPaymentGateway() *mockPaymentGateway {
	return &mockPaymentGateway{
		pushResponse: &mpesa.STKPushResponse{
			MerchantRequestID: "merchant-1",
			CheckoutRequestID: "ws_CO_123456",
			ResponseCode:      "0",
			CustomerMessage:   "Success. Request accepted for processing",
		},
	}
}

func (m *mockPaymentGateway) InitiateSTKPush(ctx context.Context, req mpesa.STKPushRequest) (*mpesa.STKPushResponse, error) {
	m.calls++
	m.lastRequest = &req
	if m.pushError != nil {
		return nil, m.pushError
	}
	return m.pushResponse, nil
}

// Mock doctor directory for testing
type mockDoctorDirectory struct {
	profiles map[int64]*directorydm.DoctorProfile
}

func newMockDoctorDirectory() *mockDoctorDirectory {
	return &mockDoctorDirectory{profiles: make(map[int64]*directorydm.DoctorProfile)}
}

func (m *mockDoctorDirectory) GetDoctorProfile(doctorID int64) (*directorydm.DoctorProfile, error) {
	profile, exists := m.profiles[doctorID]
	if !exists {
		return nil, apperrors.ErrDoctorNotFound
	}
	return profile, nil
}

var _ = Describe("AppointmentService", func() {
	var (
		service   *appointment.Service
		mockRepo  *mockAppointmentRepository
		gateway   *mockPaymentGateway
		directory *mockDoctorDirectory
		logger    *slog.Logger
		dto       appointment.BookAppointmentDTO
	)

	const clientID = int64(7)

	BeforeEach(func() {
		mockRepo = newMockAppointmentRepository()
		gateway = newMockPaymentGateway()
		directory = newMockDoctorDirectory()
		directory.profiles[42] = &directorydm.DoctorProfile{UserID: 42}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = appointment.NewService(mockRepo, gateway, directory, "client", nil, logger)

		dto = appointment.BookAppointmentDTO{
			DoctorID:        42,
			AppointmentDate: "2026-09-15T10:00:00Z",
			PhoneNumber:     "0712345678",
			Amount:          1500,
		}
	})

	Describe("Book", func() {
		Context("when the slot is free", func() {
			It("should create a pending reservation and initiate the charge", func() {
				result, err := service.Book(context.Background(), clientID, dto)

				Expect(err).ToNot(HaveOccurred())
				Expect(result).ToNot(BeNil())
				Expect(result.AppointmentID).To(Equal(int64(1)))
				Expect(result.PaymentStatus).To(Equal("Pending"))
				Expect(result.PaymentDetails.CheckoutRequestID).To(Equal("ws_CO_123456"))

				appt := mockRepo.appointments[1]
				Expect(appt).ToNot(BeNil())
				Expect(appt.Status).To(Equal(appointmentdm.StatusPendingPayment))
				Expect(appt.ClientID).To(Equal(clientID))
				Expect(appt.PhoneNumber).To(Equal("254712345678"))
			})

			It("should reference the reservation id in the push request", func() {
				_, err := service.Book(context.Background(), clientID, dto)

				Expect(err).ToNot(HaveOccurred())
				Expect(gateway.lastRequest).ToNot(BeNil())
				Expect(gateway.lastRequest.AccountReference).To(Equal("1"))
				Expect(gateway.lastRequest.Amount).To(Equal(int64(1500)))
				Expect(gateway.lastRequest.PhoneNumber).To(Equal("254712345678"))
			})
		})

		Context("when the client retries their own pending booking", func() {
			It("should reuse the reservation instead of creating another", func() {
				first, err := service.Book(context.Background(), clientID, dto)
				Expect(err).ToNot(HaveOccurred())

				second, err := service.Book(context.Background(), clientID, dto)
				Expect(err).ToNot(HaveOccurred())

				Expect(second.AppointmentID).To(Equal(first.AppointmentID))
				Expect(mockRepo.appointments).To(HaveLen(1))
				Expect(gateway.calls).To(Equal(2))
			})
		})

		Context("when the slot is already held", func() {
			It("should reject with a conflict when the slot is booked", func() {
				mockRepo.appointments[99] = &appointmentdm.Appointment{
					ID:              99,
					ClientID:        3,
					DoctorID:        42,
					AppointmentDate: time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC),
					Status:          appointmentdm.StatusBooked,
				}

				_, err := service.Book(context.Background(), clientID, dto)

				Expect(err).To(HaveOccurred())
				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(apperrors.ErrCodeSlotConflict))
				Expect(gateway.calls).To(BeZero())
			})

			It("should reject with a conflict when another client holds a pending reservation", func() {
				mockRepo.appointments[99] = &appointmentdm.Appointment{
					ID:              99,
					ClientID:        3,
					DoctorID:        42,
					AppointmentDate: time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC),
					Status:          appointmentdm.StatusPendingPayment,
				}

				_, err := service.Book(context.Background(), clientID, dto)

				Expect(err).To(HaveOccurred())
				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(apperrors.ErrCodeSlotConflict))
				Expect(mockRepo.appointments).To(HaveLen(1))
				Expect(gateway.calls).To(BeZero())
			})

			It("should not treat an expired reservation as blocking", func() {
				mockRepo.appointments[99] = &appointmentdm.Appointment{
					ID:              99,
					ClientID:        3,
					DoctorID:        42,
					AppointmentDate: time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC),
					Status:          appointmentdm.StatusExpired,
				}

				result, err := service.Book(context.Background(), clientID, dto)

				Expect(err).ToNot(HaveOccurred())
				Expect(result.AppointmentID).ToNot(Equal(int64(99)))
			})
		})

		Context("when the doctor does not exist", func() {
			It("should reject without touching storage", func() {
				dto.DoctorID = 404

				_, err := service.Book(context.Background(), clientID, dto)

				Expect(err).To(HaveOccurred())
				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(apperrors.ErrCodeDoctorNotFound))
				Expect(mockRepo.appointments).To(BeEmpty())
			})
		})

		Context("when the gateway refuses the charge", func() {
			BeforeEach(func() {
				gateway.pushError = apperrors.NewGatewayError("stk push rejected with status 500", nil)
			})

			It("should delete the freshly created reservation", func() {
				_, err := service.Book(context.Background(), clientID, dto)

				Expect(err).To(HaveOccurred())
				Expect(mockRepo.appointments).To(BeEmpty())
				Expect(mockRepo.deleteCalls).To(Equal(1))
			})

			It("should keep a reused reservation for the next retry", func() {
				gateway.pushError = nil
				_, err := service.Book(context.Background(), clientID, dto)
				Expect(err).ToNot(HaveOccurred())

				gateway.pushError = apperrors.NewGatewayError("stk push rejected with status 500", nil)
				_, err = service.Book(context.Background(), clientID, dto)

				Expect(err).To(HaveOccurred())
				Expect(mockRepo.appointments).To(HaveLen(1))
				Expect(mockRepo.deleteCalls).To(BeZero())
			})

			It("should retry the compensating delete once", func() {
				mockRepo.deleteError = errors.New("connection reset")

				_, err := service.Book(context.Background(), clientID, dto)

				Expect(err).To(HaveOccurred())
				Expect(mockRepo.deleteCalls).To(Equal(2))
			})
		})

		Context("when the payer is the doctor", func() {
			BeforeEach(func() {
				service = appointment.NewService(mockRepo, gateway, directory, "doctor", nil, logger)
			})

			It("should charge the doctor's phone", func() {
				phone := "254798765432"
				directory.profiles[42].Phone = &phone

				_, err := service.Book(context.Background(), clientID, dto)

				Expect(err).ToNot(HaveOccurred())
				Expect(gateway.lastRequest.PhoneNumber).To(Equal("254798765432"))
			})

			It("should reject when the doctor has no phone on file", func() {
				_, err := service.Book(context.Background(), clientID, dto)

				Expect(err).To(HaveOccurred())
				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(apperrors.ErrCodeDoctorPhoneMissing))
				Expect(gateway.calls).To(BeZero())
			})
		})

		Context("when the request is invalid", func() {
			It("should reject before any collaborator is called", func() {
				dto.PhoneNumber = "12345"

				_, err := service.Book(context.Background(), clientID, dto)

				Expect(err).To(HaveOccurred())
				Expect(mockRepo.appointments).To(BeEmpty())
				Expect(gateway.calls).To(BeZero())
			})
		})

		Context("booking outcome metrics", func() {
			var registry *prometheus.Registry

			BeforeEach(func() {
				registry = prometheus.NewRegistry()
				bookingMetrics := metrics.NewBookingMetrics(registry)
				service = appointment.NewService(mockRepo, gateway, directory, "client", bookingMetrics, logger)
			})

			It("should count a taken slot as a conflict", func() {
				mockRepo.appointments[99] = &appointmentdm.Appointment{
					ID:              99,
					ClientID:        3,
					DoctorID:        42,
					AppointmentDate: time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC),
					Status:          appointmentdm.StatusBooked,
				}

				_, err := service.Book(context.Background(), clientID, dto)

				Expect(err).To(HaveOccurred())
				expected := strings.NewReader(`
# HELP mediconnect_booking_requests_total Total booking requests by outcome
# TYPE mediconnect_booking_requests_total counter
mediconnect_booking_requests_total{outcome="conflict"} 1
`)
				Expect(testutil.GatherAndCompare(registry, expected, "mediconnect_booking_requests_total")).To(Succeed())
			})

			It("should count a storage failure as an error, not a conflict", func() {
				mockRepo.findError = errors.New("connection reset")

				_, err := service.Book(context.Background(), clientID, dto)

				Expect(err).To(HaveOccurred())
				expected := strings.NewReader(`
# HELP mediconnect_booking_requests_total Total booking requests by outcome
# TYPE mediconnect_booking_requests_total counter
mediconnect_booking_requests_total{outcome="error"} 1
`)
				Expect(testutil.GatherAndCompare(registry, expected, "mediconnect_booking_requests_total")).To(Succeed())
			})
		})
	})

	Describe("ListForClient", func() {
		It("should return only the client's appointments", func() {
			mockRepo.appointments[1] = &appointmentdm.Appointment{ID: 1, ClientID: clientID, DoctorID: 42}
			mockRepo.appointments[2] = &appointmentdm.Appointment{ID: 2, ClientID: 8, DoctorID: 42}

			appts, err := service.ListForClient(clientID)

			Expect(err).ToNot(HaveOccurred())
			Expect(appts).To(HaveLen(1))
			Expect(appts[0].ClientID).To(Equal(clientID))
		})

		It("should wrap storage errors", func() {
			mockRepo.listError = errors.New("connection refused")

			_, err := service.ListForClient(clientID)

			Expect(err).To(HaveOccurred())
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(apperrors.ErrCodePersistenceFailed))
		})
	})
})
