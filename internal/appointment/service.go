package appointment

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	errors "github.com/mediconnect/appointment-management/internal"
	appointmentdm "github.com/mediconnect/appointment-management/internal/core/datamodel/appointment"
	directorydm "github.com/mediconnect/appointment-management/internal/core/datamodel/directory"
	"github.com/mediconnect/appointment-management/internal/mpesa"
	"github.com/mediconnect/appointment-management/internal/observability/metrics"
)

// Repository is the persistence gateway for appointment rows. All state
// transitions go through it; the conditional variants report whether the
// guarded write actually applied.
type Repository interface {
	FindPendingForClient(clientID, doctorID int64, date time.Time) (*appointmentdm.Appointment, error)
	RefreshPending(id int64) (bool, error)
	HasBlockingAppointment(doctorID int64, date time.Time) (bool, error)
	Create(appt *appointmentdm.Appointment) error
	DeletePending(id int64) (bool, error)
	ListByClient(clientID int64) ([]*appointmentdm.Appointment, error)
	ListByDoctor(doctorID int64) ([]*appointmentdm.Appointment, error)
}

// PaymentGateway initiates the external mobile-money charge.
type PaymentGateway interface {
	InitiateSTKPush(ctx context.Context, req mpesa.STKPushRequest) (*mpesa.STKPushResponse, error)
}

// DoctorDirectory resolves doctor profiles; a thin collaborator owned by the
// user service.
type DoctorDirectory interface {
	GetDoctorProfile(doctorID int64) (*directorydm.DoctorProfile, error)
}

// BookResult is what a successful booking call returns: the reservation id
// and the gateway's acknowledgement. The actual payment outcome arrives later
// through the callback endpoint.
type BookResult struct {
	AppointmentID  int64                  `json:"appointment_id"`
	PaymentStatus  string                 `json:"payment_status"`
	PaymentDetails *mpesa.STKPushResponse `json:"payment_details,omitempty"`
}

const paymentStatusPendingAck = "Pending"

// Service implements the reservation workflow: validate, detect slot
// conflicts, create or reuse a pending reservation, then trigger payment
// initiation.
type Service struct {
	repo        Repository
	gateway     PaymentGateway
	directory   DoctorDirectory
	payerSource string
	metrics     *metrics.BookingMetrics
	logger      *slog.Logger
}

func NewService(repo Repository, gateway PaymentGateway, directory DoctorDirectory, payerSource string, m *metrics.BookingMetrics, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		gateway:     gateway,
		directory:   directory,
		payerSource: payerSource,
		metrics:     m,
		logger:      logger,
	}
}

// Book reserves the doctor's slot for the client and initiates the charge.
// Exactly one PendingPayment row persists per successful call; a failed
// first-time attempt leaves no row behind.
func (s *Service) Book(ctx context.Context, clientID int64, dto BookAppointmentDTO) (*BookResult, error) {
	req, err := dto.Validate()
	if err != nil {
		s.logger.Warn("booking validation failed", "error", err, "client_id", clientID)
		s.metrics.ObserveBooking("invalid")
		return nil, err
	}

	doctor, err := s.directory.GetDoctorProfile(req.DoctorID)
	if err != nil {
		s.logger.Warn("booking rejected: doctor lookup failed",
			"error", err,
			"doctor_id", req.DoctorID,
			"client_id", clientID)
		s.metrics.ObserveBooking("doctor_not_found")
		return nil, err
	}

	payerPhone, err := s.resolvePayerPhone(req, doctor)
	if err != nil {
		s.metrics.ObserveBooking("doctor_not_found")
		return nil, err
	}

	appt, reused, err := s.reserve(clientID, req)
	if err != nil {
		if appErr, ok := errors.IsAppError(err); ok && appErr.Code == errors.ErrCodeSlotConflict {
			s.metrics.ObserveBooking("conflict")
		} else {
			s.metrics.ObserveBooking("error")
		}
		return nil, err
	}

	pushStart := time.Now()
	pushResp, err := s.gateway.InitiateSTKPush(ctx, mpesa.STKPushRequest{
		AccountReference: strconv.FormatInt(appt.ID, 10),
		Amount:           req.Amount,
		PhoneNumber:      payerPhone,
	})
	if err != nil {
		s.metrics.ObserveSTKPushLatency("rejected", time.Since(pushStart).Seconds())
		s.compensate(appt.ID, reused)
		s.metrics.ObserveBooking("gateway_failed")
		return nil, err
	}
	s.metrics.ObserveSTKPushLatency("accepted", time.Since(pushStart).Seconds())

	s.logger.Info("booking reserved and payment initiated",
		"appointment_id", appt.ID,
		"client_id", clientID,
		"doctor_id", req.DoctorID,
		"appointment_date", req.AppointmentDate,
		"reused", reused,
		"checkout_request_id", pushResp.CheckoutRequestID)
	s.metrics.ObserveBooking("pending")

	return &BookResult{
		AppointmentID:  appt.ID,
		PaymentStatus:  paymentStatusPendingAck,
		PaymentDetails: pushResp,
	}, nil
}

// reserve finds a reusable pending row for the same client or creates a new
// one; reused reports which path was taken so compensation can tell them
// apart.
func (s *Service) reserve(clientID int64, req BookingRequest) (*appointmentdm.Appointment, bool, error) {
	existing, err := s.repo.FindPendingForClient(clientID, req.DoctorID, req.AppointmentDate)
	if err != nil {
		return nil, false, errors.NewPersistenceError("failed to look up pending reservation", err)
	}

	if existing != nil {
		refreshed, err := s.repo.RefreshPending(existing.ID)
		if err != nil {
			return nil, false, errors.NewPersistenceError("failed to refresh pending reservation", err)
		}
		if refreshed {
			s.logger.Info("reusing pending reservation",
				"appointment_id", existing.ID,
				"client_id", clientID)
			return existing, true, nil
		}
		// the row was decided or swept between lookup and refresh; fall
		// through to the conflict check
	}

	blocked, err := s.repo.HasBlockingAppointment(req.DoctorID, req.AppointmentDate)
	if err != nil {
		return nil, false, errors.NewPersistenceError("failed to check slot availability", err)
	}
	if blocked {
		s.logger.Info("booking rejected: slot conflict",
			"doctor_id", req.DoctorID,
			"appointment_date", req.AppointmentDate,
			"client_id", clientID)
		return nil, false, errors.ErrSlotConflict
	}

	appt := &appointmentdm.Appointment{
		ClientID:        clientID,
		DoctorID:        req.DoctorID,
		AppointmentDate: req.AppointmentDate,
		Amount:          req.Amount,
		PhoneNumber:     req.PhoneNumber,
		Status:          appointmentdm.StatusPendingPayment,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	if err := s.repo.Create(appt); err != nil {
		return nil, false, errors.NewPersistenceError("failed to create reservation", err)
	}

	return appt, false, nil
}

// compensate removes a reservation created by this call after the gateway
// refused the charge. Reused rows are left alone so the client can retry into
// the same reservation.
func (s *Service) compensate(appointmentID int64, reused bool) {
	if reused {
		s.logger.Warn("payment initiation failed for reused reservation, keeping row for retry",
			"appointment_id", appointmentID)
		return
	}

	deleted, err := s.repo.DeletePending(appointmentID)
	if err != nil {
		// retry once; a stray pending row consumes the slot until the sweeper
		// reclaims it
		if deleted, err = s.repo.DeletePending(appointmentID); err != nil {
			s.logger.Error("compensating delete failed, row left for sweeper",
				"appointment_id", appointmentID,
				"error", err)
			return
		}
	}
	if deleted {
		s.logger.Info("compensated failed payment initiation", "appointment_id", appointmentID)
	}
}

func (s *Service) resolvePayerPhone(req BookingRequest, doctor *directorydm.DoctorProfile) (string, error) {
	if s.payerSource != "doctor" {
		return req.PhoneNumber, nil
	}

	if doctor.Phone == nil || *doctor.Phone == "" {
		s.logger.Warn("booking rejected: doctor phone missing", "doctor_id", doctor.UserID)
		return "", errors.ErrDoctorPhoneMissing
	}
	phone, ok := NormalizePhone(*doctor.Phone)
	if !ok {
		s.logger.Error("doctor phone on file is not a valid mobile number", "doctor_id", doctor.UserID)
		return "", errors.ErrDoctorPhoneMissing
	}
	return phone, nil
}

// ListForClient returns the client's appointments, newest slot first.
func (s *Service) ListForClient(clientID int64) ([]*appointmentdm.Appointment, error) {
	appts, err := s.repo.ListByClient(clientID)
	if err != nil {
		return nil, errors.NewPersistenceError("failed to list client appointments", err)
	}
	return appts, nil
}

// ListForDoctor returns the doctor's appointments, newest slot first.
func (s *Service) ListForDoctor(doctorID int64) ([]*appointmentdm.Appointment, error) {
	appts, err := s.repo.ListByDoctor(doctorID)
	if err != nil {
		return nil, errors.NewPersistenceError("failed to list doctor appointments", err)
	}
	return appts, nil
}
