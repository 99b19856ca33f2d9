package directory

import (
	"log/slog"

	directorydm "github.com/mediconnect/appointment-management/internal/core/datamodel/directory"
)

// RepositoryAPI is the persistence gateway for doctor profiles.
type RepositoryAPI interface {
	GetByUserID(userID int64) (*directorydm.DoctorProfile, error)
}

// Service exposes doctor profile lookups to the booking flow.
type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// GetDoctorProfile returns the doctor's profile, or ErrDoctorNotFound when no
// profile exists for the id.
func (s *Service) GetDoctorProfile(doctorID int64) (*directorydm.DoctorProfile, error) {
	profile, err := s.repo.GetByUserID(doctorID)
	if err != nil {
		s.logger.Warn("doctor profile lookup failed", "doctor_id", doctorID, "error", err)
		return nil, err
	}
	return profile, nil
}
