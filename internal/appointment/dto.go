package appointment

import (
	"regexp"
	"strings"
	"time"

	errors "github.com/mediconnect/appointment-management/internal"
	"github.com/mediconnect/appointment-management/internal/core/common/validation"
)

// BookAppointmentDTO is the request payload for POST /book. The client id is
// taken from the authenticated principal, never from the body.
type BookAppointmentDTO struct {
	DoctorID        int64  `json:"doctor_id"`
	AppointmentDate string `json:"appointment_date"`
	PhoneNumber     string `json:"phone_number"`
	Amount          int64  `json:"amount"`
}

// BookingRequest is the validated, normalized form of the DTO.
type BookingRequest struct {
	DoctorID        int64
	AppointmentDate time.Time
	PhoneNumber     string
	Amount          int64
}

var normalizedPhonePattern = regexp.MustCompile(`^2547\d{8}$`)

// NormalizePhone reduces the accepted Kenyan phone forms to 2547XXXXXXXX.
// Accepted inputs: +2547XXXXXXXX, 07XXXXXXXX and bare 2547XXXXXXXX, with
// embedded whitespace tolerated.
func NormalizePhone(raw string) (string, bool) {
	phone := strings.Join(strings.Fields(raw), "")
	phone = strings.TrimPrefix(phone, "+")

	if strings.HasPrefix(phone, "07") {
		phone = "254" + phone[1:]
	}

	if !normalizedPhonePattern.MatchString(phone) {
		return "", false
	}
	return phone, true
}

// acceptedDateLayouts covers the timestamp forms booking clients send.
var acceptedDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseAppointmentDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range acceptedDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Validate checks the DTO and returns its normalized form. Any failure means
// the booking call has had no side effects yet.
func (dto BookAppointmentDTO) Validate() (BookingRequest, error) {
	validator := validation.NewValidator()

	validator.Field("doctor_id", dto.DoctorID).Required()
	validator.Field("appointment_date", dto.AppointmentDate).Required()
	validator.Field("phone_number", dto.PhoneNumber).Required()
	validator.Field("amount", dto.Amount).Positive(errors.ErrCodeInvalidAmount)

	if appErr := validator.Validate(); appErr != nil {
		return BookingRequest{}, appErr
	}

	date, ok := parseAppointmentDate(dto.AppointmentDate)
	if !ok {
		return BookingRequest{}, errors.NewValidationFieldError(
			"appointment_date",
			"appointment_date must be a valid ISO-8601 timestamp",
			errors.ErrCodeInvalidDate)
	}

	phone, ok := NormalizePhone(dto.PhoneNumber)
	if !ok {
		return BookingRequest{}, errors.NewValidationFieldError(
			"phone_number",
			"phone_number must be a Kenyan mobile number (+2547XXXXXXXX, 07XXXXXXXX or 2547XXXXXXXX)",
			errors.ErrCodeInvalidPhone)
	}

	return BookingRequest{
		DoctorID:        dto.DoctorID,
		AppointmentDate: date,
		PhoneNumber:     phone,
		Amount:          dto.Amount,
	}, nil
}
