package appointment

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mediconnect/appointment-management/internal"
	"github.com/mediconnect/appointment-management/internal/auth"
	"github.com/mediconnect/appointment-management/internal/transport"
	"github.com/mediconnect/appointment-management/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	Service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger.L()),
		Service:     service,
	}
}

// Book handles POST /book. The client id comes from the authenticated
// principal; everything else from the body.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok || principal == nil {
		h.Logger.Error("Book: principal not found in context")
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto BookAppointmentDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Warn("Book: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// bound the whole reserve-and-charge round trip
	ctx, cancel := internal.WithTimeout(r.Context(), 45*time.Second)
	defer cancel()

	result, err := h.Service.Book(ctx, principal.ID, dto)
	if err != nil {
		h.Logger.Warn("Book: service error", "error", err, "client_id", principal.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, result)
}

// ClientAppointments handles GET /appointments/client for the authenticated
// client.
func (h *Handler) ClientAppointments(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok || principal == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	appts, err := h.Service.ListForClient(principal.ID)
	if err != nil {
		h.Logger.Error("ClientAppointments: service error", "error", err, "client_id", principal.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, appts)
}

// DoctorAppointments handles GET /appointments/doctor for the authenticated
// doctor.
func (h *Handler) DoctorAppointments(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok || principal == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	appts, err := h.Service.ListForDoctor(principal.ID)
	if err != nil {
		h.Logger.Error("DoctorAppointments: service error", "error", err, "doctor_id", principal.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, appts)
}
