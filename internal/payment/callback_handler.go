package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mediconnect/appointment-management/internal/transport"
)

// CallbackHandler receives Daraja's asynchronous STK push result. The
// endpoint is unauthenticated and always acknowledges with 200 so the
// gateway does not retry; processing problems surface in logs and metrics
// instead.
type CallbackHandler struct {
	*transport.BaseHandler
	paymentService *Service
	logger         *slog.Logger
}

func NewCallbackHandler(baseHandler *transport.BaseHandler, paymentService *Service, logger *slog.Logger) *CallbackHandler {
	return &CallbackHandler{
		BaseHandler:    baseHandler,
		paymentService: paymentService,
		logger:         logger,
	}
}

func (h *CallbackHandler) HandleMpesaCallback(w http.ResponseWriter, r *http.Request) {
	var envelope CallbackEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		h.logger.Warn("mpesa callback body is not valid JSON", "error", err)
		h.WriteJSON(w, http.StatusOK, ackRejected)
		return
	}

	cb := envelope.Body.StkCallback
	if cb == nil {
		h.logger.Warn("mpesa callback missing Body.stkCallback")
		h.WriteJSON(w, http.StatusOK, ackRejected)
		return
	}

	h.logger.Info("received mpesa callback",
		"checkout_request_id", cb.CheckoutRequestID,
		"result_code", cb.ResultCode,
		"account_reference", cb.AccountReference)

	if err := h.paymentService.ProcessCallback(cb); err != nil {
		h.logger.Error("mpesa callback processing failed",
			"error", err,
			"checkout_request_id", cb.CheckoutRequestID)
		h.WriteJSON(w, http.StatusOK, ackRejected)
		return
	}

	h.WriteJSON(w, http.StatusOK, ackAccepted)
}
