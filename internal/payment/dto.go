package payment

import (
	"encoding/json"
	"strconv"
	"strings"

	errors "github.com/mediconnect/appointment-management/internal"
)

// CallbackEnvelope is the outer shape Daraja posts to the callback URL.
type CallbackEnvelope struct {
	Body CallbackBody `json:"Body"`
}

type CallbackBody struct {
	StkCallback *STKCallback `json:"stkCallback"`
}

// STKCallback carries the gateway's verdict on one STK push. ResultCode 0
// means the customer paid; anything else is a failure or cancellation.
type STKCallback struct {
	MerchantRequestID  string      `json:"MerchantRequestID"`
	CheckoutRequestID  string      `json:"CheckoutRequestID"`
	ResultCode         int         `json:"ResultCode"`
	ResultDesc         string      `json:"ResultDesc"`
	Amount             float64     `json:"Amount"`
	MpesaReceiptNumber string      `json:"MpesaReceiptNumber"`
	TransactionDate    json.Number `json:"TransactionDate"`
	AccountReference   string      `json:"AccountReference"`
}

// Succeeded reports whether the customer completed the payment.
func (c *STKCallback) Succeeded() bool {
	return c.ResultCode == 0
}

// AppointmentID parses the account reference the STK push was initiated
// with. The gateway echoes it back verbatim.
func (c *STKCallback) AppointmentID() (int64, error) {
	ref := strings.TrimSpace(c.AccountReference)
	if ref == "" {
		return 0, errors.NewValidationFieldError("AccountReference", "account reference is required", errors.ErrCodeCallbackMalformed)
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewValidationFieldError("AccountReference", "account reference is not an appointment id", errors.ErrCodeCallbackMalformed)
	}
	return id, nil
}

// CallbackAck is the body Daraja expects back. The gateway only retries on
// non-200 responses, so the ack codes are informational.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

var (
	ackAccepted = CallbackAck{ResultCode: 0, ResultDesc: "Callback received successfully"}
	ackRejected = CallbackAck{ResultCode: 1, ResultDesc: "Malformed callback payload"}
)
