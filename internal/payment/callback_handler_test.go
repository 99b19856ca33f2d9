package payment_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mediconnect/appointment-management/internal/core/events"
	"github.com/mediconnect/appointment-management/internal/payment"
	"github.com/mediconnect/appointment-management/internal/transport"
)

var _ = Describe("CallbackHandler", func() {
	var (
		handler  *payment.CallbackHandler
		mockRepo *mockPaymentRepository
		recorder *httptest.ResponseRecorder
	)

	post := func(body []byte) payment.CallbackAck {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/mpesa-callback", bytes.NewReader(body))
		handler.HandleMpesaCallback(recorder, req)

		Expect(recorder.Code).To(Equal(http.StatusOK))
		var ack payment.CallbackAck
		Expect(json.Unmarshal(recorder.Body.Bytes(), &ack)).To(Succeed())
		return ack
	}

	validEnvelope := func(resultCode int) []byte {
		body, err := json.Marshal(map[string]interface{}{
			"Body": map[string]interface{}{
				"stkCallback": map[string]interface{}{
					"MerchantRequestID":  "merchant-1",
					"CheckoutRequestID":  "ws_CO_123456",
					"ResultCode":         resultCode,
					"ResultDesc":         "desc",
					"Amount":             1500,
					"MpesaReceiptNumber": "QGR7TKQ2XM",
					"TransactionDate":    20260915100501,
					"AccountReference":   "12",
				},
			},
		})
		Expect(err).ToNot(HaveOccurred())
		return body
	}

	BeforeEach(func() {
		mockRepo = newMockPaymentRepository()
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		eventBus := events.NewEventBus(logger)
		service := payment.NewService(mockRepo, eventBus, nil, logger)
		handler = payment.NewCallbackHandler(transport.NewBaseHandler(logger), service, logger)
		recorder = httptest.NewRecorder()
	})

	Describe("HandleMpesaCallback", func() {
		It("should acknowledge a successful payment", func() {
			ack := post(validEnvelope(0))

			Expect(ack.ResultCode).To(BeZero())
			Expect(mockRepo.successCalls).To(Equal(1))
		})

		It("should acknowledge a failed payment", func() {
			ack := post(validEnvelope(1032))

			Expect(ack.ResultCode).To(BeZero())
			Expect(mockRepo.failureCalls).To(Equal(1))
		})

		It("should return 200 with a non-zero code for invalid JSON", func() {
			ack := post([]byte("{not json"))

			Expect(ack.ResultCode).To(Equal(1))
			Expect(mockRepo.successCalls).To(BeZero())
		})

		It("should return 200 with a non-zero code when stkCallback is missing", func() {
			ack := post([]byte(`{"Body":{}}`))

			Expect(ack.ResultCode).To(Equal(1))
		})

		It("should return 200 with a non-zero code for an unusable reference", func() {
			body, err := json.Marshal(map[string]interface{}{
				"Body": map[string]interface{}{
					"stkCallback": map[string]interface{}{
						"ResultCode":       0,
						"AccountReference": "not-an-id",
					},
				},
			})
			Expect(err).ToNot(HaveOccurred())

			ack := post(body)
			Expect(ack.ResultCode).To(Equal(1))
		})
	})
})
