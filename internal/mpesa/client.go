package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	errors "github.com/mediconnect/appointment-management/internal"
)

// Config carries the Daraja endpoints and credentials. CallbackURL is where
// the gateway posts the asynchronous STK result.
type Config struct {
	OAuthURL       string
	STKPushURL     string
	CallbackURL    string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	RequestTimeout time.Duration
}

// Client talks to the Daraja API: it obtains short-lived access tokens and
// submits STK push charge requests. The charge acknowledgement it returns is
// not the payment result; that arrives later on the callback endpoint.
type Client struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
		now:    time.Now,
	}
}

type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// AccessToken returns a cached token when one is still valid, otherwise asks
// the authorization endpoint for a fresh one using the static consumer
// credentials.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.OAuthURL, nil)
	if err != nil {
		return "", errors.NewGatewayError("failed to build access token request", err)
	}

	basic := base64.StdEncoding.EncodeToString([]byte(c.cfg.ConsumerKey + ":" + c.cfg.ConsumerSecret))
	req.Header.Set("Authorization", "Basic "+basic)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("mpesa: access token request failed", "error", err)
		return "", errors.NewGatewayError("payment gateway unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error("mpesa: access token rejected",
			"status", resp.StatusCode,
			"response", string(body))
		return "", errors.NewGatewayError(fmt.Sprintf("access token request rejected with status %d", resp.StatusCode), nil)
	}

	var tokenResp accessTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", errors.NewGatewayError("failed to decode access token response", err)
	}
	if tokenResp.AccessToken == "" {
		return "", errors.NewGatewayError("gateway returned empty access token", nil)
	}

	ttl := parseExpiry(tokenResp.ExpiresIn)
	c.accessToken = tokenResp.AccessToken
	// refresh slightly early so an in-flight push never carries a stale token
	c.tokenExpiry = c.now().Add(ttl - 30*time.Second)

	c.logger.Debug("mpesa: access token refreshed", "expires_in", ttl.String())
	return c.accessToken, nil
}

func parseExpiry(expiresIn string) time.Duration {
	// Daraja reports seconds as a string, typically "3599"
	var seconds int64
	if _, err := fmt.Sscanf(strings.TrimSpace(expiresIn), "%d", &seconds); err != nil || seconds <= 0 {
		seconds = 3599
	}
	return time.Duration(seconds) * time.Second
}

// STKPushRequest is the charge initiation; AccountReference carries the
// appointment id so the callback can be reconciled to its reservation.
type STKPushRequest struct {
	AccountReference string
	Amount           int64
	PhoneNumber      string
	Description      string
}

type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// Accepted reports whether the gateway queued the push for the customer.
func (r *STKPushResponse) Accepted() bool {
	return r.ResponseCode == "0"
}

type stkPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// InitiateSTKPush submits a charge request and returns the gateway's
// synchronous acknowledgement. Transport failures and rejections surface as
// gateway errors; the caller owns any compensating state.
func (c *Client) InitiateSTKPush(ctx context.Context, pushReq STKPushRequest) (*STKPushResponse, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := c.now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString([]byte(c.cfg.ShortCode + c.cfg.Passkey + timestamp))

	desc := pushReq.Description
	if desc == "" {
		desc = "Appointment Payment"
	}

	payload := stkPushPayload{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            pushReq.Amount,
		PartyA:            pushReq.PhoneNumber,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       pushReq.PhoneNumber,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  pushReq.AccountReference,
		TransactionDesc:   desc,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.NewGatewayError("failed to marshal stk push payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.STKPushURL, strings.NewReader(string(body)))
	if err != nil {
		return nil, errors.NewGatewayError("failed to build stk push request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Info("mpesa: sending stk push",
		"account_reference", pushReq.AccountReference,
		"amount", pushReq.Amount,
		"phone", pushReq.PhoneNumber)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("mpesa: stk push request failed", "error", err, "account_reference", pushReq.AccountReference)
		return nil, errors.NewGatewayError("payment gateway unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewGatewayError("failed to read stk push response", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("mpesa: stk push rejected",
			"status", resp.StatusCode,
			"response", string(respBody),
			"account_reference", pushReq.AccountReference)
		return nil, errors.NewGatewayError(fmt.Sprintf("stk push rejected with status %d", resp.StatusCode), nil)
	}

	var pushResp STKPushResponse
	if err := json.Unmarshal(respBody, &pushResp); err != nil {
		return nil, errors.NewGatewayError("failed to decode stk push response", err)
	}

	if !pushResp.Accepted() {
		c.logger.Warn("mpesa: stk push not accepted",
			"response_code", pushResp.ResponseCode,
			"description", pushResp.ResponseDescription,
			"account_reference", pushReq.AccountReference)
		return &pushResp, errors.NewGatewayError(
			fmt.Sprintf("stk push not accepted: %s", pushResp.ResponseDescription), nil)
	}

	c.logger.Info("mpesa: stk push accepted",
		"merchant_request_id", pushResp.MerchantRequestID,
		"checkout_request_id", pushResp.CheckoutRequestID,
		"account_reference", pushReq.AccountReference)

	return &pushResp, nil
}
