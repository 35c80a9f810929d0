// Package payos is a client for the PayOS payment-link API.
package payos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cinema-checkout/internal/data/entity"
	"cinema-checkout/internal/gateway"
	"cinema-checkout/pkg/utils"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	Provider = "payos"

	codeSuccess = "00"

	// PayOS truncates longer descriptions
	maxDescriptionLen = 25
)

type Client struct {
	baseURL     string
	clientID    string
	apiKey      string
	checksumKey string
	httpClient  *http.Client
	newOrderID  func() int64
	log         *zap.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithOrderCodeGenerator overrides how order codes are minted.
func WithOrderCodeGenerator(gen func() int64) Option {
	return func(c *Client) {
		c.newOrderID = gen
	}
}

func NewClient(cfg utils.PayOSConfig, log *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		clientID:    cfg.ClientID,
		apiKey:      cfg.APIKey,
		checksumKey: cfg.ChecksumKey,
		httpClient:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		newOrderID:  utils.GenerateOrderCode,
		log:         log.With(zap.String("gateway", Provider)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Code      string          `json:"code"`
	Desc      string          `json:"desc"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature,omitempty"`
}

type createPaymentRequest struct {
	OrderCode   int64  `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	CancelURL   string `json:"cancelUrl"`
	ReturnURL   string `json:"returnUrl"`
	ExpiredAt   int64  `json:"expiredAt,omitempty"`
	Signature   string `json:"signature"`
}

type paymentLinkData struct {
	OrderCode   int64  `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Status      string `json:"status"`
	CheckoutURL string `json:"checkoutUrl"`
	QRCode      string `json:"qrCode"`
}

func (c *Client) CreateOrder(ctx context.Context, req gateway.CreateOrderRequest) (*gateway.Order, error) {
	description := req.Description
	if len(description) > maxDescriptionLen {
		description = description[:maxDescriptionLen]
	}

	body := createPaymentRequest{
		OrderCode:   c.newOrderID(),
		Amount:      req.Amount,
		Description: description,
		CancelURL:   req.CancelURL,
		ReturnURL:   req.ReturnURL,
	}
	if !req.ExpiresAt.IsZero() {
		body.ExpiredAt = req.ExpiresAt.Unix()
	}
	body.Signature = Sign(c.checksumKey, map[string]string{
		"amount":      strconv.FormatInt(body.Amount, 10),
		"cancelUrl":   body.CancelURL,
		"description": body.Description,
		"orderCode":   strconv.FormatInt(body.OrderCode, 10),
		"returnUrl":   body.ReturnURL,
	})

	var data paymentLinkData
	if err := c.do(ctx, http.MethodPost, "/v2/payment-requests", body, &data); err != nil {
		c.log.Error("Failed to create payment link",
			zap.Error(err),
			zap.String("session_id", req.SessionID.String()),
			zap.Int64("order_code", body.OrderCode),
		)
		return nil, fmt.Errorf("create payos payment link: %w", err)
	}

	return &gateway.Order{
		OrderID:     strconv.FormatInt(body.OrderCode, 10),
		CheckoutURL: data.CheckoutURL,
		QRPayload:   data.QRCode,
		Status:      mapStatus(data.Status),
	}, nil
}

func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (entity.PaymentStatus, error) {
	var data paymentLinkData
	if err := c.do(ctx, http.MethodGet, "/v2/payment-requests/"+orderID, nil, &data); err != nil {
		return "", fmt.Errorf("get payos payment %s: %w", orderID, err)
	}
	return mapStatus(data.Status), nil
}

// SetExpired cancels the payment link so it can no longer be paid.
func (c *Client) SetExpired(ctx context.Context, orderID string) error {
	body := map[string]string{"cancellationReason": "booking session expired"}
	if err := c.do(ctx, http.MethodPost, "/v2/payment-requests/"+orderID+"/cancel", body, nil); err != nil {
		return fmt.Errorf("cancel payos payment %s: %w", orderID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("x-client-id", c.clientID)
	req.Header.Set("x-api-key", c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.log.Debug("PayOS call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("payos responded %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if env.Code != codeSuccess {
		return &APIError{HTTPStatus: resp.StatusCode, Code: env.Code, Desc: env.Desc}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

// APIError is a non-success code returned by PayOS.
type APIError struct {
	HTTPStatus int
	Code       string
	Desc       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payos error %s: %s (http %d)", e.Code, e.Desc, e.HTTPStatus)
}

// PROCESSING and UNDERPAID links can still be paid in full, so they read as pending.
func mapStatus(status string) entity.PaymentStatus {
	switch strings.ToUpper(status) {
	case "PAID":
		return entity.PaymentStatusPaid
	case "CANCELLED":
		return entity.PaymentStatusCancelled
	case "EXPIRED":
		return entity.PaymentStatusExpired
	default:
		return entity.PaymentStatusPending
	}
}
