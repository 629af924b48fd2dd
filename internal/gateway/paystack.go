package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"estateBack/internal/models"
)

const defaultPaystackBaseURL = "https://api.paystack.co"

type PaystackConfig struct {
	SecretKey string

	// https://api.paystack.co unless pointed at a sandbox/proxy
	BaseURL string

	// where the hosted checkout sends the browser back to
	CallbackURL string

	// When set, a successful transaction only counts as confirmed if it paid
	// at least Amount in Currency.
	Amount   decimal.Decimal
	Currency string

	Client *http.Client
	Logger *slog.Logger
}

// Paystack talks to the Paystack transaction API.
type Paystack struct {
	secretKey   string
	baseURL     *url.URL
	callbackURL string
	amount      decimal.Decimal
	currency    string

	httpClient *http.Client
	logger     *slog.Logger
}

func NewPaystack(cfg PaystackConfig) (*Paystack, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("paystack: secret key is required")
	}
	base := cfg.BaseURL
	if strings.TrimSpace(base) == "" {
		base = defaultPaystackBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	p := &Paystack{
		secretKey:   cfg.SecretKey,
		baseURL:     u,
		callbackURL: cfg.CallbackURL,
		amount:      cfg.Amount,
		currency:    strings.ToUpper(strings.TrimSpace(cfg.Currency)),
		httpClient:  client,
		logger:      logger,
	}
	logger.Info("Paystack initialized",
		"baseURL", safeURL(p.baseURL),
		"callbackURL_set", p.callbackURL != "",
	)
	return p, nil
}

func (p *Paystack) Mode() string { return ModeLive }

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializeRequest struct {
	Email       string         `json:"email"`
	Amount      string         `json:"amount"` // minor units
	Currency    string         `json:"currency,omitempty"`
	Reference   string         `json:"reference"`
	CallbackURL string         `json:"callback_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type verifyData struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

// Checkout creates a transaction and returns the hosted checkout data.
func (p *Paystack) Checkout(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	logger := p.logger.With("op", "Checkout", "reference", req.Reference)

	callbackURL := p.callbackURL
	if callbackURL != "" {
		callbackURL = withQuery(callbackURL, "propertyId", fmt.Sprint(req.PropertyID))
	}
	body, err := json.Marshal(initializeRequest{
		Email:       req.Email,
		Amount:      req.Amount.Shift(2).Round(0).String(),
		Currency:    req.Currency,
		Reference:   req.Reference,
		CallbackURL: callbackURL,
		Metadata: map[string]any{
			"client_id":   req.ClientID,
			"property_id": req.PropertyID,
			"agent_id":    req.AgentID,
		},
	})
	if err != nil {
		return Checkout{}, fmt.Errorf("encode initialize: %w", err)
	}

	raw, err := p.do(ctx, http.MethodPost, "/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return Checkout{}, err
	}
	var out initializeData
	if err := json.Unmarshal(raw, &out); err != nil {
		return Checkout{}, fmt.Errorf("decode initialize: %w", err)
	}
	if strings.TrimSpace(out.AuthorizationURL) == "" || strings.TrimSpace(out.AccessCode) == "" {
		return Checkout{}, fmt.Errorf("paystack initialize: empty authorization_url or access_code")
	}
	logger.Debug("checkout created")
	return Checkout{AuthorizationURL: out.AuthorizationURL, AccessCode: out.AccessCode}, nil
}

// QueryStatus asks Paystack for the state of reference. A reference Paystack
// has never seen is unknown, not an error.
func (p *Paystack) QueryStatus(ctx context.Context, reference string) (models.PaymentStatus, error) {
	logger := p.logger.With("op", "QueryStatus", "reference", reference)

	raw, err := p.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		if isReferenceNotFound(err) {
			logger.Info("paystack does not know the reference yet")
			return models.PaymentUnknown, nil
		}
		return models.PaymentUnknown, err
	}
	var out verifyData
	if err := json.Unmarshal(raw, &out); err != nil {
		return models.PaymentUnknown, fmt.Errorf("decode verify: %w", err)
	}
	if out.Reference != "" && out.Reference != reference {
		logger.Warn("paystack verify reference mismatch", "got", out.Reference)
		return models.PaymentUnknown, nil
	}
	status := mapStatus(out.Status)
	if status == models.PaymentConfirmed && !p.paidEnough(out) {
		logger.Warn("paystack amount or currency below the unlock fee",
			"amount_minor", out.Amount, "currency", out.Currency,
			"want_minor", p.amount.Shift(2).Round(0).String(), "want_currency", p.currency)
		return models.PaymentFailed, nil
	}
	return status, nil
}

func (p *Paystack) paidEnough(out verifyData) bool {
	if p.currency != "" && !strings.EqualFold(out.Currency, p.currency) {
		return false
	}
	if p.amount.IsPositive() && decimal.NewFromInt(out.Amount).LessThan(p.amount.Shift(2).Round(0)) {
		return false
	}
	return true
}

// isReferenceNotFound matches Paystack's answer for an unknown reference:
// a 4xx with status false and "Transaction reference not found".
func isReferenceNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode == http.StatusNotFound {
		return true
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 &&
		strings.Contains(strings.ToLower(apiErr.Body), "not found")
}

func (p *Paystack) do(ctx context.Context, method, endpointPath string, body io.Reader) (json.RawMessage, error) {
	endpoint := *p.baseURL
	endpoint.Path = path.Join(endpoint.Path, endpointPath)

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paystack %s: %w", endpointPath, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	p.logger.Debug("paystack raw", "path", endpointPath, "status", resp.Status, "body", trim(string(b), 2000))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(b)}
	}
	var env paystackEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode paystack envelope: %w", err)
	}
	if !env.Status {
		return nil, &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Body: env.Message}
	}
	return env.Data, nil
}

func mapStatus(s string) models.PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success":
		return models.PaymentConfirmed
	case "abandoned", "ongoing", "pending", "processing", "queued":
		return models.PaymentPending
	case "failed", "reversed":
		return models.PaymentFailed
	default:
		return models.PaymentUnknown
	}
}

func withQuery(raw, key, value string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

func trim(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

func safeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	c := *u
	c.User = nil
	return c.String()
}
