// Package gateway contains the payment gateway integrations used by the
// unlock flow. The demo gateway confirms every reference and must never be
// enabled in a real deployment.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/shopspring/decimal"

	"estateBack/internal/models"
)

const (
	ModeDemo = "demo"
	ModeLive = "live"
)

// CheckoutRequest describes a payment the client is about to make.
type CheckoutRequest struct {
	Reference  string
	Email      string
	Amount     decimal.Decimal
	Currency   string
	ClientID   int
	PropertyID int
	AgentID    int
}

// Checkout is the redirect data handed to the client.
type Checkout struct {
	AuthorizationURL string
	AccessCode       string
}

// Gateway is the capability the payment services depend on.
type Gateway interface {
	Mode() string
	Checkout(ctx context.Context, req CheckoutRequest) (Checkout, error)
	QueryStatus(ctx context.Context, reference string) (models.PaymentStatus, error)
}

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	bt := strings.TrimSpace(e.Body)
	if bt == "" {
		return fmt.Sprintf("gateway error: %s", e.Status)
	}
	return fmt.Sprintf("gateway error: %s: %s", e.Status, bt)
}

// IsTimeout reports whether err came from a deadline or transport timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
