package gateway

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"estateBack/internal/models"
)

const (
	DemoAccessCode = "demo_access_code"

	// served by the API itself; it bounces straight to the payment callback
	DemoCheckoutPath = "/payment/demo-checkout"
)

// Demo stands in for a real gateway: checkout URLs are derived from the
// reference and every status query answers confirmed.
type Demo struct {
	checkoutBase string
}

func NewDemo(checkoutBase string) *Demo {
	checkoutBase = strings.TrimRight(strings.TrimSpace(checkoutBase), "/")
	if checkoutBase == "" {
		checkoutBase = DemoCheckoutPath
	}
	return &Demo{checkoutBase: checkoutBase}
}

func (d *Demo) Mode() string { return ModeDemo }

func (d *Demo) Checkout(_ context.Context, req CheckoutRequest) (Checkout, error) {
	checkoutURL := d.checkoutBase + "/" + url.PathEscape(req.Reference)
	if req.PropertyID > 0 {
		checkoutURL = withQuery(checkoutURL, "propertyId", strconv.Itoa(req.PropertyID))
	}
	return Checkout{
		AuthorizationURL: checkoutURL,
		AccessCode:       DemoAccessCode,
	}, nil
}

func (d *Demo) QueryStatus(context.Context, string) (models.PaymentStatus, error) {
	return models.PaymentConfirmed, nil
}
