package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"estateBack/internal/gateway"
	"estateBack/internal/models"
	"estateBack/internal/reference"
)

// PaymentIntentService prepares unlock payments. It never writes the ledger:
// the only thing it produces is a reference and the gateway redirect data.
type PaymentIntentService struct {
	Properties PropertyStore
	Clients    LedgerStore
	Ledger     *LedgerService
	Gateway    gateway.Gateway
	References *reference.Generator

	Fee      decimal.Decimal
	Currency string
	Logger   *slog.Logger
}

func (s *PaymentIntentService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// Initialize creates a payment intent for clientID to unlock the agent of
// propertyID.
func (s *PaymentIntentService) Initialize(ctx context.Context, clientID, propertyID int) (models.PaymentIntent, error) {
	logger := s.logger().With("op", "Initialize", "client_id", clientID, "property_id", propertyID)

	if propertyID <= 0 {
		return models.PaymentIntent{}, fmt.Errorf("propertyId: %w", models.ErrMissingField)
	}
	property, err := s.Properties.FindPropertyByID(ctx, propertyID)
	if err != nil {
		return models.PaymentIntent{}, err
	}
	if property.Agent.ID == 0 {
		return models.PaymentIntent{}, models.ErrAgentNotFound
	}

	unlocked, err := s.Ledger.IsUnlocked(ctx, clientID, property.Agent.ID)
	if err != nil {
		return models.PaymentIntent{}, err
	}
	if unlocked {
		return models.PaymentIntent{}, models.ErrAgentAlreadyUnlocked
	}

	client, err := s.Clients.FindClientByID(ctx, clientID)
	if err != nil {
		return models.PaymentIntent{}, err
	}

	ref := s.References.GenerateFor(clientID, propertyID)
	checkout, err := s.Gateway.Checkout(ctx, gateway.CheckoutRequest{
		Reference:  ref,
		Email:      client.Email,
		Amount:     s.Fee,
		Currency:   s.Currency,
		ClientID:   clientID,
		PropertyID: propertyID,
		AgentID:    property.Agent.ID,
	})
	if err != nil {
		logger.Error("gateway checkout failed", "reference", ref, "error", err)
		return models.PaymentIntent{}, fmt.Errorf("gateway checkout: %w", err)
	}

	logger.Info("payment intent created", "reference", ref, "agent_id", property.Agent.ID, "mode", s.Gateway.Mode())
	return models.PaymentIntent{
		AuthorizationURL: checkout.AuthorizationURL,
		AccessCode:       checkout.AccessCode,
		Reference:        ref,
	}, nil
}
