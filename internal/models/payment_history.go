package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentRecord is one committed unlock payment. Records are append-only.
type PaymentRecord struct {
	ID         string          `json:"id"`
	ClientID   int             `json:"client_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	PropertyID int             `json:"property_id"`
	AgentID    int             `json:"agent_id"`
	Reference  string          `json:"reference"`
	Date       time.Time       `json:"date"`
}

// PaymentIntent is what initialize hands back to the client for the gateway redirect.
type PaymentIntent struct {
	AuthorizationURL string `json:"authorizationUrl"`
	AccessCode       string `json:"accessCode"`
	Reference        string `json:"reference"`
}

// VerifyOutcome is returned by a successful verification.
type VerifyOutcome struct {
	AgentID    int    `json:"agentId"`
	AgentPhone string `json:"agentPhone"`
	Reference  string `json:"reference"`
	// Duplicate is set when a concurrent verification committed first.
	Duplicate bool `json:"-"`
}

// PaymentStatus is the gateway's view of a reference.
type PaymentStatus string

const (
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentPending   PaymentStatus = "pending"
	PaymentFailed    PaymentStatus = "failed"
	PaymentUnknown   PaymentStatus = "unknown"
)

// UnlockHistory is the per-client view served by the history endpoint.
type UnlockHistory struct {
	ClientID       int             `json:"client_id"`
	UnlockedAgents []int           `json:"unlocked_agents"`
	PaymentHistory []PaymentRecord `json:"payment_history"`
}
