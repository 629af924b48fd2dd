package services

import (
	"context"

	"estateBack/internal/models"
)

// PropertyStore is the read side of the listing catalogue.
type PropertyStore interface {
	FindPropertyByID(ctx context.Context, id int) (models.Property, error)
	FindAgentByID(ctx context.Context, id int) (models.Agent, error)
}

// LedgerStore persists clients and their unlock ledger. CommitUnlock must
// write the unlocked agent and the payment record atomically.
type LedgerStore interface {
	FindClientByID(ctx context.Context, id int) (models.Client, error)
	SaveClient(ctx context.Context, c models.Client) error
	IsUnlocked(ctx context.Context, clientID, agentID int) (bool, error)
	CommitUnlock(ctx context.Context, clientID, agentID int, rec models.PaymentRecord) error
	ListHistory(ctx context.Context, clientID int) ([]models.PaymentRecord, error)
}

// UnlockNotifier pushes committed unlocks to the client's live sessions.
type UnlockNotifier interface {
	NotifyUnlocked(clientID int, rec models.PaymentRecord, agentPhone string) error
}

// ReceiptArchiver keeps a copy of every committed payment record.
type ReceiptArchiver interface {
	PutReceipt(ctx context.Context, rec models.PaymentRecord) (string, error)
}
