package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"estateBack/internal/gateway"
	"estateBack/internal/models"
	"estateBack/internal/reference"
)

const defaultGatewayTimeout = 10 * time.Second

// VerificationService confirms payments with the gateway and commits the
// unlock. Client verification and the gateway callback share commitIfConfirmed.
type VerificationService struct {
	Properties PropertyStore
	Ledger     *LedgerService
	Gateway    gateway.Gateway
	References *reference.Generator

	Fee      decimal.Decimal
	Currency string
	// bound on a single gateway status query
	Timeout time.Duration

	Notifier UnlockNotifier
	Receipts ReceiptArchiver
	Logger   *slog.Logger

	now func() time.Time
}

func (s *VerificationService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *VerificationService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Verify is the client-initiated path. The reference must belong to clientID.
func (s *VerificationService) Verify(ctx context.Context, ref string, propertyID, clientID int) (models.VerifyOutcome, error) {
	parsed, err := s.parse(ref, propertyID)
	if err != nil {
		return models.VerifyOutcome{}, err
	}
	if parsed.ClientID != clientID {
		return models.VerifyOutcome{}, fmt.Errorf("%w: reference belongs to another client", models.ErrInvalidReference)
	}
	return s.commitIfConfirmed(ctx, ref, parsed, propertyID)
}

// HandleCallback is the gateway-initiated path. sessionClientID is zero when
// the browser came back without a session; the reference then names the client.
func (s *VerificationService) HandleCallback(ctx context.Context, ref string, propertyID, sessionClientID int) (models.VerifyOutcome, error) {
	parsed, err := s.parse(ref, propertyID)
	if err != nil {
		return models.VerifyOutcome{}, err
	}
	if sessionClientID != 0 && parsed.ClientID != sessionClientID {
		return models.VerifyOutcome{}, fmt.Errorf("%w: reference belongs to another client", models.ErrInvalidReference)
	}
	return s.commitIfConfirmed(ctx, ref, parsed, propertyID)
}

func (s *VerificationService) parse(ref string, propertyID int) (reference.Parsed, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return reference.Parsed{}, fmt.Errorf("reference: %w", models.ErrMissingField)
	}
	if propertyID <= 0 {
		return reference.Parsed{}, fmt.Errorf("propertyId: %w", models.ErrMissingField)
	}
	parsed, err := reference.Parse(ref)
	if err != nil {
		return reference.Parsed{}, err
	}
	if err := s.References.Check(parsed, propertyID); err != nil {
		return reference.Parsed{}, err
	}
	return parsed, nil
}

func (s *VerificationService) commitIfConfirmed(ctx context.Context, ref string, parsed reference.Parsed, propertyID int) (models.VerifyOutcome, error) {
	clientID := parsed.ClientID
	logger := s.logger().With("op", "commitIfConfirmed", "reference", ref, "client_id", clientID, "property_id", propertyID)

	property, err := s.Properties.FindPropertyByID(ctx, propertyID)
	if err != nil {
		return models.VerifyOutcome{}, err
	}
	agent := property.Agent
	if agent.ID == 0 {
		return models.VerifyOutcome{}, models.ErrAgentNotFound
	}

	unlocked, err := s.Ledger.IsUnlocked(ctx, clientID, agent.ID)
	if err != nil {
		return models.VerifyOutcome{}, err
	}
	if unlocked {
		return models.VerifyOutcome{}, models.ErrAgentAlreadyUnlocked
	}

	status, err := s.queryStatus(ctx, ref)
	if err != nil {
		if gateway.IsTimeout(err) {
			logger.Warn("gateway status query timed out", "error", err)
			return models.VerifyOutcome{}, fmt.Errorf("gateway timeout: %w", models.ErrPaymentNotConfirmed)
		}
		logger.Error("gateway status query failed", "error", err)
		return models.VerifyOutcome{}, fmt.Errorf("gateway status: %w", err)
	}
	if status != models.PaymentConfirmed {
		logger.Info("payment not confirmed", "status", status)
		return models.VerifyOutcome{}, fmt.Errorf("status %s: %w", status, models.ErrPaymentNotConfirmed)
	}

	rec := models.PaymentRecord{
		ID:         uuid.NewString(),
		ClientID:   clientID,
		Amount:     s.Fee,
		Currency:   s.Currency,
		PropertyID: propertyID,
		AgentID:    agent.ID,
		Reference:  ref,
		Date:       s.clock(),
	}
	out := models.VerifyOutcome{AgentID: agent.ID, AgentPhone: agent.Phone, Reference: ref}

	err = s.Ledger.CommitUnlock(ctx, clientID, agent.ID, rec)
	if errors.Is(err, models.ErrAgentAlreadyUnlocked) {
		// a concurrent verification committed between our check and the commit;
		// the phone is only handed out if that unlock really is on the ledger
		unlocked, uerr := s.Ledger.IsUnlocked(ctx, clientID, agent.ID)
		if uerr != nil {
			logger.Error("re-check after commit conflict failed", "error", uerr)
			return models.VerifyOutcome{}, uerr
		}
		if !unlocked {
			logger.Warn("commit conflict without an unlock on the ledger", "agent_id", agent.ID)
			return models.VerifyOutcome{}, err
		}
		logger.Info("unlock already committed concurrently")
		out.Duplicate = true
		return out, nil
	}
	if errors.Is(err, models.ErrReferenceUsed) {
		logger.Warn("payment reference already consumed", "agent_id", agent.ID)
		return models.VerifyOutcome{}, err
	}
	if err != nil {
		logger.Error("commit unlock failed", "error", err)
		return models.VerifyOutcome{}, err
	}

	logger.Info("agent unlocked", "agent_id", agent.ID, "mode", s.Gateway.Mode())
	s.afterCommit(ctx, logger, rec, agent.Phone)
	return out, nil
}

func (s *VerificationService) queryStatus(ctx context.Context, ref string) (models.PaymentStatus, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.Gateway.QueryStatus(qctx, ref)
}

// afterCommit runs the side effects of a committed unlock. Failures are logged
// only; the unlock already stands.
func (s *VerificationService) afterCommit(ctx context.Context, logger *slog.Logger, rec models.PaymentRecord, agentPhone string) {
	if s.Notifier != nil {
		if err := s.Notifier.NotifyUnlocked(rec.ClientID, rec, agentPhone); err != nil {
			logger.Warn("unlock notification failed", "error", err)
		}
	}
	if s.Receipts != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		key, err := s.Receipts.PutReceipt(rctx, rec)
		if err != nil {
			logger.Warn("receipt upload failed", "error", err)
			return
		}
		logger.Debug("receipt stored", "key", key)
	}
}
