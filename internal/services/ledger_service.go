package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"estateBack/internal/lock"
	"estateBack/internal/models"
)

// LedgerService guards the unlock ledger. Commits for one client run one at a
// time so the unlocked check and the insert cannot interleave.
type LedgerService struct {
	Store  LedgerStore
	Locker lock.Locker
}

func NewLedgerService(store LedgerStore, locker lock.Locker) *LedgerService {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	return &LedgerService{Store: store, Locker: locker}
}

func clientLockKey(clientID int) string {
	return "client:" + strconv.Itoa(clientID)
}

func (s *LedgerService) IsUnlocked(ctx context.Context, clientID, agentID int) (bool, error) {
	return s.Store.IsUnlocked(ctx, clientID, agentID)
}

// CommitUnlock adds agentID to the client's unlocked set and appends rec.
// It returns models.ErrAgentAlreadyUnlocked when the agent was unlocked by a
// prior or concurrent commit, and models.ErrReferenceUsed when rec's reference
// already paid for another unlock.
func (s *LedgerService) CommitUnlock(ctx context.Context, clientID, agentID int, rec models.PaymentRecord) error {
	release, err := s.Locker.Lock(ctx, clientLockKey(clientID))
	if err != nil {
		return fmt.Errorf("lock client %d: %w", clientID, err)
	}
	defer release()

	unlocked, err := s.Store.IsUnlocked(ctx, clientID, agentID)
	if err != nil {
		return err
	}
	if unlocked {
		return models.ErrAgentAlreadyUnlocked
	}
	return s.Store.CommitUnlock(ctx, clientID, agentID, rec)
}

// History returns the caller's unlocked agents and payments. A client that
// never paid gets an empty ledger.
func (s *LedgerService) History(ctx context.Context, clientID int) (models.UnlockHistory, error) {
	out := models.UnlockHistory{
		ClientID:       clientID,
		UnlockedAgents: []int{},
		PaymentHistory: []models.PaymentRecord{},
	}
	c, err := s.Store.FindClientByID(ctx, clientID)
	if errors.Is(err, models.ErrClientNotFound) {
		return out, nil
	}
	if err != nil {
		return out, err
	}
	if c.UnlockedAgents != nil {
		out.UnlockedAgents = c.UnlockedAgents
	}
	if c.PaymentHistory != nil {
		out.PaymentHistory = c.PaymentHistory
	}
	return out, nil
}
