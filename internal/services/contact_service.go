package services

import (
	"context"

	"estateBack/internal/models"
)

// ContactService reveals an agent's contact to clients that unlocked it.
type ContactService struct {
	Properties PropertyStore
	Ledger     *LedgerService
}

func (s *ContactService) RevealContact(ctx context.Context, clientID, agentID int) (models.Agent, error) {
	agent, err := s.Properties.FindAgentByID(ctx, agentID)
	if err != nil {
		return models.Agent{}, err
	}
	ok, err := s.Ledger.IsUnlocked(ctx, clientID, agentID)
	if err != nil {
		return models.Agent{}, err
	}
	if !ok {
		return models.Agent{}, models.ErrForbidden
	}
	return agent, nil
}
