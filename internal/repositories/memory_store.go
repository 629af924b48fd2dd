package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"estateBack/internal/models"
)

// MemoryStore keeps properties, clients and their ledgers in process. It backs
// DATABASE_DRIVER=memory and the service tests; CommitUnlock has the same
// check-then-insert semantics as the SQL repository.
type MemoryStore struct {
	mu         sync.Mutex
	properties map[int]models.Property
	agents     map[int]models.Agent
	clients    map[int]*models.Client
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		properties: make(map[int]models.Property),
		agents:     make(map[int]models.Agent),
		clients:    make(map[int]*models.Client),
	}
}

// AddProperty registers p and its agent.
func (m *MemoryStore) AddProperty(p models.Property) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.properties[p.ID] = p
	m.agents[p.Agent.ID] = p.Agent
}

func (m *MemoryStore) FindPropertyByID(_ context.Context, id int) (models.Property, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.properties[id]
	if !ok {
		return models.Property{}, models.ErrPropertyNotFound
	}
	return p, nil
}

func (m *MemoryStore) FindAgentByID(_ context.Context, id int) (models.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return models.Agent{}, models.ErrAgentNotFound
	}
	return a, nil
}

func (m *MemoryStore) SaveClient(_ context.Context, c models.Client) error {
	if c.ID == 0 {
		return models.ErrMissingField
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := cloneClient(c)
	if cur, ok := m.clients[c.ID]; ok {
		// the ledger is never replaced through SaveClient
		cp.UnlockedAgents = cur.UnlockedAgents
		cp.PaymentHistory = cur.PaymentHistory
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.clients[c.ID] = &cp
	return nil
}

func (m *MemoryStore) FindClientByID(_ context.Context, id int) (models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok {
		return models.Client{}, models.ErrClientNotFound
	}
	return cloneClient(*c), nil
}

func (m *MemoryStore) IsUnlocked(_ context.Context, clientID, agentID int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[clientID]
	if !ok {
		return false, nil
	}
	return c.HasUnlocked(agentID), nil
}

func (m *MemoryStore) CommitUnlock(_ context.Context, clientID, agentID int, rec models.PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[clientID]
	if !ok {
		// ledger rows are keyed by client id only, as in SQL
		c = &models.Client{ID: clientID, Role: models.RoleClient, CreatedAt: time.Now()}
		m.clients[clientID] = c
	}
	if c.HasUnlocked(agentID) {
		return models.ErrAgentAlreadyUnlocked
	}
	for _, h := range c.PaymentHistory {
		if h.Reference == rec.Reference {
			return models.ErrReferenceUsed
		}
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Date.IsZero() {
		rec.Date = time.Now()
	}
	rec.ClientID = clientID
	rec.AgentID = agentID
	c.UnlockedAgents = append(c.UnlockedAgents, agentID)
	c.PaymentHistory = append(c.PaymentHistory, rec)
	return nil
}

func (m *MemoryStore) ListHistory(_ context.Context, clientID int) ([]models.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[clientID]
	if !ok {
		return []models.PaymentRecord{}, nil
	}
	out := append([]models.PaymentRecord{}, c.PaymentHistory...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func cloneClient(c models.Client) models.Client {
	c.UnlockedAgents = append([]int{}, c.UnlockedAgents...)
	c.PaymentHistory = append([]models.PaymentRecord{}, c.PaymentHistory...)
	return c
}
