package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"estateBack/internal/models"
)

var mysqlLedgerDDL = []string{`
CREATE TABLE IF NOT EXISTS client_unlocked_agents (
    client_id INT NOT NULL,
    agent_id INT NOT NULL,
    unlocked_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (client_id, agent_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
`, `
CREATE TABLE IF NOT EXISTS client_payment_history (
    id VARCHAR(36) NOT NULL,
    client_id INT NOT NULL,
    property_id INT NOT NULL,
    agent_id INT NOT NULL,
    amount DECIMAL(12,2) NOT NULL,
    currency VARCHAR(8) NOT NULL DEFAULT '',
    reference VARCHAR(128) NOT NULL,
    paid_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (id),
    UNIQUE KEY uniq_payment_reference (reference),
    UNIQUE KEY uniq_payment_client_agent (client_id, agent_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
`}

var pgLedgerDDL = []string{`
CREATE TABLE IF NOT EXISTS client_unlocked_agents (
    client_id INTEGER NOT NULL,
    agent_id INTEGER NOT NULL,
    unlocked_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (client_id, agent_id)
)`, `
CREATE TABLE IF NOT EXISTS client_payment_history (
    id VARCHAR(36) PRIMARY KEY,
    client_id INTEGER NOT NULL,
    property_id INTEGER NOT NULL,
    agent_id INTEGER NOT NULL,
    amount NUMERIC(12,2) NOT NULL,
    currency VARCHAR(8) NOT NULL DEFAULT '',
    reference VARCHAR(128) NOT NULL,
    paid_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT uniq_payment_reference UNIQUE (reference),
    CONSTRAINT uniq_payment_client_agent UNIQUE (client_id, agent_id)
)`}

// LedgerRepository stores the unlocked-agent set and payment history of
// clients. The (client_id, agent_id) keys make a second commit for the same
// pair fail even if two instances race.
type LedgerRepository struct {
	DB     *sql.DB
	Driver string

	once sync.Once
	err  error
}

func NewLedgerRepository(db *sql.DB, driver string) *LedgerRepository {
	return &LedgerRepository{DB: db, Driver: driver}
}

func (r *LedgerRepository) ensureSchema(ctx context.Context) error {
	r.once.Do(func() {
		ddl := mysqlLedgerDDL
		if r.Driver == DriverPgx {
			ddl = pgLedgerDDL
		}
		for _, stmt := range ddl {
			if _, err := r.DB.ExecContext(ctx, stmt); err != nil {
				r.err = fmt.Errorf("ensure ledger schema: %w", err)
				return
			}
		}
	})
	return r.err
}

func (r *LedgerRepository) q(query string) string { return rebind(r.Driver, query) }

// IsUnlocked reports whether clientID has unlocked agentID.
func (r *LedgerRepository) IsUnlocked(ctx context.Context, clientID, agentID int) (bool, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return false, err
	}
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		r.q(`SELECT EXISTS(SELECT 1 FROM client_unlocked_agents WHERE client_id = ? AND agent_id = ?)`),
		clientID, agentID).Scan(&exists)
	return exists, err
}

// CommitUnlock inserts the agent into the unlocked set and appends rec in one
// transaction. A collision on the (client, agent) keys is reported as
// models.ErrAgentAlreadyUnlocked, one on the reference as
// models.ErrReferenceUsed. Either way nothing is written.
func (r *LedgerRepository) CommitUnlock(ctx context.Context, clientID, agentID int, rec models.PaymentRecord) (err error) {
	if err = r.ensureSchema(ctx); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Date.IsZero() {
		rec.Date = time.Now()
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		r.q(`INSERT INTO client_unlocked_agents (client_id, agent_id, unlocked_at) VALUES (?, ?, ?)`),
		clientID, agentID, rec.Date); err != nil {
		if isDuplicateKeyError(err) {
			err = models.ErrAgentAlreadyUnlocked
		}
		return err
	}

	if _, err = tx.ExecContext(ctx,
		r.q(`INSERT INTO client_payment_history (id, client_id, property_id, agent_id, amount, currency, reference, paid_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, clientID, rec.PropertyID, agentID, rec.Amount, rec.Currency, rec.Reference, rec.Date); err != nil {
		if isDuplicateKeyError(err) {
			if duplicateKeyName(err) == keyPaymentClientAgent {
				err = models.ErrAgentAlreadyUnlocked
			} else {
				// the agent row above went in, so only the reference can collide
				err = models.ErrReferenceUsed
			}
		}
		return err
	}

	return tx.Commit()
}

// FindClientByID loads the client together with its ledger.
func (r *LedgerRepository) FindClientByID(ctx context.Context, clientID int) (models.Client, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return models.Client{}, err
	}
	var c models.Client
	err := r.DB.QueryRowContext(ctx,
		r.q(`SELECT id, name, email, role, created_at FROM users WHERE id = ?`), clientID).
		Scan(&c.ID, &c.Name, &c.Email, &c.Role, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Client{}, models.ErrClientNotFound
	}
	if err != nil {
		return models.Client{}, err
	}

	if c.UnlockedAgents, err = r.listUnlocked(ctx, clientID); err != nil {
		return models.Client{}, err
	}
	if c.PaymentHistory, err = r.ListHistory(ctx, clientID); err != nil {
		return models.Client{}, err
	}
	return c, nil
}

// SaveClient upserts the profile columns of a client. The ledger itself is
// only written through CommitUnlock.
func (r *LedgerRepository) SaveClient(ctx context.Context, c models.Client) error {
	if c.ID == 0 {
		return fmt.Errorf("save client: %w", models.ErrMissingField)
	}
	res, err := r.DB.ExecContext(ctx,
		r.q(`UPDATE users SET name = ?, email = ? WHERE id = ?`), c.Name, c.Email, c.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrClientNotFound
	}
	return nil
}

func (r *LedgerRepository) listUnlocked(ctx context.Context, clientID int) ([]int, error) {
	rows, err := r.DB.QueryContext(ctx,
		r.q(`SELECT agent_id FROM client_unlocked_agents WHERE client_id = ? ORDER BY unlocked_at, agent_id`), clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListHistory returns the client's payment records oldest first.
func (r *LedgerRepository) ListHistory(ctx context.Context, clientID int) ([]models.PaymentRecord, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx,
		r.q(`SELECT id, client_id, property_id, agent_id, amount, currency, reference, paid_at FROM client_payment_history WHERE client_id = ? ORDER BY paid_at, id`), clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []models.PaymentRecord{}
	for rows.Next() {
		var rec models.PaymentRecord
		if err := rows.Scan(&rec.ID, &rec.ClientID, &rec.PropertyID, &rec.AgentID, &rec.Amount, &rec.Currency, &rec.Reference, &rec.Date); err != nil {
			return nil, err
		}
		history = append(history, rec)
	}
	return history, rows.Err()
}
