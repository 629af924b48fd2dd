package repositories

import (
	"context"
	"database/sql"
	"errors"

	"estateBack/internal/models"
)

// PropertyRepository reads listings with their agent joined in. Listings and
// users are owned by the catalogue side of the system; this repository never
// writes them.
type PropertyRepository struct {
	DB     *sql.DB
	Driver string
}

func NewPropertyRepository(db *sql.DB, driver string) *PropertyRepository {
	return &PropertyRepository{DB: db, Driver: driver}
}

func (r *PropertyRepository) FindPropertyByID(ctx context.Context, id int) (models.Property, error) {
	var p models.Property
	query := rebind(r.Driver, `
        SELECT p.id, p.title, p.address, u.id, u.name, u.phone, u.email
        FROM properties p
        JOIN users u ON u.id = p.agent_id
        WHERE p.id = ?
    `)
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Title, &p.Address,
		&p.Agent.ID, &p.Agent.Name, &p.Agent.Phone, &p.Agent.Email,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Property{}, models.ErrPropertyNotFound
	}
	if err != nil {
		return models.Property{}, err
	}
	return p, nil
}

func (r *PropertyRepository) FindAgentByID(ctx context.Context, id int) (models.Agent, error) {
	var a models.Agent
	query := rebind(r.Driver, `SELECT id, name, phone, email FROM users WHERE id = ? AND role = ?`)
	err := r.DB.QueryRowContext(ctx, query, id, models.RoleAgent).Scan(&a.ID, &a.Name, &a.Phone, &a.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Agent{}, models.ErrAgentNotFound
	}
	if err != nil {
		return models.Agent{}, err
	}
	return a, nil
}
