package models

import (
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	RoleClient = "client"
	RoleAgent  = "agent"
	RoleAdmin  = "admin"
)

// Client is the paying side of an unlock. UnlockedAgents and PaymentHistory are
// only ever changed by a committed unlock.
type Client struct {
	ID             int             `json:"id"`
	Name           string          `json:"name"`
	Email          string          `json:"email,omitempty"`
	Role           string          `json:"role"`
	UnlockedAgents []int           `json:"unlocked_agents"`
	PaymentHistory []PaymentRecord `json:"payment_history"`
	CreatedAt      time.Time       `json:"created_at"`
}

// HasUnlocked reports whether agentID is in the client's unlocked set.
func (c Client) HasUnlocked(agentID int) bool {
	for _, id := range c.UnlockedAgents {
		if id == agentID {
			return true
		}
	}
	return false
}

type Claims struct {
	UserID uint   `json:"user_id"`
	Role   string `json:"role"`
	jwt.StandardClaims
}

type contextKey string

const (
	ContextUserID contextKey = "user_id"
	ContextRole   contextKey = "role"
)
