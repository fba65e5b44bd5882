package credential

import (
	"context"
	"fmt"

	"github.com/anime-auth-api/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

const fieldPasswordHash = "password_hash"

type userStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

// Provider manages password credentials stored as bcrypt hashes on the
// user record.
type Provider struct {
	users userStore
	cost  int
}

func NewProvider(users userStore) *Provider {
	return &Provider{users: users, cost: bcrypt.DefaultCost}
}

// GetUIDByEmail resolves the account id for email.
func (p *Provider) GetUIDByEmail(ctx context.Context, email string) (string, error) {
	u, err := p.users.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	return u.UserID, nil
}

func (p *Provider) UpdatePassword(ctx context.Context, uid, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), p.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return p.users.Update(ctx, uid, map[string]interface{}{fieldPasswordHash: string(hash)})
}
