package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anime-auth-api/internal/domain"
	"github.com/anime-auth-api/internal/pkg/id"
	"github.com/anime-auth-api/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

type Service interface {
	Register(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error)
}

type userStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
}

type service struct {
	repo userStore
	now  func() time.Time
}

type ServiceDeps struct {
	UserRepo userStore
}

func NewService(deps ServiceDeps) Service {
	return &service{
		repo: deps.UserRepo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Register creates an unverified account. The caller is expected to start
// the email verification flow afterwards.
func (s *service) Register(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if err := validate.Struct(&req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}

	if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
		return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := s.now()
	u := &domain.User{
		UserID:        id.New(),
		Email:         req.Email,
		DisplayName:   req.DisplayName,
		PasswordHash:  string(hash),
		EmailVerified: false,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Put(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
