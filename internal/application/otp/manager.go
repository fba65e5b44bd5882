package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/anime-auth-api/internal/domain"
)

const (
	DefaultTTL         = 10 * time.Minute
	DefaultMaxAttempts = 3

	codeMin   = 100000
	codeRange = 900000 // codes are uniform in [100000, 999999]

	cleanupTimeout = 5 * time.Second
)

// Store is the persistence contract for OTP records. Get returns an error
// wrapping domain.ErrNotFound when no record exists.
type Store interface {
	Put(ctx context.Context, rec *domain.OTPRecord) error
	Get(ctx context.Context, purpose domain.Purpose, email string) (*domain.OTPRecord, error)
	IncrementAttempts(ctx context.Context, purpose domain.Purpose, email string) error
	MarkVerified(ctx context.Context, purpose domain.Purpose, email string, at time.Time) error
	Delete(ctx context.Context, purpose domain.Purpose, email string) error
}

// Manager issues and checks codes for a single purpose. It holds no
// record state of its own; everything lives in the Store.
type Manager struct {
	store       Store
	purpose     domain.Purpose
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
	generate    func() (string, error)
}

type Options struct {
	TTL         time.Duration
	MaxAttempts int
}

func NewManager(store Store, purpose domain.Purpose, opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	return &Manager{
		store:       store,
		purpose:     purpose,
		ttl:         opts.TTL,
		maxAttempts: opts.MaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
		generate:    GenerateCode,
	}
}

func (m *Manager) Purpose() domain.Purpose { return m.purpose }

// TTL is how long an issued code stays valid.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue creates a fresh code for email, overwriting any live record.
func (m *Manager) Issue(ctx context.Context, email string) (*domain.OTPRecord, error) {
	code, err := m.generate()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	now := m.now()
	rec := &domain.OTPRecord{
		Email:     email,
		Purpose:   m.purpose,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
		Attempts:  0,
	}
	if err := m.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("store %s code: %w", m.purpose, err)
	}
	return rec, nil
}

// Check validates code against the live record for email. The checks run
// in a fixed order: presence, expiry, attempt cap, match. Expired and
// exhausted records are deleted; a mismatch bumps the attempt counter.
// A successful check leaves the record untouched.
func (m *Manager) Check(ctx context.Context, email, code string) (*domain.OTPRecord, error) {
	rec, err := m.store.Get(ctx, m.purpose, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("no active code for this email: %w", domain.ErrNotFound)
		}
		return nil, err
	}

	if rec.Expired(m.now()) {
		m.discard(ctx, email)
		return nil, fmt.Errorf("code expired, request a new one: %w", domain.ErrExpired)
	}

	if rec.Attempts >= m.maxAttempts {
		m.discard(ctx, email)
		return nil, fmt.Errorf("too many attempts, request a new code: %w", domain.ErrTooManyAttempts)
	}

	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) != 1 {
		// Read-check-write without a transaction: concurrent misses may
		// each observe the same counter value.
		if err := m.store.IncrementAttempts(ctx, m.purpose, email); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("record attempt: %w", err)
		}
		return nil, fmt.Errorf("invalid code: %w", domain.ErrInvalidCode)
	}

	return rec, nil
}

// MarkVerified flags the record as accepted without consuming it.
func (m *Manager) MarkVerified(ctx context.Context, email string) error {
	return m.store.MarkVerified(ctx, m.purpose, email, m.now())
}

// Discard removes the record for email. The delete outlives cancellation
// of ctx, bounded by cleanupTimeout, so a caller that has gone away still
// leaves no record behind.
func (m *Manager) Discard(ctx context.Context, email string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	return m.store.Delete(ctx, m.purpose, email)
}

func (m *Manager) discard(ctx context.Context, email string) {
	if err := m.Discard(ctx, email); err != nil {
		slog.Warn("failed to delete OTP record", "purpose", m.purpose, "email", email, "err", err)
	}
}

// GenerateCode returns a uniformly random six-digit decimal code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeRange))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+codeMin), nil
}
