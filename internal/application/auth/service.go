package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anime-auth-api/internal/application/otp"
	"github.com/anime-auth-api/internal/domain"
	"github.com/anime-auth-api/internal/pkg/validate"
)

// DynamoDB attribute names used in partial user updates.
const (
	fieldEmailVerified = "email_verified"
	fieldUpdatedAt     = "updated_at"
)

// Audit event types.
const (
	EventCodeRequested = "otp.requested"
	EventCodeVerified  = "otp.verified"
	EventPasswordReset = "password.reset"
)

const welcomeTimeout = 30 * time.Second

type CodeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type VerifyCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required"`
}

type CompletePasswordResetRequest struct {
	Email       string `json:"email" validate:"required,email"`
	OTP         string `json:"otp" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6,max=72"`
}

type Service interface {
	RequestCode(ctx context.Context, purpose domain.Purpose, req CodeRequest) error
	VerifyCode(ctx context.Context, purpose domain.Purpose, req VerifyCodeRequest) error
	CompletePasswordReset(ctx context.Context, req CompletePasswordResetRequest) error
}

type userStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

type emailSender interface {
	Send(ctx context.Context, to string, kind domain.EmailKind, data domain.EmailData) error
}

type credentialProvider interface {
	GetUIDByEmail(ctx context.Context, email string) (string, error)
	UpdatePassword(ctx context.Context, uid, newPassword string) error
}

type eventPublisher interface {
	Publish(ctx context.Context, eventType string, attrs map[string]string) error
}

// flow binds a purpose to its manager, outgoing template and success handler.
type flow struct {
	manager    *otp.Manager
	template   domain.EmailKind
	onVerified func(ctx context.Context, email string) error
}

type service struct {
	flows       map[domain.Purpose]*flow
	userRepo    userStore
	mailer      emailSender
	credentials credentialProvider
	events      eventPublisher
	appName     string
	now         func() time.Time
	async       func(func())
}

type ServiceDeps struct {
	OTPStore    otp.Store
	UserRepo    userStore
	Mailer      emailSender
	Credentials credentialProvider
	Events      eventPublisher // optional
	OTPOptions  otp.Options
	AppName     string
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		userRepo:    deps.UserRepo,
		mailer:      deps.Mailer,
		credentials: deps.Credentials,
		events:      deps.Events,
		appName:     deps.AppName,
		now:         func() time.Time { return time.Now().UTC() },
		async:       func(f func()) { go f() },
	}
	s.flows = map[domain.Purpose]*flow{
		domain.PurposeEmailVerification: {
			manager:    otp.NewManager(deps.OTPStore, domain.PurposeEmailVerification, deps.OTPOptions),
			template:   domain.EmailVerify,
			onVerified: s.confirmEmail,
		},
		domain.PurposePasswordReset: {
			manager:    otp.NewManager(deps.OTPStore, domain.PurposePasswordReset, deps.OTPOptions),
			template:   domain.EmailReset,
			onVerified: s.acceptResetCode,
		},
	}
	return s
}

func (s *service) RequestCode(ctx context.Context, purpose domain.Purpose, req CodeRequest) error {
	f, err := s.flow(purpose)
	if err != nil {
		return err
	}
	req.Email = normalizeEmail(req.Email)
	if err := validate.Struct(&req); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	email := req.Email

	u, err := s.lookupUser(ctx, email)
	if err != nil {
		return err
	}

	rec, err := f.manager.Issue(ctx, email)
	if err != nil {
		return err
	}

	data := domain.EmailData{
		Code:        rec.Code,
		DisplayName: u.DisplayName,
		AppName:     s.appName,
		ExpiresIn:   int(f.manager.TTL().Minutes()),
	}
	if err := s.mailer.Send(ctx, email, f.template, data); err != nil {
		slog.Error("failed to send OTP email", "purpose", purpose, "email", email, "err", err)
		// Never leave a code behind that the user did not receive.
		if delErr := f.manager.Discard(ctx, email); delErr != nil {
			slog.Warn("failed to delete undelivered OTP record", "purpose", purpose, "email", email, "err", delErr)
		}
		return fmt.Errorf("failed to send verification email: %w", domain.ErrUpstream)
	}

	s.publish(ctx, EventCodeRequested, purpose, email)
	return nil
}

func (s *service) VerifyCode(ctx context.Context, purpose domain.Purpose, req VerifyCodeRequest) error {
	f, err := s.flow(purpose)
	if err != nil {
		return err
	}
	req.Email = normalizeEmail(req.Email)
	if err := validate.Struct(&req); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	email := req.Email

	if _, err := f.manager.Check(ctx, email, strings.TrimSpace(req.OTP)); err != nil {
		return err
	}
	if err := f.onVerified(ctx, email); err != nil {
		return err
	}

	s.publish(ctx, EventCodeVerified, purpose, email)
	return nil
}

func (s *service) CompletePasswordReset(ctx context.Context, req CompletePasswordResetRequest) error {
	req.Email = normalizeEmail(req.Email)
	if err := validate.Struct(&req); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	email := req.Email
	m := s.flows[domain.PurposePasswordReset].manager

	// The verified flag from the validate-code step is not trusted here;
	// the code is checked again in full.
	if _, err := m.Check(ctx, email, strings.TrimSpace(req.OTP)); err != nil {
		return err
	}

	uid, err := s.credentials.GetUIDByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("user not found: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("resolve account: %v: %w", err, domain.ErrUpstream)
	}
	if err := s.credentials.UpdatePassword(ctx, uid, req.NewPassword); err != nil {
		slog.Error("failed to update password", "user_id", uid, "err", err)
		return fmt.Errorf("failed to update password: %w", domain.ErrUpstream)
	}
	if err := s.userRepo.Update(ctx, uid, map[string]interface{}{fieldUpdatedAt: s.now()}); err != nil {
		slog.Warn("failed to stamp user after password reset", "user_id", uid, "err", err)
	}
	if err := m.Discard(ctx, email); err != nil {
		slog.Warn("failed to delete consumed reset code", "email", email, "err", err)
	}

	s.publish(ctx, EventPasswordReset, domain.PurposePasswordReset, email)
	return nil
}

// confirmEmail marks the account verified, consumes the code and sends the
// welcome message in the background.
func (s *service) confirmEmail(ctx context.Context, email string) error {
	u, err := s.lookupUser(ctx, email)
	if err != nil {
		return err
	}
	if err := s.userRepo.Update(ctx, u.UserID, map[string]interface{}{
		fieldEmailVerified: true,
		fieldUpdatedAt:     s.now(),
	}); err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	if err := s.flows[domain.PurposeEmailVerification].manager.Discard(ctx, email); err != nil {
		slog.Warn("failed to delete consumed verification code", "email", email, "err", err)
	}

	bg := context.WithoutCancel(ctx)
	data := domain.EmailData{DisplayName: u.DisplayName, AppName: s.appName}
	s.async(func() {
		ctx, cancel := context.WithTimeout(bg, welcomeTimeout)
		defer cancel()
		if err := s.mailer.Send(ctx, email, domain.EmailWelcome, data); err != nil {
			slog.Warn("failed to send welcome email", "email", email, "err", err)
		}
	})
	return nil
}

// acceptResetCode records that the code was accepted. The record stays
// until the password change consumes it.
func (s *service) acceptResetCode(ctx context.Context, email string) error {
	if err := s.flows[domain.PurposePasswordReset].manager.MarkVerified(ctx, email); err != nil {
		return fmt.Errorf("mark reset code verified: %w", err)
	}
	return nil
}

func (s *service) lookupUser(ctx context.Context, email string) (*domain.User, error) {
	u, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}
	return u, nil
}

func (s *service) flow(purpose domain.Purpose) (*flow, error) {
	f, ok := s.flows[purpose]
	if !ok {
		return nil, fmt.Errorf("unknown purpose %q: %w", purpose, domain.ErrBadRequest)
	}
	return f, nil
}

func (s *service) publish(ctx context.Context, eventType string, purpose domain.Purpose, email string) {
	if s.events == nil {
		return
	}
	attrs := map[string]string{"purpose": string(purpose), "email": email}
	if err := s.events.Publish(ctx, eventType, attrs); err != nil {
		slog.Warn("failed to publish audit event", "event", eventType, "err", err)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
