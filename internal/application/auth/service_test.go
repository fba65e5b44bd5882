package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anime-auth-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockOTPStore struct{ mock.Mock }

func (m *mockOTPStore) Put(ctx context.Context, rec *domain.OTPRecord) error {
	return m.Called(ctx, rec).Error(0)
}
func (m *mockOTPStore) Get(ctx context.Context, p domain.Purpose, email string) (*domain.OTPRecord, error) {
	args := m.Called(ctx, p, email)
	if r, _ := args.Get(0).(*domain.OTPRecord); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockOTPStore) IncrementAttempts(ctx context.Context, p domain.Purpose, email string) error {
	return m.Called(ctx, p, email).Error(0)
}
func (m *mockOTPStore) MarkVerified(ctx context.Context, p domain.Purpose, email string, at time.Time) error {
	return m.Called(ctx, p, email, at).Error(0)
}
func (m *mockOTPStore) Delete(ctx context.Context, p domain.Purpose, email string) error {
	return m.Called(ctx, p, email).Error(0)
}

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	return m.Called(ctx, userID, updates).Error(0)
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) Send(ctx context.Context, to string, kind domain.EmailKind, data domain.EmailData) error {
	return m.Called(ctx, to, kind, data).Error(0)
}

type mockCredentials struct{ mock.Mock }

func (m *mockCredentials) GetUIDByEmail(ctx context.Context, email string) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}
func (m *mockCredentials) UpdatePassword(ctx context.Context, uid, newPassword string) error {
	return m.Called(ctx, uid, newPassword).Error(0)
}

type mockEvents struct{ mock.Mock }

func (m *mockEvents) Publish(ctx context.Context, eventType string, attrs map[string]string) error {
	return m.Called(ctx, eventType, attrs).Error(0)
}

// --- builder ---

func newService(os *mockOTPStore, us *mockUserStore, ml *mockMailer, cr *mockCredentials) *service {
	deps := ServiceDeps{AppName: "AniStream"}
	// Leave interface fields nil rather than typed-nil pointers.
	if os != nil {
		deps.OTPStore = os
	}
	if us != nil {
		deps.UserRepo = us
	}
	if ml != nil {
		deps.Mailer = ml
	}
	if cr != nil {
		deps.Credentials = cr
	}
	s := NewService(deps).(*service)
	s.async = func(f func()) { f() }
	return s
}

func liveRecord(p domain.Purpose, code string, attempts int) *domain.OTPRecord {
	now := time.Now().UTC()
	return &domain.OTPRecord{
		Email:     "a@gmail.com",
		Purpose:   p,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(10 * time.Minute),
		Attempts:  attempts,
	}
}

// --- RequestCode ---

func TestRequestCode_MissingEmail_ReturnsBadRequest(t *testing.T) {
	svc := newService(nil, nil, nil, nil)
	err := svc.RequestCode(context.Background(), domain.PurposeEmailVerification, CodeRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestRequestCode_UnknownPurpose_ReturnsBadRequest(t *testing.T) {
	svc := newService(nil, nil, nil, nil)
	err := svc.RequestCode(context.Background(), domain.Purpose("login"), CodeRequest{Email: "a@gmail.com"})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestRequestCode_UserNotFound_NoRecordCreated(t *testing.T) {
	os := &mockOTPStore{}
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "b@gmail.com").Return(nil, domain.ErrNotFound)

	svc := newService(os, us, nil, nil)
	err := svc.RequestCode(context.Background(), domain.PurposeEmailVerification, CodeRequest{Email: "b@gmail.com"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	os.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestRequestCode_HappyPath_SendsIssuedCode(t *testing.T) {
	os := &mockOTPStore{}
	us := &mockUserStore{}
	ml := &mockMailer{}

	us.On("GetByEmail", mock.Anything, "a@gmail.com").Return(&domain.User{UserID: "u1", Email: "a@gmail.com", DisplayName: "Asuka"}, nil)

	var stored *domain.OTPRecord
	os.On("Put", mock.Anything, mock.AnythingOfType("*domain.OTPRecord")).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*domain.OTPRecord) }).
		Return(nil)
	ml.On("Send", mock.Anything, "a@gmail.com", domain.EmailReset, mock.MatchedBy(func(d domain.EmailData) bool {
		return stored != nil && d.Code == stored.Code && d.DisplayName == "Asuka" && d.ExpiresIn == 10
	})).Return(nil)

	svc := newService(os, us, ml, nil)
	err := svc.RequestCode(context.Background(), domain.PurposePasswordReset, CodeRequest{Email: "  A@Gmail.com "})

	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.PurposePasswordReset, stored.Purpose)
	assert.Equal(t, "a@gmail.com", stored.Email)
	assert.Len(t, stored.Code, 6)
	assert.Equal(t, 0, stored.Attempts)
	assert.Equal(t, 10*time.Minute, stored.ExpiresAt.Sub(stored.CreatedAt))
	us.AssertExpectations(t)
	os.AssertExpectations(t)
	ml.AssertExpectations(t)
}

func TestRequestCode_SendFailure_DeletesRecord(t *testing.T) {
	os := &mockOTPStore{}
	us := &mockUserStore{}
	ml := &mockMailer{}

	us.On("GetByEmail", mock.Anything, "a@gmail.com").Return(&domain.User{UserID: "u1"}, nil)
	os.On("Put", mock.Anything, mock.Anything).Return(nil)
	ml.On("Send", mock.Anything, "a@gmail.com", domain.EmailVerify, mock.Anything).Return(errors.New("smtp down"))
	os.On("Delete", mock.Anything, domain.PurposeEmailVerification, "a@gmail.com").Return(nil)

	svc := newService(os, us, ml, nil)
	err := svc.RequestCode(context.Background(), domain.PurposeEmailVerification, CodeRequest{Email: "a@gmail.com"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstream))
	os.AssertExpectations(t)
}

// liveCtx matches only contexts that have not been cancelled, the way a
// network store would accept them.
func liveCtx() interface{} {
	return mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil })
}

func TestRequestCode_ClientGoneDuringSend_StillDeletesRecord(t *testing.T) {
	os := &mockOTPStore{}
	us := &mockUserStore{}
	ml := &mockMailer{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	us.On("GetByEmail", mock.Anything, "a@gmail.com").Return(&domain.User{UserID: "u1"}, nil)
	os.On("Put", mock.Anything, mock.Anything).Return(nil)
	ml.On("Send", mock.Anything, "a@gmail.com", domain.EmailVerify, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(context.Canceled)
	os.On("Delete", liveCtx(), domain.PurposeEmailVerification, "a@gmail.com").Return(nil).Once()

	svc := newService(os, us, ml, nil)
	err := svc.RequestCode(ctx, domain.PurposeEmailVerification, CodeRequest{Email: "a@gmail.com"})

	assert.ErrorIs(t, err, domain.ErrUpstream)
	os.AssertExpectations(t)
}

func TestRequestCode_PublishesEvent(t *testing.T) {
	os := &mockOTPStore{}
	us := &mockUserStore{}
	ml := &mockMailer{}
	ev := &mockEvents{}

	us.On("GetByEmail", mock.Anything, "a@gmail.com").Return(&domain.User{UserID: "u1"}, nil)
	os.On("Put", mock.Anything, mock.Anything).Return(nil)
	ml.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ev.On("Publish", mock.Anything, EventCodeRequested, map[string]string{
		"purpose": string(domain.PurposeEmailVerification),
		"email":   "a@gmail.com",
	}).Return(errors.New("sns throttled"))

	svc := newService(os, us, ml, nil)
	svc.events = ev
	err := svc.RequestCode(context.Background(), domain.PurposeEmailVerification, CodeRequest{Email: "a@gmail.com"})

	require.NoError(t, err, "publication failures never fail the request")
	ev.AssertExpectations(t)
}

// --- VerifyCode ---

func TestVerifyCode_MissingOTP_ReturnsBadRequest(t *testing.T) {
	svc := newService(nil, nil, nil, nil)
	err := svc.VerifyCode(context.Background(), domain.PurposeEmailVerification, VerifyCodeRequest{Email: "a@gmail.com"})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestVerifyCode_NoRecord_ReturnsNotFound(t *testing.T) {
	os := &mockOTPStore{}
	os.On("Get", mock.Anything, domain.PurposeEmailVerification, "a@gmail.com").Return(nil, domain.ErrNotFound)

	svc := newService(os, nil, nil, nil)
	err := svc.VerifyCode(context.Background(), domain.PurposeEmailVerification, VerifyCodeRequest{Email: "a@gmail.com", OTP: "123456"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVerifyCode_InvalidCode_IncrementsAttempts(t *testing.T) {
	os := &mockOTPStore{}
	os.On("Get", mock.Anything, domain.PurposePasswordReset, "a@gmail.com").Return(liveRecord(domain.PurposePasswordReset, "482913", 0), nil)
	os.On("IncrementAttempts", mock.Anything, domain.PurposePasswordReset, "a@gmail.com").Return(nil)

	svc := newService(os, nil, nil, nil)
	err := svc.VerifyCode(context.Background(), domain.PurposePasswordReset, VerifyCodeRequest{Email: "a@gmail.com", OTP: "000000"})

	assert.ErrorIs(t, err, domain.ErrInvalidCode)
	os.AssertExpectations(t)
}

func TestVerifyCode_TooManyAttempts_DeletesRecord(t *testing.T) {
	os := &mockOTPStore{}
	os.On("Get", mock.Anything, domain.PurposeEmailVerification, "a@gmail.com").Return(liveRecord(domain.PurposeEmailVerification, "482913", 3), nil)
	os.On("Delete", mock.Anything, domain.PurposeEmailVerification, "a@gmail.com").Return(nil)

	svc := newService(os, nil, nil, nil)
	err := svc.VerifyCode(context.Background(), domain.PurposeEmailVerification, VerifyCodeRequest{Email: "a@gmail.com", OTP: "482913"})

	assert.ErrorIs(t, err, domain.ErrTooManyAttempts)
	os.AssertExpectations(t)
}

func TestVerifyCode_EmailVerification_HappyPath(t *testing.T) {
	os := &mockOTPStore{}
	us := &mockUserStore{}
	ml := &mockMailer{}

	os.On("Get", mock.Anything, domain.PurposeEmailVerification, "a@gmail.com").Return(liveRecord(domain.PurposeEmailVerification, "482913", 1), nil)
	us.On("GetByEmail", mock.Anything, "a@gmail.com").Return(&domain.User{UserID: "u1", DisplayName: "Asuka"}, nil)
	us.On("Update", mock.Anything, "u1", mock.MatchedBy(func(m map[string]interface{}) bool {
		v, ok := m[fieldEmailVerified].(bool)
		_, stamped := m[fieldUpdatedAt]
		return ok && v && stamped
	})).Return(nil)
	os.On("Delete", mock.Anything, domain.PurposeEmailVerification, "a@gmail.com").Return(nil)
	ml.On("Send", mock.Anything, "a@gmail.com", domain.EmailWelcome, mock.MatchedBy(func(d domain.EmailData) bool {
		return d.DisplayName == "Asuka" && d.Code == ""
	})).Return(nil)

	svc := newService(os, us, ml, nil)
	err := svc.VerifyCode(context.Background(), domain.PurposeEmailVerification, VerifyCodeRequest{Email: "a@gmail.com", OTP: "482913"})

	require.NoError(t, err)
	os.AssertExpectations(t)
	us.AssertExpectations(t)
	ml.AssertExpectations(t)
}

func TestVerifyCode_WelcomeFailureIsIgnored(t *testing.T) {
	os := &mockOTPStore{}
	us := &mockUserStore{}
	ml := &mockMailer{}

	os.On("Get", mock.Anything, domain.PurposeEmailVerification, "a@gmail.com").Return(liveRecord(domain.PurposeEmailVerification, "482913", 0), nil)
	us.On("GetByEmail", mock.Anything, "a@gmail.com").Return(&domain.User{UserID: "u1"}, nil)
	us.On("Update", mock.Anything, "u1", mock.Anything).Return(nil)
	os.On("Delete", mock.Anything, domain.PurposeEmailVerification, "a@gmail.com").Return(nil)
	ml.On("Send", mock.Anything, "a@gmail.com", domain.EmailWelcome, mock.Anything).Return(errors.New("smtp down"))

	svc := newService(os, us, ml, nil)
	err := svc.VerifyCode(context.Background(), domain.PurposeEmailVerification, VerifyCodeRequest{Email: "a@gmail.com", OTP: "482913"})

	require.NoError(t, err)
	ml.AssertExpectations(t)
}

func TestVerifyCode_PasswordReset_MarksVerifiedWithoutDeleting(t *testing.T) {
	os := &mockOTPStore{}
	os.On("Get", mock.Anything, domain.PurposePasswordReset, "a@gmail.com").Return(liveRecord(domain.PurposePasswordReset, "482913", 0), nil)
	os.On("MarkVerified", mock.Anything, domain.PurposePasswordReset, "a@gmail.com", mock.AnythingOfType("time.Time")).Return(nil)

	svc := newService(os, nil, nil, nil)
	err := svc.VerifyCode(context.Background(), domain.PurposePasswordReset, VerifyCodeRequest{Email: "a@gmail.com", OTP: "482913"})

	require.NoError(t, err)
	os.AssertExpectations(t)
	os.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
}

// --- CompletePasswordReset ---

func TestCompletePasswordReset_ShortPassword_NoStateChange(t *testing.T) {
	os := &mockOTPStore{}
	svc := newService(os, nil, nil, nil)

	err := svc.CompletePasswordReset(context.Background(), CompletePasswordResetRequest{
		Email: "a@gmail.com", OTP: "482913", NewPassword: "12345",
	})

	assert.ErrorIs(t, err, domain.ErrBadRequest)
	os.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
}

func TestCompletePasswordReset_RechecksCodeEvenIfVerified(t *testing.T) {
	os := &mockOTPStore{}
	rec := liveRecord(domain.PurposePasswordReset, "482913", 0)
	rec.Verified = true
	os.On("Get", mock.Anything, domain.PurposePasswordReset, "a@gmail.com").Return(rec, nil)
	os.On("IncrementAttempts", mock.Anything, domain.PurposePasswordReset, "a@gmail.com").Return(nil)

	svc := newService(os, nil, nil, nil)
	err := svc.CompletePasswordReset(context.Background(), CompletePasswordResetRequest{
		Email: "a@gmail.com", OTP: "999999", NewPassword: "hunter22",
	})

	assert.ErrorIs(t, err, domain.ErrInvalidCode)
}

func TestCompletePasswordReset_UpdateFails_ReturnsUpstream(t *testing.T) {
	os := &mockOTPStore{}
	cr := &mockCredentials{}
	os.On("Get", mock.Anything, domain.PurposePasswordReset, "a@gmail.com").Return(liveRecord(domain.PurposePasswordReset, "482913", 0), nil)
	cr.On("GetUIDByEmail", mock.Anything, "a@gmail.com").Return("u1", nil)
	cr.On("UpdatePassword", mock.Anything, "u1", "hunter22").Return(errors.New("provider unavailable"))

	svc := newService(os, nil, nil, cr)
	err := svc.CompletePasswordReset(context.Background(), CompletePasswordResetRequest{
		Email: "a@gmail.com", OTP: "482913", NewPassword: "hunter22",
	})

	assert.ErrorIs(t, err, domain.ErrUpstream)
	os.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
}

func TestCompletePasswordReset_SucceedsOnlyOnce(t *testing.T) {
	os := &mockOTPStore{}
	us := &mockUserStore{}
	cr := &mockCredentials{}

	os.On("Get", mock.Anything, domain.PurposePasswordReset, "a@gmail.com").Return(liveRecord(domain.PurposePasswordReset, "482913", 0), nil).Once()
	os.On("Get", mock.Anything, domain.PurposePasswordReset, "a@gmail.com").Return(nil, domain.ErrNotFound)
	cr.On("GetUIDByEmail", mock.Anything, "a@gmail.com").Return("u1", nil).Once()
	cr.On("UpdatePassword", mock.Anything, "u1", "hunter22").Return(nil).Once()
	us.On("Update", mock.Anything, "u1", mock.MatchedBy(func(m map[string]interface{}) bool {
		_, ok := m[fieldUpdatedAt]
		return ok && len(m) == 1
	})).Return(nil).Once()
	os.On("Delete", mock.Anything, domain.PurposePasswordReset, "a@gmail.com").Return(nil).Once()

	svc := newService(os, us, nil, cr)
	req := CompletePasswordResetRequest{Email: "a@gmail.com", OTP: "482913", NewPassword: "hunter22"}

	require.NoError(t, svc.CompletePasswordReset(context.Background(), req))

	err := svc.CompletePasswordReset(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	os.AssertExpectations(t)
	cr.AssertExpectations(t)
	us.AssertExpectations(t)
}

func TestCompletePasswordReset_ClientGoneAfterUpdate_StillConsumesCode(t *testing.T) {
	os := &mockOTPStore{}
	us := &mockUserStore{}
	cr := &mockCredentials{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	os.On("Get", mock.Anything, domain.PurposePasswordReset, "a@gmail.com").Return(liveRecord(domain.PurposePasswordReset, "482913", 0), nil)
	cr.On("GetUIDByEmail", mock.Anything, "a@gmail.com").Return("u1", nil)
	cr.On("UpdatePassword", mock.Anything, "u1", "hunter22").Run(func(mock.Arguments) { cancel() }).Return(nil)
	us.On("Update", mock.Anything, "u1", mock.Anything).Return(context.Canceled)
	os.On("Delete", liveCtx(), domain.PurposePasswordReset, "a@gmail.com").Return(nil).Once()

	svc := newService(os, us, nil, cr)
	err := svc.CompletePasswordReset(ctx, CompletePasswordResetRequest{Email: "a@gmail.com", OTP: "482913", NewPassword: "hunter22"})

	require.NoError(t, err)
	os.AssertExpectations(t)
}
