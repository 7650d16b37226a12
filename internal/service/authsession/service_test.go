package authsession

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/pkg/ratelimit"
	"github.com/ignite/immo-leads/internal/service/verification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider accepts "123456" and counts calls.
type fakeProvider struct {
	starts   atomic.Int32
	checks   atomic.Int32
	startErr error
	checkErr error
}

func (f *fakeProvider) Start(_ context.Context, phone string) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.starts.Add(1)
	return "VE-" + phone, nil
}

func (f *fakeProvider) Check(_ context.Context, phone, sid, code string) (bool, error) {
	f.checks.Add(1)
	if f.checkErr != nil {
		return false, f.checkErr
	}
	return sid == "VE-"+phone && code == "123456", nil
}

func newTestService(t *testing.T, cfg Config) (*Service, *fakeProvider) {
	t.Helper()
	p := &fakeProvider{}
	return NewService(NewMemoryStore(), p, nil, cfg), p
}

func TestService_FullFlow(t *testing.T) {
	ctx := context.Background()
	svc, p := newTestService(t, Config{})

	sess, err := svc.Create(ctx, CreateInput{PropertyData: []byte(`{"surface":50}`)})
	require.NoError(t, err)
	assert.Equal(t, domain.PurposeSMSGate, sess.Purpose)
	assert.Equal(t, domain.SessionCreated, sess.State)

	sess, err = svc.SendCode(ctx, sess.ID, "06 12 34 56 78")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCodeSent, sess.State)
	assert.Equal(t, "+33612345678", sess.Phone)
	assert.Equal(t, 1, sess.SendCount)
	assert.EqualValues(t, 1, p.starts.Load())

	sess, err = svc.VerifyCode(ctx, sess.ID, "123456")
	require.NoError(t, err)
	assert.True(t, sess.PhoneVerified)
	assert.Equal(t, domain.SessionVerified, sess.State)
	require.NotNil(t, sess.VerifiedAt)

	// verifying twice is a no-op
	again, err := svc.VerifyCode(ctx, sess.ID, "000000")
	require.NoError(t, err)
	assert.True(t, again.PhoneVerified)

	consumed, err := svc.ConsumeWith(ctx, sess.ID, domain.PurposeSMSGate, func(s *domain.AuthSession) error {
		s.LeadID = "lead-1"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SessionConsumed, consumed.State)

	stored, err := svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "lead-1", stored.LeadID)

	_, err = svc.Consume(ctx, sess.ID, domain.PurposeSMSGate)
	assert.ErrorIs(t, err, ErrAlreadyConsumed)
	_, err = svc.SendCode(ctx, sess.ID, "")
	assert.ErrorIs(t, err, ErrAlreadyConsumed)
}

func TestService_CreateValidation(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	_, err := svc.Create(context.Background(), CreateInput{Purpose: "other"})
	assert.Error(t, err)

	_, err = svc.Create(context.Background(), CreateInput{Phone: "12"})
	assert.ErrorIs(t, err, verification.ErrInvalidPhone)
}

func TestService_SendCodeRequiresPhone(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Config{})
	sess, err := svc.Create(ctx, CreateInput{})
	require.NoError(t, err)

	_, err = svc.SendCode(ctx, sess.ID, "")
	assert.ErrorIs(t, err, ErrPhoneRequired)
}

func TestService_SendLimit(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Config{MaxSends: 2})
	sess, _ := svc.Create(ctx, CreateInput{Phone: "0612345678"})

	for i := 0; i < 2; i++ {
		_, err := svc.SendCode(ctx, sess.ID, "")
		require.NoError(t, err)
	}
	_, err := svc.SendCode(ctx, sess.ID, "")
	assert.ErrorIs(t, err, ErrRateLimited)

	var rl *RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Greater(t, rl.RetryAfter, time.Duration(0))
}

func TestService_PhoneRateLimiter(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{}
	svc := NewService(NewMemoryStore(), p, ratelimit.NewMemoryLimiter(1, time.Hour), Config{})

	a, _ := svc.Create(ctx, CreateInput{})
	b, _ := svc.Create(ctx, CreateInput{})

	_, err := svc.SendCode(ctx, a.ID, "0612345678")
	require.NoError(t, err)
	// a different session on the same phone shares the budget
	_, err = svc.SendCode(ctx, b.ID, "+33612345678")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.EqualValues(t, 1, p.starts.Load())
}

func TestService_VerifyErrors(t *testing.T) {
	ctx := context.Background()
	svc, p := newTestService(t, Config{MaxAttempts: 3})
	sess, _ := svc.Create(ctx, CreateInput{Phone: "0612345678"})

	_, err := svc.VerifyCode(ctx, sess.ID, "123456")
	assert.ErrorIs(t, err, ErrCodeNotSent)

	_, err = svc.SendCode(ctx, sess.ID, "")
	require.NoError(t, err)

	_, err = svc.VerifyCode(ctx, sess.ID, "12ab")
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.EqualValues(t, 0, p.checks.Load(), "malformed codes never reach the provider")

	for i := 0; i < 3; i++ {
		_, err = svc.VerifyCode(ctx, sess.ID, "999999")
		assert.ErrorIs(t, err, ErrInvalidCode)
	}
	// the correct code is refused once attempts are exhausted
	_, err = svc.VerifyCode(ctx, sess.ID, "123456")
	assert.ErrorIs(t, err, ErrTooManyAttempts)
	assert.EqualValues(t, 3, p.checks.Load())

	_, err = svc.Consume(ctx, sess.ID, domain.PurposeSMSGate)
	assert.ErrorIs(t, err, ErrNotVerified)
}

func TestService_ProviderExpiredCode(t *testing.T) {
	ctx := context.Background()
	svc, p := newTestService(t, Config{})
	sess, _ := svc.Create(ctx, CreateInput{Phone: "0612345678"})
	_, err := svc.SendCode(ctx, sess.ID, "")
	require.NoError(t, err)

	p.checkErr = verification.ErrUnknownVerification
	_, err = svc.VerifyCode(ctx, sess.ID, "123456")
	assert.ErrorIs(t, err, ErrCodeNotSent)

	got, err := svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCreated, got.State)
}

func TestService_Expiry(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Config{TTL: time.Minute})
	now := time.Now()
	svc.now = func() time.Time { return now }

	sess, err := svc.Create(ctx, CreateInput{Phone: "0612345678"})
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = svc.SendCode(ctx, sess.ID, "")
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_ExpiredSessionOutlivesTTLInStore(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Config{TTL: 50 * time.Millisecond})

	sess, err := svc.Create(ctx, CreateInput{Phone: "0612345678"})
	require.NoError(t, err)
	time.Sleep(120 * time.Millisecond)

	_, err = svc.SendCode(ctx, sess.ID, "")
	assert.ErrorIs(t, err, ErrSessionExpired)
	_, err = svc.VerifyCode(ctx, sess.ID, "123456")
	assert.ErrorIs(t, err, ErrSessionExpired)
	_, err = svc.Consume(ctx, sess.ID, domain.PurposeSMSGate)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestService_PurposeMismatch(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Config{})
	sess, _ := svc.Create(ctx, CreateInput{Purpose: domain.PurposeAdminLogin, Phone: "0612345678", AdminID: "a1"})
	_, _ = svc.SendCode(ctx, sess.ID, "")
	_, err := svc.VerifyCode(ctx, sess.ID, "123456")
	require.NoError(t, err)

	_, err = svc.Consume(ctx, sess.ID, domain.PurposeSMSGate)
	assert.ErrorIs(t, err, ErrPurposeMismatch)

	require.NoError(t, svc.MarkEmailVerified(ctx, sess.ID))
	got, err := svc.Consume(ctx, sess.ID, domain.PurposeAdminLogin)
	require.NoError(t, err)
	assert.True(t, got.EmailVerified)
}

func TestService_ConsumeWithFailureReleasesClaim(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Config{})
	sess, _ := svc.Create(ctx, CreateInput{Phone: "0612345678"})
	_, _ = svc.SendCode(ctx, sess.ID, "")
	_, err := svc.VerifyCode(ctx, sess.ID, "123456")
	require.NoError(t, err)

	boom := errors.New("db down")
	_, err = svc.ConsumeWith(ctx, sess.ID, domain.PurposeSMSGate, func(*domain.AuthSession) error { return boom })
	assert.ErrorIs(t, err, boom)

	_, err = svc.Consume(ctx, sess.ID, domain.PurposeSMSGate)
	assert.NoError(t, err)
}

func TestService_ConcurrentConsume(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Config{})
	sess, _ := svc.Create(ctx, CreateInput{Phone: "0612345678"})
	_, _ = svc.SendCode(ctx, sess.ID, "")
	_, err := svc.VerifyCode(ctx, sess.ID, "123456")
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Consume(ctx, sess.ID, domain.PurposeSMSGate); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}
