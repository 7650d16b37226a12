package authsession

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	sess := &domain.AuthSession{
		ID:        "s1",
		Purpose:   domain.PurposeSMSGate,
		State:     domain.SessionCodeSent,
		Phone:     "+33612345678",
		ExpiresAt: time.Now().Add(time.Minute),
	}
	require.NoError(t, store.Save(ctx, sess, time.Minute))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, sess.Phone, got.Phone)
	assert.Equal(t, domain.SessionCodeSent, got.State)

	mr.FastForward(2 * time.Minute)
	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_AttemptsAndClaim(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)

	n, err := store.IncrAttempts(ctx, "s1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, _ = store.IncrAttempts(ctx, "s1", time.Minute)
	assert.Equal(t, 2, n)

	ok, err := store.Claim(ctx, "s1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = store.Claim(ctx, "s1", time.Minute)
	assert.False(t, ok)

	require.NoError(t, store.Unclaim(ctx, "s1"))
	ok, _ = store.Claim(ctx, "s1", time.Minute)
	assert.True(t, ok)
}

func TestRedisStore_ServiceFlow(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)
	svc := NewService(store, &fakeProvider{}, nil, Config{})

	sess, err := svc.Create(ctx, CreateInput{Phone: "0712345678"})
	require.NoError(t, err)
	_, err = svc.SendCode(ctx, sess.ID, "")
	require.NoError(t, err)
	_, err = svc.VerifyCode(ctx, sess.ID, "123456")
	require.NoError(t, err)
	got, err := svc.Consume(ctx, sess.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "+33712345678", got.Phone)
}

func TestRedisStore_ExpiredSessionReportsExpired(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	svc := NewService(store, &fakeProvider{}, nil, Config{TTL: time.Minute})
	now := time.Now()
	svc.now = func() time.Time { return now }

	sess, err := svc.Create(ctx, CreateInput{Phone: "0612345678"})
	require.NoError(t, err)
	_, err = svc.SendCode(ctx, sess.ID, "")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	mr.FastForward(2 * time.Minute)

	_, err = svc.VerifyCode(ctx, sess.ID, "123456")
	assert.ErrorIs(t, err, ErrSessionExpired)

	mr.FastForward(2 * time.Hour)
	_, err = svc.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
