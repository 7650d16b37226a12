package verification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ignite/immo-leads/internal/sms"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"06 12 34 56 78", "+33612345678", false},
		{"07.12.34.56.78", "+33712345678", false},
		{"+33 6 12 34 56 78", "+33612345678", false},
		{"+33 (0)6 12 34 56 78", "+33612345678", false},
		{"0033612345678", "+33612345678", false},
		{"01 23 45 67 89", "", true}, // landline
		{"+44 7700 900123", "", true},
		{"0612", "", true},
		{"06 12 34 56 7a", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizePhone(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPhone)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := GenerateCode(6)
		require.NoError(t, err)
		assert.True(t, ValidCodeFormat(code), code)
	}
	assert.False(t, ValidCodeFormat("12345"))
	assert.False(t, ValidCodeFormat("12345a"))
}

type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (c *captureSender) SendCode(_ context.Context, phone, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.codes == nil {
		c.codes = map[string]string{}
	}
	c.codes[phone] = code
	return nil
}

func TestLocalProvider_HappyPath(t *testing.T) {
	sender := &captureSender{}
	p := NewLocalProvider(LocalConfig{MaxAttempts: 3}, sender)
	ctx := context.Background()

	sid, err := p.Start(ctx, "+33612345678")
	require.NoError(t, err)
	code := sender.codes["+33612345678"]
	require.Len(t, code, 6)

	ok, err := p.Check(ctx, "+33612345678", sid, code)
	require.NoError(t, err)
	assert.True(t, ok)

	// Single use.
	_, err = p.Check(ctx, "+33612345678", sid, code)
	assert.ErrorIs(t, err, ErrUnknownVerification)
}

func TestLocalProvider_AttemptLimit(t *testing.T) {
	sender := &captureSender{}
	p := NewLocalProvider(LocalConfig{MaxAttempts: 2}, sender)
	ctx := context.Background()

	sid, err := p.Start(ctx, "+33612345678")
	require.NoError(t, err)
	good := sender.codes["+33612345678"]
	bad := "000000"
	if good == bad {
		bad = "111111"
	}

	ok, err := p.Check(ctx, "+33612345678", sid, bad)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.Check(ctx, "+33612345678", sid, bad)
	require.NoError(t, err)
	assert.False(t, ok)

	// The code is burned after the last allowed attempt, even the right one fails.
	_, err = p.Check(ctx, "+33612345678", sid, good)
	assert.ErrorIs(t, err, ErrUnknownVerification)
}

func TestLocalProvider_PhoneMismatch(t *testing.T) {
	sender := &captureSender{}
	p := NewLocalProvider(LocalConfig{}, sender)
	sid, _ := p.Start(context.Background(), "+33612345678")

	_, err := p.Check(context.Background(), "+33700000000", sid, sender.codes["+33612345678"])
	assert.ErrorIs(t, err, ErrUnknownVerification)
}

func TestLocalProvider_Expiry(t *testing.T) {
	sender := &captureSender{}
	p := NewLocalProvider(LocalConfig{CodeTTL: 20 * time.Millisecond}, sender)
	sid, _ := p.Start(context.Background(), "+33612345678")

	time.Sleep(40 * time.Millisecond)
	_, err := p.Check(context.Background(), "+33612345678", sid, sender.codes["+33612345678"])
	assert.ErrorIs(t, err, ErrUnknownVerification)
	assert.GreaterOrEqual(t, p.Purge(), 0)
}

func TestLocalProvider_DevTestCodes(t *testing.T) {
	p := NewLocalProvider(LocalConfig{DevMode: true, TestCodes: []string{"123456"}}, nil)
	sid, err := p.Start(context.Background(), "+33612345678")
	require.NoError(t, err)

	ok, err := p.Check(context.Background(), "+33612345678", sid, "123456")
	require.NoError(t, err)
	assert.True(t, ok)

	prod := NewLocalProvider(LocalConfig{DevMode: false, TestCodes: []string{"123456"}}, &captureSender{})
	sid, _ = prod.Start(context.Background(), "+33612345678")
	ok, err = prod.Check(context.Background(), "+33612345678", sid, "123456")
	require.NoError(t, err)
	assert.False(t, ok, "test codes are ignored outside dev mode")
}

func TestLocalProvider_SenderError(t *testing.T) {
	p := NewLocalProvider(LocalConfig{}, &captureSender{err: errors.New("twilio down")})
	_, err := p.Start(context.Background(), "+33612345678")
	assert.Error(t, err)
}

func newSharedProviders(t *testing.T, max int) (a, b *LocalProvider, sender *captureSender, mr *miniredis.Miniredis) {
	t.Helper()
	mr = miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	sender = &captureSender{}
	a = NewLocalProvider(LocalConfig{MaxAttempts: max}, sender).WithRedis(client)
	b = NewLocalProvider(LocalConfig{MaxAttempts: max}, sender).WithRedis(client)
	return a, b, sender, mr
}

func TestLocalProvider_RedisSharedAcrossReplicas(t *testing.T) {
	ctx := context.Background()
	a, b, sender, mr := newSharedProviders(t, 3)

	sid, err := a.Start(ctx, "+33612345678")
	require.NoError(t, err)
	code := sender.codes["+33612345678"]

	stored := mr.HGet(redisCodePrefix+sid, "hash")
	require.NotEmpty(t, stored)
	assert.NotContains(t, stored, code, "only a hash of the code is kept")

	_, err = b.Check(ctx, "+33700000000", sid, code)
	assert.ErrorIs(t, err, ErrUnknownVerification)

	ok, err := b.Check(ctx, "+33612345678", sid, code)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = a.Check(ctx, "+33612345678", sid, code)
	assert.ErrorIs(t, err, ErrUnknownVerification, "codes are single use")
	assert.Equal(t, 0, a.Purge())
}

func TestLocalProvider_RedisAttemptLimit(t *testing.T) {
	ctx := context.Background()
	a, b, sender, _ := newSharedProviders(t, 2)

	sid, err := a.Start(ctx, "+33612345678")
	require.NoError(t, err)
	good := sender.codes["+33612345678"]
	bad := "000000"
	if good == bad {
		bad = "111111"
	}

	ok, err := a.Check(ctx, "+33612345678", sid, bad)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = b.Check(ctx, "+33612345678", sid, bad)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = a.Check(ctx, "+33612345678", sid, good)
	assert.ErrorIs(t, err, ErrUnknownVerification)
}

func TestLocalProvider_RedisExpiry(t *testing.T) {
	ctx := context.Background()
	a, b, sender, mr := newSharedProviders(t, 3)

	sid, err := a.Start(ctx, "+33612345678")
	require.NoError(t, err)
	mr.FastForward(11 * time.Minute)

	_, err = b.Check(ctx, "+33612345678", sid, sender.codes["+33612345678"])
	assert.ErrorIs(t, err, ErrUnknownVerification)
}

type fakeTwilio struct {
	checkStatus string
	checkErr    error
}

func (f *fakeTwilio) StartVerification(_ context.Context, to, channel string) (*sms.Verification, error) {
	return &sms.Verification{SID: "VE1", To: to, Channel: channel, Status: sms.StatusPending}, nil
}

func (f *fakeTwilio) CheckVerification(_ context.Context, to, code string) (*sms.Verification, error) {
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	return &sms.Verification{SID: "VE1", To: to, Status: f.checkStatus}, nil
}

func TestTwilioProvider(t *testing.T) {
	ctx := context.Background()

	p := NewTwilioProvider(&fakeTwilio{checkStatus: sms.StatusApproved})
	sid, err := p.Start(ctx, "+33612345678")
	require.NoError(t, err)
	assert.Equal(t, "VE1", sid)

	ok, err := p.Check(ctx, "+33612345678", sid, "123456")
	require.NoError(t, err)
	assert.True(t, ok)

	p = NewTwilioProvider(&fakeTwilio{checkStatus: sms.StatusPending})
	ok, err = p.Check(ctx, "+33612345678", sid, "000000")
	require.NoError(t, err)
	assert.False(t, ok)

	p = NewTwilioProvider(&fakeTwilio{checkErr: &sms.APIError{HTTPStatus: 404, Code: 20404}})
	_, err = p.Check(ctx, "+33612345678", sid, "000000")
	assert.ErrorIs(t, err, ErrUnknownVerification)

	p = NewTwilioProvider(&fakeTwilio{checkErr: &sms.APIError{HTTPStatus: 429, Code: 60202}})
	_, err = p.Check(ctx, "+33612345678", sid, "000000")
	assert.ErrorIs(t, err, ErrTooManyAttempts)
}
