package verification

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/immo-leads/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// LocalConfig configures the in-process provider.
type LocalConfig struct {
	CodeTTL     time.Duration
	MaxAttempts int
	// DevMode logs generated codes and accepts TestCodes for any number.
	DevMode   bool
	TestCodes []string
}

// CodeSender delivers a generated code. In production this is a plain SMS
// through Twilio Messaging; in dev it can be nil.
type CodeSender interface {
	SendCode(ctx context.Context, phone, code string) error
}

// LocalProvider generates and checks codes itself. Codes expire after
// CodeTTL, are single use and are locked after MaxAttempts wrong guesses.
// Pending codes live in process unless WithRedis is called.
type LocalProvider struct {
	cfg    LocalConfig
	sender CodeSender
	codes  codeStore
	memory *memoryCodes
}

// NewLocalProvider creates a provider holding codes in memory.
func NewLocalProvider(cfg LocalConfig, sender CodeSender) *LocalProvider {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 10 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	mem := newMemoryCodes(cfg.CodeTTL)
	return &LocalProvider{cfg: cfg, sender: sender, codes: mem, memory: mem}
}

// WithRedis keeps pending codes in Redis so any replica can check a code
// another one sent.
func (p *LocalProvider) WithRedis(client *redis.Client) *LocalProvider {
	if client != nil {
		p.codes = &redisCodes{client: client}
		p.memory = nil
	}
	return p
}

func (p *LocalProvider) Start(ctx context.Context, phone string) (string, error) {
	code, err := GenerateCode(6)
	if err != nil {
		return "", err
	}
	sid := "VL" + uuid.New().String()

	if p.sender != nil {
		if err := p.sender.SendCode(ctx, phone, code); err != nil {
			return "", err
		}
	}
	if err := p.codes.put(ctx, sid, phone, code, p.cfg.CodeTTL); err != nil {
		return "", err
	}

	if p.cfg.DevMode {
		logger.Info("verification: dev code generated", "phone", phone, "sid", sid, "code", code)
	} else {
		logger.Info("verification: code sent", "provider", "local", "phone", phone, "sid", sid)
	}
	return sid, nil
}

func (p *LocalProvider) Check(ctx context.Context, phone, sid, code string) (bool, error) {
	if p.cfg.DevMode && p.isTestCode(code) {
		if err := p.codes.drop(ctx, sid); err != nil {
			logger.Warn("verification: drop code failed", "sid", sid, "error", err)
		}
		return true, nil
	}

	res, err := p.codes.check(ctx, sid, phone, code, p.cfg.MaxAttempts)
	if err != nil {
		return false, err
	}
	switch res {
	case codeOK:
		return true, nil
	case codeWrong:
		return false, nil
	case codeLocked:
		return false, ErrTooManyAttempts
	default:
		return false, ErrUnknownVerification
	}
}

// Purge drops expired in-memory codes. Redis expires its own keys.
func (p *LocalProvider) Purge() int {
	if p.memory == nil {
		return 0
	}
	return p.memory.purge()
}

func (p *LocalProvider) isTestCode(code string) bool {
	for _, tc := range p.cfg.TestCodes {
		if tc != "" && subtle.ConstantTimeCompare([]byte(tc), []byte(code)) == 1 {
			return true
		}
	}
	return false
}
