package verification

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

type checkResult int

const (
	codeUnknown checkResult = iota
	codeLocked
	codeWrong
	codeOK
)

// codeStore holds pending codes by verification SID.
type codeStore interface {
	put(ctx context.Context, sid, phone, code string, ttl time.Duration) error
	// check counts one attempt and deletes the code on success or once
	// max attempts are used.
	check(ctx context.Context, sid, phone, code string, max int) (checkResult, error)
	drop(ctx context.Context, sid string) error
}

type pendingCode struct {
	phone    string
	code     string
	attempts int
}

// memoryCodes is the single-process fallback.
type memoryCodes struct {
	mu sync.Mutex
	c  *cache.Cache
}

func newMemoryCodes(ttl time.Duration) *memoryCodes {
	return &memoryCodes{c: cache.New(ttl, time.Minute)}
}

func (m *memoryCodes) put(_ context.Context, sid, phone, code string, ttl time.Duration) error {
	m.c.Set(sid, &pendingCode{phone: phone, code: code}, ttl)
	return nil
}

func (m *memoryCodes) check(_ context.Context, sid, phone, code string, max int) (checkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.c.Get(sid)
	if !ok {
		return codeUnknown, nil
	}
	pc := v.(*pendingCode)
	if pc.phone != phone {
		return codeUnknown, nil
	}
	if pc.attempts >= max {
		m.c.Delete(sid)
		return codeLocked, nil
	}
	pc.attempts++

	if subtle.ConstantTimeCompare([]byte(pc.code), []byte(code)) != 1 {
		if pc.attempts >= max {
			m.c.Delete(sid)
		}
		return codeWrong, nil
	}
	m.c.Delete(sid)
	return codeOK, nil
}

func (m *memoryCodes) drop(_ context.Context, sid string) error {
	m.c.Delete(sid)
	return nil
}

func (m *memoryCodes) purge() int {
	before := m.c.ItemCount()
	m.c.DeleteExpired()
	return before - m.c.ItemCount()
}

const redisCodePrefix = "verif:code:"

// Return values: -1 unknown, -2 locked, 0 wrong, 1 ok.
var checkCodeScript = redis.NewScript(`
	local v = redis.call("hmget", KEYS[1], "phone", "hash", "attempts")
	if not v[1] or v[1] ~= ARGV[1] then
		return -1
	end
	local max = tonumber(ARGV[3])
	if tonumber(v[3] or "0") >= max then
		redis.call("del", KEYS[1])
		return -2
	end
	local attempts = redis.call("hincrby", KEYS[1], "attempts", 1)
	if v[2] == ARGV[2] then
		redis.call("del", KEYS[1])
		return 1
	end
	if attempts >= max then
		redis.call("del", KEYS[1])
	end
	return 0
`)

// redisCodes shares pending codes between API replicas. Only a salted hash
// of the code is stored.
type redisCodes struct {
	client *redis.Client
}

func hashCode(sid, code string) string {
	sum := sha256.Sum256([]byte(sid + ":" + code))
	return hex.EncodeToString(sum[:])
}

func (r *redisCodes) put(ctx context.Context, sid, phone, code string, ttl time.Duration) error {
	key := redisCodePrefix + sid
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, "phone", phone, "hash", hashCode(sid, code), "attempts", 0)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store code: %w", err)
	}
	return nil
}

func (r *redisCodes) check(ctx context.Context, sid, phone, code string, max int) (checkResult, error) {
	n, err := checkCodeScript.Run(ctx, r.client, []string{redisCodePrefix + sid}, phone, hashCode(sid, code), max).Int()
	if err != nil {
		return codeUnknown, fmt.Errorf("check code: %w", err)
	}
	switch n {
	case 1:
		return codeOK, nil
	case 0:
		return codeWrong, nil
	case -2:
		return codeLocked, nil
	default:
		return codeUnknown, nil
	}
}

func (r *redisCodes) drop(ctx context.Context, sid string) error {
	if err := r.client.Del(ctx, redisCodePrefix+sid).Err(); err != nil {
		return fmt.Errorf("drop code: %w", err)
	}
	return nil
}
