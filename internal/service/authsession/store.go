package authsession

import (
	"context"
	"time"

	"github.com/ignite/immo-leads/internal/domain"
	"github.com/patrickmn/go-cache"
)

// Store persists sessions with a TTL. Implementations must be safe for
// concurrent use and return ErrNotFound for missing or expired keys.
type Store interface {
	Get(ctx context.Context, id string) (*domain.AuthSession, error)
	Save(ctx context.Context, s *domain.AuthSession, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
	// IncrAttempts atomically counts one verification attempt and returns
	// the new total.
	IncrAttempts(ctx context.Context, id string, ttl time.Duration) (int, error)
	// Claim atomically marks the session consumed. It returns false when
	// another caller already claimed it.
	Claim(ctx context.Context, id string, ttl time.Duration) (bool, error)
	// Unclaim releases a claim whose follow-up work failed.
	Unclaim(ctx context.Context, id string) error
}

// MemoryStore keeps sessions in process. Use it for single-instance
// deployments and tests.
type MemoryStore struct {
	c *cache.Cache
}

// NewMemoryStore creates an in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{c: cache.New(30*time.Minute, 5*time.Minute)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*domain.AuthSession, error) {
	v, ok := m.c.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v.(*domain.AuthSession)
	return &cp, nil
}

func (m *MemoryStore) Save(_ context.Context, s *domain.AuthSession, ttl time.Duration) error {
	if ttl <= 0 {
		m.c.Delete(s.ID)
		return nil
	}
	cp := *s
	m.c.Set(s.ID, &cp, ttl)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.c.Delete(id)
	return nil
}

func (m *MemoryStore) IncrAttempts(_ context.Context, id string, ttl time.Duration) (int, error) {
	key := "attempts:" + id
	_ = m.c.Add(key, 0, ttl)
	return m.c.IncrementInt(key, 1)
}

func (m *MemoryStore) Claim(_ context.Context, id string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return m.c.Add("claimed:"+id, true, ttl) == nil, nil
}

func (m *MemoryStore) Unclaim(_ context.Context, id string) error {
	m.c.Delete("claimed:" + id)
	return nil
}

// Len returns the number of live cache entries.
func (m *MemoryStore) Len() int { return m.c.ItemCount() }
