package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/immo-leads/internal/metrics"
	"github.com/ignite/immo-leads/internal/pkg/distlock"
	"github.com/ignite/immo-leads/internal/pkg/logger"
	"github.com/ignite/immo-leads/internal/service/sequence"
	"github.com/redis/go-redis/v9"
)

// =============================================================================
// SEQUENCE SCHEDULER WORKER
// =============================================================================
// Polls for drip emails whose scheduled time has arrived and delivers them.
// One tick runs immediately on Start, then every poll interval. A cluster
// wide lock keeps ticks from overlapping across instances; row claims keep
// delivery exclusive even without it.

const (
	DefaultSequencePollInterval = 15 * time.Minute
	DefaultSequenceBatchSize    = 200
	sequenceLockKey             = "sequence:tick"
	sequenceTickTimeout         = 10 * time.Minute
)

// ErrTickInProgress is returned by RunOnce when another instance holds the
// tick lock.
var ErrTickInProgress = errors.New("sequence tick already running elsewhere")

// SequenceProcessor delivers due drip rows. *sequence.Service satisfies it.
type SequenceProcessor interface {
	ProcessDue(ctx context.Context, now time.Time, limit int) (*sequence.RunResult, error)
	Stats(ctx context.Context) (*sequence.Stats, error)
}

// SequenceScheduler runs the drip delivery loop.
type SequenceScheduler struct {
	processor    SequenceProcessor
	db           *sql.DB       // optional; PG advisory lock fallback
	redisClient  *redis.Client // optional; preferred lock backend
	pollInterval time.Duration
	batchSize    int
	log          *logger.Logger
	now          func() time.Time

	// Stats
	ticks  int64
	sent   int64
	errors int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewSequenceScheduler creates a scheduler. Zero interval or batch size
// take the defaults.
func NewSequenceScheduler(p SequenceProcessor, db *sql.DB, interval time.Duration, batchSize int) *SequenceScheduler {
	if interval <= 0 {
		interval = DefaultSequencePollInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultSequenceBatchSize
	}
	return &SequenceScheduler{
		processor:    p,
		db:           db,
		pollInterval: interval,
		batchSize:    batchSize,
		log:          logger.Named("sequence-scheduler"),
		now:          time.Now,
	}
}

// SetRedisClient sets the Redis client for distributed locking.
func (s *SequenceScheduler) SetRedisClient(client *redis.Client) {
	s.redisClient = client
}

// Start begins the polling loop.
func (s *SequenceScheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sequence scheduler already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	s.log.Info("starting", "poll_interval", s.pollInterval.String(), "batch_size", s.batchSize)

	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop cancels the loop and waits for an in-flight tick to finish.
func (s *SequenceScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.log.Info("stopped",
		"ticks", atomic.LoadInt64(&s.ticks),
		"sent", atomic.LoadInt64(&s.sent),
		"errors", atomic.LoadInt64(&s.errors))
}

// Running reports whether the loop is active.
func (s *SequenceScheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *SequenceScheduler) loop() {
	defer s.wg.Done()

	s.tick()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *SequenceScheduler) tick() {
	ctx, cancel := context.WithTimeout(s.ctx, sequenceTickTimeout)
	defer cancel()

	res, err := s.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrTickInProgress):
		s.log.Debug("tick skipped, lock held elsewhere")
	case err != nil:
		s.log.Error("tick failed", "error", err)
	case res.Claimed > 0 || res.Recovered > 0:
		s.log.Info("tick done",
			"claimed", res.Claimed, "sent", res.Sent, "retried", res.Retried,
			"failed", res.Failed, "cancelled", res.Cancelled, "recovered", res.Recovered,
			"duration", res.Duration.String())
	}
}

// RunOnce processes every due row, batch after batch, under the cluster
// lock. It stops when a batch comes back short.
func (s *SequenceScheduler) RunOnce(ctx context.Context) (*sequence.RunResult, error) {
	lock := distlock.NewLock(s.redisClient, s.db, sequenceLockKey, sequenceTickTimeout)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire tick lock: %w", err)
	}
	if !acquired {
		return nil, ErrTickInProgress
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("release tick lock failed", "error", err)
		}
	}()

	atomic.AddInt64(&s.ticks, 1)
	start := time.Now()
	// Every batch of the tick shares tickStart so a lead gets one step per tick.
	tickStart := s.now()
	total := &sequence.RunResult{}
	for {
		res, err := s.processor.ProcessDue(ctx, tickStart, s.batchSize)
		if res != nil {
			total.Recovered += res.Recovered
			total.Claimed += res.Claimed
			total.Sent += res.Sent
			total.Retried += res.Retried
			total.Failed += res.Failed
			total.Cancelled += res.Cancelled
		}
		if err != nil {
			atomic.AddInt64(&s.errors, 1)
			total.Duration = time.Since(start)
			return total, err
		}
		if res == nil || res.Claimed < s.batchSize || ctx.Err() != nil {
			break
		}
	}
	total.Duration = time.Since(start)
	atomic.AddInt64(&s.sent, int64(total.Sent))
	metrics.SequenceTick.Observe(total.Duration.Seconds())

	if _, err := s.processor.Stats(ctx); err != nil {
		s.log.Warn("refresh pending gauge failed", "error", err)
	}
	return total, nil
}
