package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRunLockTTL bounds how long a crashed run keeps its user locked.
	DefaultRunLockTTL = 30 * time.Minute

	runLockKeyPrefix = "tribsync:run:"
)

var (
	// ErrRunInProgress is returned when another instance already holds
	// the run lock for a user.
	ErrRunInProgress = errors.New("sync run already in progress")

	// ErrLockNotHeld is returned when releasing a lock this instance
	// does not hold.
	ErrLockNotHeld = errors.New("run lock not held")
)

// Locker serializes sync runs per user across instances. A nil Locker
// on the orchestrator disables coordination (single-instance mode).
type Locker interface {
	Acquire(ctx context.Context, userID string) (release func(), err error)
}

// RunLock is a Redis-backed Locker. Each acquisition writes a unique
// token so a lock expired and re-acquired elsewhere is never released
// by the original holder.
type RunLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRunLock creates a run lock backed by the given Redis client.
func NewRunLock(client *redis.Client, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = DefaultRunLockTTL
	}
	return &RunLock{client: client, ttl: ttl}
}

// Acquire takes the per-user run lock without blocking. A held lock
// returns ErrRunInProgress so overlapping schedules skip instead of
// queueing behind a slow portal.
func (l *RunLock) Acquire(ctx context.Context, userID string) (func(), error) {
	key := runLockKeyPrefix + userID
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}

	release := func() {
		// Atomically check-and-delete so an expired lock taken over by
		// another instance is left alone.
		script := redis.NewScript(`
			if redis.call("get", KEYS[1]) == ARGV[1] then
				return redis.call("del", KEYS[1])
			else
				return 0
			end
		`)
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = script.Run(releaseCtx, l.client, []string{key}, token).Int()
	}
	return release, nil
}

// Held reports whether any instance currently holds the lock for a user.
func (l *RunLock) Held(ctx context.Context, userID string) (bool, error) {
	_, err := l.client.Get(ctx, runLockKeyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check run lock: %w", err)
	}
	return true, nil
}
