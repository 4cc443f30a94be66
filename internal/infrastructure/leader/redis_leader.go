package leader

import (
	"context"
	"errors"
	"sync"
	"time"

	"auction-storefront/pkg/logger"

	"github.com/go-redis/redis/v8"
)

var releaseScript = redis.NewScript(`
    if redis.call("GET", KEYS[1]) == ARGV[1] then
        return redis.call("DEL", KEYS[1])
    else
        return 0
    end
`)

var renewScript = redis.NewScript(`
    if redis.call("GET", KEYS[1]) == ARGV[1] then
        return redis.call("PEXPIRE", KEYS[1], ARGV[2])
    else
        return 0
    end
`)

// RedisLeaderElection elects one instance by holding a key with a TTL that
// the leader keeps renewing.
type RedisLeaderElection struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	log    logger.Logger

	mu         sync.Mutex
	heartbeats map[string]chan struct{}
}

func NewRedisLeaderElection(client *redis.Client, key string, ttl time.Duration, log logger.Logger) *RedisLeaderElection {
	return &RedisLeaderElection{
		client:     client,
		key:        key,
		ttl:        ttl,
		log:        log,
		heartbeats: make(map[string]chan struct{}),
	}
}

func (r *RedisLeaderElection) BecomeLeader(ctx context.Context, instanceID string) (bool, error) {
	result, err := r.client.SetNX(ctx, r.key, instanceID, r.ttl).Result()
	if err != nil {
		return false, err
	}

	if !result {
		return r.IsLeader(ctx, instanceID)
	}

	r.log.Info("Acquired leadership", "instance_id", instanceID, "key", r.key)
	r.startHeartbeat(instanceID)
	return true, nil
}

func (r *RedisLeaderElection) IsLeader(ctx context.Context, instanceID string) (bool, error) {
	currentLeader, err := r.client.Get(ctx, r.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}

	return currentLeader == instanceID, nil
}

func (r *RedisLeaderElection) ReleaseLeadership(ctx context.Context, instanceID string) error {
	r.stopHeartbeat(instanceID)

	_, err := releaseScript.Run(ctx, r.client, []string{r.key}, instanceID).Result()
	return err
}

func (r *RedisLeaderElection) startHeartbeat(instanceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, running := r.heartbeats[instanceID]; running {
		return
	}
	stop := make(chan struct{})
	r.heartbeats[instanceID] = stop
	go r.maintainLeadership(instanceID, stop)
}

func (r *RedisLeaderElection) stopHeartbeat(instanceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if stop, running := r.heartbeats[instanceID]; running {
		close(stop)
		delete(r.heartbeats, instanceID)
	}
}

func (r *RedisLeaderElection) maintainLeadership(instanceID string, stop chan struct{}) {
	ticker := time.NewTicker(r.ttl / 3) // Refresh at 1/3 of TTL
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		result, err := renewScript.Run(ctx, r.client, []string{r.key},
			instanceID, r.ttl.Milliseconds()).Int64()
		cancel()

		if err != nil || result == 0 {
			r.log.Warn("Lost leadership", "instance_id", instanceID, "error", err)
			r.mu.Lock()
			if r.heartbeats[instanceID] == stop {
				delete(r.heartbeats, instanceID)
			}
			r.mu.Unlock()
			return
		}
	}
}
