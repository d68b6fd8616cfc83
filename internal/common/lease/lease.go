// Package lease keeps two overlapping runs from publishing the same record.
package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"template-publisher/internal/common/config"
	"template-publisher/internal/common/errors"
	"template-publisher/internal/models"
)

// Manager hands out per-record leases. Acquire returns a LEASE_UNAVAILABLE
// StandardError when another run holds the record.
type Manager interface {
	Acquire(ctx context.Context, recordID string) (Handle, error)
}

// Handle is released once the record is done. succeeded reports whether the
// record reached Published.
type Handle interface {
	Release(ctx context.Context, succeeded bool) error
}

// New returns the manager selected by publisher.lease.
func New(cfg config.PublisherConfig, statuses StatusSetter, rdb RedisClient) (Manager, error) {
	switch cfg.Lease {
	case "", config.LeaseNone:
		return Noop{}, nil
	case config.LeaseStatus:
		return NewStatusManager(statuses), nil
	case config.LeaseRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis lease requires a redis client")
		}
		return NewRedisManager(rdb, config.GetDuration(cfg.LeaseTTL)), nil
	default:
		return nil, fmt.Errorf("unknown lease strategy %q", cfg.Lease)
	}
}

type Noop struct{}

func (Noop) Acquire(context.Context, string) (Handle, error) { return noopHandle{}, nil }

type noopHandle struct{}

func (noopHandle) Release(context.Context, bool) error { return nil }

// StatusSetter is the Airtable operation the status lease needs.
type StatusSetter interface {
	SetStatus(ctx context.Context, recordID, status string) error
}

// StatusManager marks a record Processing before any Layer mutation, which
// takes it out of the Push selection. A failed record goes back to Push.
type StatusManager struct {
	statuses StatusSetter
}

func NewStatusManager(statuses StatusSetter) *StatusManager {
	return &StatusManager{statuses: statuses}
}

func (m *StatusManager) Acquire(ctx context.Context, recordID string) (Handle, error) {
	if err := m.statuses.SetStatus(ctx, recordID, models.StatusProcessing); err != nil {
		return nil, err
	}
	return &statusHandle{statuses: m.statuses, recordID: recordID}, nil
}

type statusHandle struct {
	statuses StatusSetter
	recordID string
}

func (h *statusHandle) Release(ctx context.Context, succeeded bool) error {
	if succeeded {
		return nil
	}
	return h.statuses.SetStatus(ctx, h.recordID, models.StatusPush)
}

// RedisClient is the subset of go-redis the redis lease uses.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	redis.Scripter
}

const keyPrefix = "template-publisher:lease:"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisManager struct {
	client   RedisClient
	ttl      time.Duration
	newToken func() string
}

func NewRedisManager(client RedisClient, ttl time.Duration) *RedisManager {
	return &RedisManager{
		client:   client,
		ttl:      ttl,
		newToken: func() string { return uuid.New().String() },
	}
}

func Key(recordID string) string {
	return keyPrefix + recordID
}

func (m *RedisManager) Acquire(ctx context.Context, recordID string) (Handle, error) {
	token := m.newToken()
	ok, err := m.client.SetNX(ctx, Key(recordID), token, m.ttl).Result()
	if err != nil {
		return nil, errors.NewLeaseUnavailableError(recordID).WithMetadata("cause", err.Error())
	}
	if !ok {
		return nil, errors.NewLeaseUnavailableError(recordID)
	}
	return &redisHandle{client: m.client, key: Key(recordID), token: token}, nil
}

type redisHandle struct {
	client RedisClient
	key    string
	token  string
}

func (h *redisHandle) Release(ctx context.Context, _ bool) error {
	if err := releaseScript.Run(ctx, h.client, []string{h.key}, h.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release lease %s: %w", h.key, err)
	}
	return nil
}
