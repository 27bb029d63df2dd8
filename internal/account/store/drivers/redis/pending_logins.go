// Package redis keeps pending two-factor sign-ins in Redis so that every
// instance behind a load balancer sees the same challenges.
package redis

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/accounts/internal/account/domain"
	"github.com/aussiebroadwan/accounts/internal/account/store"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces pending login keys.
const DefaultKeyPrefix = "accounts:pending_login:"

type Config struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
}

// NewClient connects to Redis and pings it with a short timeout.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// PendingLogins stores each pending login as a JSON value whose key expires
// with the login.
type PendingLogins struct {
	client *redis.Client
	prefix string
}

var _ store.PendingLogins = (*PendingLogins)(nil)

func NewPendingLogins(client *redis.Client, prefix string) *PendingLogins {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &PendingLogins{client: client, prefix: prefix}
}

type pendingLoginValue struct {
	UserID     string    `json:"user_id"`
	RememberMe bool      `json:"remember_me"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

func (r *PendingLogins) key(id string) string { return r.prefix + id }

func (r *PendingLogins) CreatePendingLogin(ctx context.Context, p domain.PendingLogin) error {
	ttl := time.Until(p.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("pending login already expired at %s", p.ExpiresAt)
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	raw, err := json.Marshal(pendingLoginValue{
		UserID:     p.UserID,
		RememberMe: p.RememberMe,
		ExpiresAt:  p.ExpiresAt.UTC(),
		CreatedAt:  createdAt.UTC(),
	})
	if err != nil {
		return err
	}

	ok, err := r.client.SetNX(ctx, r.key(p.ID), raw, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrAlreadyExists
	}
	return nil
}

func (r *PendingLogins) GetPendingLogin(ctx context.Context, id string) (domain.PendingLogin, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PendingLogin{}, store.ErrNotFound
	}
	if err != nil {
		return domain.PendingLogin{}, err
	}

	var v pendingLoginValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return domain.PendingLogin{}, fmt.Errorf("decode pending login: %w", err)
	}
	// Key expiry has millisecond resolution; the stored deadline is exact.
	if !time.Now().Before(v.ExpiresAt) {
		return domain.PendingLogin{}, store.ErrNotFound
	}

	return domain.PendingLogin{
		ID:         id,
		UserID:     v.UserID,
		RememberMe: v.RememberMe,
		ExpiresAt:  v.ExpiresAt,
		CreatedAt:  v.CreatedAt,
	}, nil
}

// ConsumePendingLogin relies on DEL being atomic: of several callers only
// one sees the key removed.
func (r *PendingLogins) ConsumePendingLogin(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Del(ctx, r.key(id)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PendingLogins) DeletePendingLogin(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}

// DeleteExpiredPendingLogins has nothing to do: Redis expires the keys.
func (r *PendingLogins) DeleteExpiredPendingLogins(ctx context.Context) (int64, error) {
	return 0, nil
}

// Ping reports whether Redis is reachable.
func (r *PendingLogins) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
