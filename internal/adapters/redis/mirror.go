// Package redis mirrors the agent's listings into Redis so other local
// processes can read what the caller is looking at.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceAgent/internal/config"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

const writeTimeout = 2 * time.Second

// NewClient connects and pings. It returns nil, nil when no address is configured.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

type setter interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type snapshot struct {
	ClientID   string            `json:"client_id"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Properties []domain.Property `json:"properties"`
}

// ResultMirror implements results.Observer. Contact data never goes through it.
type ResultMirror struct {
	rdb      setter
	key      string
	clientID string
	ttl      time.Duration
}

func NewResultMirror(rdb setter, keyPrefix, clientID string, ttl time.Duration) *ResultMirror {
	return &ResultMirror{rdb: rdb, key: keyPrefix + clientID, clientID: clientID, ttl: ttl}
}

func (m *ResultMirror) Key() string { return m.key }

func (m *ResultMirror) ResultsReplaced(records []domain.Property) {
	b, err := json.Marshal(snapshot{ClientID: m.clientID, UpdatedAt: time.Now().UTC(), Properties: records})
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.redis").Msg("marshal results")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := m.rdb.Set(ctx, m.key, b, m.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.redis").Str("key", m.key).Msg("mirror results")
		return
	}
	log.Debug().Str("module", "adapters.redis").Str("key", m.key).Int("count", len(records)).Msg("results mirrored")
}
