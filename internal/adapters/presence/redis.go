package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/ChatCall/internal/domain"
)

const (
	keyTTL       = 2 * time.Minute
	writeTimeout = 3 * time.Second
)

type snapshot struct {
	Instance string          `json:"instance"`
	Users    []domain.UserID `json:"users"`
	At       int64           `json:"at"`
}

// RedisMirror copies each presence snapshot into a Redis set and announces it
// on a pub/sub channel. Only the latest pending snapshot is written.
type RedisMirror struct {
	client   *redis.Client
	instance string
	channel  string
	updates  chan []domain.UserID
	refresh  time.Duration
	apply    func(ctx context.Context, users []domain.UserID) error
}

// NewRedisMirror connects to redisURL and verifies the connection.
func NewRedisMirror(ctx context.Context, redisURL, instance, channel string) (*RedisMirror, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	m := newMirror(instance, channel)
	m.client = client
	m.apply = m.write
	return m, nil
}

func newMirror(instance, channel string) *RedisMirror {
	return &RedisMirror{
		instance: instance,
		channel:  channel,
		updates:  make(chan []domain.UserID, 1),
		refresh:  keyTTL / 2,
	}
}

func (m *RedisMirror) key() string {
	return fmt.Sprintf("chatcall:presence:%s", m.instance)
}

// Publish never blocks; a pending snapshot is replaced by the newer one.
func (m *RedisMirror) Publish(users []domain.UserID) {
	for {
		select {
		case m.updates <- users:
			return
		default:
		}
		select {
		case <-m.updates:
		default:
		}
	}
}

// Run writes snapshots until ctx is done, then removes this instance's key.
// The last snapshot is rewritten every refresh period so the key outlives
// quiet stretches without presence changes.
func (m *RedisMirror) Run(ctx context.Context) {
	ticker := time.NewTicker(m.refresh)
	defer ticker.Stop()

	var last []domain.UserID
	for {
		select {
		case <-ctx.Done():
			if m.client != nil {
				cctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
				m.client.Del(cctx, m.key())
				cancel()
			}
			return
		case users := <-m.updates:
			last = users
			m.applyNow(ctx, users)
		case <-ticker.C:
			if len(last) > 0 {
				m.applyNow(ctx, last)
			}
		}
	}
}

func (m *RedisMirror) applyNow(ctx context.Context, users []domain.UserID) {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := m.apply(wctx, users); err != nil {
		log.Warn().Err(err).Str("module", "adapters.presence").Msg("presence mirror write failed")
	}
}

func (m *RedisMirror) write(ctx context.Context, users []domain.UserID) error {
	payload, err := json.Marshal(snapshot{Instance: m.instance, Users: users, At: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	members := make([]any, 0, len(users))
	for _, u := range users {
		members = append(members, string(u))
	}

	pipe := m.client.TxPipeline()
	pipe.Del(ctx, m.key())
	if len(members) > 0 {
		pipe.SAdd(ctx, m.key(), members...)
		pipe.Expire(ctx, m.key(), keyTTL)
	}
	pipe.Publish(ctx, m.channel, payload)
	_, err = pipe.Exec(ctx)
	return err
}

func (m *RedisMirror) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}
