package presence

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/ChatCall/internal/domain"
)

func TestPublishKeepsLatestPending(t *testing.T) {
	m := newMirror("node-1", "presence")
	m.Publish([]domain.UserID{"a"})
	m.Publish([]domain.UserID{"a", "b"})
	m.Publish([]domain.UserID{"b"})

	require.Len(t, m.updates, 1)
	assert.Equal(t, []domain.UserID{"b"}, <-m.updates)
}

func TestRunAppliesSnapshots(t *testing.T) {
	m := newMirror("node-1", "presence")
	var (
		mu  sync.Mutex
		got [][]domain.UserID
	)
	m.apply = func(_ context.Context, users []domain.UserID) error {
		mu.Lock()
		got = append(got, users)
		mu.Unlock()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	m.Publish([]domain.UserID{"alice"})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	mu.Lock()
	assert.Equal(t, []domain.UserID{"alice"}, got[0])
	mu.Unlock()
}

func TestNewRedisMirrorRejectsBadURL(t *testing.T) {
	_, err := NewRedisMirror(context.Background(), "not-a-url", "node-1", "presence")
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "chatcall:presence:node-1", newMirror("node-1", "c").key())
}

func newTestMirror(t *testing.T) (*RedisMirror, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	m, err := NewRedisMirror(context.Background(), "redis://"+mr.Addr(), "node-1", "presence")
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, mr
}

func TestWriteStoresSetAndPublishes(t *testing.T) {
	m, mr := newTestMirror(t)
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	sub := client.Subscribe(ctx, "presence")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, m.write(ctx, []domain.UserID{"alice", "bob"}))

	members, err := mr.Members(m.key())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, members)
	assert.Equal(t, keyTTL, mr.TTL(m.key()))

	select {
	case msg := <-sub.Channel():
		var snap snapshot
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &snap))
		assert.Equal(t, "node-1", snap.Instance)
		assert.Equal(t, []domain.UserID{"alice", "bob"}, snap.Users)
	case <-time.After(time.Second):
		t.Fatal("no presence announcement")
	}

	require.NoError(t, m.write(ctx, nil))
	assert.False(t, mr.Exists(m.key()))
}

func TestRunRefreshesKeyTTL(t *testing.T) {
	m, mr := newTestMirror(t)
	m.refresh = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	m.Publish([]domain.UserID{"alice"})
	require.Eventually(t, func() bool { return mr.Exists(m.key()) }, time.Second, 5*time.Millisecond)

	mr.FastForward(keyTTL - time.Second)
	require.Eventually(t, func() bool { return mr.TTL(m.key()) == keyTTL }, time.Second, 5*time.Millisecond)
	mr.FastForward(keyTTL - time.Second)
	require.Eventually(t, func() bool { return mr.TTL(m.key()) == keyTTL }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.False(t, mr.Exists(m.key()))
}
