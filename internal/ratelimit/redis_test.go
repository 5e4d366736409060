package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kaydenvu/CPSC455-Project1/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func newTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedis_Allow(t *testing.T) {
	client := newTestRedis(t)
	l := NewRedis(client, nil, testutil.TestLogger(t))
	ctx := context.Background()
	identity := "alice-" + uuid.NewString()

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow(ctx, identity, ClassMessage), "expected call %d to be allowed", i+1)
	}
	assert.False(t, l.Allow(ctx, identity, ClassMessage), "expected 6th call to be rejected")
	assert.True(t, l.Allow(ctx, identity, ClassFile), "expected file class to be independent")
}

func TestRedis_FailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	l := NewRedis(client, nil, testutil.TestLogger(t))
	assert.True(t, l.Allow(context.Background(), "alice", ClassMessage), "expected unreachable redis to allow")
}
