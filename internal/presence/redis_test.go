package presence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kaydenvu/CPSC455-Project1/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestRedis_Tracker(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	ctx := context.Background()
	tr := NewRedis(client, testutil.TestLogger(t))
	room := "room-" + uuid.NewString()
	defer client.Del(ctx, tr.key(room))

	prev, existed := tr.SetStatus(ctx, room, "alice", StatusOnline)
	assert.False(t, existed)
	assert.Equal(t, Status(""), prev)

	prev, existed = tr.SetStatus(ctx, room, "alice", StatusTyping)
	assert.True(t, existed)
	assert.Equal(t, StatusOnline, prev)

	tr.Touch(ctx, room, "alice")
	tr.Touch(ctx, room, "ghost")

	snap := tr.Snapshot(ctx, room)
	assert.Len(t, snap, 1)
	assert.Equal(t, StatusTyping, snap["alice"].Status)

	tr.Remove(ctx, room, "alice")
	assert.Empty(t, tr.Snapshot(ctx, room))
}

func Test_decodeEntry(t *testing.T) {
	e, err := decodeEntry("typing|1700000000000")
	assert.NoError(t, err)
	assert.Equal(t, StatusTyping, e.Status)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), e.LastSeen)

	_, err = decodeEntry("online")
	assert.Error(t, err)

	_, err = decodeEntry("online|abc")
	assert.Error(t, err)
}
