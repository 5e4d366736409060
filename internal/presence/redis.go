package presence

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Values are stored as "<status>|<unix ms>".
var setStatusScript = redis.NewScript(`
	local prev = redis.call('HGET', KEYS[1], ARGV[1])
	redis.call('HSET', KEYS[1], ARGV[1], ARGV[2] .. '|' .. ARGV[3])
	return prev
`)

var touchScript = redis.NewScript(`
	local cur = redis.call('HGET', KEYS[1], ARGV[1])
	if not cur then
		return 0
	end
	local status = string.match(cur, '^([^|]*)')
	redis.call('HSET', KEYS[1], ARGV[1], status .. '|' .. ARGV[2])
	return 1
`)

// Redis keeps one hash per room so presence is shared between processes.
// Errors are logged and treated as an empty room.
type Redis struct {
	client *redis.Client
	prefix string
	log    *log.Logger
	now    func() time.Time
}

func NewRedis(client *redis.Client, logger *log.Logger) *Redis {
	return &Redis{
		client: client,
		prefix: "relay:presence:",
		log:    logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *Redis) key(room string) string {
	return r.prefix + room
}

func (r *Redis) SetStatus(ctx context.Context, room, identity string, status Status) (Status, bool) {
	prev, err := setStatusScript.Run(ctx, r.client, []string{r.key(room)},
		identity, string(status), r.now().UnixMilli()).Text()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		r.log.Printf("presence set %s/%s: %v", room, identity, err)
		return "", false
	}

	e, err := decodeEntry(prev)
	if err != nil {
		r.log.Printf("presence set %s/%s: %v", room, identity, err)
		return "", false
	}

	return e.Status, true
}

func (r *Redis) Touch(ctx context.Context, room, identity string) {
	err := touchScript.Run(ctx, r.client, []string{r.key(room)}, identity, r.now().UnixMilli()).Err()
	if err != nil {
		r.log.Printf("presence touch %s/%s: %v", room, identity, err)
	}
}

func (r *Redis) Remove(ctx context.Context, room, identity string) {
	if err := r.client.HDel(ctx, r.key(room), identity).Err(); err != nil {
		r.log.Printf("presence remove %s/%s: %v", room, identity, err)
	}
}

func (r *Redis) Snapshot(ctx context.Context, room string) map[string]Entry {
	snapshot := make(map[string]Entry)

	values, err := r.client.HGetAll(ctx, r.key(room)).Result()
	if err != nil {
		r.log.Printf("presence snapshot %s: %v", room, err)
		return snapshot
	}

	for identity, v := range values {
		e, err := decodeEntry(v)
		if err != nil {
			r.log.Printf("presence snapshot %s/%s: %v", room, identity, err)
			continue
		}
		snapshot[identity] = e
	}

	return snapshot
}

func decodeEntry(v string) (Entry, error) {
	status, ms, ok := strings.Cut(v, "|")
	if !ok {
		return Entry{}, fmt.Errorf("malformed presence value %q", v)
	}

	millis, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("parse last seen: %w", err)
	}

	return Entry{Status: Status(status), LastSeen: time.UnixMilli(millis).UTC()}, nil
}
