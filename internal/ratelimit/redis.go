package ratelimit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local counter_key = KEYS[2]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local count = redis.call('ZCARD', key)
	if count >= limit then
		return 0
	end

	local seq = redis.call('INCR', counter_key)
	redis.call('ZADD', key, now, now .. ':' .. seq)
	redis.call('PEXPIRE', key, window_ms)
	redis.call('PEXPIRE', counter_key, window_ms)
	return 1
`)

// Redis keeps windows in sorted sets so several relay processes share one
// budget per identity. If Redis cannot be reached the action is allowed.
type Redis struct {
	client *redis.Client
	rules  map[Class]Rule
	prefix string
	log    *log.Logger
	now    func() time.Time
}

func NewRedis(client *redis.Client, rules map[Class]Rule, logger *log.Logger) *Redis {
	if rules == nil {
		rules = DefaultRules
	}

	return &Redis{
		client: client,
		rules:  rules,
		prefix: "relay:ratelimit:",
		log:    logger,
		now:    time.Now,
	}
}

func (l *Redis) Allow(ctx context.Context, identity string, class Class) bool {
	rule, ok := ruleFor(l.rules, class)
	if !ok {
		return true
	}

	allowed, err := l.allow(ctx, identity, class, rule)
	if err != nil {
		l.log.Printf("rate limit %s/%s: %v", class, identity, err)
		return true
	}

	return allowed
}

func (l *Redis) allow(ctx context.Context, identity string, class Class, rule Rule) (bool, error) {
	now := l.now()
	key := fmt.Sprintf("%s%s:%s", l.prefix, class, identity)

	res, err := slidingWindowScript.Run(ctx, l.client, []string{key, key + ":seq"},
		now.UnixMilli(),
		now.Add(-rule.Window).UnixMilli(),
		rule.Limit,
		rule.Window.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("run script: %w", err)
	}

	return res == 1, nil
}
