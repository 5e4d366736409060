// Package ratelimit bounds how often an identity may act, using a sliding
// window per (class, identity).
package ratelimit

import (
	"context"
	"time"
)

type Class string

const (
	ClassMessage Class = "message"
	ClassFile    Class = "file"
	ClassLogin   Class = "login"
)

type Rule struct {
	Limit  int
	Window time.Duration
}

var DefaultRules = map[Class]Rule{
	ClassMessage: {Limit: 5, Window: 5 * time.Second},
	ClassFile:    {Limit: 2, Window: 30 * time.Second},
	ClassLogin:   {Limit: 5, Window: time.Minute},
}

// Limiter reports whether identity may perform another action of class and,
// if so, records it. Check and record happen atomically.
type Limiter interface {
	Allow(ctx context.Context, identity string, class Class) bool
}

func ruleFor(rules map[Class]Rule, class Class) (Rule, bool) {
	rule, ok := rules[class]
	if !ok || rule.Limit <= 0 || rule.Window <= 0 {
		return Rule{}, false
	}
	return rule, true
}
