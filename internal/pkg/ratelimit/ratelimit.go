package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// Rule is a fixed-window quota: at most Limit hits per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

type Result struct {
	Allowed   bool
	Count     int
	Limit     int
	ResetTime time.Time
}

// RetryAfter is the whole number of seconds until the window resets (min 1).
func (r Result) RetryAfter(now time.Time) int {
	secs := int(math.Ceil(r.ResetTime.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func (r Result) Remaining() int {
	if rem := r.Limit - r.Count; rem > 0 {
		return rem
	}
	return 0
}

// Store counts hits per key. The window starts at the key's first hit and the
// key expires when the window ends.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, resetAt time.Time, err error)
}

type Limiter struct {
	store  Store
	prefix string
}

func New(store Store, prefix string) *Limiter {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &Limiter{store: store, prefix: prefix}
}

// Check records one hit for identifier and reports whether it fits the rule.
func (l *Limiter) Check(ctx context.Context, identifier string, rule Rule) (Result, error) {
	if rule.Limit <= 0 || rule.Window <= 0 {
		return Result{}, fmt.Errorf("ratelimit: invalid rule %+v", rule)
	}
	count, resetAt, err := l.store.Increment(ctx, l.prefix+identifier, rule.Window)
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: increment %q: %w", identifier, err)
	}
	return Result{
		Allowed:   count <= rule.Limit,
		Count:     count,
		Limit:     rule.Limit,
		ResetTime: resetAt,
	}, nil
}

// Identifier builds "kind:value:action[:scope...]", e.g. "ip:1.2.3.4:download".
func Identifier(kind, value, action string, scope ...string) string {
	parts := append([]string{kind, value, action}, scope...)
	return strings.Join(parts, ":")
}
