// Package ratelimit implements the fixed-window request limiter placed in
// front of the /api/ routes.
package ratelimit

import (
	"context"
	"time"
)

type Result struct {
	Allowed   bool
	Count     int64
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

func newResult(count, limit int64, resetAt time.Time) Result {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= limit,
		Count:     count,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
