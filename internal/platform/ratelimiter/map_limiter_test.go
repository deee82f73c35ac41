package ratelimiter

import (
	"testing"
	"time"
)

func TestCheckEnforcesBurstAndReportsWait(t *testing.T) {
	l := New(1, 2, time.Minute)
	now := time.Unix(1_700_000_000, 0)

	for i := range 2 {
		if ok, _ := l.Check("client", now); !ok {
			t.Fatalf("request %d within burst was denied", i)
		}
	}
	ok, wait := l.Check("client", now)
	if ok {
		t.Fatal("request beyond burst was allowed")
	}
	if wait <= 0 || wait > time.Second {
		t.Fatalf("unexpected retry wait %s", wait)
	}
	if !l.Allow("other", now) {
		t.Fatal("buckets must be per key")
	}
	if !l.Allow("client", now.Add(wait)) {
		t.Fatal("request after the reported wait should pass")
	}
}

func TestDeniedRequestsDoNotConsumeTokens(t *testing.T) {
	l := New(1, 1, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	if !l.Allow("client", now) {
		t.Fatal("first request denied")
	}
	for range 5 {
		_ = l.Allow("client", now)
	}
	if !l.Allow("client", now.Add(time.Second)) {
		t.Fatal("denied requests must not push the next token further out")
	}
}

func TestIdleBucketsAreEvicted(t *testing.T) {
	l := New(1000, 1000, time.Minute)
	start := time.Unix(1_700_000_000, 0)
	_ = l.Allow("stale", start)

	later := start.Add(2 * time.Minute)
	for range sweepEvery {
		_ = l.Allow("active", later)
	}
	if got := l.Len(); got != 1 {
		t.Fatalf("expected stale bucket eviction, have %d buckets", got)
	}
}

func TestNilLimiterAllowsEverything(t *testing.T) {
	var l *MapLimiter
	if New(0, 10, 0) != nil || New(1, 0, 0) != nil {
		t.Fatal("invalid parameters must yield a nil limiter")
	}
	if ok, wait := l.Check("client", time.Now()); !ok || wait != 0 {
		t.Fatal("nil limiter must allow")
	}
	if l.Len() != 0 {
		t.Fatal("nil limiter tracks nothing")
	}
	if !New(1, 1, 0).Allow("  ", time.Now()) {
		t.Fatal("blank keys are not limited")
	}
}
