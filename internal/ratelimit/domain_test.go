package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainLimiterWait(t *testing.T) {
	t.Parallel()
	l := NewDomain(DomainConfig{RPS: 100, Burst: 1})

	// Burst token makes the first call immediate; the second waits
	// roughly one interval.
	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "https://a.example/p/1"))
	require.NoError(t, l.Wait(context.Background(), "https://a.example/p/2"))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestDomainLimiterIsolatesDomains(t *testing.T) {
	t.Parallel()
	l := NewDomain(DomainConfig{RPS: 0.001, Burst: 1})

	// Each domain has its own bucket, so the first request per domain
	// never waits even at a glacial rate.
	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "https://a.example/"))
	require.NoError(t, l.Wait(context.Background(), "https://b.example/"))
	require.NoError(t, l.Wait(context.Background(), "https://c.example/"))
	assert.Less(t, time.Since(start), time.Second)
}

func TestDomainLimiterContextCancel(t *testing.T) {
	t.Parallel()
	l := NewDomain(DomainConfig{RPS: 0.001, Burst: 1})

	require.NoError(t, l.Wait(context.Background(), "https://a.example/"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "https://a.example/"))
}

func TestSetDomainRate(t *testing.T) {
	t.Parallel()
	l := NewDomain(DomainConfig{RPS: 0.001, Burst: 1})

	l.SetDomainRate("a.example", 1000)
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://a.example/p"))
	}
	assert.Less(t, time.Since(start), time.Second)

	// Non-positive rates are ignored.
	l.SetDomainRate("a.example", 0)
	require.NoError(t, l.Wait(context.Background(), "https://a.example/p"))
}

func TestUnparseableURLFallsBackToSharedBucket(t *testing.T) {
	t.Parallel()
	l := NewDomain(DomainConfig{RPS: 1000, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "://not-a-url"))
}
