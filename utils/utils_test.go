package utils

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Circuit Breaker Tests

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(maxFailures uint32) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker("test", maxFailures, time.Minute)
	cb.now = clock.Now
	return cb, clock
}

func failing(ctx context.Context) error { return errors.New("failure") }
func succeeding(ctx context.Context) error { return nil }

func TestCircuitBreaker_NewCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker("pubnub", 0, time.Second)

	assert.Equal(t, "pubnub", cb.Name())
	assert.Equal(t, uint32(1), cb.maxFailures)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(3)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.EqualError(t, cb.Execute(ctx, failing), "failure")
	}
	assert.Equal(t, StateClosed, cb.State())

	// a success resets the streak
	assert.NoError(t, cb.Execute(ctx, succeeding))
	for i := 0; i < 3; i++ {
		cb.Execute(ctx, failing)
	}
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(ctx, func(ctx context.Context) error {
		t.Fatal("This should not be executed when circuit is open")
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb, clock := newTestBreaker(1)
	ctx := context.Background()

	cb.Execute(ctx, failing)
	require.Equal(t, StateOpen, cb.State())

	clock.Advance(time.Minute)
	assert.Equal(t, StateHalfOpen, cb.State())

	// failed probe reopens the circuit
	assert.Error(t, cb.Execute(ctx, failing))
	assert.Equal(t, StateOpen, cb.State())

	clock.Advance(time.Minute)
	assert.NoError(t, cb.Execute(ctx, succeeding))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_SingleProbeInFlight(t *testing.T) {
	cb, clock := newTestBreaker(1)
	ctx := context.Background()

	cb.Execute(ctx, failing)
	clock.Advance(time.Minute)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- cb.Execute(ctx, func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	assert.ErrorIs(t, cb.Execute(ctx, succeeding), ErrCircuitOpen)
	close(release)
	assert.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	cb, _ := newTestBreaker(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, cb.Execute(ctx, succeeding), context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_PanicRecovery(t *testing.T) {
	cb, _ := newTestBreaker(2)
	ctx := context.Background()

	assert.Panics(t, func() {
		cb.Execute(ctx, func(ctx context.Context) error {
			panic("test panic")
		})
	})
	assert.Equal(t, uint32(1), cb.failures)

	assert.NoError(t, cb.Execute(ctx, succeeding))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_StateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
}

// Random Tests

func TestGenerateTrackingCode(t *testing.T) {
	for i := 0; i < 1000; i++ {
		code, err := GenerateTrackingCode()
		require.NoError(t, err)
		require.Len(t, code, 6)

		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 100000)
		assert.LessOrEqual(t, n, 999999)
	}
}

func TestRandomIndex(t *testing.T) {
	seen := make(map[int]bool)
	for i := 0; i < 500; i++ {
		idx, err := RandomIndex(3)
		require.NoError(t, err)
		require.True(t, idx >= 0 && idx < 3)
		seen[idx] = true
	}
	assert.Len(t, seen, 3)
}

func TestHashSecret(t *testing.T) {
	a := HashSecret("my-secret")

	assert.Len(t, a, 64)
	assert.Equal(t, a, HashSecret("my-secret"))
	assert.NotEqual(t, a, HashSecret("other-secret"))
}

// Redis Client Tests

func TestRedisHealthCheck_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()

	mock.ExpectPing().SetVal("PONG")

	err := RedisHealthCheck(db)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisHealthCheck_Failure(t *testing.T) {
	db, mock := redismock.NewClientMock()

	expectedError := errors.New("connection failed")
	mock.ExpectPing().SetErr(expectedError)

	err := RedisHealthCheck(db)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis health check failed")
	assert.Contains(t, err.Error(), "connection failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Benchmark Tests

func BenchmarkCircuitBreaker_Execute_Success(b *testing.B) {
	cb := NewCircuitBreaker("benchmark", 5, time.Second)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cb.Execute(ctx, succeeding)
	}
}

func BenchmarkGenerateTrackingCode(b *testing.B) {
	for i := 0; i < b.N; i++ {
		GenerateTrackingCode()
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in       string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLogLevel(tt.in))
		})
	}
}

func TestNewLogger_WritesFile(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	path := filepath.Join(t.TempDir(), "raffle.log")
	logger := NewLogger("debug", path)
	logger.Debug("Ticket registered", "raffle_id", "r1")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"Ticket registered"`)
	assert.Contains(t, string(data), `"raffle_id":"r1"`)
	assert.Same(t, logger, slog.Default())
}
