package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFailed = errors.New("failed")

// clock is a manually advanced time source
type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(settings Settings) (*Breaker, *clock) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	b := New("test", settings)
	b.now = c.now
	b.expiry = c.now().Add(b.settings.Interval)
	return b, c
}

func tripAfter(n uint32) func(Counts) bool {
	return func(c Counts) bool { return c.ConsecutiveFailures >= n }
}

func run(b *Breaker, success bool) error {
	_, err := Do(b, func() (string, error) {
		if success {
			return "ok", nil
		}
		return "", errFailed
	})
	return err
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		requests []bool
		wait     time.Duration
		want     State
	}{
		{
			name:     "stays closed on successes",
			settings: Settings{Interval: time.Minute, Timeout: time.Minute},
			requests: []bool{true, true, true},
			want:     StateClosed,
		},
		{
			name:     "opens after consecutive failures",
			settings: Settings{Interval: time.Minute, Timeout: time.Minute, ReadyToTrip: tripAfter(3)},
			requests: []bool{false, false, false},
			want:     StateOpen,
		},
		{
			name:     "a success resets the failure streak",
			settings: Settings{Interval: time.Minute, Timeout: time.Minute, ReadyToTrip: tripAfter(2)},
			requests: []bool{false, true, false},
			want:     StateClosed,
		},
		{
			name:     "half-open after timeout",
			settings: Settings{Interval: time.Minute, Timeout: 10 * time.Second, ReadyToTrip: tripAfter(2)},
			requests: []bool{false, false},
			wait:     11 * time.Second,
			want:     StateHalfOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, c := newTestBreaker(tt.settings)
			for _, success := range tt.requests {
				_ = run(b, success)
			}
			c.advance(tt.wait)
			assert.Equal(t, tt.want, b.State())
		})
	}
}

func TestBreakerCounts(t *testing.T) {
	b, _ := newTestBreaker(Settings{Interval: time.Minute, Timeout: time.Minute})

	require.NoError(t, run(b, true))
	counts := b.Counts()
	assert.Equal(t, uint32(1), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)
	assert.Equal(t, uint32(1), counts.ConsecutiveSuccesses)

	assert.ErrorIs(t, run(b, false), errFailed)
	counts = b.Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalFailures)
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveSuccesses)
}

func TestBreakerIntervalClearsCounts(t *testing.T) {
	b, c := newTestBreaker(Settings{Interval: time.Minute, Timeout: time.Minute, ReadyToTrip: tripAfter(2)})

	_ = run(b, false)
	c.advance(2 * time.Minute)
	_ = run(b, false)

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, uint32(1), b.Counts().ConsecutiveFailures)
}

func TestBreakerOpenRejects(t *testing.T) {
	b, _ := newTestBreaker(Settings{Interval: time.Minute, Timeout: time.Minute, ReadyToTrip: tripAfter(2)})
	_ = run(b, false)
	_ = run(b, false)

	called := false
	_, err := Do(b, func() (int, error) {
		called = true
		return 1, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpen(t *testing.T) {
	t.Run("closes after enough successes", func(t *testing.T) {
		b, c := newTestBreaker(Settings{MaxRequests: 2, Interval: time.Minute, Timeout: time.Second, ReadyToTrip: tripAfter(2)})
		_ = run(b, false)
		_ = run(b, false)
		c.advance(2 * time.Second)
		require.Equal(t, StateHalfOpen, b.State())

		require.NoError(t, run(b, true))
		assert.Equal(t, StateHalfOpen, b.State())
		require.NoError(t, run(b, true))
		assert.Equal(t, StateClosed, b.State())
	})

	t.Run("reopens on failure", func(t *testing.T) {
		b, c := newTestBreaker(Settings{Interval: time.Minute, Timeout: time.Second, ReadyToTrip: tripAfter(1)})
		_ = run(b, false)
		c.advance(2 * time.Second)

		assert.ErrorIs(t, run(b, false), errFailed)
		assert.Equal(t, StateOpen, b.State())
	})

	t.Run("limits concurrent half-open calls", func(t *testing.T) {
		b, c := newTestBreaker(Settings{MaxRequests: 1, Interval: time.Minute, Timeout: time.Second, ReadyToTrip: tripAfter(1)})
		_ = run(b, false)
		c.advance(2 * time.Second)

		done, err := b.Allow()
		require.NoError(t, err)
		_, err = b.Allow()
		assert.ErrorIs(t, err, ErrTooManyRequests)
		done(true)
		assert.Equal(t, StateClosed, b.State())
	})
}

func TestBreakerAllow(t *testing.T) {
	t.Run("done reports once", func(t *testing.T) {
		b, _ := newTestBreaker(Settings{Interval: time.Minute, Timeout: time.Minute})
		done, err := b.Allow()
		require.NoError(t, err)
		done(false)
		done(false)
		assert.Equal(t, uint32(1), b.Counts().TotalFailures)
	})

	t.Run("stale outcome is ignored", func(t *testing.T) {
		b, c := newTestBreaker(Settings{Interval: time.Minute, Timeout: time.Minute})
		done, err := b.Allow()
		require.NoError(t, err)
		c.advance(2 * time.Minute)
		done(false)
		assert.Equal(t, Counts{}, b.Counts())
	})
}

func TestBreakerPanicCountsAsFailure(t *testing.T) {
	b, _ := newTestBreaker(Settings{Interval: time.Minute, Timeout: time.Minute})

	assert.Panics(t, func() {
		_, _ = b.Execute(func() (interface{}, error) { panic("boom") })
	})
	assert.Equal(t, uint32(1), b.Counts().TotalFailures)
}

func TestBreakerCallbacks(t *testing.T) {
	var transitions []string
	b, c := newTestBreaker(Settings{
		Interval:    time.Minute,
		Timeout:     time.Second,
		ReadyToTrip: tripAfter(2),
		OnStateChange: func(name string, from State, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = run(b, false)
	_ = run(b, false)
	c.advance(2 * time.Second)
	require.NoError(t, run(b, true))

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}
