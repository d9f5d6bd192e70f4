package breaker

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errBlocked = errors.New("blocked")
	errOther   = errors.New("timeout")
)

func TestManagerTripsOnSelectedFailures(t *testing.T) {
	var transitions atomic.Int32
	mock := clock.NewMock()
	m := NewManager[string](
		Rule{ConsecutiveFailures: 2, Cooldown: 15 * time.Minute},
		func(err error) bool { return errors.Is(err, errBlocked) },
		WithStateChange[string](func(string, gobreaker.State, gobreaker.State) { transitions.Add(1) }),
		WithClock[string](mock),
	)

	fail := func(err error) func() (string, error) {
		return func() (string, error) { return "", err }
	}

	_, err := m.Execute("sec", fail(errBlocked))
	require.ErrorIs(t, err, errBlocked)
	_, err = m.Execute("sec", fail(errOther))
	require.ErrorIs(t, err, errOther)
	assert.Equal(t, gobreaker.StateClosed, m.State("sec"), "a non-selected error resets the streak")

	_, _ = m.Execute("sec", fail(errBlocked))
	_, _ = m.Execute("sec", fail(errBlocked))
	assert.Equal(t, gobreaker.StateOpen, m.State("sec"))

	called := false
	_, err = m.Execute("sec", func() (string, error) {
		called = true
		return "ok", nil
	})
	assert.True(t, IsRejected(err))
	assert.False(t, called)

	assert.Equal(t, gobreaker.StateClosed, m.State("finviz"), "breakers are independent per name")

	mock.Add(15 * time.Minute)
	assert.Equal(t, gobreaker.StateHalfOpen, m.State("sec"))
	got, err := m.Execute("sec", func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, gobreaker.StateClosed, m.State("sec"))
	assert.GreaterOrEqual(t, transitions.Load(), int32(3))
}

func TestManagerReusesBreaker(t *testing.T) {
	m := NewManager[int](Rule{}, nil)
	assert.Same(t, m.get("a"), m.get("a"))
	assert.NotSame(t, m.get("a"), m.get("b"))
}

func TestManagerCooldownFollowsClock(t *testing.T) {
	mock := clock.NewMock()
	m := NewManager[int](Rule{ConsecutiveFailures: 1, Cooldown: time.Minute}, nil, WithClock[int](mock))

	_, err := m.Execute("sec", func() (int, error) { return 0, errBlocked })
	require.ErrorIs(t, err, errBlocked)
	assert.Equal(t, gobreaker.StateOpen, m.State("sec"))

	// Wall time passing does not end the cooldown.
	time.Sleep(5 * time.Millisecond)
	mock.Add(59 * time.Second)
	assert.Equal(t, gobreaker.StateOpen, m.State("sec"))
	_, err = m.Execute("sec", func() (int, error) { return 1, nil })
	assert.True(t, IsRejected(err))

	// A failed trial call reopens for a full cooldown from that call.
	mock.Add(time.Second)
	_, err = m.Execute("sec", func() (int, error) { return 0, errBlocked })
	require.ErrorIs(t, err, errBlocked)
	assert.Equal(t, gobreaker.StateOpen, m.State("sec"))
	mock.Add(30 * time.Second)
	assert.Equal(t, gobreaker.StateOpen, m.State("sec"))

	mock.Add(30 * time.Second)
	got, err := m.Execute("sec", func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, gobreaker.StateClosed, m.State("sec"))
}

func TestIsRejected(t *testing.T) {
	assert.True(t, IsRejected(gobreaker.ErrOpenState))
	assert.True(t, IsRejected(gobreaker.ErrTooManyRequests))
	assert.False(t, IsRejected(errOther))
	assert.False(t, IsRejected(nil))
}
