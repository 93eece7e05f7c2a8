package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeClock_NowIsFrozen(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)

	assert.Equal(t, start, c.Now())
	assert.Equal(t, start, c.Now(), "time must not move without Advance")
}

func TestFakeClock_AfterFiresOnAdvance(t *testing.T) {
	c := NewFakeClock(time.Unix(0, 0))
	ch := c.After(5 * time.Second)

	select {
	case <-ch:
		t.Fatal("timer fired before Advance")
	default:
	}

	c.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("timer fired before its deadline")
	default:
	}

	c.Advance(1 * time.Second)
	select {
	case tm := <-ch:
		assert.Equal(t, time.Unix(5, 0), tm)
	default:
		t.Fatal("timer did not fire at its deadline")
	}
}

func TestFakeClock_ZeroDurationFiresImmediately(t *testing.T) {
	c := NewFakeClock(time.Unix(0, 0))
	select {
	case <-c.After(0):
	default:
		t.Fatal("zero-duration timer must fire immediately")
	}
}

func TestFakeClock_Waiters(t *testing.T) {
	c := NewFakeClock(time.Unix(0, 0))
	require.Equal(t, 0, c.Waiters())

	c.After(time.Second)
	c.After(2 * time.Second)
	assert.Equal(t, 2, c.Waiters())

	c.Advance(time.Second)
	assert.Equal(t, 1, c.Waiters())

	c.Advance(time.Second)
	assert.Equal(t, 0, c.Waiters())
}
