package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManual_Now(t *testing.T) {
	start := time.Unix(1000, 0)
	clk := NewManual(start)

	assert.True(t, clk.Now().Equal(start))

	clk.Advance(90 * time.Second)
	assert.True(t, clk.Now().Equal(start.Add(90*time.Second)))

	later := start.Add(time.Hour)
	clk.Set(later)
	assert.True(t, clk.Now().Equal(later))
}

func TestManual_AfterFiresOnAdvance(t *testing.T) {
	clk := NewManual(time.Unix(1000, 0))
	ch := clk.After(10 * time.Second)

	select {
	case <-ch:
		t.Fatal("timer fired before its deadline")
	default:
	}

	clk.Advance(9 * time.Second)
	select {
	case <-ch:
		t.Fatal("timer fired early")
	default:
	}

	clk.Advance(time.Second)
	select {
	case got := <-ch:
		assert.True(t, got.Equal(time.Unix(1010, 0)))
	default:
		t.Fatal("timer did not fire at its deadline")
	}
}

func TestManual_AfterZeroFiresImmediately(t *testing.T) {
	clk := NewManual(time.Unix(1000, 0))

	select {
	case <-clk.After(0):
	default:
		t.Fatal("zero-duration timer must be ready immediately")
	}
}

func TestManual_MultipleWaiters(t *testing.T) {
	clk := NewManual(time.Unix(1000, 0))
	early := clk.After(5 * time.Second)
	late := clk.After(20 * time.Second)

	clk.Advance(10 * time.Second)
	select {
	case <-early:
	default:
		t.Fatal("earlier timer should have fired")
	}
	select {
	case <-late:
		t.Fatal("later timer fired early")
	default:
	}

	clk.Advance(10 * time.Second)
	select {
	case <-late:
	default:
		t.Fatal("later timer should have fired")
	}
}

func TestManual_PanicsOnTimeTravel(t *testing.T) {
	clk := NewManual(time.Unix(1000, 0))

	assert.Panics(t, func() { clk.Advance(-time.Second) })
	assert.Panics(t, func() { clk.Set(time.Unix(999, 0)) })
}

func TestSystem_NowTracksWallClock(t *testing.T) {
	clk := NewSystem()

	before := time.Now()
	got := clk.Now()
	after := time.Now()

	require.False(t, got.Before(before))
	require.False(t, got.After(after))
}

func TestSystem_After(t *testing.T) {
	clk := NewSystem()

	select {
	case <-clk.After(time.Millisecond):
	case <-time.After(time.Second):
		t.Fatal("system timer did not fire")
	}
}
