package timectrl

import (
	"errors"
	"testing"
)

func TestClockAdvance(t *testing.T) {
	c := NewClock(0)

	var ticks []float64
	c.AddListener(func(now float64) { ticks = append(ticks, now) })

	for _, step := range []float64{0, 4, 4, 8.5} {
		if err := c.AdvanceTo(step); err != nil {
			t.Fatalf("AdvanceTo(%g) error: %v", step, err)
		}
	}
	if got := c.Now(); got != 8.5 {
		t.Fatalf("Now() = %g, want 8.5", got)
	}
	if len(ticks) != 2 || ticks[0] != 4 || ticks[1] != 8.5 {
		t.Fatalf("listener ticks = %v, want [4 8.5]", ticks)
	}
}

func TestClockRejectsRewind(t *testing.T) {
	c := NewClock(10)
	if err := c.AdvanceTo(9); !errors.Is(err, ErrClockRewind) {
		t.Fatalf("AdvanceTo(9) = %v, want ErrClockRewind", err)
	}
	if c.Now() != 10 || c.Start() != 10 {
		t.Fatalf("clock moved after rejected rewind: now=%g", c.Now())
	}
}

func TestClockImplementsSimClock(t *testing.T) {
	var _ SimClock = NewClock(0)
}

func TestClockListenerAddedDuringAdvance(t *testing.T) {
	c := NewClock(0)

	var late []float64
	c.AddListener(func(now float64) {
		if now == 1 {
			c.AddListener(func(now float64) { late = append(late, now) })
		}
	})

	for _, step := range []float64{1, 2} {
		if err := c.AdvanceTo(step); err != nil {
			t.Fatalf("AdvanceTo(%g) error: %v", step, err)
		}
	}
	if len(late) != 1 || late[0] != 2 {
		t.Fatalf("late listener ticks = %v, want [2]", late)
	}
}
