package clock

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := &RealClock{}

	before := time.Now()
	actual := clock.Now()
	after := time.Now()

	if actual.Before(before) || actual.After(after) {
		t.Errorf("RealClock.Now() returned time outside expected range: got %v, expected between %v and %v", actual, before, after)
	}
	if actual.Location() != time.UTC {
		t.Errorf("RealClock.Now() location = %v, want UTC", actual.Location())
	}
}

func TestFakeClock(t *testing.T) {
	fixedTime := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	t.Run("frozen clock returns same time", func(t *testing.T) {
		clock := NewFakeClock(fixedTime)
		first := clock.Now()
		second := clock.Now()
		if !first.Equal(fixedTime) || !second.Equal(fixedTime) {
			t.Errorf("FakeClock.Now() = %v, %v, want %v", first, second, fixedTime)
		}
	})

	t.Run("set and advance", func(t *testing.T) {
		clock := NewFakeClock(fixedTime)
		clock.Advance(2 * time.Hour)
		if got := clock.Now(); !got.Equal(fixedTime.Add(2 * time.Hour)) {
			t.Errorf("after Advance, Now() = %v", got)
		}

		later := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		clock.Set(later)
		if got := clock.Now(); !got.Equal(later) {
			t.Errorf("after Set, Now() = %v, want %v", got, later)
		}
	})

	t.Run("stepping clock advances per call", func(t *testing.T) {
		clock := NewSteppingClock(fixedTime, time.Millisecond)
		first := clock.Now()
		second := clock.Now()
		if second.Sub(first) != time.Millisecond {
			t.Errorf("expected 1ms step, got %v", second.Sub(first))
		}
	})
}
