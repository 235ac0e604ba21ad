package clock

import (
	"testing"
	"time"
)

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	c := NewFake(start)
	if !c.Now().Equal(start) || c.Now().Location() != time.UTC {
		t.Fatalf("expected UTC copy of start, got %v", c.Now())
	}
	c.Advance(90 * time.Second)
	if got := c.Now().Sub(start); got != 90*time.Second {
		t.Fatalf("expected 90s elapsed, got %v", got)
	}
}

func TestSystemIsUTC(t *testing.T) {
	if System().Now().Location() != time.UTC {
		t.Fatalf("system clock must report UTC")
	}
}
