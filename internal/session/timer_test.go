package session

import (
	"testing"
	"time"

	"github.com/MrWong99/intervox/internal/clock"
)

func TestTimer_TicksAndExpiresOnce(t *testing.T) {
	c := clock.NewFake(epoch)
	var ticks []time.Duration
	expired := 0
	tm := NewTimer(c, 3*time.Second, func(r time.Duration) { ticks = append(ticks, r) }, func() { expired++ })
	tm.Start()

	c.Advance(2 * time.Second)
	if len(ticks) != 2 || ticks[1] != time.Second {
		t.Fatalf("ticks = %v, want [2s 1s]", ticks)
	}
	if expired != 0 {
		t.Fatalf("expired = %d before zero", expired)
	}
	c.Advance(5 * time.Second)
	if expired != 1 {
		t.Errorf("expired = %d, want 1", expired)
	}
	if len(ticks) != 3 || ticks[2] != 0 {
		t.Errorf("ticks = %v, want [2s 1s 0s]", ticks)
	}
	if !tm.Expired() || tm.Remaining() != 0 {
		t.Errorf("Expired = %v, Remaining = %v", tm.Expired(), tm.Remaining())
	}
	if c.Pending() != 0 {
		t.Errorf("pending timers = %d, want 0", c.Pending())
	}
	tm.Start()
	c.Advance(5 * time.Second)
	if expired != 1 {
		t.Errorf("restart after expiry fired again: %d", expired)
	}
}

func TestTimer_StopPreventsExpiry(t *testing.T) {
	c := clock.NewFake(epoch)
	expired := false
	tm := NewTimer(c, 2*time.Second, nil, func() { expired = true })
	tm.Start()
	c.Advance(time.Second)
	tm.Stop()
	tm.Stop()
	c.Advance(10 * time.Second)
	if expired {
		t.Error("stopped timer expired")
	}
	if tm.Remaining() != time.Second {
		t.Errorf("Remaining = %v, want 1s", tm.Remaining())
	}
	if c.Pending() != 0 {
		t.Errorf("pending timers = %d, want 0", c.Pending())
	}
}

func TestTimer_FractionalDuration(t *testing.T) {
	c := clock.NewFake(epoch)
	expired := false
	tm := NewTimer(c, 1500*time.Millisecond, nil, func() { expired = true })
	tm.Start()
	c.Advance(time.Second)
	if expired {
		t.Fatal("expired after 1s of 1.5s")
	}
	c.Advance(500 * time.Millisecond)
	if !expired {
		t.Error("not expired at 1.5s")
	}
}

func TestFormatCountdown(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00"},
		{-time.Second, "00:00"},
		{time.Second, "00:01"},
		{59 * time.Second, "00:59"},
		{2 * time.Minute, "02:00"},
		{15*time.Minute - time.Second, "14:59"},
		{1500 * time.Millisecond, "00:02"},
		{90 * time.Minute, "90:00"},
	}
	for _, tc := range tests {
		if got := FormatCountdown(tc.d); got != tc.want {
			t.Errorf("FormatCountdown(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
