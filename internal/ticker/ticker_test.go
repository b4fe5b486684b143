package ticker

import "testing"

func TestOneShot(t *testing.T) {
	var clk Clock
	tm := New(&clk)

	tm.Start(100)
	if tm.Expired() {
		t.Fatal("expired before deadline")
	}
	clk.Advance(100)
	if !tm.Expired() {
		t.Fatal("expected expiry")
	}
	if tm.Expired() {
		t.Fatal("one-shot timer fired twice")
	}
	if tm.Running() {
		t.Fatal("one-shot timer still running after expiry")
	}
}

func TestRepeating(t *testing.T) {
	var clk Clock
	tm := New(&clk)

	tm.StartRepeating(10)
	clk.Advance(10)
	if !tm.Expired() {
		t.Fatal("expected first expiry")
	}
	clk.Advance(10)
	if !tm.Expired() {
		t.Fatal("expected second expiry")
	}
	if !tm.Running() {
		t.Fatal("repeating timer should stay armed")
	}
}

func TestStop(t *testing.T) {
	var clk Clock
	tm := New(&clk)

	tm.Start(5)
	tm.Stop()
	clk.Advance(5)
	if tm.Expired() {
		t.Fatal("stopped timer should not expire")
	}
}
