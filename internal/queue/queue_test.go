package queue

import "testing"

func TestQueueFIFO(t *testing.T) {
	q := New[int](3)
	for i := 1; i <= 3; i++ {
		if err := q.Push(i); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	if err := q.Push(4); err != ErrFull {
		t.Fatalf("expected ErrFull, got %v", err)
	}
	for i := 1; i <= 3; i++ {
		v, err := q.Pop()
		if err != nil {
			t.Fatalf("pop: %v", err)
		}
		if v != i {
			t.Fatalf("expected %d, got %d", i, v)
		}
	}
	if _, err := q.Pop(); err != ErrEmpty {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestQueueWrapsAroundCapacity(t *testing.T) {
	q := New[int](2)
	q.Push(1)
	q.Pop()
	q.Push(2)
	q.Push(3)
	v, _ := q.Pop()
	if v != 2 {
		t.Fatalf("expected 2, got %d", v)
	}
	v, _ = q.Pop()
	if v != 3 {
		t.Fatalf("expected 3, got %d", v)
	}
}

func TestRingWriteReadAndDrop(t *testing.T) {
	r := NewRing(4)
	n := r.Write([]byte{1, 2, 3, 4, 5})
	if n != 4 {
		t.Fatalf("expected 4 written, got %d", n)
	}
	if r.Drops() != 1 {
		t.Fatalf("expected 1 drop, got %d", r.Drops())
	}
	buf := make([]byte, 2)
	n = r.Read(buf)
	if n != 2 || buf[0] != 1 || buf[1] != 2 {
		t.Fatalf("unexpected read: %v (%d)", buf, n)
	}
	if r.HighWater() != 4 {
		t.Fatalf("expected high water 4, got %d", r.HighWater())
	}
}
