package queue

import (
	"context"
	"testing"
	"time"
)

func TestPushTryPopOrder(t *testing.T) {
	q := New[int](0)
	q.Push(1)
	q.Push(2)
	q.Push(3)

	for _, want := range []int{1, 2, 3} {
		got, ok := q.TryPop()
		if !ok || got != want {
			t.Fatalf("TryPop() = (%d, %v), want (%d, true)", got, ok, want)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Fatalf("TryPop() on empty queue should report ok=false")
	}
}

func TestPushDropsOldestWhenBounded(t *testing.T) {
	q := New[int](2)
	q.Push(1)
	q.Push(2)
	q.Push(3) // should drop 1

	got, ok := q.TryPop()
	if !ok || got != 2 {
		t.Fatalf("TryPop() = (%d, %v), want (2, true)", got, ok)
	}
	got, ok = q.TryPop()
	if !ok || got != 3 {
		t.Fatalf("TryPop() = (%d, %v), want (3, true)", got, ok)
	}
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := New[string](0)
	done := make(chan string, 1)
	go func() {
		v, ok := q.Pop(context.Background())
		if !ok {
			done <- "pop failed"
			return
		}
		done <- v
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push("hello")

	select {
	case v := <-done:
		if v != "hello" {
			t.Fatalf("Pop() = %q, want %q", v, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("Pop() did not return after Push")
	}
}

func TestPopReturnsOnContextCancel(t *testing.T) {
	q := New[int](0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok := q.Pop(ctx)
	if ok {
		t.Fatalf("Pop() on cancelled context should report ok=false")
	}
}

func TestPopReturnsOnClose(t *testing.T) {
	q := New[int](0)
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop(context.Background())
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Fatalf("Pop() after Close should report ok=false")
		}
	case <-time.After(time.Second):
		t.Fatal("Pop() did not return after Close")
	}
}

func TestPushAfterCloseIsNoop(t *testing.T) {
	q := New[int](0)
	q.Close()
	q.Push(1)
	if n := q.Len(); n != 0 {
		t.Fatalf("Len() = %d, want 0", n)
	}
}
