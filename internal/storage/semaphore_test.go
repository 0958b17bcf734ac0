package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSemaphore_AllocateUpToCapacity(t *testing.T) {
	sem := NewSemaphore(2)
	ctx := context.Background()

	ok1, err := sem.Allocate(ctx, "host-a", PriorityNormal, time.Second)
	if err != nil || !ok1 {
		t.Fatalf("first Allocate: ok=%v err=%v", ok1, err)
	}
	ok2, err := sem.Allocate(ctx, "host-a", PriorityNormal, time.Second)
	if err != nil || !ok2 {
		t.Fatalf("second Allocate: ok=%v err=%v", ok2, err)
	}

	ok3, err := sem.Allocate(ctx, "host-a", PriorityNormal, 20*time.Millisecond)
	if ok3 || err == nil {
		t.Fatalf("third Allocate over capacity should time out, got ok=%v err=%v", ok3, err)
	}
	if !errors.Is(err, ErrTooManyConnections) {
		t.Fatalf("err = %v, want ErrTooManyConnections", err)
	}

	sem.Free("host-a")
	ok4, err := sem.Allocate(ctx, "host-a", PriorityNormal, time.Second)
	if err != nil || !ok4 {
		t.Fatalf("Allocate after Free: ok=%v err=%v", ok4, err)
	}
}

func TestSemaphore_IndependentServersDoNotShareSlots(t *testing.T) {
	sem := NewSemaphore(1)
	ctx := context.Background()

	if ok, err := sem.Allocate(ctx, "host-a", PriorityNormal, time.Second); err != nil || !ok {
		t.Fatalf("Allocate host-a: %v %v", ok, err)
	}
	if ok, err := sem.Allocate(ctx, "host-b", PriorityNormal, time.Second); err != nil || !ok {
		t.Fatalf("Allocate host-b should succeed independently: %v %v", ok, err)
	}
}

func TestSemaphore_IsServerAllocationPending(t *testing.T) {
	sem := NewSemaphore(1)
	ctx := context.Background()

	ok, err := sem.Allocate(ctx, "host-a", PriorityNormal, time.Second)
	if err != nil || !ok {
		t.Fatalf("Allocate: %v %v", ok, err)
	}
	if sem.IsServerAllocationPending("host-a") {
		t.Fatal("no pending HIGH request yet")
	}

	done := make(chan struct{})
	go func() {
		sem.Allocate(ctx, "host-a", PriorityHigh, time.Second)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for !sem.IsServerAllocationPending("host-a") {
		if time.Now().After(deadline) {
			t.Fatal("IsServerAllocationPending never became true")
		}
		time.Sleep(time.Millisecond)
	}

	sem.Free("host-a")
	<-done
}

func TestSemaphore_ContextCancellation(t *testing.T) {
	sem := NewSemaphore(1)
	ctx, cancel := context.WithCancel(context.Background())

	if ok, err := sem.Allocate(context.Background(), "host-a", PriorityNormal, time.Second); err != nil || !ok {
		t.Fatalf("Allocate: %v %v", ok, err)
	}
	cancel()
	ok, err := sem.Allocate(ctx, "host-a", PriorityNormal, time.Second)
	if ok || !errors.Is(err, context.Canceled) {
		t.Fatalf("Allocate with cancelled ctx: ok=%v err=%v", ok, err)
	}
}
