package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLocalMutualExclusion(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
		counter int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, "book")
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			counter++

			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxSeen)
	}
	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
	if l.Len() != 0 {
		t.Errorf("Len = %d after all releases, want 0", l.Len())
	}
}

func TestLocalIndependentKeys(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	releaseA, err := l.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("Acquire a: %v", err)
	}
	defer releaseA()

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	releaseB, err := l.Acquire(ctx2, "b")
	if err != nil {
		t.Fatalf("Acquire b while a held: %v", err)
	}
	releaseB()
}

func TestLocalContextCancel(t *testing.T) {
	l := NewLocal()
	release, err := l.Acquire(context.Background(), "book")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, "book"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}

	release()
	release() // second call is a no-op
	if l.Len() != 0 {
		t.Errorf("Len = %d, want 0", l.Len())
	}

	again, err := l.Acquire(context.Background(), "book")
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	again()
}
