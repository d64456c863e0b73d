package audio_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/voxdesk/pkg/audio"
)

func TestOutboundQueue_DefaultCapacity(t *testing.T) {
	t.Parallel()

	q := audio.NewOutboundQueue(0, nil)
	if q.Cap() != audio.DefaultOutboundCapacity {
		t.Errorf("Cap() = %d, want %d", q.Cap(), audio.DefaultOutboundCapacity)
	}
}

func TestOutboundQueue_DropsNewestWhenFull(t *testing.T) {
	t.Parallel()

	var drops atomic.Int32
	q := audio.NewOutboundQueue(5, func() { drops.Add(1) })

	for i := range 7 {
		ok := q.TryPush([]byte{byte(i)})
		if want := i < 5; ok != want {
			t.Errorf("TryPush(%d) = %v, want %v", i, ok, want)
		}
	}

	if q.Len() != 5 {
		t.Errorf("Len() = %d, want 5", q.Len())
	}
	if q.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", q.Dropped())
	}
	if drops.Load() != 2 {
		t.Errorf("drop hook called %d times, want 2", drops.Load())
	}

	// The oldest frames survive; frames 5 and 6 were the ones dropped.
	ctx := context.Background()
	for i := range 5 {
		got, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		if !bytes.Equal(got, []byte{byte(i)}) {
			t.Errorf("Pop #%d = %v, want [%d]", i, got, i)
		}
	}
}

func TestOutboundQueue_TryPushNeverBlocks(t *testing.T) {
	t.Parallel()

	q := audio.NewOutboundQueue(1, nil)
	done := make(chan struct{})
	go func() {
		for range 1000 {
			q.TryPush([]byte{1})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("TryPush blocked with no consumer")
	}
	if q.Len() > q.Cap() {
		t.Errorf("Len() = %d exceeds Cap() = %d", q.Len(), q.Cap())
	}
}

func TestOutboundQueue_PopBlocksUntilPush(t *testing.T) {
	t.Parallel()

	q := audio.NewOutboundQueue(2, nil)
	got := make(chan []byte, 1)
	go func() {
		frame, err := q.Pop(context.Background())
		if err == nil {
			got <- frame
		}
	}()

	select {
	case <-got:
		t.Fatal("Pop returned before anything was pushed")
	case <-time.After(20 * time.Millisecond):
	}

	q.TryPush([]byte{42})
	select {
	case frame := <-got:
		if !bytes.Equal(frame, []byte{42}) {
			t.Errorf("Pop = %v, want [42]", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Pop did not wake up after push")
	}
}

func TestOutboundQueue_PopCancelled(t *testing.T) {
	t.Parallel()

	q := audio.NewOutboundQueue(2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Pop(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Pop error = %v, want context.Canceled", err)
	}
}

func TestOutboundQueue_ConcurrentProducerConsumerKeepsOrder(t *testing.T) {
	t.Parallel()

	q := audio.NewOutboundQueue(5, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const n = 500
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range n {
			for !q.TryPush([]byte{byte(i >> 8), byte(i)}) {
				time.Sleep(time.Microsecond)
			}
		}
	}()

	prev := -1
	for range n {
		frame, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		v := int(frame[0])<<8 | int(frame[1])
		if v <= prev {
			t.Fatalf("frame %d arrived after %d", v, prev)
		}
		prev = v
	}
	wg.Wait()
}

func TestInboundQueue_FIFO(t *testing.T) {
	t.Parallel()

	var q audio.InboundQueue
	if _, ok := q.TryPop(); ok {
		t.Fatal("TryPop on empty queue reported an item")
	}

	for i := range 100 {
		q.Push([]byte{byte(i)})
	}
	if q.Len() != 100 {
		t.Errorf("Len() = %d, want 100", q.Len())
	}
	for i := range 100 {
		got, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop #%d reported empty", i)
		}
		if got[0] != byte(i) {
			t.Errorf("TryPop #%d = %d", i, got[0])
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Error("queue should be empty after draining")
	}
}

func TestInboundQueue_ConcurrentPushPop(t *testing.T) {
	t.Parallel()

	var q audio.InboundQueue
	const n = 1000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range n {
			q.Push([]byte{byte(i)})
		}
	}()

	popped := 0
	deadline := time.Now().Add(5 * time.Second)
	for popped < n && time.Now().Before(deadline) {
		if _, ok := q.TryPop(); ok {
			popped++
		}
	}
	wg.Wait()
	if popped != n {
		t.Errorf("popped %d chunks, want %d", popped, n)
	}
}
