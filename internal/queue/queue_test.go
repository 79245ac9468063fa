package queue

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestTask_CommandLine(t *testing.T) {
	tests := []struct {
		name string
		task Task
		want string
	}{
		{name: "prefix and suffix", task: Task{Prefix: "echo", Suffix: "hello"}, want: "echo hello"},
		{name: "multi-word prefix", task: Task{Prefix: "yt-dlp -f 233", Suffix: "abc"}, want: "yt-dlp -f 233 abc"},
		{name: "empty suffix", task: Task{Prefix: "date"}, want: "date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.task.CommandLine(); got != tt.want {
				t.Errorf("CommandLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestQueue_RejectsWhenFull(t *testing.T) {
	const capacity = 4

	q := New(capacity)

	for i := 0; i < capacity; i++ {
		if err := q.TryEnqueue(Task{Prefix: "echo", Suffix: fmt.Sprint(i)}); err != nil {
			t.Fatalf("TryEnqueue(%d) error = %v", i, err)
		}
	}

	for i := 0; i < 3; i++ {
		if err := q.TryEnqueue(Task{Prefix: "echo", Suffix: "overflow"}); !errors.Is(err, ErrQueueFull) {
			t.Fatalf("TryEnqueue on full queue error = %v, want ErrQueueFull", err)
		}
	}

	if _, ok := q.Dequeue(); !ok {
		t.Fatal("Dequeue() ok = false, want true")
	}

	if err := q.TryEnqueue(Task{Prefix: "echo", Suffix: "again"}); err != nil {
		t.Fatalf("TryEnqueue after dequeue error = %v", err)
	}

	if got := q.Len(); got != capacity {
		t.Errorf("Len() = %d, want %d", got, capacity)
	}
}

func TestQueue_FIFOAcrossWrap(t *testing.T) {
	q := New(3)

	var want []string

	enqueue := func(s string) {
		t.Helper()

		if err := q.TryEnqueue(Task{Prefix: "p", Suffix: s}); err != nil {
			t.Fatalf("TryEnqueue(%q) error = %v", s, err)
		}

		want = append(want, s)
	}

	enqueue("a")
	enqueue("b")
	enqueue("c")

	var got []string

	task, _ := q.Dequeue()
	got = append(got, task.Suffix)

	enqueue("d")

	for q.Len() > 0 {
		task, _ := q.Dequeue()
		got = append(got, task.Suffix)
	}

	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("dequeue order = %v, want %v", got, want)
	}
}

func TestQueue_DequeueClearsSlot(t *testing.T) {
	q := New(2)
	_ = q.TryEnqueue(Task{Prefix: "echo", Suffix: "x"})

	if _, ok := q.Dequeue(); !ok {
		t.Fatal("Dequeue() ok = false")
	}

	for i, slot := range q.slots {
		if slot != (Task{}) {
			t.Errorf("slot %d still holds %+v after dequeue", i, slot)
		}
	}
}

func TestQueue_DequeueBlocksUntilEnqueue(t *testing.T) {
	q := New(2)

	got := make(chan Task, 1)

	go func() {
		task, _ := q.Dequeue()
		got <- task
	}()

	select {
	case task := <-got:
		t.Fatalf("Dequeue returned %+v on an empty queue", task)
	case <-time.After(50 * time.Millisecond):
	}

	if err := q.TryEnqueue(Task{Prefix: "echo", Suffix: "late"}); err != nil {
		t.Fatalf("TryEnqueue() error = %v", err)
	}

	select {
	case task := <-got:
		if task.Suffix != "late" {
			t.Errorf("Dequeue() = %+v, want suffix late", task)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Dequeue did not wake after TryEnqueue")
	}
}

func TestQueue_ShutdownWakesWaiters(t *testing.T) {
	q := New(2)

	const waiters = 3

	var wg sync.WaitGroup

	results := make(chan bool, waiters)

	for i := 0; i < waiters; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, ok := q.Dequeue()
			results <- ok
		}()
	}

	time.Sleep(20 * time.Millisecond)

	start := time.Now()

	q.Shutdown()
	q.Shutdown() // idempotent

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not wake blocked Dequeue calls")
	}

	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("waiters woke after %v, want prompt wake", elapsed)
	}

	close(results)

	for ok := range results {
		if ok {
			t.Error("Dequeue after Shutdown on empty queue returned a task")
		}
	}

	if _, ok := q.Dequeue(); ok {
		t.Error("Dequeue after Shutdown returned ok = true")
	}
}

func TestQueue_ShutdownDrainsPending(t *testing.T) {
	q := New(4)
	_ = q.TryEnqueue(Task{Prefix: "echo", Suffix: "1"})
	_ = q.TryEnqueue(Task{Prefix: "echo", Suffix: "2"})

	q.Shutdown()

	if err := q.TryEnqueue(Task{Prefix: "echo", Suffix: "3"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("TryEnqueue after Shutdown error = %v, want ErrClosed", err)
	}

	for _, want := range []string{"1", "2"} {
		task, ok := q.Dequeue()
		if !ok || task.Suffix != want {
			t.Fatalf("Dequeue() = %+v, %v; want suffix %s", task, ok, want)
		}
	}

	if _, ok := q.Dequeue(); ok {
		t.Fatal("Dequeue on drained, shut-down queue returned ok = true")
	}
}

func TestQueue_SnapshotIsOrderedCopy(t *testing.T) {
	q := New(3)
	for _, s := range []string{"a", "b", "c"} {
		_ = q.TryEnqueue(Task{Prefix: "p", Suffix: s})
	}

	_, _ = q.Dequeue()
	_ = q.TryEnqueue(Task{Prefix: "p", Suffix: "d"})

	snap := q.Snapshot()
	if snap.Count != 3 {
		t.Fatalf("Snapshot().Count = %d, want 3", snap.Count)
	}

	var got []string
	for _, task := range snap.Pending {
		got = append(got, task.Suffix)
	}

	if fmt.Sprint(got) != "[b c d]" {
		t.Errorf("Snapshot().Pending = %v, want [b c d]", got)
	}

	snap.Pending[0].Suffix = "mutated"

	if again := q.Snapshot(); again.Pending[0].Suffix != "b" {
		t.Errorf("mutating a snapshot changed the queue: %+v", again.Pending[0])
	}

	if q.Len() != 3 {
		t.Errorf("Snapshot mutated queue length: %d", q.Len())
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	const (
		producers = 8
		perWorker = 50
	)

	q := New(producers * perWorker)

	var wg sync.WaitGroup

	for p := 0; p < producers; p++ {
		wg.Add(1)

		go func(p int) {
			defer wg.Done()

			for i := 0; i < perWorker; i++ {
				if err := q.TryEnqueue(Task{Prefix: fmt.Sprint(p), Suffix: fmt.Sprint(i)}); err != nil {
					t.Errorf("TryEnqueue error = %v", err)
				}
			}
		}(p)
	}

	wg.Wait()
	q.Shutdown()

	// Per-producer order must be preserved.
	next := make(map[string]int)
	total := 0

	for {
		task, ok := q.Dequeue()
		if !ok {
			break
		}

		want := fmt.Sprint(next[task.Prefix])
		if task.Suffix != want {
			t.Fatalf("producer %s: got suffix %s, want %s", task.Prefix, task.Suffix, want)
		}

		next[task.Prefix]++
		total++
	}

	if total != producers*perWorker {
		t.Errorf("dequeued %d tasks, want %d", total, producers*perWorker)
	}
}

func TestNew_DefaultCapacity(t *testing.T) {
	if got := New(0).Cap(); got != DefaultCapacity {
		t.Errorf("New(0).Cap() = %d, want %d", got, DefaultCapacity)
	}
}
