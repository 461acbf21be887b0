package tests

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/iterate"
	"github.com/wehubfusion/Daedalus/pkg/jsop"
	"github.com/wehubfusion/Daedalus/pkg/scheduler"
	"github.com/wehubfusion/Daedalus/pkg/sequence"
	"github.com/wehubfusion/Daedalus/pkg/storage"
)

// memoryBlobClient is an in-memory stand-in for blob storage.
type memoryBlobClient struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemoryBlobClient() *memoryBlobClient {
	return &memoryBlobClient{blobs: make(map[string][]byte)}
}

func (m *memoryBlobClient) Upload(ctx context.Context, blobPath string, data []byte, metadata map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[blobPath] = append([]byte(nil), data...)
	return "memory://" + blobPath, nil
}

func (m *memoryBlobClient) Download(ctx context.Context, blobPath string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[blobPath]
	if !ok {
		return nil, fmt.Errorf("blob %q not found", blobPath)
	}
	return append([]byte(nil), data...), nil
}

func TestBoundedMapOverLazySource(t *testing.T) {
	// A lazy source is enumerated once, then the run is bounded to 3 workers.
	src := sequence.Seq(func(yield func(int) bool) {
		for i := 0; i < 20; i++ {
			if !yield(i) {
				return
			}
		}
	})

	var active, peak atomic.Int32
	results, err := iterate.Map(context.Background(), src,
		func(ctx context.Context, item, index int) (int, error) {
			cur := active.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			active.Add(-1)
			return item * item, nil
		},
		iterate.WithMaxConcurrent(3),
	)
	if err != nil {
		t.Fatalf("Expected run to complete, got %v", err)
	}
	if len(results) != 20 {
		t.Fatalf("Expected 20 results, got %d", len(results))
	}
	for i, r := range results {
		if r != i*i {
			t.Errorf("Expected results[%d] = %d, got %d", i, i*i, r)
		}
	}
	if p := peak.Load(); p > 3 {
		t.Errorf("Expected at most 3 in-flight invocations, observed %d", p)
	}
}

func TestQueueSchedulerSerializesRuns(t *testing.T) {
	q := scheduler.NewQueue(16)
	defer q.Close()

	var active, overlaps atomic.Int32
	op := func(ctx context.Context, item, index int) error {
		if active.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(time.Millisecond)
		active.Add(-1)
		return nil
	}

	// Two serial runs routed through the same queue must never overlap:
	// each whole run occupies a single scheduled unit.
	var wg sync.WaitGroup
	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := iterate.ForEach(context.Background(), sequence.Of(1, 2, 3, 4), op,
				iterate.WithMaxConcurrent(iterate.Serial),
				iterate.WithScheduler(q),
			)
			if err != nil {
				t.Errorf("Expected serial run to complete, got %v", err)
			}
		}()
	}
	wg.Wait()

	if n := overlaps.Load(); n != 0 {
		t.Errorf("Expected no overlapping invocations through the queue, got %d", n)
	}
}

func TestLimitedSchedulerCapsWholeRun(t *testing.T) {
	sched := scheduler.NewLimited(2)

	var active, peak atomic.Int32
	err := iterate.ForEach(context.Background(), sequence.Of(0, 1, 2, 3, 4, 5, 6, 7),
		func(ctx context.Context, item, index int) error {
			cur := active.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			active.Add(-1)
			return nil
		},
		iterate.WithScheduler(sched),
	)
	if err != nil {
		t.Fatalf("Expected run to complete, got %v", err)
	}
	if p := peak.Load(); p > 2 {
		t.Errorf("Expected scheduler to cap the run at 2, observed %d", p)
	}
	if m := sched.Metrics(); m.TotalAcquired != m.TotalReleased {
		t.Errorf("Expected all slots returned, acquired=%d released=%d", m.TotalAcquired, m.TotalReleased)
	}
}

func TestCancellationIsDistinguishableFromFault(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	var once sync.Once
	err := func() error {
		go func() {
			<-started
			cancel()
		}()
		return iterate.ForEach(ctx, sequence.Of(0, 1, 2, 3, 4, 5, 6, 7),
			func(ctx context.Context, item, index int) error {
				once.Do(func() { close(started) })
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Second):
					return nil
				}
			},
			iterate.WithMaxConcurrent(2),
		)
	}()

	if err == nil {
		t.Fatal("Expected a cancelled outcome")
	}
	if !apperrors.IsCancellation(err) {
		t.Errorf("Expected cancellation, got fault: %v", err)
	}

	faultErr := iterate.ForEach(context.Background(), sequence.Of(1),
		func(ctx context.Context, item, index int) error {
			return errors.New("boom")
		})
	if apperrors.IsCancellation(faultErr) {
		t.Errorf("Expected fault to not read as cancellation: %v", faultErr)
	}
}

func TestScriptedMapEndToEnd(t *testing.T) {
	prog, err := jsop.Compile("label", `utils.titleCase(item) + " #" + index`)
	if err != nil {
		t.Fatalf("Expected script to compile, got %v", err)
	}

	src := sequence.Of[any]("first item", "second item", "third item")
	results, err := iterate.Map(context.Background(), src, prog.MapFunc(),
		iterate.WithMaxConcurrent(2))
	if err != nil {
		t.Fatalf("Expected scripted run to complete, got %v", err)
	}

	expected := []string{"First Item #0", "Second Item #1", "Third Item #2"}
	for i, want := range expected {
		got, ok := results[i].(string)
		if !ok || got != want {
			t.Errorf("Expected results[%d] = %q, got %v", i, want, results[i])
		}
	}
}

func TestStreamedResultsArriveInInputOrder(t *testing.T) {
	src := sequence.Of("a", "b", "c", "d", "e")

	var collected []string
	for r, err := range iterate.MapStream(context.Background(), src,
		func(ctx context.Context, item string, index int) (string, error) {
			// Later items finish first; the stream must still yield in order.
			time.Sleep(time.Duration(5-index) * time.Millisecond)
			return strings.ToUpper(item), nil
		},
		iterate.WithMaxConcurrent(iterate.Unbounded),
	) {
		if err != nil {
			t.Fatalf("Expected streamed run to complete, got %v", err)
		}
		collected = append(collected, r)
	}

	if strings.Join(collected, "") != "ABCDE" {
		t.Errorf("Expected results in input order, got %v", collected)
	}
}

func TestRunReportRoundTrip(t *testing.T) {
	writer := storage.NewReportWriter(newMemoryBlobClient(), nil)
	startedAt := time.Now()

	runErr := iterate.ForEach(context.Background(), sequence.Of(1, 2, 3),
		func(ctx context.Context, item, index int) error {
			if item == 2 {
				return errors.New("boom")
			}
			return nil
		})
	if runErr == nil {
		t.Fatal("Expected the run to fault")
	}

	report := storage.NewRunReport("run-1", "itest", 3, 0, startedAt, runErr)
	if _, err := writer.Append(context.Background(), report); err != nil {
		t.Fatalf("Expected report append to succeed, got %v", err)
	}

	file, err := writer.Load(context.Background(), "itest")
	if err != nil {
		t.Fatalf("Expected report load to succeed, got %v", err)
	}
	stored, ok := file["run-1"]
	if !ok {
		t.Fatal("Expected stored report for run-1")
	}
	if stored.Outcome != "faulted" {
		t.Errorf("Expected faulted outcome, got %q", stored.Outcome)
	}
	if !strings.Contains(stored.Fault, "boom") {
		t.Errorf("Expected fault message to carry the cause, got %q", stored.Fault)
	}
}
