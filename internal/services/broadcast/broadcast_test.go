package broadcast

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	kit "mdbot/internal/transport"
	logx "mdbot/pkg/logx"
)

type fakeSender struct {
	mu       sync.Mutex
	attempts []int64
	texts    []string

	fail      map[int64]bool // chat ids whose sends error
	notify    chan int64     // receives one id per attempt, if set
	gate      chan struct{}  // sends block until closed, if set
	afterSend func(n int)    // runs after the nth attempt, if set
}

func (f *fakeSender) SendText(ctx context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	f.attempts = append(f.attempts, to.ChatID)
	f.texts = append(f.texts, text)
	n := len(f.attempts)
	failed := f.fail[to.ChatID]
	notify := f.notify
	gate := f.gate
	after := f.afterSend
	f.mu.Unlock()

	if notify != nil {
		notify <- to.ChatID
	}
	if after != nil {
		after(n)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return kit.MessageRef{}, ctx.Err()
		}
	}
	if failed {
		return kit.MessageRef{}, errors.New("forbidden: bot was blocked by the user")
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: n}, nil
}

func (f *fakeSender) snapshot() ([]int64, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.attempts...), append([]string(nil), f.texts...)
}

func TestRunCountsAndKeepsOrder(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{fail: map[int64]bool{2: true, 4: true}}
	e := NewEngine(fs, time.Millisecond, logx.Nop())

	rep := e.Run(context.Background(), []int64{1, 2, 3, 4, 5}, "hello")
	if rep.Sent != 3 || rep.Failed != 2 {
		t.Fatalf("Run() = {%d, %d}, want {3, 2}", rep.Sent, rep.Failed)
	}

	attempts, _ := fs.snapshot()
	if want := []int64{1, 2, 3, 4, 5}; !reflect.DeepEqual(attempts, want) {
		t.Fatalf("attempt order = %v, want %v", attempts, want)
	}
}

func TestRunEmptyRecipients(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{}
	e := NewEngine(fs, time.Millisecond, logx.Nop())

	rep := e.Run(context.Background(), nil, "hello")
	if rep.Sent != 0 || rep.Failed != 0 {
		t.Fatalf("Run() = {%d, %d}, want {0, 0}", rep.Sent, rep.Failed)
	}
	if attempts, _ := fs.snapshot(); len(attempts) != 0 {
		t.Fatalf("sender called %d times, want 0", len(attempts))
	}
}

func TestRunPacesBetweenSends(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{}
	e := NewEngine(fs, 30*time.Millisecond, logx.Nop())

	start := time.Now()
	rep := e.Run(context.Background(), []int64{1, 2, 3}, "hi")
	elapsed := time.Since(start)

	if rep.Sent != 3 {
		t.Fatalf("Sent = %d, want 3", rep.Sent)
	}
	// First send is immediate, the next two wait out the interval.
	if elapsed < 50*time.Millisecond {
		t.Fatalf("elapsed = %v, want >= 50ms of pacing", elapsed)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel right after the first delivery: the limiter wait for the
	// second recipient must fail and end the pass.
	fs := &fakeSender{afterSend: func(n int) {
		if n == 1 {
			cancel()
		}
	}}
	e := NewEngine(fs, 100*time.Millisecond, logx.Nop())

	rep := e.Run(ctx, []int64{1, 2, 3}, "hi")
	if rep.Sent != 1 || rep.Failed != 0 {
		t.Fatalf("Run() = {%d, %d}, want {1, 0} after cancel", rep.Sent, rep.Failed)
	}
}

func TestServiceRunsJobAndReportsSummary(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{notify: make(chan int64, 8)}
	s := New(Config{SendInterval: time.Millisecond, QueueSize: 2}, fs, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	id, err := s.Enqueue([]int64{10, 20}, "update!", kit.ChatTarget{ChatID: 99})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if id == "" {
		t.Fatal("Enqueue() returned empty job id")
	}

	// Two recipient sends plus the summary.
	for i := 0; i < 3; i++ {
		select {
		case <-fs.notify:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for send %d", i+1)
		}
	}

	attempts, texts := fs.snapshot()
	if want := []int64{10, 20, 99}; !reflect.DeepEqual(attempts, want) {
		t.Fatalf("send targets = %v, want %v", attempts, want)
	}
	if got, want := texts[2], "Broadcast finished: 2 sent, 0 failed"; got != want {
		t.Fatalf("summary = %q, want %q", got, want)
	}
}

func TestServiceBusyWhenQueueFull(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	fs := &fakeSender{notify: make(chan int64, 8), gate: gate}
	s := New(Config{SendInterval: time.Millisecond, QueueSize: 1}, fs, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	if _, err := s.Enqueue([]int64{1}, "a", kit.ChatTarget{ChatID: 5}); err != nil {
		t.Fatalf("first Enqueue() error = %v", err)
	}
	// Wait until the worker is inside the blocked send, so the queue is
	// empty again and holds exactly one more job.
	select {
	case <-fs.notify:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never picked up the first job")
	}

	if _, err := s.Enqueue([]int64{2}, "b", kit.ChatTarget{ChatID: 5}); err != nil {
		t.Fatalf("second Enqueue() error = %v", err)
	}
	if _, err := s.Enqueue([]int64{3}, "c", kit.ChatTarget{ChatID: 5}); !errors.Is(err, ErrBusy) {
		t.Fatalf("third Enqueue() error = %v, want ErrBusy", err)
	}

	close(gate)
	s.Stop(context.Background())
}

func TestEnqueueBeforeStart(t *testing.T) {
	t.Parallel()

	s := New(Config{}, &fakeSender{}, logx.Nop())
	if _, err := s.Enqueue([]int64{1}, "x", kit.ChatTarget{}); !errors.Is(err, ErrStopped) {
		t.Fatalf("Enqueue() error = %v, want ErrStopped", err)
	}
}

func TestServiceCallsDoneHook(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{fail: map[int64]bool{20: true}}
	s := New(Config{SendInterval: time.Millisecond, QueueSize: 2}, fs, logx.Nop())

	type doneCall struct {
		job  Job
		rep  Report
		took time.Duration
	}
	done := make(chan doneCall, 1)
	s.SetOnDone(func(job Job, rep Report, took time.Duration) {
		done <- doneCall{job: job, rep: rep, took: took}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	id, err := s.Enqueue([]int64{10, 20}, "update!", kit.ChatTarget{ChatID: 99})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	select {
	case call := <-done:
		if call.job.ID != id {
			t.Fatalf("hook job id = %q, want %q", call.job.ID, id)
		}
		if call.job.Requester.ChatID != 99 {
			t.Fatalf("hook requester chat = %d, want 99", call.job.Requester.ChatID)
		}
		if call.rep.Sent != 1 || call.rep.Failed != 1 {
			t.Fatalf("hook report = {%d, %d}, want {1, 1}", call.rep.Sent, call.rep.Failed)
		}
		if call.took < 0 {
			t.Fatalf("hook took = %v, want >= 0", call.took)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("done hook never fired")
	}
}
