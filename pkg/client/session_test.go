package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rubiojr/cmsmirror/pkg/core"
)

func TestDebouncerCoalesces(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	var calls atomic.Int32
	var last atomic.Int32

	for i := 1; i <= 5; i++ {
		i := i
		d.Call(func() {
			calls.Add(1)
			last.Store(int32(i))
		})
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(150 * time.Millisecond)

	if calls.Load() != 1 {
		t.Errorf("Expected one call, got %d", calls.Load())
	}
	if last.Load() != 5 {
		t.Errorf("Expected the trailing call to run, got %d", last.Load())
	}
}

func TestDebouncerCancel(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var calls atomic.Int32
	d.Call(func() { calls.Add(1) })
	d.Cancel()
	time.Sleep(80 * time.Millisecond)
	if calls.Load() != 0 {
		t.Errorf("Canceled call ran %d times", calls.Load())
	}
}

func TestSequencer(t *testing.T) {
	var s Sequencer
	first, second := s.Next(), s.Next()
	if second <= first {
		t.Fatalf("Sequence not increasing: %d, %d", first, second)
	}
	if !s.Accept(second) {
		t.Error("Newest response should be accepted")
	}
	if s.Accept(first) {
		t.Error("Older response should be dropped")
	}
	if s.Accept(second) {
		t.Error("A response should not be accepted twice")
	}
}

type fakeSearcher struct {
	mu      sync.Mutex
	queries []string
	gates   map[string]chan struct{}
	fail    map[string]bool
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{gates: map[string]chan struct{}{}, fail: map[string]bool{}}
}

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]core.Result, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	gate := f.gates[query]
	fail := f.fail[query]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if fail {
		return nil, errors.New("boom")
	}
	return []core.Result{{ID: query}}, nil
}

func (f *fakeSearcher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

type view struct {
	mu       sync.Mutex
	rendered []string
	clears   int
}

func (v *view) options(delay time.Duration) SessionOptions {
	return SessionOptions{
		Delay: delay,
		Render: func(query string, results []core.Result) {
			v.mu.Lock()
			defer v.mu.Unlock()
			v.rendered = append(v.rendered, query)
		},
		Clear: func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			v.clears++
		},
	}
}

func (v *view) snapshot() ([]string, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.rendered...), v.clears
}

func TestSessionDebouncesTyping(t *testing.T) {
	searcher := newFakeSearcher()
	v := &view{}
	s := NewSession(searcher, v.options(30*time.Millisecond))
	defer s.Close()

	for _, text := range []string{"r", "re", "red"} {
		s.Input(context.Background(), text)
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(150 * time.Millisecond)

	if calls := searcher.calls(); len(calls) != 1 || calls[0] != "red" {
		t.Errorf("Expected a single search for red, got %v", calls)
	}
	if rendered, _ := v.snapshot(); len(rendered) != 1 || rendered[0] != "red" {
		t.Errorf("Expected red rendered once, got %v", rendered)
	}
}

func TestSessionDropsStaleResponses(t *testing.T) {
	searcher := newFakeSearcher()
	slow := make(chan struct{})
	searcher.gates["slow"] = slow
	v := &view{}
	s := NewSession(searcher, v.options(time.Millisecond))

	done := make(chan struct{})
	go func() {
		s.Run(context.Background(), "slow")
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	s.Run(context.Background(), "fast")
	close(slow)
	<-done

	rendered, _ := v.snapshot()
	if len(rendered) != 1 || rendered[0] != "fast" {
		t.Errorf("Expected only the newest response rendered, got %v", rendered)
	}
}

func TestSessionBlankInputClears(t *testing.T) {
	searcher := newFakeSearcher()
	v := &view{}
	s := NewSession(searcher, v.options(20*time.Millisecond))

	s.Input(context.Background(), "red")
	s.Input(context.Background(), "   ")
	time.Sleep(80 * time.Millisecond)

	if calls := searcher.calls(); len(calls) != 0 {
		t.Errorf("Blank input must not search, got %v", calls)
	}
	if _, clears := v.snapshot(); clears != 1 {
		t.Errorf("Expected one clear, got %d", clears)
	}
}

func TestSessionErrorClears(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.fail["bad"] = true
	v := &view{}
	s := NewSession(searcher, v.options(time.Millisecond))

	s.Run(context.Background(), "bad")

	rendered, clears := v.snapshot()
	if len(rendered) != 0 || clears != 1 {
		t.Errorf("Expected a clear and no render, got %v / %d", rendered, clears)
	}
}

func TestSessionLocalMode(t *testing.T) {
	cache := NewItemCache(func(ctx context.Context) ([]core.Item, error) {
		return testItems(), nil
	})
	var got []core.Result
	s := NewSession(cache, SessionOptions{
		Render: func(_ string, results []core.Result) { got = results },
	})

	s.Run(context.Background(), "hat")
	if len(got) != 1 || got[0].ID != "i2" {
		t.Errorf("Unexpected local results: %+v", got)
	}
}

func TestSessionCloseWaitsForRunningSearch(t *testing.T) {
	searcher := newFakeSearcher()
	gate := make(chan struct{})
	searcher.gates["red"] = gate
	v := &view{}
	s := NewSession(searcher, v.options(time.Millisecond))

	s.Input(context.Background(), "red")
	deadline := time.Now().Add(time.Second)
	for len(searcher.calls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatal("Close returned while a search was still running")
	case <-time.After(30 * time.Millisecond):
	}

	close(gate)
	<-closed
	if rendered, _ := v.snapshot(); len(rendered) != 1 || rendered[0] != "red" {
		t.Errorf("Expected red rendered before Close returned, got %v", rendered)
	}
}

func TestSessionFlushSkipsRenderedQuery(t *testing.T) {
	searcher := newFakeSearcher()
	gate := make(chan struct{})
	searcher.gates["red"] = gate
	v := &view{}
	s := NewSession(searcher, v.options(time.Millisecond))

	s.Input(context.Background(), "red")
	deadline := time.Now().Add(time.Second)
	for len(searcher.calls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(gate)
	}()

	// End of input while the debounced search for the same text is running.
	s.Flush(context.Background(), "red")

	if calls := searcher.calls(); len(calls) != 1 {
		t.Errorf("Expected a single search, got %v", calls)
	}
	if rendered, _ := v.snapshot(); len(rendered) != 1 {
		t.Errorf("Expected red rendered once, got %v", rendered)
	}
}

func TestSessionFlushAnswersPendingInput(t *testing.T) {
	searcher := newFakeSearcher()
	v := &view{}
	s := NewSession(searcher, v.options(time.Hour))

	s.Input(context.Background(), "red")
	s.Flush(context.Background(), "red")

	if rendered, _ := v.snapshot(); len(rendered) != 1 || rendered[0] != "red" {
		t.Errorf("Expected the pending input answered once, got %v", rendered)
	}

	s.Flush(context.Background(), "  ")
	if calls := searcher.calls(); len(calls) != 1 {
		t.Errorf("Blank final input must not search, got %v", calls)
	}
}
