package generation

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"llamachat/internal/engine"
	"llamachat/internal/engine/enginetest"
)

func newSession(t *testing.T, b *enginetest.Backend, cfg engine.HandleConfig, stopWords ...string) *Session {
	t.Helper()
	cfg.Backend = b
	h := engine.NewWithConfig(cfg)
	if err := h.Load("model.gguf", 256); err != nil {
		t.Fatalf("load: %v", err)
	}
	sc := h.Sampling()
	sc.StopWords = stopWords
	if err := h.ConfigureSampling(sc); err != nil {
		t.Fatalf("configure: %v", err)
	}
	return New(h)
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("worker did not finish")
	}
}

func repeated(piece string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = piece
	}
	return out
}

func TestEndToEndCountToThree(t *testing.T) {
	b := &enginetest.Backend{Scripts: [][]string{{"1", ", ", "2", ", ", "3", ", ", "END", "never"}}}
	s := newSession(t, b, engine.HandleConfig{}, "END")
	res, err := Generate(context.Background(), s, "count to three", 50)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.FinishReason != FinishStopWord || res.StopWord != "END" {
		t.Fatalf("finish: %+v", res)
	}
	if res.Text != "1, 2, 3, END" || res.Content() != "1, 2, 3, " {
		t.Fatalf("text %q content %q", res.Text, res.Content())
	}
	if s.IsRunning() || s.Phase() != PhaseFinished {
		t.Fatalf("expected finished session, running=%v phase=%s", s.IsRunning(), s.Phase())
	}
	if s.Handle().Busy() {
		t.Fatalf("handle must be released")
	}
}

func TestStopWordAcrossFragments(t *testing.T) {
	b := &enginetest.Backend{Scripts: [][]string{{"Hello ther", "Assist", "ant:", "more"}}}
	s := newSession(t, b, engine.HandleConfig{}, "Assistant:")
	res, err := Generate(context.Background(), s, "p", 50)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.FinishReason != FinishStopWord || res.Content() != "Hello ther" {
		t.Fatalf("unexpected result: %+v", res)
	}
	// prompt batch plus the two fragments before the stop word; the stop
	// word token itself is never decoded
	if got := len(b.Batches()); got != 3 {
		t.Fatalf("want 3 decode calls, got %d: %+v", got, b.Batches())
	}
}

func TestPollConcatenationEqualsDrain(t *testing.T) {
	gate := make(chan struct{})
	b := &enginetest.Backend{Gate: gate, Scripts: [][]string{{"a", "bc", "d", "efg", "h"}}}
	s := newSession(t, b, engine.HandleConfig{})
	if err := s.Start("prompt", 50); err != nil {
		t.Fatalf("start: %v", err)
	}
	var polled strings.Builder
	done := s.Done()
loop:
	for {
		select {
		case gate <- struct{}{}:
			polled.WriteString(s.Poll())
		case <-done:
			break loop
		}
	}
	polled.WriteString(s.Poll())
	full, err := s.Drain()
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if polled.String() != full || full != "abcdefgh" {
		t.Fatalf("polled %q drained %q", polled.String(), full)
	}
	if s.Poll() != "" {
		t.Fatalf("poll after drain must be empty")
	}
}

func TestDrainWhileRunningIsBusy(t *testing.T) {
	gate := make(chan struct{})
	b := &enginetest.Backend{Gate: gate, Scripts: [][]string{{"x"}}}
	s := newSession(t, b, engine.HandleConfig{})
	if err := s.Start("p", 10); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := s.Drain(); !engine.IsBusy(err) {
		t.Fatalf("expected busy error, got %v", err)
	}
	if _, ok := s.Result(); ok {
		t.Fatalf("result must not be available while running")
	}
	if err := s.Handle().ResetContext(); !engine.IsBusy(err) {
		t.Fatalf("handle must be reserved while running: %v", err)
	}
	close(gate)
	waitDone(t, s)
	if text, err := s.Drain(); err != nil || text != "x" {
		t.Fatalf("drain: %q %v", text, err)
	}
}

func TestStopJoinsWorker(t *testing.T) {
	gate := make(chan struct{})
	b := &enginetest.Backend{Gate: gate, Scripts: [][]string{repeated("t", 10000)}}
	s := newSession(t, b, engine.HandleConfig{})
	if err := s.Start("p", 10000); err != nil {
		t.Fatalf("start: %v", err)
	}
	gate <- struct{}{}
	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	deadline := time.Now().Add(5 * time.Second)
	for s.Phase() != PhaseStopRequested {
		if time.Now().After(deadline) {
			t.Fatalf("stop request not observed, phase %s", s.Phase())
		}
		time.Sleep(time.Millisecond)
	}
	// the worker is parked in Sample; one more token lets it see the flag
	gate <- struct{}{}
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatalf("Stop did not return")
	}
	if s.IsRunning() {
		t.Fatalf("Stop returned while worker still running")
	}
	res, ok := s.Result()
	if !ok || res.FinishReason != FinishStopped {
		t.Fatalf("want stopped result, got %+v ok=%v", res, ok)
	}
	n := s.Generated()
	time.Sleep(10 * time.Millisecond)
	if s.Generated() != n {
		t.Fatalf("output changed after Stop returned")
	}
	// Stop on a finished session is a no-op
	s.Stop()
}

func TestStartStopsPreviousWorker(t *testing.T) {
	b := &enginetest.Backend{Scripts: [][]string{repeated("a", 5000), {"second"}}}
	s := newSession(t, b, engine.HandleConfig{})
	if err := s.Start("first", 5000); err != nil {
		t.Fatalf("start: %v", err)
	}
	first := s.Done()
	if err := s.Start("again", 10); err != nil {
		t.Fatalf("restart: %v", err)
	}
	select {
	case <-first:
	default:
		t.Fatalf("previous worker still alive after Start returned")
	}
	waitDone(t, s)
	res, _ := s.Result()
	if res.Text != "second" {
		t.Fatalf("second session text %q", res.Text)
	}
	if got := b.Prompts(); !reflect.DeepEqual(got, []string{"first", "again"}) {
		t.Fatalf("prompts: %v", got)
	}
}

func TestDecodeFailureEndsSession(t *testing.T) {
	// decode call 1 is the prompt, call 2 the first sampled token
	b := &enginetest.Backend{FailDecodeAt: 2, Scripts: [][]string{{"partial", "rest"}}}
	s := newSession(t, b, engine.HandleConfig{})
	res, err := Generate(context.Background(), s, "p", 10)
	if !engine.IsDecodeFailure(err) {
		t.Fatalf("expected decode failure, got %v", err)
	}
	if res.FinishReason != FinishDecodeFailed || !res.Abnormal() {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Text != "partial" || s.IsRunning() || s.Handle().Busy() {
		t.Fatalf("partial text %q running=%v busy=%v", res.Text, s.IsRunning(), s.Handle().Busy())
	}
}

func TestMaxTokensLimit(t *testing.T) {
	b := &enginetest.Backend{Scripts: [][]string{repeated("w", 10)}}
	s := newSession(t, b, engine.HandleConfig{})
	res, err := Generate(context.Background(), s, "p", 3)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.FinishReason != FinishMaxTokens || res.CompletionTokens != 3 || res.Text != "www" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestMinTokensDefersStopWord(t *testing.T) {
	b := &enginetest.Backend{Scripts: [][]string{{"END", "a", "b"}}}
	h := engine.New(b)
	if err := h.Load("m.gguf", 128); err != nil {
		t.Fatalf("load: %v", err)
	}
	sc := h.Sampling()
	sc.StopWords = []string{"END"}
	sc.MinTokens = 2
	if err := h.ConfigureSampling(sc); err != nil {
		t.Fatalf("configure: %v", err)
	}
	res, err := Generate(context.Background(), New(h), "p", 10)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.FinishReason != FinishEOS || res.Text != "ENDab" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestPromptBatching(t *testing.T) {
	b := &enginetest.Backend{Scripts: [][]string{{"z"}}}
	s := newSession(t, b, engine.HandleConfig{BatchSize: 4})
	if _, err := Generate(context.Background(), s, "abcdefghij", 5); err != nil {
		t.Fatalf("generate: %v", err)
	}
	want := []enginetest.BatchRecord{
		{Len: 4, Pos: 0},
		{Len: 4, Pos: 4},
		{Len: 2, Pos: 8, Logits: true},
		{Len: 1, Pos: 10, Logits: true},
	}
	if got := b.Batches(); !reflect.DeepEqual(got, want) {
		t.Fatalf("batches:\nwant %+v\ngot  %+v", want, got)
	}
}

func TestFillRatioMonotonicThenReset(t *testing.T) {
	gate := make(chan struct{})
	b := &enginetest.Backend{Gate: gate, Scripts: [][]string{repeated("k", 20)}}
	s := newSession(t, b, engine.HandleConfig{})
	h := s.Handle()
	if err := s.Start("hello", 50); err != nil {
		t.Fatalf("start: %v", err)
	}
	last := 0.0
	done := s.Done()
loop:
	for {
		select {
		case gate <- struct{}{}:
			r := h.ContextFillRatio()
			if r < last {
				t.Fatalf("fill ratio decreased: %v -> %v", last, r)
			}
			last = r
		case <-done:
			break loop
		}
	}
	if last <= 0 {
		t.Fatalf("expected a non-zero fill ratio")
	}
	if err := h.ResetContext(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if r := h.ContextFillRatio(); r != 0 {
		t.Fatalf("fill ratio after reset: %v", r)
	}
}

func TestStartWithoutModel(t *testing.T) {
	s := New(engine.New(&enginetest.Backend{}))
	if err := s.Start("hi", 10); !engine.IsNoModelLoaded(err) {
		t.Fatalf("expected no model loaded, got %v", err)
	}
	if s.IsRunning() || s.Phase() != PhaseIdle {
		t.Fatalf("idle session expected")
	}
	select {
	case <-s.Done():
	default:
		t.Fatalf("Done must be closed for an idle session")
	}
}

func TestStartEmptyPrompt(t *testing.T) {
	s := newSession(t, &enginetest.Backend{}, engine.HandleConfig{})
	if err := s.Start("", 10); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}
	if s.Handle().Busy() {
		t.Fatalf("handle must not stay reserved")
	}
}

func TestStreamDeliversChunksAndStopsOnError(t *testing.T) {
	b := &enginetest.Backend{Scripts: [][]string{{"one ", "two ", "three"}}}
	s := newSession(t, b, engine.HandleConfig{})
	var got strings.Builder
	res, err := Stream(context.Background(), s, "p", 10, time.Millisecond, func(c string) error {
		got.WriteString(c)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if got.String() != res.Text || res.Text != "one two three" {
		t.Fatalf("streamed %q result %q", got.String(), res.Text)
	}

	b2 := &enginetest.Backend{Scripts: [][]string{repeated("x", 100000)}}
	s2 := newSession(t, b2, engine.HandleConfig{})
	sentinel := errors.New("client gone")
	_, err = Stream(context.Background(), s2, "p", 100000, time.Millisecond, func(string) error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if s2.IsRunning() {
		t.Fatalf("worker must be stopped after consumer error")
	}
}

func TestGenerateCancelledContext(t *testing.T) {
	gate := make(chan struct{})
	b := &enginetest.Backend{Gate: gate, Scripts: [][]string{repeated("x", 1000)}}
	s := newSession(t, b, engine.HandleConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	go func() {
		for {
			select {
			case gate <- struct{}{}:
			case <-time.After(time.Second):
				return
			}
		}
	}()
	res, err := Generate(ctx, s, "p", 1000)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.FinishReason != FinishStopped && res.FinishReason != FinishMaxTokens {
		t.Fatalf("unexpected finish reason %q", res.FinishReason)
	}
}
