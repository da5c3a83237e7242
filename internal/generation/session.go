package generation

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"llamachat/internal/engine"
)

// ErrEmptyPrompt is returned by Start when the prompt tokenizes to nothing.
var ErrEmptyPrompt = errors.New("prompt is empty")

// Phase is the lifecycle position of a session's worker.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhasePromptProcessing
	PhaseTokenGeneration
	PhaseStopRequested
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePromptProcessing:
		return "prompt_processing"
	case PhaseTokenGeneration:
		return "token_generation"
	case PhaseStopRequested:
		return "stop_requested"
	case PhaseFinished:
		return "finished"
	}
	return fmt.Sprintf("phase(%d)", int32(p))
}

// FinishReason tells why a worker exited.
type FinishReason string

const (
	FinishEOS          FinishReason = "eos"
	FinishStopWord     FinishReason = "stop_word"
	FinishMaxTokens    FinishReason = "max_tokens"
	FinishStopped      FinishReason = "stopped"
	FinishDecodeFailed FinishReason = "decode_failed"
)

// Result describes a finished session.
type Result struct {
	// Text is the full generated text, stop word included.
	Text         string
	FinishReason FinishReason
	// StopWord is the stop word Text ends with when FinishReason is FinishStopWord.
	StopWord string
	// Err is set for abnormal ends (decode failure, worker panic).
	Err              error
	PromptTokens     int
	CompletionTokens int
	Duration         time.Duration
}

// Abnormal reports whether the worker ended without a clean stop condition.
func (r Result) Abnormal() bool { return r.FinishReason == FinishDecodeFailed || r.Err != nil }

// Content returns Text without the matched stop word.
func (r Result) Content() string {
	if r.FinishReason == FinishStopWord && r.StopWord != "" {
		return strings.TrimSuffix(r.Text, r.StopWord)
	}
	return r.Text
}

// Config tunes a Session.
type Config struct {
	Logger *zerolog.Logger
}

// Session runs generation requests against a Handle, one worker at a time.
//
// Start, Stop, Poll and Drain are meant to be called from a single consumer
// goroutine. The worker is the only goroutine touching the handle while it runs.
type Session struct {
	h   *engine.Handle
	log zerolog.Logger

	mu  sync.Mutex
	cur *run
	seq uint64
}

// run is the state of one worker. A new run is created by every Start.
type run struct {
	id        uint64
	out       *Output
	done      chan struct{}
	running   atomic.Bool
	stop      atomic.Bool
	phase     atomic.Int32
	result    Result
	maxTokens int
}

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// New returns a session bound to h.
func New(h *engine.Handle) *Session { return NewWithConfig(h, Config{}) }

// NewWithConfig returns a session bound to h using cfg.
func NewWithConfig(h *engine.Handle, cfg Config) *Session {
	s := &Session{h: h, log: zerolog.Nop()}
	if cfg.Logger != nil {
		s.log = cfg.Logger.With().Str("component", "generation").Logger()
	}
	return s
}

// Handle returns the engine handle the session drives.
func (s *Session) Handle() *engine.Handle { return s.h }

// Start stops and joins any previous worker, resets the context, tokenizes
// prompt and spawns a worker generating at most maxTokens tokens. A
// non-positive maxTokens falls back to the sampling config's MaxTokens.
func (s *Session) Start(prompt string, maxTokens int) error {
	s.Stop()
	if err := s.h.ResetContext(); err != nil {
		return err
	}
	tokens, err := s.h.Tokenize(prompt)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return ErrEmptyPrompt
	}
	sampling := s.h.Sampling()
	if maxTokens <= 0 {
		maxTokens = sampling.MaxTokens
	}
	if maxTokens <= 0 {
		return errors.New("max tokens must be > 0")
	}
	release, err := s.h.Reserve()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.seq++
	r := &run{id: s.seq, out: &Output{}, done: make(chan struct{}), maxTokens: maxTokens}
	r.running.Store(true)
	r.phase.Store(int32(PhasePromptProcessing))
	s.cur = r
	s.mu.Unlock()

	sessionsRunning.Inc()
	s.log.Debug().Uint64("session", r.id).Int("prompt_tokens", len(tokens)).Int("max_tokens", maxTokens).Msg("session_start")
	go s.work(r, tokens, sampling, release)
	return nil
}

func (s *Session) current() *run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Stop requests cooperative cancellation and waits for the worker to exit.
// No output is written after Stop returns. Safe to call when idle.
func (s *Session) Stop() {
	r := s.current()
	if r == nil {
		return
	}
	if r.running.Load() && r.stop.CompareAndSwap(false, true) {
		r.phase.CompareAndSwap(int32(PhasePromptProcessing), int32(PhaseStopRequested))
		r.phase.CompareAndSwap(int32(PhaseTokenGeneration), int32(PhaseStopRequested))
	}
	<-r.done
}

// IsRunning reports whether a worker is active.
func (s *Session) IsRunning() bool {
	r := s.current()
	return r != nil && r.running.Load()
}

// Phase returns the phase of the latest worker, PhaseIdle before the first Start.
func (s *Session) Phase() Phase {
	r := s.current()
	if r == nil {
		return PhaseIdle
	}
	return Phase(r.phase.Load())
}

// Done returns a channel closed when the latest worker exits. It is already
// closed when no worker was ever started.
func (s *Session) Done() <-chan struct{} {
	r := s.current()
	if r == nil {
		return closedCh
	}
	return r.done
}

// Poll returns the text produced since the previous Poll.
func (s *Session) Poll() string {
	r := s.current()
	if r == nil {
		return ""
	}
	return r.out.Poll()
}

// Drain returns the full text of the latest session once its worker has
// finished. It reports a busy error while the worker runs.
func (s *Session) Drain() (string, error) {
	r := s.current()
	if r == nil {
		return "", nil
	}
	if r.running.Load() {
		return "", engine.ErrBusy("drain")
	}
	<-r.done
	return r.result.Text, nil
}

// Result returns the result of the latest session; ok is false while it runs
// or when none was started.
func (s *Session) Result() (Result, bool) {
	r := s.current()
	if r == nil || r.running.Load() {
		return Result{}, false
	}
	<-r.done
	return r.result, true
}

// Generated returns the number of bytes produced by the latest session.
func (s *Session) Generated() int {
	r := s.current()
	if r == nil {
		return 0
	}
	return r.out.Len()
}

func (s *Session) work(r *run, prompt []engine.Token, sampling engine.SamplingConfig, release func()) {
	start := time.Now()
	res := Result{PromptTokens: len(prompt)}
	defer func() {
		if p := recover(); p != nil {
			res.FinishReason = FinishDecodeFailed
			res.Err = fmt.Errorf("generation worker panic: %v", p)
			s.log.Error().Uint64("session", r.id).Interface("panic", p).Msg("session_panic")
		}
		res.Duration = time.Since(start)
		release()
		r.phase.Store(int32(PhaseFinished))
		// Result and Drain wait on done, so r.result may be set after this.
		res.Text = r.out.close(&r.running)
		r.result = res
		sessionsRunning.Dec()
		observeFinish(res)
		ev := s.log.Debug()
		if res.Err != nil {
			ev = s.log.Warn().Err(res.Err)
		}
		ev.Uint64("session", r.id).
			Str("finish_reason", string(res.FinishReason)).
			Int("completion_tokens", res.CompletionTokens).
			Dur("dur", res.Duration).
			Msg("session_end")
		close(r.done)
	}()

	if !s.decodePrompt(r, prompt, &res) {
		return
	}
	r.phase.CompareAndSwap(int32(PhasePromptProcessing), int32(PhaseTokenGeneration))

	nPast := len(prompt)
	for {
		if r.stop.Load() {
			res.FinishReason = FinishStopped
			return
		}
		tok, err := s.h.Sample()
		if err != nil {
			res.FinishReason, res.Err = FinishDecodeFailed, err
			return
		}
		if s.h.IsEndOfGeneration(tok) {
			res.FinishReason = FinishEOS
			return
		}
		res.CompletionTokens++
		word, hit := r.out.publish(s.h.Piece(tok), sampling.StopWords)
		if hit && res.CompletionTokens >= sampling.MinTokens {
			res.FinishReason, res.StopWord = FinishStopWord, word
			return
		}
		if res.CompletionTokens >= r.maxTokens {
			res.FinishReason = FinishMaxTokens
			return
		}
		if err := s.h.Decode(engine.Batch{Tokens: []engine.Token{tok}, Pos: nPast, Logits: true}); err != nil {
			res.FinishReason, res.Err = FinishDecodeFailed, err
			return
		}
		nPast++
	}
}

// decodePrompt feeds the prompt in batches of at most the handle's batch
// size. Only the last token of the last batch requests logits.
func (s *Session) decodePrompt(r *run, prompt []engine.Token, res *Result) bool {
	n := s.h.BatchSize()
	for i := 0; i < len(prompt); i += n {
		if r.stop.Load() {
			res.FinishReason = FinishStopped
			return false
		}
		end := i + n
		if end > len(prompt) {
			end = len(prompt)
		}
		b := engine.Batch{Tokens: prompt[i:end], Pos: i, Logits: end == len(prompt)}
		if err := s.h.Decode(b); err != nil {
			res.FinishReason, res.Err = FinishDecodeFailed, err
			return false
		}
	}
	return true
}
