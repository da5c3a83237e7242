// Package enginetest provides a scripted, in-memory engine.Backend for tests.
//
// Prompt text is tokenized one rune per token so Detokenize(Tokenize(s)) == s.
// Generated tokens come from scripts: every session (a context memory clear
// starts one) replays the next entry of Scripts, one token per fragment,
// followed by an end-of-generation token.
package enginetest

import (
	"errors"
	"sync"

	"llamachat/internal/engine"
)

// EOS is the end-of-generation token of the scripted vocabulary.
const EOS engine.Token = 0

// pieceBase is the first token id used for scripted fragments, above every rune.
const pieceBase = 0x110000

// Backend is a scripted engine.Backend. The zero value is usable and emits an
// end-of-generation token right away.
type Backend struct {
	// Scripts holds the fragments emitted per session, in session order. The
	// last script repeats once all others have been used.
	Scripts [][]string
	// LoadErr and ContextErr make LoadModel and NewContext fail.
	LoadErr    error
	ContextErr error
	// FailDecodeAt makes the n-th Decode call (1-based, counted across the
	// backend's lifetime) fail. Zero disables.
	FailDecodeAt int
	// BatchSize overrides the context batch size when > 0.
	BatchSize int
	// Layers is reported by LayerCount.
	Layers int
	// Gate, when non-nil, makes every Sample block until it can receive.
	Gate chan struct{}

	mu       sync.Mutex
	pieces   []string
	pieceIDs map[string]engine.Token
	prompts  []string
	batches  []BatchRecord
	events   []string
	decodes  int
	loads    int
	opened   []engine.ModelOptions
	ctxOpts  []engine.ContextOptions
	samplers []engine.SamplingConfig
}

// BatchRecord describes one Decode call.
type BatchRecord struct {
	Len    int
	Pos    int
	Logits bool
}

// LoadModel implements engine.Backend.
func (b *Backend) LoadModel(path string, opts engine.ModelOptions) (engine.Model, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.LoadErr != nil {
		return nil, b.LoadErr
	}
	if path == "" {
		return nil, errors.New("empty model path")
	}
	b.loads++
	b.opened = append(b.opened, opts)
	b.events = append(b.events, "model_open")
	return &model{b: b, path: path}, nil
}

// Prompts returns every text tokenized so far, in order.
func (b *Backend) Prompts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.prompts...)
}

// Batches returns every Decode call so far, in order.
func (b *Backend) Batches() []BatchRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]BatchRecord(nil), b.batches...)
}

// Events returns lifecycle events (model_open, context_open, sampler_open,
// sampler_close, context_close, model_close) in order.
func (b *Backend) Events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

// Loads returns the number of successful LoadModel calls.
func (b *Backend) Loads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loads
}

// ModelOptions returns the options of every LoadModel call.
func (b *Backend) ModelOptions() []engine.ModelOptions {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]engine.ModelOptions(nil), b.opened...)
}

// ContextOptions returns the options of every NewContext call.
func (b *Backend) ContextOptions() []engine.ContextOptions {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]engine.ContextOptions(nil), b.ctxOpts...)
}

// SamplerConfigs returns the config of every sampler built so far.
func (b *Backend) SamplerConfigs() []engine.SamplingConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]engine.SamplingConfig, len(b.samplers))
	for i, c := range b.samplers {
		out[i] = c.Clone()
	}
	return out
}

func (b *Backend) event(name string) {
	b.mu.Lock()
	b.events = append(b.events, name)
	b.mu.Unlock()
}

// piece returns the token for fragment s, allocating one on first use.
// Callers hold b.mu.
func (b *Backend) piece(s string) engine.Token {
	if b.pieceIDs == nil {
		b.pieceIDs = make(map[string]engine.Token)
	}
	if tok, ok := b.pieceIDs[s]; ok {
		return tok
	}
	tok := engine.Token(pieceBase + len(b.pieces))
	b.pieces = append(b.pieces, s)
	b.pieceIDs[s] = tok
	return tok
}

func (b *Backend) script(session int) []string {
	if len(b.Scripts) == 0 {
		return nil
	}
	if session >= len(b.Scripts) {
		session = len(b.Scripts) - 1
	}
	return b.Scripts[session]
}

type model struct {
	b      *Backend
	path   string
	closed bool
}

func (m *model) NewContext(opts engine.ContextOptions) (engine.Context, error) {
	m.b.mu.Lock()
	defer m.b.mu.Unlock()
	if m.b.ContextErr != nil {
		return nil, m.b.ContextErr
	}
	m.b.ctxOpts = append(m.b.ctxOpts, opts)
	m.b.events = append(m.b.events, "context_open")
	batch := opts.BatchSize
	if m.b.BatchSize > 0 {
		batch = m.b.BatchSize
	}
	return &context{b: m.b, size: opts.Size, batch: batch, maxPos: -1, session: -1}, nil
}

func (m *model) Tokenize(text string, addSpecial bool) ([]engine.Token, error) {
	m.b.mu.Lock()
	m.b.prompts = append(m.b.prompts, text)
	m.b.mu.Unlock()
	out := make([]engine.Token, 0, len(text))
	for _, r := range text {
		out = append(out, engine.Token(r))
	}
	return out, nil
}

func (m *model) TokenToPiece(tok engine.Token) string {
	if tok == EOS {
		return ""
	}
	if tok < pieceBase {
		return string(rune(tok))
	}
	m.b.mu.Lock()
	defer m.b.mu.Unlock()
	i := int(tok) - pieceBase
	if i < 0 || i >= len(m.b.pieces) {
		return ""
	}
	return m.b.pieces[i]
}

func (m *model) IsEndOfGeneration(tok engine.Token) bool { return tok == EOS }

func (m *model) VocabSize() int { return pieceBase }

func (m *model) LayerCount() int { return m.b.Layers }

func (m *model) Close() {
	if !m.closed {
		m.closed = true
		m.b.event("model_close")
	}
}

type context struct {
	b     *Backend
	size  int
	batch int

	mu      sync.Mutex
	maxPos  int
	session int
}

func (c *context) Decode(batch engine.Batch) error {
	c.b.mu.Lock()
	c.b.decodes++
	n := c.b.decodes
	fail := c.b.FailDecodeAt > 0 && n == c.b.FailDecodeAt
	c.b.batches = append(c.b.batches, BatchRecord{Len: len(batch.Tokens), Pos: batch.Pos, Logits: batch.Logits})
	c.b.mu.Unlock()
	if fail {
		return errors.New("scripted decode failure")
	}
	if c.batch > 0 && len(batch.Tokens) > c.batch {
		return errors.New("batch exceeds n_batch")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if batch.Pos != c.maxPos+1 {
		return errors.New("non-contiguous batch position")
	}
	end := batch.Pos + len(batch.Tokens) - 1
	if c.size > 0 && end >= c.size {
		return errors.New("context window exhausted")
	}
	c.maxPos = end
	return nil
}

func (c *context) NewSampler(cfg engine.SamplingConfig) (engine.Sampler, error) {
	c.b.mu.Lock()
	c.b.samplers = append(c.b.samplers, cfg.Clone())
	c.b.events = append(c.b.events, "sampler_open")
	c.b.mu.Unlock()
	return &sampler{c: c, session: -2}, nil
}

func (c *context) Size() int { return c.size }

func (c *context) BatchSize() int { return c.batch }

func (c *context) MaxPosition() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxPos
}

func (c *context) ClearMemory() {
	c.mu.Lock()
	c.maxPos = -1
	c.session++
	c.mu.Unlock()
}

func (c *context) currentSession() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session < 0 {
		return 0
	}
	return c.session
}

func (c *context) Close() { c.b.event("context_close") }

type sampler struct {
	c       *context
	session int
	idx     int
}

func (s *sampler) Sample() engine.Token {
	if s.c.b.Gate != nil {
		<-s.c.b.Gate
	}
	session := s.c.currentSession()
	if session != s.session {
		s.session = session
		s.idx = 0
	}
	s.c.b.mu.Lock()
	defer s.c.b.mu.Unlock()
	script := s.c.b.script(session)
	if s.idx >= len(script) {
		return EOS
	}
	tok := s.c.b.piece(script[s.idx])
	s.idx++
	return tok
}

func (s *sampler) Reset() { s.idx = 0 }

func (s *sampler) Close() { s.c.b.event("sampler_close") }
