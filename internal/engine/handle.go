package engine

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Defaults applied when the corresponding HandleConfig fields are unset.
const (
	DefaultContextSize = 2048
	defaultBatchSize   = 512
)

// HandleConfig encapsulates the tunables of a Handle.
type HandleConfig struct {
	Backend Backend
	Logger  *zerolog.Logger
	// BatchSize bounds the number of prompt tokens decoded per call.
	BatchSize int
	Threads   int
	GPULayers int
	// KeepKQVOnHost disables offloading of the K/Q/V tensors.
	KeepKQVOnHost bool
	// Sampling is used as-is when it validates; the zero value selects DefaultSampling.
	Sampling *SamplingConfig
}

// Handle owns a loaded model, its context and its sampler.
//
// A Handle is driven from one consumer goroutine. While a generation session
// holds the reservation (see Reserve) the session's worker is the only caller
// of Decode/Sample and every mutating method returns a busy error.
type Handle struct {
	backend    Backend
	log        zerolog.Logger
	batchSize  int
	threads    int
	gpuLayers  int
	offloadKQV bool

	model   Model
	ctx     Context
	sampler Sampler
	path    string
	ctxSize int

	sampling SamplingConfig
	busy     atomic.Bool
}

// New constructs an empty handle over backend with default settings.
func New(backend Backend) *Handle {
	return NewWithConfig(HandleConfig{Backend: backend})
}

// NewWithConfig constructs an empty handle from cfg, applying defaults.
func NewWithConfig(cfg HandleConfig) *Handle {
	h := &Handle{
		backend:    cfg.Backend,
		log:        zerolog.Nop(),
		batchSize:  cfg.BatchSize,
		threads:    cfg.Threads,
		gpuLayers:  cfg.GPULayers,
		offloadKQV: !cfg.KeepKQVOnHost,
		sampling:   DefaultSampling(),
	}
	if cfg.Logger != nil {
		h.log = cfg.Logger.With().Str("component", "engine").Logger()
	}
	if h.batchSize <= 0 {
		h.batchSize = defaultBatchSize
	}
	if h.threads <= 0 {
		h.threads = runtime.NumCPU()
	}
	if cfg.Sampling != nil {
		if err := cfg.Sampling.Validate(); err != nil {
			h.log.Warn().Err(err).Msg("invalid sampling config, using defaults")
		} else {
			h.sampling = cfg.Sampling.Clone()
		}
	}
	return h
}

// Load opens the model at path with a context of ctxSize tokens. Any model
// already loaded is released first. On failure the handle is left empty.
func (h *Handle) Load(path string, ctxSize int) error {
	if h.busy.Load() {
		return busyError{op: "load"}
	}
	if err := h.Unload(); err != nil {
		return err
	}
	if h.backend == nil {
		return loadFailureError{path: path, stage: "model", err: ErrDependencyUnavailable("no inference backend configured")}
	}
	if ctxSize <= 0 {
		ctxSize = DefaultContextSize
	}
	start := time.Now()
	h.log.Info().Str("path", path).Int("ctx_size", ctxSize).Int("gpu_layers", h.gpuLayers).Msg("load_start")

	model, err := h.backend.LoadModel(path, ModelOptions{GPULayers: h.gpuLayers})
	if err != nil {
		h.log.Error().Err(err).Str("path", path).Msg("load_model_failed")
		return loadFailureError{path: path, stage: "model", err: err}
	}
	ctx, err := model.NewContext(ContextOptions{
		Size:       ctxSize,
		BatchSize:  h.batchSize,
		Threads:    h.threads,
		OffloadKQV: h.offloadKQV,
	})
	if err != nil {
		model.Close()
		h.log.Error().Err(err).Str("path", path).Msg("load_context_failed")
		return loadFailureError{path: path, stage: "context", err: err}
	}
	sampler, err := ctx.NewSampler(h.sampling)
	if err != nil {
		ctx.Close()
		model.Close()
		return loadFailureError{path: path, stage: "sampler", err: err}
	}

	h.model, h.ctx, h.sampler = model, ctx, sampler
	h.path = path
	h.ctxSize = ctx.Size()
	if h.ctxSize <= 0 {
		h.ctxSize = ctxSize
	}
	h.log.Info().
		Str("path", path).
		Int("ctx_size", h.ctxSize).
		Int("vocab", model.VocabSize()).
		Int("layers", model.LayerCount()).
		Dur("dur", time.Since(start)).
		Msg("load_done")
	return nil
}

// Unload frees sampler, context and model in that order. It is a no-op on an
// empty handle and fails only while a session holds the reservation.
func (h *Handle) Unload() error {
	if h.busy.Load() {
		return busyError{op: "unload"}
	}
	if h.sampler != nil {
		h.sampler.Close()
		h.sampler = nil
	}
	if h.ctx != nil {
		h.ctx.Close()
		h.ctx = nil
	}
	if h.model != nil {
		h.model.Close()
		h.model = nil
		h.log.Info().Str("path", h.path).Msg("unloaded")
	}
	h.path = ""
	h.ctxSize = 0
	return nil
}

// Loaded reports whether a model and context are available.
func (h *Handle) Loaded() bool { return h.model != nil && h.ctx != nil }

// ModelPath returns the path of the loaded model, or "".
func (h *Handle) ModelPath() string { return h.path }

// ContextSize returns the allocated context size, or 0.
func (h *Handle) ContextSize() int { return h.ctxSize }

// VocabSize returns the vocabulary size of the loaded model, or 0.
func (h *Handle) VocabSize() int {
	if h.model == nil {
		return 0
	}
	return h.model.VocabSize()
}

// LayerCount returns the number of layers of the loaded model, or 0.
func (h *Handle) LayerCount() int {
	if h.model == nil {
		return 0
	}
	return h.model.LayerCount()
}

// SetGPULayers sets the layer offload count used by the next Load.
func (h *Handle) SetGPULayers(n int) {
	h.gpuLayers = n
	h.log.Debug().Int("gpu_layers", n).Msg("gpu_layers_set")
}

// GPULayers returns the layer offload count used by Load.
func (h *Handle) GPULayers() int { return h.gpuLayers }

// SetOffloadKQV sets whether the next Load offloads the K/Q/V tensors.
func (h *Handle) SetOffloadKQV(v bool) {
	h.offloadKQV = v
	h.log.Debug().Bool("offload_kqv", v).Msg("offload_kqv_set")
}

// OffloadKQV reports the K/Q/V offload setting used by Load.
func (h *Handle) OffloadKQV() bool { return h.offloadKQV }

// Tokenize converts text into tokens without adding special tokens. Special
// markers embedded in text (chat template tokens) are parsed.
func (h *Handle) Tokenize(text string) ([]Token, error) {
	if h.model == nil {
		return nil, noModelLoadedError{op: "tokenize"}
	}
	return h.model.Tokenize(text, false)
}

// Detokenize concatenates the pieces of tokens.
func (h *Handle) Detokenize(tokens []Token) (string, error) {
	if h.model == nil {
		return "", noModelLoadedError{op: "detokenize"}
	}
	buf := make([]byte, 0, len(tokens)*6)
	for _, tok := range tokens {
		buf = append(buf, h.model.TokenToPiece(tok)...)
	}
	return string(buf), nil
}

// Piece returns the text of a single token.
func (h *Handle) Piece(tok Token) string {
	if h.model == nil {
		return ""
	}
	return h.model.TokenToPiece(tok)
}

// IsEndOfGeneration reports whether tok ends generation (EOS, EOT and friends).
func (h *Handle) IsEndOfGeneration(tok Token) bool {
	return h.model != nil && h.model.IsEndOfGeneration(tok)
}

// Sampling returns a copy of the active sampling configuration.
func (h *Handle) Sampling() SamplingConfig { return h.sampling.Clone() }

// ConfigureSampling validates cfg, stores it and rebuilds the sampler when a
// context is loaded. Calling it again with the same cfg yields an equivalent
// sampler. Without a model the config is kept for the next Load.
func (h *Handle) ConfigureSampling(cfg SamplingConfig) error {
	if h.busy.Load() {
		return busyError{op: "configure sampling"}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if h.ctx != nil {
		s, err := h.ctx.NewSampler(cfg)
		if err != nil {
			return err
		}
		if h.sampler != nil {
			h.sampler.Close()
		}
		h.sampler = s
	}
	h.sampling = cfg.Clone()
	h.log.Debug().
		Float32("temperature", cfg.Temperature).
		Float32("top_p", cfg.TopP).
		Int("top_k", cfg.TopK).
		Float32("repeat_penalty", cfg.RepeatPenalty).
		Strs("stop_words", cfg.StopWords).
		Msg("sampler_rebuilt")
	return nil
}

// AddStopWord appends w to the stop words.
func (h *Handle) AddStopWord(w string) error {
	if h.busy.Load() {
		return busyError{op: "add stop word"}
	}
	h.sampling.StopWords = append(h.sampling.StopWords, w)
	return nil
}

// ClearStopWords removes every stop word.
func (h *Handle) ClearStopWords() error {
	if h.busy.Load() {
		return busyError{op: "clear stop words"}
	}
	h.sampling.StopWords = nil
	return nil
}

// StopWords returns a copy of the stop words in match order.
func (h *Handle) StopWords() []string {
	return append([]string(nil), h.sampling.StopWords...)
}

// ResetContext clears the key/value memory of sequence 0 and the sampler
// history so the next generation starts from position 0.
func (h *Handle) ResetContext() error {
	if h.busy.Load() {
		return busyError{op: "reset context"}
	}
	if h.ctx == nil {
		return noModelLoadedError{op: "reset context"}
	}
	h.ctx.ClearMemory()
	if h.sampler != nil {
		h.sampler.Reset()
	}
	return nil
}

// ContextFillRatio returns the share of context positions in use, in [0,1].
func (h *Handle) ContextFillRatio() float64 {
	if h.ctx == nil || h.ctxSize <= 0 {
		return 0
	}
	used := h.ctx.MaxPosition() + 1
	if used <= 0 {
		return 0
	}
	r := float64(used) / float64(h.ctxSize)
	if r > 1 {
		return 1
	}
	return r
}

// Reserve marks the handle as owned by a generation worker. The returned
// release func must be called exactly once when the worker exits.
func (h *Handle) Reserve() (func(), error) {
	if h.model == nil {
		return func() {}, noModelLoadedError{op: "reserve"}
	}
	if !h.busy.CompareAndSwap(false, true) {
		return func() {}, busyError{op: "reserve"}
	}
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			h.busy.Store(false)
		}
	}, nil
}

// Busy reports whether a worker currently holds the reservation.
func (h *Handle) Busy() bool { return h.busy.Load() }

// BatchSize returns the maximum number of tokens per Decode call.
func (h *Handle) BatchSize() int {
	if h.ctx != nil {
		if n := h.ctx.BatchSize(); n > 0 {
			return n
		}
	}
	return h.batchSize
}

// Decode feeds b through the context. Errors are wrapped as decode failures.
func (h *Handle) Decode(b Batch) error {
	if h.ctx == nil {
		return noModelLoadedError{op: "decode"}
	}
	if len(b.Tokens) == 0 {
		return nil
	}
	if err := h.ctx.Decode(b); err != nil {
		return decodeFailureError{pos: b.Pos, n: len(b.Tokens), err: err}
	}
	return nil
}

// Sample draws the next token from the output of the last decoded batch.
func (h *Handle) Sample() (Token, error) {
	if h.sampler == nil {
		return 0, noModelLoadedError{op: "sample"}
	}
	return h.sampler.Sample(), nil
}

// Info is a read-only view of the handle for status reporting.
type Info struct {
	Loaded      bool    `json:"loaded"`
	ModelPath   string  `json:"model_path,omitempty"`
	ContextSize int     `json:"context_size"`
	VocabSize   int     `json:"vocab_size"`
	Layers      int     `json:"layers"`
	GPULayers   int     `json:"gpu_layers"`
	OffloadKQV  bool    `json:"offload_kqv"`
	FillRatio   float64 `json:"context_fill_ratio"`
}

// Info returns a snapshot of the handle.
func (h *Handle) Info() Info {
	return Info{
		Loaded:      h.Loaded(),
		ModelPath:   h.path,
		ContextSize: h.ctxSize,
		VocabSize:   h.VocabSize(),
		Layers:      h.LayerCount(),
		GPULayers:   h.gpuLayers,
		OffloadKQV:  h.offloadKQV,
		FillRatio:   h.ContextFillRatio(),
	}
}
