//go:build llama

package engine

/*
#include <stdlib.h>
#include <stdbool.h>
#include "llama.h"

static void lc_batch_set(struct llama_batch * b, int i, llama_token tok, llama_pos pos, bool logits) {
	b->token[i]     = tok;
	b->pos[i]       = pos;
	b->n_seq_id[i]  = 1;
	b->seq_id[i][0] = 0;
	b->logits[i]    = logits;
}
*/
import "C"

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

// InitBackend performs the process-wide llama.cpp initialization. Call it
// once from main before loading models.
func InitBackend() { C.llama_backend_init() }

// FreeBackend releases the process-wide llama.cpp state.
func FreeBackend() { C.llama_backend_free() }

type llamaBackend struct{}

// NewLlamaBackend returns the llama.cpp backend.
func NewLlamaBackend() Backend { return llamaBackend{} }

type llamaModel struct {
	model *C.struct_llama_model
	vocab *C.struct_llama_vocab
}

func (llamaBackend) LoadModel(path string, opts ModelOptions) (Model, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("model path is empty")
	}
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	mp := C.llama_model_default_params()
	mp.n_gpu_layers = C.int32_t(opts.GPULayers)
	m := C.llama_model_load_from_file(cpath, mp)
	if m == nil {
		return nil, fmt.Errorf("llama_model_load_from_file failed: %s", path)
	}
	return &llamaModel{model: m, vocab: C.llama_model_get_vocab(m)}, nil
}

func (m *llamaModel) NewContext(opts ContextOptions) (Context, error) {
	cp := C.llama_context_default_params()
	cp.n_ctx = C.uint32_t(opts.Size)
	cp.n_batch = C.uint32_t(opts.BatchSize)
	cp.n_ubatch = C.uint32_t(opts.BatchSize)
	cp.n_threads = C.int32_t(opts.Threads)
	cp.n_threads_batch = C.int32_t(opts.Threads)
	cp.offload_kqv = C.bool(opts.OffloadKQV)
	c := C.llama_init_from_model(m.model, cp)
	if c == nil {
		return nil, errors.New("llama_init_from_model failed")
	}
	return &llamaContext{ctx: c, model: m}, nil
}

func (m *llamaModel) Tokenize(text string, addSpecial bool) ([]Token, error) {
	if text == "" {
		return nil, nil
	}
	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	capacity := len(text) + 8
	for attempt := 0; attempt < 2; attempt++ {
		buf := make([]C.llama_token, capacity)
		n := C.llama_tokenize(m.vocab, ctext, C.int32_t(len(text)), &buf[0], C.int32_t(capacity), C.bool(addSpecial), C.bool(true))
		if n >= 0 {
			out := make([]Token, int(n))
			for i := range out {
				out[i] = Token(buf[i])
			}
			return out, nil
		}
		capacity = int(-n)
	}
	return nil, errors.New("llama_tokenize: buffer size mismatch")
}

func (m *llamaModel) TokenToPiece(tok Token) string {
	buf := make([]byte, 64)
	n := C.llama_token_to_piece(m.vocab, C.llama_token(tok), (*C.char)(unsafe.Pointer(&buf[0])), C.int32_t(len(buf)), 0, C.bool(false))
	if n < 0 {
		buf = make([]byte, int(-n))
		n = C.llama_token_to_piece(m.vocab, C.llama_token(tok), (*C.char)(unsafe.Pointer(&buf[0])), C.int32_t(len(buf)), 0, C.bool(false))
	}
	if n <= 0 {
		return ""
	}
	return string(buf[:int(n)])
}

func (m *llamaModel) IsEndOfGeneration(tok Token) bool {
	return bool(C.llama_vocab_is_eog(m.vocab, C.llama_token(tok)))
}

func (m *llamaModel) VocabSize() int { return int(C.llama_vocab_n_tokens(m.vocab)) }

func (m *llamaModel) LayerCount() int { return int(C.llama_model_n_layer(m.model)) }

func (m *llamaModel) Close() {
	if m.model != nil {
		C.llama_model_free(m.model)
		m.model = nil
		m.vocab = nil
	}
}

type llamaContext struct {
	ctx   *C.struct_llama_context
	model *llamaModel
}

func (c *llamaContext) Decode(b Batch) error {
	n := len(b.Tokens)
	batch := C.llama_batch_init(C.int32_t(n), 0, 1)
	defer C.llama_batch_free(batch)
	for i, tok := range b.Tokens {
		last := b.Logits && i == n-1
		C.lc_batch_set(&batch, C.int(i), C.llama_token(tok), C.llama_pos(b.Pos+i), C.bool(last))
	}
	batch.n_tokens = C.int32_t(n)
	if rc := C.llama_decode(c.ctx, batch); rc != 0 {
		return fmt.Errorf("llama_decode returned %d", int(rc))
	}
	return nil
}

// NewSampler builds the chain top-k, top-p, temperature, penalties, greedy.
func (c *llamaContext) NewSampler(cfg SamplingConfig) (Sampler, error) {
	chain := C.llama_sampler_chain_init(C.llama_sampler_chain_default_params())
	if chain == nil {
		return nil, errors.New("llama_sampler_chain_init failed")
	}
	C.llama_sampler_chain_add(chain, C.llama_sampler_init_top_k(C.int32_t(cfg.TopK)))
	C.llama_sampler_chain_add(chain, C.llama_sampler_init_top_p(C.float(cfg.TopP), 1))
	C.llama_sampler_chain_add(chain, C.llama_sampler_init_temp(C.float(cfg.Temperature)))
	C.llama_sampler_chain_add(chain, C.llama_sampler_init_penalties(
		-1,
		C.float(cfg.RepeatPenalty),
		C.float(cfg.FrequencyPenalty),
		C.float(cfg.PresencePenalty),
	))
	C.llama_sampler_chain_add(chain, C.llama_sampler_init_greedy())
	return &llamaSampler{chain: chain, ctx: c}, nil
}

func (c *llamaContext) Size() int { return int(C.llama_n_ctx(c.ctx)) }

func (c *llamaContext) BatchSize() int { return int(C.llama_n_batch(c.ctx)) }

func (c *llamaContext) MaxPosition() int {
	return int(C.llama_memory_seq_pos_max(C.llama_get_memory(c.ctx), 0))
}

func (c *llamaContext) ClearMemory() {
	C.llama_memory_seq_rm(C.llama_get_memory(c.ctx), 0, 0, -1)
}

func (c *llamaContext) Close() {
	if c.ctx != nil {
		C.llama_free(c.ctx)
		c.ctx = nil
	}
}

type llamaSampler struct {
	chain *C.struct_llama_sampler
	ctx   *llamaContext
}

func (s *llamaSampler) Sample() Token {
	return Token(C.llama_sampler_sample(s.chain, s.ctx.ctx, -1))
}

func (s *llamaSampler) Reset() { C.llama_sampler_reset(s.chain) }

func (s *llamaSampler) Close() {
	if s.chain != nil {
		C.llama_sampler_free(s.chain)
		s.chain = nil
	}
}
