package engine

// Token is a vocabulary id of the loaded model.
type Token int32

// Batch is a contiguous run of tokens decoded into sequence 0.
type Batch struct {
	Tokens []Token
	// Pos is the context position of Tokens[0].
	Pos int
	// Logits requests the output distribution for the last token only.
	Logits bool
}

// ModelOptions are passed to the backend when a model file is opened.
type ModelOptions struct {
	GPULayers int
}

// ContextOptions are passed to the backend when a context is allocated.
type ContextOptions struct {
	Size       int
	BatchSize  int
	Threads    int
	OffloadKQV bool
}

// Backend opens model files. Implementations: the llama.cpp binding (build tag
// `llama`) and enginetest.Backend.
type Backend interface {
	LoadModel(path string, opts ModelOptions) (Model, error)
}

// Model is a loaded model and its vocabulary.
type Model interface {
	NewContext(opts ContextOptions) (Context, error)
	Tokenize(text string, addSpecial bool) ([]Token, error)
	TokenToPiece(tok Token) string
	IsEndOfGeneration(tok Token) bool
	VocabSize() int
	LayerCount() int
	Close()
}

// Context holds the key/value memory for a single sequence.
type Context interface {
	Decode(b Batch) error
	NewSampler(cfg SamplingConfig) (Sampler, error)
	Size() int
	BatchSize() int
	// MaxPosition returns the highest occupied position of sequence 0, or -1.
	MaxPosition() int
	ClearMemory()
	Close()
}

// Sampler picks the next token from the context's latest output distribution.
type Sampler interface {
	Sample() Token
	Reset()
	Close()
}

// LlamaBuilt reports whether this binary links the llama.cpp backend.
func LlamaBuilt() bool { return llamaBuilt }
