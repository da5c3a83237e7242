//go:build !llama

package engine

// This file provides a no-CGO stub for the llama.cpp backend. It is compiled
// when the 'llama' build tag is NOT set, keeping default builds and CI
// CGO-free. The real backend lives in backend_llama.go.

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = false

// InitBackend is a no-op without the llama runtime.
func InitBackend() {}

// FreeBackend is a no-op without the llama runtime.
func FreeBackend() {}

// llamaBackend refuses to load models. This avoids any mocked behavior in
// production binaries built without CGO support.
type llamaBackend struct{}

// NewLlamaBackend returns the stub backend.
func NewLlamaBackend() Backend { return llamaBackend{} }

func (llamaBackend) LoadModel(path string, opts ModelOptions) (Model, error) {
	return nil, ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}
