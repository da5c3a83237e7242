package manager

import (
	"llamachat/internal/common/fsutil"
	"llamachat/internal/engine"
)

// SanityReport describes runtime checks for external dependencies.
type SanityReport struct {
	LlamaBuilt         bool   `json:"llama_built"`
	DefaultModel       string `json:"default_model,omitempty"`
	DefaultModelPath   string `json:"default_model_path,omitempty"`
	DefaultModelFound  bool   `json:"default_model_found"`
	RegisteredModels   int    `json:"registered_models"`
	HistoryPersistence bool   `json:"history_persistence"`
	Error              string `json:"error,omitempty"`
}

// SanityCheck validates that the llama.cpp backend is compiled in and the
// default model file exists. It does not mutate state and is safe to call at
// any time.
func (m *Manager) SanityCheck() SanityReport {
	m.mu.RLock()
	n := len(m.registry)
	m.mu.RUnlock()
	r := SanityReport{
		LlamaBuilt:         engine.LlamaBuilt(),
		DefaultModel:       m.defaultModel,
		RegisteredModels:   n,
		HistoryPersistence: m.history != nil,
	}
	if !r.LlamaBuilt {
		r.Error = "llama.cpp backend not built (rebuild with -tags=llama)"
		return r
	}
	if m.defaultModel == "" {
		return r
	}
	mdl, err := m.resolveModel(m.defaultModel)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.DefaultModelPath = mdl.Path
	r.DefaultModelFound = fsutil.IsFile(mdl.Path)
	if !r.DefaultModelFound {
		r.Error = "model file not found: " + mdl.Path
	}
	return r
}
