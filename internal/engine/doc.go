// Package engine owns a loaded model, its context and its sampler. It is
// structured into small files by concern:
//
//   - types.go: Token, Batch and the Backend/Model/Context/Sampler capability
//     interfaces the handle orchestrates.
//   - handle.go: Handle lifecycle (Load/Unload), tokenization, sampling
//     configuration, context reset and fill ratio, and the Reserve/Decode/Sample
//     surface used by generation workers.
//   - sampling.go: SamplingConfig, defaults and stop word suffix matching.
//   - errors.go: error types and helpers (IsLoadFailure, IsDecodeFailure,
//     IsNoModelLoaded, IsBusy, IsDependencyUnavailable).
//
// Build tags and runtimes:
//
//   - In-process llama.cpp: enabled with `-tags=llama`.
//     Files: backend_llama.go, llama_cgo.go (include and linker hints).
//   - A no-CGO stub is compiled when the tag is not set: backend_stub.go.
//     Its LoadModel fails with a dependency-unavailable error.
//
// InitBackend/FreeBackend wrap the process-wide library state and are called
// once by main; constructing handles never touches global state.
package engine
