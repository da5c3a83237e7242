// Package manager coordinates the engine handle, the shared generation
// session and the conversations served over HTTP. It is structured into
// small files by concern:
//
//   - manager.go: core Manager type, constructor helpers, simple getters.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: state types (State, ModelInfo, Snapshot).
//   - errors.go: error types and helpers (IsTooBusy, IsModelNotFound, ...).
//   - admission.go: the bounded queue in front of the single generation slot.
//   - load.go: EnsureModel, Switch, Unload and SetTemplate.
//   - generate.go: raw prompt generation streamed as NDJSON.
//   - conversations.go: TTL-bounded conversations and their frame loop.
//   - status_report.go: Status/Snapshot reporting helpers.
//   - sanity.go: startup checks for the backend and model files.
//
// Every path that touches the engine (generation, loads, template changes)
// first takes the generation slot, so the handle is never mutated while a
// session worker owns it.
package manager
