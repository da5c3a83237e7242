package manager

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"llamachat/internal/chattemplate"
	"llamachat/internal/common/fsutil"
	"llamachat/internal/registry"
	"llamachat/pkg/types"
)

// resolveModel finds id in the registry. A path to an existing .gguf file is
// accepted even when it is not part of the registry. An empty id selects the
// default model.
func (m *Manager) resolveModel(id string) (types.Model, error) {
	if id == "" {
		id = m.defaultModel
	}
	if id == "" {
		return types.Model{}, ErrInvalidRequest("model is required")
	}
	m.mu.RLock()
	mdl, ok := registry.Find(m.registry, id)
	m.mu.RUnlock()
	if ok {
		return mdl, nil
	}
	if strings.EqualFold(filepath.Ext(id), ".gguf") && fsutil.IsFile(id) {
		name := filepath.Base(id)
		return types.Model{ID: name, Name: registry.DisplayName(name), Path: id}, nil
	}
	return types.Model{}, ErrModelNotFound(id)
}

// EnsureModel makes sure model id (the default model when empty) is loaded.
// It is a no-op when that model is already ready.
func (m *Manager) EnsureModel(ctx context.Context, id string) error {
	mdl, err := m.resolveModel(id)
	if err != nil {
		return err
	}
	if m.isCurrent(mdl) {
		return nil
	}
	release, err := m.beginGeneration(ctx)
	if err != nil {
		return err
	}
	defer release()
	// another caller may have loaded it while we waited
	if m.isCurrent(mdl) {
		return nil
	}
	return m.loadLocked(mdl)
}

func (m *Manager) isCurrent(mdl types.Model) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateReady && m.cur != nil && m.cur.Path == mdl.Path
}

// loadLocked replaces the loaded model. Callers hold the generation slot.
func (m *Manager) loadLocked(mdl types.Model) error {
	m.mu.Lock()
	m.state = StateLoading
	m.err = ""
	m.mu.Unlock()
	m.publish("load_start", mdl.ID, map[string]any{"path": mdl.Path, "context_size": m.ctxSize})

	start := time.Now()
	err := m.handle.Load(mdl.Path, m.ctxSize)
	m.loadsTotal.Add(1)

	m.mu.Lock()
	if err != nil {
		m.state = StateError
		m.err = err.Error()
		m.cur = nil
	} else {
		m.state = StateReady
		m.cur = &ModelInfo{ID: mdl.ID, Name: mdl.Name, Path: mdl.Path}
	}
	m.mu.Unlock()

	dur := time.Since(start)
	if err != nil {
		modelLoadsTotal.WithLabelValues("error").Inc()
		m.log.Error().Err(err).Str("model", mdl.ID).Dur("dur", dur).Msg("model load failed")
		m.publish("load_error", mdl.ID, map[string]any{"error": err.Error()})
		return err
	}
	modelLoadsTotal.WithLabelValues("ok").Inc()
	m.log.Info().Str("model", mdl.ID).Int("context_size", m.ctxSize).Dur("dur", dur).Msg("model loaded")
	m.publish("load_done", mdl.ID, map[string]any{"duration_ms": dur.Milliseconds()})
	return nil
}

// Switch loads model id in place of the current one and resets every
// conversation, since their context memory belonged to the previous model.
// It returns an operation id that tags the published events.
func (m *Manager) Switch(ctx context.Context, id string) (string, error) {
	op := uuid.NewString()
	mdl, err := m.resolveModel(id)
	if err != nil {
		return op, err
	}
	release, err := m.beginGeneration(ctx)
	if err != nil {
		return op, err
	}
	defer release()
	m.publish("switch_start", mdl.ID, map[string]any{"op_id": op})
	if err := m.loadLocked(mdl); err != nil {
		m.publish("switch_error", mdl.ID, map[string]any{"op_id": op, "error": err.Error()})
		return op, err
	}
	n := m.resetConversations()
	m.publish("switch_done", mdl.ID, map[string]any{"op_id": op, "conversations_reset": n})
	return op, nil
}

// Unload releases the current model and waits for running work to finish first.
func (m *Manager) Unload(ctx context.Context) error {
	release, err := m.beginGeneration(ctx)
	if err != nil {
		return err
	}
	defer release()

	m.mu.Lock()
	cur := m.cur
	if cur == nil {
		m.mu.Unlock()
		return ErrDependencyUnavailable("no model loaded")
	}
	m.state = StateEmpty
	m.cur = nil
	m.err = ""
	m.mu.Unlock()

	m.publish("unload_start", cur.ID, nil)
	if err := m.handle.Unload(); err != nil {
		return err
	}
	m.publish("unload_done", cur.ID, nil)
	return nil
}

// SetTemplate switches the chat template. Stop words follow the template
// unless they were configured explicitly.
func (m *Manager) SetTemplate(ctx context.Context, name string) error {
	f, err := chattemplate.Lookup(name)
	if err != nil {
		return ErrInvalidRequest(err.Error())
	}
	release, err := m.beginGeneration(ctx)
	if err != nil {
		return err
	}
	defer release()

	if !m.customStops {
		cfg := m.handle.Sampling()
		cfg.StopWords = f.StopWords()
		if err := m.handle.ConfigureSampling(cfg); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.formatter = f
	m.mu.Unlock()
	for _, item := range m.convs.Items() {
		e := item.Value()
		e.mu.Lock()
		e.conv.SetFormatter(f, m.conversationStopWords())
		e.mu.Unlock()
	}
	m.publish("template_changed", "", map[string]any{"template": f.Name()})
	return nil
}
