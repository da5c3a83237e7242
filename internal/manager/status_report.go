package manager

import (
	"time"

	"llamachat/internal/engine"
	"llamachat/pkg/types"
)

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := Snapshot{State: m.state, Err: m.err, Template: m.formatter.Name()}
	if m.cur != nil {
		cur := *m.cur
		snap.CurrentModel = &cur
	}
	return snap
}

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	resp := types.StatusResponse{
		State:          string(m.state),
		Template:       m.formatter.Name(),
		LlamaBuilt:     engine.LlamaBuilt(),
		ContextSize:    m.ctxSize,
		Generating:     m.session.IsRunning(),
		QueueLen:       len(m.queueCh),
		MaxQueueDepth:  cap(m.queueCh),
		Conversations:  m.convs.Len(),
		LastError:      m.err,
		UptimeSeconds:  int64(now.Sub(m.startTime).Seconds()),
		ServerTimeUnix: now.Unix(),
		LoadsTotal:     m.loadsTotal.Load(),
	}
	// The context belongs to the slot holder. Read it only when the slot is
	// free and report the info cached at the last release otherwise.
	if m.state == StateReady && m.cur != nil {
		info := m.info
		select {
		case m.genCh <- struct{}{}:
			if !m.session.IsRunning() {
				info = m.handle.Info()
			}
			<-m.genCh
		default:
		}
		resp.Model = m.cur.ID
		resp.ContextSize = info.ContextSize
		resp.ContextFillRatio = info.FillRatio
		resp.Layers = info.Layers
		resp.GPULayers = info.GPULayers
	}
	return resp
}

// FillRatio returns the share of the context in use, or 0 without a model.
// Callers hold the generation slot (Acquire) with no session running.
func (m *Manager) FillRatio() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateReady {
		return 0
	}
	return m.handle.ContextFillRatio()
}
