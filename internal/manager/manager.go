package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"

	"llamachat/internal/chattemplate"
	"llamachat/internal/engine"
	"llamachat/internal/generation"
	"llamachat/internal/history"
	"llamachat/pkg/types"
)

// Manager owns the engine handle and the generation session shared by every
// request. Generation work is serialized through a bounded admission queue;
// lifecycle changes (load, switch, unload) take the same slot so they never
// overlap a running session.
type Manager struct {
	mu           sync.RWMutex
	state        State
	cur          *ModelInfo
	err          string
	registry     []types.Model
	defaultModel string
	ctxSize      int

	handle      *engine.Handle
	session     *generation.Session
	formatter   chattemplate.Formatter
	customStops bool
	stopWords   []string // configured stop words when customStops
	chat        ChatConfig
	info        engine.Info // handle info cached at the last slot release

	convs   *ttlcache.Cache[string, *convEntry]
	history *history.Store

	// Queue config
	queueCh        chan struct{} // buffered: queue slots
	genCh          chan struct{} // size 1: single in-flight generation
	maxQueueDepth  int
	maxWait        time.Duration
	streamInterval time.Duration

	publisher  EventPublisher
	log        zerolog.Logger
	startTime  time.Time
	loadsTotal atomic.Uint64
	closeOnce  sync.Once
}

// New constructs a Manager over backend with package defaults.
func New(reg []types.Model, backend engine.Backend, defaultModel string) *Manager {
	m, _ := NewWithConfig(ManagerConfig{
		Registry:     reg,
		Backend:      backend,
		DefaultModel: defaultModel,
	})
	return m
}

// Ready reports whether a model is loaded and usable.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateReady && m.cur != nil
}

// ListModels returns a copy of the registry.
func (m *Manager) ListModels() []types.Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// return a shallow copy to avoid external mutation
	out := make([]types.Model, len(m.registry))
	copy(out, m.registry)
	return out
}

// SetRegistry replaces the model list, e.g. after a rescan of the models directory.
func (m *Manager) SetRegistry(reg []types.Model) {
	m.mu.Lock()
	m.registry = append([]types.Model(nil), reg...)
	m.mu.Unlock()
}

// Session exposes the shared generation session. Callers driving it directly
// must hold the generation slot (see Acquire).
func (m *Manager) Session() *generation.Session { return m.session }

// Acquire reserves the generation slot for work outside the manager's own
// request paths, such as the terminal client. The release func must be called.
func (m *Manager) Acquire(ctx context.Context) (func(), error) {
	return m.beginGeneration(ctx)
}

// Close stops any running session, releases the model and stops the
// conversation expiry loop. It is safe to call more than once.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.session.Stop()
		m.convs.Stop()
		m.mu.Lock()
		defer m.mu.Unlock()
		err = m.handle.Unload()
		m.state = StateEmpty
		m.cur = nil
	})
	return err
}
