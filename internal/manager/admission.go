package manager

import (
	"context"
	"time"
)

// beginGeneration reserves a queue slot and then the single in-flight slot.
// Returns a release func to be deferred.
func (m *Manager) beginGeneration(ctx context.Context) (func(), error) {
	start := time.Now()
	// Try to reserve a queue slot with timeout
	qt := time.NewTimer(m.maxWait)
	defer qt.Stop()
	select {
	case m.queueCh <- struct{}{}:
		// reserved queue slot
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-qt.C:
		backpressureTotal.WithLabelValues("queue").Inc()
		return func() {}, tooBusyError{stage: "queue slot"}
	}
	queueDepth.Set(float64(len(m.queueCh)))

	// Wait to acquire the single in-flight slot
	acquired := false
	defer func() {
		if !acquired {
			<-m.queueCh
			queueDepth.Set(float64(len(m.queueCh)))
		}
	}()
	gt := time.NewTimer(m.maxWait)
	defer gt.Stop()
	select {
	case m.genCh <- struct{}{}:
		acquired = true
		queueWaitSeconds.Observe(time.Since(start).Seconds())
		return func() {
			m.refreshInfo()
			<-m.genCh
			<-m.queueCh
			queueDepth.Set(float64(len(m.queueCh)))
		}, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-gt.C:
		backpressureTotal.WithLabelValues("generation").Inc()
		return func() {}, tooBusyError{stage: "generation slot"}
	}
}

// refreshInfo caches the handle info reported by Status. Callers hold the
// generation slot; nothing is read while a worker still runs.
func (m *Manager) refreshInfo() {
	if m.session.IsRunning() {
		return
	}
	info := m.handle.Info()
	m.mu.Lock()
	m.info = info
	m.mu.Unlock()
}
