package manager

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"llamachat/internal/engine/enginetest"
	"llamachat/pkg/types"
)

// createModelFile writes a placeholder model file and returns its path.
func createModelFile(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("GGUF"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return p
}

// newTestManager builds a manager over b with two registered models, m1.gguf
// (the default) and m2.gguf. mut may adjust the config before construction.
func newTestManager(t *testing.T, b *enginetest.Backend, mut func(*ManagerConfig)) (*Manager, *MemoryPublisher) {
	t.Helper()
	dir := t.TempDir()
	reg := []types.Model{
		{ID: "m1.gguf", Name: "m1.gguf", Path: createModelFile(t, dir, "m1.gguf")},
		{ID: "m2.gguf", Name: "m2.gguf", Path: createModelFile(t, dir, "m2.gguf")},
	}
	pub := NewMemoryPublisher()
	cfg := ManagerConfig{
		Registry:       reg,
		DefaultModel:   "m1.gguf",
		Backend:        b,
		ContextSize:    4096,
		StreamInterval: time.Millisecond,
		MaxWait:        2 * time.Second,
		Publisher:      pub,
	}
	if mut != nil {
		mut(&cfg)
	}
	m, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m, pub
}

// readyManager is newTestManager with the default model loaded.
func readyManager(t *testing.T, b *enginetest.Backend, mut func(*ManagerConfig)) (*Manager, *MemoryPublisher) {
	t.Helper()
	m, pub := newTestManager(t, b, mut)
	if err := m.EnsureModel(t.Context(), ""); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	return m, pub
}

// ndjsonLines decodes every line of buf into a generic map.
func ndjsonLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var line map[string]any
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			t.Fatalf("bad ndjson line %q: %v", sc.Text(), err)
		}
		out = append(out, line)
	}
	return out
}

// conversationEvents decodes a Converse stream.
func conversationEvents(t *testing.T, buf *bytes.Buffer) []types.ConversationEvent {
	t.Helper()
	var out []types.ConversationEvent
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		var ev types.ConversationEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("bad event %q: %v", sc.Text(), err)
		}
		out = append(out, ev)
	}
	return out
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// errWriter fails every write.
type errWriter struct{}

func (errWriter) Write(p []byte) (int, error) { return 0, os.ErrClosed }
