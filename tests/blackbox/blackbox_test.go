// Package blackbox builds the llamachat binary and drives it over HTTP.
// The binary is built without the llama tag, so every load fails with the
// backend reported unavailable.
package blackbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

// findFreePort picks an available TCP port on localhost.
func findFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func projectRootFromThisFile(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	// this file: <root>/tests/blackbox/blackbox_test.go
	return filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
}

func buildBinary(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping binary build in -short mode")
	}
	binPath := filepath.Join(t.TempDir(), "llamachat")
	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/llamachat")
	cmd.Dir = projectRootFromThisFile(t)
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(out))
	}
	return binPath
}

func createTempModelsDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, []byte("GGUF"), 0o644); err != nil {
			t.Fatalf("write temp model %s: %v", p, err)
		}
	}
	return dir
}

type serverProc struct {
	cmd    *exec.Cmd
	base   string // http base URL, e.g. http://127.0.0.1:18080
	exited chan error
}

func startServer(t *testing.T, bin, modelsDir string, extra ...string) *serverProc {
	t.Helper()
	port := findFreePort(t)
	args := append([]string{
		"serve",
		"--addr", fmt.Sprintf("127.0.0.1:%d", port),
		"--models-dir", modelsDir,
		"--log-format", "json",
	}, extra...)
	cmd := exec.Command(bin, args...)
	cmd.Env = append(os.Environ(), "LLAMACHAT_HISTORY_DB=")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	sp := &serverProc{cmd: cmd, base: fmt.Sprintf("http://127.0.0.1:%d", port), exited: make(chan error, 1)}
	go func() { sp.exited <- cmd.Wait() }()
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		<-sp.exited
	})

	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := http.Get(sp.base + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return sp
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not become healthy in time")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func postJSON(t *testing.T, url, payload string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader([]byte(payload)))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func TestBlackbox_Flow(t *testing.T) {
	bin := buildBinary(t)
	modelsDir := createTempModelsDir(t, "alpha.gguf", "beta.gguf")
	sp := startServer(t, bin, modelsDir)

	resp, body := get(t, sp.base+"/models")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/models %d %s", resp.StatusCode, string(body))
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("/models content-type=%s", ct)
	}
	var modelsResp struct {
		Models []struct {
			ID string `json:"id"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &modelsResp); err != nil {
		t.Fatalf("/models json: %v body=%s", err, string(body))
	}
	if len(modelsResp.Models) != 2 || modelsResp.Models[0].ID != "alpha.gguf" {
		t.Fatalf("unexpected models: %+v", modelsResp.Models)
	}

	resp, body = get(t, sp.base+"/readyz")
	if resp.StatusCode != http.StatusServiceUnavailable || string(body) != "loading" {
		t.Fatalf("/readyz %d %s", resp.StatusCode, string(body))
	}

	resp, body = postJSON(t, sp.base+"/generate", `{"prompt":"hello"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("/generate without a model: expected 503, got %d %s", resp.StatusCode, string(body))
	}

	resp, body = postJSON(t, sp.base+"/conversations", `{}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("/conversations %d %s", resp.StatusCode, string(body))
	}

	// the binary has no llama backend, so the load fails as unavailable
	resp, body = postJSON(t, sp.base+"/switch", `{"model":"alpha.gguf"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("/switch expected 503, got %d %s", resp.StatusCode, string(body))
	}
	resp, body = get(t, sp.base+"/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/status %d %s", resp.StatusCode, string(body))
	}
	var st struct {
		State      string `json:"state"`
		LlamaBuilt bool   `json:"llama_built"`
		LastError  string `json:"last_error"`
	}
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("/status json: %v body=%s", err, string(body))
	}
	if st.State != "error" || st.LlamaBuilt || st.LastError == "" {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestBlackbox_SwitchUnknownModel_404(t *testing.T) {
	bin := buildBinary(t)
	sp := startServer(t, bin, createTempModelsDir(t, "alpha.gguf"))

	resp, body := postJSON(t, sp.base+"/switch", `{"model":"missing.gguf"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d, body=%s", resp.StatusCode, string(body))
	}
}

func TestBlackbox_GracefulShutdown(t *testing.T) {
	bin := buildBinary(t)
	sp := startServer(t, bin, createTempModelsDir(t))

	if err := sp.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("signal: %v", err)
	}
	select {
	case err := <-sp.exited:
		if err != nil {
			t.Fatalf("expected clean exit, got %v", err)
		}
		// Cleanup waits on exited too
		sp.exited <- nil
	case <-time.After(10 * time.Second):
		t.Fatalf("server did not stop after SIGTERM")
	}
}
