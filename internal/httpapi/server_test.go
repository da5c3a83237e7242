package httpapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"llamachat/internal/manager"
	"llamachat/pkg/types"
)

type mockService struct {
	models    []types.Model
	status    types.StatusResponse
	ready     bool
	switchErr error
	genErr    error
	convErr   error
	generated []types.GenerateRequest
	conv      types.ConversationResponse
	stopped   []string
	deleted   []string
	converse  func(ctx context.Context, id, text string, w io.Writer, flush func()) error
}

func (m *mockService) ListModels() []types.Model { return append([]types.Model(nil), m.models...) }
func (m *mockService) Status() types.StatusResponse { return m.status }
func (m *mockService) Ready() bool { return m.ready }
func (m *mockService) CreateConversation() types.ConversationResponse {
	return types.ConversationResponse{ID: "c1", State: "chatting", Messages: []types.Message{}}
}

func (m *mockService) Switch(ctx context.Context, model string) (string, error) {
	if m.switchErr != nil {
		return "", m.switchErr
	}
	return "op-" + model, nil
}

func (m *mockService) Generate(ctx context.Context, req types.GenerateRequest, w io.Writer, flush func()) error {
	m.generated = append(m.generated, req)
	if m.genErr != nil {
		return m.genErr
	}
	enc := json.NewEncoder(w)
	_ = enc.Encode(map[string]any{"token": "hi"})
	if flush != nil {
		flush()
	}
	_ = enc.Encode(types.GenerateResponse{Done: true, Content: "hi", FinishReason: "eos"})
	return nil
}

func (m *mockService) Conversation(id string) (types.ConversationResponse, error) {
	if m.convErr != nil {
		return types.ConversationResponse{}, m.convErr
	}
	c := m.conv
	c.ID = id
	return c, nil
}

func (m *mockService) DeleteConversation(id string) error {
	if m.convErr != nil {
		return m.convErr
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockService) StopConversation(id string) error {
	if m.convErr != nil {
		return m.convErr
	}
	m.stopped = append(m.stopped, id)
	return nil
}

func (m *mockService) Converse(ctx context.Context, id, text string, w io.Writer, flush func()) error {
	if m.converse != nil {
		return m.converse(ctx, id, text, w, flush)
	}
	if m.convErr != nil {
		return m.convErr
	}
	enc := json.NewEncoder(w)
	_ = enc.Encode(types.ConversationEvent{State: "generating_reply"})
	_ = enc.Encode(types.ConversationEvent{Token: "yo"})
	_ = enc.Encode(types.ConversationEvent{Done: true, Message: &types.Message{Role: "assistant", Text: "yo"}})
	return nil
}

type mockHTTPError struct {
	msg  string
	code int
}

func (e mockHTTPError) Error() string { return e.msg }
func (e mockHTTPError) StatusCode() int { return e.code }

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestModelsHandler(t *testing.T) {
	svc := &mockService{models: []types.Model{{ID: "m1"}, {ID: "m2"}}}
	w := do(t, NewMux(svc), http.MethodGet, "/models", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%s", ct)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("nosniff header missing")
	}
	var body types.ModelsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(body.Models) != 2 {
		t.Fatalf("models len=%d", len(body.Models))
	}
}

func TestStatusHandler(t *testing.T) {
	svc := &mockService{status: types.StatusResponse{State: "ready", Template: "chatml", ContextSize: 2048}}
	w := do(t, NewMux(svc), http.MethodGet, "/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.State != "ready" || body.ContextSize != 2048 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestHealthAndReadyz(t *testing.T) {
	h := NewMux(&mockService{ready: true})
	if w := do(t, h, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", w.Code, w.Body.String())
	}
	if w := do(t, h, http.MethodGet, "/readyz", ""); w.Code != http.StatusOK {
		t.Fatalf("readyz status=%d", w.Code)
	}
	w := do(t, NewMux(&mockService{}), http.MethodGet, "/readyz", "")
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "loading") {
		t.Fatalf("not ready: %d %q", w.Code, w.Body.String())
	}
}

func TestGenerateStreams(t *testing.T) {
	svc := &mockService{}
	w := do(t, NewMux(svc), http.MethodPost, "/generate", `{"prompt":"Hello","max_tokens":4,"top_k":5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("content-type=%s", ct)
	}
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), w.Body.String())
	}
	var final types.GenerateResponse
	if err := json.Unmarshal([]byte(lines[1]), &final); err != nil || !final.Done || final.Content != "hi" {
		t.Fatalf("final line: %+v err=%v", final, err)
	}
	if len(svc.generated) != 1 || svc.generated[0].MaxTokens != 4 || svc.generated[0].TopK == nil || *svc.generated[0].TopK != 5 {
		t.Fatalf("request not forwarded: %+v", svc.generated)
	}
}

func TestGenerateNonStreamingContentType(t *testing.T) {
	w := do(t, NewMux(&mockService{}), http.MethodPost, "/generate", `{"prompt":"Hello","stream":false}`)
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%s", ct)
	}
}

func TestGenerateValidation(t *testing.T) {
	h := NewMux(&mockService{})
	cases := []struct {
		name string
		body string
		ct   string
		want int
	}{
		{"bad json", `{"prompt":`, "application/json", http.StatusBadRequest},
		{"blank prompt", `{"prompt":"  "}`, "application/json", http.StatusBadRequest},
		{"wrong content type", `{"prompt":"x"}`, "text/plain", http.StatusUnsupportedMediaType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", tc.ct)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status=%d want %d", w.Code, tc.want)
			}
			var er types.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil || er.Code != tc.want || er.Error == "" {
				t.Fatalf("error body: %+v err=%v", er, err)
			}
		})
	}
}

func TestGenerateBodyTooLarge(t *testing.T) {
	SetMaxBodyBytes(16)
	t.Cleanup(func() { SetMaxBodyBytes(0) })
	body := `{"prompt":"` + strings.Repeat("x", 64) + `"}`
	w := do(t, NewMux(&mockService{}), http.MethodPost, "/generate", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestGenerateErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{manager.ErrInvalidRequest("bad"), http.StatusBadRequest},
		{manager.ErrDependencyUnavailable("no model loaded"), http.StatusServiceUnavailable},
		{mockHTTPError{msg: "teapot", code: http.StatusTeapot}, http.StatusTeapot},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := do(t, NewMux(&mockService{genErr: tc.err}), http.MethodPost, "/generate", `{"prompt":"x"}`)
		if w.Code != tc.want {
			t.Fatalf("%v: status=%d want %d", tc.err, w.Code, tc.want)
		}
		if !strings.Contains(w.Body.String(), tc.err.Error()) {
			t.Fatalf("%v: body=%q", tc.err, w.Body.String())
		}
	}
}

func TestGenerateErrorAfterFirstByteKeepsStream(t *testing.T) {
	w := do(t, NewMux(&failingService{mockService: &mockService{}}), http.MethodPost, "/generate", `{"prompt":"x"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if strings.Contains(w.Body.String(), `"code"`) {
		t.Fatalf("error payload must not follow stream data: %q", w.Body.String())
	}
}

type failingService struct{ *mockService }

func (f *failingService) Generate(ctx context.Context, req types.GenerateRequest, w io.Writer, flush func()) error {
	_, _ = io.WriteString(w, "{\"token\":\"a\"}\n")
	return errors.New("late failure")
}

func TestSwitch(t *testing.T) {
	h := NewMux(&mockService{})
	w := do(t, h, http.MethodPost, "/switch", `{"model":"m2.gguf"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp types.SwitchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.OpID != "op-m2.gguf" || resp.Status != "loaded" {
		t.Fatalf("resp=%+v err=%v", resp, err)
	}
	if w := do(t, h, http.MethodPost, "/switch", `{"model":""}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing model status=%d", w.Code)
	}
	w = do(t, NewMux(&mockService{switchErr: manager.ErrModelNotFound("zz")}), http.MethodPost, "/switch", `{"model":"zz"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown model status=%d", w.Code)
	}
}

func TestConversationRoutes(t *testing.T) {
	svc := &mockService{conv: types.ConversationResponse{State: "chatting", Summary: "- earlier"}}
	h := NewMux(svc)

	w := do(t, h, http.MethodPost, "/conversations", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create status=%d", w.Code)
	}
	var created types.ConversationResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil || created.ID != "c1" {
		t.Fatalf("created=%+v err=%v", created, err)
	}

	w = do(t, h, http.MethodGet, "/conversations/c1", "")
	var got types.ConversationResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil || got.ID != "c1" || got.Summary != "- earlier" {
		t.Fatalf("get=%+v err=%v", got, err)
	}

	if w := do(t, h, http.MethodPost, "/conversations/c1/stop", ""); w.Code != http.StatusAccepted {
		t.Fatalf("stop status=%d", w.Code)
	}
	if w := do(t, h, http.MethodDelete, "/conversations/c1", ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", w.Code)
	}
	if len(svc.stopped) != 1 || len(svc.deleted) != 1 {
		t.Fatalf("stopped=%v deleted=%v", svc.stopped, svc.deleted)
	}
}

func TestConversationNotFound(t *testing.T) {
	h := NewMux(&mockService{convErr: manager.ErrConversationNotFound("nope")})
	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/conversations/nope", ""},
		{http.MethodDelete, "/conversations/nope", ""},
		{http.MethodPost, "/conversations/nope/stop", ""},
		{http.MethodPost, "/conversations/nope/messages", `{"text":"hi"}`},
	} {
		if w := do(t, h, tc.method, tc.path, tc.body); w.Code != http.StatusNotFound {
			t.Fatalf("%s %s status=%d", tc.method, tc.path, w.Code)
		}
	}
}

func TestPostMessageStreams(t *testing.T) {
	var gotID, gotText string
	svc := &mockService{}
	svc.converse = func(ctx context.Context, id, text string, w io.Writer, flush func()) error {
		gotID, gotText = id, text
		enc := json.NewEncoder(w)
		_ = enc.Encode(types.ConversationEvent{State: "generating_reply"})
		_ = enc.Encode(types.ConversationEvent{Done: true, Message: &types.Message{Role: "assistant", Text: "yo"}})
		return nil
	}
	w := do(t, NewMux(svc), http.MethodPost, "/conversations/c9/messages", `{"text":"hello"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if gotID != "c9" || gotText != "hello" {
		t.Fatalf("forwarded id=%q text=%q", gotID, gotText)
	}
	lines := bytes.Split(bytes.TrimSpace(w.Body.Bytes()), []byte("\n"))
	var last types.ConversationEvent
	if err := json.Unmarshal(lines[len(lines)-1], &last); err != nil || !last.Done || last.Message == nil || last.Message.Text != "yo" {
		t.Fatalf("last event=%+v err=%v", last, err)
	}
}

func TestPostMessageValidation(t *testing.T) {
	h := NewMux(&mockService{})
	if w := do(t, h, http.MethodPost, "/conversations/c1/messages", `{"text":"   "}`); w.Code != http.StatusBadRequest {
		t.Fatalf("blank text status=%d", w.Code)
	}
	w := do(t, NewMux(&mockService{convErr: manager.ErrInvalidRequest("input is empty")}), http.MethodPost, "/conversations/c1/messages", `{"text":"x"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("service invalid status=%d", w.Code)
	}
}

func TestRequestTimeout(t *testing.T) {
	SetRequestTimeoutSeconds(1)
	t.Cleanup(func() { SetRequestTimeoutSeconds(0) })
	svc := &mockService{}
	svc.converse = func(ctx context.Context, id, text string, w io.Writer, flush func()) error {
		<-ctx.Done()
		return ctx.Err()
	}
	w := do(t, NewMux(svc), http.MethodPost, "/conversations/c1/messages", `{"text":"x"}`)
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestServerShutdownCancelsStream(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	SetBaseContext(base)
	t.Cleanup(func() { SetBaseContext(nil) })
	svc := &mockService{}
	svc.converse = func(ctx context.Context, id, text string, w io.Writer, flush func()) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}
	w := do(t, NewMux(svc), http.MethodPost, "/conversations/c1/messages", `{"text":"x"}`)
	// nothing is written once the server is going away
	if w.Body.Len() != 0 {
		t.Fatalf("unexpected body %q", w.Body.String())
	}
}
