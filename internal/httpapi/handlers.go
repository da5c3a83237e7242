package httpapi

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"llamachat/pkg/types"
)

// decodeJSON checks the content type, limits the body and decodes it into
// dst. It writes the error response and returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		// size overruns also land here; report them as a bad body
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// handleModels lists the registered models.
//
// @Summary      List models
// @Description  Returns the GGUF models found in the models directory.
// @Tags         models
// @Produce      json
// @Success      200  {object}  types.ModelsResponse
// @Router       /models [get]
func handleModels(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.ModelsResponse{Models: svc.ListModels()})
	}
}

// handleStatus reports engine and queue state.
//
// @Summary      Server status
// @Tags         status
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Router       /status [get]
func handleStatus(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	}
}

// handleSwitch loads another model.
//
// @Summary      Switch model
// @Description  Loads the given model in place of the current one. Running work finishes first; every conversation is reset.
// @Tags         models
// @Accept       json
// @Produce      json
// @Param        body  body      types.SwitchRequest  true  "Model to load"
// @Success      200   {object}  types.SwitchResponse
// @Failure      400   {object}  types.ErrorResponse
// @Failure      404   {object}  types.ErrorResponse
// @Failure      429   {object}  types.ErrorResponse
// @Failure      500   {object}  types.ErrorResponse
// @Router       /switch [post]
func handleSwitch(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.SwitchRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Model) == "" {
			writeJSONError(w, http.StatusBadRequest, "model is required")
			return
		}
		start := time.Now()
		logRequestStart(r, "switch", map[string]any{"model": req.Model})
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		op, err := svc.Switch(ctx, req.Model)
		if err != nil {
			logRequestEnd(r, "switch", writeServiceError(w, err), start, err)
			return
		}
		writeJSON(w, http.StatusOK, types.SwitchResponse{OpID: op, Status: "loaded"})
		logRequestEnd(r, "switch", http.StatusOK, start, nil)
	}
}

// handleGenerate runs a raw prompt.
//
// @Summary      Generate text
// @Description  Streams NDJSON lines {"token":"..."} followed by a final GenerateResponse. With "stream": false only the GenerateResponse is returned.
// @Tags         generate
// @Accept       json
// @Produce      application/x-ndjson
// @Param        body  body      types.GenerateRequest  true  "Prompt and sampling overrides"
// @Success      200   {object}  types.GenerateResponse
// @Failure      400   {object}  types.ErrorResponse
// @Failure      415   {object}  types.ErrorResponse
// @Failure      429   {object}  types.ErrorResponse
// @Failure      503   {object}  types.ErrorResponse
// @Router       /generate [post]
func handleGenerate(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.GenerateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		// Basic validation
		if strings.TrimSpace(req.Prompt) == "" {
			writeJSONError(w, http.StatusBadRequest, "prompt is required")
			return
		}
		fields := map[string]any{"prompt_len": len(req.Prompt), "max_tokens": req.MaxTokens}
		contentType := "application/x-ndjson"
		if req.Stream != nil && !*req.Stream {
			contentType = "application/json"
		}
		serveStream(w, r, "generate", contentType, fields, func(ctx context.Context, out io.Writer, flush func()) error {
			return svc.Generate(ctx, req, out, flush)
		})
	}
}

// handleCreateConversation starts a conversation.
//
// @Summary      Create conversation
// @Tags         conversations
// @Produce      json
// @Success      201  {object}  types.ConversationResponse
// @Router       /conversations [post]
func handleCreateConversation(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, svc.CreateConversation())
	}
}

// handleGetConversation returns history, summary and state.
//
// @Summary      Get conversation
// @Tags         conversations
// @Produce      json
// @Param        id   path      string  true  "Conversation id"
// @Success      200  {object}  types.ConversationResponse
// @Failure      404  {object}  types.ErrorResponse
// @Router       /conversations/{id} [get]
func handleGetConversation(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, err := svc.Conversation(chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

// handleDeleteConversation forgets a conversation.
//
// @Summary      Delete conversation
// @Tags         conversations
// @Param        id   path  string  true  "Conversation id"
// @Success      204
// @Failure      404  {object}  types.ErrorResponse
// @Router       /conversations/{id} [delete]
func handleDeleteConversation(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteConversation(chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleStopConversation stops the active reply or summary.
//
// @Summary      Stop generation
// @Description  Asks the streaming message request of the conversation to stop. A partial reply is kept and marked as stopped.
// @Tags         conversations
// @Param        id   path  string  true  "Conversation id"
// @Success      202
// @Failure      404  {object}  types.ErrorResponse
// @Router       /conversations/{id}/stop [post]
func handleStopConversation(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.StopConversation(chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// handlePostMessage submits user input and streams the reply.
//
// @Summary      Send message
// @Description  Streams NDJSON ConversationEvent lines: state changes, reply tokens and a final done line with the assistant message.
// @Tags         conversations
// @Accept       json
// @Produce      application/x-ndjson
// @Param        id    path      string                true  "Conversation id"
// @Param        body  body      types.MessageRequest  true  "User input"
// @Success      200   {object}  types.ConversationEvent
// @Failure      400   {object}  types.ErrorResponse
// @Failure      404   {object}  types.ErrorResponse
// @Failure      409   {object}  types.ErrorResponse
// @Failure      429   {object}  types.ErrorResponse
// @Failure      503   {object}  types.ErrorResponse
// @Router       /conversations/{id}/messages [post]
func handlePostMessage(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req types.MessageRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			writeJSONError(w, http.StatusBadRequest, "text is required")
			return
		}
		fields := map[string]any{"conversation": id, "text_len": len(req.Text)}
		serveStream(w, r, "message", "application/x-ndjson", fields, func(ctx context.Context, out io.Writer, flush func()) error {
			return svc.Converse(ctx, id, req.Text, out, flush)
		})
	}
}
