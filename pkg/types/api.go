package types

// GenerateRequest is the payload of POST /generate.
type GenerateRequest struct {
	// Required prompt text, passed to the model verbatim.
	// example: What is openFrameworks?\n\nAssistant:
	Prompt string `json:"prompt" example:"What is openFrameworks?\n\nAssistant:"`
	// If false the server answers with one JSON object instead of NDJSON lines.
	// example: true
	Stream *bool `json:"stream,omitempty" example:"true"`
	// Maximum number of new tokens to generate; the sampling default when 0.
	// example: 128
	MaxTokens int `json:"max_tokens,omitempty" example:"128"`
	// Sampling temperature (higher = more random).
	// example: 0.7
	Temperature *float32 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP *float32 `json:"top_p,omitempty" example:"0.9"`
	// Top-K sampling: limit candidates to top K tokens.
	// example: 40
	TopK *int `json:"top_k,omitempty" example:"40"`
	// Repeat penalty.
	// example: 1.1
	RepeatPenalty *float32 `json:"repeat_penalty,omitempty" example:"1.1"`
	// Optional stop words, replacing the configured ones for this request.
	// example: ["Assistant:","User:"]
	Stop []string `json:"stop,omitempty"`
}

// GenerateResponse is the final NDJSON line (or the whole body when not streaming).
type GenerateResponse struct {
	// Always true on the final line.
	Done bool `json:"done" example:"true"`
	// Generated text without the matched stop word.
	// example: openFrameworks is a C++ toolkit for creative coding.
	Content string `json:"content" example:"openFrameworks is a C++ toolkit for creative coding."`
	// Why generation ended: eos, stop_word, max_tokens, stopped, decode_failed.
	// example: stop_word
	FinishReason string `json:"finish_reason" example:"stop_word"`
	// Token accounting for the request.
	Usage Usage `json:"usage"`
	// Error text for abnormal ends.
	Error string `json:"error,omitempty"`
}

// Usage reports token counts.
type Usage struct {
	// example: 12
	PromptTokens int `json:"prompt_tokens" example:"12"`
	// example: 48
	CompletionTokens int `json:"completion_tokens" example:"48"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// List of available models.
	Models []Model `json:"models"`
}

// SwitchRequest is the payload of POST /switch.
type SwitchRequest struct {
	// Model id from GET /models.
	// example: tinyllama-1.1b-chat.Q4_K_M.gguf
	Model string `json:"model" example:"tinyllama-1.1b-chat.Q4_K_M.gguf"`
}

// SwitchResponse acknowledges a model switch.
type SwitchResponse struct {
	// Operation id for log correlation.
	// example: 3f2b8c1e-7d0a-4c55-9a55-0f1b2c3d4e5f
	OpID string `json:"op_id" example:"3f2b8c1e-7d0a-4c55-9a55-0f1b2c3d4e5f"`
	// Status of the operation.
	// example: loaded
	Status string `json:"status" example:"loaded"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Manager state: empty, loading, ready or error.
	// example: ready
	State string `json:"state" example:"ready"`
	// Id of the loaded model, if any.
	// example: tinyllama-1.1b-chat.Q4_K_M.gguf
	Model string `json:"model,omitempty" example:"tinyllama-1.1b-chat.Q4_K_M.gguf"`
	// Active chat template.
	// example: chatml
	Template string `json:"template" example:"chatml"`
	// True when the binary links the llama.cpp backend.
	// example: true
	LlamaBuilt bool `json:"llama_built" example:"true"`
	// Context size in tokens.
	// example: 2048
	ContextSize int `json:"context_size" example:"2048"`
	// Share of the context in use, in [0,1].
	// example: 0.25
	ContextFillRatio float64 `json:"context_fill_ratio" example:"0.25"`
	// Layers of the loaded model.
	// example: 22
	Layers int `json:"layers" example:"22"`
	// Layers offloaded to the GPU.
	// example: 22
	GPULayers int `json:"gpu_layers" example:"22"`
	// True while a generation worker runs.
	// example: false
	Generating bool `json:"generating" example:"false"`
	// Requests waiting for the generation slot.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// Maximum queued requests before backpressure triggers.
	// example: 8
	MaxQueueDepth int `json:"max_queue_depth" example:"8"`
	// Live conversations.
	// example: 2
	Conversations int `json:"conversations" example:"2"`
	// Last error observed by the manager (if any).
	LastError string `json:"last_error,omitempty"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// Total number of model loads.
	// example: 3
	LoadsTotal uint64 `json:"loads_total" example:"3"`
}

// ConversationResponse describes a conversation.
type ConversationResponse struct {
	// example: 0b6c8e52-3a55-4d0c-8d0e-6c3f3a1c2b11
	ID string `json:"id" example:"0b6c8e52-3a55-4d0c-8d0e-6c3f3a1c2b11"`
	// chatting, generating_reply or summarizing.
	// example: chatting
	State string `json:"state" example:"chatting"`
	// Running summary of pruned turns.
	Summary string `json:"summary,omitempty"`
	// Current history, oldest first.
	Messages []Message `json:"messages"`
	// Last session error, if any.
	LastError string `json:"last_error,omitempty"`
}

// MessageRequest is the payload of POST /conversations/{id}/messages.
type MessageRequest struct {
	// User input.
	// example: Tell me a joke.
	Text string `json:"text" example:"Tell me a joke."`
}

// ConversationEvent is one NDJSON line of a message stream. Exactly one of
// State, Token or Done is set.
type ConversationEvent struct {
	// State change: summarizing or generating_reply.
	State string `json:"state,omitempty"`
	// Reply text fragment.
	Token string `json:"token,omitempty"`
	// Set on the last line.
	Done bool `json:"done,omitempty"`
	// Final assistant message, on the last line.
	Message *Message `json:"message,omitempty"`
	// Error text when the turn ended abnormally.
	Error string `json:"error,omitempty"`
}
