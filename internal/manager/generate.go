package manager

import (
	"context"
	"errors"
	"io"
	"strings"

	json "github.com/goccy/go-json"

	"llamachat/internal/engine"
	"llamachat/internal/generation"
	"llamachat/pkg/types"
)

// tokenLine is one streamed NDJSON fragment.
type tokenLine struct {
	Token string `json:"token"`
}

// Generate runs a raw prompt on the shared session. When streaming (the
// default) every polled fragment becomes a {"token":...} line and a final
// GenerateResponse line follows; otherwise only the GenerateResponse is
// written. Per-request sampling overrides apply to this request only.
func (m *Manager) Generate(ctx context.Context, req types.GenerateRequest, w io.Writer, flush func()) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return ErrInvalidRequest("prompt is required")
	}
	if req.MaxTokens < 0 {
		return ErrInvalidRequest("max_tokens must be >= 0")
	}
	release, err := m.beginGeneration(ctx)
	if err != nil {
		return err
	}
	defer release()
	if !m.Ready() {
		return ErrDependencyUnavailable("no model loaded")
	}
	// the client may have left while queued
	if err := ctx.Err(); err != nil {
		return err
	}

	restore, err := m.applyOverrides(req)
	if err != nil {
		return err
	}
	defer restore()

	enc := json.NewEncoder(w)
	stream := req.Stream == nil || *req.Stream
	var onChunk func(string) error
	if stream {
		onChunk = func(s string) error {
			if err := enc.Encode(tokenLine{Token: s}); err != nil {
				return err
			}
			if flush != nil {
				flush()
			}
			return nil
		}
	}

	res, err := generation.Stream(ctx, m.session, req.Prompt, req.MaxTokens, m.streamInterval, onChunk)
	if err != nil && res.FinishReason == "" {
		// never started
		if errors.Is(err, generation.ErrEmptyPrompt) {
			return ErrInvalidRequest(err.Error())
		}
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	if err != nil && !res.Abnormal() {
		// the writer failed; nothing more can be delivered
		return err
	}

	final := types.GenerateResponse{
		Done:         true,
		Content:      res.Content(),
		FinishReason: string(res.FinishReason),
		Usage:        types.Usage{PromptTokens: res.PromptTokens, CompletionTokens: res.CompletionTokens},
	}
	if res.Err != nil {
		final.Error = res.Err.Error()
	}
	if err := enc.Encode(final); err != nil {
		return err
	}
	if flush != nil {
		flush()
	}
	return nil
}

// applyOverrides reconfigures the sampler for one request and returns the
// func restoring the previous configuration. Callers hold the generation slot.
func (m *Manager) applyOverrides(req types.GenerateRequest) (func(), error) {
	if req.Temperature == nil && req.TopP == nil && req.TopK == nil && req.RepeatPenalty == nil && req.Stop == nil {
		return func() {}, nil
	}
	base := m.handle.Sampling()
	cfg := base.Clone()
	if req.Temperature != nil {
		cfg.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		cfg.TopP = *req.TopP
	}
	if req.TopK != nil {
		cfg.TopK = *req.TopK
	}
	if req.RepeatPenalty != nil {
		cfg.RepeatPenalty = *req.RepeatPenalty
	}
	if req.Stop != nil {
		cfg.StopWords = append([]string(nil), req.Stop...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, ErrInvalidRequest(err.Error())
	}
	if err := m.handle.ConfigureSampling(cfg); err != nil {
		if engine.IsNoModelLoaded(err) {
			return nil, ErrDependencyUnavailable(err.Error())
		}
		return nil, err
	}
	return func() {
		if err := m.handle.ConfigureSampling(base); err != nil {
			m.log.Warn().Err(err).Msg("restore sampling failed")
		}
	}, nil
}
