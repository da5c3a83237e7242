package engine

import (
	"errors"
	"strings"
)

// Defaults applied by DefaultSampling.
const (
	defaultTemperature   = 0.8
	defaultTopP          = 0.9
	defaultTopK          = 40
	defaultRepeatPenalty = 1.1
	defaultMaxTokens     = 200
)

// SamplingConfig drives the sampler chain and the stop conditions of a session.
// The chain is rebuilt from this struct alone, in the order
// top-k, top-p, temperature, penalties, greedy.
type SamplingConfig struct {
	Temperature      float32  `json:"temperature" yaml:"temperature" toml:"temperature"`
	TopP             float32  `json:"top_p" yaml:"top_p" toml:"top_p"`
	TopK             int      `json:"top_k" yaml:"top_k" toml:"top_k"`
	RepeatPenalty    float32  `json:"repeat_penalty" yaml:"repeat_penalty" toml:"repeat_penalty"`
	PresencePenalty  float32  `json:"presence_penalty" yaml:"presence_penalty" toml:"presence_penalty"`
	FrequencyPenalty float32  `json:"frequency_penalty" yaml:"frequency_penalty" toml:"frequency_penalty"`
	MinTokens        int      `json:"min_tokens" yaml:"min_tokens" toml:"min_tokens"`
	MaxTokens        int      `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	StopWords        []string `json:"stop_words,omitempty" yaml:"stop_words,omitempty" toml:"stop_words,omitempty"`
}

// DefaultSampling returns the sampling defaults.
func DefaultSampling() SamplingConfig {
	return SamplingConfig{
		Temperature:   defaultTemperature,
		TopP:          defaultTopP,
		TopK:          defaultTopK,
		RepeatPenalty: defaultRepeatPenalty,
		MaxTokens:     defaultMaxTokens,
	}
}

// Clone returns a copy that shares no memory with c.
func (c SamplingConfig) Clone() SamplingConfig {
	out := c
	out.StopWords = append([]string(nil), c.StopWords...)
	return out
}

// Validate rejects values the sampler chain cannot be built from.
func (c SamplingConfig) Validate() error {
	switch {
	case c.Temperature < 0:
		return errors.New("temperature must be >= 0")
	case c.TopP < 0 || c.TopP > 1:
		return errors.New("top_p must be within [0,1]")
	case c.TopK < 0:
		return errors.New("top_k must be >= 0")
	case c.RepeatPenalty < 0:
		return errors.New("repeat_penalty must be >= 0")
	case c.MinTokens < 0 || c.MaxTokens < 0:
		return errors.New("token limits must be >= 0")
	case c.MaxTokens > 0 && c.MinTokens > c.MaxTokens:
		return errors.New("min_tokens exceeds max_tokens")
	}
	return nil
}

// EndsWithStopWord reports the first configured stop word that text ends with.
// Empty stop words never match.
func (c SamplingConfig) EndsWithStopWord(text string) (string, bool) {
	for _, w := range c.StopWords {
		if w != "" && strings.HasSuffix(text, w) {
			return w, true
		}
	}
	return "", false
}
