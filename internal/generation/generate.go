package generation

import (
	"context"
	"time"
)

// DefaultPollInterval is the poll period used by Stream when none is given.
const DefaultPollInterval = 16 * time.Millisecond

// Generate runs prompt to completion and returns the result. Cancelling ctx
// stops the worker; the partial result is returned together with ctx.Err().
func Generate(ctx context.Context, s *Session, prompt string, maxTokens int) (Result, error) {
	return Stream(ctx, s, prompt, maxTokens, 0, nil)
}

// Stream starts prompt on s and polls it every interval, passing each
// non-empty chunk to onChunk until the worker exits. An onChunk error stops
// the worker and is returned. The final poll after exit is always delivered.
func Stream(ctx context.Context, s *Session, prompt string, maxTokens int, interval time.Duration, onChunk func(string) error) (Result, error) {
	if err := s.Start(prompt, maxTokens); err != nil {
		return Result{}, err
	}
	return Follow(ctx, s, interval, onChunk)
}

// Follow polls an already started session like Stream does.
func Follow(ctx context.Context, s *Session, interval time.Duration, onChunk func(string) error) (Result, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deliver := func() error {
		if onChunk == nil {
			return nil
		}
		if chunk := s.Poll(); chunk != "" {
			return onChunk(chunk)
		}
		return nil
	}

	done := s.Done()
	for {
		select {
		case <-done:
			err := deliver()
			res, _ := s.Result()
			if err != nil {
				return res, err
			}
			return res, res.Err
		case <-ctx.Done():
			s.Stop()
			_ = deliver()
			res, _ := s.Result()
			return res, ctx.Err()
		case <-ticker.C:
			if err := deliver(); err != nil {
				s.Stop()
				res, _ := s.Result()
				return res, err
			}
		}
	}
}
