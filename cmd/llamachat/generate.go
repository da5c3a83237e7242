package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"llamachat/internal/conversation"
	"llamachat/internal/generation"
)

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	var (
		maxTokens   int
		stripPrefix []string
		stdin       bool
	)
	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Run one raw prompt and stream the completion to stdout",
		Example: "  llamachat generate --model phi-4.gguf 'User: hi\\nAssistant:' --strip-prefix ' '\n" +
			"  echo 'Once upon a time' | llamachat generate --stdin",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readPrompt(args, stdin, cmd.InOrStdin())
			if err != nil {
				return err
			}
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			if err := a.mgr.EnsureModel(ctx, ""); err != nil {
				return err
			}
			release, err := a.mgr.Acquire(ctx)
			if err != nil {
				return err
			}
			defer release()

			session := a.mgr.Session()
			out := cmd.OutOrStdout()
			f := &stopFilter{out: out, words: session.Handle().StopWords(), prefixes: stripPrefix}
			res, err := generation.Stream(ctx, session, prompt, maxTokens, cfg.Server.StreamInterval(), f.push)
			if ferr := f.flush(); err == nil {
				err = ferr
			}
			fmt.Fprintln(out)
			a.log.Info().
				Str("finish_reason", string(res.FinishReason)).
				Int("prompt_tokens", res.PromptTokens).
				Int("completion_tokens", res.CompletionTokens).
				Dur("dur", res.Duration).
				Msg("generate done")
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				// interrupted; the partial output has been printed
				return nil
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&maxTokens, "max-tokens", "n", 0, "Maximum new tokens (0 = sampling default)")
	cmd.Flags().StringArrayVar(&stripPrefix, "strip-prefix", nil, "Role prefix removed from the start of the output when it matches exactly (repeatable)")
	cmd.Flags().BoolVar(&stdin, "stdin", false, "Read the prompt from stdin")
	return cmd
}

func readPrompt(args []string, fromStdin bool, in io.Reader) (string, error) {
	if fromStdin {
		if len(args) > 0 {
			return "", fmt.Errorf("give the prompt either as an argument or on stdin, not both")
		}
		b, err := io.ReadAll(in)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(b), "\n"), nil
	}
	if len(args) == 0 {
		return "", fmt.Errorf("prompt is required")
	}
	return args[0], nil
}

// stopFilter streams generated text to out. It removes a leading role prefix
// and holds back any tail that may still turn into a stop word, so the matched
// stop word is never printed.
type stopFilter struct {
	out      io.Writer
	words    []string
	prefixes []string

	held    string
	started bool
	done    bool
}

func (f *stopFilter) push(chunk string) error {
	if f.done {
		return nil
	}
	s := f.held + chunk
	f.held = ""
	if !f.started {
		if f.maybePrefix(s) {
			f.held = s
			return nil
		}
		s = conversation.StripRolePrefix(s, f.prefixes...)
		f.started = true
	}
	if cut := cutAtStopWord(s, f.words); cut >= 0 {
		f.done = true
		return f.write(s[:cut])
	}
	keep := partialStopSuffix(s, f.words)
	f.held = s[len(s)-keep:]
	return f.write(s[:len(s)-keep])
}

// flush writes whatever is still held back once generation ended.
func (f *stopFilter) flush() error {
	if f.done {
		return nil
	}
	s := f.held
	f.held = ""
	if !f.started {
		s = conversation.StripRolePrefix(s, f.prefixes...)
		f.started = true
	}
	return f.write(s)
}

func (f *stopFilter) write(s string) error {
	if s == "" {
		return nil
	}
	_, err := io.WriteString(f.out, s)
	return err
}

// maybePrefix reports whether s is a strict beginning of a role prefix, so
// more text is needed to decide.
func (f *stopFilter) maybePrefix(s string) bool {
	for _, p := range f.prefixes {
		if len(s) < len(p) && strings.HasPrefix(p, s) {
			return true
		}
	}
	return false
}

// cutAtStopWord returns the index of the earliest stop word in s, or -1.
func cutAtStopWord(s string, words []string) int {
	cut := -1
	for _, w := range words {
		if w == "" {
			continue
		}
		if i := strings.Index(s, w); i >= 0 && (cut < 0 || i < cut) {
			cut = i
		}
	}
	return cut
}

// partialStopSuffix returns the length of the longest suffix of s that is a
// strict prefix of a stop word.
func partialStopSuffix(s string, words []string) int {
	best := 0
	for _, w := range words {
		for n := min(len(w)-1, len(s)); n > best; n-- {
			if strings.HasSuffix(s, w[:n]) {
				best = n
				break
			}
		}
	}
	return best
}
