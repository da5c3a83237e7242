package conversation

import (
	"llamachat/internal/generation"
)

// fakeGen is a Generator driven by the test: emit publishes text, finish ends
// the session with a result.
type fakeGen struct {
	prompts   []string
	maxTokens []int
	startErr  error
	stops     int

	running bool
	pending string
	full    string
	result  generation.Result
}

func (g *fakeGen) Start(prompt string, maxTokens int) error {
	if g.running {
		g.Stop()
	}
	if g.startErr != nil {
		return g.startErr
	}
	g.prompts = append(g.prompts, prompt)
	g.maxTokens = append(g.maxTokens, maxTokens)
	g.running = true
	g.pending, g.full = "", ""
	g.result = generation.Result{}
	return nil
}

func (g *fakeGen) Stop() {
	g.stops++
	if g.running {
		g.running = false
		g.result = generation.Result{Text: g.full, FinishReason: generation.FinishStopped}
	}
}

func (g *fakeGen) IsRunning() bool { return g.running }

func (g *fakeGen) Poll() string {
	s := g.pending
	g.pending = ""
	return s
}

func (g *fakeGen) Result() (generation.Result, bool) {
	if g.running {
		return generation.Result{}, false
	}
	return g.result, true
}

func (g *fakeGen) emit(s string) {
	g.pending += s
	g.full += s
}

func (g *fakeGen) finish(reason generation.FinishReason, stopWord string, err error) {
	g.running = false
	g.result = generation.Result{Text: g.full, FinishReason: reason, StopWord: stopWord, Err: err}
}

func (g *fakeGen) lastPrompt() string {
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

type recorded struct {
	role    string
	text    string
	stopped bool
}

type memRecorder struct {
	messages  []recorded
	summaries []string
}

func (r *memRecorder) RecordMessage(role, text string, stopped bool) error {
	r.messages = append(r.messages, recorded{role: role, text: text, stopped: stopped})
	return nil
}

func (r *memRecorder) RecordSummary(text string) error {
	r.summaries = append(r.summaries, text)
	return nil
}
