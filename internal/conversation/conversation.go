package conversation

import (
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"llamachat/internal/chattemplate"
	"llamachat/internal/generation"
)

// Defaults applied by NewWithConfig.
const (
	DefaultHistoryLimit     = 8
	DefaultSummaryInterval  = 4
	DefaultReplyMaxTokens   = 1024
	DefaultSummaryMaxTokens = 512

	DefaultSystemPrompt = "You are an extremely efficient and helpful assistant. Always respond with precision, directly, and straight to the point, avoiding any unnecessary fluff or filler text."

	// StoppedMarker is appended to a reply that did not end on its own.
	StoppedMarker = " [...] (Stopped)"

	summaryInstruction = "Summarize the essence of the above conversation in 4-6 concise bullet points. Your summary will be used as a memory for a large language model."
	summaryHeader      = "[PREVIOUS SUMMARY]\n"
	contextHeader      = "[CONTEXT SUMMARY]\n"
)

// ErrNotChatting is returned by Submit while a reply or summary is generated.
var ErrNotChatting = errors.New("conversation is busy generating")

// ErrEmptyInput is returned by Submit for blank input.
var ErrEmptyInput = errors.New("input is empty")

// State is the conversation's position in the reply/summarize cycle.
type State string

const (
	StateChatting        State = "chatting"
	StateGeneratingReply State = "generating_reply"
	StateSummarizing     State = "summarizing"
)

// Generating reports whether s has an active session.
func (s State) Generating() bool { return s == StateGeneratingReply || s == StateSummarizing }

// Message is one entry of the history.
type Message struct {
	Role    string `json:"role"`
	Text    string `json:"text"`
	Stopped bool   `json:"stopped,omitempty"`
}

// Generator is the session surface the conversation drives.
// *generation.Session implements it.
type Generator interface {
	Start(prompt string, maxTokens int) error
	Stop()
	IsRunning() bool
	Poll() string
	Result() (generation.Result, bool)
}

// Recorder persists finished turns and summaries.
type Recorder interface {
	RecordMessage(role, text string, stopped bool) error
	RecordSummary(text string) error
}

// Config tunes a Conversation.
type Config struct {
	HistoryLimit     int
	SummaryInterval  int
	SystemPrompt     string
	ReplyMaxTokens   int
	SummaryMaxTokens int
	// Formatter serializes prompts; chattemplate.Default when nil.
	Formatter chattemplate.Formatter
	// StopWords are trimmed from finished replies; the formatter's when nil.
	StopWords []string
	Recorder  Recorder
	Logger    *zerolog.Logger
}

// Conversation tracks history and summary above a Generator. It is not safe
// for concurrent use; drive it from one goroutine (the frame loop).
type Conversation struct {
	gen Generator
	log zerolog.Logger
	rec Recorder

	historyLimit     int
	summaryInterval  int
	systemPrompt     string
	replyMaxTokens   int
	summaryMaxTokens int
	formatter        chattemplate.Formatter
	stopWords        []string

	state   State
	history []Message
	summary string
	partial strings.Builder
	lastErr error
}

// New returns a conversation with default settings.
func New(gen Generator) *Conversation { return NewWithConfig(gen, Config{}) }

// NewWithConfig returns a conversation using cfg, applying defaults.
func NewWithConfig(gen Generator, cfg Config) *Conversation {
	c := &Conversation{
		gen:              gen,
		log:              zerolog.Nop(),
		rec:              cfg.Recorder,
		historyLimit:     cfg.HistoryLimit,
		summaryInterval:  cfg.SummaryInterval,
		systemPrompt:     cfg.SystemPrompt,
		replyMaxTokens:   cfg.ReplyMaxTokens,
		summaryMaxTokens: cfg.SummaryMaxTokens,
		formatter:        cfg.Formatter,
		state:            StateChatting,
	}
	if cfg.Logger != nil {
		c.log = cfg.Logger.With().Str("component", "conversation").Logger()
	}
	if c.historyLimit <= 0 {
		c.historyLimit = DefaultHistoryLimit
	}
	if c.summaryInterval <= 0 {
		c.summaryInterval = DefaultSummaryInterval
	}
	if c.systemPrompt == "" {
		c.systemPrompt = DefaultSystemPrompt
	}
	if c.replyMaxTokens <= 0 {
		c.replyMaxTokens = DefaultReplyMaxTokens
	}
	if c.summaryMaxTokens <= 0 {
		c.summaryMaxTokens = DefaultSummaryMaxTokens
	}
	if c.formatter == nil {
		c.formatter, _ = chattemplate.Lookup(chattemplate.Default)
	}
	c.stopWords = append([]string(nil), cfg.StopWords...)
	if cfg.StopWords == nil {
		c.stopWords = c.formatter.StopWords()
	}
	return c
}

// SetFormatter switches the prompt layout and, when stopWords is nil, the
// trimmed stop words to the formatter's own.
func (c *Conversation) SetFormatter(f chattemplate.Formatter, stopWords []string) {
	c.formatter = f
	if stopWords == nil {
		stopWords = f.StopWords()
	}
	c.stopWords = append([]string(nil), stopWords...)
}

// State returns the current state.
func (c *Conversation) State() State { return c.state }

// IsGenerating reports whether a reply or summary session is active.
func (c *Conversation) IsGenerating() bool { return c.state.Generating() }

// History returns a copy of the history.
func (c *Conversation) History() []Message { return append([]Message(nil), c.history...) }

// Summary returns the running summary, or "".
func (c *Conversation) Summary() string { return c.summary }

// LastError returns the error of the most recent failed session start or
// abnormal session end, cleared by the next successful Submit.
func (c *Conversation) LastError() error { return c.lastErr }

// Submit appends a user message and starts a reply, or a summary first when
// the history is full.
func (c *Conversation) Submit(text string) error {
	if c.state != StateChatting {
		return ErrNotChatting
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}
	return c.transition(event{kind: eventUserInput, text: text})
}

// Update runs one frame: it moves new session output into the history or the
// pending summary and handles session completion. It returns the reply text
// appended during this frame.
func (c *Conversation) Update() string {
	if !c.state.Generating() {
		return ""
	}
	running := c.gen.IsRunning()
	chunk := c.gen.Poll()
	var appended string
	if chunk != "" {
		switch c.state {
		case StateSummarizing:
			c.partial.WriteString(chunk)
		case StateGeneratingReply:
			c.appendReply(chunk)
			appended = chunk
		}
	}
	if !running {
		res, _ := c.gen.Result()
		if err := c.transition(event{kind: eventSessionFinished, result: res}); err != nil {
			c.log.Warn().Err(err).Msg("next_session_failed")
		}
	}
	return appended
}

// Stop cancels the active session and returns to chatting. An in-progress
// reply keeps its partial text and gets the stopped marker.
func (c *Conversation) Stop() {
	if err := c.transition(event{kind: eventStopRequested}); err != nil {
		c.log.Warn().Err(err).Msg("stop_failed")
	}
}

// Reset stops any session and clears history and summary.
func (c *Conversation) Reset() {
	if c.state.Generating() {
		c.gen.Stop()
	}
	c.history = nil
	c.summary = ""
	c.partial.Reset()
	c.lastErr = nil
	c.state = StateChatting
}

func (c *Conversation) appendReply(chunk string) {
	if n := len(c.history); n == 0 || c.history[n-1].Role != chattemplate.RoleAssistant {
		c.history = append(c.history, Message{Role: chattemplate.RoleAssistant})
	}
	c.history[len(c.history)-1].Text += chunk
}

func (c *Conversation) lastReply() *Message {
	if n := len(c.history); n > 0 && c.history[n-1].Role == chattemplate.RoleAssistant {
		return &c.history[n-1]
	}
	return nil
}

func (c *Conversation) record(m Message) {
	if c.rec == nil {
		return
	}
	if err := c.rec.RecordMessage(m.Role, m.Text, m.Stopped); err != nil {
		c.log.Warn().Err(err).Msg("record_message_failed")
	}
}

func (c *Conversation) recordSummary(s string) {
	if c.rec == nil {
		return
	}
	if err := c.rec.RecordSummary(s); err != nil {
		c.log.Warn().Err(err).Msg("record_summary_failed")
	}
}

// TrimAtStopWord cuts text at the rightmost occurrence of any of words.
func TrimAtStopWord(text string, words []string) string {
	cut := -1
	for _, w := range words {
		if w == "" {
			continue
		}
		if i := strings.LastIndex(text, w); i > cut {
			cut = i
		}
	}
	if cut < 0 {
		return text
	}
	return text[:cut]
}

// StripRolePrefix removes the first of prefixes that text starts with,
// exactly as long as the matched prefix.
func StripRolePrefix(text string, prefixes ...string) string {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(text, p) {
			return text[len(p):]
		}
	}
	return text
}
