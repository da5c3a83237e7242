package conversation

import (
	"fmt"
	"strings"

	"llamachat/internal/chattemplate"
	"llamachat/internal/generation"
)

type eventKind int

const (
	eventUserInput eventKind = iota
	eventSessionFinished
	eventStopRequested
)

func (k eventKind) String() string {
	switch k {
	case eventUserInput:
		return "user_input"
	case eventSessionFinished:
		return "session_finished"
	case eventStopRequested:
		return "stop_requested"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// event is the tagged input of transition. text is set for user input,
// result for a finished session.
type event struct {
	kind   eventKind
	text   string
	result generation.Result
}

// transition is the only place that changes c.state.
func (c *Conversation) transition(ev event) error {
	from := c.state
	var err error
	switch {
	case from == StateChatting && ev.kind == eventUserInput:
		err = c.onUserInput(ev.text)
	case from == StateSummarizing && ev.kind == eventSessionFinished:
		err = c.onSummaryFinished(ev.result)
	case from == StateGeneratingReply && ev.kind == eventSessionFinished:
		c.onReplyFinished(ev.result)
	case from.Generating() && ev.kind == eventStopRequested:
		c.onStop()
	default:
		// stop while chatting, or a stale completion: nothing to do
		return nil
	}
	c.log.Debug().Str("event", ev.kind.String()).Str("from", string(from)).Str("to", string(c.state)).Msg("transition")
	return err
}

func (c *Conversation) onUserInput(text string) error {
	msg := Message{Role: chattemplate.RoleUser, Text: text}
	c.history = append(c.history, msg)
	c.record(msg)
	c.lastErr = nil
	if len(c.history) >= c.historyLimit+c.summaryInterval {
		return c.startSummary()
	}
	return c.startReply()
}

func (c *Conversation) onSummaryFinished(res generation.Result) error {
	text := strings.TrimSpace(c.partial.String())
	c.partial.Reset()
	if res.Abnormal() {
		// keep the previous summary and the full history, still answer
		c.lastErr = res.Err
		c.log.Warn().Err(res.Err).Str("finish_reason", string(res.FinishReason)).Msg("summary_failed")
	} else {
		if res.FinishReason == generation.FinishStopWord {
			text = strings.TrimSpace(strings.TrimSuffix(text, res.StopWord))
		}
		c.summary = text
		c.recordSummary(text)
		if n := len(c.history) - c.historyLimit; n > 0 {
			c.history = append([]Message(nil), c.history[n:]...)
		}
		c.log.Info().Int("history", len(c.history)).Int("summary_len", len(text)).Msg("summary_done")
	}
	return c.startReply()
}

func (c *Conversation) onReplyFinished(res generation.Result) {
	c.state = StateChatting
	m := c.lastReply()
	if res.Abnormal() {
		c.lastErr = res.Err
		if m != nil {
			m.Text += StoppedMarker
			m.Stopped = true
		}
	} else if m != nil {
		m.Text = TrimAtStopWord(m.Text, c.stopWords)
	}
	if m != nil {
		c.record(*m)
	}
}

func (c *Conversation) onStop() {
	replying := c.state == StateGeneratingReply
	c.gen.Stop()
	c.state = StateChatting
	if !replying {
		c.partial.Reset()
		return
	}
	if chunk := c.gen.Poll(); chunk != "" {
		c.appendReply(chunk)
	}
	if m := c.lastReply(); m != nil {
		m.Text += StoppedMarker
		m.Stopped = true
		c.record(*m)
	}
}

func (c *Conversation) startReply() error {
	c.state = StateGeneratingReply
	if err := c.gen.Start(c.ReplyPrompt(), c.replyMaxTokens); err != nil {
		c.state = StateChatting
		c.lastErr = err
		return err
	}
	return nil
}

func (c *Conversation) startSummary() error {
	c.state = StateSummarizing
	c.partial.Reset()
	if err := c.gen.Start(c.SummaryPrompt(), c.summaryMaxTokens); err != nil {
		c.state = StateChatting
		c.lastErr = err
		return err
	}
	return nil
}

// ReplyPrompt builds the reply prompt: persona, running summary, then the
// latest history window.
func (c *Conversation) ReplyPrompt() string {
	role := c.formatter.SystemRole()
	msgs := []chattemplate.Message{{Role: role, Content: c.systemPrompt}}
	if c.summary != "" {
		msgs = append(msgs, chattemplate.Message{Role: role, Content: contextHeader + c.summary})
	}
	start := len(c.history) - c.historyLimit
	if start < 0 {
		start = 0
	}
	msgs = appendNonEmpty(msgs, c.history[start:])
	return c.formatter.Format(msgs, true)
}

// SummaryPrompt builds the summarization prompt over the messages that will
// be pruned once it completes.
func (c *Conversation) SummaryPrompt() string {
	role := c.formatter.SystemRole()
	var msgs []chattemplate.Message
	if c.summary != "" {
		msgs = append(msgs, chattemplate.Message{Role: role, Content: summaryHeader + c.summary})
	}
	if n := len(c.history) - c.historyLimit; n > 0 {
		msgs = appendNonEmpty(msgs, c.history[:n])
	}
	msgs = append(msgs, chattemplate.Message{Role: role, Content: summaryInstruction})
	return c.formatter.Format(msgs, true)
}

func appendNonEmpty(dst []chattemplate.Message, src []Message) []chattemplate.Message {
	for _, m := range src {
		if m.Text != "" {
			dst = append(dst, chattemplate.Message{Role: m.Role, Content: m.Text})
		}
	}
	return dst
}
