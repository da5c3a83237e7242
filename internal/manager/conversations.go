package manager

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"llamachat/internal/chattemplate"
	"llamachat/internal/conversation"
	"llamachat/pkg/types"
)

// convEntry is a cached conversation. mu guards conv; stop asks the frame
// loop driving it to cancel the active session.
type convEntry struct {
	mu   sync.Mutex
	id   string
	conv *conversation.Conversation
	stop atomic.Bool
}

// conversationStopWords returns the words trimmed from replies: the
// configured ones, or nil to follow the template. The handle is not consulted
// since a running request may hold per-request overrides there.
func (m *Manager) conversationStopWords() []string {
	if m.customStops {
		return append([]string(nil), m.stopWords...)
	}
	return nil
}

func (m *Manager) conversationConfig(id string) conversation.Config {
	m.mu.RLock()
	f := m.formatter
	m.mu.RUnlock()
	cfg := conversation.Config{
		HistoryLimit:     m.chat.HistoryLimit,
		SummaryInterval:  m.chat.SummaryInterval,
		SystemPrompt:     m.chat.SystemPrompt,
		ReplyMaxTokens:   m.chat.ReplyMaxTokens,
		SummaryMaxTokens: m.chat.SummaryMaxTokens,
		Formatter:        f,
		StopWords:        m.conversationStopWords(),
	}
	if m.history != nil {
		cfg.Recorder = m.history.Recorder(id)
	}
	l := m.log.With().Str("conversation", id).Logger()
	cfg.Logger = &l
	return cfg
}

// CreateConversation starts an empty conversation and returns its view.
func (m *Manager) CreateConversation() types.ConversationResponse {
	id := uuid.NewString()
	e := &convEntry{id: id, conv: conversation.NewWithConfig(m.session, m.conversationConfig(id))}
	m.convs.Set(id, e, ttlcache.DefaultTTL)
	conversationsGauge.Inc()
	m.publish("conversation_created", "", map[string]any{"conversation": id})
	return e.view()
}

// LocalConversation returns a conversation owned by an in-process front-end.
// It is not cached and is not reset by Switch. The caller drives it from one
// goroutine and holds the generation slot (Acquire) while it does.
func (m *Manager) LocalConversation() (string, *conversation.Conversation) {
	id := uuid.NewString()
	m.publish("conversation_created", "", map[string]any{"conversation": id, "local": true})
	return id, conversation.NewWithConfig(m.session, m.conversationConfig(id))
}

func (m *Manager) entry(id string) (*convEntry, error) {
	item := m.convs.Get(id)
	if item == nil {
		return nil, ErrConversationNotFound(id)
	}
	return item.Value(), nil
}

// Conversation returns the current view of conversation id.
func (m *Manager) Conversation(id string) (types.ConversationResponse, error) {
	e, err := m.entry(id)
	if err != nil {
		return types.ConversationResponse{}, err
	}
	return e.view(), nil
}

// DeleteConversation stops and forgets conversation id.
func (m *Manager) DeleteConversation(id string) error {
	e, err := m.entry(id)
	if err != nil {
		return err
	}
	e.stop.Store(true)
	m.convs.Delete(id)
	return nil
}

// StopConversation asks the frame loop of conversation id to stop its
// session. It returns immediately; the streaming request ends with the
// stopped reply.
func (m *Manager) StopConversation(id string) error {
	e, err := m.entry(id)
	if err != nil {
		return err
	}
	e.stop.Store(true)
	return nil
}

// ConversationCount returns the number of live conversations.
func (m *Manager) ConversationCount() int { return m.convs.Len() }

func (m *Manager) onConversationEvicted(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *convEntry]) {
	item.Value().stop.Store(true)
	conversationsGauge.Dec()
	m.log.Debug().Str("conversation", item.Key()).Int("reason", int(reason)).Msg("conversation evicted")
}

// resetConversations clears every conversation. Callers hold the generation slot.
func (m *Manager) resetConversations() int {
	items := m.convs.Items()
	for _, item := range items {
		e := item.Value()
		e.mu.Lock()
		e.conv.Reset()
		e.mu.Unlock()
	}
	return len(items)
}

// Converse submits text to conversation id and streams NDJSON events to w
// until the reply is complete: a state line whenever the conversation starts
// summarizing or replying, a token line per reply fragment and a final done
// line carrying the assistant message.
func (m *Manager) Converse(ctx context.Context, id, text string, w io.Writer, flush func()) error {
	e, err := m.entry(id)
	if err != nil {
		return err
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

	// The entry lock is held per frame only, so views stay readable while
	// the reply streams.
	e.mu.Lock()
	e.stop.Store(false)
	err = e.conv.Submit(text)
	state := e.conv.State()
	e.mu.Unlock()
	if err != nil {
		if errors.Is(err, conversation.ErrEmptyInput) {
			return ErrInvalidRequest(err.Error())
		}
		return err
	}

	enc := json.NewEncoder(w)
	emit := func(ev types.ConversationEvent) error {
		if err := enc.Encode(ev); err != nil {
			return err
		}
		if flush != nil {
			flush()
		}
		return nil
	}
	stop := func() {
		e.mu.Lock()
		e.conv.Stop()
		e.mu.Unlock()
	}
	if err := emit(types.ConversationEvent{State: string(state)}); err != nil {
		stop()
		return err
	}

	ticker := time.NewTicker(m.streamInterval)
	defer ticker.Stop()
	for state.Generating() {
		select {
		case <-ctx.Done():
			stop()
			return ctx.Err()
		case <-ticker.C:
		}
		// keep the entry alive while it streams
		m.convs.Get(id)

		e.mu.Lock()
		if e.stop.Load() {
			e.conv.Stop()
		}
		chunk := e.conv.Update()
		st := e.conv.State()
		e.mu.Unlock()

		if st != state && st.Generating() {
			if err := emit(types.ConversationEvent{State: string(st)}); err != nil {
				stop()
				return err
			}
		}
		state = st
		if chunk != "" {
			if err := emit(types.ConversationEvent{Token: chunk}); err != nil {
				stop()
				return err
			}
		}
	}

	final := types.ConversationEvent{Done: true}
	e.mu.Lock()
	hist := e.conv.History()
	lastErr := e.conv.LastError()
	e.mu.Unlock()
	if n := len(hist); n > 0 && hist[n-1].Role == chattemplate.RoleAssistant {
		final.Message = &types.Message{Role: hist[n-1].Role, Text: hist[n-1].Text, Stopped: hist[n-1].Stopped}
	}
	if lastErr != nil {
		final.Error = lastErr.Error()
	}
	return emit(final)
}

func (e *convEntry) view() types.ConversationResponse {
	e.mu.Lock()
	defer e.mu.Unlock()
	resp := types.ConversationResponse{
		ID:       e.id,
		State:    string(e.conv.State()),
		Summary:  e.conv.Summary(),
		Messages: []types.Message{},
	}
	for _, msg := range e.conv.History() {
		resp.Messages = append(resp.Messages, types.Message{Role: msg.Role, Text: msg.Text, Stopped: msg.Stopped})
	}
	if err := e.conv.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	return resp
}
