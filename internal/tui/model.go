// Package tui is the terminal chat client. A bubbletea tick drives the
// conversation frame loop; Enter submits, Esc stops, Ctrl+C quits.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"llamachat/internal/chattemplate"
	"llamachat/internal/conversation"
)

// DefaultFrameInterval is the period of the frame loop, roughly 60 fps.
const DefaultFrameInterval = 16 * time.Millisecond

// Chat is the conversation surface the UI drives. *conversation.Conversation
// implements it.
type Chat interface {
	Submit(text string) error
	Update() string
	Stop()
	State() conversation.State
	History() []conversation.Message
	Summary() string
	LastError() error
}

// Options configures the UI.
type Options struct {
	// Title names the loaded model in the header.
	Title string
	// FillRatio reports context usage in [0,1] for the fill bar.
	FillRatio func() float64
	// Markdown renders finished replies with glamour.
	Markdown      bool
	FrameInterval time.Duration
}

type frameMsg time.Time

// Model is the bubbletea model of the chat screen.
type Model struct {
	chat Chat
	opts Options

	viewport viewport.Model
	input    textarea.Model
	bar      progress.Model
	renderer *glamour.TermRenderer

	width    int
	state    conversation.State
	fill     float64
	err      error
	quitting bool
}

// New returns a chat screen over chat.
func New(chat Chat, opts Options) Model {
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultFrameInterval
	}
	ta := textarea.New()
	ta.Placeholder = "Say something..."
	ta.Prompt = "┃ "
	ta.CharLimit = 4000
	ta.ShowLineNumbers = false
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	// Enter submits
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.Focus()

	bar := progress.New(progress.WithSolidFill("#5FAFFF"), progress.WithoutPercentage())
	bar.Width = 20

	m := Model{
		chat:     chat,
		opts:     opts,
		viewport: viewport.New(80, 20),
		input:    ta,
		bar:      bar,
		width:    80,
		state:    chat.State(),
	}
	m.setRenderer()
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.opts.FrameInterval, func(t time.Time) tea.Msg { return frameMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.chat.State().Generating() {
				m.chat.Stop()
			}
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEsc:
			if m.chat.State().Generating() {
				m.chat.Stop()
				m.state = m.chat.State()
				m.refresh()
			}
			return m, nil
		case tea.KeyEnter:
			m.submit()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refresh()
		return m, nil

	case frameMsg:
		m.frame()
		return m, m.tick()
	}

	var taCmd, vpCmd tea.Cmd
	m.input, taCmd = m.input.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(taCmd, vpCmd)
}

func (m *Model) submit() {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return
	}
	if err := m.chat.Submit(text); err != nil {
		// keep the input so it can be sent once the reply is done
		m.err = err
		return
	}
	m.err = nil
	m.input.Reset()
	m.state = m.chat.State()
	m.refresh()
}

// frame advances the conversation and redraws when something changed.
func (m *Model) frame() {
	before := m.state
	chunk := m.chat.Update()
	m.state = m.chat.State()
	// the context is only read between sessions
	if m.opts.FillRatio != nil && !m.state.Generating() {
		m.fill = m.opts.FillRatio()
	}
	if before.Generating() && !m.state.Generating() {
		m.err = m.chat.LastError()
	}
	if chunk != "" || m.state != before {
		m.refresh()
	}
}

func (m *Model) resize(w, h int) {
	m.width = w
	m.viewport.Width = w
	// header, status, help and the three input rows
	m.viewport.Height = max(h-8, 3)
	m.input.SetWidth(w)
	m.bar.Width = min(max(w/4, 10), 40)
	m.setRenderer()
}

func (m *Model) setRenderer() {
	if !m.opts.Markdown {
		return
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(max(m.width-4, 20)),
	)
	if err == nil {
		m.renderer = r
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m Model) transcript() string {
	var sb strings.Builder
	if s := m.chat.Summary(); s != "" {
		sb.WriteString(summaryStyle.Render("Summary of earlier turns:\n"+s) + "\n\n")
	}
	hist := m.chat.History()
	for i, msg := range hist {
		if msg.Role == chattemplate.RoleUser {
			sb.WriteString(userLabelStyle.Render("You") + "\n")
			sb.WriteString(userStyle.Render(msg.Text) + "\n\n")
			continue
		}
		sb.WriteString(assistantLabelStyle.Render("Assistant") + "\n")
		streaming := i == len(hist)-1 && m.state == conversation.StateGeneratingReply
		switch {
		case msg.Stopped:
			sb.WriteString(stoppedStyle.Render(msg.Text))
		case m.renderer != nil && !streaming:
			out, err := m.renderer.Render(msg.Text)
			if err != nil {
				out = assistantStyle.Render(msg.Text)
			}
			sb.WriteString(strings.TrimRight(out, "\n"))
		default:
			sb.WriteString(assistantStyle.Render(msg.Text))
		}
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func (m Model) statusLine() string {
	label := "ready"
	switch m.state {
	case conversation.StateGeneratingReply:
		label = "replying..."
	case conversation.StateSummarizing:
		label = "summarizing history..."
	}
	line := statusStyle.Render(fmt.Sprintf("%-22s context ", label)) +
		m.bar.ViewAs(m.fill) +
		statusStyle.Render(fmt.Sprintf(" %3.0f%%", m.fill*100))
	if m.err != nil {
		line += "  " + errorStyle.Render(m.err.Error())
	}
	return line
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	header := titleStyle.Render("llamachat") + " " + subtitleStyle.Render(m.opts.Title)
	help := helpStyle.Render("Enter send | Esc stop | Ctrl+C quit")
	return strings.Join([]string{header, m.viewport.View(), m.statusLine(), m.input.View(), help}, "\n")
}

// Run shows the chat screen until the user quits or ctx is canceled.
func Run(ctx context.Context, chat Chat, opts Options) error {
	p := tea.NewProgram(New(chat, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
