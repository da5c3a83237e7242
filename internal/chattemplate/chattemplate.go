// Package chattemplate serializes chat messages into the literal prompt text
// expected by a model family. Formatters are fixed Go code, one per family.
package chattemplate

import (
	"fmt"
	"sort"
	"strings"
)

// Roles understood by every formatter.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn handed to a Formatter.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Formatter turns an ordered message list into prompt text.
type Formatter interface {
	Name() string
	// Format serializes msgs. With addGenerationPrompt the assistant turn
	// header is appended so the model continues as the assistant.
	Format(msgs []Message, addGenerationPrompt bool) string
	// StopWords are the literal suffixes that end an assistant turn.
	StopWords() []string
	// SystemRole is the role that carries system-level instructions.
	SystemRole() string
}

// Default is the formatter used when none is configured.
const Default = "chatml"

type chatML struct{}

func (chatML) Name() string { return "chatml" }

func (chatML) Format(msgs []Message, gen bool) string {
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "<|im_start|>%s\n%s<|im_end|>\n", m.Role, m.Content)
	}
	if gen {
		b.WriteString("<|im_start|>assistant\n")
	}
	return b.String()
}

func (chatML) StopWords() []string { return []string{"<|im_end|>"} }
func (chatML) SystemRole() string  { return RoleSystem }

// deepSeek follows the DeepSeek-R1 distill layout. The family has no system
// turn; instructions travel as user turns.
type deepSeek struct{}

func (deepSeek) Name() string { return "deepseek" }

func (deepSeek) Format(msgs []Message, gen bool) string {
	var b strings.Builder
	b.WriteString("<｜begin▁of▁sentence｜>")
	for _, m := range msgs {
		switch m.Role {
		case RoleAssistant:
			b.WriteString("<｜Assistant｜>")
			b.WriteString(m.Content)
			b.WriteString("<｜end▁of▁sentence｜>")
		default:
			b.WriteString("<｜User｜>")
			b.WriteString(m.Content)
		}
	}
	if gen {
		b.WriteString("<｜Assistant｜>")
	}
	return b.String()
}

func (deepSeek) StopWords() []string {
	return []string{"<｜User｜>", "<｜Assistant｜>", "<｜End｜>", "\n<｜User｜>", "\n<｜Assistant｜>"}
}
func (deepSeek) SystemRole() string { return RoleUser }

type phi4 struct{}

func (phi4) Name() string { return "phi4" }

func (phi4) Format(msgs []Message, gen bool) string {
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "<|%s|>%s<|end|>", m.Role, m.Content)
	}
	if gen {
		b.WriteString("<|assistant|>")
	}
	return b.String()
}

func (phi4) StopWords() []string { return []string{"<|im_end|>", "<|end|>"} }
func (phi4) SystemRole() string  { return RoleSystem }

// teuken uses plain "User:"/"Assistant:" turns; system text leads the prompt.
type teuken struct{}

func (teuken) Name() string { return "teuken" }

func (teuken) Format(msgs []Message, gen bool) string {
	var b strings.Builder
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			fmt.Fprintf(&b, "System: %s\n", m.Content)
		case RoleAssistant:
			fmt.Fprintf(&b, "Assistant: %s\n", m.Content)
		default:
			fmt.Fprintf(&b, "User: %s\n", m.Content)
		}
	}
	if gen {
		b.WriteString("Assistant:")
	}
	return b.String()
}

func (teuken) StopWords() []string { return []string{"User:", "Assistant:"} }
func (teuken) SystemRole() string  { return RoleSystem }

// plain is the minimal "<|role|>content" layout used for one-shot prompts.
type plain struct{}

func (plain) Name() string { return "plain" }

func (plain) Format(msgs []Message, gen bool) string {
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "<|%s|>%s\n", m.Role, m.Content)
	}
	if gen {
		b.WriteString("<|assistant|>")
	}
	return b.String()
}

func (plain) StopWords() []string { return []string{"<|user|>"} }
func (plain) SystemRole() string  { return RoleSystem }

var formatters = map[string]Formatter{
	"chatml":   chatML{},
	"deepseek": deepSeek{},
	"phi4":     phi4{},
	"teuken":   teuken{},
	"plain":    plain{},
}

// Lookup returns the formatter registered under name (case-insensitive).
func Lookup(name string) (Formatter, error) {
	f, ok := formatters[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown chat template %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return f, nil
}

// Names lists the registered formatter names in sorted order.
func Names() []string {
	out := make([]string, 0, len(formatters))
	for n := range formatters {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
