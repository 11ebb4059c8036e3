package memory

import (
	"strings"
	"time"
)

// Role identifies the author of a conversational message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Metadata carries structured per-message context. Known fields are
// typed; Extra is reserved for genuinely unstructured key/value pairs.
type Metadata struct {
	Source     string
	Language   string
	EmotionTag string
	Extra      map[string]string
}

// Flatten converts metadata into the string map shape vector stores
// persist alongside a record.
func (m Metadata) Flatten() map[string]string {
	out := make(map[string]string, len(m.Extra)+3)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.Source != "" {
		out["source"] = m.Source
	}
	if m.Language != "" {
		out["language"] = m.Language
	}
	if m.EmotionTag != "" {
		out["emotion"] = m.EmotionTag
	}
	return out
}

// MetadataFromFlat rebuilds Metadata from a stored string map.
func MetadataFromFlat(flat map[string]string) Metadata {
	m := Metadata{}
	for k, v := range flat {
		switch k {
		case "source":
			m.Source = v
		case "language":
			m.Language = v
		case "emotion":
			m.EmotionTag = v
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]string)
			}
			m.Extra[k] = v
		}
	}
	return m
}

// Message is one conversational message. Immutable once created; the
// tier currently holding it owns it.
type Message struct {
	Role       Role
	Content    string
	Timestamp  time.Time
	Meta       Metadata
	Importance float64
	Topics     []string
}

// MemoryContext identifies the caller on every engine operation. It is
// a value object and is never persisted by the engine itself.
type MemoryContext struct {
	UserID         string
	ConversationID string
	DayNumber      int
}

// Fact is one retrievable unit of long-term knowledge: either a search
// hit from the vector store or an important message still buffered in
// the window.
type Fact struct {
	Content   string
	Meta      Metadata
	Score     float64
	CreatedAt time.Time
}

// PromptContext is the prompt-ready payload handed to the upstream
// prompt composer. All fields may be empty; the struct itself is
// always produced, even when every backing tier is unavailable.
type PromptContext struct {
	// RecentSummary is the verbatim transcript of the most recent
	// window messages.
	RecentSummary string

	// LongTermFacts lists retained facts, buffer-derived ones first.
	LongTermFacts string

	// SemanticContext holds query-matched long-term search hits.
	// Empty when the caller supplied no query.
	SemanticContext string
}

// AddResult reports which tiers accepted a message.
type AddResult struct {
	ShortTermOK bool
	LongTermOK  bool
}

// formatTranscript renders messages as a prompt-ready transcript.
func formatTranscript(msgs []Message) string {
	if len(msgs) == 0 {
		return ""
	}
	lines := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		lines = append(lines, string(msg.Role)+": "+msg.Content)
	}
	return strings.Join(lines, "\n")
}

// truncate shortens s to maxLen runes, appending "..." when trimmed.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
