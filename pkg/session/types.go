// Package session provides per-user persona session state and its
// persistence. A State is the whole durable record for one user: mood,
// interaction counters, the rolling transcript used for memory
// extraction, and the distilled long-term memories. The live LLM
// conversational context is deliberately not part of State; it is
// process-local and rebuilt after every load or mood change.
package session

import (
	"strings"
	"time"
)

// Turn roles in the persisted transcript.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// FactTypeUserInfo is the type stamped on extracted memories.
const FactTypeUserInfo = "user_info"

// Turn is a single transcript entry.
// The role/parts shape matches the stored record layout.
type Turn struct {
	Role  string   `json:"role"`
	Parts []string `json:"parts"`
}

// Text returns the turn's parts joined into one string.
func (t Turn) Text() string {
	return strings.Join(t.Parts, "\n")
}

// Fact is one durable, deduplicated memory about the user.
type Fact struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// State is the full persisted session record for one user.
// Transcript is serialized under the legacy "memory" key; Memories is
// the distilled fact list. Whole records are overwritten on save, never
// partially updated.
type State struct {
	Mood                string `json:"mood"`
	InteractionCount    int    `json:"interactionCount"`
	Transcript          []Turn `json:"memory"`
	Memories            []Fact `json:"memories"`
	LastInteractionTime int64  `json:"lastInteractionTime"`
}

// NewState returns a fresh session with the given mood and zeroed
// counters.
func NewState(mood string) *State {
	return &State{
		Mood:       mood,
		Transcript: []Turn{},
		Memories:   []Fact{},
	}
}

// AppendUserTurn appends a user message to the transcript.
func (s *State) AppendUserTurn(text string) {
	s.Transcript = append(s.Transcript, Turn{Role: RoleUser, Parts: []string{text}})
}

// AppendModelTurn appends an assistant reply to the transcript.
func (s *State) AppendModelTurn(text string) {
	s.Transcript = append(s.Transcript, Turn{Role: RoleModel, Parts: []string{text}})
}

// Tail returns the last n transcript turns (all of them if fewer).
// The returned slice is a copy.
func (s *State) Tail(n int) []Turn {
	if n <= 0 || len(s.Transcript) == 0 {
		return nil
	}
	start := len(s.Transcript) - n
	if start < 0 {
		start = 0
	}
	out := make([]Turn, len(s.Transcript)-start)
	copy(out, s.Transcript[start:])
	return out
}

// HasMemory reports whether a fact with case-insensitively equal
// content is already stored.
func (s *State) HasMemory(content string) bool {
	key := strings.ToLower(strings.TrimSpace(content))
	if key == "" {
		return false
	}
	for _, f := range s.Memories {
		if strings.ToLower(strings.TrimSpace(f.Content)) == key {
			return true
		}
	}
	return false
}

// AddFact appends a memory unless an equal one already exists.
// It reports whether the fact was added.
func (s *State) AddFact(content string, now time.Time) bool {
	content = strings.TrimSpace(content)
	if content == "" || s.HasMemory(content) {
		return false
	}
	s.Memories = append(s.Memories, Fact{
		Type:      FactTypeUserInfo,
		Content:   content,
		Timestamp: now.Unix(),
	})
	return true
}

// Clone returns a deep copy of the state. Used to snapshot a session
// for background memory extraction while the live state keeps moving.
func (s *State) Clone() *State {
	cp := *s
	cp.Transcript = make([]Turn, len(s.Transcript))
	for i, t := range s.Transcript {
		parts := make([]string, len(t.Parts))
		copy(parts, t.Parts)
		cp.Transcript[i] = Turn{Role: t.Role, Parts: parts}
	}
	cp.Memories = make([]Fact, len(s.Memories))
	copy(cp.Memories, s.Memories)
	return &cp
}
