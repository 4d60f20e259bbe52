// Package memory turns raw conversation transcript into durable,
// deduplicated facts about the user. Extraction is a periodic batch
// job: every sixth transcript turn, the recent tail is handed to an
// LLM that either reports the sentinel "no new information" or emits a
// dash-bullet list of candidate facts.
package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kawanbot/kawanbot/pkg/session"
)

const (
	// ExtractionInterval is the transcript-length period of the batch job.
	ExtractionInterval = 6
	// TailTurns caps how much transcript is shown to the extractor.
	TailTurns = 15

	// sentinel the extractor emits when the tail holds nothing durable.
	noNewInfoSentinel = "NO_NEW_INFORMATION"
)

// Completer is the one-shot LLM surface the consolidator needs.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Consolidator extracts and deduplicates facts.
type Consolidator struct {
	completer Completer
	now       func() time.Time
}

// NewConsolidator creates a consolidator over the given completer.
func NewConsolidator(c Completer) *Consolidator {
	return &Consolidator{completer: c, now: time.Now}
}

// ShouldExtract reports whether a transcript of the given length is
// due for a consolidation pass: positive multiples of
// ExtractionInterval only, counting both user and assistant turns.
func ShouldExtract(transcriptLen int) bool {
	return transcriptLen > 0 && transcriptLen%ExtractionInterval == 0
}

// BuildPrompt renders the extraction prompt for a transcript tail and
// the already-known facts. The tail is capped at TailTurns.
func BuildPrompt(tail []session.Turn, existing []session.Fact) string {
	if len(tail) > TailTurns {
		tail = tail[len(tail)-TailTurns:]
	}

	var b strings.Builder
	b.WriteString("You maintain the long-term memory of a chat companion.\n")
	b.WriteString("From the conversation below, extract stable facts about the user: ")
	b.WriteString("preferences, life details, plans, relationships. Ignore small talk and anything about the assistant itself.\n\n")
	b.WriteString("Conversation:\n")
	for _, t := range tail {
		speaker := "User"
		if t.Role == session.RoleModel {
			speaker = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, t.Text())
	}
	b.WriteString("\nAlready known:\n")
	if len(existing) == 0 {
		b.WriteString("(nothing)\n")
	} else {
		for _, f := range existing {
			fmt.Fprintf(&b, "- %s\n", f.Content)
		}
	}
	fmt.Fprintf(&b, "\nIf there is nothing new, answer exactly %s.\n", noNewInfoSentinel)
	b.WriteString("Otherwise answer with one fact per line, each line starting with \"- \", in the user's language. No other text.\n")
	return b.String()
}

// ParseFacts extracts candidate fact strings from the raw extractor
// output: dash-bullet lines with the marker stripped. The sentinel, or
// output with no bullet lines at all, yields nothing.
func ParseFacts(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.Contains(strings.ToUpper(raw), noNewInfoSentinel) {
		return nil
	}

	var facts []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "-") {
			continue
		}
		fact := strings.TrimSpace(strings.TrimPrefix(line, "-"))
		if fact != "" {
			facts = append(facts, fact)
		}
	}
	return facts
}

// Dedup drops candidates whose content case-insensitively equals an
// existing fact's content, and collapses duplicates within the batch.
func Dedup(candidates []string, existing []session.Fact) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, f := range existing {
		seen[strings.ToLower(strings.TrimSpace(f.Content))] = struct{}{}
	}

	var fresh []string
	for _, c := range candidates {
		key := strings.ToLower(strings.TrimSpace(c))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		fresh = append(fresh, strings.TrimSpace(c))
	}
	return fresh
}

// Extract runs one consolidation pass: prompt the extractor with the
// transcript tail, parse its output, dedup against existing, and stamp
// survivors with the current time. A completer failure is returned to
// the caller, which logs it and skips the cycle; there is no retry.
func (c *Consolidator) Extract(ctx context.Context, tail []session.Turn, existing []session.Fact) ([]session.Fact, error) {
	runID := uuid.New().String()[:8]

	raw, err := c.completer.Complete(ctx, BuildPrompt(tail, existing))
	if err != nil {
		return nil, fmt.Errorf("memory extraction %s: %w", runID, err)
	}

	fresh := Dedup(ParseFacts(raw), existing)
	if len(fresh) == 0 {
		log.Printf("[Memory] extraction %s: no new facts", runID)
		return nil, nil
	}

	now := c.now().Unix()
	facts := make([]session.Fact, 0, len(fresh))
	for _, content := range fresh {
		facts = append(facts, session.Fact{
			Type:      session.FactTypeUserInfo,
			Content:   content,
			Timestamp: now,
		})
	}
	log.Printf("[Memory] extraction %s: %d new fact(s)", runID, len(facts))
	return facts, nil
}
