// ABOUTME: Mention detection for agent-addressed messages
// ABOUTME: Explicit tagged trigger patterns so new phrases are auditable and testable

package mention

import (
	"fmt"
	"regexp"
	"strings"
)

// TriggerKind identifies which kind of pattern matched a message.
type TriggerKind string

const (
	// TriggerDirectMention matches "@name".
	TriggerDirectMention TriggerKind = "direct_mention"
	// TriggerGreeting matches a greeting word followed by the name ("hey name").
	TriggerGreeting TriggerKind = "greeting"
	// TriggerAlias matches a configured alias as a standalone word.
	TriggerAlias TriggerKind = "alias"
	// TriggerBareName matches the agent name as a standalone word.
	TriggerBareName TriggerKind = "bare_name"
)

// Trigger pairs a kind with its compiled pattern.
type Trigger struct {
	Kind    TriggerKind
	Pattern *regexp.Regexp
}

// Detector decides whether message text is addressed to the agent.
// Stateless and safe for concurrent use.
type Detector struct {
	triggers []Trigger
}

// defaultGreetings are used when the persona configures none.
var defaultGreetings = []string{"hey", "hi", "hello"}

// NewDetector builds a detector for the given agent name, aliases, and
// greeting words. All patterns are case-insensitive and word-boundary
// delimited: the name embedded inside a longer word never matches.
func NewDetector(name string, aliases, greetings []string) (*Detector, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("agent name is required")
	}
	if len(greetings) == 0 {
		greetings = defaultGreetings
	}

	quoted := regexp.QuoteMeta(name)

	var triggers []Trigger

	direct, err := regexp.Compile(`(?i)@` + quoted + `\b`)
	if err != nil {
		return nil, fmt.Errorf("compiling direct mention pattern: %w", err)
	}
	triggers = append(triggers, Trigger{Kind: TriggerDirectMention, Pattern: direct})

	greetWords := make([]string, len(greetings))
	for i, g := range greetings {
		greetWords[i] = regexp.QuoteMeta(strings.TrimSpace(g))
	}
	greeting, err := regexp.Compile(`(?i)\b(?:` + strings.Join(greetWords, "|") + `)[\s,]+` + quoted + `\b`)
	if err != nil {
		return nil, fmt.Errorf("compiling greeting pattern: %w", err)
	}
	triggers = append(triggers, Trigger{Kind: TriggerGreeting, Pattern: greeting})

	for _, alias := range aliases {
		alias = strings.TrimSpace(alias)
		if alias == "" {
			continue
		}
		p, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(alias) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("compiling alias pattern %q: %w", alias, err)
		}
		triggers = append(triggers, Trigger{Kind: TriggerAlias, Pattern: p})
	}

	bare, err := regexp.Compile(`(?i)\b` + quoted + `\b`)
	if err != nil {
		return nil, fmt.Errorf("compiling bare name pattern: %w", err)
	}
	triggers = append(triggers, Trigger{Kind: TriggerBareName, Pattern: bare})

	return &Detector{triggers: triggers}, nil
}

// Detect returns the first trigger matching text, in declaration order.
func (d *Detector) Detect(text string) (Trigger, bool) {
	for _, t := range d.triggers {
		if t.Pattern.MatchString(text) {
			return t, true
		}
	}
	return Trigger{}, false
}

// IsAddressedToAgent reports whether text contains any agent-address pattern.
func (d *Detector) IsAddressedToAgent(text string) bool {
	_, ok := d.Detect(text)
	return ok
}

// Triggers returns the configured trigger list, for inspection and tests.
func (d *Detector) Triggers() []Trigger {
	return d.triggers
}
