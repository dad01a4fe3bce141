// ABOUTME: Agent persona loading from a TOML file with environment expansion
// ABOUTME: Defines the agent's name, mention aliases, and prompt strings

package agent

import (
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
)

// Persona describes the automated participant: how it is addressed and how
// it prompts the completion model.
type Persona struct {
	Agent  AgentSection  `toml:"agent"`
	Prompt PromptSection `toml:"prompt"`
}

// AgentSection holds the agent identity used for mention detection.
type AgentSection struct {
	Name      string   `toml:"name"`
	Aliases   []string `toml:"aliases"`
	Greetings []string `toml:"greetings"`
}

// PromptSection holds the model-facing strings.
type PromptSection struct {
	System   string `toml:"system"`
	Fallback string `toml:"fallback"`
}

const defaultSystemPrompt = `You are %s, a helpful assistant participating in a group SMS conversation. ` +
	`Keep replies short and plain: they are delivered as text messages. ` +
	`Answer the most recent message, using the conversation history for context.`

// DefaultFallback is the reply used when the completion call fails. The SMS
// sender always gets some response rather than silence.
const DefaultFallback = "Sorry, I'm having trouble responding right now. Please try again in a bit."

// DefaultPersona returns a usable persona when no file is configured.
func DefaultPersona() *Persona {
	p := &Persona{}
	p.Agent.Name = "stef"
	p.applyDefaults()
	return p
}

// LoadPersona reads a persona TOML file, expanding ${VAR} environment
// references before parsing.
func LoadPersona(path string) (*Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading persona file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var p Persona
	if _, err := toml.Decode(expanded, &p); err != nil {
		return nil, fmt.Errorf("parsing persona file: %w", err)
	}

	if p.Agent.Name == "" {
		return nil, fmt.Errorf("agent.name is required in %s", path)
	}
	p.applyDefaults()
	return &p, nil
}

// applyDefaults fills prompt strings that the file leaves empty.
func (p *Persona) applyDefaults() {
	if p.Prompt.System == "" {
		p.Prompt.System = fmt.Sprintf(defaultSystemPrompt, p.Agent.Name)
	}
	if p.Prompt.Fallback == "" {
		p.Prompt.Fallback = DefaultFallback
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
