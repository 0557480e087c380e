package turn

import (
	"os"
	"strings"
)

// Source yields one static context document. A missing or unreadable source
// reads as empty text, never as an error.
type Source interface {
	Read() string
}

// FileSource reads a context document from disk on every call, so the
// documents can be edited without restarting the agent.
type FileSource struct {
	path string
}

// NewFileSource returns a Source over the given path.
func NewFileSource(path string) FileSource {
	return FileSource{path: path}
}

// Read returns the trimmed file contents, or empty text if the file is
// missing.
func (s FileSource) Read() string {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// StaticSource wraps a fixed string, used by tests and seeded deployments.
type StaticSource string

// Read returns the wrapped text.
func (s StaticSource) Read() string { return strings.TrimSpace(string(s)) }

// ContextSet holds the up-to-three static documents that become the system
// prompt: the persona, curated background, and general context. Each section
// is included only when non-empty, in that fixed order.
type ContextSet struct {
	Persona    Source
	Background Source
	General    Source
}

// SystemPrompt assembles the labeled sections into one system message body.
func (c *ContextSet) SystemPrompt() string {
	var sections []string
	if c.Persona != nil {
		if text := c.Persona.Read(); text != "" {
			sections = append(sections, text)
		}
	}
	if c.Background != nil {
		if text := c.Background.Read(); text != "" {
			sections = append(sections, "CURATED BACKGROUND:\n"+text)
		}
	}
	if c.General != nil {
		if text := c.General.Read(); text != "" {
			sections = append(sections, "ADDITIONAL CONTEXT:\n"+text)
		}
	}
	return strings.Join(sections, "\n\n")
}
