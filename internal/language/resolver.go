// Package language maps host document language metadata to the canonical
// names understood by the telemetry service.
package language

import (
	"github.com/rs/zerolog/log"

	"github.com/Rubikoid/codestats-reporter/internal/metrics"
)

// DefaultName is reported for documents that carry no language metadata.
const DefaultName = "Plain text"

// Metadata is the language identity a host document carries.
type Metadata struct {
	// ID is the host's internal language identifier, e.g. "go".
	ID string
	// PulseName is the service-side name, e.g. "Go". Empty when the host's
	// language definition does not declare one.
	PulseName string
}

// Document is the minimal view of a host document needed for resolution.
// The host's full document model stays on the host side.
type Document interface {
	// Language returns the document's language metadata, or nil when the
	// document carries none.
	Language() *Metadata
}

// defaultNames maps common host language ids to service-side names. The
// service is case-sensitive about these.
var defaultNames = map[string]string{
	"bash":       "Shell Script",
	"c":          "C",
	"cpp":        "C++",
	"css":        "CSS",
	"dockerfile": "Dockerfile",
	"elixir":     "Elixir",
	"go":         "Go",
	"haskell":    "Haskell",
	"html":       "HTML",
	"java":       "Java",
	"javascript": "JavaScript",
	"json":       "JSON",
	"lua":        "Lua",
	"markdown":   "Markdown",
	"nix":        "Nix",
	"ocaml":      "OCaml",
	"python":     "Python",
	"ruby":       "Ruby",
	"rust":       "Rust",
	"sql":        "SQL",
	"toml":       "TOML",
	"typescript": "TypeScript",
	"yaml":       "YAML",
	"zig":        "Zig",
}

// Resolver translates documents into counter keys.
type Resolver struct {
	names map[string]string
}

// NewResolver builds a resolver from the built-in name table plus the given
// per-deployment overrides. Overrides win on conflict.
func NewResolver(overrides map[string]string) *Resolver {
	names := make(map[string]string, len(defaultNames)+len(overrides))
	for id, name := range defaultNames {
		names[id] = name
	}
	for id, name := range overrides {
		names[id] = name
	}
	return &Resolver{names: names}
}

// Resolve returns the canonical counter key for doc. ok is false when the
// document's language is known to the host but has no service-side name;
// such edits are not counted.
func (r *Resolver) Resolve(doc Document) (name string, ok bool) {
	meta := doc.Language()
	if meta == nil {
		return DefaultName, true
	}
	if meta.PulseName != "" {
		return meta.PulseName, true
	}
	if name, ok := r.names[meta.ID]; ok {
		return name, true
	}
	metrics.UnmappedLanguages.Inc()
	log.Warn().Str("language_id", meta.ID).Msg("no service name for language, edit not counted")
	return "", false
}
