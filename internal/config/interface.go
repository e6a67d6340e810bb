package config

import "context"

// Loader is the interface for a format-specific definition loader.
type Loader interface {
	// Load reads a definition document from path and translates it into the
	// format-agnostic model. Any problem with the document is reported as a
	// *DefinitionError.
	Load(ctx context.Context, path string) (*Workflow, error)
}
