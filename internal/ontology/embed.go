package ontology

import (
	_ "embed"
)

//go:embed ontology.yaml
var defaultYAML []byte

// DefaultSource returns the embedded dictionary shipped with the binary.
// Deployments can override it with ONTOLOGY_PATH.
func DefaultSource() []byte {
	out := make([]byte, len(defaultYAML))
	copy(out, defaultYAML)
	return out
}
