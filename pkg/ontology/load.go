package ontology

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load returns the built-in ontology, merged with the YAML override file at
// path when one is given. Override entries extend or replace built-in ones;
// an empty path returns the default unchanged.
func Load(path string) (*Ontology, error) {
	base := Default()
	if path == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ontology override: %w", err)
	}

	var override Ontology
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse ontology override: %w", err)
	}

	if override.SchemaVersion != "" {
		base.SchemaVersion = override.SchemaVersion
	}
	for typ, props := range override.NodeTypes {
		base.NodeTypes[typ] = mergeUnique(base.NodeTypes[typ], props)
	}
	for typ, rule := range override.EdgeTypes {
		base.EdgeTypes[typ] = rule
	}
	for term, typ := range override.Vocabulary {
		base.Vocabulary[term] = typ
	}

	return base, nil
}

func mergeUnique(existing, extra []string) []string {
	seen := make(map[string]bool, len(existing))
	out := make([]string, 0, len(existing)+len(extra))
	for _, s := range existing {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range extra {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
