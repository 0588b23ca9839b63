package ontology

import "slices"

// Ontology is the static schema extraction output is validated against:
// which node types exist, which properties each type may carry, and which
// relationship types are allowed between which type pairs.
//
// An Ontology is constructed once at startup and treated as read-only by
// both the extractor and the graph loader.
type Ontology struct {
	SchemaVersion string              `yaml:"schema_version"`
	NodeTypes     map[string][]string `yaml:"node_types"`
	EdgeTypes     map[string]EdgeRule `yaml:"edge_types"`

	// Vocabulary maps known entity surface forms to their node type. It
	// drives the rule-based fallback extractor.
	Vocabulary map[string]string `yaml:"vocabulary"`
}

// EdgeRule constrains which node type pairs a relationship type may connect.
// Empty Source/Target lists mean the endpoint type is unconstrained.
type EdgeRule struct {
	Source []string `yaml:"source,omitempty"`
	Target []string `yaml:"target,omitempty"`
}

// HasNodeType reports whether typ is a known node type.
func (o *Ontology) HasNodeType(typ string) bool {
	_, ok := o.NodeTypes[typ]
	return ok
}

// AllowsProperty reports whether the node type may carry the property.
func (o *Ontology) AllowsProperty(typ, prop string) bool {
	props, ok := o.NodeTypes[typ]
	if !ok {
		return false
	}
	return slices.Contains(props, prop)
}

// AllowsEdge reports whether the relationship type may connect the given
// source and target node types.
func (o *Ontology) AllowsEdge(edgeType, sourceType, targetType string) bool {
	rule, ok := o.EdgeTypes[edgeType]
	if !ok {
		return false
	}
	if len(rule.Source) > 0 && !slices.Contains(rule.Source, sourceType) {
		return false
	}
	if len(rule.Target) > 0 && !slices.Contains(rule.Target, targetType) {
		return false
	}
	return true
}

// NodeTypeNames returns the node type names in stable sorted order.
func (o *Ontology) NodeTypeNames() []string {
	names := make([]string, 0, len(o.NodeTypes))
	for name := range o.NodeTypes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// EdgeTypeNames returns the relationship type names in stable sorted order.
func (o *Ontology) EdgeTypeNames() []string {
	names := make([]string, 0, len(o.EdgeTypes))
	for name := range o.EdgeTypes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// VocabularyTerms returns the vocabulary surface forms in stable sorted
// order. Used to seed the sparse term encoder.
func (o *Ontology) VocabularyTerms() []string {
	terms := make([]string, 0, len(o.Vocabulary))
	for term := range o.Vocabulary {
		terms = append(terms, term)
	}
	slices.Sort(terms)
	return terms
}
