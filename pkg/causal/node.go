// Package causal implements a structural causal model over image
// corruption factors. Each node in a directed acyclic graph samples a
// severity (normalized corruption strength in [0,1]) and a render value
// (the concrete parameter handed to the rendering backend), with child
// samples conditioned on parent samples. Graphs are declared in YAML,
// built through registry-dispatched node and generator factories,
// sampled in a cached topological order with optional per-node
// intervention overrides, and round-trip losslessly through Save/Load.
package causal

import (
	"math/rand/v2"

	"gopkg.in/yaml.v3"
)

// RootName is the reserved name of the synthetic origin node. It carries
// no parameters and never appears in sampling output; it exists only so
// every real node has at least one incoming edge.
const RootName = "root"

// Outcome is one node's result for a single sampling pass. The rendering
// collaborator looks up CorruptionFunc and Parameter to know which
// external setting to mutate, and Render for the value to set it to.
type Outcome struct {
	Severity       float64 `yaml:"severity_value"`
	Render         float64 `yaml:"render_value"`
	CorruptionFunc string  `yaml:"corruption_func,omitempty"`
	Parameter      string  `yaml:"parameter,omitempty"`
}

// Intervention forces a node's sampled output to a fixed value. Exactly
// one of Severity or Render must be set; the other half of the outcome
// is derived through the node's conversion methods.
type Intervention struct {
	Severity *float64 `yaml:"severity_value,omitempty"`
	Render   *float64 `yaml:"render_value,omitempty"`
}

func (iv Intervention) validate(node string) error {
	if iv.Severity == nil && iv.Render == nil {
		return validationf("intervention on node %q sets neither severity_value nor render_value", node)
	}
	if iv.Severity != nil && iv.Render != nil {
		return validationf("intervention on node %q sets both severity_value and render_value", node)
	}
	return nil
}

// SeverityOf returns an Intervention fixing the severity value.
func SeverityOf(v float64) Intervention { return Intervention{Severity: &v} }

// RenderOf returns an Intervention fixing the render value.
func RenderOf(v float64) Intervention { return Intervention{Render: &v} }

// Node is one corruption factor in the graph. Implementations are
// immutable after construction: Sample returns a fresh result and never
// mutates the node, so a built model is safe for concurrent read-only
// inspection between passes.
type Node interface {
	Name() string
	Type() string
	CorruptionFunc() string
	Parameter() string

	// Parents returns the names of this node's parents in declaration
	// order, excluding the synthetic root.
	Parents() []string

	// Sample draws this node's severity and render value given the
	// already-sampled outcomes of its parents.
	Sample(rng *rand.Rand, parents map[string]Outcome) (severity, render float64, err error)

	// SeverityFromRender and RenderFromSeverity convert between the two
	// output representations. They are deterministic, so an intervention
	// on one field can populate the other.
	SeverityFromRender(render float64) (float64, error)
	RenderFromSeverity(severity float64) (float64, error)

	// Intervention returns the override baked into the node's config,
	// or nil. A per-call intervention on the same node takes precedence.
	Intervention() *Intervention

	// Spec returns a record from which an identical, not-yet-sampled
	// node can be reconstructed. The result must be YAML-marshalable.
	Spec() any
}

// baseSpec holds the configuration fields shared by every node variant.
type baseSpec struct {
	Name           string             `yaml:"name"`
	Type           string             `yaml:"type"`
	CorruptionFunc string             `yaml:"corruption_func"`
	Parameter      string             `yaml:"parameter"`
	Defaults       map[string]float64 `yaml:"defaults,omitempty"`
	Intervene      *Intervention      `yaml:"intervene,omitempty"`
}

func (b baseSpec) ensureValid() error {
	if b.Name == "" {
		return configf("node without a name")
	}
	for _, f := range []struct{ name, val string }{
		{"type", b.Type},
		{"corruption_func", b.CorruptionFunc},
		{"parameter", b.Parameter},
	} {
		if f.val == "" {
			return configf("node %q: missing field %q", b.Name, f.name)
		}
	}
	if b.Intervene != nil {
		if (b.Intervene.Severity == nil) == (b.Intervene.Render == nil) {
			return configf("node %q: intervene must set exactly one of severity_value or render_value", b.Name)
		}
	}
	return nil
}

// baseNode carries the identity shared by the built-in variants.
type baseNode struct {
	name           string
	corruptionFunc string
	parameter      string
	defaults       map[string]float64
	parents        []string
	intervene      *Intervention
}

func (n *baseNode) Name() string                { return n.name }
func (n *baseNode) CorruptionFunc() string      { return n.corruptionFunc }
func (n *baseNode) Parameter() string           { return n.parameter }
func (n *baseNode) Parents() []string           { return n.parents }
func (n *baseNode) Intervention() *Intervention { return n.intervene }

func newBaseNode(spec baseSpec, parents []string) baseNode {
	return baseNode{
		name:           spec.Name,
		corruptionFunc: spec.CorruptionFunc,
		parameter:      spec.Parameter,
		defaults:       spec.Defaults,
		parents:        parents,
		intervene:      spec.Intervene,
	}
}

// NodeSpec is one entry of a config's node_list. The shared fields are
// decoded eagerly; variant-specific fields stay in the raw document and
// are decoded by the variant's factory via Decode.
type NodeSpec struct {
	Base baseSpec

	raw *yaml.Node
}

// UnmarshalYAML keeps the raw mapping alongside the decoded base fields.
func (s *NodeSpec) UnmarshalYAML(value *yaml.Node) error {
	if err := value.Decode(&s.Base); err != nil {
		return configf("node spec: %v", err)
	}
	s.raw = value
	return nil
}

// MarshalYAML re-emits the original mapping when present, so configs
// survive re-marshaling without losing variant fields.
func (s NodeSpec) MarshalYAML() (any, error) {
	if s.raw != nil {
		return s.raw, nil
	}
	return s.Base, nil
}

// Decode unmarshals the full node mapping, variant fields included,
// into out. Factories use it to read their typed parameter structs.
func (s NodeSpec) Decode(out any) error {
	if s.raw == nil {
		return configf("node %q: no variant parameters to decode", s.Base.Name)
	}
	if err := s.raw.Decode(out); err != nil {
		return configf("node %q: %v", s.Base.Name, err)
	}
	return nil
}

// NewNodeSpec builds a NodeSpec from any YAML-marshalable record.
// Generators that synthesize nodes programmatically use it to feed the
// same factory path as file-loaded specs.
func NewNodeSpec(v any) (NodeSpec, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return NodeSpec{}, configf("node spec: %v", err)
	}
	var spec NodeSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return NodeSpec{}, err
	}
	return spec, nil
}
