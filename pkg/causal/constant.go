package causal

import "math/rand/v2"

// TypeConstant is the registry name of the constant-value node variant.
const TypeConstant = "ConstantNode"

// ConstantNode deterministically returns a fixed severity and render
// value instead of sampling them. Both conversion methods return the
// stored constants regardless of input, so intervening on only one
// field of a ConstantNode cannot move the other away from its constant.
type ConstantNode struct {
	baseNode
	render   float64
	severity float64
}

type constantSpec struct {
	baseSpec      `yaml:",inline"`
	RenderValue   *float64 `yaml:"render_value"`
	SeverityValue *float64 `yaml:"severity_value"`
}

func newConstantNode(spec NodeSpec, parents []string, _ *rand.Rand) (Node, error) {
	var cs constantSpec
	if err := spec.Decode(&cs); err != nil {
		return nil, err
	}
	if err := cs.ensureValid(); err != nil {
		return nil, err
	}
	if cs.RenderValue == nil {
		return nil, configf("node %q: missing field %q", cs.Name, "render_value")
	}
	if cs.SeverityValue == nil {
		return nil, configf("node %q: missing field %q", cs.Name, "severity_value")
	}
	if *cs.SeverityValue < 0 || *cs.SeverityValue > 1 {
		return nil, configf("node %q: severity_value %v outside [0,1]", cs.Name, *cs.SeverityValue)
	}
	return &ConstantNode{
		baseNode: newBaseNode(cs.baseSpec, parents),
		render:   *cs.RenderValue,
		severity: *cs.SeverityValue,
	}, nil
}

func (n *ConstantNode) Type() string { return TypeConstant }

// Sample ignores parents and randomness entirely.
func (n *ConstantNode) Sample(_ *rand.Rand, _ map[string]Outcome) (float64, float64, error) {
	return n.severity, n.render, nil
}

func (n *ConstantNode) SeverityFromRender(_ float64) (float64, error) {
	return n.severity, nil
}

func (n *ConstantNode) RenderFromSeverity(_ float64) (float64, error) {
	return n.render, nil
}

func (n *ConstantNode) Spec() any {
	return constantSpec{
		baseSpec: baseSpec{
			Name:           n.name,
			Type:           TypeConstant,
			CorruptionFunc: n.corruptionFunc,
			Parameter:      n.parameter,
			Defaults:       n.defaults,
			Intervene:      n.intervene,
		},
		RenderValue:   &n.render,
		SeverityValue: &n.severity,
	}
}
