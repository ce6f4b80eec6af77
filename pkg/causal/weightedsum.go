package causal

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
	"gopkg.in/yaml.v3"
)

// TypeWeightedSum is the registry name of the weighted-combination
// node variant.
const TypeWeightedSum = "WeightedSumNode"

// Corruption types describe how a render value maps to severity.
const (
	// CorruptionIncreasing: larger render values corrupt more.
	CorruptionIncreasing = "increasing"
	// CorruptionDecreasing: smaller render values corrupt more.
	CorruptionDecreasing = "decreasing"
	// CorruptionCentered: distance from the standard value corrupts,
	// in either direction.
	CorruptionCentered = "centered"
)

// Activation function names accepted by WeightedSumNode.
const (
	ActivationSigmoid = "sigmoid"
	ActivationTanh    = "tanh"
)

// WeightedSumNode samples a severity from a weighted linear combination
// of its parents' severities plus Gaussian noise, squashed to (0,1) by
// an activation function and shaped through the quantile of a Beta(a,b)
// distribution. The resulting unit value is rescaled to [min_val,
// max_val] to obtain the render value.
//
// Edge weights are drawn uniformly from [-1,1) at construction unless
// the config supplies them (as a loaded model does), so a saved graph
// reproduces the exact linear mechanism it was built with.
type WeightedSumNode struct {
	baseNode
	minVal, maxVal     float64
	extreme, standard  float64
	betaA, betaB       float64
	corruptionType     string
	bias, std          float64
	activationType     string
	weights            map[string]float64
}

type weightedSumSpec struct {
	baseSpec       `yaml:",inline"`
	MinVal         *float64           `yaml:"min_val"`
	MaxVal         *float64           `yaml:"max_val"`
	Extreme        *float64           `yaml:"extreme"`
	Standard       *float64           `yaml:"standard"`
	BetaA          *float64           `yaml:"beta_a"`
	BetaB          *float64           `yaml:"beta_b"`
	CorruptionType string             `yaml:"corruption_type"`
	Bias           yaml.Node          `yaml:"bias,omitempty"`
	Std            *float64           `yaml:"std"`
	ActivationType string             `yaml:"activation_type"`
	EdgeWeights    map[string]float64 `yaml:"edge_weights,omitempty"`
}

// savedWeightedSumSpec is the lossless form emitted by Spec: bias is
// resolved to a number and edge weights are always present.
type savedWeightedSumSpec struct {
	baseSpec       `yaml:",inline"`
	MinVal         float64            `yaml:"min_val"`
	MaxVal         float64            `yaml:"max_val"`
	Extreme        float64            `yaml:"extreme"`
	Standard       float64            `yaml:"standard"`
	BetaA          float64            `yaml:"beta_a"`
	BetaB          float64            `yaml:"beta_b"`
	CorruptionType string             `yaml:"corruption_type"`
	Bias           float64            `yaml:"bias"`
	Std            float64            `yaml:"std"`
	ActivationType string             `yaml:"activation_type"`
	EdgeWeights    map[string]float64 `yaml:"edge_weights,omitempty"`
}

func newWeightedSumNode(spec NodeSpec, parents []string, rng *rand.Rand) (Node, error) {
	var ws weightedSumSpec
	if err := spec.Decode(&ws); err != nil {
		return nil, err
	}
	if err := ws.ensureValid(parents); err != nil {
		return nil, err
	}

	n := &WeightedSumNode{
		baseNode:       newBaseNode(ws.baseSpec, parents),
		minVal:         *ws.MinVal,
		maxVal:         *ws.MaxVal,
		extreme:        *ws.Extreme,
		standard:       *ws.Standard,
		betaA:          *ws.BetaA,
		betaB:          *ws.BetaB,
		corruptionType: ws.CorruptionType,
		std:            *ws.Std,
		activationType: ws.ActivationType,
	}

	bias, err := resolveBias(ws.Bias, ws.Name, rng)
	if err != nil {
		return nil, err
	}
	n.bias = bias

	n.weights = make(map[string]float64, len(parents))
	for _, parent := range parents {
		if w, ok := ws.EdgeWeights[parent]; ok {
			n.weights[parent] = w
			continue
		}
		n.weights[parent] = rng.Float64()*2 - 1
	}

	return n, nil
}

func (ws weightedSumSpec) ensureValid(parents []string) error {
	if err := ws.ensureValidBase(); err != nil {
		return err
	}
	name := ws.Name
	if *ws.MinVal >= *ws.MaxVal {
		return configf("node %q: min_val %v must be below max_val %v", name, *ws.MinVal, *ws.MaxVal)
	}
	switch ws.CorruptionType {
	case CorruptionIncreasing, CorruptionDecreasing, CorruptionCentered:
	default:
		return configf("node %q: unknown corruption_type %q", name, ws.CorruptionType)
	}
	switch ws.ActivationType {
	case ActivationSigmoid, ActivationTanh:
	default:
		return configf("node %q: unknown activation_type %q", name, ws.ActivationType)
	}
	if *ws.BetaA <= 0 || *ws.BetaB <= 0 {
		return configf("node %q: beta_a and beta_b must be positive", name)
	}
	if *ws.Std <= 0 {
		return configf("node %q: std must be positive", name)
	}
	for _, parent := range parents {
		if _, ok := ws.Defaults[parent]; !ok {
			return configf("node %q: defaults missing entry for parent %q", name, parent)
		}
	}
	return nil
}

// ensureValidBase checks the shared fields and presence of every
// variant-specific scalar, reporting the first missing field by name.
func (ws weightedSumSpec) ensureValidBase() error {
	if err := ws.baseSpec.ensureValid(); err != nil {
		return err
	}
	required := []struct {
		name string
		val  *float64
	}{
		{"min_val", ws.MinVal},
		{"max_val", ws.MaxVal},
		{"extreme", ws.Extreme},
		{"standard", ws.Standard},
		{"beta_a", ws.BetaA},
		{"beta_b", ws.BetaB},
		{"std", ws.Std},
	}
	for _, f := range required {
		if f.val == nil {
			return configf("node %q: missing field %q", ws.Name, f.name)
		}
	}
	if ws.CorruptionType == "" {
		return configf("node %q: missing field %q", ws.Name, "corruption_type")
	}
	if ws.ActivationType == "" {
		return configf("node %q: missing field %q", ws.Name, "activation_type")
	}
	return nil
}

// resolveBias interprets the bias field: a number is used verbatim,
// true or "random" draws the noise mean once from N(0,1), absent means
// zero. The resolved number is what Spec persists.
func resolveBias(node yaml.Node, name string, rng *rand.Rand) (float64, error) {
	if node.IsZero() {
		return 0, nil
	}
	var f float64
	if err := node.Decode(&f); err == nil {
		return f, nil
	}
	var b bool
	if err := node.Decode(&b); err == nil {
		if b {
			return rng.NormFloat64(), nil
		}
		return 0, nil
	}
	var s string
	if err := node.Decode(&s); err == nil && s == "random" {
		return rng.NormFloat64(), nil
	}
	return 0, configf("node %q: bias must be a number, boolean, or \"random\"", name)
}

func (n *WeightedSumNode) Type() string { return TypeWeightedSum }

// Sample takes the weighted combination of parent severities (falling
// back to the configured default for any parent not present in the
// pass), adds Gaussian noise, squashes the total to a quantile, and
// maps it through the node's Beta distribution onto [min_val, max_val].
func (n *WeightedSumNode) Sample(rng *rand.Rand, parents map[string]Outcome) (float64, float64, error) {
	total := 0.0
	for _, parent := range n.parents {
		var severity float64
		if out, ok := parents[parent]; ok {
			severity = out.Severity
		} else if def, ok := n.defaults[parent]; ok {
			severity = def
		} else {
			return 0, 0, validationf("node %q: no sample or default for parent %q", n.name, parent)
		}
		total += n.weights[parent] * severity
	}
	total += rng.NormFloat64()*n.std + n.bias

	quantile := n.activate(total)
	unit := distuv.Beta{Alpha: n.betaA, Beta: n.betaB}.Quantile(quantile)
	render := n.minVal + unit*(n.maxVal-n.minVal)

	severity, err := n.SeverityFromRender(render)
	if err != nil {
		return 0, 0, err
	}
	return severity, render, nil
}

func (n *WeightedSumNode) activate(x float64) float64 {
	switch n.activationType {
	case ActivationTanh:
		return (math.Tanh(x) + 1) / 2
	default:
		return 1 / (1 + math.Exp(-x))
	}
}

func (n *WeightedSumNode) SeverityFromRender(render float64) (float64, error) {
	span := n.maxVal - n.minVal
	switch n.corruptionType {
	case CorruptionIncreasing:
		return (render - n.minVal) / span, nil
	case CorruptionDecreasing:
		return (n.maxVal - render) / span, nil
	case CorruptionCentered:
		maxDistance := math.Max(math.Abs(n.maxVal-n.standard), math.Abs(n.minVal-n.standard))
		return math.Abs(render-n.standard) / maxDistance, nil
	}
	return 0, validationf("node %q: unknown corruption_type %q", n.name, n.corruptionType)
}

// RenderFromSeverity inverts SeverityFromRender. For the centered type
// the inverse is two-valued; the deterministic choice here is the side
// of the standard value that the extreme lies on.
func (n *WeightedSumNode) RenderFromSeverity(severity float64) (float64, error) {
	span := n.maxVal - n.minVal
	switch n.corruptionType {
	case CorruptionIncreasing:
		return n.minVal + severity*span, nil
	case CorruptionDecreasing:
		return n.minVal + (1-severity)*span, nil
	case CorruptionCentered:
		maxDistance := math.Max(math.Abs(n.maxVal-n.standard), math.Abs(n.minVal-n.standard))
		side := 1.0
		if n.extreme < n.standard {
			side = -1.0
		}
		return n.standard + side*severity*maxDistance, nil
	}
	return 0, validationf("node %q: unknown corruption_type %q", n.name, n.corruptionType)
}

func (n *WeightedSumNode) Spec() any {
	return savedWeightedSumSpec{
		baseSpec: baseSpec{
			Name:           n.name,
			Type:           TypeWeightedSum,
			CorruptionFunc: n.corruptionFunc,
			Parameter:      n.parameter,
			Defaults:       n.defaults,
			Intervene:      n.intervene,
		},
		MinVal:         n.minVal,
		MaxVal:         n.maxVal,
		Extreme:        n.extreme,
		Standard:       n.standard,
		BetaA:          n.betaA,
		BetaB:          n.betaB,
		CorruptionType: n.corruptionType,
		Bias:           n.bias,
		Std:            n.std,
		ActivationType: n.activationType,
		EdgeWeights:    n.weights,
	}
}
