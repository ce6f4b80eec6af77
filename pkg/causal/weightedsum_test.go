package causal_test

import (
	"errors"
	"math"
	"strings"
	"testing"

	"scmgen/pkg/causal"
)

// conversionConfig declares one weighted-sum node per corruption type,
// all fed directly by the root.
const conversionConfig = `
dag_generation_method: CustomDAG
edge_list:
  - [root, inc]
  - [root, dec]
  - [root, cen]
node_list:
  - name: inc
    type: WeightedSumNode
    corruption_func: noise
    parameter: amount
    min_val: 0.0
    max_val: 1.0
    extreme: 1.0
    standard: 0.0
    beta_a: 2.0
    beta_b: 2.0
    corruption_type: increasing
    std: 1.0
    activation_type: sigmoid
  - name: dec
    type: WeightedSumNode
    corruption_func: defocus
    parameter: f_stop
    min_val: 0.5
    max_val: 128.0
    extreme: 0.5
    standard: 128.0
    beta_a: 2.0
    beta_b: 5.0
    corruption_type: decreasing
    std: 1.0
    activation_type: sigmoid
  - name: cen
    type: WeightedSumNode
    corruption_func: bright_contrast
    parameter: bright
    min_val: -50.0
    max_val: 80.0
    extreme: 80.0
    standard: 0.0
    beta_a: 1.0
    beta_b: 1.0
    corruption_type: centered
    std: 1.0
    activation_type: tanh
`

func TestWeightedSum_ConversionInverseLaw(t *testing.T) {
	m := buildFromYAML(t, conversionConfig, 11)

	const tolerance = 1e-9
	for _, name := range []string{"inc", "dec", "cen"} {
		node, ok := m.NodeByName(name)
		if !ok {
			t.Fatalf("node %q missing", name)
		}
		for s := 0.0; s <= 1.0+tolerance; s += 0.05 {
			render, err := node.RenderFromSeverity(s)
			if err != nil {
				t.Fatalf("%s RenderFromSeverity(%v): %v", name, s, err)
			}
			back, err := node.SeverityFromRender(render)
			if err != nil {
				t.Fatalf("%s SeverityFromRender(%v): %v", name, render, err)
			}
			if math.Abs(back-s) > tolerance {
				t.Errorf("%s: round trip of severity %v gave %v", name, s, back)
			}
		}
	}
}

func TestWeightedSum_SampleWithinBounds(t *testing.T) {
	m := buildFromYAML(t, conversionConfig, 11)

	for seed := uint64(0); seed < 50; seed++ {
		got, err := m.Sample(rngOf(seed), nil)
		if err != nil {
			t.Fatalf("Sample(seed %d): %v", seed, err)
		}
		for name, out := range got {
			if out.Severity < 0 || out.Severity > 1 {
				t.Errorf("seed %d node %s: severity %v outside [0,1]", seed, name, out.Severity)
			}
		}
	}
}

func TestWeightedSum_DefaultForAbsentParent(t *testing.T) {
	m := buildFromYAML(t, chainConfig, 3)
	node, _ := m.NodeByName("D")

	// Sampling the node directly with no parent outcomes must fall back
	// to the configured default severity for G.
	severity, render, err := node.Sample(rngOf(1), nil)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if severity < 0 || severity > 1 {
		t.Errorf("severity %v outside [0,1]", severity)
	}
	if render < 0 || render > 100 {
		t.Errorf("render %v outside [min_val, max_val]", render)
	}
}

func TestWeightedSum_MissingDefaultForParent(t *testing.T) {
	doc := strings.Replace(chainConfig, "    defaults:\n      G: 0.0\n", "", 1)
	cfg, err := causal.ParseConfig(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	_, err = causal.Build(cfg, rngOf(1))
	if !errors.Is(err, causal.ErrConfig) || !strings.Contains(err.Error(), `"G"`) {
		t.Fatalf("Build error = %v, want defaults complaint naming G", err)
	}
}

func TestWeightedSum_BiasForms(t *testing.T) {
	cases := []struct {
		name string
		bias string
	}{
		{"absent", ""},
		{"numeric", "    bias: 0.75\n"},
		{"boolean", "    bias: true\n"},
		{"random", "    bias: random\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := strings.Replace(chainConfig, "    std: 1.0\n", "    std: 1.0\n"+tc.bias, 1)
			m := buildFromYAML(t, doc, 13)
			if _, err := m.Sample(rngOf(2), nil); err != nil {
				t.Fatalf("Sample: %v", err)
			}
		})
	}

	doc := strings.Replace(chainConfig, "    std: 1.0\n", "    std: 1.0\n    bias: {a: 1}\n", 1)
	cfg, err := causal.ParseConfig(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	_, err = causal.Build(cfg, rngOf(1))
	if !errors.Is(err, causal.ErrConfig) || !strings.Contains(err.Error(), "bias") {
		t.Fatalf("Build error = %v, want bias complaint", err)
	}
}

func TestWeightedSum_RandomBiasResolvedAtBuild(t *testing.T) {
	doc := strings.Replace(conversionConfig, "std: 1.0\n    activation_type: sigmoid\n  - name: dec",
		"std: 1.0\n    bias: random\n    activation_type: sigmoid\n  - name: dec", 1)

	a := buildFromYAML(t, doc, 21)
	b := buildFromYAML(t, doc, 21)

	// Same build seed resolves the same bias, so sampling matches.
	sa, err := a.Sample(rngOf(3), nil)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	sb, err := b.Sample(rngOf(3), nil)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if sa["inc"] != sb["inc"] {
		t.Errorf("same build seed, different outcomes: %+v vs %+v", sa["inc"], sb["inc"])
	}
}

func TestWeightedSum_ParameterValidation(t *testing.T) {
	cases := []struct {
		name    string
		patch   func(string) string
		mention string
	}{
		{
			name:    "min above max",
			patch:   func(s string) string { return strings.Replace(s, "max_val: 100.0", "max_val: -1.0", 1) },
			mention: "min_val",
		},
		{
			name:    "bad corruption type",
			patch:   func(s string) string { return strings.Replace(s, "corruption_type: increasing", "corruption_type: sideways", 1) },
			mention: "sideways",
		},
		{
			name:    "bad activation",
			patch:   func(s string) string { return strings.Replace(s, "activation_type: sigmoid", "activation_type: relu", 1) },
			mention: "relu",
		},
		{
			name:    "nonpositive beta",
			patch:   func(s string) string { return strings.Replace(s, "beta_a: 2.0", "beta_a: 0.0", 1) },
			mention: "beta",
		},
		{
			name:    "nonpositive std",
			patch:   func(s string) string { return strings.Replace(s, "std: 1.0", "std: 0.0", 1) },
			mention: "std",
		},
		{
			name:    "missing extreme",
			patch:   func(s string) string { return strings.Replace(s, "    extreme: 100.0\n", "", 1) },
			mention: "extreme",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := causal.ParseConfig(strings.NewReader(tc.patch(chainConfig)))
			if err != nil {
				t.Fatalf("ParseConfig: %v", err)
			}
			_, err = causal.Build(cfg, rngOf(1))
			if err == nil || !strings.Contains(err.Error(), tc.mention) {
				t.Fatalf("Build error = %v, want mention of %q", err, tc.mention)
			}
		})
	}
}
