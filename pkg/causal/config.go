package causal

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Edge is a directed (parent, child) pair. In YAML it is a two-element
// flow sequence: [parent_name, child_name].
type Edge [2]string

// Parent returns the edge's source node name.
func (e Edge) Parent() string { return e[0] }

// Child returns the edge's target node name.
func (e Edge) Child() string { return e[1] }

func (e Edge) String() string { return fmt.Sprintf("%s->%s", e[0], e[1]) }

// sampledValue is the per-node entry of a saved last_sample block.
type sampledValue struct {
	Severity float64 `yaml:"severity_value"`
	Render   float64 `yaml:"render_value"`
}

// Config is the structured description of one graph: a generation
// method, the candidate edges and nodes, and, for files produced by
// Save, the loadable marker, build seed, and optional last sample.
type Config struct {
	Method     string                  `yaml:"dag_generation_method"`
	EdgeList   []Edge                  `yaml:"edge_list"`
	NodeList   []NodeSpec              `yaml:"node_list"`
	Loadable   bool                    `yaml:"loadable,omitempty"`
	Seed       *uint64                 `yaml:"seed,omitempty"`
	LastSample map[string]sampledValue `yaml:"last_sample,omitempty"`
}

// ParseConfig decodes a config document. Unknown top-level keys are
// rejected; unknown per-node keys are variant parameters and are left
// for the node factories to interpret.
func ParseConfig(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, serializationf("parse config: %v", err)
	}
	if cfg.Method == "" {
		return nil, configf("config must contain \"dag_generation_method\"")
	}
	return &cfg, nil
}

// LoadConfig reads and decodes a config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, serializationf("read config %s: %v", path, err)
	}
	cfg, err := ParseConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w (file %s)", err, path)
	}
	return cfg, nil
}
