package causal

// MethodCustomDAG is the mandatory passthrough generation strategy:
// the realized graph is exactly the config's node_list and edge_list.
const MethodCustomDAG = "CustomDAG"

// Generator selects the concrete nodes and edges that will form one
// model instance. Strategies beyond CustomDAG (random sub-DAGs,
// structural noise) register in a GeneratorRegistry under their
// dag_generation_method name.
type Generator interface {
	// EnsureValid runs strategy-specific structural checks on the
	// config before any node is instantiated.
	EnsureValid(cfg *Config) error

	// Select returns the node specs and edges to realize.
	Select(cfg *Config) ([]NodeSpec, []Edge, error)
}

// CustomDAG returns the config's lists unmodified. It is used whenever
// the experimenter hand-authors the full graph, and is the only method
// Save emits, so saved graphs reload exactly.
type CustomDAG struct{}

// EnsureValid checks that the node list has unique non-root names, that
// every edge endpoint is a declared node (or the root), and that every
// node, root included, appears in at least one edge.
func (CustomDAG) EnsureValid(cfg *Config) error {
	if len(cfg.NodeList) == 0 {
		return configf("config must contain \"node_list\"")
	}
	if len(cfg.EdgeList) == 0 {
		return configf("config must contain \"edge_list\"")
	}

	names := map[string]bool{RootName: true}
	for _, spec := range cfg.NodeList {
		name := spec.Base.Name
		if name == "" {
			return configf("each node in node_list must have a name")
		}
		if name == RootName {
			return configf("%q is reserved and cannot name a node", RootName)
		}
		if names[name] {
			return configf("multiple nodes with name %q", name)
		}
		names[name] = true
	}

	used := make(map[string]bool, len(names))
	for _, edge := range cfg.EdgeList {
		for _, end := range []string{edge.Parent(), edge.Child()} {
			if !names[end] {
				return configf("edge %s references unknown node %q", edge, end)
			}
			used[end] = true
		}
	}
	for name := range names {
		if !used[name] {
			return configf("node %q does not appear in edge_list", name)
		}
	}
	return nil
}

// Select is a deterministic passthrough.
func (CustomDAG) Select(cfg *Config) ([]NodeSpec, []Edge, error) {
	return cfg.NodeList, cfg.EdgeList, nil
}
