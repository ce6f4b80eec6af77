package causal

import (
	"math/rand/v2"
	"sort"
)

// NodeFactory builds a node variant from its config spec. parents are
// the node's parent names in edge order (synthetic root excluded); rng
// is the build-time random source used for construction-time draws
// such as edge weights.
type NodeFactory func(spec NodeSpec, parents []string, rng *rand.Rand) (Node, error)

// NodeRegistry maps a node type name to its factory, so configs can
// instantiate variants without compile-time coupling. The built-in
// variants are pre-registered; Register adds third-party ones.
type NodeRegistry struct {
	factories map[string]NodeFactory
}

// NewNodeRegistry returns a registry with the built-in variants
// (ConstantNode, WeightedSumNode) registered.
func NewNodeRegistry() *NodeRegistry {
	r := &NodeRegistry{factories: make(map[string]NodeFactory)}
	r.Register(TypeConstant, newConstantNode)
	r.Register(TypeWeightedSum, newWeightedSumNode)
	return r
}

// Register adds or replaces a factory under the given type name.
func (r *NodeRegistry) Register(typeName string, factory NodeFactory) {
	r.factories[typeName] = factory
}

// New instantiates and validates the node described by spec.
func (r *NodeRegistry) New(spec NodeSpec, parents []string, rng *rand.Rand) (Node, error) {
	factory, ok := r.factories[spec.Base.Type]
	if !ok {
		return nil, configf("node %q: unknown type %q (registered: %v)",
			spec.Base.Name, spec.Base.Type, r.Types())
	}
	return factory(spec, parents, rng)
}

// Types returns the registered type names, sorted.
func (r *NodeRegistry) Types() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GeneratorFactory builds a DAG generation strategy for a config.
type GeneratorFactory func() Generator

// GeneratorRegistry maps a dag_generation_method name to its strategy
// factory, mirroring NodeRegistry.
type GeneratorRegistry struct {
	factories map[string]GeneratorFactory
}

// NewGeneratorRegistry returns a registry with the built-in CustomDAG
// strategy registered.
func NewGeneratorRegistry() *GeneratorRegistry {
	r := &GeneratorRegistry{factories: make(map[string]GeneratorFactory)}
	r.Register(MethodCustomDAG, func() Generator { return CustomDAG{} })
	return r
}

// Register adds or replaces a strategy under the given method name.
func (r *GeneratorRegistry) Register(method string, factory GeneratorFactory) {
	r.factories[method] = factory
}

// New returns the strategy registered under method.
func (r *GeneratorRegistry) New(method string) (Generator, error) {
	factory, ok := r.factories[method]
	if !ok {
		return nil, configf("unknown dag_generation_method %q (registered: %v)",
			method, r.Methods())
	}
	return factory(), nil
}

// Methods returns the registered method names, sorted.
func (r *GeneratorRegistry) Methods() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
