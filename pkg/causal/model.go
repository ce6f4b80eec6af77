package causal

import (
	"container/heap"
	"math/rand/v2"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Model is a realized causal DAG: the selected nodes and edges plus a
// topological order computed once at build and reused by every
// sampling pass. Nodes are immutable after construction; Sample
// returns fresh results and only replaces the model's last-sample
// snapshot, so concurrent callers should Clone a built model rather
// than share one instance.
type Model struct {
	method string
	nodes  []Node // declaration order
	index  map[string]Node
	edges  []Edge
	order  []string // cached topological order, root excluded
	last   map[string]Outcome
	seed   *uint64
}

type builder struct {
	nodes      *NodeRegistry
	generators *GeneratorRegistry
	seed       *uint64
}

// BuildOption configures model construction.
type BuildOption func(*builder)

// WithNodeRegistry substitutes the node variant registry used during
// construction. Defaults to NewNodeRegistry().
func WithNodeRegistry(r *NodeRegistry) BuildOption {
	return func(b *builder) { b.nodes = r }
}

// WithGeneratorRegistry substitutes the generation strategy registry.
// Defaults to NewGeneratorRegistry().
func WithGeneratorRegistry(r *GeneratorRegistry) BuildOption {
	return func(b *builder) { b.generators = r }
}

// WithSeed records the seed the caller used for the build rng. Save
// persists it so Load can reconstruct an equivalent random source.
func WithSeed(seed uint64) BuildOption {
	return func(b *builder) { s := seed; b.seed = &s }
}

// Build realizes a model from a config: the generation strategy picks
// nodes and edges, the node registry instantiates and validates each
// node, and the DAG invariant (no cycles, no dangling references,
// every node reachable from the root) is enforced before the
// topological order is cached.
func Build(cfg *Config, rng *rand.Rand, opts ...BuildOption) (*Model, error) {
	b := builder{nodes: NewNodeRegistry(), generators: NewGeneratorRegistry()}
	for _, opt := range opts {
		opt(&b)
	}

	gen, err := b.generators.New(cfg.Method)
	if err != nil {
		return nil, err
	}
	if err := gen.EnsureValid(cfg); err != nil {
		return nil, err
	}
	specs, edges, err := gen.Select(cfg)
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return nil, graphf("no edges in the graph")
	}

	declared := make(map[string]int, len(specs))
	for i, spec := range specs {
		declared[spec.Base.Name] = i
	}
	for _, edge := range edges {
		for _, end := range []string{edge.Parent(), edge.Child()} {
			if end == RootName {
				continue
			}
			if _, ok := declared[end]; !ok {
				return nil, graphf("edge %s references node %q not in the selection", edge, end)
			}
		}
		if edge.Child() == RootName {
			return nil, graphf("edge %s targets the root", edge)
		}
	}

	parents := parentsByChild(edges)
	m := &Model{
		method: cfg.Method,
		nodes:  make([]Node, 0, len(specs)),
		index:  make(map[string]Node, len(specs)),
		edges:  edges,
		seed:   b.seed,
	}
	for _, spec := range specs {
		name := spec.Base.Name
		if len(parents[name]) == 0 {
			return nil, graphf("node %q has no incoming edge", name)
		}
		node, err := b.nodes.New(spec, withoutRoot(parents[name]), rng)
		if err != nil {
			return nil, err
		}
		m.nodes = append(m.nodes, node)
		m.index[name] = node
	}

	order, err := topoOrder(specs, edges, declared)
	if err != nil {
		return nil, err
	}
	m.order = order

	if cfg.LastSample != nil {
		m.last = make(map[string]Outcome, len(cfg.LastSample))
		for name, v := range cfg.LastSample {
			node, ok := m.index[name]
			if !ok {
				return nil, serializationf("last_sample references unknown node %q", name)
			}
			m.last[name] = Outcome{
				Severity:       v.Severity,
				Render:         v.Render,
				CorruptionFunc: node.CorruptionFunc(),
				Parameter:      node.Parameter(),
			}
		}
	}

	return m, nil
}

// parentsByChild collects each child's parents in edge order, without
// duplicates. The root is kept so callers can tell "fed by root" from
// "no incoming edge at all".
func parentsByChild(edges []Edge) map[string][]string {
	out := make(map[string][]string)
	for _, edge := range edges {
		seen := false
		for _, p := range out[edge.Child()] {
			if p == edge.Parent() {
				seen = true
				break
			}
		}
		if !seen {
			out[edge.Child()] = append(out[edge.Child()], edge.Parent())
		}
	}
	return out
}

func withoutRoot(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != RootName {
			out = append(out, n)
		}
	}
	return out
}

// indexHeap is a min-heap of declaration indices: Kahn's ready queue
// with a deterministic tie-break, so a model's order is identical every
// time the same config is built.
type indexHeap []int

func (h indexHeap) Len() int            { return len(h) }
func (h indexHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)         { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrder runs Kahn's algorithm over the non-root nodes. Edges from
// the root impose no ordering constraint (the root is always
// available), so only in-DAG parents contribute in-degree.
func topoOrder(specs []NodeSpec, edges []Edge, declared map[string]int) ([]string, error) {
	n := len(specs)
	indeg := make([]int, n)
	children := make([][]int, n)
	for _, edge := range edges {
		if edge.Parent() == RootName {
			continue
		}
		p, c := declared[edge.Parent()], declared[edge.Child()]
		children[p] = append(children[p], c)
		indeg[c]++
	}

	ready := &indexHeap{}
	heap.Init(ready)
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			heap.Push(ready, i)
		}
	}

	order := make([]string, 0, n)
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		order = append(order, specs[i].Base.Name)
		for _, c := range children[i] {
			indeg[c]--
			if indeg[c] == 0 {
				heap.Push(ready, c)
			}
		}
	}

	if len(order) < n {
		var stuck []string
		for i := 0; i < n; i++ {
			if indeg[i] > 0 {
				stuck = append(stuck, specs[i].Base.Name)
			}
		}
		sort.Strings(stuck)
		return nil, graphf("cycle detected among nodes %v", stuck)
	}
	return order, nil
}

// Sample performs one topological pass, sampling every node and
// applying intervention overrides. Per-call entries in intervene take
// precedence over overrides baked into a node's config. The underlying
// sampling call still runs for intervened nodes so the random stream
// advances identically with and without interventions.
//
// On error the model's last-sample snapshot from the previous
// successful pass is left untouched.
func (m *Model) Sample(rng *rand.Rand, intervene map[string]Intervention) (map[string]Outcome, error) {
	for name, iv := range intervene {
		if _, ok := m.index[name]; !ok {
			return nil, validationf("intervention names node %q not in the model", name)
		}
		if err := iv.validate(name); err != nil {
			return nil, err
		}
	}

	results := make(map[string]Outcome, len(m.order))
	for _, name := range m.order {
		node := m.index[name]

		severity, render, err := node.Sample(rng, results)
		if err != nil {
			return nil, err
		}

		override := node.Intervention()
		if iv, ok := intervene[name]; ok {
			override = &iv
		}
		if override != nil {
			severity, render, err = applyIntervention(node, *override)
			if err != nil {
				return nil, err
			}
		}

		if severity < 0 || severity > 1 {
			return nil, validationf("node %q: severity_value %v outside [0,1]", name, severity)
		}
		results[name] = Outcome{
			Severity:       severity,
			Render:         render,
			CorruptionFunc: node.CorruptionFunc(),
			Parameter:      node.Parameter(),
		}
	}

	m.last = results
	return results, nil
}

// applyIntervention fixes the overridden field exactly and derives the
// other through the node's conversion method.
func applyIntervention(node Node, iv Intervention) (severity, render float64, err error) {
	if iv.Severity != nil {
		severity = *iv.Severity
		render, err = node.RenderFromSeverity(severity)
		return severity, render, err
	}
	render = *iv.Render
	severity, err = node.SeverityFromRender(render)
	return severity, render, err
}

// Nodes returns the model's nodes in declaration order.
func (m *Model) Nodes() []Node { return m.nodes }

// NodeByName looks up a node.
func (m *Model) NodeByName(name string) (Node, bool) {
	n, ok := m.index[name]
	return n, ok
}

// Edges returns the model's edge list.
func (m *Model) Edges() []Edge { return m.edges }

// Order returns the cached topological order (root excluded).
func (m *Model) Order() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// LastSample returns a copy of the most recent successful pass, or nil
// if the model has not been sampled.
func (m *Model) LastSample() map[string]Outcome {
	if m.last == nil {
		return nil
	}
	out := make(map[string]Outcome, len(m.last))
	for k, v := range m.last {
		out[k] = v
	}
	return out
}

// Names returns the node names in declaration order.
func (m *Model) Names() []string {
	out := make([]string, len(m.nodes))
	for i, n := range m.nodes {
		out[i] = n.Name()
	}
	return out
}

// Clone returns an independent model sharing the immutable nodes but
// owning its own last-sample state. Cloning a built model is the
// intended way to sample concurrently.
func (m *Model) Clone() *Model {
	c := &Model{
		method: m.method,
		nodes:  make([]Node, len(m.nodes)),
		index:  make(map[string]Node, len(m.index)),
		edges:  make([]Edge, len(m.edges)),
		order:  make([]string, len(m.order)),
		seed:   m.seed,
	}
	copy(c.nodes, m.nodes)
	copy(c.edges, m.edges)
	copy(c.order, m.order)
	for k, v := range m.index {
		c.index[k] = v
	}
	if m.last != nil {
		c.last = make(map[string]Outcome, len(m.last))
		for k, v := range m.last {
			c.last[k] = v
		}
	}
	return c
}

// savedConfig is the on-disk form emitted by Save. It matches the
// input config shape, with node_list entries carrying the full
// reconstruction parameters from each node's Spec.
type savedConfig struct {
	Method     string                  `yaml:"dag_generation_method"`
	Loadable   bool                    `yaml:"loadable"`
	Seed       *uint64                 `yaml:"seed,omitempty"`
	EdgeList   []Edge                  `yaml:"edge_list"`
	NodeList   []any                   `yaml:"node_list"`
	LastSample map[string]sampledValue `yaml:"last_sample,omitempty"`
}

type saveState struct {
	withLast bool
}

// SaveOption configures Save.
type SaveOption func(*saveState)

// WithLastSample also persists the most recent sampled values, so the
// loaded model starts with the same LastSample snapshot.
func WithLastSample() SaveOption {
	return func(s *saveState) { s.withLast = true }
}

// Save serializes the model so Load can reconstruct an identical,
// ready-to-sample copy. The generation method is pinned to CustomDAG
// so the reload realizes exactly these nodes and edges regardless of
// the strategy that originally selected them.
func (m *Model) Save(path string, opts ...SaveOption) error {
	var st saveState
	for _, opt := range opts {
		opt(&st)
	}

	out := savedConfig{
		Method:   MethodCustomDAG,
		Loadable: true,
		Seed:     m.seed,
		EdgeList: m.edges,
		NodeList: make([]any, len(m.nodes)),
	}
	for i, node := range m.nodes {
		out.NodeList[i] = node.Spec()
	}
	if st.withLast && m.last != nil {
		out.LastSample = make(map[string]sampledValue, len(m.last))
		for name, o := range m.last {
			out.LastSample[name] = sampledValue{Severity: o.Severity, Render: o.Render}
		}
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return serializationf("marshal model: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return serializationf("write %s: %v", path, err)
	}
	return nil
}

// Load reconstructs a model from a file produced by Save. If rng is
// nil, the random source is derived from the seed recorded in the
// file; round trips are exact on structure and parameters either way,
// because saved specs carry their construction-time draws (edge
// weights, resolved bias).
func Load(path string, rng *rand.Rand, opts ...BuildOption) (*Model, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if !cfg.Loadable {
		return nil, serializationf("%s was not produced by Save (missing loadable marker)", path)
	}
	if cfg.Method != MethodCustomDAG {
		return nil, serializationf("%s: loadable configs must use %s, got %q", path, MethodCustomDAG, cfg.Method)
	}
	if rng == nil {
		if cfg.Seed == nil {
			return nil, serializationf("%s records no seed; pass an explicit random source", path)
		}
		rng = rand.New(rand.NewPCG(*cfg.Seed, *cfg.Seed))
	}
	if cfg.Seed != nil {
		opts = append(opts, WithSeed(*cfg.Seed))
	}
	return Build(cfg, rng, opts...)
}
