package causal

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Wrapper owns an ordered collection of independently built models and
// forwards sampling, intervention, and persistence calls across all of
// them. Node names must be globally unique across the wrapped models,
// so merged results cannot collide.
type Wrapper struct {
	models []*Model
	owner  map[string]int // node name -> index into models
}

// NewWrapper wraps the given models in order. It returns
// ErrNameConflict if any two models share a node name.
func NewWrapper(models ...*Model) (*Wrapper, error) {
	w := &Wrapper{models: models, owner: make(map[string]int)}
	for i, m := range models {
		for _, name := range m.Names() {
			if j, ok := w.owner[name]; ok {
				return nil, fmt.Errorf("%w: %q appears in models %d and %d", ErrNameConflict, name, j, i)
			}
			w.owner[name] = i
		}
	}
	return w, nil
}

// BuildWrapper builds one model per config, sharing the random source
// across builds in order, then wraps them.
func BuildWrapper(cfgs []*Config, rng *rand.Rand, opts ...BuildOption) (*Wrapper, error) {
	models := make([]*Model, 0, len(cfgs))
	for _, cfg := range cfgs {
		m, err := Build(cfg, rng, opts...)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return NewWrapper(models...)
}

// Models returns the wrapped models in order.
func (w *Wrapper) Models() []*Model { return w.models }

// Sample runs one pass over every wrapped model in order, partitioning
// intervene entries by the model owning each named node, and merges the
// per-model results.
func (w *Wrapper) Sample(rng *rand.Rand, intervene map[string]Intervention) (map[string]Outcome, error) {
	parts := make([]map[string]Intervention, len(w.models))
	for name, iv := range intervene {
		i, ok := w.owner[name]
		if !ok {
			return nil, validationf("intervention names node %q not in any wrapped model", name)
		}
		if parts[i] == nil {
			parts[i] = make(map[string]Intervention)
		}
		parts[i][name] = iv
	}

	merged := make(map[string]Outcome)
	for i, m := range w.models {
		results, err := m.Sample(rng, parts[i])
		if err != nil {
			return nil, err
		}
		for name, out := range results {
			merged[name] = out
		}
	}
	return merged, nil
}

// wrapperManifest lists the saved per-model files in order.
type wrapperManifest struct {
	Models []string `yaml:"models"`
}

const manifestName = "wrapper.yaml"

// Save writes each wrapped model to dag_<i>.yaml under dir, plus a
// wrapper.yaml manifest recording the order.
func (w *Wrapper) Save(dir string, opts ...SaveOption) error {
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		return serializationf("%s exists and is not a directory", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return serializationf("create %s: %v", dir, err)
	}

	manifest := wrapperManifest{Models: make([]string, len(w.models))}
	for i, m := range w.models {
		name := fmt.Sprintf("dag_%d.yaml", i)
		if err := m.Save(filepath.Join(dir, name), opts...); err != nil {
			return err
		}
		manifest.Models[i] = name
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return serializationf("marshal wrapper manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestName), data, 0o644); err != nil {
		return serializationf("write wrapper manifest: %v", err)
	}
	return nil
}

// LoadWrapper reconstructs a wrapper from a directory produced by Save,
// loading the models in manifest order.
func LoadWrapper(dir string, rng *rand.Rand, opts ...BuildOption) (*Wrapper, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return nil, serializationf("read wrapper manifest in %s: %v", dir, err)
	}
	var manifest wrapperManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, serializationf("parse wrapper manifest in %s: %v", dir, err)
	}

	models := make([]*Model, 0, len(manifest.Models))
	for _, name := range manifest.Models {
		m, err := Load(filepath.Join(dir, name), rng, opts...)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return NewWrapper(models...)
}
