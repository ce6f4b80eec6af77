package causal

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is returned for malformed or incomplete configuration:
	// unknown node type or generation method, missing required field,
	// or a name collision across wrapped models.
	ErrConfig = errors.New("causal: invalid configuration")

	// ErrGraph is returned when the selected nodes and edges violate
	// the DAG invariant (cycle, dangling edge, node without parents).
	ErrGraph = errors.New("causal: graph invariant violated")

	// ErrValidation is returned when a sampled or intervened value is
	// out of range, or an intervention names a node not in the model.
	ErrValidation = errors.New("causal: validation failed")

	// ErrSerialization is returned when save or load encounters an
	// unreadable or inconsistent file.
	ErrSerialization = errors.New("causal: serialization failed")

	// ErrNameConflict is returned when two wrapped models share a node
	// name. It unwraps to ErrConfig.
	ErrNameConflict = fmt.Errorf("%w: node name conflict", ErrConfig)
)

func configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

func graphf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrGraph, fmt.Sprintf(format, args...))
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func serializationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSerialization, fmt.Sprintf(format, args...))
}
