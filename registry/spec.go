package registry

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Decode decodes spec into out, a pointer to a struct with `spec` tags.
// Unknown keys are rejected. Scalars are converted to the field type, so an
// unquoted 123 fills a string field. Errors wrap ErrInvalidSpec.
func (s Spec) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "spec",
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create spec decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(s)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	return nil
}

// Clone returns a deep copy of the spec's maps and slices.
func (s Spec) Clone() Spec {
	if s == nil {
		return nil
	}
	return cloneValue(map[string]any(s)).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}
