package manifest

import (
	"fmt"
	"regexp"

	"github.com/blackwell-systems/gcp-module-project/registry"
)

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// ValidationResult collects every problem found in a manifest.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

func (r *ValidationResult) addError(format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks the manifest against a registry: resource names are valid
// and unique, modules are registered, references point at earlier
// resources, and specs without references pass the module's offline checks.
func Validate(m *Manifest, reg *registry.Registry) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if m.Version != "" {
		if err := reg.Require(m.Version); err != nil {
			result.addError("manifest version: %v", err)
		}
	}
	if len(m.Resources) == 0 {
		result.addWarning("manifest declares no resources")
	}

	seen := make(map[string]int, len(m.Resources))
	for i, res := range m.Resources {
		where := fmt.Sprintf("resources[%d]", i)
		if res.Name != "" {
			where = fmt.Sprintf("resource %q", res.Name)
		}

		if err := validateName(res.Name); err != nil {
			result.addError("%s: %v", where, err)
		} else if prev, dup := seen[res.Name]; dup {
			result.addError("%s: duplicate name (also resources[%d])", where, prev)
		} else {
			seen[res.Name] = i
		}

		refs := res.Refs()
		for _, ref := range refs {
			if ref == res.Name {
				result.addError("%s: refers to itself", where)
				continue
			}
			if _, ok := seen[ref]; !ok {
				result.addError("%s: reference %q must name an earlier resource", where, ref)
			}
		}

		if res.Module == "" {
			result.addError("%s: module is required", where)
			continue
		}
		entry, err := reg.Lookup(res.Module)
		if err != nil {
			result.addError("%s: %v", where, err)
			continue
		}
		if entry.Validate == nil {
			continue
		}
		if len(refs) > 0 {
			result.addWarning("%s: spec has references, checked at run time", where)
			continue
		}
		if err := entry.Validate(res.RegistrySpec()); err != nil {
			result.addError("%s: %v", where, err)
		}
	}

	return result
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid name %q (lowercase letters, digits, '-' and '_', starting with a letter)", name)
	}
	return nil
}
