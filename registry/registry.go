package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/mod/semver"
)

// Registry errors
var (
	ErrInvalidEntry    = errors.New("invalid module entry")
	ErrDuplicateModule = errors.New("module already registered")
	ErrInvalidVersion  = errors.New("invalid registry version")
)

// Registry is an immutable mapping from module identifier to implementation.
type Registry struct {
	version string
	entries map[string]Entry
	order   []string
}

// New builds a registry from the given entries. Identifiers and names must be
// non-empty and unique, every entry needs a constructor, and version must be
// a semantic version such as "0.0.30".
func New(version string, entries ...Entry) (*Registry, error) {
	if !validVersion(version) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	}

	r := &Registry{
		version: version,
		entries: make(map[string]Entry, len(entries)),
		order:   make([]string, 0, len(entries)),
	}
	names := make(map[string]string, len(entries))

	for _, e := range entries {
		switch {
		case strings.TrimSpace(e.ID) == "":
			return nil, fmt.Errorf("%w: identifier is required", ErrInvalidEntry)
		case strings.TrimSpace(e.Name) == "":
			return nil, fmt.Errorf("%w: %s: name is required", ErrInvalidEntry, e.ID)
		case e.New == nil:
			return nil, fmt.Errorf("%w: %s: constructor is required", ErrInvalidEntry, e.ID)
		}
		if _, exists := r.entries[e.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateModule, e.ID)
		}
		if other, exists := names[e.Name]; exists {
			return nil, fmt.Errorf("%w: name %s exported by both %s and %s", ErrDuplicateModule, e.Name, other, e.ID)
		}
		names[e.Name] = e.ID
		r.entries[e.ID] = e
		r.order = append(r.order, e.ID)
	}

	return r, nil
}

// MustNew is like New but panics on error. It is meant for compiled-in
// catalogs where a bad entry is a programming error.
func MustNew(version string, entries ...Entry) *Registry {
	r, err := New(version, entries...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup resolves an identifier to its entry.
func (r *Registry) Lookup(id string) (Entry, error) {
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, &UnknownModuleError{ID: id, Known: r.Identifiers()}
	}
	return e, nil
}

// Identifiers returns all registered identifiers, sorted.
func (r *Registry) Identifiers() []string {
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	sort.Strings(ids)
	return ids
}

// Entries returns the registered entries in registration order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id])
	}
	return out
}

// Modules returns a copy of the identifier to exported name mapping.
func (r *Registry) Modules() map[string]string {
	out := make(map[string]string, len(r.entries))
	for id, e := range r.entries {
		out[id] = e.Name
	}
	return out
}

// Exports returns the exported implementation names, sorted.
func (r *Registry) Exports() []string {
	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Version returns the registry's semantic version.
func (r *Registry) Version() string {
	return r.version
}

// Require checks that the registry is at least version min. Hosts call it
// before invoking any module.
func (r *Registry) Require(min string) error {
	if min == "" {
		return nil
	}
	if !validVersion(min) {
		return fmt.Errorf("%w: %q", ErrInvalidVersion, min)
	}
	if CompareVersions(r.version, min) < 0 {
		return &VersionMismatchError{Have: r.version, Want: min}
	}
	return nil
}

// ValidVersion reports whether v is a semantic version, with or without a
// leading "v".
func ValidVersion(v string) bool {
	return validVersion(v)
}

// CompareVersions compares two semantic versions, returning -1, 0 or +1.
func CompareVersions(a, b string) int {
	return semver.Compare(canonical(a), canonical(b))
}

func validVersion(v string) bool {
	if v == "" {
		return false
	}
	return semver.IsValid(canonical(v))
}

func canonical(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
