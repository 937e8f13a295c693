package gcpmodule

import (
	"fmt"

	"github.com/blackwell-systems/gcp-module-project/modules/admin"
	"github.com/blackwell-systems/gcp-module-project/modules/organization"
	"github.com/blackwell-systems/gcp-module-project/modules/project"
	"github.com/blackwell-systems/gcp-module-project/registry"
)

// Version is the version of the module catalog.
const Version = "0.0.30"

// Release records which modules a catalog version shipped.
type Release struct {
	Version string
	Modules []string
}

// releases is append-only; the last entry must match Version.
var releases = []Release{
	{Version: "0.0.17", Modules: []string{project.ID, organization.ID}},
	{Version: "0.0.30", Modules: []string{project.ID, organization.ID, admin.ID}},
}

// entries returns the compiled-in module entries.
func entries() []registry.Entry {
	return []registry.Entry{
		project.Entry(),
		organization.Entry(),
		admin.Entry(),
	}
}

// New builds the registry for the current catalog version.
func New() *registry.Registry {
	return registry.MustNew(Version, entries()...)
}

// Modules returns the identifier to exported name mapping.
func Modules() map[string]string {
	out := make(map[string]string)
	for _, e := range entries() {
		out[e.ID] = e.Name
	}
	return out
}

// Exports returns the exported implementation names.
func Exports() []string {
	return []string{project.Name, organization.Name, admin.Name}
}

// Releases returns the catalog history, oldest first.
func Releases() []Release {
	out := make([]Release, len(releases))
	for i, r := range releases {
		out[i] = Release{Version: r.Version, Modules: append([]string(nil), r.Modules...)}
	}
	return out
}

// NewRelease builds the registry as it was at the given catalog version.
func NewRelease(version string) (*registry.Registry, error) {
	for _, r := range releases {
		if r.Version != version {
			continue
		}
		byID := make(map[string]registry.Entry)
		for _, e := range entries() {
			byID[e.ID] = e
		}
		selected := make([]registry.Entry, 0, len(r.Modules))
		for _, id := range r.Modules {
			selected = append(selected, byID[id])
		}
		return registry.New(r.Version, selected...)
	}
	return nil, fmt.Errorf("%w: no release %q", registry.ErrInvalidVersion, version)
}
