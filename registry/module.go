package registry

import (
	"context"

	"github.com/blackwell-systems/gcp-module-project/cloud"
)

// Spec is the desired state of a single resource as declared by the host.
// Each module decodes the keys it understands and rejects the rest.
type Spec map[string]any

// Action describes what an operation did, or would do, to a resource.
type Action string

const (
	ActionNone   Action = "none"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// State is the observed state of a resource.
type State struct {
	// Name is the canonical resource name, e.g. "projects/my-project".
	Name string
	// Exists reports whether the resource is present and active.
	Exists bool
	// Attributes holds module-specific observed values in display form.
	Attributes map[string]string
}

// Result is returned by converging operations.
type Result struct {
	Action Action
	// Changes lists the attributes that differ from the desired state.
	Changes []string
	State   *State
}

// Module is the capability contract every registered implementation satisfies.
//
// Sync and Delete must be idempotent: repeating a call with the same Spec
// converges to the same end state and reports ActionNone. Errors must be
// *OperationError values (see Wrap, Transient and Permanent).
type Module interface {
	// Identity returns the canonical name of the resource the spec refers to.
	Identity(ctx context.Context, spec Spec) (string, error)
	// Read returns the current state of the resource.
	Read(ctx context.Context, spec Spec) (*State, error)
	// Sync creates the resource if absent and updates it if it drifted.
	Sync(ctx context.Context, spec Spec) (*Result, error)
	// Delete tears the resource down.
	Delete(ctx context.Context, spec Spec) (*Result, error)
}

// Planner is implemented by modules that can report what Sync would do
// without applying it.
type Planner interface {
	Plan(ctx context.Context, spec Spec) (*Result, error)
}

// Constructor builds a module around the cloud services supplied by the host.
type Constructor func(svc *cloud.Services) (Module, error)

// Entry is a registered module implementation.
type Entry struct {
	// ID is the stable identifier hosts use for discovery.
	ID string
	// Name is the exported implementation name.
	Name        string
	Description string
	New         Constructor
	// Validate checks a spec without contacting the cloud. Optional.
	Validate func(Spec) error
}
