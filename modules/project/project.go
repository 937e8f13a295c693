// Package project implements the gcp-module-project resource module, which
// converges Cloud Resource Manager projects to a declared display name,
// parent and label set.
package project

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"sort"
	"strings"

	"cloud.google.com/go/resourcemanager/apiv3/resourcemanagerpb"

	"github.com/blackwell-systems/gcp-module-project/cloud"
	"github.com/blackwell-systems/gcp-module-project/internal/logging"
	"github.com/blackwell-systems/gcp-module-project/registry"
)

const (
	// ID is the registry identifier of this module.
	ID = "gcp-module-project"
	// Name is the exported implementation name.
	Name = "Project"
)

var (
	projectIDPattern = regexp.MustCompile(`^[a-z][a-z0-9-]{4,28}[a-z0-9]$`)
	parentPattern    = regexp.MustCompile(`^(organizations|folders)/[0-9]+$`)
	labelKeyPattern  = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,62}$`)
)

// Spec is the desired state of a project.
type Spec struct {
	ProjectID   string            `spec:"project_id"`
	DisplayName string            `spec:"display_name"`
	Parent      string            `spec:"parent"`
	Labels      map[string]string `spec:"labels"`
}

// Project manages projects.
type Project struct {
	projects cloud.ProjectService
}

var (
	_ registry.Module  = (*Project)(nil)
	_ registry.Planner = (*Project)(nil)
)

// New is the registry constructor.
func New(svc *cloud.Services) (registry.Module, error) {
	if svc == nil || svc.Projects == nil {
		return nil, errors.New("project: projects service is required")
	}
	return &Project{projects: svc.Projects}, nil
}

// Entry returns the registry entry for this module.
func Entry() registry.Entry {
	return registry.Entry{
		ID:          ID,
		Name:        Name,
		Description: "Creates, updates and deletes Cloud Resource Manager projects",
		New:         New,
		Validate: func(s registry.Spec) error {
			_, err := decode(s)
			return err
		},
	}
}

func decode(raw registry.Spec) (*Spec, error) {
	var s Spec
	if err := raw.Decode(&s); err != nil {
		return nil, err
	}
	if !projectIDPattern.MatchString(s.ProjectID) {
		return nil, fmt.Errorf("%w: project_id %q must be 6-30 lowercase letters, digits or hyphens, starting with a letter", registry.ErrInvalidSpec, s.ProjectID)
	}
	if s.Parent != "" && !parentPattern.MatchString(s.Parent) {
		return nil, fmt.Errorf("%w: parent %q must be organizations/N or folders/N", registry.ErrInvalidSpec, s.Parent)
	}
	for k := range s.Labels {
		if !labelKeyPattern.MatchString(k) {
			return nil, fmt.Errorf("%w: invalid label key %q", registry.ErrInvalidSpec, k)
		}
	}
	if s.DisplayName == "" {
		s.DisplayName = s.ProjectID
	}
	return &s, nil
}

func (p *Project) Identity(ctx context.Context, raw registry.Spec) (string, error) {
	s, err := decode(raw)
	if err != nil {
		return "", registry.Permanent(ID, "identity", "", err)
	}
	return cloud.ProjectName(s.ProjectID), nil
}

func (p *Project) Read(ctx context.Context, raw registry.Spec) (*registry.State, error) {
	s, err := decode(raw)
	if err != nil {
		return nil, registry.Permanent(ID, "read", "", err)
	}
	current, err := p.get(ctx, s.ProjectID, true)
	if err != nil {
		return nil, registry.Wrap(ID, "read", cloud.ProjectName(s.ProjectID), err)
	}
	if current == nil {
		return &registry.State{Name: cloud.ProjectName(s.ProjectID)}, nil
	}
	return stateOf(current), nil
}

func (p *Project) Plan(ctx context.Context, raw registry.Spec) (*registry.Result, error) {
	s, err := decode(raw)
	if err != nil {
		return nil, registry.Permanent(ID, "plan", "", err)
	}
	current, err := p.get(ctx, s.ProjectID, true)
	if err != nil {
		return nil, registry.Wrap(ID, "plan", cloud.ProjectName(s.ProjectID), err)
	}
	return plan(s, current), nil
}

func (p *Project) Sync(ctx context.Context, raw registry.Spec) (*registry.Result, error) {
	s, err := decode(raw)
	if err != nil {
		return nil, registry.Permanent(ID, "sync", "", err)
	}
	resource := cloud.ProjectName(s.ProjectID)
	logger := logging.FromContext(ctx).With("module", ID, "resource", resource)

	current, err := p.get(ctx, s.ProjectID, true)
	if err != nil {
		return nil, registry.Wrap(ID, "sync", resource, err)
	}
	result := plan(s, current)

	switch {
	case result.Action == registry.ActionNone:
		return result, nil

	case current == nil:
		if s.Parent == "" {
			return nil, registry.Permanent(ID, "sync", resource,
				fmt.Errorf("%w: parent is required to create a project", registry.ErrInvalidSpec))
		}
		logger.Info("Creating project", "parent", s.Parent)
		created, err := p.projects.Create(ctx, &resourcemanagerpb.Project{
			ProjectId:   s.ProjectID,
			DisplayName: s.DisplayName,
			Parent:      s.Parent,
			Labels:      s.Labels,
		})
		if err != nil {
			return nil, registry.Wrap(ID, "sync", resource, fmt.Errorf("failed to create project: %w", err))
		}
		result.State = stateOf(created)
		return result, nil
	}

	if current.GetState() == resourcemanagerpb.Project_DELETE_REQUESTED {
		logger.Info("Restoring project pending deletion")
		if current, err = p.projects.Undelete(ctx, current.GetName()); err != nil {
			return nil, registry.Wrap(ID, "sync", resource, fmt.Errorf("failed to undelete project: %w", err))
		}
	}

	if s.Parent != "" && current.GetParent() != s.Parent {
		logger.Info("Moving project", "from", current.GetParent(), "to", s.Parent)
		if current, err = p.projects.Move(ctx, current.GetName(), s.Parent); err != nil {
			return nil, registry.Wrap(ID, "sync", resource, fmt.Errorf("failed to move project: %w", err))
		}
	}

	if paths := updatePaths(s, current); len(paths) > 0 {
		logger.Info("Updating project", "fields", paths)
		update := &resourcemanagerpb.Project{
			Name:        current.GetName(),
			DisplayName: s.DisplayName,
			Labels:      s.Labels,
		}
		if current, err = p.projects.Update(ctx, update, paths); err != nil {
			return nil, registry.Wrap(ID, "sync", resource, fmt.Errorf("failed to update project: %w", err))
		}
	}

	result.State = stateOf(current)
	return result, nil
}

func (p *Project) Delete(ctx context.Context, raw registry.Spec) (*registry.Result, error) {
	s, err := decode(raw)
	if err != nil {
		return nil, registry.Permanent(ID, "delete", "", err)
	}
	resource := cloud.ProjectName(s.ProjectID)

	current, err := p.get(ctx, s.ProjectID, false)
	if err != nil {
		return nil, registry.Wrap(ID, "delete", resource, err)
	}
	if current == nil {
		return &registry.Result{Action: registry.ActionNone, State: &registry.State{Name: resource}}, nil
	}
	if current.GetState() != resourcemanagerpb.Project_ACTIVE {
		return &registry.Result{Action: registry.ActionNone, State: stateOf(current)}, nil
	}

	logging.FromContext(ctx).Info("Deleting project", "module", ID, "resource", resource)
	if err := p.projects.Delete(ctx, current.GetName()); err != nil {
		return nil, registry.Wrap(ID, "delete", resource, fmt.Errorf("failed to delete project: %w", err))
	}

	state := stateOf(current)
	state.Exists = false
	state.Attributes["state"] = resourcemanagerpb.Project_DELETE_REQUESTED.String()
	return &registry.Result{Action: registry.ActionDelete, State: state}, nil
}

// get returns nil, nil when the project does not exist. With converging set,
// a PermissionDenied answer also counts as absent so that Create reports
// the real failure (AlreadyExists or PermissionDenied).
func (p *Project) get(ctx context.Context, projectID string, converging bool) (*resourcemanagerpb.Project, error) {
	current, err := p.projects.Get(ctx, projectID)
	if cloud.IsNotFound(err) || (converging && cloud.IsAbsent(err)) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return current, nil
}

func plan(s *Spec, current *resourcemanagerpb.Project) *registry.Result {
	if current == nil {
		return &registry.Result{
			Action:  registry.ActionCreate,
			Changes: []string{"project"},
			State:   &registry.State{Name: cloud.ProjectName(s.ProjectID)},
		}
	}

	var changes []string
	if current.GetState() == resourcemanagerpb.Project_DELETE_REQUESTED {
		changes = append(changes, "state")
	}
	if s.Parent != "" && current.GetParent() != s.Parent {
		changes = append(changes, "parent")
	}
	changes = append(changes, updatePaths(s, current)...)

	action := registry.ActionNone
	if len(changes) > 0 {
		action = registry.ActionUpdate
	}
	return &registry.Result{Action: action, Changes: changes, State: stateOf(current)}
}

// updatePaths returns the field mask paths that differ. Labels are only
// managed when the spec declares them.
func updatePaths(s *Spec, current *resourcemanagerpb.Project) []string {
	var paths []string
	if current.GetDisplayName() != s.DisplayName {
		paths = append(paths, "display_name")
	}
	if s.Labels != nil && !labelsEqual(current.GetLabels(), s.Labels) {
		paths = append(paths, "labels")
	}
	return paths
}

func labelsEqual(a, b map[string]string) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return maps.Equal(a, b)
}

func stateOf(p *resourcemanagerpb.Project) *registry.State {
	return &registry.State{
		Name:   p.GetName(),
		Exists: p.GetState() == resourcemanagerpb.Project_ACTIVE,
		Attributes: map[string]string{
			"project_id":   p.GetProjectId(),
			"display_name": p.GetDisplayName(),
			"parent":       p.GetParent(),
			"state":        p.GetState().String(),
			"labels":       formatLabels(p.GetLabels()),
		},
	}
}

func formatLabels(labels map[string]string) string {
	pairs := make([]string, 0, len(labels))
	for k, v := range labels {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}
