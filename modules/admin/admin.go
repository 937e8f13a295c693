// Package admin implements the gcp-module-admin resource module. It grants
// administrative IAM roles on a project or organization and revokes exactly
// those grants on teardown, leaving the rest of the policy untouched.
package admin

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"

	"cloud.google.com/go/iam/apiv1/iampb"

	"github.com/blackwell-systems/gcp-module-project/cloud"
	"github.com/blackwell-systems/gcp-module-project/internal/logging"
	"github.com/blackwell-systems/gcp-module-project/registry"
)

const (
	// ID is the registry identifier of this module.
	ID = "gcp-module-admin"
	// Name is the exported implementation name.
	Name = "Admin"
)

var (
	resourcePattern = regexp.MustCompile(`^(projects/[a-z0-9][a-z0-9-]*|organizations/[0-9]+)$`)
	rolePattern     = regexp.MustCompile(`^((projects/[a-z0-9-]+|organizations/[0-9]+)/)?roles/[A-Za-z0-9_.]+$`)
	memberPrefixes  = []string{"user:", "group:", "serviceAccount:", "domain:"}
)

// Spec declares the admin grants on one resource.
type Spec struct {
	// Resource is "projects/<id>" or "organizations/<number>".
	Resource string `spec:"resource"`
	// Bindings maps a role to the members that must hold it.
	Bindings map[string][]string `spec:"bindings"`
}

// Admin manages admin role grants.
type Admin struct {
	policies cloud.PolicyService
}

var (
	_ registry.Module  = (*Admin)(nil)
	_ registry.Planner = (*Admin)(nil)
)

// New is the registry constructor.
func New(svc *cloud.Services) (registry.Module, error) {
	if svc == nil || svc.Policies == nil {
		return nil, errors.New("admin: policies service is required")
	}
	return &Admin{policies: svc.Policies}, nil
}

// Entry returns the registry entry for this module.
func Entry() registry.Entry {
	return registry.Entry{
		ID:          ID,
		Name:        Name,
		Description: "Grants and revokes administrative IAM roles on projects and organizations",
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
	if !resourcePattern.MatchString(s.Resource) {
		return nil, fmt.Errorf("%w: resource %q must be projects/<id> or organizations/<number>", registry.ErrInvalidSpec, s.Resource)
	}
	if len(s.Bindings) == 0 {
		return nil, fmt.Errorf("%w: at least one binding is required", registry.ErrInvalidSpec)
	}
	for role, members := range s.Bindings {
		if err := ValidateRole(role); err != nil {
			return nil, err
		}
		if len(members) == 0 {
			return nil, fmt.Errorf("%w: role %s has no members", registry.ErrInvalidSpec, role)
		}
		for _, m := range members {
			if err := ValidateMember(m); err != nil {
				return nil, err
			}
		}
	}
	return &s, nil
}

// ValidateRole checks a predefined or custom role name.
func ValidateRole(role string) error {
	if !rolePattern.MatchString(role) {
		return fmt.Errorf("%w: invalid role %q (must be roles/<name> or a custom role path)", registry.ErrInvalidSpec, role)
	}
	return nil
}

// ValidateMember checks an IAM principal.
func ValidateMember(member string) error {
	for _, prefix := range memberPrefixes {
		if strings.HasPrefix(member, prefix) && len(member) > len(prefix) {
			return nil
		}
	}
	return fmt.Errorf("%w: invalid member %q (must start with %s)", registry.ErrInvalidSpec, member, strings.Join(memberPrefixes, ", "))
}

func (a *Admin) Identity(ctx context.Context, raw registry.Spec) (string, error) {
	s, err := decode(raw)
	if err != nil {
		return "", registry.Permanent(ID, "identity", "", err)
	}
	return s.Resource, nil
}

func (a *Admin) Read(ctx context.Context, raw registry.Spec) (*registry.State, error) {
	s, err := decode(raw)
	if err != nil {
		return nil, registry.Permanent(ID, "read", "", err)
	}
	policy, err := a.policies.GetPolicy(ctx, s.Resource)
	if err != nil {
		return nil, registry.Wrap(ID, "read", s.Resource, err)
	}
	return stateOf(s, policy), nil
}

func (a *Admin) Plan(ctx context.Context, raw registry.Spec) (*registry.Result, error) {
	s, err := decode(raw)
	if err != nil {
		return nil, registry.Permanent(ID, "plan", "", err)
	}
	policy, err := a.policies.GetPolicy(ctx, s.Resource)
	switch {
	case cloud.IsAbsent(err):
		// The resource may be created earlier in the same run.
		policy = &iampb.Policy{}
	case err != nil:
		return nil, registry.Wrap(ID, "plan", s.Resource, err)
	}
	changes := describe(missingGrants(s, policy), "+")
	action := registry.ActionNone
	if len(changes) > 0 {
		action = registry.ActionUpdate
	}
	return &registry.Result{Action: action, Changes: changes, State: stateOf(s, policy)}, nil
}

func (a *Admin) Sync(ctx context.Context, raw registry.Spec) (*registry.Result, error) {
	s, err := decode(raw)
	if err != nil {
		return nil, registry.Permanent(ID, "sync", "", err)
	}
	policy, err := a.policies.GetPolicy(ctx, s.Resource)
	if err != nil {
		return nil, registry.Wrap(ID, "sync", s.Resource, err)
	}

	missing := missingGrants(s, policy)
	if len(missing) == 0 {
		return &registry.Result{Action: registry.ActionNone, State: stateOf(s, policy)}, nil
	}

	for role, members := range missing {
		b := unconditionalBinding(policy, role)
		if b == nil {
			b = &iampb.Binding{Role: role}
			policy.Bindings = append(policy.Bindings, b)
		}
		b.Members = append(b.Members, members...)
	}

	changes := describe(missing, "+")
	logging.FromContext(ctx).Info("Granting admin roles", "module", ID, "resource", s.Resource, "changes", changes)
	updated, err := a.policies.SetPolicy(ctx, s.Resource, policy)
	if err != nil {
		return nil, registry.Wrap(ID, "sync", s.Resource, fmt.Errorf("failed to set IAM policy: %w", err))
	}
	return &registry.Result{Action: registry.ActionUpdate, Changes: changes, State: stateOf(s, updated)}, nil
}

func (a *Admin) Delete(ctx context.Context, raw registry.Spec) (*registry.Result, error) {
	s, err := decode(raw)
	if err != nil {
		return nil, registry.Permanent(ID, "delete", "", err)
	}
	policy, err := a.policies.GetPolicy(ctx, s.Resource)
	if err != nil {
		return nil, registry.Wrap(ID, "delete", s.Resource, err)
	}

	removed := make(map[string][]string)
	kept := policy.Bindings[:0]
	for _, b := range policy.Bindings {
		want, managed := s.Bindings[b.GetRole()]
		if !managed || b.GetCondition() != nil {
			kept = append(kept, b)
			continue
		}
		members := b.Members[:0]
		for _, m := range b.Members {
			if slices.Contains(want, m) {
				removed[b.Role] = append(removed[b.Role], m)
				continue
			}
			members = append(members, m)
		}
		b.Members = members
		if len(b.Members) > 0 {
			kept = append(kept, b)
		}
	}
	policy.Bindings = kept

	if len(removed) == 0 {
		return &registry.Result{Action: registry.ActionNone, State: stateOf(s, policy)}, nil
	}

	changes := describe(removed, "-")
	logging.FromContext(ctx).Info("Revoking admin roles", "module", ID, "resource", s.Resource, "changes", changes)
	updated, err := a.policies.SetPolicy(ctx, s.Resource, policy)
	if err != nil {
		return nil, registry.Wrap(ID, "delete", s.Resource, fmt.Errorf("failed to set IAM policy: %w", err))
	}
	return &registry.Result{Action: registry.ActionDelete, Changes: changes, State: stateOf(s, updated)}, nil
}

func unconditionalBinding(policy *iampb.Policy, role string) *iampb.Binding {
	for _, b := range policy.GetBindings() {
		if b.GetRole() == role && b.GetCondition() == nil {
			return b
		}
	}
	return nil
}

// missingGrants returns the desired members not yet holding each role
// unconditionally.
func missingGrants(s *Spec, policy *iampb.Policy) map[string][]string {
	missing := make(map[string][]string)
	for role, members := range s.Bindings {
		b := unconditionalBinding(policy, role)
		for _, m := range members {
			if b == nil || !slices.Contains(b.GetMembers(), m) {
				if !slices.Contains(missing[role], m) {
					missing[role] = append(missing[role], m)
				}
			}
		}
	}
	return missing
}

func describe(grants map[string][]string, sign string) []string {
	var out []string
	for role, members := range grants {
		for _, m := range members {
			out = append(out, sign+role+" "+m)
		}
	}
	sort.Strings(out)
	return out
}

func stateOf(s *Spec, policy *iampb.Policy) *registry.State {
	attrs := make(map[string]string, len(s.Bindings))
	for role := range s.Bindings {
		var members []string
		if b := unconditionalBinding(policy, role); b != nil {
			members = slices.Clone(b.GetMembers())
		}
		sort.Strings(members)
		attrs[role] = strings.Join(members, ",")
	}
	return &registry.State{
		Name:       s.Resource,
		Exists:     len(missingGrants(s, policy)) == 0,
		Attributes: attrs,
	}
}
