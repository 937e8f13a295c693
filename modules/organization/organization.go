// Package organization implements the gcp-module-organization resource
// module. Organizations are created by Cloud Identity or Workspace sign-up,
// not through the Resource Manager API, so this module verifies that the
// declared organization exists and matches instead of creating it.
package organization

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"cloud.google.com/go/resourcemanager/apiv3/resourcemanagerpb"

	"github.com/blackwell-systems/gcp-module-project/cloud"
	"github.com/blackwell-systems/gcp-module-project/internal/logging"
	"github.com/blackwell-systems/gcp-module-project/registry"
)

const (
	// ID is the registry identifier of this module.
	ID = "gcp-module-organization"
	// Name is the exported implementation name.
	Name = "Organization"
)

var orgIDPattern = regexp.MustCompile(`^(organizations/)?[0-9]+$`)

// Spec identifies an organization by ID or by its primary domain.
type Spec struct {
	OrganizationID string `spec:"organization_id"`
	Domain         string `spec:"domain"`
	// DisplayName, when set, must match the organization's display name.
	DisplayName string `spec:"display_name"`
}

// Organization verifies organizations.
type Organization struct {
	orgs cloud.OrganizationService
}

var (
	_ registry.Module  = (*Organization)(nil)
	_ registry.Planner = (*Organization)(nil)
)

// New is the registry constructor.
func New(svc *cloud.Services) (registry.Module, error) {
	if svc == nil || svc.Organizations == nil {
		return nil, errors.New("organization: organizations service is required")
	}
	return &Organization{orgs: svc.Organizations}, nil
}

// Entry returns the registry entry for this module.
func Entry() registry.Entry {
	return registry.Entry{
		ID:          ID,
		Name:        Name,
		Description: "Resolves and verifies organizations by ID or domain",
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
	switch {
	case s.OrganizationID == "" && s.Domain == "":
		return nil, fmt.Errorf("%w: one of organization_id or domain is required", registry.ErrInvalidSpec)
	case s.OrganizationID != "" && !orgIDPattern.MatchString(s.OrganizationID):
		return nil, fmt.Errorf("%w: organization_id %q must be numeric", registry.ErrInvalidSpec, s.OrganizationID)
	case s.Domain != "" && !strings.Contains(s.Domain, "."):
		return nil, fmt.Errorf("%w: domain %q is not a domain name", registry.ErrInvalidSpec, s.Domain)
	}
	return &s, nil
}

func label(s *Spec) string {
	if s.OrganizationID != "" {
		return cloud.OrganizationName(s.OrganizationID)
	}
	return "domain:" + s.Domain
}

// find returns nil, nil when the organization does not exist.
func (o *Organization) find(ctx context.Context, s *Spec) (*resourcemanagerpb.Organization, error) {
	var (
		org *resourcemanagerpb.Organization
		err error
	)
	if s.OrganizationID != "" {
		org, err = o.orgs.Get(ctx, s.OrganizationID)
	} else {
		org, err = o.orgs.FindByDomain(ctx, s.Domain)
	}
	if cloud.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return org, nil
}

// Identity resolves domain specs through the API; ID specs are answered
// locally.
func (o *Organization) Identity(ctx context.Context, raw registry.Spec) (string, error) {
	s, err := decode(raw)
	if err != nil {
		return "", registry.Permanent(ID, "identity", "", err)
	}
	if s.OrganizationID != "" {
		return cloud.OrganizationName(s.OrganizationID), nil
	}
	org, err := o.find(ctx, s)
	if err != nil {
		return "", registry.Wrap(ID, "identity", label(s), err)
	}
	if org == nil {
		return "", registry.Permanent(ID, "identity", label(s), errors.New("organization not found"))
	}
	return org.GetName(), nil
}

func (o *Organization) Read(ctx context.Context, raw registry.Spec) (*registry.State, error) {
	s, err := decode(raw)
	if err != nil {
		return nil, registry.Permanent(ID, "read", "", err)
	}
	org, err := o.find(ctx, s)
	if err != nil {
		return nil, registry.Wrap(ID, "read", label(s), err)
	}
	if org == nil {
		return &registry.State{Name: label(s)}, nil
	}
	return stateOf(org), nil
}

func (o *Organization) Plan(ctx context.Context, raw registry.Spec) (*registry.Result, error) {
	return o.verify(ctx, "plan", raw)
}

// Sync never changes the organization; it fails permanently when the
// organization is missing or does not match the spec.
func (o *Organization) Sync(ctx context.Context, raw registry.Spec) (*registry.Result, error) {
	return o.verify(ctx, "sync", raw)
}

func (o *Organization) verify(ctx context.Context, op string, raw registry.Spec) (*registry.Result, error) {
	s, err := decode(raw)
	if err != nil {
		return nil, registry.Permanent(ID, op, "", err)
	}
	org, err := o.find(ctx, s)
	if err != nil {
		return nil, registry.Wrap(ID, op, label(s), err)
	}
	if org == nil {
		return nil, registry.Permanent(ID, op, label(s),
			fmt.Errorf("%w: organization does not exist and cannot be created", registry.ErrNotSupported))
	}
	if s.DisplayName != "" && org.GetDisplayName() != s.DisplayName {
		return nil, registry.Permanent(ID, op, org.GetName(),
			fmt.Errorf("%w: display name is %q, expected %q", registry.ErrInvalidSpec, org.GetDisplayName(), s.DisplayName))
	}
	if org.GetState() != resourcemanagerpb.Organization_ACTIVE {
		return nil, registry.Permanent(ID, op, org.GetName(),
			fmt.Errorf("organization is %s", org.GetState()))
	}

	logging.FromContext(ctx).Debug("Organization verified", "module", ID, "resource", org.GetName())
	return &registry.Result{Action: registry.ActionNone, State: stateOf(org)}, nil
}

// Delete always fails: organizations cannot be deleted through the API.
func (o *Organization) Delete(ctx context.Context, raw registry.Spec) (*registry.Result, error) {
	s, err := decode(raw)
	if err != nil {
		return nil, registry.Permanent(ID, "delete", "", err)
	}
	return nil, registry.Permanent(ID, "delete", label(s),
		fmt.Errorf("%w: organizations cannot be deleted", registry.ErrNotSupported))
}

func stateOf(org *resourcemanagerpb.Organization) *registry.State {
	return &registry.State{
		Name:   org.GetName(),
		Exists: org.GetState() == resourcemanagerpb.Organization_ACTIVE,
		Attributes: map[string]string{
			"display_name":          org.GetDisplayName(),
			"directory_customer_id": org.GetDirectoryCustomerId(),
			"state":                 org.GetState().String(),
		},
	}
}
