package cloud

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/iam/apiv1/iampb"
	resourcemanager "cloud.google.com/go/resourcemanager/apiv3"
)

// PolicyVersion is requested on reads so conditional bindings survive a
// read-modify-write cycle.
const PolicyVersion = 3

type policyService struct {
	projects      *resourcemanager.ProjectsClient
	organizations *resourcemanager.OrganizationsClient
}

func (s *policyService) GetPolicy(ctx context.Context, resource string) (*iampb.Policy, error) {
	req := &iampb.GetIamPolicyRequest{
		Resource: resource,
		Options:  &iampb.GetPolicyOptions{RequestedPolicyVersion: PolicyVersion},
	}
	switch {
	case strings.HasPrefix(resource, "projects/"):
		return s.projects.GetIamPolicy(ctx, req)
	case strings.HasPrefix(resource, "organizations/"):
		return s.organizations.GetIamPolicy(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported policy resource %q", resource)
	}
}

func (s *policyService) SetPolicy(ctx context.Context, resource string, policy *iampb.Policy) (*iampb.Policy, error) {
	req := &iampb.SetIamPolicyRequest{Resource: resource, Policy: policy}
	switch {
	case strings.HasPrefix(resource, "projects/"):
		return s.projects.SetIamPolicy(ctx, req)
	case strings.HasPrefix(resource, "organizations/"):
		return s.organizations.SetIamPolicy(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported policy resource %q", resource)
	}
}
