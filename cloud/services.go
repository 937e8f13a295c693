// Package cloud wraps the Cloud Resource Manager API behind the narrow
// service interfaces the resource modules depend on.
//
// Services bundles one implementation of each interface. NewServices builds
// it from real API clients; tests use the in-memory fakes in cloudtest.
package cloud

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/iam/apiv1/iampb"
	resourcemanager "cloud.google.com/go/resourcemanager/apiv3"
	"cloud.google.com/go/resourcemanager/apiv3/resourcemanagerpb"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ProjectService manages projects. Long-running operations are awaited.
type ProjectService interface {
	// Get accepts a project ID or a "projects/..." name.
	Get(ctx context.Context, name string) (*resourcemanagerpb.Project, error)
	Create(ctx context.Context, project *resourcemanagerpb.Project) (*resourcemanagerpb.Project, error)
	Update(ctx context.Context, project *resourcemanagerpb.Project, paths []string) (*resourcemanagerpb.Project, error)
	Move(ctx context.Context, name, parent string) (*resourcemanagerpb.Project, error)
	Delete(ctx context.Context, name string) error
	Undelete(ctx context.Context, name string) (*resourcemanagerpb.Project, error)
}

// OrganizationService reads organizations. Organizations cannot be created
// or deleted through the API.
type OrganizationService interface {
	Get(ctx context.Context, name string) (*resourcemanagerpb.Organization, error)
	// FindByDomain returns a NotFound status error when no organization
	// matches.
	FindByDomain(ctx context.Context, domain string) (*resourcemanagerpb.Organization, error)
}

// PolicyService reads and writes IAM policies of projects and organizations.
type PolicyService interface {
	GetPolicy(ctx context.Context, resource string) (*iampb.Policy, error)
	SetPolicy(ctx context.Context, resource string, policy *iampb.Policy) (*iampb.Policy, error)
}

// Services is the set of cloud services handed to module constructors.
type Services struct {
	Projects      ProjectService
	Organizations OrganizationService
	Policies      PolicyService

	closers []func() error
}

// Options configures NewServices.
type Options struct {
	// CredentialsFile is a service account key file. Application default
	// credentials are used when empty.
	CredentialsFile string
	QuotaProject    string
	// Trace instruments the gRPC connections with OpenTelemetry.
	Trace bool
}

func (o Options) clientOptions() []option.ClientOption {
	var opts []option.ClientOption
	if o.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(o.CredentialsFile))
	}
	if o.QuotaProject != "" {
		opts = append(opts, option.WithQuotaProject(o.QuotaProject))
	}
	if o.Trace {
		opts = append(opts, option.WithGRPCDialOption(grpc.WithStatsHandler(otelgrpc.NewClientHandler())))
	}
	return opts
}

// NewServices dials the Resource Manager API.
func NewServices(ctx context.Context, o Options) (*Services, error) {
	opts := o.clientOptions()

	projects, err := resourcemanager.NewProjectsClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create projects client: %w", err)
	}
	orgs, err := resourcemanager.NewOrganizationsClient(ctx, opts...)
	if err != nil {
		projects.Close()
		return nil, fmt.Errorf("failed to create organizations client: %w", err)
	}

	return &Services{
		Projects:      &projectService{client: projects},
		Organizations: newOrganizationService(orgs),
		Policies:      &policyService{projects: projects, organizations: orgs},
		closers:       []func() error{projects.Close, orgs.Close},
	}, nil
}

// Close releases the underlying connections.
func (s *Services) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// IsNotFound reports whether err carries a NotFound status.
func IsNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// IsAbsent reports whether err means the resource may not exist. Resource
// Manager answers PermissionDenied, not NotFound, for project IDs that do not
// exist or that the caller cannot see.
func IsAbsent(err error) bool {
	switch status.Code(err) {
	case codes.NotFound, codes.PermissionDenied:
		return true
	default:
		return false
	}
}
