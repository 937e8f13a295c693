// Package cloudtest provides in-memory implementations of the cloud service
// interfaces for tests.
package cloudtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/iam/apiv1/iampb"
	"cloud.google.com/go/resourcemanager/apiv3/resourcemanagerpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/blackwell-systems/gcp-module-project/cloud"
)

// faults queues errors to return from named methods.
type faults struct {
	mu     sync.Mutex
	queued map[string][]error
	calls  map[string]int
}

// FailNext makes the next n calls to method return err.
func (f *faults) FailNext(method string, err error, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queued == nil {
		f.queued = make(map[string][]error)
	}
	for i := 0; i < n; i++ {
		f.queued[method] = append(f.queued[method], err)
	}
}

// Calls returns how many times method was invoked.
func (f *faults) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *faults) enter(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[method]++
	q := f.queued[method]
	if len(q) == 0 {
		return nil
	}
	f.queued[method] = q[1:]
	return q[0]
}

// Projects is an in-memory cloud.ProjectService keyed by project ID.
type Projects struct {
	faults
	mu       sync.Mutex
	projects map[string]*resourcemanagerpb.Project
	next     int
}

// NewProjects returns a Projects seeded with the given projects.
func NewProjects(seed ...*resourcemanagerpb.Project) *Projects {
	p := &Projects{projects: make(map[string]*resourcemanagerpb.Project), next: 100000}
	for _, s := range seed {
		p.put(proto.Clone(s).(*resourcemanagerpb.Project))
	}
	return p
}

func (p *Projects) put(project *resourcemanagerpb.Project) {
	if project.Name == "" {
		p.next++
		project.Name = fmt.Sprintf("projects/%d", p.next)
	}
	if project.State == resourcemanagerpb.Project_STATE_UNSPECIFIED {
		project.State = resourcemanagerpb.Project_ACTIVE
	}
	p.projects[project.ProjectId] = project
}

func (p *Projects) lookup(name string) (*resourcemanagerpb.Project, error) {
	key := strings.TrimPrefix(name, "projects/")
	if project, ok := p.projects[key]; ok {
		return project, nil
	}
	for _, project := range p.projects {
		if project.Name == cloud.ProjectName(key) {
			return project, nil
		}
	}
	return nil, status.Errorf(codes.NotFound, "project %s not found", name)
}

// Project returns a copy of the stored project, or nil.
func (p *Projects) Project(projectID string) *resourcemanagerpb.Project {
	p.mu.Lock()
	defer p.mu.Unlock()
	project, ok := p.projects[projectID]
	if !ok {
		return nil
	}
	return proto.Clone(project).(*resourcemanagerpb.Project)
}

func (p *Projects) Get(ctx context.Context, name string) (*resourcemanagerpb.Project, error) {
	if err := p.enter("Get"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	project, err := p.lookup(name)
	if err != nil {
		return nil, err
	}
	return proto.Clone(project).(*resourcemanagerpb.Project), nil
}

func (p *Projects) Create(ctx context.Context, project *resourcemanagerpb.Project) (*resourcemanagerpb.Project, error) {
	if err := p.enter("Create"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.projects[project.ProjectId]; exists {
		return nil, status.Errorf(codes.AlreadyExists, "project %s already exists", project.ProjectId)
	}
	stored := proto.Clone(project).(*resourcemanagerpb.Project)
	stored.Name = ""
	stored.State = resourcemanagerpb.Project_ACTIVE
	p.put(stored)
	return proto.Clone(stored).(*resourcemanagerpb.Project), nil
}

func (p *Projects) Update(ctx context.Context, project *resourcemanagerpb.Project, paths []string) (*resourcemanagerpb.Project, error) {
	if err := p.enter("Update"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	stored, err := p.lookup(project.Name)
	if err != nil {
		return nil, err
	}
	for _, path := range paths {
		switch path {
		case "display_name":
			stored.DisplayName = project.DisplayName
		case "labels":
			stored.Labels = project.Labels
		default:
			return nil, status.Errorf(codes.InvalidArgument, "unsupported update path %s", path)
		}
	}
	return proto.Clone(stored).(*resourcemanagerpb.Project), nil
}

func (p *Projects) Move(ctx context.Context, name, parent string) (*resourcemanagerpb.Project, error) {
	if err := p.enter("Move"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	stored, err := p.lookup(name)
	if err != nil {
		return nil, err
	}
	stored.Parent = parent
	return proto.Clone(stored).(*resourcemanagerpb.Project), nil
}

func (p *Projects) Delete(ctx context.Context, name string) error {
	if err := p.enter("Delete"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	stored, err := p.lookup(name)
	if err != nil {
		return err
	}
	if stored.State != resourcemanagerpb.Project_ACTIVE {
		return status.Errorf(codes.FailedPrecondition, "project %s is not active", name)
	}
	stored.State = resourcemanagerpb.Project_DELETE_REQUESTED
	return nil
}

func (p *Projects) Undelete(ctx context.Context, name string) (*resourcemanagerpb.Project, error) {
	if err := p.enter("Undelete"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	stored, err := p.lookup(name)
	if err != nil {
		return nil, err
	}
	stored.State = resourcemanagerpb.Project_ACTIVE
	return proto.Clone(stored).(*resourcemanagerpb.Project), nil
}

// Organizations is an in-memory cloud.OrganizationSearcher. Wrap it with
// cloud.NewCachedOrganizations to get an OrganizationService.
type Organizations struct {
	faults
	orgs []*resourcemanagerpb.Organization
}

// NewOrganizations returns an Organizations holding orgs.
func NewOrganizations(orgs ...*resourcemanagerpb.Organization) *Organizations {
	return &Organizations{orgs: orgs}
}

func (o *Organizations) GetOrganization(ctx context.Context, name string) (*resourcemanagerpb.Organization, error) {
	if err := o.enter("GetOrganization"); err != nil {
		return nil, err
	}
	for _, org := range o.orgs {
		if org.GetName() == name {
			return proto.Clone(org).(*resourcemanagerpb.Organization), nil
		}
	}
	return nil, status.Errorf(codes.NotFound, "organization %s not found", name)
}

func (o *Organizations) SearchOrganizations(ctx context.Context, query string) ([]*resourcemanagerpb.Organization, error) {
	if err := o.enter("SearchOrganizations"); err != nil {
		return nil, err
	}
	domain := strings.TrimPrefix(query, "domain:")
	var out []*resourcemanagerpb.Organization
	for _, org := range o.orgs {
		if strings.EqualFold(org.GetDisplayName(), domain) {
			out = append(out, proto.Clone(org).(*resourcemanagerpb.Organization))
		}
	}
	return out, nil
}

// Policies is an in-memory cloud.PolicyService with etag checking.
type Policies struct {
	faults
	mu       sync.Mutex
	policies map[string]*iampb.Policy
	rev      int
}

// NewPolicies returns an empty Policies.
func NewPolicies() *Policies {
	return &Policies{policies: make(map[string]*iampb.Policy)}
}

// Seed stores policy for resource, replacing any existing one.
func (p *Policies) Seed(resource string, policy *iampb.Policy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rev++
	stored := proto.Clone(policy).(*iampb.Policy)
	stored.Etag = []byte(fmt.Sprintf("etag-%d", p.rev))
	p.policies[resource] = stored
}

// Policy returns a copy of the stored policy for resource.
func (p *Policies) Policy(resource string) *iampb.Policy {
	p.mu.Lock()
	defer p.mu.Unlock()
	if policy, ok := p.policies[resource]; ok {
		return proto.Clone(policy).(*iampb.Policy)
	}
	return &iampb.Policy{}
}

func (p *Policies) GetPolicy(ctx context.Context, resource string) (*iampb.Policy, error) {
	if err := p.enter("GetPolicy"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if policy, ok := p.policies[resource]; ok {
		return proto.Clone(policy).(*iampb.Policy), nil
	}
	return &iampb.Policy{Version: 1}, nil
}

func (p *Policies) SetPolicy(ctx context.Context, resource string, policy *iampb.Policy) (*iampb.Policy, error) {
	if err := p.enter("SetPolicy"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if current, ok := p.policies[resource]; ok && string(current.Etag) != string(policy.Etag) {
		return nil, status.Errorf(codes.Aborted, "etag mismatch for %s", resource)
	}
	p.rev++
	stored := proto.Clone(policy).(*iampb.Policy)
	stored.Etag = []byte(fmt.Sprintf("etag-%d", p.rev))
	p.policies[resource] = stored
	return proto.Clone(stored).(*iampb.Policy), nil
}

// Services bundles fresh fakes.
type Services struct {
	*cloud.Services
	Projects      *Projects
	Organizations *Organizations
	Policies      *Policies
}

// NewServices returns a cloud.Services backed by the given fakes. Nil
// arguments are replaced by empty fakes.
func NewServices(projects *Projects, orgs *Organizations, policies *Policies) *Services {
	if projects == nil {
		projects = NewProjects()
	}
	if orgs == nil {
		orgs = NewOrganizations()
	}
	if policies == nil {
		policies = NewPolicies()
	}
	return &Services{
		Services: &cloud.Services{
			Projects:      projects,
			Organizations: cloud.NewCachedOrganizations(orgs),
			Policies:      policies,
		},
		Projects:      projects,
		Organizations: orgs,
		Policies:      policies,
	}
}

var (
	_ cloud.ProjectService       = (*Projects)(nil)
	_ cloud.OrganizationSearcher = (*Organizations)(nil)
	_ cloud.PolicyService        = (*Policies)(nil)
)
