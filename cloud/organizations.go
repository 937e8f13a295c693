package cloud

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	resourcemanager "cloud.google.com/go/resourcemanager/apiv3"
	"cloud.google.com/go/resourcemanager/apiv3/resourcemanagerpb"
	gocache "github.com/patrickmn/go-cache"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// DomainCacheExpiration bounds how long a domain to organization lookup is
	// reused.
	DomainCacheExpiration = 10 * time.Minute
	domainCacheCleanup    = 30 * time.Minute
)

// OrganizationSearcher is the subset of the Organizations API that
// NewCachedOrganizations builds on.
type OrganizationSearcher interface {
	GetOrganization(ctx context.Context, name string) (*resourcemanagerpb.Organization, error)
	SearchOrganizations(ctx context.Context, query string) ([]*resourcemanagerpb.Organization, error)
}

type organizationService struct {
	api   OrganizationSearcher
	cache *gocache.Cache
}

func newOrganizationService(client *resourcemanager.OrganizationsClient) OrganizationService {
	return NewCachedOrganizations(&organizationsAPI{client: client})
}

// NewCachedOrganizations returns an OrganizationService that caches domain
// lookups made through api.
func NewCachedOrganizations(api OrganizationSearcher) OrganizationService {
	return &organizationService{
		api:   api,
		cache: gocache.New(DomainCacheExpiration, domainCacheCleanup),
	}
}

// OrganizationName returns the "organizations/..." form of an organization ID
// or name.
func OrganizationName(idOrName string) string {
	if strings.HasPrefix(idOrName, "organizations/") {
		return idOrName
	}
	return "organizations/" + idOrName
}

func (s *organizationService) Get(ctx context.Context, name string) (*resourcemanagerpb.Organization, error) {
	return s.api.GetOrganization(ctx, OrganizationName(name))
}

func (s *organizationService) FindByDomain(ctx context.Context, domain string) (*resourcemanagerpb.Organization, error) {
	key := strings.ToLower(domain)
	if v, found := s.cache.Get(key); found {
		if org, ok := v.(*resourcemanagerpb.Organization); ok {
			return org, nil
		}
	}

	orgs, err := s.api.SearchOrganizations(ctx, "domain:"+domain)
	if err != nil {
		return nil, err
	}
	for _, org := range orgs {
		if strings.EqualFold(org.GetDisplayName(), domain) {
			s.cache.Set(key, org, gocache.DefaultExpiration)
			return org, nil
		}
	}
	return nil, status.Errorf(codes.NotFound, "no organization for domain %s", domain)
}

// organizationsAPI adapts the generated client to OrganizationSearcher.
type organizationsAPI struct {
	client *resourcemanager.OrganizationsClient
}

func (a *organizationsAPI) GetOrganization(ctx context.Context, name string) (*resourcemanagerpb.Organization, error) {
	return a.client.GetOrganization(ctx, &resourcemanagerpb.GetOrganizationRequest{Name: name})
}

func (a *organizationsAPI) SearchOrganizations(ctx context.Context, query string) ([]*resourcemanagerpb.Organization, error) {
	it := a.client.SearchOrganizations(ctx, &resourcemanagerpb.SearchOrganizationsRequest{Query: query})
	var out []*resourcemanagerpb.Organization
	for {
		org, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to search organizations: %w", err)
		}
		out = append(out, org)
	}
	return out, nil
}
