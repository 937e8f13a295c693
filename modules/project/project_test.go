package project_test

import (
	"context"
	"testing"

	"cloud.google.com/go/resourcemanager/apiv3/resourcemanagerpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/blackwell-systems/gcp-module-project/cloud/cloudtest"
	"github.com/blackwell-systems/gcp-module-project/modules/project"
	"github.com/blackwell-systems/gcp-module-project/registry"
)

func newModule(t *testing.T, seed ...*resourcemanagerpb.Project) (registry.Module, *cloudtest.Projects) {
	t.Helper()
	projects := cloudtest.NewProjects(seed...)
	m, err := project.New(cloudtest.NewServices(projects, nil, nil).Services)
	require.NoError(t, err)
	return m, projects
}

func spec() registry.Spec {
	return registry.Spec{
		"project_id":   "demo-project",
		"display_name": "Demo",
		"parent":       "organizations/123",
		"labels":       map[string]any{"env": "dev"},
	}
}

func TestIdentity(t *testing.T) {
	m, projects := newModule(t)

	id, err := m.Identity(context.Background(), spec())
	require.NoError(t, err)
	assert.Equal(t, "projects/demo-project", id)
	assert.Zero(t, projects.Calls("Get"), "identity must not call the API")
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		spec registry.Spec
	}{
		{name: "missing project id", spec: registry.Spec{"parent": "organizations/1"}},
		{name: "short project id", spec: registry.Spec{"project_id": "abc"}},
		{name: "uppercase project id", spec: registry.Spec{"project_id": "Demo-Project"}},
		{name: "bad parent", spec: registry.Spec{"project_id": "demo-project", "parent": "projects/1"}},
		{name: "bad label key", spec: registry.Spec{"project_id": "demo-project", "labels": map[string]any{"Env": "x"}}},
		{name: "unknown key", spec: registry.Spec{"project_id": "demo-project", "billing": "x"}},
	}

	validate := project.Entry().Validate
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, validate(tt.spec), registry.ErrInvalidSpec)

			m, _ := newModule(t)
			_, err := m.Sync(context.Background(), tt.spec)
			assert.ErrorIs(t, err, registry.ErrInvalidSpec)
			assert.False(t, registry.IsRetryable(err))
		})
	}
}

func TestSyncCreatesThenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m, projects := newModule(t)

	state, err := m.Read(ctx, spec())
	require.NoError(t, err)
	assert.False(t, state.Exists)

	res, err := m.Sync(ctx, spec())
	require.NoError(t, err)
	assert.Equal(t, registry.ActionCreate, res.Action)
	assert.True(t, res.State.Exists)

	created := projects.Project("demo-project")
	require.NotNil(t, created)
	assert.Equal(t, "Demo", created.DisplayName)
	assert.Equal(t, "organizations/123", created.Parent)
	assert.Equal(t, map[string]string{"env": "dev"}, created.Labels)

	res, err = m.Sync(ctx, spec())
	require.NoError(t, err)
	assert.Equal(t, registry.ActionNone, res.Action)
	assert.Empty(t, res.Changes)
	assert.Equal(t, 1, projects.Calls("Create"))
	assert.Zero(t, projects.Calls("Update"))
}

func TestSyncRequiresParentToCreate(t *testing.T) {
	m, _ := newModule(t)

	_, err := m.Sync(context.Background(), registry.Spec{"project_id": "demo-project"})
	assert.ErrorIs(t, err, registry.ErrInvalidSpec)
}

func TestSyncUpdatesDrift(t *testing.T) {
	ctx := context.Background()
	m, projects := newModule(t, &resourcemanagerpb.Project{
		ProjectId:   "demo-project",
		DisplayName: "Old",
		Parent:      "organizations/999",
		Labels:      map[string]string{"env": "prod", "team": "x"},
	})

	plan, err := m.(registry.Planner).Plan(ctx, spec())
	require.NoError(t, err)
	assert.Equal(t, registry.ActionUpdate, plan.Action)
	assert.Equal(t, []string{"parent", "display_name", "labels"}, plan.Changes)
	assert.Zero(t, projects.Calls("Update"), "plan must not modify")

	res, err := m.Sync(ctx, spec())
	require.NoError(t, err)
	assert.Equal(t, registry.ActionUpdate, res.Action)

	got := projects.Project("demo-project")
	assert.Equal(t, "Demo", got.DisplayName)
	assert.Equal(t, "organizations/123", got.Parent)
	assert.Equal(t, map[string]string{"env": "dev"}, got.Labels)
	assert.Equal(t, "env=dev", res.State.Attributes["labels"])
}

func TestSyncLeavesUndeclaredLabels(t *testing.T) {
	m, projects := newModule(t, &resourcemanagerpb.Project{
		ProjectId:   "demo-project",
		DisplayName: "demo-project",
		Parent:      "organizations/123",
		Labels:      map[string]string{"owner": "ops"},
	})

	res, err := m.Sync(context.Background(), registry.Spec{"project_id": "demo-project"})
	require.NoError(t, err)
	assert.Equal(t, registry.ActionNone, res.Action)
	assert.Equal(t, map[string]string{"owner": "ops"}, projects.Project("demo-project").Labels)
}

func TestSyncRestoresPendingDeletion(t *testing.T) {
	m, projects := newModule(t, &resourcemanagerpb.Project{
		ProjectId:   "demo-project",
		DisplayName: "Demo",
		Parent:      "organizations/123",
		Labels:      map[string]string{"env": "dev"},
		State:       resourcemanagerpb.Project_DELETE_REQUESTED,
	})

	res, err := m.Sync(context.Background(), spec())
	require.NoError(t, err)
	assert.Equal(t, registry.ActionUpdate, res.Action)
	assert.Equal(t, []string{"state"}, res.Changes)
	assert.Equal(t, resourcemanagerpb.Project_ACTIVE, projects.Project("demo-project").State)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	m, projects := newModule(t, &resourcemanagerpb.Project{
		ProjectId: "demo-project",
		Parent:    "organizations/123",
	})

	res, err := m.Delete(ctx, spec())
	require.NoError(t, err)
	assert.Equal(t, registry.ActionDelete, res.Action)
	assert.False(t, res.State.Exists)
	assert.Equal(t, resourcemanagerpb.Project_DELETE_REQUESTED, projects.Project("demo-project").State)

	res, err = m.Delete(ctx, spec())
	require.NoError(t, err)
	assert.Equal(t, registry.ActionNone, res.Action)
	assert.Equal(t, 1, projects.Calls("Delete"))
}

func TestDeleteMissingProject(t *testing.T) {
	m, projects := newModule(t)

	res, err := m.Delete(context.Background(), spec())
	require.NoError(t, err)
	assert.Equal(t, registry.ActionNone, res.Action)
	assert.Zero(t, projects.Calls("Delete"))
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "unavailable", err: status.Error(codes.Unavailable, "try again"), retryable: true},
		{name: "quota", err: status.Error(codes.ResourceExhausted, "slow down"), retryable: true},
		{name: "invalid argument", err: status.Error(codes.InvalidArgument, "bad"), retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, projects := newModule(t)
			projects.FailNext("Get", tt.err, 1)

			_, err := m.Read(context.Background(), spec())
			var opErr *registry.OperationError
			require.ErrorAs(t, err, &opErr)
			assert.Equal(t, project.ID, opErr.Module)
			assert.Equal(t, "read", opErr.Op)
			assert.Equal(t, tt.retryable, registry.IsRetryable(err))
		})
	}
}

func TestSyncCreatesWhenGetIsDenied(t *testing.T) {
	m, projects := newModule(t)
	projects.FailNext("Get", status.Error(codes.PermissionDenied, "not visible"), 1)

	res, err := m.Sync(context.Background(), spec())
	require.NoError(t, err)
	assert.Equal(t, registry.ActionCreate, res.Action)
	assert.NotNil(t, projects.Project("demo-project"))
}

func TestSyncSurfacesCreateError(t *testing.T) {
	tests := []struct {
		name string
		code codes.Code
	}{
		{name: "caller lacks rights", code: codes.PermissionDenied},
		{name: "id owned elsewhere", code: codes.AlreadyExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, projects := newModule(t)
			projects.FailNext("Get", status.Error(codes.PermissionDenied, "not visible"), 1)
			projects.FailNext("Create", status.Error(tt.code, "create failed"), 1)

			_, err := m.Sync(context.Background(), spec())
			require.Error(t, err)
			assert.Equal(t, tt.code, status.Code(err))
			assert.False(t, registry.IsRetryable(err))
			assert.Equal(t, 1, projects.Calls("Create"))
		})
	}
}

func TestReadReportsDeniedAsAbsent(t *testing.T) {
	m, projects := newModule(t)
	projects.FailNext("Get", status.Error(codes.PermissionDenied, "not visible"), 1)

	state, err := m.Read(context.Background(), spec())
	require.NoError(t, err)
	assert.False(t, state.Exists)
}

func TestDeleteFailsWhenGetIsDenied(t *testing.T) {
	m, projects := newModule(t, &resourcemanagerpb.Project{
		ProjectId: "demo-project",
		Parent:    "organizations/123",
	})
	projects.FailNext("Get", status.Error(codes.PermissionDenied, "denied"), 1)

	_, err := m.Delete(context.Background(), spec())
	require.Error(t, err)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
	assert.Zero(t, projects.Calls("Delete"))
}
