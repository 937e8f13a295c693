package admin_test

import (
	"context"
	"testing"

	"cloud.google.com/go/iam/apiv1/iampb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/type/expr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/blackwell-systems/gcp-module-project/cloud/cloudtest"
	"github.com/blackwell-systems/gcp-module-project/modules/admin"
	"github.com/blackwell-systems/gcp-module-project/registry"
)

const resource = "projects/demo-project"

func newModule(t *testing.T) (registry.Module, *cloudtest.Policies) {
	t.Helper()
	policies := cloudtest.NewPolicies()
	m, err := admin.New(cloudtest.NewServices(nil, nil, policies).Services)
	require.NoError(t, err)
	return m, policies
}

func spec() registry.Spec {
	return registry.Spec{
		"resource": resource,
		"bindings": map[string]any{
			"roles/owner":  []any{"user:alice@example.com"},
			"roles/viewer": []any{"group:ops@example.com", "user:bob@example.com"},
		},
	}
}

func binding(policy *iampb.Policy, role string) *iampb.Binding {
	for _, b := range policy.GetBindings() {
		if b.GetRole() == role && b.GetCondition() == nil {
			return b
		}
	}
	return nil
}

func TestValidation(t *testing.T) {
	validate := admin.Entry().Validate

	tests := []struct {
		name    string
		spec    registry.Spec
		wantErr bool
	}{
		{name: "valid", spec: spec()},
		{name: "organization resource", spec: registry.Spec{"resource": "organizations/1", "bindings": map[string]any{"roles/owner": []any{"domain:example.com"}}}},
		{name: "custom role", spec: registry.Spec{"resource": resource, "bindings": map[string]any{"organizations/1/roles/admin.lite": []any{"user:a@b.c"}}}},
		{name: "bad resource", spec: registry.Spec{"resource": "folders/1", "bindings": map[string]any{"roles/owner": []any{"user:a@b.c"}}}, wantErr: true},
		{name: "no bindings", spec: registry.Spec{"resource": resource}, wantErr: true},
		{name: "bad role", spec: registry.Spec{"resource": resource, "bindings": map[string]any{"owner": []any{"user:a@b.c"}}}, wantErr: true},
		{name: "no members", spec: registry.Spec{"resource": resource, "bindings": map[string]any{"roles/owner": []any{}}}, wantErr: true},
		{name: "bad member", spec: registry.Spec{"resource": resource, "bindings": map[string]any{"roles/owner": []any{"alice"}}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate(tt.spec)
			if tt.wantErr {
				assert.ErrorIs(t, err, registry.ErrInvalidSpec)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSyncGrantsAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m, policies := newModule(t)
	policies.Seed(resource, &iampb.Policy{Bindings: []*iampb.Binding{
		{Role: "roles/viewer", Members: []string{"user:carol@example.com", "user:bob@example.com"}},
	}})

	id, err := m.Identity(ctx, spec())
	require.NoError(t, err)
	assert.Equal(t, resource, id)

	plan, err := m.(registry.Planner).Plan(ctx, spec())
	require.NoError(t, err)
	assert.Equal(t, registry.ActionUpdate, plan.Action)
	assert.Equal(t, []string{
		"+roles/owner user:alice@example.com",
		"+roles/viewer group:ops@example.com",
	}, plan.Changes)
	assert.Zero(t, policies.Calls("SetPolicy"))

	res, err := m.Sync(ctx, spec())
	require.NoError(t, err)
	assert.Equal(t, registry.ActionUpdate, res.Action)
	assert.True(t, res.State.Exists)

	policy := policies.Policy(resource)
	assert.ElementsMatch(t, []string{"user:alice@example.com"}, binding(policy, "roles/owner").Members)
	assert.ElementsMatch(t,
		[]string{"user:carol@example.com", "user:bob@example.com", "group:ops@example.com"},
		binding(policy, "roles/viewer").Members)

	res, err = m.Sync(ctx, spec())
	require.NoError(t, err)
	assert.Equal(t, registry.ActionNone, res.Action)
	assert.Equal(t, 1, policies.Calls("SetPolicy"))
}

func TestSyncIgnoresConditionalBindings(t *testing.T) {
	m, policies := newModule(t)
	policies.Seed(resource, &iampb.Policy{Bindings: []*iampb.Binding{
		{
			Role:      "roles/owner",
			Members:   []string{"user:alice@example.com"},
			Condition: &expr.Expr{Title: "expires", Expression: `request.time < timestamp("2030-01-01T00:00:00Z")`},
		},
	}})

	res, err := m.Sync(context.Background(), registry.Spec{
		"resource": resource,
		"bindings": map[string]any{"roles/owner": []any{"user:alice@example.com"}},
	})
	require.NoError(t, err)
	assert.Equal(t, registry.ActionUpdate, res.Action)

	policy := policies.Policy(resource)
	require.Len(t, policy.Bindings, 2)
	assert.NotNil(t, binding(policy, "roles/owner"))
}

func TestDeleteRevokesOnlyManagedMembers(t *testing.T) {
	ctx := context.Background()
	m, policies := newModule(t)
	policies.Seed(resource, &iampb.Policy{Bindings: []*iampb.Binding{
		{Role: "roles/owner", Members: []string{"user:alice@example.com"}},
		{Role: "roles/viewer", Members: []string{"user:bob@example.com", "user:carol@example.com"}},
		{Role: "roles/editor", Members: []string{"user:bob@example.com"}},
	}})

	res, err := m.Delete(ctx, spec())
	require.NoError(t, err)
	assert.Equal(t, registry.ActionDelete, res.Action)
	assert.Equal(t, []string{
		"-roles/owner user:alice@example.com",
		"-roles/viewer user:bob@example.com",
	}, res.Changes)

	policy := policies.Policy(resource)
	assert.Nil(t, binding(policy, "roles/owner"), "emptied bindings are dropped")
	assert.Equal(t, []string{"user:carol@example.com"}, binding(policy, "roles/viewer").Members)
	assert.Equal(t, []string{"user:bob@example.com"}, binding(policy, "roles/editor").Members)

	res, err = m.Delete(ctx, spec())
	require.NoError(t, err)
	assert.Equal(t, registry.ActionNone, res.Action)
	assert.Equal(t, 1, policies.Calls("SetPolicy"))
}

func TestConcurrentModificationIsTransient(t *testing.T) {
	m, policies := newModule(t)
	policies.FailNext("SetPolicy", status.Error(codes.Aborted, "etag mismatch"), 1)

	_, err := m.Sync(context.Background(), spec())
	require.Error(t, err)
	assert.True(t, registry.IsRetryable(err))

	_, err = m.Sync(context.Background(), spec())
	assert.NoError(t, err)
}

func TestPlanMissingResource(t *testing.T) {
	m, policies := newModule(t)
	policies.FailNext("GetPolicy", status.Error(codes.NotFound, "no project"), 1)

	plan, err := m.(registry.Planner).Plan(context.Background(), spec())
	require.NoError(t, err)
	assert.Equal(t, registry.ActionUpdate, plan.Action)
	assert.Len(t, plan.Changes, 3)
}

func TestPlanDeniedResource(t *testing.T) {
	m, policies := newModule(t)
	policies.FailNext("GetPolicy", status.Error(codes.PermissionDenied, "project not visible"), 1)

	plan, err := m.(registry.Planner).Plan(context.Background(), spec())
	require.NoError(t, err)
	assert.Equal(t, registry.ActionUpdate, plan.Action)
	assert.Len(t, plan.Changes, 3)
}
