package cloud

import (
	"context"
	"strings"

	resourcemanager "cloud.google.com/go/resourcemanager/apiv3"
	"cloud.google.com/go/resourcemanager/apiv3/resourcemanagerpb"
	"google.golang.org/protobuf/types/known/fieldmaskpb"
)

type projectService struct {
	client *resourcemanager.ProjectsClient
}

// ProjectName returns the "projects/..." form of a project ID or name.
func ProjectName(idOrName string) string {
	if strings.HasPrefix(idOrName, "projects/") {
		return idOrName
	}
	return "projects/" + idOrName
}

func (s *projectService) Get(ctx context.Context, name string) (*resourcemanagerpb.Project, error) {
	return s.client.GetProject(ctx, &resourcemanagerpb.GetProjectRequest{Name: ProjectName(name)})
}

func (s *projectService) Create(ctx context.Context, project *resourcemanagerpb.Project) (*resourcemanagerpb.Project, error) {
	op, err := s.client.CreateProject(ctx, &resourcemanagerpb.CreateProjectRequest{Project: project})
	if err != nil {
		return nil, err
	}
	return op.Wait(ctx)
}

func (s *projectService) Update(ctx context.Context, project *resourcemanagerpb.Project, paths []string) (*resourcemanagerpb.Project, error) {
	op, err := s.client.UpdateProject(ctx, &resourcemanagerpb.UpdateProjectRequest{
		Project:    project,
		UpdateMask: &fieldmaskpb.FieldMask{Paths: paths},
	})
	if err != nil {
		return nil, err
	}
	return op.Wait(ctx)
}

func (s *projectService) Move(ctx context.Context, name, parent string) (*resourcemanagerpb.Project, error) {
	op, err := s.client.MoveProject(ctx, &resourcemanagerpb.MoveProjectRequest{
		Name:              name,
		DestinationParent: parent,
	})
	if err != nil {
		return nil, err
	}
	return op.Wait(ctx)
}

func (s *projectService) Delete(ctx context.Context, name string) error {
	op, err := s.client.DeleteProject(ctx, &resourcemanagerpb.DeleteProjectRequest{Name: name})
	if err != nil {
		return err
	}
	_, err = op.Wait(ctx)
	return err
}

func (s *projectService) Undelete(ctx context.Context, name string) (*resourcemanagerpb.Project, error) {
	op, err := s.client.UndeleteProject(ctx, &resourcemanagerpb.UndeleteProjectRequest{Name: name})
	if err != nil {
		return nil, err
	}
	return op.Wait(ctx)
}
