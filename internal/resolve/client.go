package resolve

import (
	"context"

	"launchpad/internal/domain"
	launchpadsdk "launchpad/sdk/go"
)

// ClientLookup serves the chain from the platform API.
type ClientLookup struct {
	Client *launchpadsdk.Client
}

var _ Lookup = ClientLookup{}

func toRef(ref launchpadsdk.ResourceRef, err error) (domain.ResourceRef, error) {
	if err != nil {
		return domain.ResourceRef{}, err
	}
	return domain.ResourceRef{
		ID:   ref.ID,
		Slug: ref.Slug,
		Can:  domain.Can{Read: ref.Can.Read, Update: ref.Can.Update, Delete: ref.Can.Delete},
	}, nil
}

func (l ClientLookup) Organization(ctx context.Context, slug string) (domain.ResourceRef, error) {
	return toRef(l.Client.OrganizationBySlug(ctx, slug))
}

func (l ClientLookup) Project(ctx context.Context, org domain.ResourceRef, slug string) (domain.ResourceRef, error) {
	return toRef(l.Client.ProjectBySlug(ctx, org.ID, slug))
}

func (l ClientLookup) Environment(ctx context.Context, project domain.ResourceRef, slug string) (domain.ResourceRef, error) {
	return toRef(l.Client.EnvironmentBySlug(ctx, project.ID, slug))
}

func (l ClientLookup) EnvironmentCloudBackend(ctx context.Context, env domain.ResourceRef, slug string) (domain.ResourceRef, error) {
	return toRef(l.Client.EnvironmentCloudBackendBySlug(ctx, env.ID, slug))
}

func (l ClientLookup) OrganizationCloudBackend(ctx context.Context, org domain.ResourceRef, slug string) (domain.ResourceRef, error) {
	return toRef(l.Client.OrganizationCloudBackendBySlug(ctx, org.ID, slug))
}
