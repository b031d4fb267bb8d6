package auth

import (
	"context"
	"errors"
	"fmt"

	"launchpad/internal/domain"
	"launchpad/internal/repo"
)

// ForbiddenError indicates a missing permission on a resource.
type ForbiddenError struct {
	Permission string
	Kind       string
	ID         string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required on %s %s", e.Permission, e.Kind, e.ID)
}

// Target names one resource in an ancestry walk.
type Target struct {
	Kind string
	ID   string
}

// Service computes permission descriptors from stored grants.
type Service struct {
	Repo repo.Repo
}

// Descriptor returns the caller's permissions on the first target. Targets
// are ordered most specific first; the first one carrying a grant decides.
// With no grant anywhere the caller has no access.
func (s Service) Descriptor(ctx context.Context, actorID string, targets ...Target) (domain.Can, error) {
	for _, t := range targets {
		can, err := s.Repo.GetGrant(ctx, actorID, t.Kind, t.ID)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			return domain.Can{}, err
		}
		return can, nil
	}
	return domain.Can{}, nil
}

// Require fails unless perm is allowed by can.
func Require(can domain.Can, perm string, t Target) error {
	var ok bool
	switch perm {
	case "read":
		ok = can.Read
	case "update":
		ok = can.Update
	case "delete":
		ok = can.Delete
	}
	if !ok {
		return ForbiddenError{Permission: perm, Kind: t.Kind, ID: t.ID}
	}
	return nil
}
