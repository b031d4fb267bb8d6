package resolve

import (
	"errors"
	"fmt"
	"net/http"
)

// Level names one step of the resolution chain.
type Level string

const (
	LevelOrganization Level = "organization"
	LevelProject      Level = "project"
	LevelEnvironment  Level = "environment"
	LevelCloudBackend Level = "cloud_backend"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)

// NotFoundError reports a slug that does not exist under its resolved parent.
type NotFoundError struct {
	Level Level
	Slug  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Level, e.Slug)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func (e *NotFoundError) GetStatus() int   { return http.StatusNotFound }
func (e *NotFoundError) GetTitle() string { return "Not Found" }

// ForbiddenError reports a slug that resolved but lacks the required
// permission for the caller.
type ForbiddenError struct {
	Level      Level
	Slug       string
	Permission string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required on %s %q", e.Permission, e.Level, e.Slug)
}

func (e *ForbiddenError) Is(target error) bool { return target == ErrForbidden }

func (e *ForbiddenError) GetStatus() int   { return http.StatusForbidden }
func (e *ForbiddenError) GetTitle() string { return "Forbidden" }

// lookupFailure maps an error returned by a Lookup into the chain's
// taxonomy. Transport errors that carry an HTTP status are recognised by
// their GetStatus method.
func lookupFailure(level Level, slug string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return &NotFoundError{Level: level, Slug: slug}
	}
	if errors.Is(err, ErrForbidden) {
		return &ForbiddenError{Level: level, Slug: slug, Permission: "read"}
	}
	var se interface{ GetStatus() int }
	if errors.As(err, &se) {
		switch se.GetStatus() {
		case http.StatusNotFound:
			return &NotFoundError{Level: level, Slug: slug}
		case http.StatusForbidden:
			return &ForbiddenError{Level: level, Slug: slug, Permission: "read"}
		}
	}
	return fmt.Errorf("resolve %s %q: %w", level, slug, err)
}
