// Package compute classifies failed compute invocations.
//
// Every failure is one *Error tagged with a Kind. Constructors merge their
// defaults in a fixed order (family defaults, then variant defaults, then
// caller options) so the most specific setting always wins.
package compute

import (
	"fmt"
	"net/http"
)

// Platform-reserved statuses.
const (
	StatusProjectError   = 534
	StatusProjectTimeout = 535
)

type Kind int

const (
	KindCompute Kind = iota
	KindComputeProject
	KindProject
	KindProjectTimeout
)

func (k Kind) String() string {
	switch k {
	case KindComputeProject:
		return "compute_project"
	case KindProject:
		return "project"
	case KindProjectTimeout:
		return "project_timeout"
	default:
		return "compute"
	}
}

// StatusError is anything that can be rendered as a proxy response.
type StatusError interface {
	error
	GetStatus() int
	GetTitle() string
}

// Error is a classified invocation failure. It is not modified after
// construction.
type Error struct {
	Kind       Kind
	Title      string
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if msg == "" {
		return fmt.Sprintf("%s (%d)", e.Title, e.StatusCode)
	}
	return fmt.Sprintf("%s (%d): %s", e.Title, e.StatusCode, msg)
}

func (e *Error) Unwrap() error    { return e.Cause }
func (e *Error) GetStatus() int   { return e.StatusCode }
func (e *Error) GetTitle() string { return e.Title }

// Detail is the message shown to users, falling back to the cause.
func (e *Error) Detail() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return ""
}

// Options override a variant's defaults. Zero fields and status codes outside
// the HTTP range are ignored.
type Options struct {
	Title      string
	StatusCode int
	Cause      error
}

type Option func(*Options)

func WithTitle(title string) Option {
	return func(o *Options) { o.Title = title }
}

func WithStatusCode(code int) Option {
	return func(o *Options) { o.StatusCode = code }
}

func WithCause(err error) Option {
	return func(o *Options) { o.Cause = err }
}

// merge layers src over dst; later layers win field by field.
func (dst Options) merge(src Options) Options {
	if src.Title != "" {
		dst.Title = src.Title
	}
	if ValidStatus(src.StatusCode) {
		dst.StatusCode = src.StatusCode
	}
	if src.Cause != nil {
		dst.Cause = src.Cause
	}
	return dst
}

// ValidStatus reports whether code can be written as an HTTP status.
func ValidStatus(code int) bool {
	return code >= 100 && code <= 599
}

var (
	computeDefaults = Options{Title: "Compute Error", StatusCode: http.StatusInternalServerError}
	projectDefaults = Options{Title: "Project Error", StatusCode: http.StatusInternalServerError}
)

func build(kind Kind, message string, layers []Options, opts []Option) *Error {
	var merged Options
	for _, l := range layers {
		merged = merged.merge(l)
	}
	var caller Options
	for _, opt := range opts {
		opt(&caller)
	}
	merged = merged.merge(caller)
	return &Error{
		Kind:       kind,
		Title:      merged.Title,
		StatusCode: merged.StatusCode,
		Message:    message,
		Cause:      merged.Cause,
	}
}

// New returns a generic compute failure.
func New(message string, opts ...Option) *Error {
	return build(KindCompute, message, []Options{computeDefaults}, opts)
}

// NewComputeProjectError reports a failure caused by project configuration
// rather than by the platform.
func NewComputeProjectError(message string, opts ...Option) *Error {
	return build(KindComputeProject, message, []Options{
		computeDefaults,
		{Title: "Project Error", StatusCode: StatusProjectError},
	}, opts)
}

// NewProjectError returns a generic project-scoped failure.
func NewProjectError(message string, opts ...Option) *Error {
	return build(KindProject, message, []Options{projectDefaults}, opts)
}

// NewProjectTimeoutError reports an invocation that ran past its timeout.
func NewProjectTimeoutError(message string, opts ...Option) *Error {
	return build(KindProjectTimeout, message, []Options{
		projectDefaults,
		{Title: "Project Timeout Error", StatusCode: StatusProjectTimeout},
	}, opts)
}
