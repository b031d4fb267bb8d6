package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/charmbracelet/lipgloss"

	"launchpad/internal/compute"
	"launchpad/internal/credentials"
	launchpadsdk "launchpad/sdk/go"
)

// Failure is how every error reaches a user.
type Failure struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// StatusCancelled is reported when the user interrupts a command.
const StatusCancelled = 499

// Describe maps err to a Failure. Errors that carry their own status keep
// it. Only invocation paths classify into the compute taxonomy, so anything
// else gets a neutral HTTP title.
func Describe(err error) Failure {
	if err == nil {
		return Failure{}
	}
	if errors.Is(err, credentials.ErrMissingCredentials) {
		return Failure{Title: "Missing Credentials", Message: err.Error(), Status: http.StatusUnauthorized}
	}
	if errors.Is(err, context.Canceled) {
		return Failure{Title: "Cancelled", Message: err.Error(), Status: StatusCancelled}
	}
	var ce *compute.Error
	if errors.As(err, &ce) {
		return Failure{Title: ce.GetTitle(), Message: ce.Detail(), Status: ce.GetStatus()}
	}
	var se compute.StatusError
	if errors.As(err, &se) {
		return Failure{Title: se.GetTitle(), Message: se.Error(), Status: se.GetStatus()}
	}
	if compute.IsTimeout(err) {
		return Failure{Title: "Request Timeout", Message: err.Error(), Status: http.StatusGatewayTimeout}
	}
	var apiErr *launchpadsdk.APIError
	if errors.As(err, &apiErr) {
		return describeAPIError(apiErr)
	}
	return Failure{Title: "Error", Message: err.Error(), Status: http.StatusInternalServerError}
}

func describeAPIError(e *launchpadsdk.APIError) Failure {
	title, message := compute.ParseErrorBody(e.Body)
	status := e.StatusCode
	if !compute.ValidStatus(status) {
		status = http.StatusInternalServerError
	}
	if title == "" {
		title = http.StatusText(status)
	}
	if message == "" {
		message = e.Error()
	}
	return Failure{Title: title, Message: message, Status: status}
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	statusStyle = lipgloss.NewStyle().Faint(true)
)

// Error prints err to w, styled unless asJSON is set.
func Error(w io.Writer, err error, asJSON bool) {
	f := Describe(err)
	if asJSON {
		_ = JSON(w, f)
		return
	}
	fmt.Fprintf(w, "%s %s\n", titleStyle.Render(f.Title), statusStyle.Render(fmt.Sprintf("(%d)", f.Status)))
	if f.Message != "" {
		fmt.Fprintln(w, f.Message)
	}
}

// Usage marks err as a mistake in the command line rather than a platform
// failure.
func Usage(err error) error {
	if err == nil {
		return nil
	}
	return usageError{err}
}

type usageError struct{ error }

func (e usageError) Unwrap() error  { return e.error }
func (usageError) GetStatus() int   { return http.StatusBadRequest }
func (usageError) GetTitle() string { return "Invalid Usage" }
