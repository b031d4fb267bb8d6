package compute

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	launchpadsdk "launchpad/sdk/go"
)

const maxBodyMessage = 512

// Classify maps any invocation failure into the taxonomy. Values that already
// carry a status are returned unchanged.
func Classify(err error) StatusError {
	if err == nil {
		return nil
	}
	var se StatusError
	if errors.As(err, &se) {
		return se
	}
	if IsTimeout(err) {
		return NewProjectTimeoutError("invocation exceeded its timeout", WithCause(err))
	}
	var apiErr *launchpadsdk.APIError
	if errors.As(err, &apiErr) {
		return fromAPIError(apiErr)
	}
	return New("", WithCause(err))
}

// IsTimeout reports a context deadline or a transport timeout anywhere in
// err's chain.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func fromAPIError(e *launchpadsdk.APIError) *Error {
	title, message := ParseErrorBody(e.Body)
	var opts []Option
	if title != "" {
		opts = append(opts, WithTitle(title))
	}
	opts = append(opts, WithCause(e))
	switch e.StatusCode {
	case StatusProjectError:
		return NewComputeProjectError(message, opts...)
	case StatusProjectTimeout:
		return NewProjectTimeoutError(message, opts...)
	case http.StatusGatewayTimeout:
		return NewProjectTimeoutError(message, append(opts, WithStatusCode(http.StatusGatewayTimeout))...)
	}
	if title == "" {
		if text := http.StatusText(e.StatusCode); text != "" {
			opts = append(opts, WithTitle(text))
		}
	}
	return New(message, append(opts, WithStatusCode(e.StatusCode))...)
}

// ParseErrorBody reads {"title","message"} or the {"error":{"message"}}
// envelope, falling back to the raw text.
func ParseErrorBody(body string) (string, string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", ""
	}
	var payload struct {
		Title   string `json:"title"`
		Message string `json:"message"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err == nil {
		msg := payload.Message
		if msg == "" && payload.Error != nil {
			msg = payload.Error.Message
		}
		return payload.Title, msg
	}
	if len(body) > maxBodyMessage {
		body = body[:maxBodyMessage] + "..."
	}
	return "", body
}
