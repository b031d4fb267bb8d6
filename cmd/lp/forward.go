package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"launchpad/internal/compute"
	"launchpad/internal/proxy"
	launchpadsdk "launchpad/sdk/go"
)

// forwardHandler turns each HTTP request into one invocation and writes the
// proxy response event back. Failures are already classified by proxy.Build,
// so the caller always gets the {title, message} envelope.
func forwardHandler(inv invoker, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		var outcome proxy.Outcome
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxProxyBody))
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			outcome.Err = bodyTooLarge(tooLarge.Limit)
		case err != nil:
			outcome.Err = fmt.Errorf("read request body: %w", err)
		default:
			outcome = proxy.FromInvocation(inv(r.Context(), launchpadsdk.InvokeRequest{
				Method:  r.Method,
				Path:    r.URL.Path,
				Query:   r.URL.Query(),
				Headers: r.Header.Clone(),
				Body:    body,
			}))
		}
		resp := proxy.Build(outcome)
		if err := resp.Write(w); err != nil {
			log.Warn("write proxy response", "err", err)
		}
		attrs := []any{"method", r.Method, "path", r.URL.Path, "status", resp.StatusCode, "duration", time.Since(start)}
		if outcome.Err != nil {
			log.Warn("invocation failed", append(attrs, "err", outcome.Err)...)
			return
		}
		log.Info("invocation", attrs...)
	})
}

// bodyTooLarge is the caller's fault, not the project's.
func bodyTooLarge(limit int64) *compute.Error {
	return compute.New(
		fmt.Sprintf("request body exceeds %d bytes", limit),
		compute.WithTitle(http.StatusText(http.StatusRequestEntityTooLarge)),
		compute.WithStatusCode(http.StatusRequestEntityTooLarge),
	)
}
