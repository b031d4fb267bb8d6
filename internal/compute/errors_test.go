package compute

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	launchpadsdk "launchpad/sdk/go"
)

func TestComputeProjectErrorDefaults(t *testing.T) {
	err := NewComputeProjectError("")
	if err.Title != "Project Error" || err.StatusCode != 534 {
		t.Fatalf("unexpected defaults %+v", err)
	}
	if err.Kind != KindComputeProject {
		t.Fatalf("unexpected kind %s", err.Kind)
	}
}

func TestProjectTimeoutKeepsDefaultsWithMessage(t *testing.T) {
	err := NewProjectTimeoutError("took longer than 30s")
	if err.Title != "Project Timeout Error" || err.StatusCode != StatusProjectTimeout {
		t.Fatalf("unexpected defaults %+v", err)
	}
	if err.Message != "took longer than 30s" {
		t.Fatalf("unexpected message %q", err.Message)
	}
}

func TestBaseSentinels(t *testing.T) {
	if e := New(""); e.Title != "Compute Error" || e.StatusCode != http.StatusInternalServerError {
		t.Fatalf("unexpected compute defaults %+v", e)
	}
	if e := NewProjectError(""); e.Title != "Project Error" || e.StatusCode != http.StatusInternalServerError {
		t.Fatalf("unexpected project defaults %+v", e)
	}
}

func TestOverridesWinOverDefaults(t *testing.T) {
	cause := errors.New("exit status 137")
	err := NewComputeProjectError("out of memory", WithTitle("Memory Error"), WithStatusCode(507), WithCause(cause))
	if err.Title != "Memory Error" || err.StatusCode != 507 {
		t.Fatalf("overrides ignored: %+v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause not chained")
	}
	// a title-only override keeps the variant status
	err = NewProjectTimeoutError("", WithTitle("Slow"))
	if err.StatusCode != StatusProjectTimeout || err.Title != "Slow" {
		t.Fatalf("partial override: %+v", err)
	}
}

func TestErrorString(t *testing.T) {
	err := NewComputeProjectError("bad handler")
	if got := err.Error(); got != "Project Error (534): bad handler" {
		t.Fatalf("unexpected %q", got)
	}
	if got := New("", WithCause(errors.New("boom"))).Detail(); got != "boom" {
		t.Fatalf("detail should fall back to cause, got %q", got)
	}
}

func TestClassify(t *testing.T) {
	if Classify(nil) != nil {
		t.Fatalf("nil should stay nil")
	}
	orig := NewProjectError("x")
	if got := Classify(fmt.Errorf("wrapped: %w", orig)); got != orig {
		t.Fatalf("expected existing error to pass through, got %v", got)
	}

	got := Classify(fmt.Errorf("call: %w", context.DeadlineExceeded))
	if got.GetStatus() != StatusProjectTimeout {
		t.Fatalf("deadline should be a timeout, got %v", got)
	}

	got = Classify(&launchpadsdk.APIError{StatusCode: 534, Body: `{"title":"Project Error","message":"handler not found"}`})
	ce, ok := got.(*Error)
	if !ok || ce.Kind != KindComputeProject || ce.Message != "handler not found" {
		t.Fatalf("unexpected classification %#v", got)
	}

	got = Classify(&launchpadsdk.APIError{StatusCode: 535, Body: "timed out"})
	ce = got.(*Error)
	if ce.Kind != KindProjectTimeout || ce.Message != "timed out" || ce.Title != "Project Timeout Error" {
		t.Fatalf("unexpected timeout classification %+v", ce)
	}

	got = Classify(&launchpadsdk.APIError{StatusCode: 502, Body: `{"error":{"code":"bad_gateway","message":"upstream died"}}`})
	ce = got.(*Error)
	if ce.Kind != KindCompute || ce.StatusCode != 502 || ce.Title != "Bad Gateway" || ce.Message != "upstream died" {
		t.Fatalf("unexpected generic classification %+v", ce)
	}

	got = Classify(&url.Error{Op: "Post", URL: "https://api.example/v1/environments/e/invoke", Err: transportTimeout{}})
	ce = got.(*Error)
	if ce.Kind != KindProjectTimeout || ce.StatusCode != StatusProjectTimeout {
		t.Fatalf("client timeout should be a project timeout, got %+v", ce)
	}

	got = Classify(&launchpadsdk.APIError{StatusCode: http.StatusGatewayTimeout, Body: "upstream timed out"})
	ce = got.(*Error)
	if ce.Kind != KindProjectTimeout || ce.Title != "Project Timeout Error" || ce.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("504 should be a project timeout that keeps its status, got %+v", ce)
	}

	got = Classify(errors.New("connection refused"))
	if got.GetStatus() != http.StatusInternalServerError || got.GetTitle() != "Compute Error" {
		t.Fatalf("unexpected fallback %v", got)
	}
}

type transportTimeout struct{}

func (transportTimeout) Error() string { return "Client.Timeout exceeded while awaiting headers" }
func (transportTimeout) Timeout() bool { return true }

func TestStatusOverrideOutsideHTTPRange(t *testing.T) {
	for _, code := range []int{-7, 42, 600, 1200} {
		if got := New("x", WithStatusCode(code)).StatusCode; got != http.StatusInternalServerError {
			t.Fatalf("override %d should be ignored, got %d", code, got)
		}
		if got := NewProjectTimeoutError("x", WithStatusCode(code)).StatusCode; got != StatusProjectTimeout {
			t.Fatalf("override %d should keep the timeout default, got %d", code, got)
		}
	}
	if got := New("x", WithStatusCode(599)).StatusCode; got != 599 {
		t.Fatalf("599 is a valid override, got %d", got)
	}
}
