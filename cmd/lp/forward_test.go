package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"launchpad/internal/compute"
	launchpadsdk "launchpad/sdk/go"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestForwardHandlerPassesRequestThrough(t *testing.T) {
	var got launchpadsdk.InvokeRequest
	inv := func(ctx context.Context, req launchpadsdk.InvokeRequest) (launchpadsdk.InvokeResult, error) {
		got = req
		return launchpadsdk.InvokeResult{
			StatusCode:        http.StatusCreated,
			Headers:           map[string]string{"Content-Type": "text/plain"},
			MultiValueHeaders: map[string][]string{"Set-Cookie": {"a=1", "b=2"}},
			Body:              []byte("created"),
		}, nil
	}
	srv := httptest.NewServer(forwardHandler(inv, discardLogger()))
	defer srv.Close()

	res, err := http.Post(srv.URL+"/items?x=1", "application/json", strings.NewReader(`{"n":1}`))
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)

	if got.Method != http.MethodPost || got.Path != "/items" || got.Query.Get("x") != "1" || string(got.Body) != `{"n":1}` {
		t.Fatalf("unexpected forwarded request %+v", got)
	}
	if res.StatusCode != http.StatusCreated || string(body) != "created" {
		t.Fatalf("unexpected response %d %q", res.StatusCode, body)
	}
	if cookies := res.Header.Values("Set-Cookie"); len(cookies) != 2 {
		t.Fatalf("multi-value headers lost: %v", cookies)
	}
}

func TestForwardHandlerRendersFailures(t *testing.T) {
	inv := func(ctx context.Context, req launchpadsdk.InvokeRequest) (launchpadsdk.InvokeResult, error) {
		return launchpadsdk.InvokeResult{}, context.DeadlineExceeded
	}
	srv := httptest.NewServer(forwardHandler(inv, discardLogger()))
	defer srv.Close()

	res, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	var env struct {
		Title   string `json:"title"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if res.StatusCode != 535 || env.Title != "Project Timeout Error" {
		t.Fatalf("expected project timeout, got %d %+v", res.StatusCode, env)
	}
}

func TestForwardHandlerRejectsOversizedBody(t *testing.T) {
	called := false
	inv := func(ctx context.Context, req launchpadsdk.InvokeRequest) (launchpadsdk.InvokeResult, error) {
		called = true
		return launchpadsdk.InvokeResult{}, nil
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", maxProxyBody+1)))
	forwardHandler(inv, discardLogger()).ServeHTTP(rec, req)
	if called {
		t.Fatalf("oversized body must not be forwarded")
	}
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	var body struct{ Title, Message string }
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Title != "Request Entity Too Large" || !strings.Contains(body.Message, "exceeds") {
		t.Fatalf("unexpected envelope %+v", body)
	}
	if kind := bodyTooLarge(maxProxyBody).Kind; kind != compute.KindCompute {
		t.Fatalf("oversized body is not a project failure, got kind %v", kind)
	}
}

func TestOrgBackendPath(t *testing.T) {
	p, err := targetPath([]string{"acme/shared"})
	if err != nil {
		t.Fatal(err)
	}
	p, err = orgBackendPath(p)
	if err != nil {
		t.Fatalf("org backend: %v", err)
	}
	if !p.OrganizationBackend || p.CloudBackend != "shared" || p.Project != "" {
		t.Fatalf("unexpected path %+v", p)
	}
	p, _ = targetPath([]string{"acme/web/prod"})
	if _, err := orgBackendPath(p); err == nil {
		t.Fatalf("three segments cannot name an organization backend")
	}
}
