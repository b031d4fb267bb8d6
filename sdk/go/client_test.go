package launchpadsdk

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLookupSendsAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/organizations/org-1/projects/slug/web" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "secret" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("X-Request-Id") == "" {
			t.Errorf("missing request id")
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ResourceRef{ID: "prj-1", Slug: "web", Can: Can{Read: true}})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	ref, err := c.ProjectBySlug(context.Background(), "org-1", "web")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if ref.ID != "prj-1" || !ref.Can.Read || ref.Can.Update {
		t.Fatalf("unexpected ref %+v", ref)
	}
}

func TestNon2xxIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"title":"Not Found","message":"no such organization"}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k").OrganizationBySlug(context.Background(), "nope")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.GetStatus() != http.StatusNotFound {
		t.Fatalf("unexpected status %d", apiErr.StatusCode)
	}
}

func TestInvokeDecodesBase64Body(t *testing.T) {
	payload := []byte{0x00, 0xff, 0x10, 0x80}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in invokeEnvelope
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if in.Method != http.MethodPost || in.Path != "/upload" || !in.IsBase64Encoded {
			t.Errorf("unexpected envelope %+v", in)
		}
		if got, _ := base64.StdEncoding.DecodeString(in.Body); string(got) != "hello" {
			t.Errorf("unexpected request body %q", got)
		}
		body := base64.StdEncoding.EncodeToString(payload)
		_ = json.NewEncoder(w).Encode(resultEnvelope{
			StatusCode:      201,
			Headers:         map[string]string{"Content-Type": "application/octet-stream"},
			Body:            &body,
			IsBase64Encoded: true,
		})
	}))
	defer srv.Close()

	res, err := New(srv.URL, "k").InvokeEnvironment(context.Background(), "env-1", InvokeRequest{
		Method: http.MethodPost,
		Path:   "upload",
		Body:   []byte("hello"),
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if res.StatusCode != 201 || string(res.Body) != string(payload) {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestBearerTokenWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" || r.Header.Get("X-Api-Key") != "" {
			t.Errorf("unexpected auth headers %v", r.Header)
		}
		_ = json.NewEncoder(w).Encode(Identity{ActorID: "alice"})
	}))
	defer srv.Close()

	c := New(srv.URL, "key")
	c.BearerToken = "tok"
	who, err := c.WhoAmI(context.Background())
	if err != nil || who.ActorID != "alice" {
		t.Fatalf("whoami: %v %+v", err, who)
	}
}
