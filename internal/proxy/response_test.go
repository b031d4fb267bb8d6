package proxy

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"launchpad/internal/compute"
)

func TestFailureStatusMatchesError(t *testing.T) {
	cases := []*compute.Error{
		compute.New("generic"),
		compute.New("override", compute.WithStatusCode(502)),
		compute.NewComputeProjectError("bad config"),
		compute.NewProjectError("project", compute.WithStatusCode(409)),
		compute.NewProjectTimeoutError("slow"),
	}
	for _, e := range cases {
		resp := Failure(e)
		if resp.StatusCode != e.StatusCode {
			t.Fatalf("%s: status %d, want %d", e.Kind, resp.StatusCode, e.StatusCode)
		}
		if resp.Headers["Content-Type"] != "application/json" {
			t.Fatalf("missing content type: %+v", resp.Headers)
		}
		var body struct {
			Title   string `json:"title"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
			t.Fatalf("body not json: %v", err)
		}
		if body.Title != e.Title || body.Message != e.Message {
			t.Fatalf("unexpected body %+v for %+v", body, e)
		}
	}
}

func TestFailureClassifiesPlainErrors(t *testing.T) {
	resp := Build(Outcome{Err: errors.New("socket closed")})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if !bytes.Contains([]byte(resp.Body), []byte("socket closed")) {
		t.Fatalf("cause missing from body %s", resp.Body)
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{0x00},
		{0xff, 0xfe, 0xfd},
		{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00},
		bytes.Repeat([]byte{0xc3, 0x28}, 64),
	}
	for _, p := range payloads {
		resp := Build(Outcome{Payload: Payload{Body: p}})
		if !resp.IsBase64Encoded {
			t.Fatalf("payload %x not flagged as base64", p)
		}
		got, err := resp.DecodeBody()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !bytes.Equal(got, p) {
			t.Fatalf("round trip mismatch: %x vs %x", got, p)
		}
	}
}

func TestTextPayload(t *testing.T) {
	resp := Success(Payload{Body: []byte(`{"ok":true}`), ContentType: "application/json"})
	if resp.StatusCode != http.StatusOK || resp.IsBase64Encoded || resp.Body != `{"ok":true}` {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Headers["Content-Type"] != "application/json" {
		t.Fatalf("content type not set: %+v", resp.Headers)
	}

	// utf-8 text declared as binary stays base64
	resp = Success(Payload{StatusCode: 201, Body: []byte("abc"), ContentType: "application/octet-stream"})
	if !resp.IsBase64Encoded || resp.StatusCode != 201 {
		t.Fatalf("expected base64 for octet-stream, got %+v", resp)
	}
}

func TestEmptyBody(t *testing.T) {
	resp := Success(Payload{StatusCode: http.StatusNoContent})
	if resp.Body != "" || resp.IsBase64Encoded {
		t.Fatalf("unexpected %+v", resp)
	}
	b, err := resp.DecodeBody()
	if err != nil || len(b) != 0 {
		t.Fatalf("missing body should decode empty: %v %v", b, err)
	}
	raw, _ := json.Marshal(resp)
	if bytes.Contains(raw, []byte("body")) || bytes.Contains(raw, []byte("isBase64Encoded")) {
		t.Fatalf("optional fields should be omitted: %s", raw)
	}
}

func TestMultiValueHeadersWin(t *testing.T) {
	resp := Success(Payload{
		Headers:           map[string]string{"set-cookie": "a=1", "x-one": "1"},
		MultiValueHeaders: map[string][]string{"Set-Cookie": {"a=2", "b=3"}},
		Body:              []byte("hi"),
		ContentType:       "text/plain",
	})
	if _, ok := resp.Headers["Set-Cookie"]; ok {
		t.Fatalf("single value duplicate should be dropped: %+v", resp.Headers)
	}
	if resp.Headers["X-One"] != "1" {
		t.Fatalf("keys should be canonical: %+v", resp.Headers)
	}
	h := resp.Header()
	if got := h.Values("Set-Cookie"); len(got) != 2 || got[0] != "a=2" {
		t.Fatalf("unexpected merged header %v", got)
	}
}

func TestWrite(t *testing.T) {
	p := []byte{0x01, 0x02, 0xff}
	resp := Success(Payload{StatusCode: 202, Body: p, Headers: map[string]string{"X-Trace": "t1"}})
	rec := httptest.NewRecorder()
	if err := resp.Write(rec); err != nil {
		t.Fatalf("write: %v", err)
	}
	res := rec.Result()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode != 202 || !bytes.Equal(body, p) || res.Header.Get("X-Trace") != "t1" {
		t.Fatalf("unexpected http response %d %x %v", res.StatusCode, body, res.Header)
	}
}

func TestSuccessRejectsInvalidStatus(t *testing.T) {
	for _, code := range []int{42, 600, 1200} {
		resp := Success(Payload{StatusCode: code, Body: []byte("hi")})
		if resp.StatusCode != http.StatusBadGateway {
			t.Fatalf("status %d: got %d", code, resp.StatusCode)
		}
		var body errorBody
		if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
			t.Fatalf("status %d: decode: %v", code, err)
		}
		if body.Title != "Bad Gateway" || !strings.Contains(body.Message, "invalid status code") {
			t.Fatalf("status %d: unexpected body %+v", code, body)
		}
		rec := httptest.NewRecorder()
		if err := resp.Write(rec); err != nil {
			t.Fatalf("status %d: write: %v", code, err)
		}
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("status %d: wrote %d", code, rec.Code)
		}
	}
}

type rawStatus struct{ code int }

func (e rawStatus) Error() string    { return "raw" }
func (e rawStatus) GetStatus() int   { return e.code }
func (e rawStatus) GetTitle() string { return "Raw" }

func TestFailureClampsStatus(t *testing.T) {
	if got := Failure(compute.New("x", compute.WithStatusCode(-7))).StatusCode; got != http.StatusInternalServerError {
		t.Fatalf("negative override should keep the default, got %d", got)
	}
	resp := Failure(rawStatus{code: 1200})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("out of range status should fall back to 500, got %d", resp.StatusCode)
	}
	if err := resp.Write(httptest.NewRecorder()); err != nil {
		t.Fatalf("write: %v", err)
	}
}
