// Package proxy renders invocation outcomes as proxy response events: the
// {statusCode, headers, multiValueHeaders, body, isBase64Encoded} envelope
// understood by HTTP gateways.
package proxy

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"launchpad/internal/compute"
	launchpadsdk "launchpad/sdk/go"
)

// Response is the proxy response event. A missing body means empty.
type Response struct {
	StatusCode        int                 `json:"statusCode"`
	Headers           map[string]string   `json:"headers,omitempty"`
	MultiValueHeaders map[string][]string `json:"multiValueHeaders,omitempty"`
	Body              string              `json:"body,omitempty"`
	IsBase64Encoded   bool                `json:"isBase64Encoded,omitempty"`
}

// Payload is a successful invocation result before encoding.
type Payload struct {
	StatusCode        int
	Headers           map[string]string
	MultiValueHeaders map[string][]string
	Body              []byte
	ContentType       string
}

// Outcome is either a payload or a failure. Err takes precedence.
type Outcome struct {
	Payload Payload
	Err     error
}

// Build renders any outcome.
func Build(o Outcome) Response {
	if o.Err != nil {
		return Failure(o.Err)
	}
	return Success(o.Payload)
}

// FromInvocation adapts an SDK invocation result.
func FromInvocation(res launchpadsdk.InvokeResult, err error) Outcome {
	if err != nil {
		return Outcome{Err: err}
	}
	return Outcome{Payload: Payload{
		StatusCode:        res.StatusCode,
		Headers:           res.Headers,
		MultiValueHeaders: res.MultiValueHeaders,
		Body:              res.Body,
	}}
}

// Success encodes a payload. Bodies that are not valid UTF-8 text are base64
// encoded and flagged. A status that HTTP cannot carry becomes a 502 failure.
func Success(p Payload) Response {
	resp := Response{StatusCode: p.StatusCode}
	if resp.StatusCode <= 0 {
		resp.StatusCode = http.StatusOK
	}
	if !compute.ValidStatus(resp.StatusCode) {
		return Failure(compute.New(
			fmt.Sprintf("function returned invalid status code %d", p.StatusCode),
			compute.WithStatusCode(http.StatusBadGateway),
			compute.WithTitle(http.StatusText(http.StatusBadGateway)),
		))
	}
	resp.Headers, resp.MultiValueHeaders = normalizeHeaders(p.Headers, p.MultiValueHeaders)

	contentType := p.ContentType
	if contentType == "" {
		contentType = headerValue(resp, "Content-Type")
	}
	if contentType == "" && len(p.Body) > 0 {
		contentType = http.DetectContentType(p.Body)
		resp.Headers = setHeader(resp.Headers, resp.MultiValueHeaders, "Content-Type", contentType)
	} else if p.ContentType != "" {
		resp.Headers = setHeader(resp.Headers, resp.MultiValueHeaders, "Content-Type", p.ContentType)
	}

	if len(p.Body) == 0 {
		return resp
	}
	if isText(contentType, p.Body) {
		resp.Body = string(p.Body)
		return resp
	}
	resp.Body = base64.StdEncoding.EncodeToString(p.Body)
	resp.IsBase64Encoded = true
	return resp
}

type errorBody struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Failure classifies err and renders {title, message} as JSON.
func Failure(err error) Response {
	se := compute.Classify(err)
	if se == nil {
		se = compute.New("unknown failure")
	}
	message := se.Error()
	if ce, ok := se.(*compute.Error); ok {
		message = ce.Detail()
	}
	body, mErr := json.Marshal(errorBody{Title: se.GetTitle(), Message: message})
	if mErr != nil {
		body = []byte(fmt.Sprintf(`{"title":%q,"message":""}`, se.GetTitle()))
	}
	status := se.GetStatus()
	if !compute.ValidStatus(status) {
		status = http.StatusInternalServerError
	}
	return Response{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

// DecodeBody returns the raw body bytes.
func (r Response) DecodeBody() ([]byte, error) {
	if r.Body == "" {
		return nil, nil
	}
	if !r.IsBase64Encoded {
		return []byte(r.Body), nil
	}
	b, err := base64.StdEncoding.DecodeString(r.Body)
	if err != nil {
		return nil, fmt.Errorf("decode base64 body: %w", err)
	}
	return b, nil
}

// Header merges both header maps; multi-value entries win.
func (r Response) Header() http.Header {
	h := http.Header{}
	for k, v := range r.Headers {
		h.Set(k, v)
	}
	for k, vs := range r.MultiValueHeaders {
		h[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	return h
}

// Write sends the response over HTTP.
func (r Response) Write(w http.ResponseWriter) error {
	body, err := r.DecodeBody()
	if err != nil {
		return err
	}
	dst := w.Header()
	for k, vs := range r.Header() {
		dst[k] = vs
	}
	w.WriteHeader(r.StatusCode)
	_, err = w.Write(body)
	return err
}

func normalizeHeaders(single map[string]string, multi map[string][]string) (map[string]string, map[string][]string) {
	var outMulti map[string][]string
	for k, vs := range multi {
		if outMulti == nil {
			outMulti = map[string][]string{}
		}
		key := http.CanonicalHeaderKey(k)
		outMulti[key] = append(outMulti[key], vs...)
	}
	var outSingle map[string]string
	for k, v := range single {
		key := http.CanonicalHeaderKey(k)
		if _, ok := outMulti[key]; ok {
			continue
		}
		if outSingle == nil {
			outSingle = map[string]string{}
		}
		outSingle[key] = v
	}
	return outSingle, outMulti
}

func headerValue(r Response, key string) string {
	if vs := r.MultiValueHeaders[key]; len(vs) > 0 {
		return vs[0]
	}
	return r.Headers[key]
}

func setHeader(single map[string]string, multi map[string][]string, key, value string) map[string]string {
	if _, ok := multi[key]; ok {
		return single
	}
	if single == nil {
		single = map[string]string{}
	}
	single[key] = value
	return single
}

func isText(contentType string, body []byte) bool {
	if !utf8.Valid(body) {
		return false
	}
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case strings.HasSuffix(mediaType, "+json"), strings.HasSuffix(mediaType, "+xml"):
		return true
	}
	switch mediaType {
	case "application/json", "application/xml", "application/javascript",
		"application/x-www-form-urlencoded", "application/graphql":
		return true
	}
	return false
}
