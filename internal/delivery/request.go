package delivery

import (
	"maps"
	"net/http"
	"slices"
)

// Request is an immutable outbound message.
type Request struct {
	method  string
	url     string
	body    []byte
	headers map[string]string
}

// NewRequest copies its arguments so later changes by the caller do not leak in.
// An empty method defaults to POST.
func NewRequest(method, url string, body []byte, headers map[string]string) Request {
	if method == "" {
		method = http.MethodPost
	}

	return Request{
		method:  method,
		url:     url,
		body:    slices.Clone(body),
		headers: maps.Clone(headers),
	}
}

// Method returns the HTTP method.
func (r Request) Method() string { return r.method }

// URL returns the target URL.
func (r Request) URL() string { return r.url }

// Body returns a copy of the payload.
func (r Request) Body() []byte { return slices.Clone(r.body) }

// Header returns a single header value.
func (r Request) Header(name string) string { return r.headers[name] }

// Headers returns a copy of all headers.
func (r Request) Headers() map[string]string { return maps.Clone(r.headers) }
