package auth

import (
	"net/http"
	"time"
)

// identifyingTransport sets the identifying headers on every outbound
// request after all scheme headers, so a scheme cannot override them.
type identifyingTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *identifyingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	for k, v := range t.headers {
		out.Header.Set(k, v)
	}
	return t.base.RoundTrip(out)
}

// newHTTPClient derives the client used for outbound authentication calls
// from base, bounding each call by timeout.
func newHTTPClient(base *http.Client, timeout time.Duration, headers map[string]string) *http.Client {
	client := &http.Client{}
	if base != nil {
		*client = *base
	}

	rt := client.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	if len(headers) > 0 {
		rt = &identifyingTransport{base: rt, headers: copyHeaders(headers)}
	}
	client.Transport = rt

	if client.Timeout == 0 || timeout < client.Timeout {
		client.Timeout = timeout
	}
	return client
}
