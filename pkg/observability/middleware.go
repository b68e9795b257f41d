package observability

import (
	"net/http"
	"strconv"
	"time"
)

// InstrumentedTransport records request counts and latencies for outbound
// HTTP calls (LLM providers, weather API).
type InstrumentedTransport struct {
	// Base is the wrapped transport. http.DefaultTransport when nil.
	Base http.RoundTripper
}

// InstrumentClient returns a copy of c whose transport records metrics.
// A nil client yields a new client with the given timeout.
func InstrumentClient(c *http.Client, timeout time.Duration) *http.Client {
	if c == nil {
		return &http.Client{Timeout: timeout, Transport: &InstrumentedTransport{}}
	}
	cp := *c
	cp.Transport = &InstrumentedTransport{Base: c.Transport}
	return &cp
}

// RoundTrip implements http.RoundTripper.
func (t *InstrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	host := req.URL.Host

	start := time.Now()
	resp, err := base.RoundTrip(req)
	HTTPClientDuration.WithLabelValues(host).Observe(time.Since(start).Seconds())

	status := "error"
	if err == nil {
		status = statusClass(resp.StatusCode)
	}
	HTTPClientRequestsTotal.WithLabelValues(host, status).Inc()
	return resp, err
}

// statusClass maps an HTTP status code to its class label (2xx, 4xx, ...).
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return strconv.Itoa(code)
	}
	return strconv.Itoa(code/100) + "xx"
}
