// internal/gateway/capture.go
package gateway

import (
	"bytes"
	"net/http"
)

// responseCapture buffers a downstream response so it can be inspected
// before anything reaches the client. Headers are snapshotted when the
// status is written, matching what net/http would have sent.
type responseCapture struct {
	header      http.Header
	snapshot    http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
	discardBody bool
}

func newResponseCapture(initial http.Header) *responseCapture {
	return &responseCapture{
		header: initial.Clone(),
		status: http.StatusOK,
	}
}

// newProbeCapture records only status and headers.
func newProbeCapture() *responseCapture {
	return &responseCapture{
		header:      make(http.Header),
		status:      http.StatusOK,
		discardBody: true,
	}
}

func (c *responseCapture) Header() http.Header {
	return c.header
}

func (c *responseCapture) WriteHeader(status int) {
	// 1xx responses are interim; the final status is still to come
	if status >= 100 && status < 200 && status != http.StatusSwitchingProtocols {
		return
	}
	if c.wroteHeader {
		return
	}
	c.status = status
	c.wroteHeader = true
	c.snapshot = c.header.Clone()
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if !c.wroteHeader {
		c.WriteHeader(http.StatusOK)
	}
	if c.discardBody {
		return len(b), nil
	}
	return c.body.Write(b)
}

// Flush is a no-op; the body is released in one piece by replay.
func (c *responseCapture) Flush() {}

// Status returns the final status, defaulting to 200 like net/http.
func (c *responseCapture) Status() int {
	return c.status
}

// SentHeader returns the headers as they stood when the status was written.
func (c *responseCapture) SentHeader() http.Header {
	if c.wroteHeader {
		return c.snapshot
	}
	return c.header
}

// replay writes the captured response to w unchanged.
func (c *responseCapture) replay(w http.ResponseWriter) {
	dst := w.Header()
	for k := range dst {
		delete(dst, k)
	}
	for k, v := range c.SentHeader() {
		dst[k] = v
	}
	w.WriteHeader(c.status)
	if c.body.Len() > 0 {
		_, _ = w.Write(c.body.Bytes())
	}
}
