package events

import (
	"net/http"

	"github.com/FairForge/notifier/internal/scope"
)

// Verb classifies the storage action behind an event.
type Verb string

const (
	VerbCreate         Verb = "create"
	VerbDelete         Verb = "delete"
	VerbCopy           Verb = "copy"
	VerbMetadataUpdate Verb = "metadata_update"
)

// MethodCopy is the storage API's server-side copy verb.
const MethodCopy = "COPY"

var methodVerbs = map[string]Verb{
	http.MethodPut:    VerbCreate,
	http.MethodDelete: VerbDelete,
	MethodCopy:        VerbCopy,
	http.MethodPost:   VerbMetadataUpdate,
}

// VerbForMethod maps an HTTP method to its event verb. Methods that never
// produce notifications report false.
func VerbForMethod(method string) (Verb, bool) {
	v, ok := methodVerbs[method]
	return v, ok
}

// Notifiable reports whether requests with this method are observed at all.
func Notifiable(method string) bool {
	_, ok := methodVerbs[method]
	return ok
}

// IsSuccess reports whether a primary response status counts as a completed
// mutation.
func IsSuccess(status int) bool {
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
		return true
	}
	return false
}

// Call is everything observed about one intercepted request. It is built once
// per request with NewCall, WithResponse and WithLookup; each step returns a
// new value and clones the headers it is given, so a Call never aliases the
// live request or response.
type Call struct {
	method         string
	verb           Verb
	scope          scope.Scope
	requestHeader  http.Header
	status         int
	responseHeader http.Header
	lookupHeader   http.Header
}

// NewCall starts a Call for a notifiable method.
func NewCall(method string, sc scope.Scope, requestHeader http.Header) (Call, bool) {
	verb, ok := VerbForMethod(method)
	if !ok {
		return Call{}, false
	}
	return Call{
		method:        method,
		verb:          verb,
		scope:         sc,
		requestHeader: cloneHeader(requestHeader),
	}, true
}

// WithResponse records the primary response.
func (c Call) WithResponse(status int, header http.Header) Call {
	c.status = status
	c.responseHeader = cloneHeader(header)
	return c
}

// WithLookup records the headers returned by a successful lookup probe.
func (c Call) WithLookup(header http.Header) Call {
	c.lookupHeader = cloneHeader(header)
	return c
}

func (c Call) Method() string { return c.method }
func (c Call) Verb() Verb { return c.verb }
func (c Call) Scope() scope.Scope { return c.scope }
func (c Call) Status() int { return c.status }
func (c Call) RequestHeader() http.Header { return c.requestHeader }
func (c Call) ResponseHeader() http.Header { return c.responseHeader }
func (c Call) LookupHeader() http.Header { return c.lookupHeader }
func (c Call) HasLookup() bool { return c.lookupHeader != nil }
func (c Call) Succeeded() bool { return IsSuccess(c.status) }

// NeedsLookup reports whether a successful call should be followed by a
// metadata probe. Deleted resources have nothing left to look up.
func (c Call) NeedsLookup() bool {
	return c.verb != VerbDelete
}

func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return http.Header{}
	}
	return h.Clone()
}
