package events

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/FairForge/notifier/internal/scope"
)

// ErrMalformedCopySource rejects an event whose copy source or destination
// cannot be split into container and object.
var ErrMalformedCopySource = errors.New("events: malformed copy source")

// Payload keys.
const (
	KeyProjectID         = "project_id"
	KeyProjectName       = "project_name"
	KeyProjectDomainID   = "project_domain_id"
	KeyProjectDomainName = "project_domain_name"
	KeyTransID           = "x-trans-id"

	KeyAccount   = "account"
	KeyContainer = "container"
	KeyObject    = "object"

	KeyCopyFromAccount   = "copy_from_account"
	KeyCopyFromContainer = "copy_from_container"
	KeyCopyFromObject    = "copy_from_object"
	KeyCopyToAccount     = "copy_to_account"
	KeyCopyToContainer   = "copy_to_container"
	KeyCopyToObject      = "copy_to_object"
	KeyFreshMetadata     = "copy-fresh-metadata"

	KeyMtime         = "mtime"
	KeyHash          = "hash"
	KeyUpdatedAt     = "updated_at"
	KeyLastModified  = "last_modified"
	KeyContentLength = "content_length"
)

// Storage API headers read during synthesis.
const (
	HeaderProjectID          = "X-Project-Id"
	HeaderProjectName        = "X-Project-Name"
	HeaderProjectDomainID    = "X-Project-Domain-Id"
	HeaderProjectDomainName  = "X-Project-Domain-Name"
	HeaderTransID            = "X-Trans-Id"
	HeaderCopyFrom           = "X-Copy-From"
	HeaderCopyFromAccount    = "X-Copy-From-Account"
	HeaderDestination        = "Destination"
	HeaderDestinationAccount = "Destination-Account"
	HeaderFreshMetadata      = "X-Fresh-Metadata"
	HeaderTimestamp          = "X-Timestamp"
	HeaderETag               = "Etag"
	HeaderLastModified       = "Last-Modified"
	HeaderContentLength      = "Content-Length"
)

const objectMtimeKey = "x-object-meta-mtime"

var identityHeaders = []struct{ key, header string }{
	{KeyProjectID, HeaderProjectID},
	{KeyProjectName, HeaderProjectName},
	{KeyProjectDomainID, HeaderProjectDomainID},
	{KeyProjectDomainName, HeaderProjectDomainName},
}

// EventType joins a scope level and a verb, e.g. "object.create".
func EventType(level scope.Level, verb Verb) string {
	return string(level) + "." + string(verb)
}

// Synthesize builds the notification for a completed call. It does not look
// at the response status; callers decide applicability first. The call is
// only read, so synthesizing the same Call twice yields identical events.
func Synthesize(call Call) (Event, error) {
	sc := call.Scope()
	req := call.RequestHeader()
	verb := call.Verb()

	payload := identity(req, call.ResponseHeader())
	payload[KeyAccount] = sc.Account
	if sc.HasContainer() {
		payload[KeyContainer] = sc.Container
		if sc.HasObject() {
			payload[KeyObject] = sc.Object
		}
	}

	if verb != VerbDelete {
		if copyFrom := req.Get(HeaderCopyFrom); copyFrom != "" {
			// copies reach the storage layer as PUTs carrying X-Copy-From
			verb = VerbCopy
			container, object, err := splitCopyPath(copyFrom)
			if err != nil {
				return Event{}, fmt.Errorf("%s %q: %w", HeaderCopyFrom, copyFrom, err)
			}
			payload[KeyCopyFromContainer] = container
			payload[KeyCopyFromObject] = object
			if account := req.Get(HeaderCopyFromAccount); account != "" {
				payload[KeyCopyFromAccount] = account
			}
		}

		if call.Method() == MethodCopy {
			if dest := req.Get(HeaderDestination); dest != "" {
				container, object, err := splitCopyPath(dest)
				if err != nil {
					return Event{}, fmt.Errorf("%s %q: %w", HeaderDestination, dest, err)
				}
				payload[KeyCopyToContainer] = container
				payload[KeyCopyToObject] = object
				if account := req.Get(HeaderDestinationAccount); account != "" {
					payload[KeyCopyToAccount] = account
				}
			}
		}

		if fresh := req.Get(HeaderFreshMetadata); fresh != "" {
			payload[KeyFreshMetadata] = isTruthy(fresh)
		}

		addMetadata(payload, req, "Account")
		if sc.HasContainer() {
			addMetadata(payload, req, "Container")
			if sc.HasObject() {
				addMetadata(payload, req, "Object")
				addObjectFields(payload, call.ResponseHeader())
			}
		}

		if call.HasLookup() {
			addLookupFields(payload, call.LookupHeader(), sc.HasObject())
		}
	}

	return Event{Type: EventType(sc.Level(), verb), Payload: payload}, nil
}

// identity seeds a payload with the auth context. Every identity key is
// present; a missing header is recorded as nil.
func identity(req, resp http.Header) Payload {
	payload := make(Payload, 16)
	for _, f := range identityHeaders {
		payload[f.key] = headerOrNil(req, f.header)
	}

	transID := req.Get(HeaderTransID)
	if transID == "" {
		transID = resp.Get(HeaderTransID)
	}
	if transID != "" {
		payload[KeyTransID] = transID
	} else {
		payload[KeyTransID] = nil
	}
	return payload
}

func headerOrNil(h http.Header, key string) any {
	if v := h.Get(key); v != "" {
		return v
	}
	return nil
}

// addMetadata copies X-<Kind>-Meta-* and X-Remove-<Kind>-Meta-* headers under
// their lower-cased names. Only the first value of a repeated header is kept.
func addMetadata(payload Payload, req http.Header, kind string) {
	kind = strings.ToLower(kind)
	added := "x-" + kind + "-meta-"
	removed := "x-remove-" + kind + "-meta-"

	for name, values := range req {
		if len(values) == 0 {
			continue
		}
		key := strings.ToLower(name)
		if strings.HasPrefix(key, added) || strings.HasPrefix(key, removed) {
			payload[key] = values[0]
		}
	}
}

func addObjectFields(payload Payload, resp http.Header) {
	if raw, ok := payload[objectMtimeKey].(string); ok {
		if formatted, err := FormatTimestamp(raw); err == nil {
			payload[KeyMtime] = formatted
		}
	}

	// first Etag wins when a handler emits more than one
	if etags := resp.Values(HeaderETag); len(etags) > 0 && etags[0] != "" {
		payload[KeyHash] = etags[0]
	}
}

func addLookupFields(payload Payload, lookup http.Header, object bool) {
	if ts := lookup.Get(HeaderTimestamp); ts != "" {
		if formatted, err := FormatTimestamp(ts); err == nil {
			payload[KeyUpdatedAt] = formatted
		}
	}
	if lm := lookup.Get(HeaderLastModified); lm != "" {
		payload[KeyLastModified] = lm
	}
	if object {
		if cl := lookup.Get(HeaderContentLength); cl != "" {
			if n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64); err == nil && n >= 0 {
				payload[KeyContentLength] = n
			}
		}
	}
}

// splitCopyPath splits "/container/object" (leading slash optional) on the
// first separator.
func splitCopyPath(value string) (string, string, error) {
	unescaped, err := url.PathUnescape(value)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformedCopySource, err)
	}
	unescaped = strings.TrimPrefix(unescaped, "/")

	container, object, ok := strings.Cut(unescaped, "/")
	if !ok || container == "" || object == "" {
		return "", "", ErrMalformedCopySource
	}
	return container, object, nil
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on", "t", "y":
		return true
	}
	return false
}
