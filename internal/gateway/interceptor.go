// internal/gateway/interceptor.go
package gateway

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/FairForge/notifier/internal/events"
	"github.com/FairForge/notifier/internal/gateway/metrics"
	"github.com/FairForge/notifier/internal/logging"
	"github.com/FairForge/notifier/internal/scope"
)

// Publisher delivers synthesized events to the message bus. Implementations
// must not block the caller for long; the interceptor ignores the outcome.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload events.Payload)
}

// Headers carried from the original request onto the lookup probe so a
// remote upstream can authorize it and correlate it with the original call.
var probeHeaders = []string{
	"X-Auth-Token",
	"X-Storage-Token",
	"Authorization",
	events.HeaderTransID,
}

// Interceptor observes mutating storage requests and publishes one event per
// successful mutation. The downstream response is buffered and replayed to
// the client untouched, whatever happens while building or publishing the
// event.
type Interceptor struct {
	next      http.Handler
	publisher Publisher
	logger    *zap.Logger
	metrics   *metrics.Collector
}

// NewInterceptor wraps next. collector may be nil.
func NewInterceptor(next http.Handler, publisher Publisher, logger *zap.Logger, collector *metrics.Collector) *Interceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interceptor{
		next:      next,
		publisher: publisher,
		logger:    logger.Named("interceptor"),
		metrics:   collector,
	}
}

// NotificationMiddleware adapts the interceptor to a Pipeline stage.
func NotificationMiddleware(publisher Publisher, logger *zap.Logger, collector *metrics.Collector) Middleware {
	return func(next http.Handler) http.Handler {
		return NewInterceptor(next, publisher, logger, collector)
	}
}

func (i *Interceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !events.Notifiable(r.Method) {
		i.next.ServeHTTP(w, r)
		return
	}

	resp := i.callDownstream(w, r)
	i.notify(r, resp)
	resp.replay(w)
}

// callDownstream is the primary call: the client's request, served into a
// buffer.
func (i *Interceptor) callDownstream(w http.ResponseWriter, r *http.Request) *responseCapture {
	resp := newResponseCapture(w.Header())
	i.next.ServeHTTP(resp, r)
	return resp
}

func (i *Interceptor) notify(r *http.Request, resp *responseCapture) {
	log := i.logger.With(logging.RequestFields(r)...)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("notification panicked", zap.Any("panic", rec))
			i.recordSkipped(metrics.SkipPanic)
		}
	}()

	sc, err := scope.Parse(r.URL.Path)
	if err != nil {
		log.Debug("path outside storage scope, not notifying", zap.Error(err))
		i.recordSkipped(metrics.SkipUnroutable)
		return
	}

	call, ok := events.NewCall(r.Method, sc, r.Header)
	if !ok {
		return
	}
	call = call.WithResponse(resp.Status(), resp.SentHeader())

	if !call.Succeeded() {
		log.Debug("request did not succeed, not notifying", zap.Int("status", call.Status()))
		i.recordSkipped(metrics.SkipStatus)
		return
	}

	if call.NeedsLookup() {
		if header, ok := i.probe(r, log); ok {
			call = call.WithLookup(header)
		}
	}

	ev, err := events.Synthesize(call)
	if err != nil {
		log.Warn("rejecting event", zap.String("scope", sc.String()), zap.Error(err))
		i.recordSkipped(metrics.SkipMalformed)
		return
	}

	i.publisher.Publish(context.WithoutCancel(r.Context()), ev.Type, ev.Payload)
	if i.metrics != nil {
		i.metrics.RecordPublished(ev.Type)
	}
	log.Debug("event published", zap.String("event_type", ev.Type))
}

// probe is the lookup call: an internal HEAD on the same resource, served by
// the downstream handler directly so it never re-enters the interceptor.
func (i *Interceptor) probe(r *http.Request, log *zap.Logger) (header http.Header, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Warn("lookup probe panicked", zap.Any("panic", rec))
			header, ok = nil, false
			i.recordLookup(metrics.LookupFailed)
		}
	}()

	resp := newProbeCapture()
	i.next.ServeHTTP(resp, newProbeRequest(r))

	if resp.Status() < 200 || resp.Status() > 299 {
		log.Debug("lookup probe failed, using primary response only", zap.Int("status", resp.Status()))
		i.recordLookup(metrics.LookupFailed)
		return nil, false
	}
	i.recordLookup(metrics.LookupOK)
	return resp.SentHeader(), true
}

func newProbeRequest(r *http.Request) *http.Request {
	probe := r.Clone(WithInternalProbe(r.Context()))
	probe.Method = http.MethodHead
	probe.Body = http.NoBody
	probe.GetBody = nil
	probe.ContentLength = 0
	probe.TransferEncoding = nil
	probe.Trailer = nil
	probe.Close = false
	probe.URL.RawQuery = ""
	probe.Form = nil
	probe.PostForm = nil
	probe.MultipartForm = nil
	probe.RequestURI = probe.URL.RequestURI()

	probe.Header = make(http.Header, len(probeHeaders)+1)
	for _, name := range probeHeaders {
		if values := r.Header.Values(name); len(values) > 0 {
			probe.Header[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
		}
	}
	// ask the storage layer for the newest replica's metadata
	probe.Header.Set("X-Newest", "true")
	return probe
}

func (i *Interceptor) recordSkipped(reason string) {
	if i.metrics != nil {
		i.metrics.RecordSkipped(reason)
	}
}

func (i *Interceptor) recordLookup(outcome string) {
	if i.metrics != nil {
		i.metrics.RecordLookup(outcome)
	}
}
