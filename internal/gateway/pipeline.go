// internal/gateway/pipeline.go
package gateway

import (
	"net/http"
)

// Middleware is a function that wraps an http.Handler
type Middleware func(http.Handler) http.Handler

// Pipeline orders the stages placed in front of the storage handler. The
// first stage added is the outermost.
type Pipeline struct {
	stages []Middleware
}

// NewPipeline creates a pipeline from the given stages.
func NewPipeline(stages ...Middleware) *Pipeline {
	return &Pipeline{stages: append([]Middleware(nil), stages...)}
}

// Use appends stages to the pipeline.
func (p *Pipeline) Use(stages ...Middleware) *Pipeline {
	p.stages = append(p.stages, stages...)
	return p
}

// Len reports the number of stages.
func (p *Pipeline) Len() int {
	return len(p.stages)
}

// Then wraps handler with every stage.
func (p *Pipeline) Then(handler http.Handler) http.Handler {
	for i := len(p.stages) - 1; i >= 0; i-- {
		handler = p.stages[i](handler)
	}
	return handler
}
