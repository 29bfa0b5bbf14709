package middleware

import "context"

// Service executes one request and returns its response or failure.
type Service interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// ServiceFunc adapts a function to the Service interface
type ServiceFunc func(ctx context.Context, req *Request) (*Response, error)

// Do calls f(ctx, req)
func (f ServiceFunc) Do(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Layer wraps the next service in the chain with cross-cutting behavior.
type Layer interface {
	Wrap(next Service) Service
}

// LayerFunc adapts a function to the Layer interface
type LayerFunc func(next Service) Service

// Wrap calls f(next)
func (f LayerFunc) Wrap(next Service) Service {
	return f(next)
}

// Chain composes layers around terminal, outermost first:
// Chain(t, l1, l2, l3) behaves as l1(l2(l3(t))). Nil layers are skipped.
func Chain(terminal Service, layers ...Layer) Service {
	svc := terminal
	for i := len(layers) - 1; i >= 0; i-- {
		if layers[i] == nil {
			continue
		}
		svc = layers[i].Wrap(svc)
	}
	return svc
}

// Pipeline is a chain composed once and reused by every call.
// It is safe for concurrent use.
type Pipeline struct {
	svc    Service
	layers int
}

// NewPipeline composes layers around terminal.
func NewPipeline(terminal Service, layers ...Layer) *Pipeline {
	n := 0
	for _, l := range layers {
		if l != nil {
			n++
		}
	}
	return &Pipeline{svc: Chain(terminal, layers...), layers: n}
}

// Do executes req through the composed chain.
func (p *Pipeline) Do(ctx context.Context, req *Request) (*Response, error) {
	return p.svc.Do(ctx, req)
}

// Layers returns the number of layers in the chain.
func (p *Pipeline) Layers() int {
	return p.layers
}
