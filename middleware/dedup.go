package middleware

import (
	"context"
	nethttp "net/http"
	"strings"

	"golang.org/x/sync/singleflight"
)

// DedupLayer coalesces identical concurrent idempotent GET requests into a
// single call. Every caller receives its own copy of the response, and a
// caller that gives up does not cancel the call for the others.
type DedupLayer struct {
	group singleflight.Group
}

// NewDedupLayer creates a request coalescing layer
func NewDedupLayer() *DedupLayer {
	return &DedupLayer{}
}

// Wrap implements Layer
func (l *DedupLayer) Wrap(next Service) Service {
	return ServiceFunc(func(ctx context.Context, req *Request) (*Response, error) {
		if req.Method() != nethttp.MethodGet || !req.Metadata().Idempotent {
			return next.Do(ctx, req)
		}

		// The shared call must outlive any single caller's cancellation.
		shared := context.WithoutCancel(ctx)
		ch := l.group.DoChan(dedupKey(req), func() (any, error) {
			return next.Do(shared, req)
		})

		var res singleflight.Result
		select {
		case <-ctx.Done():
			return nil, NewTransportError("request canceled", ctx.Err(), false)
		case res = <-ch:
		}
		if res.Err != nil {
			return nil, res.Err
		}
		resp, _ := res.Val.(*Response)
		if resp == nil {
			return nil, nil
		}
		cp := *resp
		cp.Header = resp.Header.Clone()
		return &cp, nil
	})
}

func dedupKey(req *Request) string {
	var b strings.Builder
	b.WriteString(req.Method())
	b.WriteByte(' ')
	b.WriteString(req.Path())
	for _, q := range req.Query() {
		b.WriteByte('&')
		b.WriteString(q.Key)
		b.WriteByte('=')
		b.WriteString(q.Value)
	}
	return b.String()
}
