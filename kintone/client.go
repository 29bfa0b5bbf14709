package kintone

import (
	"context"
	"errors"

	khttp "github.com/gaborage/go-kintone/http"
	"github.com/gaborage/go-kintone/logger"
	"github.com/gaborage/go-kintone/middleware"
)

// ErrNilClient is returned when a request is sent without a client.
var ErrNilClient = errors.New("kintone: nil client")

// Client dispatches requests through a pipeline composed once at build time.
// It is safe for concurrent use.
type Client struct {
	pipeline     *middleware.Pipeline
	executor     *khttp.Executor
	log          logger.Logger
	guestSpaceID int64
}

// Do executes req through the layer chain. It is the single entry point
// used by every request builder.
func (c *Client) Do(ctx context.Context, req *middleware.Request) (*middleware.Response, error) {
	if c == nil || c.pipeline == nil {
		return nil, ErrNilClient
	}
	return c.pipeline.Do(ctx, req)
}

// URL returns the absolute URL req is sent to.
func (c *Client) URL(req *middleware.Request) string {
	return c.executor.URL(req)
}

// Logger returns the client logger.
func (c *Client) Logger() logger.Logger {
	return c.log
}

// GuestSpaceID returns the guest space the client is bound to, or zero.
func (c *Client) GuestSpaceID() int64 {
	return c.guestSpaceID
}

// Layers returns the number of layers around the executor.
func (c *Client) Layers() int {
	return c.pipeline.Layers()
}
