package kintone_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/gaborage/go-kintone/kintone"
	"github.com/gaborage/go-kintone/kintone/record"
	"github.com/gaborage/go-kintone/kintonetest"
	"github.com/gaborage/go-kintone/middleware"
	obtest "github.com/gaborage/go-kintone/observability/testing"
)

const token = "secret-token"

func fastRetry() middleware.RetryConfig {
	return middleware.RetryConfig{
		MaxAttempts:       3,
		BaseDelay:         time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		Multiplier:        2,
		RespectRetryAfter: true,
	}
}

func newClient(t *testing.T, srv *kintonetest.Server, configure ...func(*kintone.Builder)) *kintone.Client {
	t.Helper()
	b := kintone.NewBuilder(srv.URL(), middleware.APITokens(token)).
		WithHTTPClient(srv.Client()).
		WithRetry(fastRetry())
	for _, fn := range configure {
		fn(b)
	}
	c, err := b.Build()
	require.NoError(t, err)
	return c
}

func seed(srv *kintonetest.Server) (app, id uint64) {
	app = srv.CreateApp("tasks")
	id = srv.SeedRecords(app, map[string]kintonetest.Field{"title": kintonetest.Text("first")})[0]
	return app, id
}

func TestClientRetriesTransientFailures(t *testing.T) {
	srv := kintonetest.New(t, kintonetest.WithAPIToken(token))
	app, id := seed(srv)
	srv.FailNext(2, http.StatusServiceUnavailable, "GAIA_DA02")

	tp := obtest.NewTestTraceProvider()
	mp := obtest.NewTestMeterProvider()
	c := newClient(t, srv, func(b *kintone.Builder) {
		b.WithTracing(tp).WithMetrics(mp)
	})

	resp, err := record.GetRecord(app, id).Send(context.Background(), c)
	require.NoError(t, err)

	title, err := resp.Record["title"].Scalar()
	require.NoError(t, err)
	assert.Equal(t, "first", title)
	assert.Equal(t, 3, srv.RequestCount("/k/v1/record.json"))

	obtest.NewSpanCollector(t, tp.Exporter).
		WithName("kintone record.get").
		WithAttribute("kintone.attempts", 3).
		AssertCount(1)

	rm := mp.Collect(t)
	assert.Equal(t, int64(1), obtest.SumInt64(rm, "kintone.client.requests",
		attribute.String("kintone.operation", "record.get"),
		attribute.String("kintone.outcome", "success"),
	))
	assert.Equal(t, uint64(1), obtest.HistogramCount(rm, "kintone.client.request.duration"))
}

func TestClientGivesUpAfterMaxAttempts(t *testing.T) {
	srv := kintonetest.New(t)
	app, id := seed(srv)
	srv.FailNext(5, http.StatusServiceUnavailable, "")

	c := newClient(t, srv)
	_, err := record.GetRecord(app, id).Send(context.Background(), c)

	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, middleware.StatusCode(err))
	assert.Equal(t, 3, middleware.Attempts(err))
	assert.True(t, middleware.Retried(err))
	assert.Equal(t, 3, srv.RequestCount("/k/v1/record.json"))
}

func TestClientDoesNotRetryPlainWrites(t *testing.T) {
	srv := kintonetest.New(t)
	app, _ := seed(srv)
	srv.FailNext(1, http.StatusServiceUnavailable, "")

	c := newClient(t, srv)
	_, err := record.AddRecord(app).
		Record(record.Record{"title": record.Text("second")}).
		Send(context.Background(), c)

	require.Error(t, err)
	assert.Equal(t, 1, middleware.Attempts(err))
	assert.Equal(t, 1, srv.RequestCount("/k/v1/record.json"))
}

func TestClientRetriesWritesWithIdempotencyKey(t *testing.T) {
	srv := kintonetest.New(t)
	app, _ := seed(srv)
	srv.FailNext(1, http.StatusServiceUnavailable, "")

	c := newClient(t, srv)
	resp, err := record.AddRecord(app).
		Record(record.Record{"title": record.Text("second")}).
		IdempotencyKey("add-second").
		Send(context.Background(), c)

	require.NoError(t, err)
	assert.Equal(t, uint64(2), resp.ID)

	reqs := srv.Requests()
	require.Len(t, reqs, 2)
	for _, r := range reqs {
		assert.Equal(t, "add-second", r.Header.Get("Idempotency-Key"))
	}
}

func TestClientHonorsRetryAfter(t *testing.T) {
	srv := kintonetest.New(t)
	app, id := seed(srv)
	srv.ThrottleNext(1, 1)

	c := newClient(t, srv)
	start := time.Now()
	_, err := record.GetRecord(app, id).Send(context.Background(), c)
	require.NoError(t, err)

	// Retry-After is capped by MaxDelay.
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 2, srv.RequestCount("/k/v1/record.json"))
}

func TestClientAuthFailureIsNotRetried(t *testing.T) {
	srv := kintonetest.New(t, kintonetest.WithAPIToken("other"))
	app, id := seed(srv)

	c := newClient(t, srv)
	_, err := record.GetRecord(app, id).Send(context.Background(), c)

	var appErr *middleware.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusUnauthorized, appErr.StatusCode)
	assert.Equal(t, "CB_WA01", appErr.Code)
	assert.NotEmpty(t, appErr.ID)
	assert.Equal(t, 1, srv.RequestCount("/k/v1/record.json"))
}

func TestClientHeaders(t *testing.T) {
	srv := kintonetest.New(t)
	app, id := seed(srv)

	c := newClient(t, srv, func(b *kintone.Builder) {
		b.WithUserAgent("tests/1.0")
	})
	_, err := record.GetRecord(app, id).Send(context.Background(), c)
	require.NoError(t, err)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, token, reqs[0].Header.Get("X-Cybozu-API-Token"))
	assert.Equal(t, "tests/1.0", reqs[0].Header.Get("User-Agent"))
	assert.NotEmpty(t, reqs[0].Header.Get("X-Request-ID"))
	assert.Equal(t, "1", reqs[0].Query.Get("app"))
}

func TestClientGuestSpace(t *testing.T) {
	srv := kintonetest.New(t)
	app, _ := seed(srv)

	c := newClient(t, srv, func(b *kintone.Builder) {
		b.WithGuestSpace(7)
	})
	resp, err := record.GetRecords(app).Send(context.Background(), c)
	require.NoError(t, err)

	assert.Len(t, resp.Records, 1)
	assert.Equal(t, 1, srv.RequestCount("/k/guest/7/v1/records.json"))
}

func TestClientCancelledContext(t *testing.T) {
	srv := kintonetest.New(t)
	app, id := seed(srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newClient(t, srv)
	_, err := record.GetRecord(app, id).Send(ctx, c)
	require.Error(t, err)
	assert.False(t, middleware.IsRetryable(err))
}
