package kintone

import (
	"context"
	nethttp "net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-kintone/config"
	"github.com/gaborage/go-kintone/middleware"
	obtest "github.com/gaborage/go-kintone/observability/testing"
)

const testBaseURL = "https://example.cybozu.com"

func TestBuildDefaultLayers(t *testing.T) {
	c, err := NewBuilder(testBaseURL, middleware.APITokens("t")).Build()
	require.NoError(t, err)

	// request ID, retry, logging, concurrency, auth, user agent
	assert.Equal(t, 6, c.Layers())
	assert.Zero(t, c.GuestSpaceID())
	assert.NotNil(t, c.Logger())
}

func TestBuildAllLayers(t *testing.T) {
	noop := middleware.LayerFunc(func(next middleware.Service) middleware.Service { return next })

	c, err := NewBuilder(testBaseURL, middleware.APITokens("t")).
		WithLayer(noop).
		WithLayer(nil).
		WithTracing(obtest.NewTestTraceProvider()).
		WithMetrics(obtest.NewTestMeterProvider()).
		WithRateLimit(10, 5).
		WithDedup().
		Build()
	require.NoError(t, err)

	assert.Equal(t, 11, c.Layers())
}

func TestBuildWithoutOptionalLayers(t *testing.T) {
	c, err := NewBuilder(testBaseURL, middleware.APITokens("t")).
		WithoutRetry().
		WithRequestID(false).
		WithMaxConcurrency(0).
		Build()
	require.NoError(t, err)

	// logging, auth, user agent
	assert.Equal(t, 3, c.Layers())
}

func TestBuildRequiresCredentials(t *testing.T) {
	_, err := NewBuilder(testBaseURL, nil).Build()
	assert.ErrorIs(t, err, middleware.ErrNoCredentials)
}

func TestBuildRejectsInvalidBaseURL(t *testing.T) {
	_, err := NewBuilder("", middleware.APITokens("t")).Build()
	assert.Error(t, err)
}

func TestBuildRejectsBadTLSMaterial(t *testing.T) {
	_, err := NewBuilder(testBaseURL, middleware.APITokens("t")).
		WithClientCertificate([]byte("not a cert"), []byte("not a key")).
		Build()
	assert.Error(t, err)
}

func TestClientURL(t *testing.T) {
	c, err := NewBuilder(testBaseURL, middleware.APITokens("t")).WithGuestSpace(5).Build()
	require.NoError(t, err)

	req := middleware.NewRequest(nethttp.MethodGet, "/v1/record.json", middleware.WithQuery("app", "1"))
	assert.Equal(t, testBaseURL+"/k/guest/5/v1/record.json?app=1", c.URL(req))
	assert.Equal(t, int64(5), c.GuestSpaceID())
}

func TestUserLayerSeesEveryCall(t *testing.T) {
	var seen []string
	spy := middleware.LayerFunc(func(next middleware.Service) middleware.Service {
		return middleware.ServiceFunc(func(ctx context.Context, req *middleware.Request) (*middleware.Response, error) {
			seen = append(seen, req.Operation())
			return &middleware.Response{StatusCode: nethttp.StatusOK, Body: []byte(`{}`)}, nil
		})
	})

	c, err := NewBuilder(testBaseURL, middleware.APITokens("t")).WithLayer(spy).Build()
	require.NoError(t, err)

	_, err = c.Do(context.Background(), middleware.NewRequest(nethttp.MethodGet, "/v1/record.json",
		middleware.WithOperation("record.get")))
	require.NoError(t, err)
	assert.Equal(t, []string{"record.get"}, seen)
}

func TestNewFromConfig(t *testing.T) {
	cfg, err := config.LoadFromBytes([]byte(`
base_url: https://example.cybozu.com
guest_space_id: 3
auth:
  api_tokens: [a, b]
  basic_username: proxy
  basic_password: secret
retry:
  enabled: false
ratelimit:
  rps: 5
  burst: 2
  dedup: true
log:
  headers: true
`))
	require.NoError(t, err)

	c, err := NewFromConfig(cfg, nil)
	require.NoError(t, err)

	// request ID, logging, rate limit, concurrency, dedup, auth, user agent
	assert.Equal(t, 7, c.Layers())
	assert.Equal(t, int64(3), c.GuestSpaceID())
}

func TestNewFromConfigNil(t *testing.T) {
	_, err := NewFromConfig(nil, nil)
	assert.Error(t, err)
}

func TestNewFromConfigMissingTLSFile(t *testing.T) {
	cfg, err := config.LoadFromBytes([]byte(`
base_url: https://example.cybozu.com
auth:
  api_tokens: [a]
`))
	require.NoError(t, err)
	cfg.TLS.CAFile = "/nonexistent/ca.pem"

	_, err = NewFromConfig(cfg, nil)
	assert.Error(t, err)
}

func TestCredentialsFromConfig(t *testing.T) {
	single := CredentialsFromConfig(&config.AuthConfig{APITokens: []string{"a", "b"}})
	h, err := single.Headers()
	require.NoError(t, err)
	assert.Equal(t, "a,b", h.Get(middleware.HeaderAPIToken))

	combined := CredentialsFromConfig(&config.AuthConfig{
		Username:      "alice",
		Password:      "secret",
		BasicUsername: "proxy",
		BasicPassword: "pw",
	})
	h, err = combined.Headers()
	require.NoError(t, err)
	assert.NotEmpty(t, h.Get(middleware.HeaderCybozuAuthorization))
	assert.NotEmpty(t, h.Get("Authorization"))

	_, err = CredentialsFromConfig(&config.AuthConfig{}).Headers()
	assert.ErrorIs(t, err, middleware.ErrNoCredentials)
}

func TestRetryConfigFromConfig(t *testing.T) {
	rc := RetryConfigFromConfig(&config.RetryConfig{
		MaxAttempts:       4,
		BaseDelay:         50 * time.Millisecond,
		MaxDelay:          time.Second,
		Multiplier:        3,
		Jitter:            0.1,
		RespectRetryAfter: true,
	})
	assert.Equal(t, 4, rc.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, rc.BaseDelay)
	assert.Equal(t, time.Second, rc.MaxDelay)
	assert.InDelta(t, 3.0, rc.Multiplier, 0)
	assert.True(t, rc.RespectRetryAfter)
	assert.Nil(t, rc.Budget)

	withBudget := RetryConfigFromConfig(&config.RetryConfig{MaxAttempts: 2, Budget: 10, BudgetWindow: time.Minute})
	assert.NotNil(t, withBudget.Budget)
}
