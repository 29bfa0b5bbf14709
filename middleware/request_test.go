package middleware

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestOptions(t *testing.T) {
	deadline := time.Now().Add(time.Minute)
	req := NewRequest(http.MethodPost, testPath,
		WithQuery("app", "1"),
		WithQuery("app", "2"),
		WithHeader("content-type", "application/json"),
		WithIdempotencyKey("key-1"),
		WithDeadline(deadline),
		WithOperation("record.add"),
	)

	assert.Equal(t, http.MethodPost, req.Method())
	assert.Equal(t, testPath, req.Path())
	assert.Equal(t, []QueryParam{{Key: "app", Value: "1"}, {Key: "app", Value: "2"}}, req.Query())
	assert.Equal(t, "application/json", req.HeaderValue("Content-Type"))
	assert.True(t, req.RetrySafe())
	assert.Equal(t, deadline, req.Metadata().Deadline)
	assert.Equal(t, "record.add", req.Operation())
}

func TestNewJSONRequest(t *testing.T) {
	req, err := NewJSONRequest(http.MethodPost, testPath, map[string]any{"app": 1})
	require.NoError(t, err)

	assert.Equal(t, "application/json", req.Body().ContentType())
	assert.JSONEq(t, `{"app":1}`, string(req.Body().Bytes()))
	assert.True(t, req.Replayable())

	_, err = NewJSONRequest(http.MethodPost, testPath, func() {})
	assert.Error(t, err)
}

func TestRequestWithHeaderIsCopyOnWrite(t *testing.T) {
	orig := NewRequest(http.MethodGet, testPath, WithHeader("X-Trace", "a"), WithQuery("app", "1"))

	cp := orig.WithHeader("X-Trace", "b").WithHeader("X-Other", "c")

	assert.Equal(t, "a", orig.HeaderValue("X-Trace"))
	assert.Empty(t, orig.HeaderValue("X-Other"))
	assert.Equal(t, "b", cp.HeaderValue("X-Trace"))
	assert.Equal(t, "c", cp.HeaderValue("X-Other"))
	assert.NotSame(t, orig, cp)
}

func TestRequestWithHeadersReplacesValues(t *testing.T) {
	orig := NewRequest(http.MethodGet, testPath, WithHeader("Accept", "text/plain"))
	h := http.Header{}
	h.Add("accept", "application/json")

	cp := orig.WithHeaders(h)
	assert.Equal(t, []string{"application/json"}, cp.Header().Values("Accept"))
	assert.Equal(t, "text/plain", orig.HeaderValue("Accept"))
}

func TestRequestAccessorsReturnCopies(t *testing.T) {
	req := NewRequest(http.MethodGet, testPath, WithHeader("A", "1"), WithQuery("q", "v"))

	h := req.Header()
	h.Set("A", "mutated")
	q := req.Query()
	q[0].Value = "mutated"

	assert.Equal(t, "1", req.HeaderValue("A"))
	assert.Equal(t, "v", req.Query()[0].Value)
}

func TestBodyReplay(t *testing.T) {
	t.Run("bytes_body_is_replayable", func(t *testing.T) {
		b := BytesBody([]byte("payload"), "text/plain")
		for range 3 {
			r, err := b.Open()
			require.NoError(t, err)
			data, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, "payload", string(data))
		}
		assert.True(t, b.Replayable())
		assert.Equal(t, 7, b.Len())
	})

	t.Run("reader_body_is_single_use", func(t *testing.T) {
		b := ReaderBody(strings.NewReader("stream"), "application/octet-stream")
		assert.False(t, b.Replayable())
		assert.Equal(t, -1, b.Len())

		_, err := b.Open()
		require.NoError(t, err)
		_, err = b.Open()
		assert.ErrorIs(t, err, ErrBodyConsumed)
	})

	t.Run("zero_body", func(t *testing.T) {
		var b Body
		assert.True(t, b.IsZero())
		assert.True(t, b.Replayable())
	})
}

func TestRetrySafe(t *testing.T) {
	assert.False(t, NewRequest(http.MethodPost, testPath).RetrySafe())
	assert.True(t, NewRequest(http.MethodPost, testPath, WithIdempotent()).RetrySafe())
	assert.True(t, NewRequest(http.MethodPost, testPath, WithIdempotencyKey(NewIdempotencyKey())).RetrySafe())
}
