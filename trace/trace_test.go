package trace

import (
	"context"
	nethttp "net/http"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var traceParentPattern = regexp.MustCompile(`^00-[0-9a-f]{32}-[0-9a-f]{16}-01$`)

func TestEnsureRequestID(t *testing.T) {
	t.Run("uses_existing", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-1")
		assert.Equal(t, "req-1", EnsureRequestID(ctx))
	})

	t.Run("generates_uuid", func(t *testing.T) {
		got := EnsureRequestID(context.Background())
		assert.Regexp(t, `^[a-f0-9-]{36}$`, got)
	})

	t.Run("empty_value_ignored", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "")
		_, ok := RequestIDFromContext(ctx)
		assert.False(t, ok)
	})
}

func TestTraceParentContext(t *testing.T) {
	in := "00-0123456789abcdef0123456789abcdef-0123456789abcdef-01"
	ctx := WithTraceParent(context.Background(), in)
	out, ok := ParentFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, in, out)
}

func TestHeaders(t *testing.T) {
	t.Run("adds_request_id_and_parent", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-2")
		ctx = WithTraceParent(ctx, GenerateTraceParent())

		h := Headers(ctx, nethttp.Header{})
		assert.Equal(t, "req-2", h.Get(HeaderXRequestID))
		assert.Regexp(t, traceParentPattern, h.Get(HeaderTraceParent))
	})

	t.Run("keeps_existing_values", func(t *testing.T) {
		existing := nethttp.Header{}
		existing.Set(HeaderXRequestID, "caller")
		existing.Set(HeaderTraceParent, "00-aa-bb-01")

		h := Headers(WithTraceParent(context.Background(), GenerateTraceParent()), existing)
		assert.Empty(t, h)
	})
}

func TestGenerateTraceParent(t *testing.T) {
	a := GenerateTraceParent()
	b := GenerateTraceParent()
	assert.Regexp(t, traceParentPattern, a)
	assert.NotEqual(t, a, b)
}
