package record_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-kintone/kintone"
	"github.com/gaborage/go-kintone/kintone/record"
	"github.com/gaborage/go-kintone/kintonetest"
	"github.com/gaborage/go-kintone/middleware"
)

func TestGetAllRecords(t *testing.T) {
	srv, c, app := setup(t, 12)

	resp, err := record.GetAllRecords(app).
		Fields("title").
		PageSize(5).
		Concurrency(2).
		Send(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, uint64(12), resp.TotalCount)
	require.Len(t, resp.Records, 12)
	for i, rec := range resp.Records {
		id, ok := rec.ID()
		require.True(t, ok)
		assert.Equal(t, uint64(i+1), id)
	}
	assert.Equal(t, 3, srv.RequestCount("/k/v1/records.json"))

	offsets := map[string]bool{}
	for _, r := range srv.Requests() {
		offsets[r.Query.Get("query")] = true
	}
	assert.True(t, offsets["order by $id asc limit 5 offset 0"])
	assert.True(t, offsets["order by $id asc limit 5 offset 5"])
	assert.True(t, offsets["order by $id asc limit 5 offset 10"])
}

func TestGetAllRecordsEmptyApp(t *testing.T) {
	srv, c, app := setup(t, 0)

	resp, err := record.GetAllRecords(app).Send(context.Background(), c)
	require.NoError(t, err)
	assert.Empty(t, resp.Records)
	assert.Zero(t, resp.TotalCount)
	assert.Equal(t, 1, srv.RequestCount("/k/v1/records.json"))
}

func TestGetAllRecordsOffsetLimit(t *testing.T) {
	srv := kintonetest.New(t)
	app := srv.CreateApp("large")
	seeds := make([]map[string]kintonetest.Field, record.MaxOffset+2)
	for i := range seeds {
		seeds[i] = map[string]kintonetest.Field{}
	}
	srv.SeedRecords(app, seeds...)
	c := newClient(t, srv)

	_, err := record.GetAllRecords(app).PageSize(1).Send(context.Background(), c)
	assert.ErrorIs(t, err, record.ErrOffsetLimit)
	assert.Equal(t, 1, srv.RequestCount("/k/v1/records.json"))
}

func TestGetAllRecordsPropagatesPageFailure(t *testing.T) {
	srv, c, app := setup(t, 3)
	srv.FailNext(1, http.StatusBadRequest, "CB_VA01")

	_, err := record.GetAllRecords(app).Send(context.Background(), c)
	assert.Equal(t, http.StatusBadRequest, middleware.StatusCode(err))
}

func TestGetAllRecordsValidation(t *testing.T) {
	tests := []struct {
		name string
		req  *record.GetAllRecordsRequest
	}{
		{"page size too large", record.GetAllRecords(1).PageSize(record.MaxPageSize + 1)},
		{"zero page size", record.GetAllRecords(1).PageSize(0)},
		{"zero concurrency", record.GetAllRecords(1).Concurrency(0)},
		{"missing app", record.GetAllRecords(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, c, _ := setup(t, 0)
			_, err := tt.req.Send(context.Background(), c)
			assert.True(t, middleware.IsKind(err, middleware.KindValidation), "got %v", err)
			assert.Empty(t, srv.Requests())
		})
	}
}

func TestGetAllRecordsSentTwice(t *testing.T) {
	_, c, app := setup(t, 1)
	req := record.GetAllRecords(app)

	_, err := req.Send(context.Background(), c)
	require.NoError(t, err)
	_, err = req.Send(context.Background(), c)
	assert.ErrorIs(t, err, kintone.ErrAlreadySent)
}
