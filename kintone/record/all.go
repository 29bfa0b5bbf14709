package record

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/gaborage/go-kintone/kintone"
	"github.com/gaborage/go-kintone/middleware"
)

const (
	// MaxPageSize is the largest page kintone returns.
	MaxPageSize = 500

	// MaxOffset is the largest offset kintone accepts in a query.
	MaxOffset = 10000

	defaultConcurrency = 4
)

// ErrOffsetLimit is returned when the matching records cannot be reached
// by offset paging.
var ErrOffsetLimit = errors.New("record: matching records exceed the offset paging limit")

// GetAllRecordsRequest fetches every record matching a condition by
// requesting offset pages concurrently.
type GetAllRecordsRequest struct {
	kintone.Guard
	params getAllRecordsParams
}

type getAllRecordsParams struct {
	App         uint64   `json:"app" validate:"required"`
	Fields      []string `json:"fields" validate:"omitempty,max=1000,dive,field_code"`
	Condition   string   `json:"query"`
	PageSize    uint64   `json:"pageSize" validate:"gte=1,lte=500"`
	Concurrency int      `json:"concurrency" validate:"gte=1,lte=10"`
}

// GetAllRecordsResponse holds every matching record in query order.
type GetAllRecordsResponse struct {
	Records    []Record
	TotalCount uint64
}

// GetAllRecords creates a request for all records of app.
func GetAllRecords(app uint64) *GetAllRecordsRequest {
	return kintone.TrackUnsent(&GetAllRecordsRequest{
		Guard: kintone.NewGuard("record.list_all"),
		params: getAllRecordsParams{
			App:         app,
			PageSize:    MaxPageSize,
			Concurrency: defaultConcurrency,
		},
	})
}

// Fields limits the returned fields.
func (r *GetAllRecordsRequest) Fields(codes ...string) *GetAllRecordsRequest {
	r.params.Fields = append(r.params.Fields, codes...)
	return r
}

// Condition filters and orders records. It must not contain limit or
// offset clauses. Without an order by clause records are ordered by $id.
func (r *GetAllRecordsRequest) Condition(q string) *GetAllRecordsRequest {
	r.params.Condition = q
	return r
}

// PageSize sets the number of records per request, at most 500.
func (r *GetAllRecordsRequest) PageSize(n uint64) *GetAllRecordsRequest {
	r.params.PageSize = n
	return r
}

// Concurrency bounds the number of pages fetched at once.
func (r *GetAllRecordsRequest) Concurrency(n int) *GetAllRecordsRequest {
	r.params.Concurrency = n
	return r
}

// Send fetches the first page with the total count, then the remaining
// pages concurrently. The first failing page cancels the others.
func (r *GetAllRecordsRequest) Send(ctx context.Context, svc middleware.Service) (*GetAllRecordsResponse, error) {
	if err := kintone.Prepare(svc, &r.Guard, &r.params); err != nil {
		return nil, err
	}

	first, err := r.page(0).TotalCount(true).Send(ctx, svc)
	if err != nil {
		return nil, err
	}
	total, ok := first.Total()
	if !ok {
		return nil, middleware.NewDecodeError(r.Operation(), errors.New("missing totalCount"), nil)
	}

	size := r.params.PageSize
	pages := int((total + size - 1) / size)
	if pages > 1 && (uint64(pages)-1)*size > MaxOffset {
		return nil, fmt.Errorf("%w: %d records, page size %d", ErrOffsetLimit, total, size)
	}

	results := make([][]Record, max(pages, 1))
	results[0] = first.Records

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.params.Concurrency)
	for i := 1; i < pages; i++ {
		g.Go(func() error {
			resp, err := r.page(uint64(i)*size).Send(gctx, svc)
			if err != nil {
				return err
			}
			results[i] = resp.Records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &GetAllRecordsResponse{
		Records:    make([]Record, 0, total),
		TotalCount: total,
	}
	for _, page := range results {
		out.Records = append(out.Records, page...)
	}
	return out, nil
}

func (r *GetAllRecordsRequest) page(offset uint64) *GetRecordsRequest {
	return GetRecords(r.params.App).
		Fields(r.params.Fields...).
		Query(pageQuery(r.params.Condition, r.params.PageSize, offset))
}

func pageQuery(condition string, limit, offset uint64) string {
	condition = strings.TrimSpace(condition)
	if !strings.Contains(strings.ToLower(condition), "order by") {
		condition = strings.TrimSpace(condition + " order by $id asc")
	}
	return fmt.Sprintf("%s limit %d offset %d", condition, limit, offset)
}
