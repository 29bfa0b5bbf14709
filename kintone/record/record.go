// Package record implements the kintone record endpoints.
package record

import (
	"context"
	"encoding/json"
	nethttp "net/http"
	"strconv"

	"github.com/gaborage/go-kintone/kintone"
	"github.com/gaborage/go-kintone/middleware"
)

const (
	pathRecord    = "/v1/record.json"
	pathRecords   = "/v1/records.json"
	pathComments  = "/v1/record/comments.json"
	pathComment   = "/v1/record/comment.json"
	pathAssignees = "/v1/record/assignees.json"
	pathStatus    = "/v1/record/status.json"
)

// GetRecordRequest fetches one record.
type GetRecordRequest struct {
	kintone.Guard
	params getRecordParams
}

type getRecordParams struct {
	App uint64 `query:"app" validate:"required"`
	ID  uint64 `query:"id" validate:"required"`
}

// GetRecordResponse holds the fetched record.
type GetRecordResponse struct {
	Record Record `json:"record"`
}

// GetRecord creates a request for record id of app.
func GetRecord(app, id uint64) *GetRecordRequest {
	return kintone.TrackUnsent(&GetRecordRequest{
		Guard:  kintone.NewGuard("record.get"),
		params: getRecordParams{App: app, ID: id},
	})
}

// Send executes the request through svc.
func (r *GetRecordRequest) Send(ctx context.Context, svc middleware.Service) (*GetRecordResponse, error) {
	return kintone.Send[GetRecordResponse](ctx, svc, &r.Guard, &r.params,
		kintone.QueryBuild(nethttp.MethodGet, pathRecord, &r.Guard, &r.params, middleware.WithIdempotent()))
}

// GetRecordsRequest fetches records matching a query. kintone returns at
// most 500 records per call; use GetAllRecords for more.
type GetRecordsRequest struct {
	kintone.Guard
	params getRecordsParams
}

type getRecordsParams struct {
	App        uint64   `query:"app" validate:"required"`
	Fields     []string `query:"fields" validate:"omitempty,max=1000,dive,field_code"`
	Query      string   `query:"query"`
	TotalCount bool     `query:"totalCount"`
}

// GetRecordsResponse holds a page of records.
type GetRecordsResponse struct {
	Records    []Record     `json:"records"`
	TotalCount *json.Number `json:"totalCount"`
}

// Total returns the total count when it was requested.
func (r *GetRecordsResponse) Total() (uint64, bool) {
	if r.TotalCount == nil {
		return 0, false
	}
	n, err := strconv.ParseUint(r.TotalCount.String(), 10, 64)
	return n, err == nil
}

// GetRecords creates a request for the records of app.
func GetRecords(app uint64) *GetRecordsRequest {
	return kintone.TrackUnsent(&GetRecordsRequest{
		Guard:  kintone.NewGuard("record.list"),
		params: getRecordsParams{App: app},
	})
}

// Fields limits the returned fields.
func (r *GetRecordsRequest) Fields(codes ...string) *GetRecordsRequest {
	r.params.Fields = append(r.params.Fields, codes...)
	return r
}

// Query sets a kintone query such as `Status = "Open" order by $id limit 100`.
func (r *GetRecordsRequest) Query(q string) *GetRecordsRequest {
	r.params.Query = q
	return r
}

// TotalCount requests the number of matching records.
func (r *GetRecordsRequest) TotalCount(enabled bool) *GetRecordsRequest {
	r.params.TotalCount = enabled
	return r
}

// Send executes the request through svc.
func (r *GetRecordsRequest) Send(ctx context.Context, svc middleware.Service) (*GetRecordsResponse, error) {
	return kintone.Send[GetRecordsResponse](ctx, svc, &r.Guard, &r.params,
		kintone.QueryBuild(nethttp.MethodGet, pathRecords, &r.Guard, &r.params, middleware.WithIdempotent()))
}

// AddRecordRequest creates a record.
type AddRecordRequest struct {
	kintone.Guard
	idem kintone.Idempotency
	body addRecordBody
}

type addRecordBody struct {
	App    uint64 `json:"app" validate:"required"`
	Record Record `json:"record,omitempty"`
}

// AddRecordResponse holds the new record id and revision.
type AddRecordResponse struct {
	ID       uint64 `json:"id,string"`
	Revision uint64 `json:"revision,string"`
}

// AddRecord creates a request adding a record to app.
func AddRecord(app uint64) *AddRecordRequest {
	return kintone.TrackUnsent(&AddRecordRequest{
		Guard: kintone.NewGuard("record.add"),
		body:  addRecordBody{App: app},
	})
}

// Record sets the field values. Builtin fields are dropped.
func (r *AddRecordRequest) Record(rec Record) *AddRecordRequest {
	r.body.Record = rec.WithoutBuiltins()
	return r
}

// RetrySafe allows retries even though a retried add may create duplicates.
func (r *AddRecordRequest) RetrySafe() *AddRecordRequest {
	r.idem.MarkRetrySafe()
	return r
}

// IdempotencyKey sends key with the request and allows retries.
func (r *AddRecordRequest) IdempotencyKey(key string) *AddRecordRequest {
	r.idem.SetKey(key)
	return r
}

// Send executes the request through svc.
func (r *AddRecordRequest) Send(ctx context.Context, svc middleware.Service) (*AddRecordResponse, error) {
	return kintone.Send[AddRecordResponse](ctx, svc, &r.Guard, &r.body,
		kintone.JSONBuild(nethttp.MethodPost, pathRecord, &r.Guard, &r.body, r.idem.Options()...))
}

// UpdateKey identifies a record by a unique field instead of its id.
type UpdateKey struct {
	Field string `json:"field" validate:"required,field_code"`
	Value string `json:"value" validate:"required"`
}

// UpdateRecordRequest updates one record.
type UpdateRecordRequest struct {
	kintone.Guard
	idem kintone.Idempotency
	body updateRecordBody
}

type updateRecordBody struct {
	App       uint64     `json:"app" validate:"required"`
	ID        uint64     `json:"id,omitempty" validate:"required_without=UpdateKey,excluded_with=UpdateKey"`
	UpdateKey *UpdateKey `json:"updateKey,omitempty"`
	Record    Record     `json:"record,omitempty"`
	Revision  *int64     `json:"revision,omitempty"`
}

// UpdateRecordResponse holds the new revision.
type UpdateRecordResponse struct {
	Revision uint64 `json:"revision,string"`
}

// UpdateRecord creates an update request for app. Exactly one of ID or
// UpdateKey must be set before Send.
func UpdateRecord(app uint64) *UpdateRecordRequest {
	return kintone.TrackUnsent(&UpdateRecordRequest{
		Guard: kintone.NewGuard("record.update"),
		body:  updateRecordBody{App: app},
	})
}

// ID selects the record by id.
func (r *UpdateRecordRequest) ID(id uint64) *UpdateRecordRequest {
	r.body.ID = id
	return r
}

// UpdateKey selects the record by a unique field value.
func (r *UpdateRecordRequest) UpdateKey(field, value string) *UpdateRecordRequest {
	r.body.UpdateKey = &UpdateKey{Field: field, Value: value}
	return r
}

// Record sets the fields to change. Builtin fields are dropped.
func (r *UpdateRecordRequest) Record(rec Record) *UpdateRecordRequest {
	r.body.Record = rec.WithoutBuiltins()
	return r
}

// Revision makes the update fail unless the record is at revision.
func (r *UpdateRecordRequest) Revision(revision int64) *UpdateRecordRequest {
	r.body.Revision = &revision
	return r
}

// RetrySafe allows retries.
func (r *UpdateRecordRequest) RetrySafe() *UpdateRecordRequest {
	r.idem.MarkRetrySafe()
	return r
}

// IdempotencyKey sends key with the request and allows retries.
func (r *UpdateRecordRequest) IdempotencyKey(key string) *UpdateRecordRequest {
	r.idem.SetKey(key)
	return r
}

// Send executes the request through svc.
func (r *UpdateRecordRequest) Send(ctx context.Context, svc middleware.Service) (*UpdateRecordResponse, error) {
	return kintone.Send[UpdateRecordResponse](ctx, svc, &r.Guard, &r.body,
		kintone.JSONBuild(nethttp.MethodPut, pathRecord, &r.Guard, &r.body, r.idem.Options()...))
}

// GetCommentsRequest lists comments of a record.
type GetCommentsRequest struct {
	kintone.Guard
	params getCommentsParams
}

type getCommentsParams struct {
	App    uint64 `query:"app" validate:"required"`
	Record uint64 `query:"record" validate:"required"`
	Order  string `query:"order" validate:"omitempty,oneof=asc desc"`
	Offset uint64 `query:"offset"`
	Limit  uint64 `query:"limit" validate:"lte=10"`
}

// GetCommentsResponse holds a page of comments.
type GetCommentsResponse struct {
	Comments []PostedComment `json:"comments"`
	Older    bool            `json:"older"`
	Newer    bool            `json:"newer"`
}

// GetComments creates a request for the comments of record in app.
func GetComments(app, record uint64) *GetCommentsRequest {
	return kintone.TrackUnsent(&GetCommentsRequest{
		Guard:  kintone.NewGuard("record.comments.get"),
		params: getCommentsParams{App: app, Record: record},
	})
}

// Order sets the sort direction by comment id.
func (r *GetCommentsRequest) Order(o kintone.Order) *GetCommentsRequest {
	r.params.Order = string(o)
	return r
}

// Offset skips the first n comments.
func (r *GetCommentsRequest) Offset(n uint64) *GetCommentsRequest {
	r.params.Offset = n
	return r
}

// Limit returns at most n comments. kintone allows up to 10.
func (r *GetCommentsRequest) Limit(n uint64) *GetCommentsRequest {
	r.params.Limit = n
	return r
}

// Send executes the request through svc.
func (r *GetCommentsRequest) Send(ctx context.Context, svc middleware.Service) (*GetCommentsResponse, error) {
	return kintone.Send[GetCommentsResponse](ctx, svc, &r.Guard, &r.params,
		kintone.QueryBuild(nethttp.MethodGet, pathComments, &r.Guard, &r.params, middleware.WithIdempotent()))
}

// AddCommentRequest posts a comment on a record.
type AddCommentRequest struct {
	kintone.Guard
	idem kintone.Idempotency
	body addCommentBody
}

type addCommentBody struct {
	App     uint64  `json:"app" validate:"required"`
	Record  uint64  `json:"record" validate:"required"`
	Comment Comment `json:"comment"`
}

// AddCommentResponse holds the new comment id.
type AddCommentResponse struct {
	ID uint64 `json:"id,string"`
}

// AddComment creates a request posting comment on record in app.
func AddComment(app, record uint64, comment Comment) *AddCommentRequest {
	return kintone.TrackUnsent(&AddCommentRequest{
		Guard: kintone.NewGuard("record.comment.add"),
		body:  addCommentBody{App: app, Record: record, Comment: comment},
	})
}

// IdempotencyKey sends key with the request and allows retries.
func (r *AddCommentRequest) IdempotencyKey(key string) *AddCommentRequest {
	r.idem.SetKey(key)
	return r
}

// Send executes the request through svc.
func (r *AddCommentRequest) Send(ctx context.Context, svc middleware.Service) (*AddCommentResponse, error) {
	return kintone.Send[AddCommentResponse](ctx, svc, &r.Guard, &r.body,
		kintone.JSONBuild(nethttp.MethodPost, pathComment, &r.Guard, &r.body, r.idem.Options()...))
}

// DeleteCommentRequest deletes a comment. The parameters are sent as a
// JSON body, as kintone expects for DELETE.
type DeleteCommentRequest struct {
	kintone.Guard
	body deleteCommentBody
}

type deleteCommentBody struct {
	App     uint64 `json:"app" validate:"required"`
	Record  uint64 `json:"record" validate:"required"`
	Comment uint64 `json:"comment" validate:"required"`
}

// DeleteCommentResponse is empty.
type DeleteCommentResponse struct{}

// DeleteComment creates a request deleting comment from record in app.
func DeleteComment(app, record, comment uint64) *DeleteCommentRequest {
	return kintone.TrackUnsent(&DeleteCommentRequest{
		Guard: kintone.NewGuard("record.comment.delete"),
		body:  deleteCommentBody{App: app, Record: record, Comment: comment},
	})
}

// Send executes the request through svc. Deleting a comment twice leaves
// the same state, so the request is retried.
func (r *DeleteCommentRequest) Send(ctx context.Context, svc middleware.Service) (*DeleteCommentResponse, error) {
	return kintone.Send[DeleteCommentResponse](ctx, svc, &r.Guard, &r.body,
		kintone.JSONBuild(nethttp.MethodDelete, pathComment, &r.Guard, &r.body, middleware.WithIdempotent()))
}

// UpdateAssigneesRequest replaces the process management assignees.
type UpdateAssigneesRequest struct {
	kintone.Guard
	body updateAssigneesBody
}

type updateAssigneesBody struct {
	App       uint64   `json:"app" validate:"required"`
	ID        uint64   `json:"id" validate:"required"`
	Assignees []string `json:"assignees" validate:"max=100"`
	Revision  *int64   `json:"revision,omitempty"`
}

// UpdateAssigneesResponse holds the new revision.
type UpdateAssigneesResponse struct {
	Revision uint64 `json:"revision,string"`
}

// UpdateAssignees creates a request setting the assignees of record id.
// An empty list clears them. Setting a full list is idempotent.
func UpdateAssignees(app, id uint64, assignees []string) *UpdateAssigneesRequest {
	if assignees == nil {
		assignees = []string{}
	}
	return kintone.TrackUnsent(&UpdateAssigneesRequest{
		Guard: kintone.NewGuard("record.assignees.update"),
		body:  updateAssigneesBody{App: app, ID: id, Assignees: assignees},
	})
}

// Revision makes the update fail unless the record is at revision.
func (r *UpdateAssigneesRequest) Revision(revision int64) *UpdateAssigneesRequest {
	r.body.Revision = &revision
	return r
}

// Send executes the request through svc.
func (r *UpdateAssigneesRequest) Send(ctx context.Context, svc middleware.Service) (*UpdateAssigneesResponse, error) {
	return kintone.Send[UpdateAssigneesResponse](ctx, svc, &r.Guard, &r.body,
		kintone.JSONBuild(nethttp.MethodPut, pathAssignees, &r.Guard, &r.body, middleware.WithIdempotent()))
}

// UpdateStatusRequest runs a process management action.
type UpdateStatusRequest struct {
	kintone.Guard
	idem kintone.Idempotency
	body updateStatusBody
}

type updateStatusBody struct {
	App      uint64 `json:"app" validate:"required"`
	ID       uint64 `json:"id" validate:"required"`
	Action   string `json:"action" validate:"required"`
	Assignee string `json:"assignee,omitempty"`
	Revision *int64 `json:"revision,omitempty"`
}

// UpdateStatusResponse holds the new revision.
type UpdateStatusResponse struct {
	Revision uint64 `json:"revision,string"`
}

// UpdateStatus creates a request running action on record id.
func UpdateStatus(app, id uint64, action string) *UpdateStatusRequest {
	return kintone.TrackUnsent(&UpdateStatusRequest{
		Guard: kintone.NewGuard("record.status.update"),
		body:  updateStatusBody{App: app, ID: id, Action: action},
	})
}

// Assignee sets the next assignee when the action requires one.
func (r *UpdateStatusRequest) Assignee(code string) *UpdateStatusRequest {
	r.body.Assignee = code
	return r
}

// Revision makes the action fail unless the record is at revision.
func (r *UpdateStatusRequest) Revision(revision int64) *UpdateStatusRequest {
	r.body.Revision = &revision
	return r
}

// RetrySafe allows retries. Only use it together with Revision, since a
// repeated action advances the status twice.
func (r *UpdateStatusRequest) RetrySafe() *UpdateStatusRequest {
	r.idem.MarkRetrySafe()
	return r
}

// Send executes the request through svc.
func (r *UpdateStatusRequest) Send(ctx context.Context, svc middleware.Service) (*UpdateStatusResponse, error) {
	return kintone.Send[UpdateStatusResponse](ctx, svc, &r.Guard, &r.body,
		kintone.JSONBuild(nethttp.MethodPut, pathStatus, &r.Guard, &r.body, r.idem.Options()...))
}
