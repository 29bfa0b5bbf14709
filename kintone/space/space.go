// Package space implements the kintone space endpoints.
package space

import (
	"context"
	nethttp "net/http"

	"github.com/gaborage/go-kintone/kintone"
	"github.com/gaborage/go-kintone/middleware"
)

const pathThreadComment = "/v1/space/thread/comment.json"

// ThreadComment is a comment to post in a space thread.
type ThreadComment struct {
	Text     string              `json:"text,omitempty" validate:"required_without=Files"`
	Mentions []kintone.Entity    `json:"mentions,omitempty" validate:"dive"`
	Files    []ThreadCommentFile `json:"files,omitempty" validate:"max=5,dive"`
}

// ThreadCommentFile attaches an uploaded file to a thread comment.
type ThreadCommentFile struct {
	FileKey string `json:"fileKey" validate:"required"`
	Width   uint64 `json:"width,omitempty" validate:"omitempty,gte=100,lte=750"`
}

// AddThreadCommentRequest posts a comment in a thread.
type AddThreadCommentRequest struct {
	kintone.Guard
	idem kintone.Idempotency
	body addThreadCommentBody
}

type addThreadCommentBody struct {
	Space   uint64        `json:"space" validate:"required"`
	Thread  uint64        `json:"thread" validate:"required"`
	Comment ThreadComment `json:"comment"`
}

// AddThreadCommentResponse holds the new comment id.
type AddThreadCommentResponse struct {
	ID uint64 `json:"id,string"`
}

// AddThreadComment creates a request posting comment in thread of space.
func AddThreadComment(space, thread uint64, comment ThreadComment) *AddThreadCommentRequest {
	return kintone.TrackUnsent(&AddThreadCommentRequest{
		Guard: kintone.NewGuard("space.thread.comment.add"),
		body:  addThreadCommentBody{Space: space, Thread: thread, Comment: comment},
	})
}

// IdempotencyKey sends key with the request and allows retries.
func (r *AddThreadCommentRequest) IdempotencyKey(key string) *AddThreadCommentRequest {
	r.idem.SetKey(key)
	return r
}

// Send executes the request through svc.
func (r *AddThreadCommentRequest) Send(ctx context.Context, svc middleware.Service) (*AddThreadCommentResponse, error) {
	return kintone.Send[AddThreadCommentResponse](ctx, svc, &r.Guard, &r.body,
		kintone.JSONBuild(nethttp.MethodPost, pathThreadComment, &r.Guard, &r.body, r.idem.Options()...))
}
