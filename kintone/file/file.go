// Package file implements the kintone file upload and download endpoints.
package file

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"sync"

	"github.com/gaborage/go-kintone/kintone"
	"github.com/gaborage/go-kintone/middleware"
)

const (
	pathFile  = "/v1/file.json"
	formField = "file"
)

// UploadRequest uploads a file and returns a key for a FILE field.
type UploadRequest struct {
	kintone.Guard
	idem   kintone.Idempotency
	params uploadParams
	reader io.Reader
}

type uploadParams struct {
	Filename string `json:"filename" validate:"required"`
	Content  []byte `json:"-"`
}

// UploadResponse holds the temporary file key.
type UploadResponse struct {
	FileKey string `json:"fileKey"`
}

// Upload creates an upload of content. The multipart body is built in
// memory so the upload can be retried.
func Upload(filename string, content []byte) *UploadRequest {
	return kintone.TrackUnsent(&UploadRequest{
		Guard:  kintone.NewGuard("file.upload"),
		params: uploadParams{Filename: filename, Content: content},
	})
}

// UploadReader creates an upload streamed from r. The body can be read
// only once, so the upload is never retried.
func UploadReader(filename string, r io.Reader) *UploadRequest {
	return kintone.TrackUnsent(&UploadRequest{
		Guard:  kintone.NewGuard("file.upload"),
		params: uploadParams{Filename: filename},
		reader: r,
	})
}

// RetrySafe allows retries of an in-memory upload. Each retry creates a
// new temporary file key on the server, which is harmless.
func (r *UploadRequest) RetrySafe() *UploadRequest {
	r.idem.MarkRetrySafe()
	return r
}

// Send executes the request through svc.
func (r *UploadRequest) Send(ctx context.Context, svc middleware.Service) (*UploadResponse, error) {
	return kintone.Send[UploadResponse](ctx, svc, &r.Guard, &r.params, r.build)
}

func (r *UploadRequest) build() (*middleware.Request, error) {
	opts := []middleware.RequestOption{middleware.WithOperation(r.Operation())}

	if r.reader != nil {
		body, contentType := streamMultipart(r.params.Filename, r.reader)
		opts = append(opts, middleware.WithBody(middleware.ReaderBody(body, contentType)))
		return middleware.NewRequest(nethttp.MethodPost, pathFile, opts...), nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(formField, r.params.Filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(r.params.Content); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	opts = append(opts, middleware.WithBody(middleware.BytesBody(buf.Bytes(), w.FormDataContentType())))
	opts = append(opts, r.idem.Options()...)
	return middleware.NewRequest(nethttp.MethodPost, pathFile, opts...), nil
}

// streamMultipart encodes src as a multipart form without buffering it.
// Encoding starts on the first Read.
func streamMultipart(filename string, src io.Reader) (io.Reader, string) {
	pr, pw := io.Pipe()
	w := multipart.NewWriter(pw)
	return &lazyPipe{pr: pr, start: func() {
		go func() {
			part, err := w.CreateFormFile(formField, filename)
			if err == nil {
				_, err = io.Copy(part, src)
			}
			if err == nil {
				err = w.Close()
			}
			pw.CloseWithError(err)
		}()
	}}, w.FormDataContentType()
}

type lazyPipe struct {
	once  sync.Once
	start func()
	pr    *io.PipeReader
}

func (p *lazyPipe) Read(b []byte) (int, error) {
	p.once.Do(p.start)
	return p.pr.Read(b)
}

func (p *lazyPipe) Close() error {
	return p.pr.Close()
}

// DownloadRequest downloads a file by key.
type DownloadRequest struct {
	kintone.Guard
	params downloadParams
}

type downloadParams struct {
	FileKey string `query:"fileKey" validate:"required"`
}

// DownloadResponse holds the file content.
type DownloadResponse struct {
	MimeType string
	Content  []byte
}

// Download creates a download of fileKey, as found in a FILE field.
func Download(fileKey string) *DownloadRequest {
	return kintone.TrackUnsent(&DownloadRequest{
		Guard:  kintone.NewGuard("file.download"),
		params: downloadParams{FileKey: fileKey},
	})
}

// Send executes the request through svc.
func (r *DownloadRequest) Send(ctx context.Context, svc middleware.Service) (*DownloadResponse, error) {
	resp, err := kintone.Execute(ctx, svc, &r.Guard, &r.params,
		kintone.QueryBuild(nethttp.MethodGet, pathFile, &r.Guard, &r.params, middleware.WithIdempotent()))
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, middleware.NewDecodeError(r.Operation(), fmt.Errorf("empty response"), nil)
	}
	return &DownloadResponse{
		MimeType: resp.Header.Get("Content-Type"),
		Content:  resp.Body,
	}, nil
}
