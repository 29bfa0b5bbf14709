// Package app implements the kintone app administration endpoints. Changes
// are made to the preview environment and published with DeployAppSettings.
package app

import (
	"context"
	nethttp "net/http"

	"github.com/gaborage/go-kintone/kintone"
	"github.com/gaborage/go-kintone/middleware"
)

const (
	pathApp        = "/v1/preview/app.json"
	pathFormFields = "/v1/preview/app/form/fields.json"
	pathDeploy     = "/v1/preview/app/deploy.json"
)

// DeployStatus is the state of an app deployment.
type DeployStatus string

const (
	DeployProcessing DeployStatus = "PROCESSING"
	DeploySuccess    DeployStatus = "SUCCESS"
	DeployFail       DeployStatus = "FAIL"
	DeployCancel     DeployStatus = "CANCEL"
)

// Done reports whether the deployment finished, successfully or not.
func (s DeployStatus) Done() bool {
	return s != DeployProcessing && s != ""
}

// AddAppRequest creates an app in the preview environment.
type AddAppRequest struct {
	kintone.Guard
	body addAppBody
}

type addAppBody struct {
	Name   string `json:"name" validate:"required,max=64"`
	Space  uint64 `json:"space,omitempty" validate:"required_with=Thread"`
	Thread uint64 `json:"thread,omitempty" validate:"required_with=Space"`
}

// AddAppResponse holds the new app id and revision.
type AddAppResponse struct {
	App      uint64 `json:"app,string"`
	Revision uint64 `json:"revision,string"`
}

// AddApp creates a request adding an app named name.
func AddApp(name string) *AddAppRequest {
	return kintone.TrackUnsent(&AddAppRequest{
		Guard: kintone.NewGuard("app.add"),
		body:  addAppBody{Name: name},
	})
}

// Space creates the app in a space. Thread must be set as well.
func (r *AddAppRequest) Space(id uint64) *AddAppRequest {
	r.body.Space = id
	return r
}

// Thread sets the space thread the app belongs to.
func (r *AddAppRequest) Thread(id uint64) *AddAppRequest {
	r.body.Thread = id
	return r
}

// Send executes the request through svc. It is never retried.
func (r *AddAppRequest) Send(ctx context.Context, svc middleware.Service) (*AddAppResponse, error) {
	return kintone.Send[AddAppResponse](ctx, svc, &r.Guard, &r.body,
		kintone.JSONBuild(nethttp.MethodPost, pathApp, &r.Guard, &r.body))
}

// AddFormFieldRequest adds fields to an app form.
type AddFormFieldRequest struct {
	kintone.Guard
	body addFormFieldBody
}

type addFormFieldBody struct {
	App        uint64                   `json:"app,string" validate:"required"`
	Properties map[string]FieldProperty `json:"properties" validate:"required,min=1,dive"`
	Revision   *int64                   `json:"revision,omitempty"`
}

// AddFormFieldResponse holds the new preview revision.
type AddFormFieldResponse struct {
	Revision uint64 `json:"revision,string"`
}

// AddFormField creates a request adding fields to app.
func AddFormField(app uint64) *AddFormFieldRequest {
	return kintone.TrackUnsent(&AddFormFieldRequest{
		Guard: kintone.NewGuard("app.form.fields.add"),
		body:  addFormFieldBody{App: app, Properties: make(map[string]FieldProperty)},
	})
}

// Field adds a field. Fields are keyed by code, so a later field with the
// same code replaces an earlier one.
func (r *AddFormFieldRequest) Field(p FieldProperty) *AddFormFieldRequest {
	r.body.Properties[p.Code] = p
	return r
}

// Revision makes the request fail unless the preview is at revision.
func (r *AddFormFieldRequest) Revision(revision int64) *AddFormFieldRequest {
	r.body.Revision = &revision
	return r
}

// Send executes the request through svc. Adding an existing field code
// fails, so the request is retried only when a revision is set.
func (r *AddFormFieldRequest) Send(ctx context.Context, svc middleware.Service) (*AddFormFieldResponse, error) {
	var opts []middleware.RequestOption
	if r.body.Revision != nil {
		opts = append(opts, middleware.WithIdempotent())
	}
	return kintone.Send[AddFormFieldResponse](ctx, svc, &r.Guard, &r.body,
		kintone.JSONBuild(nethttp.MethodPost, pathFormFields, &r.Guard, &r.body, opts...))
}

// DeployAppSettingsRequest publishes or reverts preview settings.
type DeployAppSettingsRequest struct {
	kintone.Guard
	body deployBody
}

type deployBody struct {
	Apps   []deployApp `json:"apps" validate:"required,min=1,max=300,dive"`
	Revert bool        `json:"revert,omitempty"`
}

type deployApp struct {
	App      uint64 `json:"app,string" validate:"required"`
	Revision *int64 `json:"revision,omitempty"`
}

// DeployAppSettingsResponse is empty. Poll GetAppDeployStatus for the result.
type DeployAppSettingsResponse struct{}

// DeployAppSettings creates a deployment. Add apps with App.
func DeployAppSettings() *DeployAppSettingsRequest {
	return kintone.TrackUnsent(&DeployAppSettingsRequest{
		Guard: kintone.NewGuard("app.deploy"),
	})
}

// App adds an app to the deployment. A negative revision deploys the
// latest preview.
func (r *DeployAppSettingsRequest) App(id uint64, revision int64) *DeployAppSettingsRequest {
	a := deployApp{App: id}
	if revision >= 0 {
		a.Revision = &revision
	}
	r.body.Apps = append(r.body.Apps, a)
	return r
}

// Revert discards the preview changes instead of publishing them.
func (r *DeployAppSettingsRequest) Revert(revert bool) *DeployAppSettingsRequest {
	r.body.Revert = revert
	return r
}

// Send executes the request through svc. Deploying the same settings
// twice is harmless, so the request is retried.
func (r *DeployAppSettingsRequest) Send(ctx context.Context, svc middleware.Service) (*DeployAppSettingsResponse, error) {
	return kintone.Send[DeployAppSettingsResponse](ctx, svc, &r.Guard, &r.body,
		kintone.JSONBuild(nethttp.MethodPost, pathDeploy, &r.Guard, &r.body, middleware.WithIdempotent()))
}

// GetAppDeployStatusRequest reads deployment states.
type GetAppDeployStatusRequest struct {
	kintone.Guard
	params deployStatusParams
}

type deployStatusParams struct {
	Apps []uint64 `query:"apps" validate:"required,min=1,max=300"`
}

// AppDeployStatus is the deployment state of one app.
type AppDeployStatus struct {
	App    uint64       `json:"app,string"`
	Status DeployStatus `json:"status"`
}

// GetAppDeployStatusResponse holds one status per requested app.
type GetAppDeployStatusResponse struct {
	Apps []AppDeployStatus `json:"apps"`
}

// GetAppDeployStatus creates a status request for apps.
func GetAppDeployStatus(apps ...uint64) *GetAppDeployStatusRequest {
	return kintone.TrackUnsent(&GetAppDeployStatusRequest{
		Guard:  kintone.NewGuard("app.deploy.status"),
		params: deployStatusParams{Apps: apps},
	})
}

// App adds an app to the request.
func (r *GetAppDeployStatusRequest) App(id uint64) *GetAppDeployStatusRequest {
	r.params.Apps = append(r.params.Apps, id)
	return r
}

// Send executes the request through svc.
func (r *GetAppDeployStatusRequest) Send(ctx context.Context, svc middleware.Service) (*GetAppDeployStatusResponse, error) {
	return kintone.Send[GetAppDeployStatusResponse](ctx, svc, &r.Guard, &r.params,
		kintone.QueryBuild(nethttp.MethodGet, pathDeploy, &r.Guard, &r.params, middleware.WithIdempotent()))
}
