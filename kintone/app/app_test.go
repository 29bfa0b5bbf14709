package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-kintone/kintone"
	"github.com/gaborage/go-kintone/kintone/app"
	"github.com/gaborage/go-kintone/kintonetest"
	"github.com/gaborage/go-kintone/middleware"
)

func newClient(t *testing.T, srv *kintonetest.Server) *kintone.Client {
	t.Helper()
	c, err := kintone.NewBuilder(srv.URL(), middleware.APITokens("token")).
		WithHTTPClient(srv.Client()).
		WithRetry(middleware.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}).
		Build()
	require.NoError(t, err)
	return c
}

func TestAppLifecycle(t *testing.T) {
	srv := kintonetest.New(t, kintonetest.WithDeployPolls(1))
	c := newClient(t, srv)
	ctx := context.Background()

	created, err := app.AddApp("Inventory").Send(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), created.Revision)
	name, ok := srv.AppName(created.App)
	require.True(t, ok)
	assert.Equal(t, "Inventory", name)

	fields, err := app.AddFormField(created.App).
		Field(app.SingleLineText("item", "Item")).
		Field(app.DropDown("size", "Size", "S", "M", "L")).
		Revision(int64(created.Revision)).
		Send(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), fields.Revision)

	form := srv.FormFields(created.App)
	require.Contains(t, form, "size")
	assert.JSONEq(t, `{
		"type": "DROP_DOWN", "code": "size", "label": "Size",
		"options": {
			"S": {"label": "S", "index": "0"},
			"M": {"label": "M", "index": "1"},
			"L": {"label": "L", "index": "2"}
		}
	}`, string(form["size"]))

	_, err = app.DeployAppSettings().App(created.App, int64(fields.Revision)).Send(ctx, c)
	require.NoError(t, err)

	status, err := app.GetAppDeployStatus(created.App).Send(ctx, c)
	require.NoError(t, err)
	require.Len(t, status.Apps, 1)
	assert.Equal(t, app.DeployProcessing, status.Apps[0].Status)
	assert.False(t, status.Apps[0].Status.Done())

	status, err = app.GetAppDeployStatus().App(created.App).Send(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, created.App, status.Apps[0].App)
	assert.Equal(t, app.DeploySuccess, status.Apps[0].Status)
	assert.True(t, status.Apps[0].Status.Done())
}

func TestAddAppInSpace(t *testing.T) {
	srv := kintonetest.New(t)
	c := newClient(t, srv)

	_, err := app.AddApp("Tasks").Space(4).Thread(5).Send(context.Background(), c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Tasks","space":4,"thread":5}`, string(srv.Requests()[0].Body))
}

func TestAddAppValidation(t *testing.T) {
	srv := kintonetest.New(t)
	c := newClient(t, srv)
	ctx := context.Background()

	_, err := app.AddApp("").Send(ctx, c)
	assert.True(t, middleware.IsKind(err, middleware.KindValidation))

	_, err = app.AddApp("Tasks").Space(4).Send(ctx, c)
	assert.True(t, middleware.IsKind(err, middleware.KindValidation))

	assert.Empty(t, srv.Requests())
}

func TestAddAppNotRetried(t *testing.T) {
	srv := kintonetest.New(t)
	srv.FailNext(1, http.StatusServiceUnavailable, "")
	c := newClient(t, srv)

	_, err := app.AddApp("Tasks").Send(context.Background(), c)
	require.Error(t, err)
	assert.Equal(t, 1, srv.RequestCount("/k/v1/preview/app.json"))
}

func TestAddFormFieldRetriedOnlyWithRevision(t *testing.T) {
	srv := kintonetest.New(t)
	id := srv.CreateApp("Tasks")
	c := newClient(t, srv)
	ctx := context.Background()

	srv.FailNext(1, http.StatusServiceUnavailable, "")
	_, err := app.AddFormField(id).Field(app.Number("qty", "Quantity")).Send(ctx, c)
	require.Error(t, err)
	assert.Equal(t, 1, srv.RequestCount("/k/v1/preview/app/form/fields.json"))

	srv.Reset()
	srv.FailNext(1, http.StatusServiceUnavailable, "")
	_, err = app.AddFormField(id).Field(app.Number("qty", "Quantity")).Revision(1).Send(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 2, srv.RequestCount("/k/v1/preview/app/form/fields.json"))
}

func TestAddFormFieldValidation(t *testing.T) {
	srv := kintonetest.New(t)
	c := newClient(t, srv)
	ctx := context.Background()

	_, err := app.AddFormField(1).Send(ctx, c)
	assert.True(t, middleware.IsKind(err, middleware.KindValidation), "no fields")

	_, err = app.AddFormField(1).Field(app.SingleLineText("bad code", "Label")).Send(ctx, c)
	assert.True(t, middleware.IsKind(err, middleware.KindValidation), "invalid code")

	_, err = app.AddFormField(1).Field(app.FieldProperty{Code: "x", Label: "X"}).Send(ctx, c)
	assert.True(t, middleware.IsKind(err, middleware.KindValidation), "missing type")

	assert.Empty(t, srv.Requests())
}

func TestAddFormFieldDuplicateCode(t *testing.T) {
	srv := kintonetest.New(t)
	id := srv.CreateApp("Tasks")
	c := newClient(t, srv)
	ctx := context.Background()

	_, err := app.AddFormField(id).Field(app.Number("qty", "Quantity")).Send(ctx, c)
	require.NoError(t, err)

	_, err = app.AddFormField(id).Field(app.Number("qty", "Quantity")).Send(ctx, c)
	var appErr *middleware.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CB_VA01", appErr.Code)
	assert.Contains(t, appErr.Errors, "properties.qty")
}

func TestDeployAppSettingsValidation(t *testing.T) {
	srv := kintonetest.New(t)
	c := newClient(t, srv)

	_, err := app.DeployAppSettings().Send(context.Background(), c)
	assert.True(t, middleware.IsKind(err, middleware.KindValidation))

	_, err = app.GetAppDeployStatus().Send(context.Background(), c)
	assert.True(t, middleware.IsKind(err, middleware.KindValidation))
	assert.Empty(t, srv.Requests())
}

func TestDeployAppSettingsBody(t *testing.T) {
	srv := kintonetest.New(t)
	a := srv.CreateApp("A")
	b := srv.CreateApp("B")
	c := newClient(t, srv)

	_, err := app.DeployAppSettings().App(a, 3).App(b, -1).Revert(true).Send(context.Background(), c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"apps":[{"app":"1","revision":3},{"app":"2"}],"revert":true}`, string(srv.Requests()[0].Body))
}

func TestDeployUnknownApp(t *testing.T) {
	srv := kintonetest.New(t)
	c := newClient(t, srv)

	_, err := app.DeployAppSettings().App(42, -1).Send(context.Background(), c)
	var appErr *middleware.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "GAIA_AP01", appErr.Code)
}

func TestFieldPropertyExtra(t *testing.T) {
	p := app.Number("price", "Price")
	p.Extra = map[string]any{"digit": true, "unit": "$", "type": "ignored"}

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"NUMBER","code":"price","label":"Price","digit":true,"unit":"$"}`, string(data))
}
