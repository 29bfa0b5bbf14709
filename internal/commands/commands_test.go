package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-kintone/kintonetest"
	"github.com/gaborage/go-kintone/middleware"
)

const testToken = "secret-token"

// writeConfig writes a config file pointing at srv with fast retries
func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	content := fmt.Sprintf(`
base_url: %s
auth:
  api_tokens: [%s]
retry:
  base_delay: 1ms
  max_delay: 2ms
log:
  level: error
`, baseURL, testToken)
	path := filepath.Join(t.TempDir(), "kintone.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := NewRootCommand("test")
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func run(t *testing.T, srv *kintonetest.Server, args ...string) (string, error) {
	t.Helper()
	out, _, err := execute(t, append([]string{"--config", writeConfig(t, srv.URL())}, args...)...)
	return out, err
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "kintone version test", lines[0])
	assert.Equal(t, "Built with "+runtime.Version()+" "+runtime.GOOS+"/"+runtime.GOARCH, lines[1])
}

func TestRecordGet(t *testing.T) {
	srv := kintonetest.New(t, kintonetest.WithAPIToken(testToken))
	app := srv.CreateApp("tasks")
	srv.SeedRecords(app, map[string]kintonetest.Field{"title": kintonetest.Text("hello")})

	out, err := run(t, srv, "record", "get", "--app", fmt.Sprint(app), "--id", "1")
	require.NoError(t, err)

	var rec map[string]struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.JSONEq(t, `"hello"`, string(rec["title"].Value))
	assert.Equal(t, testToken, srv.Requests()[0].Header.Get("X-Cybozu-API-Token"))
}

func TestRecordGetNotFound(t *testing.T) {
	srv := kintonetest.New(t)
	app := srv.CreateApp("tasks")

	_, err := run(t, srv, "record", "get", "--app", fmt.Sprint(app), "--id", "9")
	assert.Equal(t, 404, middleware.StatusCode(err))
}

func TestRecordList(t *testing.T) {
	srv := kintonetest.New(t)
	app := srv.CreateApp("tasks")
	for i := range 3 {
		srv.SeedRecords(app, map[string]kintonetest.Field{"title": kintonetest.Text(fmt.Sprint("r", i))})
	}

	tests := []struct {
		name  string
		args  []string
		count int
	}{
		{"single page", []string{"--query", "order by $id asc limit 2"}, 2},
		{"all pages", []string{"--all", "--page-size", "1", "--concurrency", "2", "--fields", "title"}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"record", "list", "--app", fmt.Sprint(app)}, tt.args...)
			out, err := run(t, srv, args...)
			require.NoError(t, err)

			var list struct {
				Records    []map[string]json.RawMessage `json:"records"`
				TotalCount uint64                       `json:"totalCount"`
			}
			require.NoError(t, json.Unmarshal([]byte(out), &list))
			assert.Len(t, list.Records, tt.count)
			assert.Equal(t, uint64(3), list.TotalCount)
		})
	}
}

func TestRecordAddAndUpdate(t *testing.T) {
	srv := kintonetest.New(t)
	app := srv.CreateApp("tasks")

	out, err := run(t, srv, "record", "add", "--app", fmt.Sprint(app),
		"--data", `{"title": {"value": "draft"}}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id": "1", "revision": "1"}`, out)

	dataFile := filepath.Join(t.TempDir(), "changes.json")
	require.NoError(t, os.WriteFile(dataFile, []byte(`{"title": {"value": "final"}}`), 0o600))

	out, err = run(t, srv, "record", "update", "--app", fmt.Sprint(app), "--id", "1",
		"--revision", "1", "--data", "@"+dataFile)
	require.NoError(t, err)
	assert.JSONEq(t, `{"revision": "2"}`, out)

	fields, revision, ok := srv.Record(app, 1)
	require.True(t, ok)
	assert.Equal(t, uint64(2), revision)
	assert.JSONEq(t, `"final"`, string(fields["title"].Value))
}

func TestRecordUpdateRejectsBadInput(t *testing.T) {
	srv := kintonetest.New(t)
	app := srv.CreateApp("tasks")

	tests := []struct {
		name string
		args []string
	}{
		{"malformed key", []string{"--key", "code", "--data", `{}`}},
		{"invalid json", []string{"--id", "1", "--data", `{not json`}},
		{"no selector", []string{"--data", `{}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"record", "update", "--app", fmt.Sprint(app)}, tt.args...)
			_, err := run(t, srv, args...)
			assert.Error(t, err)
		})
	}
	assert.Empty(t, srv.Requests())
}

func TestFileUploadAndDownload(t *testing.T) {
	srv := kintonetest.New(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("meeting notes"), 0o600))

	for _, retrySafe := range []bool{false, true} {
		t.Run(fmt.Sprint("retry safe ", retrySafe), func(t *testing.T) {
			args := []string{"file", "upload", src}
			if retrySafe {
				args = append(args, "--retry-safe")
			}
			out, err := run(t, srv, args...)
			require.NoError(t, err)

			key := strings.TrimSpace(out)
			name, content, ok := srv.File(key)
			require.True(t, ok)
			assert.Equal(t, "notes.txt", name)
			assert.Equal(t, "meeting notes", string(content))

			dst := filepath.Join(dir, "copy.txt")
			_, err = run(t, srv, "file", "download", key, "--output", dst)
			require.NoError(t, err)
			got, err := os.ReadFile(dst)
			require.NoError(t, err)
			assert.Equal(t, "meeting notes", string(got))
		})
	}
}

func TestFileDownloadToStdout(t *testing.T) {
	srv := kintonetest.New(t)
	key := srv.PutFile("a.bin", "application/octet-stream", []byte{1, 2, 3})

	out, err := run(t, srv, "file", "download", key)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, []byte(out))
}

func TestFileUploadMissingFile(t *testing.T) {
	srv := kintonetest.New(t)

	_, err := run(t, srv, "file", "upload", filepath.Join(t.TempDir(), "absent"))
	assert.ErrorContains(t, err, "failed to open")
	assert.Empty(t, srv.Requests())
}

func TestAppDeployWait(t *testing.T) {
	srv := kintonetest.New(t, kintonetest.WithDeployPolls(2))
	app := srv.CreateApp("tasks")

	out, err := run(t, srv, "app", "deploy", fmt.Sprint(app), "--wait", "--poll-interval", "1ms")
	require.NoError(t, err)
	assert.Contains(t, out, `"SUCCESS"`)
	assert.Equal(t, 4, srv.RequestCount("/k/v1/preview/app/deploy.json"))
}

func TestAppDeployStatus(t *testing.T) {
	srv := kintonetest.New(t)
	app := srv.CreateApp("tasks")

	_, err := run(t, srv, "app", "deploy", fmt.Sprint(app))
	require.NoError(t, err)

	out, err := run(t, srv, "app", "deploy-status", fmt.Sprint(app))
	require.NoError(t, err)
	assert.Contains(t, out, `"apps"`)

	_, err = run(t, srv, "app", "deploy-status", "twelve")
	assert.ErrorContains(t, err, `invalid id "twelve"`)
}

func TestSpaceComment(t *testing.T) {
	srv := kintonetest.New(t)

	out, err := run(t, srv, "space", "comment", "--space", "3", "--thread", "9",
		"--text", "released", "--mention", "alice", "--idempotency-key", "rel-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id": "1"}`, out)

	comments := srv.ThreadComments(3, 9)
	require.Len(t, comments, 1)
	assert.JSONEq(t, `{"text": "released", "mentions": [{"type": "USER", "code": "alice"}]}`, string(comments[0]))
	assert.Equal(t, "rel-1", srv.Requests()[0].Header.Get("Idempotency-Key"))
}

func TestConfigShowMasksSecrets(t *testing.T) {
	srv := kintonetest.New(t)

	out, err := run(t, srv, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "base_url")
	assert.Contains(t, out, "***")
	assert.NotContains(t, out, testToken)
}

func TestConfigGet(t *testing.T) {
	srv := kintonetest.New(t)

	out, err := run(t, srv, "config", "get", "retry.base_delay")
	require.NoError(t, err)
	assert.Equal(t, "1ms\n", out)

	out, err = run(t, srv, "config", "get", "auth.api_tokens")
	require.NoError(t, err)
	assert.NotContains(t, out, testToken)

	_, err = run(t, srv, "config", "get", "no.such.key")
	assert.ErrorContains(t, err, "no.such.key is not set")
}

func TestBaseURLFlagOverridesFile(t *testing.T) {
	srv := kintonetest.New(t)
	app := srv.CreateApp("tasks")
	srv.SeedRecords(app, map[string]kintonetest.Field{"title": kintonetest.Text("x")})
	cfg := writeConfig(t, "https://unused.cybozu.com")

	_, _, err := execute(t, "--config", cfg, "--base-url", srv.URL(),
		"record", "get", "--app", fmt.Sprint(app), "--id", "1")
	require.NoError(t, err)
	assert.Len(t, srv.Requests(), 1)
}

func TestGuestSpaceFlag(t *testing.T) {
	srv := kintonetest.New(t)
	app := srv.CreateApp("tasks")
	srv.SeedRecords(app, map[string]kintonetest.Field{"title": kintonetest.Text("x")})

	_, err := run(t, srv, "--guest-space", "5", "record", "get", "--app", fmt.Sprint(app), "--id", "1")
	require.NoError(t, err)
	assert.Equal(t, "/k/guest/5/v1/record.json", srv.Requests()[0].Path)
}

func TestInvalidConfigFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kintone.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_url: ftp://example.com\nauth:\n  api_tokens: [t]\n"), 0o600))

	_, _, err := execute(t, "--config", path, "record", "get", "--app", "1", "--id", "1")
	assert.ErrorContains(t, err, "base_url")
}
