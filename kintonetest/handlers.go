package kintonetest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	maxLimit        = 500
	maxOffset       = 10000
	defaultLimit    = 100
	maxCommentLimit = 10
)

var (
	limitClause  = regexp.MustCompile(`(?i)\blimit\s+(\d+)`)
	offsetClause = regexp.MustCompile(`(?i)\boffset\s+(\d+)`)
	descOrder    = regexp.MustCompile(`(?i)order\s+by\s+\$id\s+desc`)
)

// flexUint accepts ids sent either as JSON numbers or strings.
type flexUint uint64

func (f *flexUint) UnmarshalJSON(b []byte) error {
	n, err := strconv.ParseUint(strings.Trim(string(b), `"`), 10, 64)
	if err != nil {
		return err
	}
	*f = flexUint(n)
	return nil
}

func (s *Server) routes(g *echo.Group) {
	g.GET("/v1/record.json", s.getRecord)
	g.POST("/v1/record.json", s.addRecord)
	g.PUT("/v1/record.json", s.updateRecord)
	g.GET("/v1/records.json", s.getRecords)
	g.GET("/v1/record/comments.json", s.getComments)
	g.POST("/v1/record/comment.json", s.addComment)
	g.DELETE("/v1/record/comment.json", s.deleteComment)
	g.PUT("/v1/record/assignees.json", s.updateAssignees)
	g.PUT("/v1/record/status.json", s.updateStatus)
	g.POST("/v1/file.json", s.uploadFile)
	g.GET("/v1/file.json", s.downloadFile)
	g.POST("/v1/space/thread/comment.json", s.addThreadComment)
	g.POST("/v1/preview/app.json", s.addApp)
	g.POST("/v1/preview/app/form/fields.json", s.addFormFields)
	g.POST("/v1/preview/app/deploy.json", s.deployApps)
	g.GET("/v1/preview/app/deploy.json", s.deployStatus)
}

func bindJSON(c echo.Context, v any) error {
	if err := json.NewDecoder(c.Request().Body).Decode(v); err != nil {
		return invalidField("body", err.Error())
	}
	return nil
}

func queryUint(c echo.Context, name string) (uint64, error) {
	n, err := strconv.ParseUint(c.QueryParam(name), 10, 64)
	if err != nil {
		return 0, invalidField(name, "must be a positive integer")
	}
	return n, nil
}

// queryList collects name[0], name[1], ... in index order.
func queryList(c echo.Context, name string) []string {
	var out []string
	for i := 0; ; i++ {
		v := c.QueryParam(name + "[" + strconv.Itoa(i) + "]")
		if v == "" {
			return out
		}
		out = append(out, v)
	}
}

// app must be called with s.mu held.
func (s *Server) app(id uint64) (*appData, error) {
	a, ok := s.store.apps[id]
	if !ok {
		return nil, newError(http.StatusNotFound, codeAppNotFound, "The app (ID: "+strconv.FormatUint(id, 10)+") not found.")
	}
	return a, nil
}

// storedRecord must be called with s.mu held.
func (s *Server) storedRecord(app, id uint64) (*appData, *storedRecord, error) {
	a, err := s.app(app)
	if err != nil {
		return nil, nil, err
	}
	r, ok := a.records[id]
	if !ok {
		return nil, nil, newError(http.StatusNotFound, codeNotFound, "The record (ID: "+strconv.FormatUint(id, 10)+") not found.")
	}
	return a, r, nil
}

func checkRevision(r *storedRecord, revision *int64) error {
	if revision == nil || *revision == -1 || uint64(*revision) == r.revision {
		return nil
	}
	return newError(http.StatusConflict, codeConflict, "The revision is not the latest.")
}

func revisionResponse(c echo.Context, revision uint64) error {
	return c.JSON(http.StatusOK, map[string]string{"revision": strconv.FormatUint(revision, 10)})
}

func (s *Server) getRecord(c echo.Context) error {
	app, err := queryUint(c, "app")
	if err != nil {
		return err
	}
	id, err := queryUint(c, "id")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, r, err := s.storedRecord(app, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"record": r.encode(nil)})
}

func (s *Server) getRecords(c echo.Context) error {
	app, err := queryUint(c, "app")
	if err != nil {
		return err
	}
	query := c.QueryParam("query")
	limit, offset := uint64(defaultLimit), uint64(0)
	if m := limitClause.FindStringSubmatch(query); m != nil {
		limit, _ = strconv.ParseUint(m[1], 10, 64)
	}
	if m := offsetClause.FindStringSubmatch(query); m != nil {
		offset, _ = strconv.ParseUint(m[1], 10, 64)
	}
	if limit > maxLimit {
		return invalidField("query", "limit must be 500 or less")
	}
	if offset > maxOffset {
		return invalidField("query", "offset must be 10000 or less")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.app(app)
	if err != nil {
		return err
	}

	ids := a.sortedIDs(descOrder.MatchString(query))
	fields := queryList(c, "fields")
	records := make([]map[string]Field, 0, limit)
	for i := offset; i < uint64(len(ids)) && i < offset+limit; i++ {
		records = append(records, a.records[ids[i]].encode(fields))
	}

	var total *string
	if c.QueryParam("totalCount") == "true" {
		n := strconv.Itoa(len(ids))
		total = &n
	}
	return c.JSON(http.StatusOK, map[string]any{"records": records, "totalCount": total})
}

type recordBody struct {
	App       flexUint         `json:"app"`
	ID        flexUint         `json:"id"`
	UpdateKey *updateKey       `json:"updateKey"`
	Record    map[string]Field `json:"record"`
	Revision  *int64           `json:"revision"`
}

type updateKey struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (s *Server) addRecord(c echo.Context) error {
	var body recordBody
	if err := bindJSON(c, &body); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.app(uint64(body.App))
	if err != nil {
		return err
	}
	r := s.store.addRecord(a, body.Record)
	return c.JSON(http.StatusOK, map[string]string{
		"id":       strconv.FormatUint(r.id, 10),
		"revision": strconv.FormatUint(r.revision, 10),
	})
}

func (s *Server) updateRecord(c echo.Context) error {
	var body recordBody
	if err := bindJSON(c, &body); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.app(uint64(body.App))
	if err != nil {
		return err
	}

	var r *storedRecord
	switch {
	case body.ID != 0 && body.UpdateKey != nil:
		return invalidField("updateKey", "cannot be combined with id")
	case body.ID != 0:
		if r = a.records[uint64(body.ID)]; r == nil {
			return newError(http.StatusNotFound, codeNotFound, "The record not found.")
		}
	case body.UpdateKey != nil:
		if r = a.findByKey(body.UpdateKey.Field, body.UpdateKey.Value); r == nil {
			return newError(http.StatusNotFound, codeNotFound, "The record not found.")
		}
	default:
		return invalidField("id", "Required field.")
	}

	if err := checkRevision(r, body.Revision); err != nil {
		return err
	}
	for code, f := range body.Record {
		if isBuiltin(code, f.Type) {
			return invalidField("record."+code, "cannot be updated")
		}
		r.fields[code] = f
	}
	r.revision++
	return revisionResponse(c, r.revision)
}

func (s *Server) getComments(c echo.Context) error {
	app, err := queryUint(c, "app")
	if err != nil {
		return err
	}
	record, err := queryUint(c, "record")
	if err != nil {
		return err
	}
	limit := uint64(maxCommentLimit)
	if c.QueryParam("limit") != "" {
		if limit, err = queryUint(c, "limit"); err != nil {
			return err
		}
	}
	if limit > maxCommentLimit {
		return invalidField("limit", "must be 10 or less")
	}
	var offset uint64
	if c.QueryParam("offset") != "" {
		if offset, err = queryUint(c, "offset"); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, _, err := s.storedRecord(app, record)
	if err != nil {
		return err
	}

	all := a.comments[record]
	ordered := make([]Comment, len(all))
	copy(ordered, all)
	if c.QueryParam("order") != "asc" {
		for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		}
	}
	start := min(offset, uint64(len(ordered)))
	end := min(start+limit, uint64(len(ordered)))
	return c.JSON(http.StatusOK, map[string]any{
		"comments": ordered[start:end],
		"older":    end < uint64(len(ordered)),
		"newer":    start > 0,
	})
}

type commentBody struct {
	App     flexUint `json:"app"`
	Record  flexUint `json:"record"`
	Comment struct {
		Text     string            `json:"text"`
		Mentions []json.RawMessage `json:"mentions"`
	} `json:"comment"`
}

func (s *Server) addComment(c echo.Context) error {
	var body commentBody
	if err := bindJSON(c, &body); err != nil {
		return err
	}
	if body.Comment.Text == "" {
		return invalidField("comment.text", "Required field.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, _, err := s.storedRecord(uint64(body.App), uint64(body.Record))
	if err != nil {
		return err
	}
	a.nextComment++
	a.comments[uint64(body.Record)] = append(a.comments[uint64(body.Record)], Comment{
		ID:        a.nextComment,
		Text:      body.Comment.Text,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Creator:   apiUser,
		Mentions:  body.Comment.Mentions,
	})
	return c.JSON(http.StatusOK, map[string]string{"id": strconv.FormatUint(a.nextComment, 10)})
}

func (s *Server) deleteComment(c echo.Context) error {
	var body struct {
		App     flexUint `json:"app"`
		Record  flexUint `json:"record"`
		Comment flexUint `json:"comment"`
	}
	if err := bindJSON(c, &body); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, _, err := s.storedRecord(uint64(body.App), uint64(body.Record))
	if err != nil {
		return err
	}
	comments := a.comments[uint64(body.Record)]
	for i, cm := range comments {
		if cm.ID == uint64(body.Comment) {
			a.comments[uint64(body.Record)] = append(comments[:i:i], comments[i+1:]...)
			return c.JSON(http.StatusOK, struct{}{})
		}
	}
	return newError(http.StatusNotFound, codeNotFound, "The comment not found.")
}

func (s *Server) updateAssignees(c echo.Context) error {
	var body struct {
		App       flexUint `json:"app"`
		ID        flexUint `json:"id"`
		Assignees []string `json:"assignees"`
		Revision  *int64   `json:"revision"`
	}
	if err := bindJSON(c, &body); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, r, err := s.storedRecord(uint64(body.App), uint64(body.ID))
	if err != nil {
		return err
	}
	if err := checkRevision(r, body.Revision); err != nil {
		return err
	}
	r.assignees = body.Assignees
	r.revision++
	return revisionResponse(c, r.revision)
}

func (s *Server) updateStatus(c echo.Context) error {
	var body struct {
		App      flexUint `json:"app"`
		ID       flexUint `json:"id"`
		Action   string   `json:"action"`
		Assignee string   `json:"assignee"`
		Revision *int64   `json:"revision"`
	}
	if err := bindJSON(c, &body); err != nil {
		return err
	}
	if body.Action == "" {
		return invalidField("action", "Required field.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, r, err := s.storedRecord(uint64(body.App), uint64(body.ID))
	if err != nil {
		return err
	}
	if err := checkRevision(r, body.Revision); err != nil {
		return err
	}
	r.status = body.Action
	r.assignees = nil
	if body.Assignee != "" {
		r.assignees = []string{body.Assignee}
	}
	r.revision++
	return revisionResponse(c, r.revision)
}

func (st *store) putFile(f storedFile) string {
	key := uuid.NewString()
	st.files[key] = f
	return key
}

func (s *Server) uploadFile(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return invalidField("file", "Required field.")
	}
	src, err := fh.Open()
	if err != nil {
		return invalidField("file", err.Error())
	}
	defer src.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, src); err != nil {
		return invalidField("file", err.Error())
	}

	contentType := fh.Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}

	s.mu.Lock()
	key := s.store.putFile(storedFile{name: fh.Filename, contentType: contentType, content: buf.Bytes()})
	s.mu.Unlock()
	return c.JSON(http.StatusOK, map[string]string{"fileKey": key})
}

func (s *Server) downloadFile(c echo.Context) error {
	key := c.QueryParam("fileKey")

	s.mu.Lock()
	f, ok := s.store.files[key]
	s.mu.Unlock()
	if !ok {
		return newError(http.StatusNotFound, codeNotFound, "The file not found.")
	}
	return c.Blob(http.StatusOK, f.contentType, f.content)
}

func (s *Server) addThreadComment(c echo.Context) error {
	var body struct {
		Space   flexUint        `json:"space"`
		Thread  flexUint        `json:"thread"`
		Comment json.RawMessage `json:"comment"`
	}
	if err := bindJSON(c, &body); err != nil {
		return err
	}
	if body.Space == 0 || body.Thread == 0 {
		return invalidField("thread", "Required field.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := threadKey{uint64(body.Space), uint64(body.Thread)}
	s.store.threads[key] = append(s.store.threads[key], body.Comment)
	s.store.nextThreadComment++
	return c.JSON(http.StatusOK, map[string]string{"id": strconv.FormatUint(s.store.nextThreadComment, 10)})
}

func (s *Server) addApp(c echo.Context) error {
	var body struct {
		Name string `json:"name"`
	}
	if err := bindJSON(c, &body); err != nil {
		return err
	}
	if body.Name == "" {
		return invalidField("name", "Required field.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.store.createApp(body.Name)
	return c.JSON(http.StatusOK, map[string]string{
		"app":      strconv.FormatUint(id, 10),
		"revision": "1",
	})
}

func (s *Server) addFormFields(c echo.Context) error {
	var body struct {
		App        flexUint                   `json:"app"`
		Properties map[string]json.RawMessage `json:"properties"`
		Revision   *int64                     `json:"revision"`
	}
	if err := bindJSON(c, &body); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.app(uint64(body.App))
	if err != nil {
		return err
	}
	if body.Revision != nil && *body.Revision != -1 && uint64(*body.Revision) != a.revision {
		return newError(http.StatusConflict, codeConflict, "The revision is not the latest.")
	}
	for code := range body.Properties {
		if _, exists := a.form[code]; exists {
			return invalidField("properties."+code, "The field code is already in use.")
		}
	}
	for code, p := range body.Properties {
		a.form[code] = p
	}
	a.revision++
	return revisionResponse(c, a.revision)
}

func (s *Server) deployApps(c echo.Context) error {
	var body struct {
		Apps []struct {
			App flexUint `json:"app"`
		} `json:"apps"`
		Revert bool `json:"revert"`
	}
	if err := bindJSON(c, &body); err != nil {
		return err
	}
	if len(body.Apps) == 0 {
		return invalidField("apps", "Required field.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range body.Apps {
		if _, err := s.app(uint64(item.App)); err != nil {
			return err
		}
	}
	for _, item := range body.Apps {
		a := s.store.apps[uint64(item.App)]
		a.deploy = "PROCESSING"
		a.pollsLeft = s.deployPolls
	}
	return c.JSON(http.StatusOK, struct{}{})
}

func (s *Server) deployStatus(c echo.Context) error {
	ids := queryList(c, "apps")
	if len(ids) == 0 {
		return invalidField("apps", "Required field.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	type status struct {
		App    string `json:"app"`
		Status string `json:"status"`
	}
	out := make([]status, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return invalidField("apps", "must be positive integers")
		}
		a, err := s.app(id)
		if err != nil {
			return err
		}
		if a.deploy == "PROCESSING" {
			if a.pollsLeft > 0 {
				a.pollsLeft--
			} else {
				a.deploy = "SUCCESS"
			}
		}
		out = append(out, status{App: raw, Status: a.deploy})
	}
	return c.JSON(http.StatusOK, map[string]any{"apps": out})
}
