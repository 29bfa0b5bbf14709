package kintonetest

import (
	"encoding/json"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Field is a typed record field as stored and returned by the server.
type Field struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// NewField encodes v as the value of a field of type typ.
func NewField(typ string, v any) Field {
	raw, err := json.Marshal(v)
	if err != nil {
		panic("kintonetest: unencodable field value: " + err.Error())
	}
	return Field{Type: typ, Value: raw}
}

// Text creates a SINGLE_LINE_TEXT field.
func Text(s string) Field {
	return NewField("SINGLE_LINE_TEXT", s)
}

// Comment is a stored record comment.
type Comment struct {
	ID        uint64            `json:"id,string"`
	Text      string            `json:"text"`
	CreatedAt time.Time         `json:"createdAt"`
	Creator   user              `json:"creator"`
	Mentions  []json.RawMessage `json:"mentions"`
}

type user struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

var apiUser = user{Code: "api", Name: "API"}

type storedRecord struct {
	id        uint64
	revision  uint64
	fields    map[string]Field
	assignees []string
	status    string
}

func (r *storedRecord) encode(only []string) map[string]Field {
	out := make(map[string]Field, len(r.fields)+2)
	for code, f := range r.fields {
		if len(only) > 0 && !slices.Contains(only, code) {
			continue
		}
		out[code] = f
	}
	out["$id"] = NewField("__ID__", strconv.FormatUint(r.id, 10))
	out["$revision"] = NewField("__REVISION__", strconv.FormatUint(r.revision, 10))
	return out
}

func (r *storedRecord) scalar(code string) (string, bool) {
	f, ok := r.fields[code]
	if !ok {
		return "", false
	}
	var s string
	if json.Unmarshal(f.Value, &s) != nil {
		return "", false
	}
	return s, true
}

type appData struct {
	name        string
	revision    uint64
	nextRecord  uint64
	nextComment uint64
	records     map[uint64]*storedRecord
	comments    map[uint64][]Comment
	form        map[string]json.RawMessage
	deploy      string
	pollsLeft   int
}

func (a *appData) sortedIDs(desc bool) []uint64 {
	ids := make([]uint64, 0, len(a.records))
	for id := range a.records {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	if desc {
		slices.Reverse(ids)
	}
	return ids
}

func (a *appData) findByKey(field, value string) *storedRecord {
	for _, id := range a.sortedIDs(false) {
		if v, ok := a.records[id].scalar(field); ok && v == value {
			return a.records[id]
		}
	}
	return nil
}

type storedFile struct {
	name        string
	contentType string
	content     []byte
}

type threadKey struct {
	space, thread uint64
}

type store struct {
	nextApp           uint64
	nextThreadComment uint64
	apps              map[uint64]*appData
	files             map[string]storedFile
	threads           map[threadKey][]json.RawMessage
}

func newStore() *store {
	return &store{
		apps:    make(map[uint64]*appData),
		files:   make(map[string]storedFile),
		threads: make(map[threadKey][]json.RawMessage),
	}
}

func (st *store) createApp(name string) uint64 {
	st.nextApp++
	st.apps[st.nextApp] = &appData{
		name:     name,
		revision: 1,
		records:  make(map[uint64]*storedRecord),
		comments: make(map[uint64][]Comment),
		form:     make(map[string]json.RawMessage),
		deploy:   "SUCCESS",
	}
	return st.nextApp
}

func (st *store) addRecord(app *appData, fields map[string]Field) *storedRecord {
	app.nextRecord++
	rec := &storedRecord{id: app.nextRecord, revision: 1, fields: make(map[string]Field, len(fields))}
	for code, f := range fields {
		if isBuiltin(code, f.Type) {
			continue
		}
		rec.fields[code] = f
	}
	app.records[rec.id] = rec
	return rec
}

func isBuiltin(code, typ string) bool {
	if strings.HasPrefix(code, "$") {
		return true
	}
	switch typ {
	case "CATEGORY", "CREATED_TIME", "CREATOR", "MODIFIER", "RECORD_NUMBER",
		"STATUS", "STATUS_ASSIGNEE", "UPDATED_TIME", "__ID__", "__REVISION__":
		return true
	}
	return false
}

// CreateApp adds an empty app and returns its id.
func (s *Server) CreateApp(name string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.createApp(name)
}

// SeedRecords adds records to app and returns their ids.
func (s *Server) SeedRecords(app uint64, records ...map[string]Field) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.store.apps[app]
	if !ok {
		return nil
	}
	ids := make([]uint64, 0, len(records))
	for _, r := range records {
		ids = append(ids, s.store.addRecord(a, r).id)
	}
	return ids
}

// Record returns the stored fields and revision of a record.
func (s *Server) Record(app, id uint64) (map[string]Field, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.store.apps[app]
	if !ok {
		return nil, 0, false
	}
	r, ok := a.records[id]
	if !ok {
		return nil, 0, false
	}
	return r.encode(nil), r.revision, true
}

// RecordStatus returns the process management state of a record.
func (s *Server) RecordStatus(app, id uint64) (status string, assignees []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.store.apps[app]; ok {
		if r, ok := a.records[id]; ok {
			return r.status, slices.Clone(r.assignees)
		}
	}
	return "", nil
}

// Comments returns the comments of a record in posting order.
func (s *Server) Comments(app, record uint64) []Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.store.apps[app]; ok {
		return slices.Clone(a.comments[record])
	}
	return nil
}

// PutFile stores a file and returns its key for download.
func (s *Server) PutFile(name, contentType string, content []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.putFile(storedFile{name: name, contentType: contentType, content: content})
}

// File returns an uploaded file by key.
func (s *Server) File(key string) (name string, content []byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.store.files[key]
	return f.name, f.content, ok
}

// ThreadComments returns the raw comments posted to a space thread.
func (s *Server) ThreadComments(space, thread uint64) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.store.threads[threadKey{space, thread}])
}

// FormFields returns the raw field properties of an app.
func (s *Server) FormFields(app uint64) map[string]json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.store.apps[app]
	if !ok {
		return nil
	}
	out := make(map[string]json.RawMessage, len(a.form))
	for k, v := range a.form {
		out[k] = v
	}
	return out
}

// AppName returns the name an app was created with.
func (s *Server) AppName(app uint64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.store.apps[app]
	if !ok {
		return "", false
	}
	return a.name, true
}
