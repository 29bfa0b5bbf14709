package record

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gaborage/go-kintone/kintone"
)

// FieldType is the kintone type of a field value.
type FieldType string

const (
	TypeCalc               FieldType = "CALC"
	TypeCategory           FieldType = "CATEGORY"
	TypeCheckBox           FieldType = "CHECK_BOX"
	TypeCreatedTime        FieldType = "CREATED_TIME"
	TypeCreator            FieldType = "CREATOR"
	TypeDate               FieldType = "DATE"
	TypeDateTime           FieldType = "DATETIME"
	TypeDropDown           FieldType = "DROP_DOWN"
	TypeFile               FieldType = "FILE"
	TypeGroupSelect        FieldType = "GROUP_SELECT"
	TypeLink               FieldType = "LINK"
	TypeModifier           FieldType = "MODIFIER"
	TypeMultiLineText      FieldType = "MULTI_LINE_TEXT"
	TypeMultiSelect        FieldType = "MULTI_SELECT"
	TypeNumber             FieldType = "NUMBER"
	TypeOrganizationSelect FieldType = "ORGANIZATION_SELECT"
	TypeRadioButton        FieldType = "RADIO_BUTTON"
	TypeRecordNumber       FieldType = "RECORD_NUMBER"
	TypeRichText           FieldType = "RICH_TEXT"
	TypeSingleLineText     FieldType = "SINGLE_LINE_TEXT"
	TypeStatus             FieldType = "STATUS"
	TypeStatusAssignee     FieldType = "STATUS_ASSIGNEE"
	TypeSubtable           FieldType = "SUBTABLE"
	TypeTime               FieldType = "TIME"
	TypeUpdatedTime        FieldType = "UPDATED_TIME"
	TypeUserSelect         FieldType = "USER_SELECT"
	TypeID                 FieldType = "__ID__"
	TypeRevision           FieldType = "__REVISION__"
)

const (
	idField       = "$id"
	revisionField = "$revision"
	dateLayout    = "2006-01-02"
)

// IsBuiltin reports whether kintone manages values of this type. Builtin
// fields are rejected by the write endpoints.
func (t FieldType) IsBuiltin() bool {
	switch t {
	case TypeCategory, TypeCreatedTime, TypeCreator, TypeModifier, TypeRecordNumber,
		TypeStatus, TypeStatusAssignee, TypeUpdatedTime, TypeID, TypeRevision:
		return true
	}
	return false
}

// FieldValue is one typed field of a record. Value holds the raw JSON so
// every field type round-trips unchanged.
type FieldValue struct {
	Type  FieldType       `json:"type,omitempty"`
	Value json.RawMessage `json:"value"`
}

// Record maps field codes to values.
type Record map[string]FieldValue

// TableRow is one row of a subtable.
type TableRow struct {
	ID    string `json:"id,omitempty"`
	Value Record `json:"value"`
}

// FileBody is a file attached to a FILE field.
type FileBody struct {
	FileKey     string `json:"fileKey"`
	ContentType string `json:"contentType,omitempty"`
	Name        string `json:"name,omitempty"`
	Size        string `json:"size,omitempty"`
}

func newValue(t FieldType, v any) FieldValue {
	// Marshalling strings, string slices and rows cannot fail.
	raw, _ := json.Marshal(v)
	return FieldValue{Type: t, Value: raw}
}

// Text creates a SINGLE_LINE_TEXT value.
func Text(s string) FieldValue { return newValue(TypeSingleLineText, s) }

// MultiLineText creates a MULTI_LINE_TEXT value.
func MultiLineText(s string) FieldValue { return newValue(TypeMultiLineText, s) }

// Number creates a NUMBER value. kintone transfers numbers as strings.
func Number(n float64) FieldValue {
	return newValue(TypeNumber, strconv.FormatFloat(n, 'f', -1, 64))
}

// CheckBox creates a CHECK_BOX value.
func CheckBox(options ...string) FieldValue {
	if options == nil {
		options = []string{}
	}
	return newValue(TypeCheckBox, options)
}

// DropDown creates a DROP_DOWN value. An empty option clears the field.
func DropDown(option string) FieldValue {
	if option == "" {
		return FieldValue{Type: TypeDropDown, Value: json.RawMessage("null")}
	}
	return newValue(TypeDropDown, option)
}

// Date creates a DATE value. The zero time clears the field.
func Date(t time.Time) FieldValue {
	if t.IsZero() {
		return FieldValue{Type: TypeDate, Value: json.RawMessage("null")}
	}
	return newValue(TypeDate, t.Format(dateLayout))
}

// Files creates a FILE value from uploaded file keys.
func Files(fileKeys ...string) FieldValue {
	bodies := make([]FileBody, 0, len(fileKeys))
	for _, k := range fileKeys {
		bodies = append(bodies, FileBody{FileKey: k})
	}
	return newValue(TypeFile, bodies)
}

// Subtable creates a SUBTABLE value.
func Subtable(rows ...TableRow) FieldValue {
	if rows == nil {
		rows = []TableRow{}
	}
	return newValue(TypeSubtable, rows)
}

// Decode unmarshals the raw value into v.
func (fv FieldValue) Decode(v any) error {
	if err := json.Unmarshal(fv.Value, v); err != nil {
		return fmt.Errorf("decode %s value: %w", fv.Type, err)
	}
	return nil
}

// Scalar returns a single string value. Null values return "".
func (fv FieldValue) Scalar() (string, error) {
	var s *string
	if err := fv.Decode(&s); err != nil {
		return "", err
	}
	if s == nil {
		return "", nil
	}
	return *s, nil
}

// Strings returns a list value such as CHECK_BOX or MULTI_SELECT.
func (fv FieldValue) Strings() ([]string, error) {
	var s []string
	if err := fv.Decode(&s); err != nil {
		return nil, err
	}
	return s, nil
}

// Float returns a NUMBER or CALC value.
func (fv FieldValue) Float() (float64, error) {
	s, err := fv.Scalar()
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(s, 64)
}

// Users returns a USER_SELECT, CREATOR or MODIFIER value.
func (fv FieldValue) Users() ([]kintone.User, error) {
	if fv.Type == TypeCreator || fv.Type == TypeModifier {
		var u kintone.User
		if err := fv.Decode(&u); err != nil {
			return nil, err
		}
		return []kintone.User{u}, nil
	}
	var users []kintone.User
	if err := fv.Decode(&users); err != nil {
		return nil, err
	}
	return users, nil
}

// Rows returns a SUBTABLE value.
func (fv FieldValue) Rows() ([]TableRow, error) {
	var rows []TableRow
	if err := fv.Decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ID returns the $id of a fetched record.
func (r Record) ID() (uint64, bool) {
	return r.uintField(idField)
}

// Revision returns the $revision of a fetched record.
func (r Record) Revision() (uint64, bool) {
	return r.uintField(revisionField)
}

func (r Record) uintField(code string) (uint64, bool) {
	fv, ok := r[code]
	if !ok {
		return 0, false
	}
	s, err := fv.Scalar()
	if err != nil {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// WithoutBuiltins returns a copy without kintone managed fields, suitable
// for AddRecord or UpdateRecord.
func (r Record) WithoutBuiltins() Record {
	out := make(Record, len(r))
	for code, fv := range r {
		if fv.Type.IsBuiltin() || code == idField || code == revisionField {
			continue
		}
		out[code] = fv
	}
	return out
}

// Comment is a comment to post on a record.
type Comment struct {
	Text     string           `json:"text" validate:"required"`
	Mentions []kintone.Entity `json:"mentions,omitempty" validate:"dive"`
}

// PostedComment is a comment returned by GetComments.
type PostedComment struct {
	ID        uint64           `json:"id,string"`
	Text      string           `json:"text"`
	CreatedAt time.Time        `json:"createdAt"`
	Creator   kintone.User     `json:"creator"`
	Mentions  []kintone.Entity `json:"mentions"`
}
