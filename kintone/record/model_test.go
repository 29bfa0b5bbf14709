package record

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-kintone/kintone"
)

func TestFieldConstructors(t *testing.T) {
	tests := []struct {
		name  string
		value FieldValue
		typ   FieldType
		json  string
	}{
		{"text", Text("hello"), TypeSingleLineText, `"hello"`},
		{"multi line", MultiLineText("a\nb"), TypeMultiLineText, `"a\nb"`},
		{"number", Number(12.5), TypeNumber, `"12.5"`},
		{"integer", Number(3), TypeNumber, `"3"`},
		{"check box", CheckBox("a", "b"), TypeCheckBox, `["a","b"]`},
		{"empty check box", CheckBox(), TypeCheckBox, `[]`},
		{"drop down", DropDown("x"), TypeDropDown, `"x"`},
		{"cleared drop down", DropDown(""), TypeDropDown, `null`},
		{"date", Date(time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC)), TypeDate, `"2024-03-09"`},
		{"cleared date", Date(time.Time{}), TypeDate, `null`},
		{"files", Files("k1"), TypeFile, `[{"fileKey":"k1"}]`},
		{"empty subtable", Subtable(), TypeSubtable, `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.value.Type)
			assert.JSONEq(t, tt.json, string(tt.value.Value))
		})
	}
}

func TestFieldValueAccessors(t *testing.T) {
	n, err := Number(1.25).Float()
	require.NoError(t, err)
	assert.InDelta(t, 1.25, n, 0)

	s, err := DropDown("").Scalar()
	require.NoError(t, err)
	assert.Empty(t, s)

	opts, err := CheckBox("a").Strings()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, opts)

	_, err = CheckBox("a").Scalar()
	assert.Error(t, err)

	rows, err := Subtable(TableRow{Value: Record{"qty": Number(2)}}).Rows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	qty, err := rows[0].Value["qty"].Float()
	require.NoError(t, err)
	assert.InDelta(t, 2.0, qty, 0)
}

func TestFieldValueUsers(t *testing.T) {
	creator := FieldValue{Type: TypeCreator, Value: json.RawMessage(`{"code":"alice","name":"Alice"}`)}
	users, err := creator.Users()
	require.NoError(t, err)
	assert.Equal(t, []kintone.User{{Code: "alice", Name: "Alice"}}, users)

	selected := FieldValue{Type: TypeUserSelect, Value: json.RawMessage(`[{"code":"a","name":"A"},{"code":"b","name":"B"}]`)}
	users, err = selected.Users()
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestRecordDecodesWireFormat(t *testing.T) {
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(`{
		"$id": {"type": "__ID__", "value": "12"},
		"$revision": {"type": "__REVISION__", "value": "4"},
		"Created_by": {"type": "CREATOR", "value": {"code": "alice", "name": "Alice"}},
		"title": {"type": "SINGLE_LINE_TEXT", "value": "hello"}
	}`), &rec))

	id, ok := rec.ID()
	assert.True(t, ok)
	assert.Equal(t, uint64(12), id)

	rev, ok := rec.Revision()
	assert.True(t, ok)
	assert.Equal(t, uint64(4), rev)

	writable := rec.WithoutBuiltins()
	assert.Equal(t, []string{"title"}, keys(writable))
	assert.Len(t, rec, 4)
}

func TestRecordIDMissing(t *testing.T) {
	_, ok := Record{}.ID()
	assert.False(t, ok)

	_, ok = Record{"$id": Text("abc")}.ID()
	assert.False(t, ok)
}

func TestFieldTypeIsBuiltin(t *testing.T) {
	assert.True(t, TypeStatus.IsBuiltin())
	assert.True(t, TypeRecordNumber.IsBuiltin())
	assert.False(t, TypeSingleLineText.IsBuiltin())
	assert.False(t, TypeSubtable.IsBuiltin())
}

func TestPageQuery(t *testing.T) {
	tests := []struct {
		condition string
		want      string
	}{
		{"", "order by $id asc limit 500 offset 0"},
		{`status = "open"`, `status = "open" order by $id asc limit 500 offset 0`},
		{`status = "open" order by updated desc`, `status = "open" order by updated desc limit 500 offset 0`},
		{"  ORDER BY $id desc ", "ORDER BY $id desc limit 500 offset 0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, pageQuery(tt.condition, 500, 0))
	}
	assert.Equal(t, "order by $id asc limit 100 offset 300", pageQuery("", 100, 300))
}

func keys(r Record) []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	return out
}
