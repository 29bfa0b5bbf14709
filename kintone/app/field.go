package app

import (
	"encoding/json"
)

// FieldProperty describes a form field. Type specific settings that have
// no dedicated member go in Extra and are sent as top level keys.
type FieldProperty struct {
	Type         string                 `json:"type" validate:"required"`
	Code         string                 `json:"code" validate:"required,field_code,max=128"`
	Label        string                 `json:"label" validate:"required"`
	NoLabel      bool                   `json:"noLabel,omitempty"`
	Required     bool                   `json:"required,omitempty"`
	Unique       bool                   `json:"unique,omitempty"`
	DefaultValue any                    `json:"defaultValue,omitempty"`
	Options      map[string]FieldOption `json:"options,omitempty" validate:"dive"`
	Extra        map[string]any         `json:"-"`
}

// FieldOption is one choice of a selection field.
type FieldOption struct {
	Label string `json:"label" validate:"required"`
	Index int    `json:"index,string"`
}

// MarshalJSON merges Extra into the encoded property. Named members win
// over Extra keys.
func (p FieldProperty) MarshalJSON() ([]byte, error) {
	type plain FieldProperty
	base, err := json.Marshal(plain(p))
	if err != nil {
		return nil, err
	}
	if len(p.Extra) == 0 {
		return base, nil
	}

	merged := make(map[string]json.RawMessage, len(p.Extra)+8)
	for k, v := range p.Extra {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = raw
	}
	var named map[string]json.RawMessage
	if err := json.Unmarshal(base, &named); err != nil {
		return nil, err
	}
	for k, v := range named {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// SingleLineText creates a SINGLE_LINE_TEXT property.
func SingleLineText(code, label string) FieldProperty {
	return FieldProperty{Type: "SINGLE_LINE_TEXT", Code: code, Label: label}
}

// Number creates a NUMBER property.
func Number(code, label string) FieldProperty {
	return FieldProperty{Type: "NUMBER", Code: code, Label: label}
}

// DropDown creates a DROP_DOWN property with options in display order.
func DropDown(code, label string, options ...string) FieldProperty {
	opts := make(map[string]FieldOption, len(options))
	for i, o := range options {
		opts[o] = FieldOption{Label: o, Index: i}
	}
	return FieldProperty{Type: "DROP_DOWN", Code: code, Label: label, Options: opts}
}
