package validation

import (
	"reflect"
	"strings"
)

const (
	trueValue = "true"

	// LocationQuery marks a parameter sent in the query string
	LocationQuery = "query"
	// LocationBody marks a parameter sent in the JSON body
	LocationBody = "body"
)

// Param describes one request parameter of a builder's parameter struct
type Param struct {
	Field       string            // Go field name
	Name        string            // wire name (from query or json tag)
	Location    string            // query or body
	Required    bool              // has a required constraint
	Constraints map[string]string // parsed validate tag
}

// Describe extracts parameter metadata from a struct type. Unexported fields
// and fields tagged json:"-" are skipped.
func Describe(t reflect.Type) []Param {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	params := make([]Param, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		p := describeField(field)
		if p.Name == "-" {
			continue
		}
		params = append(params, p)
	}
	return params
}

func describeField(field reflect.StructField) Param {
	p := Param{
		Field:       field.Name,
		Constraints: make(map[string]string),
	}
	p.Location, p.Name = parseParameterInfo(field)
	if validate := field.Tag.Get("validate"); validate != "" {
		parseValidateTag(validate, p.Constraints)
	}
	_, p.Required = p.Constraints["required"]
	return p
}

// parseParameterInfo determines the parameter location and wire name
func parseParameterInfo(field reflect.StructField) (location, name string) {
	if query := field.Tag.Get("query"); query != "" {
		return LocationQuery, strings.Split(query, ",")[0]
	}
	if json := field.Tag.Get("json"); json != "" {
		if n := strings.Split(json, ",")[0]; n != "" {
			return LocationBody, n
		}
	}
	return LocationBody, field.Name
}

// parseValidateTag parses a validate tag into constraint map
func parseValidateTag(validate string, constraints map[string]string) {
	for _, part := range strings.Split(validate, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if !strings.Contains(part, "=") {
			constraints[part] = trueValue
			continue
		}

		kv := strings.SplitN(part, "=", 2)
		constraints[strings.TrimSpace(kv[0])] = strings.Trim(strings.TrimSpace(kv[1]), `"`)
	}
}
