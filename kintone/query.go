package kintone

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/gaborage/go-kintone/middleware"
	"github.com/gaborage/go-kintone/validation"
)

// QueryOptions encodes the query tagged fields of params in declaration
// order. Zero values are omitted. Slices are sent as key[0], key[1], ...
func QueryOptions(params any) []middleware.RequestOption {
	v := reflect.Indirect(reflect.ValueOf(params))
	if v.Kind() != reflect.Struct {
		return nil
	}

	var opts []middleware.RequestOption
	for _, p := range validation.Describe(v.Type()) {
		if p.Location != validation.LocationQuery {
			continue
		}
		fv := v.FieldByName(p.Field)
		if fv.IsZero() {
			continue
		}
		if fv.Kind() == reflect.Slice {
			for i := 0; i < fv.Len(); i++ {
				opts = append(opts, middleware.WithQuery(fmt.Sprintf("%s[%d]", p.Name, i), formatValue(fv.Index(i))))
			}
			continue
		}
		opts = append(opts, middleware.WithQuery(p.Name, formatValue(fv)))
	}
	return opts
}

func formatValue(v reflect.Value) string {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10)
	default:
		return fmt.Sprint(v.Interface())
	}
}
