package model

import (
	"reflect"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

// normalizeValue returns v with every time.Time it holds in UTC at millisecond
// precision, the form a BSON datetime gives back. Values holding no such time
// are returned unchanged; otherwise the containers on the path are copied so
// the caller's value is never modified.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		return normalizeTime(x)
	case []any:
		out := make([]any, len(x))
		for i, elem := range x {
			out[i] = normalizeValue(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, elem := range x {
			out[k] = normalizeValue(elem)
		}
		return out
	}

	if out, changed := normalizeReflect(reflect.ValueOf(v)); changed {
		return out.Interface()
	}
	return v
}

func normalizeReflect(v reflect.Value) (reflect.Value, bool) {
	switch v.Kind() {
	case reflect.Struct:
		if v.Type() == timeType {
			t := v.Interface().(time.Time)
			n := normalizeTime(t)
			return reflect.ValueOf(n), n != t
		}
		var out reflect.Value
		for i := 0; i < v.NumField(); i++ {
			if !v.Type().Field(i).IsExported() {
				continue
			}
			f, changed := normalizeReflect(v.Field(i))
			if !changed {
				continue
			}
			if !out.IsValid() {
				out = reflect.New(v.Type()).Elem()
				out.Set(v)
			}
			out.Field(i).Set(f)
		}
		return out, out.IsValid()

	case reflect.Ptr:
		if v.IsNil() {
			return v, false
		}
		elem, changed := normalizeReflect(v.Elem())
		if !changed {
			return v, false
		}
		p := reflect.New(v.Type().Elem())
		p.Elem().Set(elem)
		return p, true

	case reflect.Interface:
		if v.IsNil() {
			return v, false
		}
		return normalizeReflect(v.Elem())

	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return v, false
		}
		var out reflect.Value
		for i := 0; i < v.Len(); i++ {
			elem, changed := normalizeReflect(v.Index(i))
			if !changed {
				continue
			}
			if !out.IsValid() {
				if v.Kind() == reflect.Slice {
					out = reflect.MakeSlice(v.Type(), v.Len(), v.Len())
					reflect.Copy(out, v)
				} else {
					out = reflect.New(v.Type()).Elem()
					out.Set(v)
				}
			}
			out.Index(i).Set(elem)
		}
		return out, out.IsValid()

	case reflect.Map:
		if v.IsNil() {
			return v, false
		}
		changedKeys := make(map[int]reflect.Value)
		keys := v.MapKeys()
		for i, k := range keys {
			if elem, changed := normalizeReflect(v.MapIndex(k)); changed {
				changedKeys[i] = elem
			}
		}
		if len(changedKeys) == 0 {
			return v, false
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		for i, k := range keys {
			if elem, ok := changedKeys[i]; ok {
				out.SetMapIndex(k, elem)
			} else {
				out.SetMapIndex(k, v.MapIndex(k))
			}
		}
		return out, true
	}
	return v, false
}
