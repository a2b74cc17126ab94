package resolver

import (
	"reflect"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// DefaultField resolves name against parent the way types without a
// registered resolver are resolved: a map entry keyed by name, an exported
// struct field whose name or json tag matches, or an exported method without
// arguments named after the field. Anything else resolves to nil.
func DefaultField(parent any, name string) (any, error) {
	if parent == nil {
		return nil, nil
	}
	if m, ok := parent.(map[string]any); ok {
		return m[name], nil
	}

	rv := reflect.ValueOf(parent)
	if v, ok, err := callMethod(rv, name); ok {
		return v, err
	}
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, nil
		}
		v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, nil
		}
		return v.Interface(), nil
	case reflect.Struct:
		idx, ok := fieldIndex(rv.Type(), name)
		if !ok {
			return nil, nil
		}
		fv, err := rv.FieldByIndexErr(idx)
		if err != nil {
			// nil embedded pointer
			return nil, nil
		}
		return fv.Interface(), nil
	}
	return nil, nil
}

func callMethod(rv reflect.Value, name string) (any, bool, error) {
	m := rv.MethodByName(exportedName(name))
	if !m.IsValid() {
		return nil, false, nil
	}
	mt := m.Type()
	if mt.NumIn() != 0 || mt.NumOut() == 0 || mt.NumOut() > 2 {
		return nil, false, nil
	}
	if mt.NumOut() == 2 && !mt.Out(1).Implements(errorType) {
		return nil, false, nil
	}
	out := m.Call(nil)
	if len(out) == 2 && !out[1].IsNil() {
		return nil, true, out[1].Interface().(error)
	}
	return out[0].Interface(), true, nil
}

type fieldKey struct {
	t    reflect.Type
	name string
}

var fieldCache sync.Map // fieldKey -> []int (nil when absent)

func fieldIndex(t reflect.Type, name string) ([]int, bool) {
	key := fieldKey{t, name}
	if v, ok := fieldCache.Load(key); ok {
		idx := v.([]int)
		return idx, idx != nil
	}
	var found []int
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() {
			continue
		}
		tag := strings.Split(f.Tag.Get("json"), ",")[0]
		if tag == name {
			found = f.Index
			break
		}
		if found == nil && tag == "" && strings.EqualFold(f.Name, name) {
			found = f.Index
		}
	}
	fieldCache.Store(key, found)
	return found, found != nil
}

func exportedName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}
