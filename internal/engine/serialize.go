package engine

import (
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/pkg/errors"

	"github.com/hanpama/gqlendpoint/internal/schema"
)

// serializeLeaf converts a resolved value into the JSON value of a scalar or
// enum. Pointers are followed; custom scalars pass through unchanged and are
// left to the JSON encoder.
func serializeLeaf(t *schema.Type, value any) (any, error) {
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil, nil
	}

	if t.Kind == schema.TypeKindEnum {
		return serializeEnum(t, rv)
	}
	switch t.Name {
	case "Int":
		return serializeInt(rv)
	case "Float":
		return serializeFloat(rv)
	case "String":
		return serializeString(rv)
	case "Boolean":
		if rv.Kind() == reflect.Bool {
			return rv.Bool(), nil
		}
		return nil, errors.Errorf("Boolean cannot represent a non boolean value: %v", rv.Interface())
	case "ID":
		switch rv.Kind() {
		case reflect.String:
			return rv.String(), nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return strconv.FormatInt(rv.Int(), 10), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return strconv.FormatUint(rv.Uint(), 10), nil
		}
		if s, ok := rv.Interface().(fmt.Stringer); ok {
			return s.String(), nil
		}
		return nil, errors.Errorf("ID cannot represent value: %v", rv.Interface())
	}
	return rv.Interface(), nil
}

func serializeInt(rv reflect.Value) (any, error) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, errors.Errorf("Int cannot represent non 32-bit signed integer value: %d", n)
		}
		return int(n), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n := rv.Uint()
		if n > math.MaxInt32 {
			return nil, errors.Errorf("Int cannot represent non 32-bit signed integer value: %d", n)
		}
		return int(n), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
			return nil, errors.Errorf("Int cannot represent non-integer value: %v", f)
		}
		return int(f), nil
	}
	return nil, errors.Errorf("Int cannot represent non-integer value: %v", rv.Interface())
}

func serializeFloat(rv reflect.Value) (any, error) {
	var f float64
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f = float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f = float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		f = rv.Float()
	default:
		return nil, errors.Errorf("Float cannot represent non numeric value: %v", rv.Interface())
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, errors.Errorf("Float cannot represent non numeric value: %v", f)
	}
	return f, nil
}

func serializeString(rv reflect.Value) (any, error) {
	if s, ok := rv.Interface().(fmt.Stringer); ok {
		return s.String(), nil
	}
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), nil
	}
	return nil, errors.Errorf("String cannot represent value: %v", rv.Interface())
}

// serializeEnum accepts string kinds and fmt.Stringers naming one of the
// type's values.
func serializeEnum(t *schema.Type, rv reflect.Value) (any, error) {
	var name string
	if s, ok := rv.Interface().(fmt.Stringer); ok {
		name = s.String()
	} else if rv.Kind() == reflect.String {
		name = rv.String()
	} else {
		return nil, errors.Errorf("Enum %q cannot represent value: %v", t.Name, rv.Interface())
	}
	for _, ev := range t.EnumValues {
		if ev.Name == name {
			return name, nil
		}
	}
	return nil, errors.Errorf("Enum %q cannot represent value: %q", t.Name, name)
}
