package typeinfo

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
)

var scannerInterface = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

// Member is the value of a tagged struct field.
type Member struct {
	Tag   string
	Kind  Kind
	Value any
}

// Members returns the values of the tagged fields of the struct value in
// declaration order. Fields tagged omitempty holding their zero value are
// left out.
func Members(value any) ([]Member, error) {
	info, err := GetTypeInfo(value)
	if err != nil {
		return nil, err
	}
	v := reflect.Indirect(reflect.ValueOf(value))
	members := make([]Member, 0, len(info.Fields))
	for _, f := range info.Fields {
		fv := v.Field(f.Index)
		if f.OmitEmpty && fv.IsZero() {
			continue
		}
		members = append(members, Member{Tag: f.Tag, Kind: f.Kind, Value: fv.Interface()})
	}
	return members, nil
}

// Assign sets the tagged fields of the struct pointed to by ptr from the
// values returned by lookup. Fields for which lookup reports no value are
// left untouched.
func Assign(ptr any, lookup func(tag string) (any, bool)) error {
	pv := reflect.ValueOf(ptr)
	if pv.Kind() != reflect.Pointer || pv.IsNil() {
		return fmt.Errorf("need pointer to struct, got %T", ptr)
	}
	info, err := GetTypeInfo(ptr)
	if err != nil {
		return err
	}
	v := pv.Elem()
	for _, f := range info.Fields {
		val, ok := lookup(f.Tag)
		if !ok {
			continue
		}
		if err := assignField(v.Field(f.Index), f, val); err != nil {
			return fmt.Errorf("cannot set field %q from column %q: %s", f.Name, f.Tag, err)
		}
	}
	return nil
}

func assignField(dest reflect.Value, f Field, val any) error {
	if val == nil {
		dest.Set(reflect.Zero(dest.Type()))
		return nil
	}
	if dest.Addr().Type().Implements(scannerInterface) {
		return dest.Addr().Interface().(sql.Scanner).Scan(val)
	}
	if f.Kind == Structured {
		return assignStructured(dest, val)
	}
	if b, ok := val.([]byte); ok {
		if dest.Kind() == reflect.Slice && dest.Type().Elem().Kind() == reflect.Uint8 {
			dest.SetBytes(append([]byte(nil), b...))
			return nil
		}
		val = string(b)
	}
	if dest.Kind() == reflect.Pointer {
		elem := reflect.New(dest.Type().Elem())
		if err := assignField(elem.Elem(), Field{Kind: KindOf(dest.Type().Elem())}, val); err != nil {
			return err
		}
		dest.Set(elem)
		return nil
	}
	sv := reflect.ValueOf(val)
	if sv.Type().AssignableTo(dest.Type()) {
		dest.Set(sv)
		return nil
	}
	if s, ok := val.(string); ok {
		return assignString(dest, s)
	}
	// Converting numbers into strings would produce runes.
	if dest.Kind() != reflect.String && sv.Type().ConvertibleTo(dest.Type()) {
		dest.Set(sv.Convert(dest.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", val, dest.Type())
}

// assignStructured decodes val into dest. Encoded values are decoded
// directly, already decoded values go through a JSON round trip.
func assignStructured(dest reflect.Value, val any) error {
	var data []byte
	switch v := val.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			return err
		}
	}
	return json.Unmarshal(data, dest.Addr().Interface())
}

// assignString parses s into the basic kinds drivers return as text.
func assignString(dest reflect.Value, s string) error {
	switch dest.Kind() {
	case reflect.String:
		dest.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		dest.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, dest.Type().Bits())
		if err != nil {
			return err
		}
		dest.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, dest.Type().Bits())
		if err != nil {
			return err
		}
		dest.SetUint(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(s, dest.Type().Bits())
		if err != nil {
			return err
		}
		dest.SetFloat(n)
	default:
		return fmt.Errorf("cannot assign string to %s", dest.Type())
	}
	return nil
}
