package typeinfo

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"
)

var cacheMutex sync.RWMutex
var cache = make(map[reflect.Type]*Info)

// GetTypeInfo will return the Info of a given struct type,
// generating and caching as required.
func GetTypeInfo(value any) (*Info, error) {
	if value == (any)(nil) {
		return &Info{}, fmt.Errorf("cannot reflect nil value")
	}

	v := reflect.ValueOf(value)
	v = reflect.Indirect(v)
	if !v.IsValid() {
		return &Info{}, fmt.Errorf("cannot reflect nil value")
	}

	cacheMutex.RLock()
	info, found := cache[v.Type()]
	cacheMutex.RUnlock()
	if found {
		return info, nil
	}

	info, err := generate(v.Type())
	if err != nil {
		return &Info{}, err
	}

	cacheMutex.Lock()
	cache[v.Type()] = info
	cacheMutex.Unlock()

	return info, nil
}

// generate produces and returns reflection information for the input
// reflect.Type that is required to move it in and out of a record body.
func generate(typ reflect.Type) (*Info, error) {
	// Reflection information is only generated for structs.
	if typ.Kind() != reflect.Struct {
		return &Info{}, fmt.Errorf("can only reflect struct type")
	}

	info := Info{
		TagToField: make(map[string]Field),
		Type:       typ,
	}

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		// Fields without a "db" tag are outside of our remit.
		tag := field.Tag.Get("db")
		if tag == "" || !field.IsExported() {
			continue
		}
		tag, omitEmpty, err := parseTag(tag)
		if err != nil {
			return &Info{}, fmt.Errorf("field %q: %s", field.Name, err)
		}
		if _, ok := info.TagToField[tag]; ok {
			return &Info{}, fmt.Errorf("duplicate tag %q", tag)
		}
		f := Field{
			Name:      field.Name,
			Tag:       tag,
			Index:     i,
			OmitEmpty: omitEmpty,
			Type:      field.Type,
			Kind:      KindOf(field.Type),
		}
		info.Fields = append(info.Fields, f)
		info.TagToField[tag] = f
	}

	return &info, nil
}

var valuerInterface = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
var timeType = reflect.TypeOf(time.Time{})

// KindOf returns the storage kind of values of type t. Structs, maps, slices
// and arrays are structured, unless the driver knows how to store them. Byte
// slices are binary.
func KindOf(t reflect.Type) Kind {
	if t.Implements(valuerInterface) || reflect.PointerTo(t).Implements(valuerInterface) {
		return Scalar
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct:
		if t == timeType {
			return Scalar
		}
		return Structured
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return Bytes
		}
		return Structured
	case reflect.Map, reflect.Array, reflect.Interface:
		return Structured
	}
	return Scalar
}

// This expression should be aligned with the names allowed in statements.
var validColNameRx = regexp.MustCompile(`^([a-zA-Z_])+([a-zA-Z_0-9])*$`)

// parseTag parses the input tag string and returns its
// name and whether it contains the "omitempty" option.
func parseTag(tag string) (string, bool, error) {
	options := strings.Split(tag, ",")

	var omitEmpty bool
	// Refuse to parse if there are more than 2 items.
	if len(options) > 2 {
		return "", false, fmt.Errorf("too many options in 'db' tag")
	}
	if len(options) == 2 {
		if strings.ToLower(options[1]) != "omitempty" {
			return "", false, fmt.Errorf("unexpected tag value %q", options[1])
		}
		omitEmpty = true
	}

	name := options[0]
	if len(name) == 0 {
		return "", false, fmt.Errorf("empty db tag")
	}

	if !validColNameRx.MatchString(name) {
		return "", false, fmt.Errorf("invalid column name in 'db' tag")
	}

	return name, omitEmpty, nil
}
