package variant

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// ErrMalformedPayload is returned when a document is not valid JSON.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrTypeMismatch is returned when a typed accessor does not match the value kind.
	ErrTypeMismatch = errors.New("type mismatch")
)

// Kind identifies the shape of a Value.
type Kind uint8

const (
	// KindNull is a JSON null or a missing key.
	KindNull Kind = iota
	// KindDictionary is a JSON object.
	KindDictionary
	// KindArray is a JSON array.
	KindArray
	// KindString is any JSON scalar other than null.
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindDictionary:
		return "dictionary"
	case KindArray:
		return "array"
	case KindString:
		return "string"
	default:
		return "null"
	}
}

// dateLayouts are tried in order by the DateTime view.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Value is one node of a parsed document. A Value is immutable after construction and
// safe for concurrent readers.
type Value struct {
	kind Kind
	dict map[string]*Value
	arr  []*Value
	str  string

	intOnce sync.Once
	intVal  int64
	intOK   bool

	boolOnce sync.Once
	boolVal  bool
	boolOK   bool

	timeOnce sync.Once
	timeVal  time.Time
	timeOK   bool
}

var null = &Value{kind: KindNull}

// Null returns the shared null value.
func Null() *Value {
	return null
}

// Parse decodes a JSON document.
func Parse(s string) (*Value, error) {
	return ParseBytes([]byte(s))
}

// ParseBytes decodes a JSON document held in b.
func ParseBytes(b []byte) (*Value, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after document", ErrMalformedPayload)
	}

	return fromRaw(raw), nil
}

// FromMap builds a dictionary of scalars.
func FromMap(m map[string]string) *Value {
	dict := make(map[string]*Value, len(m))
	for k, v := range m {
		dict[k] = Scalar(v)
	}
	return &Value{kind: KindDictionary, dict: dict}
}

// Scalar wraps s as a scalar value.
func Scalar(s string) *Value {
	return &Value{kind: KindString, str: s}
}

func fromRaw(raw any) *Value {
	switch v := raw.(type) {
	case nil:
		return null
	case map[string]any:
		dict := make(map[string]*Value, len(v))
		for k, item := range v {
			dict[k] = fromRaw(item)
		}
		return &Value{kind: KindDictionary, dict: dict}
	case []any:
		arr := make([]*Value, 0, len(v))
		for _, item := range v {
			arr = append(arr, fromRaw(item))
		}
		return &Value{kind: KindArray, arr: arr}
	case json.Number:
		return Scalar(v.String())
	case bool:
		return Scalar(strconv.FormatBool(v))
	case string:
		return Scalar(v)
	default:
		return Scalar(fmt.Sprint(v))
	}
}

// Kind reports the value shape.
func (v *Value) Kind() Kind {
	if v == nil {
		return KindNull
	}
	return v.kind
}

func (v *Value) IsNull() bool       { return v.Kind() == KindNull }
func (v *Value) IsDictionary() bool { return v.Kind() == KindDictionary }
func (v *Value) IsArray() bool      { return v.Kind() == KindArray }
func (v *Value) IsString() bool     { return v.Kind() == KindString }

// IsInteger reports whether the scalar parses as a base-10 int64.
func (v *Value) IsInteger() bool {
	if !v.IsString() {
		return false
	}
	v.intOnce.Do(func() {
		n, err := strconv.ParseInt(strings.TrimSpace(v.str), 10, 64)
		v.intVal, v.intOK = n, err == nil
	})
	return v.intOK
}

// IsBoolean reports whether the scalar is "true" or "false" in any case. One layer of
// matching single or double quotes is removed first, so "'true'" is a boolean too.
func (v *Value) IsBoolean() bool {
	if !v.IsString() {
		return false
	}
	v.boolOnce.Do(func() {
		s := unquote(strings.TrimSpace(v.str))
		switch {
		case strings.EqualFold(s, "true"):
			v.boolVal, v.boolOK = true, true
		case strings.EqualFold(s, "false"):
			v.boolVal, v.boolOK = false, true
		}
	})
	return v.boolOK
}

// IsDateTime reports whether the scalar parses as a timestamp.
func (v *Value) IsDateTime() bool {
	if !v.IsString() {
		return false
	}
	v.timeOnce.Do(func() {
		s := strings.TrimSpace(v.str)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				v.timeVal, v.timeOK = t.UTC(), true
				return
			}
		}
	})
	return v.timeOK
}

// Dictionary returns the object members, or nil when v is not a dictionary.
func (v *Value) Dictionary() map[string]*Value {
	if !v.IsDictionary() {
		return nil
	}
	return v.dict
}

// Array returns the array items, or nil when v is not an array.
func (v *Value) Array() []*Value {
	if !v.IsArray() {
		return nil
	}
	return v.arr
}

// String returns the scalar text, or "" for non-scalars.
func (v *Value) String() string {
	if !v.IsString() {
		return ""
	}
	return v.str
}

// Integer returns the int64 view of the scalar.
func (v *Value) Integer() (int64, error) {
	if !v.IsInteger() {
		return 0, fmt.Errorf("%w: %s is not an integer", ErrTypeMismatch, v.Kind())
	}
	return v.intVal, nil
}

// Boolean returns the boolean view of the scalar.
func (v *Value) Boolean() (bool, error) {
	if !v.IsBoolean() {
		return false, fmt.Errorf("%w: %s is not a boolean", ErrTypeMismatch, v.Kind())
	}
	return v.boolVal, nil
}

// DateTime returns the UTC timestamp view of the scalar.
func (v *Value) DateTime() (time.Time, error) {
	if !v.IsDateTime() {
		return time.Time{}, fmt.Errorf("%w: %s is not a date", ErrTypeMismatch, v.Kind())
	}
	return v.timeVal, nil
}

// Has reports whether a dictionary carries key.
func (v *Value) Has(key string) bool {
	if !v.IsDictionary() {
		return false
	}
	_, ok := v.dict[key]
	return ok
}

// Get returns the member stored under key. Missing keys and non-dictionaries yield the
// null value, never nil.
func (v *Value) Get(key string) *Value {
	if !v.IsDictionary() {
		return null
	}
	if item, ok := v.dict[key]; ok && item != nil {
		return item
	}
	return null
}

// Index returns the i-th array item or the null value.
func (v *Value) Index(i int) *Value {
	if !v.IsArray() || i < 0 || i >= len(v.arr) {
		return null
	}
	return v.arr[i]
}

// Keys returns the dictionary keys in ordinal order.
func (v *Value) Keys() []string {
	if !v.IsDictionary() {
		return nil
	}
	keys := make([]string, 0, len(v.dict))
	for k := range v.dict {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StringMap flattens the scalar members of a dictionary. Nested values are skipped and
// null members map to "".
func (v *Value) StringMap() map[string]string {
	if !v.IsDictionary() {
		return nil
	}
	out := make(map[string]string, len(v.dict))
	for k, item := range v.dict {
		switch item.Kind() {
		case KindString:
			out[k] = item.str
		case KindNull:
			out[k] = ""
		}
	}
	return out
}

// MarshalJSON renders v back to JSON. Scalars are written as strings because the
// parsed document no longer records whether they were numbers or booleans.
func (v *Value) MarshalJSON() ([]byte, error) {
	switch v.Kind() {
	case KindDictionary:
		return json.Marshal(v.dict)
	case KindArray:
		return json.Marshal(v.arr)
	case KindString:
		return json.Marshal(v.str)
	default:
		return []byte("null"), nil
	}
}

func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '"' || first == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
