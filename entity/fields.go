package entity

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Object is a decoded JSON object. Historical records spell the same field in
// several ways; lookups take an alias list and use the first usable key.
type Object map[string]json.RawMessage

// DecodeObject parses raw as a JSON object. It fails for arrays, scalars and null.
func DecodeObject(raw []byte) (Object, bool) {
	if IsNull(raw) {
		return nil, false
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var obj Object
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// IsNull reports whether raw is empty or the JSON literal null.
func IsNull(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Truthy follows the loose truthiness the legacy stores were written with:
// null, false, 0 and "" are absent values.
func Truthy(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	switch string(trimmed) {
	case "", "null", "false", "0", `""`:
		return false
	}
	if f, err := strconv.ParseFloat(string(trimmed), 64); err == nil {
		return f != 0
	}
	return true
}

// Present returns the first alias whose value is not null.
func (o Object) Present(aliases ...string) (json.RawMessage, bool) {
	for _, a := range aliases {
		if v, ok := o[a]; ok && !IsNull(v) {
			return v, true
		}
	}
	return nil, false
}

// String returns the first alias holding a non-empty string or number,
// trimmed. Numbers are rendered in their JSON form.
func (o Object) String(aliases ...string) string {
	for _, a := range aliases {
		v, ok := o[a]
		if !ok {
			continue
		}
		if s := ScalarString(v); s != "" {
			return s
		}
	}
	return ""
}

// Int64 returns the first alias holding a number or a numeric string.
func (o Object) Int64(aliases ...string) (int64, bool) {
	v, ok := o.Present(aliases...)
	if !ok {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return int64(f), true
		}
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

// Bool returns the first alias holding a boolean.
func (o Object) Bool(aliases ...string) (bool, bool) {
	v, ok := o.Present(aliases...)
	if !ok {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(v, &b); err != nil {
		return Truthy(v), true
	}
	return b, true
}

// Has reports whether key exists, even with a null value.
func (o Object) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// Put marshals v under key.
func (o Object) Put(key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	o[key] = b
}

// Clone returns a shallow copy.
func (o Object) Clone() Object {
	out := make(Object, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// ScalarString renders a JSON string or number as trimmed text.
// Anything else yields "".
func ScalarString(raw []byte) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return ""
		}
		if n.String() == "0" {
			return ""
		}
		return n.String()
	}
	return ""
}

// StringList decodes a JSON array into trimmed non-empty strings. Numbers
// are kept in their JSON form; other element types are dropped. ok is false
// when raw is not an array.
func StringList(raw []byte) (list []string, ok bool) {
	var items []json.RawMessage
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, false
	}
	list = make([]string, 0, len(items))
	for _, item := range items {
		if s := ScalarString(item); s != "" {
			list = append(list, s)
		}
	}
	return list, true
}
