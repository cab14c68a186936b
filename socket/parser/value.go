package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"reflect"
	"sort"
	"strconv"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindArray
	KindObject
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindBinary:
		return "binary"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is one element of a packet payload: text, number, boolean, null,
// array, object, or an opaque binary blob. Numbers keep their literal text so
// integers of any size survive a round trip.
//
// The zero Value is null.
type Value struct {
	kind Kind
	str  string
	b    bool
	arr  []Value
	obj  map[string]Value
	bin  []byte
}

func Null() Value { return Value{} }

func String(s string) Value { return Value{kind: KindString, str: s} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func Int(n int64) Value { return Value{kind: KindNumber, str: strconv.FormatInt(n, 10)} }

func Uint(n uint64) Value { return Value{kind: KindNumber, str: strconv.FormatUint(n, 10)} }

// Float returns a number value. NaN and infinities have no JSON form and are
// stored as null.
func Float(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null()
	}
	return Value{kind: KindNumber, str: strconv.FormatFloat(f, 'g', -1, 64)}
}

// Number returns a number value from its JSON literal.
func Number(n json.Number) (Value, error) {
	if _, err := strconv.ParseFloat(string(n), 64); err != nil {
		return Value{}, fmt.Errorf("parser: invalid number %q", string(n))
	}
	return Value{kind: KindNumber, str: string(n)}, nil
}

func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, arr: items}
}

func Object(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: KindObject, obj: fields}
}

func Binary(data []byte) Value {
	if data == nil {
		data = []byte{}
	}
	return Value{kind: KindBinary, bin: data}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

func (v Value) AsNumber() (json.Number, bool) {
	return json.Number(v.str), v.kind == KindNumber
}

func (v Value) AsInt() (int64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	n, err := strconv.ParseInt(v.str, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(v.str, 64)
		if ferr != nil || f != math.Trunc(f) {
			return 0, false
		}
		return int64(f), true
	}
	return n, true
}

func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.str, 64)
	return f, err == nil
}

func (v Value) AsArray() ([]Value, bool) {
	return v.arr, v.kind == KindArray
}

func (v Value) AsObject() (map[string]Value, bool) {
	return v.obj, v.kind == KindObject
}

func (v Value) AsBinary() ([]byte, bool) {
	return v.bin, v.kind == KindBinary
}

// Get returns the named field of an object value, or null.
func (v Value) Get(key string) Value {
	if v.kind != KindObject {
		return Null()
	}
	return v.obj[key]
}

// Index returns the i-th element of an array value, or null.
func (v Value) Index(i int) Value {
	if v.kind != KindArray || i < 0 || i >= len(v.arr) {
		return Null()
	}
	return v.arr[i]
}

// HasBinary reports whether v or anything nested in it is binary.
func (v Value) HasBinary() bool {
	switch v.kind {
	case KindBinary:
		return true
	case KindArray:
		for _, item := range v.arr {
			if item.HasBinary() {
				return true
			}
		}
	case KindObject:
		for _, item := range v.obj {
			if item.HasBinary() {
				return true
			}
		}
	}
	return false
}

// CountBinary returns the number of binary blobs nested in values.
func CountBinary(values []Value) int {
	n := 0
	for _, v := range values {
		n += v.countBinary()
	}
	return n
}

func (v Value) countBinary() int {
	switch v.kind {
	case KindBinary:
		return 1
	case KindArray:
		return CountBinary(v.arr)
	case KindObject:
		n := 0
		for _, item := range v.obj {
			n += item.countBinary()
		}
		return n
	}
	return 0
}

// Interface converts v into plain Go values: nil, string, json.Number, bool,
// []any, map[string]any and []byte.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return json.Number(v.str)
	case KindBool:
		return v.b
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, item := range v.obj {
			out[k] = item.Interface()
		}
		return out
	case KindBinary:
		return v.bin
	}
	return nil
}

// Decode stores v into the value pointed to by out using encoding/json
// semantics. Binary blobs decode into []byte targets.
func (v Value) Decode(out any) error {
	raw, err := json.Marshal(v.Interface())
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// MarshalJSON implements json.Marshaler. Binary blobs are written as base64
// strings; use Encode to produce wire frames with attachments.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := parseJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v Value) String() string {
	raw, err := v.MarshalJSON()
	if err != nil {
		return "<" + v.kind.String() + ">"
	}
	return string(raw)
}

// writeJSON appends the JSON form of v. When buffers is non-nil, binary blobs
// are moved into it and replaced by placeholders.
func (v Value) writeJSON(buf *bytes.Buffer, buffers *[][]byte) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindString:
		raw, err := json.Marshal(v.str)
		if err != nil {
			return err
		}
		buf.Write(raw)
	case KindNumber:
		buf.WriteString(v.str)
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf, buffers); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			raw, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(raw)
			buf.WriteByte(':')
			if err := v.obj[k].writeJSON(buf, buffers); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case KindBinary:
		if buffers == nil {
			raw, err := json.Marshal(v.bin)
			if err != nil {
				return err
			}
			buf.Write(raw)
			return nil
		}
		fmt.Fprintf(buf, `{"_placeholder":true,"num":%d}`, len(*buffers))
		*buffers = append(*buffers, v.bin)
	default:
		return fmt.Errorf("parser: unknown value kind %d", v.kind)
	}
	return nil
}

// ValueOf converts a Go value into a Value. []byte becomes binary; maps must
// be keyed by strings; anything else is passed through encoding/json.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case *Value:
		if t == nil {
			return Null(), nil
		}
		return *t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Uint(uint64(t)), nil
	case uint8:
		return Uint(uint64(t)), nil
	case uint16:
		return Uint(uint64(t)), nil
	case uint32:
		return Uint(uint64(t)), nil
	case uint64:
		return Uint(t), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case json.Number:
		return Number(t)
	case []byte:
		return Binary(t), nil
	case json.RawMessage:
		return parseJSON(t)
	case []Value:
		return Array(t...), nil
	case map[string]Value:
		return Object(t), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := ValueOf(item)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return Array(items...), nil
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			v, err := ValueOf(item)
			if err != nil {
				return Value{}, err
			}
			fields[k] = v
		}
		return Object(fields), nil
	case error:
		return Object(map[string]Value{"message": String(t.Error())}), nil
	}

	rv := reflect.ValueOf(x)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		items := make([]Value, rv.Len())
		for i := range items {
			v, err := ValueOf(rv.Index(i).Interface())
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return Array(items...), nil
	}

	raw, err := json.Marshal(x)
	if err != nil {
		return Value{}, fmt.Errorf("parser: cannot convert %T: %w", x, err)
	}
	return parseJSON(raw)
}

// ValuesOf converts every argument with ValueOf.
func ValuesOf(args ...any) ([]Value, error) {
	out := make([]Value, len(args))
	for i, arg := range args {
		v, err := ValueOf(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, fmt.Errorf("parser: trailing data after JSON value")
	}
	return fromInterface(raw), nil
}

func fromInterface(raw any) Value {
	switch t := raw.(type) {
	case string:
		return String(t)
	case json.Number:
		return Value{kind: KindNumber, str: string(t)}
	case bool:
		return Bool(t)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = fromInterface(item)
		}
		return Array(items...)
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fields[k] = fromInterface(item)
		}
		return Object(fields)
	}
	return Null()
}
