package resultset

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the scalar type of a cell.
type Kind string

const (
	KindNull      Kind = "null"
	KindString    Kind = "string"
	KindInteger   Kind = "integer"
	KindFloat     Kind = "float"
	KindBool      Kind = "bool"
	KindTimestamp Kind = "timestamp"
)

// Value is a typed scalar cell. The zero Value is null.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	t    time.Time
}

func Null() Value            { return Value{kind: KindNull} }
func Text(s string) Value    { return Value{kind: KindString, s: s} }
func Int(i int64) Value      { return Value{kind: KindInteger, i: i} }
func Float(f float64) Value  { return Value{kind: KindFloat, f: f} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Time(t time.Time) Value { return Value{kind: KindTimestamp, t: t} }

// Kind returns the scalar type; the zero Value reports KindNull.
func (v Value) Kind() Kind {
	if v.kind == "" {
		return KindNull
	}
	return v.kind
}

// IsNull reports whether the cell holds SQL NULL.
func (v Value) IsNull() bool { return v.Kind() == KindNull }

// Interface returns the Go value: nil, string, int64, float64, bool or time.Time.
func (v Value) Interface() any {
	switch v.Kind() {
	case KindString:
		return v.s
	case KindInteger:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindTimestamp:
		return v.t
	default:
		return nil
	}
}

// String renders the cell as export text. NULL renders as the empty string.
func (v Value) String() string {
	switch v.Kind() {
	case KindString:
		return v.s
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindTimestamp:
		return v.t.Format(time.RFC3339Nano)
	default:
		return ""
	}
}

// MarshalJSON encodes the cell as its natural JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind() {
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return json.Marshal(v.String())
		}
		return json.Marshal(v.f)
	case KindTimestamp:
		return json.Marshal(v.t.Format(time.RFC3339Nano))
	default:
		return json.Marshal(v.Interface())
	}
}

// FromDriver converts a value produced by database/sql scanning into a cell.
// typeName is the column's DatabaseTypeName and is used to recover numbers
// that text protocols deliver as bytes.
func FromDriver(src any, typeName string) Value {
	switch x := src.(type) {
	case nil:
		return Null()
	case []byte:
		return fromText(string(x), typeName)
	case string:
		return fromText(x, typeName)
	case int64:
		return Int(x)
	case int:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int16:
		return Int(int64(x))
	case int8:
		return Int(int64(x))
	case uint32:
		return Int(int64(x))
	case uint16:
		return Int(int64(x))
	case uint8:
		return Int(int64(x))
	case uint64:
		if x > math.MaxInt64 {
			return Text(strconv.FormatUint(x, 10))
		}
		return Int(int64(x))
	case float64:
		return Float(x)
	case float32:
		return Float(float64(x))
	case bool:
		return Bool(x)
	case time.Time:
		return Time(x)
	default:
		return Text(fmt.Sprint(x))
	}
}

func fromText(s, typeName string) Value {
	switch strings.ToUpper(typeName) {
	case "INT", "INT2", "INT4", "INT8", "INTEGER", "BIGINT", "SMALLINT", "TINYINT", "MEDIUMINT",
		"UNSIGNED INT", "UNSIGNED BIGINT", "UNSIGNED SMALLINT", "UNSIGNED TINYINT", "YEAR":
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i)
		}
	case "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "REAL":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return Float(f)
		}
	case "BOOL", "BOOLEAN", "BIT":
		if b, err := strconv.ParseBool(s); err == nil {
			return Bool(b)
		}
	}
	return Text(s)
}
