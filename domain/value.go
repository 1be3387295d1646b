package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Kind is the tag of a [Value].
type Kind uint8

// Value kinds. The zero [Value] is [KindMissing].
const (
	KindMissing Kind = iota
	KindNull
	KindBool
	KindInt32
	KindInt64
	KindDouble
	KindString
	KindBinary
	KindObjectID
	KindDateTime
	KindTimestamp
	KindRegex
	KindDocument
	KindArray
)

var kindNames = [...]string{
	KindMissing:   "missing",
	KindNull:      "null",
	KindBool:      "bool",
	KindInt32:     "int",
	KindInt64:     "long",
	KindDouble:    "double",
	KindString:    "string",
	KindBinary:    "binData",
	KindObjectID:  "objectId",
	KindDateTime:  "date",
	KindTimestamp: "timestamp",
	KindRegex:     "regex",
	KindDocument:  "object",
	KindArray:     "array",
}

// String returns the type alias used by $type.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Bracket returns the canonical ordering group of the kind. Values of
// different brackets are never equal and relational operators never match
// across brackets. Missing and null share a bracket, as do all numbers.
func (k Kind) Bracket() int {
	switch k {
	case KindMissing, KindNull:
		return 1
	case KindInt32, KindInt64, KindDouble:
		return 2
	case KindString:
		return 3
	case KindDocument:
		return 4
	case KindArray:
		return 5
	case KindBinary:
		return 6
	case KindObjectID:
		return 7
	case KindBool:
		return 8
	case KindDateTime:
		return 9
	case KindTimestamp:
		return 10
	case KindRegex:
		return 11
	default:
		return 12
	}
}

// KindByName resolves a $type alias ("double", "long", "number"...) or its
// numeric code. The second return is false for "number", which matches any
// numeric kind.
func KindByName(name string) (Kind, bool, error) {
	if name == "number" {
		return KindDouble, false, nil
	}
	for k, n := range kindNames {
		if n == name && Kind(k) != KindMissing {
			return Kind(k), true, nil
		}
	}
	return 0, false, fmt.Errorf("unknown type alias %q", name)
}

// KindByCode resolves a BSON type number as accepted by $type.
func KindByCode(code int64) (Kind, error) {
	switch code {
	case 1:
		return KindDouble, nil
	case 2:
		return KindString, nil
	case 3:
		return KindDocument, nil
	case 4:
		return KindArray, nil
	case 5:
		return KindBinary, nil
	case 7:
		return KindObjectID, nil
	case 8:
		return KindBool, nil
	case 9:
		return KindDateTime, nil
	case 10:
		return KindNull, nil
	case 11:
		return KindRegex, nil
	case 16:
		return KindInt32, nil
	case 17:
		return KindTimestamp, nil
	case 18:
		return KindInt64, nil
	}
	return 0, fmt.Errorf("unknown type code %d", code)
}

// Value is a single document value. It is a tagged union: [Value.Kind]
// tells which of the payload accessors is meaningful. Values are immutable
// except for the [Document] and array payloads they point to, which the
// engine only mutates on private copies.
type Value struct {
	kind Kind
	num  int64
	dbl  float64
	str  string
	opt  string
	sub  byte
	bin  []byte
	oid  bson.ObjectID
	doc  *Document
	arr  []Value
}

// Missing returns the value of an absent field.
func Missing() Value { return Value{} }

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

// Int32 returns a 32-bit integer value.
func Int32(i int32) Value { return Value{kind: KindInt32, num: int64(i)} }

// Int64 returns a 64-bit integer value.
func Int64(i int64) Value { return Value{kind: KindInt64, num: i} }

// Double returns a floating point value.
func Double(f float64) Value { return Value{kind: KindDouble, dbl: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Binary returns a binary value with the given subtype.
func Binary(subtype byte, data []byte) Value {
	return Value{kind: KindBinary, sub: subtype, bin: data}
}

// ObjectID returns an object id value.
func ObjectID(id bson.ObjectID) Value { return Value{kind: KindObjectID, oid: id} }

// DateTime returns a date value with millisecond precision.
func DateTime(t time.Time) Value { return Value{kind: KindDateTime, num: t.UnixMilli()} }

// DateTimeMillis returns a date value from milliseconds since epoch.
func DateTimeMillis(ms int64) Value { return Value{kind: KindDateTime, num: ms} }

// Timestamp returns an internal timestamp value.
func Timestamp(t, i uint32) Value {
	return Value{kind: KindTimestamp, num: int64(uint64(t)<<32 | uint64(i))}
}

// Regex returns a regular expression value.
func Regex(pattern, options string) Value {
	return Value{kind: KindRegex, str: pattern, opt: options}
}

// Doc returns a value holding a nested document. A nil document is stored
// as an empty one.
func Doc(d *Document) Value {
	if d == nil {
		d = NewDocument()
	}
	return Value{kind: KindDocument, doc: d}
}

// Array returns an array value.
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, arr: items}
}

// Kind returns the tag of the value.
func (v Value) Kind() Kind { return v.kind }

// IsMissing reports whether the value represents an absent field.
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNullish reports whether the value is null or missing.
func (v Value) IsNullish() bool { return v.kind == KindNull || v.kind == KindMissing }

// IsNumber reports whether the value is int32, int64 or double.
func (v Value) IsNumber() bool {
	return v.kind == KindInt32 || v.kind == KindInt64 || v.kind == KindDouble
}

// IsArray reports whether the value is an array.
func (v Value) IsArray() bool { return v.kind == KindArray }

// IsDocument reports whether the value is a nested document.
func (v Value) IsDocument() bool { return v.kind == KindDocument }

// Bool returns the boolean payload.
func (v Value) Bool() bool { return v.num != 0 }

// Truthy follows aggregation semantics: false, null, missing and zero are
// false, everything else is true.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindMissing, KindNull:
		return false
	case KindBool:
		return v.num != 0
	case KindInt32, KindInt64:
		return v.num != 0
	case KindDouble:
		return v.dbl != 0
	default:
		return true
	}
}

// Int64 returns the numeric payload as int64. Doubles are truncated.
func (v Value) Int64() int64 {
	if v.kind == KindDouble {
		return int64(v.dbl)
	}
	return v.num
}

// Float64 returns the numeric payload as float64.
func (v Value) Float64() float64 {
	switch v.kind {
	case KindDouble:
		return v.dbl
	case KindInt32, KindInt64:
		return float64(v.num)
	}
	return math.NaN()
}

// Str returns the string payload, or the pattern of a regex.
func (v Value) Str() string { return v.str }

// BinaryData returns the subtype and bytes of a binary value.
func (v Value) BinaryData() (byte, []byte) { return v.sub, v.bin }

// ObjectID returns the object id payload.
func (v Value) ObjectID() bson.ObjectID { return v.oid }

// Time returns the date payload in UTC.
func (v Value) Time() time.Time { return time.UnixMilli(v.num).UTC() }

// Millis returns the date payload as milliseconds since epoch.
func (v Value) Millis() int64 { return v.num }

// Timestamp returns the seconds and increment of a timestamp value.
func (v Value) Timestamp() (t, i uint32) {
	u := uint64(v.num)
	return uint32(u >> 32), uint32(u)
}

// Regex returns the pattern and options of a regex value.
func (v Value) Regex() (pattern, options string) { return v.str, v.opt }

// Doc returns the nested document payload, or nil.
func (v Value) Doc() *Document { return v.doc }

// Array returns the array payload, or nil.
func (v Value) Array() []Value { return v.arr }

// Clone returns a deep copy of the value.
func (v Value) Clone() Value {
	switch v.kind {
	case KindDocument:
		v.doc = v.doc.Clone()
	case KindArray:
		arr := make([]Value, len(v.arr))
		for n, item := range v.arr {
			arr[n] = item.Clone()
		}
		v.arr = arr
	case KindBinary:
		v.bin = append([]byte(nil), v.bin...)
	}
	return v
}

// Interface converts the value into plain Go values: map[string]any for
// documents, []any for arrays and bson types for the remaining special
// kinds. Missing converts to nil.
func (v Value) Interface() any {
	switch v.kind {
	case KindNull, KindMissing:
		return nil
	case KindBool:
		return v.Bool()
	case KindInt32:
		return int32(v.num)
	case KindInt64:
		return v.num
	case KindDouble:
		return v.dbl
	case KindString:
		return v.str
	case KindBinary:
		return bson.Binary{Subtype: v.sub, Data: v.bin}
	case KindObjectID:
		return v.oid
	case KindDateTime:
		return v.Time()
	case KindTimestamp:
		t, i := v.Timestamp()
		return bson.Timestamp{T: t, I: i}
	case KindRegex:
		return bson.Regex{Pattern: v.str, Options: v.opt}
	case KindDocument:
		return v.doc.Map()
	case KindArray:
		res := make([]any, len(v.arr))
		for n, item := range v.arr {
			res[n] = item.Interface()
		}
		return res
	}
	return nil
}

// BSON converts the value into its bson representation, keeping field
// order (documents become bson.D).
func (v Value) BSON() any {
	switch v.kind {
	case KindMissing:
		return bson.Undefined{}
	case KindNull:
		return nil
	case KindDateTime:
		return bson.DateTime(v.num)
	case KindDocument:
		return v.doc.BSON()
	case KindArray:
		res := make(bson.A, len(v.arr))
		for n, item := range v.arr {
			res[n] = item.BSON()
		}
		return res
	}
	return v.Interface()
}

// String implements [fmt.Stringer] with a shell-like representation.
func (v Value) String() string {
	var b strings.Builder
	v.write(&b)
	return b.String()
}

func (v Value) write(b *strings.Builder) {
	switch v.kind {
	case KindMissing:
		b.WriteString("<missing>")
	case KindNull:
		b.WriteString("null")
	case KindBool:
		b.WriteString(strconv.FormatBool(v.Bool()))
	case KindInt32, KindInt64:
		b.WriteString(strconv.FormatInt(v.num, 10))
	case KindDouble:
		b.WriteString(strconv.FormatFloat(v.dbl, 'g', -1, 64))
	case KindString:
		b.WriteString(strconv.Quote(v.str))
	case KindBinary:
		fmt.Fprintf(b, "BinData(%d, %x)", v.sub, v.bin)
	case KindObjectID:
		fmt.Fprintf(b, "ObjectId(%q)", v.oid.Hex())
	case KindDateTime:
		fmt.Fprintf(b, "ISODate(%q)", v.Time().Format(time.RFC3339Nano))
	case KindTimestamp:
		t, i := v.Timestamp()
		fmt.Fprintf(b, "Timestamp(%d, %d)", t, i)
	case KindRegex:
		fmt.Fprintf(b, "/%s/%s", v.str, v.opt)
	case KindDocument:
		v.doc.write(b)
	case KindArray:
		b.WriteByte('[')
		for n, item := range v.arr {
			if n > 0 {
				b.WriteString(", ")
			}
			item.write(b)
		}
		b.WriteByte(']')
	}
}
