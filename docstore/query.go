package docstore

import (
	"bytes"
	"encoding/json"
	"reflect"
	"time"

	"github.com/tidwall/gjson"
)

// IDField is always kept by projections when a document has it.
const IDField = "_id"

type Order string

const (
	Ascend  Order = "ascend"
	Descend Order = "descend"
)

// KeyRange bounds keys to [From, To).
type KeyRange struct {
	From string
	To   string
}

type condition struct {
	field string
	value interface{}
}

type FindOptions struct {
	order      Order
	keyRange   *KeyRange
	prefix     string
	limit      int
	conditions []condition
	projection []string
}

func Find() *FindOptions {
	return &FindOptions{order: Ascend}
}

func (fo *FindOptions) Order(o Order) *FindOptions {
	fo.order = o
	return fo
}

func (fo *FindOptions) KeyRange(from, to string) *FindOptions {
	fo.keyRange = &KeyRange{From: from, To: to}
	return fo
}

func (fo *FindOptions) Prefix(p string) *FindOptions {
	fo.prefix = p
	return fo
}

func (fo *FindOptions) Limit(n int) *FindOptions {
	fo.limit = n
	return fo
}

// Where adds an equality condition on a gjson path. All conditions must hold.
func (fo *FindOptions) Where(field string, value interface{}) *FindOptions {
	fo.conditions = append(fo.conditions, condition{field: field, value: value})
	return fo
}

// Project limits returned documents to the given top level fields.
func (fo *FindOptions) Project(fields ...string) *FindOptions {
	fo.projection = append(fo.projection, fields...)
	return fo
}

func (fo *FindOptions) clone() *FindOptions {
	c := *fo
	c.conditions = append([]condition(nil), fo.conditions...)
	c.projection = append([]string(nil), fo.projection...)
	if fo.keyRange != nil {
		kr := *fo.keyRange
		c.keyRange = &kr
	}
	return &c
}

func (fo *FindOptions) match(doc []byte) bool {
	for _, c := range fo.conditions {
		if !matchValue(gjson.GetBytes(doc, c.field), c.value) {
			return false
		}
	}

	return true
}

func (fo *FindOptions) project(doc []byte) []byte {
	if len(fo.projection) == 0 {
		return doc
	}

	root := gjson.ParseBytes(doc)
	if !root.IsObject() {
		return doc
	}

	out := make(map[string]json.RawMessage, len(fo.projection)+1)
	if id := root.Get(IDField); id.Exists() {
		out[IDField] = json.RawMessage(id.Raw)
	}

	for _, f := range fo.projection {
		if r := root.Get(EscapeField(f)); r.Exists() {
			out[f] = json.RawMessage(r.Raw)
		}
	}

	b, err := json.Marshal(out)
	if err != nil {
		return doc
	}

	return b
}

func matchValue(r gjson.Result, v interface{}) bool {
	if v == nil {
		return !r.Exists() || r.Type == gjson.Null
	}

	if !r.Exists() {
		return false
	}

	if r.IsArray() {
		if _, scalar := scalarOf(v); scalar {
			matched := false
			r.ForEach(func(_, el gjson.Result) bool {
				matched = matchValue(el, v)
				return !matched
			})
			if matched {
				return true
			}
		}
	}

	switch typed := v.(type) {
	case string:
		return r.Type == gjson.String && r.Str == typed
	case bool:
		return (r.Type == gjson.True || r.Type == gjson.False) && r.Bool() == typed
	case time.Time:
		if r.Type != gjson.String {
			return false
		}
		t, ok := ParseDate(r.Str)
		return ok && t.Equal(typed)
	case json.Number:
		f, err := typed.Float64()
		return err == nil && r.Type == gjson.Number && r.Num == f
	}

	if f, ok := scalarOf(v); ok {
		num, isNum := f.(float64)
		return isNum && r.Type == gjson.Number && r.Num == num
	}

	want, err := json.Marshal(v)
	if err != nil {
		return false
	}

	var a, b interface{}
	if json.Unmarshal(want, &a) != nil || json.Unmarshal([]byte(r.Raw), &b) != nil {
		return false
	}

	return reflect.DeepEqual(a, b)
}

// scalarOf reports whether v is a scalar and turns numbers into float64.
func scalarOf(v interface{}) (interface{}, bool) {
	switch n := v.(type) {
	case string, bool, time.Time, json.Number:
		return n, true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}

	return nil, false
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate parses the date formats stored by JSON producers.
func ParseDate(s string) (time.Time, bool) {
	if len(s) < len("2006-01-02") {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

// EscapeField makes a field name usable as a literal gjson path.
func EscapeField(field string) string {
	var buf bytes.Buffer
	for _, c := range field {
		switch c {
		case '.', '*', '?', '|', '#', '@', '\\':
			buf.WriteByte('\\')
		}
		buf.WriteRune(c)
	}
	return buf.String()
}
