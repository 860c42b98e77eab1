package docstore

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

var ErrJsonCouldNotBeUnmarshalled = errors.New("json contents could not be unmarshalled, probably is invalid")
var ErrJsonPathInvalid = errors.New("json path is invalid")

type JsonValue struct {
	b []byte
}

type Document struct {
	collection string
	key        string
	value      []byte
}

func newDocument(collection, key string, value []byte) *Document {
	cp := make([]byte, len(value))
	copy(cp, value)

	return &Document{collection: collection, key: key, value: cp}
}

func (d *Document) Key() string {
	return d.key
}

func (d *Document) Collection() string {
	return d.collection
}

func (d *Document) Value() []byte {
	return d.value
}

func (d *Document) RawString() string {
	return string(d.value)
}

func (d *Document) Json() *JsonValue {
	return &JsonValue{b: d.value}
}

// Get reads a gjson path of the document.
func (d *Document) Get(path string) gjson.Result {
	return gjson.GetBytes(d.value, path)
}

func (d *Document) Unmarshal(dest interface{}) error {
	return d.Json().Unmarshal(dest)
}

func (js *JsonValue) Unmarshal(dest interface{}) error {
	if err := json.Unmarshal(js.b, dest); err != nil {
		return errors.Wrap(ErrJsonCouldNotBeUnmarshalled, err.Error())
	}

	return nil
}

func (js *JsonValue) String(path string) (string, error) {
	raw := gjson.GetBytes(js.b, path)
	if !raw.Exists() {
		return "", ErrJsonPathInvalid
	}
	return raw.String(), nil
}

func (js *JsonValue) StringOrDefault(path, def string) string {
	if v, err := js.String(path); err != nil {
		return def
	} else {
		return v
	}
}

func (js *JsonValue) Float(path string) (float64, error) {
	get := gjson.GetBytes(js.b, path)
	if !get.Exists() {
		return 0, ErrJsonPathInvalid
	}
	return get.Float(), nil
}

func (js *JsonValue) Int(path string) (int, error) {
	get := gjson.GetBytes(js.b, path)
	if !get.Exists() {
		return 0, ErrJsonPathInvalid
	}
	return int(get.Int()), nil
}

func (js *JsonValue) Bool(path string) (bool, error) {
	get := gjson.GetBytes(js.b, path)
	if !get.Exists() {
		return false, ErrJsonPathInvalid
	}
	return get.Bool(), nil
}

// Fields lists the top level keys of an object document in stored order.
func (js *JsonValue) Fields() []string {
	root := gjson.ParseBytes(js.b)
	if !root.IsObject() {
		return nil
	}

	var fields []string
	root.ForEach(func(k, _ gjson.Result) bool {
		fields = append(fields, k.String())
		return true
	})

	return fields
}
