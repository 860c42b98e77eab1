package report

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/denismitr/pathkeeper/docstore"
)

var ErrInvalidRequest = errors.New("invalid report request")

const (
	fieldsSuffix  = "_fields"
	conditionsKey = "conditions"
)

// Conditions are equality filters keyed by field name.
type Conditions map[string]interface{}

// Request lists, per collection, the fields the caller asserts belong to it
// and the flat set of conditions to spread across the collections.
type Request struct {
	Fields     map[string][]string
	Conditions Conditions
}

// ParseRequest reads `<collection>_fields` arrays and the `conditions` object.
// Collections without a fields array get an empty list.
func ParseRequest(body []byte, collections []string) (*Request, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.Wrap(ErrInvalidRequest, "body is not valid json")
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, errors.Wrap(ErrInvalidRequest, "body must be an object")
	}

	req := &Request{
		Fields:     make(map[string][]string, len(collections)),
		Conditions: make(Conditions),
	}

	for _, c := range collections {
		fields := []string{}

		r := root.Get(docstore.EscapeField(c + fieldsSuffix))
		if r.Exists() && r.Type != gjson.Null {
			if !r.IsArray() {
				return nil, errors.Wrapf(ErrInvalidRequest, "%s%s must be an array", c, fieldsSuffix)
			}

			for _, f := range r.Array() {
				if f.Type != gjson.String {
					return nil, errors.Wrapf(ErrInvalidRequest, "%s%s must contain field names", c, fieldsSuffix)
				}
				fields = append(fields, f.Str)
			}
		}

		req.Fields[c] = fields
	}

	conds := root.Get(conditionsKey)
	if conds.Exists() && conds.Type != gjson.Null {
		if !conds.IsObject() {
			return nil, errors.Wrap(ErrInvalidRequest, "conditions must be an object")
		}

		conds.ForEach(func(k, v gjson.Result) bool {
			req.Conditions[k.String()] = v.Value()
			return true
		})
	}

	return req, nil
}

// Partition gives every collection the conditions whose key is one of its
// asserted fields. A key asserted by several collections goes to each of them.
func Partition(fields map[string][]string, conditions Conditions) map[string]Conditions {
	out := make(map[string]Conditions, len(fields))

	for collection, list := range fields {
		bucket := make(Conditions)
		for _, f := range list {
			if v, ok := conditions[f]; ok {
				bucket[f] = v
			}
		}
		out[collection] = bucket
	}

	return out
}

// Coerce converts string condition values to the type their field has in
// sample: numeric strings become numbers and date-like strings become dates.
// Without a sample the conditions are returned as they are.
func Coerce(sample []byte, conditions Conditions) Conditions {
	out := make(Conditions, len(conditions))

	for k, v := range conditions {
		out[k] = v

		s, ok := v.(string)
		if !ok || len(sample) == 0 {
			continue
		}

		field := gjson.GetBytes(sample, docstore.EscapeField(k))
		switch field.Type {
		case gjson.Number:
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				out[k] = f
			}
		case gjson.String:
			if _, isDate := docstore.ParseDate(field.Str); !isDate {
				continue
			}
			if t, ok := docstore.ParseDate(s); ok {
				out[k] = t
			}
		}
	}

	return out
}

// InferFields lists the top level keys of a sample document. It is a best
// effort guess of the collection schema, not a guarantee.
func InferFields(sample []byte) []string {
	if len(sample) == 0 {
		return []string{}
	}

	root := gjson.ParseBytes(sample)
	if !root.IsObject() {
		return []string{}
	}

	fields := []string{}
	root.ForEach(func(k, _ gjson.Result) bool {
		fields = append(fields, k.String())
		return true
	})

	return fields
}
