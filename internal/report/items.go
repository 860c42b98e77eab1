package report

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/denismitr/pathkeeper/docstore"
	"github.com/denismitr/pathkeeper/internal/logging"
)

var (
	ErrNotAnArray    = errors.New("request body must be an array")
	ErrEmptyItems    = errors.New("request body must hold at least one item")
	ErrItemNotObject = errors.New("every item must be an object")
)

// InsertItems stores every element of a non-empty JSON array of objects in
// collection within one transaction. Objects without an _id get a generated
// one, which is also the document key. The stored documents are returned in
// input order.
func (s *Service) InsertItems(ctx context.Context, collection string, body []byte) ([]json.RawMessage, error) {
	root := gjson.ParseBytes(body)
	if !gjson.ValidBytes(body) || !root.IsArray() {
		return nil, ErrNotAnArray
	}

	items := root.Array()
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}

	for i, item := range items {
		if !item.IsObject() {
			return nil, errors.Wrapf(ErrItemNotObject, "item %d is %s", i, item.Type)
		}
	}

	docs := make([]json.RawMessage, 0, len(items))

	if err := s.store.Update(ctx, func(tx *docstore.Tx) error {
		for _, item := range items {
			doc, id, err := withID(item)
			if err != nil {
				return err
			}

			if err := tx.Insert(collection, id, doc); err != nil {
				return err
			}

			docs = append(docs, doc)
		}
		return nil
	}); err != nil {
		return nil, s.storageFailure(ctx, "insert_items", err)
	}

	logging.FromContext(ctx).V(logging.VERBOSE).Info("Inserted items", "collection", collection, "count", len(docs))

	return docs, nil
}

func withID(item gjson.Result) (json.RawMessage, string, error) {
	if existing := item.Get(docstore.IDField); existing.Exists() && existing.String() != "" {
		return json.RawMessage(item.Raw), existing.String(), nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(item.Raw), &fields); err != nil {
		return nil, "", errors.Wrap(docstore.ErrInvalidDocument, err.Error())
	}

	id := uuid.NewString()
	fields[docstore.IDField] = json.RawMessage(`"` + id + `"`)

	b, err := json.Marshal(fields)
	if err != nil {
		return nil, "", errors.Wrap(docstore.ErrInvalidDocument, err.Error())
	}

	return b, id, nil
}
