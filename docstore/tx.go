package docstore

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

var ErrTxIsReadOnly = errors.New("transaction is read only")
var ErrTxAlreadyClosed = errors.New("transaction already closed")
var ErrInvalidDocument = errors.New("document is not valid json")
var ErrInvalidKey = errors.New("collection and key must not be empty")
var ErrDocumentNotFound = errors.New("document not found")

// Tx gives access to the documents while the DB lock is held.
// Writes are applied right away and undone on rollback.
type Tx struct {
	e        *engine
	ctx      context.Context
	readOnly bool
	commands []serializable
	undo     []func()
	stale    uint64
	done     bool
}

func (x *Tx) Get(collection, key string) (*Document, error) {
	ent, err := x.e.getUnderLock(collection, key)
	if err != nil {
		return nil, err
	}

	v, err := x.e.valueOf(ent)
	if err != nil {
		return nil, err
	}

	return newDocument(collection, key, v), nil
}

// Insert adds a new document and fails when the key is already taken.
func (x *Tx) Insert(collection, key string, data interface{}) error {
	return x.put(collection, key, data, false)
}

// InsertOrReplace stores the document, fully replacing an existing one.
func (x *Tx) InsertOrReplace(collection, key string, data interface{}) error {
	return x.put(collection, key, data, true)
}

func (x *Tx) put(collection, key string, data interface{}, replace bool) error {
	if err := x.writable(); err != nil {
		return err
	}

	if collection == "" || key == "" {
		return ErrInvalidKey
	}

	v, err := serializeToValue(data)
	if err != nil {
		return err
	}

	existing, err := x.e.getUnderLock(collection, key)
	if err != nil && !errors.Is(err, ErrKeyDoesNotExist) {
		return err
	}

	if existing != nil && !replace {
		return errors.Wrapf(ErrKeyAlreadyExists, "key %s in collection %s", key, collection)
	}

	ent := newEntry(collection, key, v)
	x.e.putUnderLock(ent)

	x.undo = append(x.undo, func() {
		if existing != nil {
			x.e.putUnderLock(existing)
		} else {
			_, _ = x.e.removeUnderLock(collection, key)
		}
	})

	if existing != nil {
		x.stale++
	}

	x.commands = append(x.commands, &setCmd{ent: ent})
	return nil
}

func (x *Tx) Remove(collection string, keys ...string) error {
	if err := x.writable(); err != nil {
		return err
	}

	for _, k := range keys {
		removed, err := x.e.removeUnderLock(collection, k)
		if err != nil {
			return err
		}

		x.undo = append(x.undo, func() {
			x.e.putUnderLock(removed)
		})

		x.stale++
		x.commands = append(x.commands, &deleteCmd{collection: collection, key: k})
	}

	return nil
}

// Find appends every matching document of the collection to dest.
func (x *Tx) Find(ctx context.Context, collection string, opts *FindOptions, dest *[]Document) error {
	if opts == nil {
		opts = Find()
	}

	var valueErr error
	var found int

	if err := x.e.scan(ctx, collection, opts, func(ent *entry) bool {
		v, err := x.e.valueOf(ent)
		if err != nil {
			valueErr = err
			return false
		}

		if !opts.match(v) {
			return true
		}

		*dest = append(*dest, *newDocument(collection, ent.key, opts.project(v)))
		found++

		return opts.limit <= 0 || found < opts.limit
	}); err != nil {
		return err
	}

	return valueErr
}

// FindOne returns the first matching document or ErrDocumentNotFound.
func (x *Tx) FindOne(ctx context.Context, collection string, opts *FindOptions) (*Document, error) {
	if opts == nil {
		opts = Find()
	}

	var docs []Document
	if err := x.Find(ctx, collection, opts.clone().Limit(1), &docs); err != nil {
		return nil, err
	}

	if len(docs) == 0 {
		return nil, errors.Wrapf(ErrDocumentNotFound, "in collection %s", collection)
	}

	return &docs[0], nil
}

func (x *Tx) Count(collection string) int {
	return x.e.count(collection)
}

// Keys lists the keys of the collection in ascending order.
func (x *Tx) Keys(collection string) []string {
	tr := x.e.tree(collection, false)
	if tr == nil {
		return []string{}
	}

	keys := make([]string, 0, tr.Len())
	tr.Ascend(nil, func(item interface{}) bool {
		ent, ok := item.(*entry)
		if !ok {
			panic(castPanic)
		}
		keys = append(keys, ent.key)
		return true
	})

	return keys
}

// Collections lists the non empty collections sorted by name.
func (x *Tx) Collections() []string {
	names := x.e.collectionNamesUnderLock()
	sort.Strings(names)
	return names
}

func (x *Tx) writable() error {
	if x.readOnly {
		return ErrTxIsReadOnly
	}

	if x.done {
		return ErrTxAlreadyClosed
	}

	return x.ctx.Err()
}

func (x *Tx) commit() error {
	if x.done {
		return ErrTxAlreadyClosed
	}
	x.done = true

	if len(x.commands) == 0 {
		return nil
	}

	if x.e.persistence != nil {
		if err := x.e.persistence.save(x.commands); err != nil {
			x.undoAll()
			return errors.Wrapf(ErrStorageFailed, "commit failed: %s", err.Error())
		}
	}

	x.e.garbage += x.stale
	return nil
}

func (x *Tx) rollback() {
	if x.done {
		return
	}
	x.done = true
	x.undoAll()
}

func (x *Tx) undoAll() {
	for i := len(x.undo) - 1; i >= 0; i-- {
		x.undo[i]()
	}
	x.undo = nil
}

func serializeToValue(d interface{}) ([]byte, error) {
	var b []byte
	switch typedValue := d.(type) {
	case []byte:
		b = append([]byte(nil), typedValue...)
	case json.RawMessage:
		b = append([]byte(nil), typedValue...)
	case string:
		b = []byte(typedValue)
	default:
		var err error
		b, err = json.Marshal(d)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidDocument, "could not marshal data %+v value: %s", d, err.Error())
		}
	}

	if len(b) == 0 || !gjson.ValidBytes(b) {
		return nil, errors.Wrapf(ErrInvalidDocument, "%q", string(b))
	}

	return b, nil
}
