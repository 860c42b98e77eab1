package docstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/denismitr/pathkeeper/docstore"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findKeys(t *testing.T, db *docstore.DB, collection string, opts *docstore.FindOptions) []string {
	t.Helper()

	var docs []docstore.Document
	require.NoError(t, db.View(context.Background(), func(tx *docstore.Tx) error {
		return tx.Find(context.Background(), collection, opts, &docs)
	}))

	keys := make([]string, 0, len(docs))
	for i := range docs {
		keys = append(keys, docs[i].Key())
	}

	return keys
}

func TestTx_Find(t *testing.T) {
	db, closer := openDB(t, docstore.InMemory, nil)
	defer func() { require.NoError(t, closer()) }()

	seedPages(t, db)

	tt := []struct {
		name string
		opts *docstore.FindOptions
		keys []string
	}{
		{
			name: "all ascending",
			opts: nil,
			keys: []string{"/about", "/blog", "/blog-archive", "/blog/first", "/blog/second", "/contact"},
		},
		{
			name: "all descending",
			opts: docstore.Find().Order(docstore.Descend),
			keys: []string{"/contact", "/blog/second", "/blog/first", "/blog-archive", "/blog", "/about"},
		},
		{
			name: "prefix ascending",
			opts: docstore.Find().Prefix("/blog/"),
			keys: []string{"/blog/first", "/blog/second"},
		},
		{
			name: "prefix descending",
			opts: docstore.Find().Prefix("/blog").Order(docstore.Descend),
			keys: []string{"/blog/second", "/blog/first", "/blog-archive", "/blog"},
		},
		{
			name: "key range",
			opts: docstore.Find().KeyRange("/blog", "/blog/second"),
			keys: []string{"/blog", "/blog-archive", "/blog/first"},
		},
		{
			name: "key range descending",
			opts: docstore.Find().KeyRange("/blog", "/blog/second").Order(docstore.Descend),
			keys: []string{"/blog/first", "/blog-archive", "/blog"},
		},
		{
			name: "limit",
			opts: docstore.Find().Limit(2),
			keys: []string{"/about", "/blog"},
		},
		{
			name: "where number",
			opts: docstore.Find().Where("views", 40),
			keys: []string{"/blog/first", "/blog/second"},
		},
		{
			name: "where number and string",
			opts: docstore.Find().Where("views", 40.0).Where("title", "First post"),
			keys: []string{"/blog/first"},
		},
		{
			name: "where scalar matches array element",
			opts: docstore.Find().Where("tags", "go"),
			keys: []string{"/blog", "/blog/first"},
		},
		{
			name: "where nil matches missing field",
			opts: docstore.Find().Prefix("/blog/").Where("tags", nil),
			keys: []string{"/blog/second"},
		},
		{
			name: "where whole array",
			opts: docstore.Find().Where("tags", []string{"news", "go"}),
			keys: []string{"/blog"},
		},
		{
			name: "where string does not match number",
			opts: docstore.Find().Where("views", "40"),
			keys: []string{},
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.keys, findKeys(t, db, "pages", tc.opts))
		})
	}

	t.Run("unknown collection", func(t *testing.T) {
		assert.Empty(t, findKeys(t, db, "nothing", nil))
	})
}

func TestTx_FindProjection(t *testing.T) {
	db, closer := openDB(t, docstore.InMemory, nil)
	defer func() { require.NoError(t, closer()) }()

	require.NoError(t, db.Update(context.Background(), func(tx *docstore.Tx) error {
		return tx.Insert("items", "1", map[string]interface{}{
			"_id":   "1",
			"name":  "lamp",
			"price": 12.5,
			"stock": 3,
		})
	}))

	var docs []docstore.Document
	require.NoError(t, db.View(context.Background(), func(tx *docstore.Tx) error {
		return tx.Find(context.Background(), "items", docstore.Find().Project("name", "missing"), &docs)
	}))

	require.Len(t, docs, 1)
	assert.JSONEq(t, `{"_id":"1","name":"lamp"}`, docs[0].RawString())
}

func TestTx_FindDates(t *testing.T) {
	db, closer := openDB(t, docstore.InMemory, nil)
	defer func() { require.NoError(t, closer()) }()

	require.NoError(t, db.Update(context.Background(), func(tx *docstore.Tx) error {
		if err := tx.Insert("orders", "a", `{"placed":"2021-03-04T10:00:00Z"}`); err != nil {
			return err
		}
		return tx.Insert("orders", "b", `{"placed":"2021-03-05"}`)
	}))

	at := time.Date(2021, 3, 4, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"a"}, findKeys(t, db, "orders", docstore.Find().Where("placed", at)))

	day := time.Date(2021, 3, 5, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"b"}, findKeys(t, db, "orders", docstore.Find().Where("placed", day)))
}

func TestTx_FindOne(t *testing.T) {
	db, closer := openDB(t, docstore.InMemory, nil)
	defer func() { require.NoError(t, closer()) }()

	seedPages(t, db)

	require.NoError(t, db.View(context.Background(), func(tx *docstore.Tx) error {
		doc, err := tx.FindOne(context.Background(), "pages", docstore.Find().Order(docstore.Descend).Where("views", 40))
		require.NoError(t, err)
		assert.Equal(t, "/blog/second", doc.Key())

		_, err = tx.FindOne(context.Background(), "pages", docstore.Find().Where("views", 41))
		assert.True(t, errors.Is(err, docstore.ErrDocumentNotFound))
		return nil
	}))
}

func TestTx_FindCanceled(t *testing.T) {
	db, closer := openDB(t, docstore.InMemory, nil)
	defer func() { require.NoError(t, closer()) }()

	seedPages(t, db)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var docs []docstore.Document
	err := db.View(context.Background(), func(tx *docstore.Tx) error {
		return tx.Find(ctx, "pages", nil, &docs)
	})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, docs)
}

func TestParseDate(t *testing.T) {
	for _, in := range []string{"2021-03-04", "2021-03-04T10:00:00Z", "2021-03-04T10:00:00.123+02:00", "2021-03-04 10:00:00"} {
		_, ok := docstore.ParseDate(in)
		assert.True(t, ok, in)
	}

	for _, in := range []string{"", "12", "hello", "2021-13-40"} {
		_, ok := docstore.ParseDate(in)
		assert.False(t, ok, in)
	}
}
