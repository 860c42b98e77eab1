package report

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/denismitr/pathkeeper/docstore"
	"github.com/denismitr/pathkeeper/internal/logging"
)

type failingStore struct{}

func (failingStore) View(context.Context, docstore.UserCallback) error {
	return errors.New("store is down")
}

func (failingStore) Update(context.Context, docstore.UserCallback) error {
	return errors.New("store is down")
}

type reportTestSuite struct {
	suite.Suite
	db     *docstore.DB
	closer docstore.Closer
	ctx    context.Context
}

func TestReport(t *testing.T) {
	suite.Run(t, &reportTestSuite{})
}

func (rts *reportTestSuite) SetupTest() {
	db, closer, err := docstore.Open(docstore.InMemory, nil)
	rts.Require().NoError(err)

	rts.db = db
	rts.closer = closer
	rts.ctx = logging.IntoContext(context.Background(), testr.New(rts.T()))

	rts.Require().NoError(db.Update(rts.ctx, func(tx *docstore.Tx) error {
		for k, v := range map[string]string{
			"1": `{"_id":"1","name":"lamp","price":12.5,"stock":3}`,
			"2": `{"_id":"2","name":"desk","price":99,"stock":0}`,
			"3": `{"_id":"3","name":"chair","price":12.5,"stock":7}`,
		} {
			if err := tx.Insert("items", k, v); err != nil {
				return err
			}
		}

		for k, v := range map[string]string{
			"a": `{"_id":"a","status":"paid","placed":"2021-03-04T10:00:00Z","total":25}`,
			"b": `{"_id":"b","status":"new","placed":"2021-03-05T08:30:00Z","total":99}`,
		} {
			if err := tx.Insert("orders", k, v); err != nil {
				return err
			}
		}
		return nil
	}))
}

func (rts *reportTestSuite) TearDownTest() {
	rts.Require().NoError(rts.closer())
}

func (rts *reportTestSuite) TestFields() {
	svc := New(rts.db, []string{"items", "orders", "empty"}, false)

	fields, err := svc.Fields(rts.ctx)
	rts.Require().NoError(err)

	rts.Equal([]string{"_id", "name", "price", "stock"}, fields["items"])
	rts.Equal([]string{"_id", "status", "placed", "total"}, fields["orders"])
	rts.Equal([]string{}, fields["empty"])
}

func (rts *reportTestSuite) TestGenerateWithoutCoercion() {
	svc := New(rts.db, []string{"items", "orders"}, false)

	req, err := ParseRequest([]byte(`{
		"items_fields": ["name", "price"],
		"orders_fields": ["status"],
		"conditions": {"price": 12.5, "status": "paid"}
	}`), svc.Collections())
	rts.Require().NoError(err)

	out, err := svc.Generate(rts.ctx, req)
	rts.Require().NoError(err)

	rts.Require().Len(out["items"], 2)
	rts.JSONEq(`{"_id":"1","name":"lamp","price":12.5}`, string(out["items"][0]))
	rts.JSONEq(`{"_id":"3","name":"chair","price":12.5}`, string(out["items"][1]))

	rts.Require().Len(out["orders"], 1)
	rts.JSONEq(`{"_id":"a","status":"paid"}`, string(out["orders"][0]))
}

func (rts *reportTestSuite) TestGenerateStringConditionsNeedCoercion() {
	body := []byte(`{
		"items_fields": ["name", "price"],
		"orders_fields": ["placed", "total"],
		"conditions": {"price": "12.5", "placed": "2021-03-05T08:30:00Z", "total": "99"}
	}`)

	plain := New(rts.db, []string{"items", "orders"}, false)
	req, err := ParseRequest(body, plain.Collections())
	rts.Require().NoError(err)

	out, err := plain.Generate(rts.ctx, req)
	rts.Require().NoError(err)
	rts.Empty(out["items"], "string condition does not match a number field")
	rts.NotNil(out["items"])

	coercing := New(rts.db, []string{"items", "orders"}, true)
	out, err = coercing.Generate(rts.ctx, req)
	rts.Require().NoError(err)
	rts.Len(out["items"], 2)
	rts.Require().Len(out["orders"], 1)
	rts.JSONEq(`{"_id":"b","placed":"2021-03-05T08:30:00Z","total":99}`, string(out["orders"][0]))
}

func (rts *reportTestSuite) TestGenerateWithoutFieldsReturnsWholeCollection() {
	svc := New(rts.db, []string{"items", "empty"}, true)

	req, err := ParseRequest([]byte(`{"conditions": {"name": "lamp"}}`), svc.Collections())
	rts.Require().NoError(err)

	out, err := svc.Generate(rts.ctx, req)
	rts.Require().NoError(err)
	rts.Len(out["items"], 3)
	rts.Equal([]json.RawMessage{}, out["empty"])
}

func (rts *reportTestSuite) TestInsertItems() {
	svc := New(rts.db, []string{"items"}, false)

	docs, err := svc.InsertItems(rts.ctx, "items", []byte(`[{"name":"shelf","price":40},{"_id":"own","name":"rug"}]`))
	rts.Require().NoError(err)
	rts.Require().Len(docs, 2)

	var first map[string]interface{}
	rts.Require().NoError(json.Unmarshal(docs[0], &first))
	id, ok := first["_id"].(string)
	rts.Require().True(ok)
	rts.Len(id, 36)
	rts.Equal("shelf", first["name"])

	rts.JSONEq(`{"_id":"own","name":"rug"}`, string(docs[1]))
	rts.Equal(5, rts.db.Count("items"))

	rts.Require().NoError(rts.db.View(rts.ctx, func(tx *docstore.Tx) error {
		doc, err := tx.Get("items", id)
		rts.Require().NoError(err)
		rts.Equal("shelf", doc.Get("name").String())
		return nil
	}))

	_, err = svc.InsertItems(rts.ctx, "items", []byte(`{"name":"not in an array"}`))
	rts.True(errors.Is(err, ErrNotAnArray))

	_, err = svc.InsertItems(rts.ctx, "items", []byte(`[{"_id":"x"},{"_id":"1"}]`))
	rts.True(errors.Is(err, ErrStorageFailure))
	rts.Equal(5, rts.db.Count("items"), "a failed batch inserts nothing")
}

func (rts *reportTestSuite) TestInsertItems_RejectsEmptyAndNonObjects() {
	svc := New(rts.db, []string{"items"}, false)

	_, err := svc.InsertItems(rts.ctx, "items", []byte(`[]`))
	rts.True(errors.Is(err, ErrEmptyItems))

	for _, body := range []string{`[1,"x"]`, `[{"_id":"ok"},null]`, `[{"_id":"ok"},[{"nested":true}]]`} {
		_, err = svc.InsertItems(rts.ctx, "items", []byte(body))
		rts.True(errors.Is(err, ErrItemNotObject), body)
		rts.False(errors.Is(err, ErrStorageFailure), body)
	}

	rts.Equal(3, rts.db.Count("items"), "rejected batches insert nothing")
	rts.Require().NoError(rts.db.View(rts.ctx, func(tx *docstore.Tx) error {
		_, err := tx.Get("items", "ok")
		rts.True(errors.Is(err, docstore.ErrKeyDoesNotExist))
		return nil
	}))
}

func TestService_StorageFailure(t *testing.T) {
	svc := New(failingStore{}, []string{"items", "orders"}, false)
	ctx := context.Background()

	_, err := svc.Fields(ctx)
	assert.True(t, errors.Is(err, ErrStorageFailure))

	req, err := ParseRequest([]byte(`{}`), svc.Collections())
	require.NoError(t, err)

	_, err = svc.Generate(ctx, req)
	assert.True(t, errors.Is(err, ErrStorageFailure))

	_, err = svc.InsertItems(ctx, "items", []byte(`[{}]`))
	assert.True(t, errors.Is(err, ErrStorageFailure))
}
