// Package registry stores JSON payloads by canonical path and tracks the
// paths that can be read back through the dynamic read handler.
package registry

import (
	"context"
	"encoding/json"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/denismitr/pathkeeper/docstore"
	"github.com/denismitr/pathkeeper/internal/logging"
	"github.com/denismitr/pathkeeper/internal/metrics"
	"github.com/denismitr/pathkeeper/internal/paths"
)

var (
	ErrInvalidIdentifier = paths.ErrInvalidIdentifier
	ErrNotFound          = errors.New("record not found")
	ErrStorageFailure    = errors.New("storage failure")
	ErrReservedPath      = errors.Wrap(ErrInvalidIdentifier, "path is served by a fixed route")
)

const DefaultCollection = "records"

// Store runs transactions against the document store.
type Store interface {
	View(ctx context.Context, cb docstore.UserCallback) error
	Update(ctx context.Context, cb docstore.UserCallback) error
}

// Record is a payload saved under a canonical path.
type Record struct {
	Path string          `json:"path"`
	Data json.RawMessage `json:"data"`
}

type Service struct {
	store      Store
	collection string
	routes     *RouteTable
}

// New creates a service keeping records in collection. A nil routes gets a fresh table.
func New(store Store, collection string, routes *RouteTable) *Service {
	if collection == "" {
		collection = DefaultCollection
	}

	if routes == nil {
		routes = NewRouteTable()
	}

	return &Service{store: store, collection: collection, routes: routes}
}

func (s *Service) Routes() *RouteTable {
	return s.routes
}

// Save replaces the record at the canonical form of identifier with data
// and registers the path for dynamic reads. Reserved paths are refused.
func (s *Service) Save(ctx context.Context, identifier string, data json.RawMessage) (*Record, error) {
	logger := logging.FromContext(ctx)

	p, err := paths.Normalize(identifier)
	if err != nil {
		return nil, err
	}

	if s.routes.Reserved(p) {
		return nil, errors.WithMessagef(ErrReservedPath, "%q", identifier)
	}

	if len(data) == 0 {
		data = json.RawMessage("null")
	}

	rec := &Record{Path: p, Data: data}

	b, err := json.Marshal(rec)
	if err != nil {
		return nil, errors.Wrapf(docstore.ErrInvalidDocument, "record data of %s: %s", p, err.Error())
	}

	if err := s.store.Update(ctx, func(tx *docstore.Tx) error {
		return tx.InsertOrReplace(s.collection, p, b)
	}); err != nil {
		return nil, s.storageFailure(logger, "save", p, err)
	}

	if s.routes.Register(p) {
		metrics.SetRegisteredRoutes(s.routes.Len())
		logger.V(logging.VERBOSE).Info("Registered dynamic route", "path", p)
	}

	metrics.RecordSave()
	logger.V(logging.DEBUG).Info("Saved record", "path", p, "bytes", len(data))

	return rec, nil
}

// Lookup finds the record stored at exactly the canonical form of identifier.
func (s *Service) Lookup(ctx context.Context, identifier string) (*Record, error) {
	p, err := paths.Normalize(identifier)
	if err != nil {
		metrics.RecordLookup(metrics.OutcomeInvalid)
		return nil, err
	}

	rec, err := s.Get(ctx, p)
	switch {
	case err == nil:
		metrics.RecordLookup(metrics.OutcomeFound)
	case errors.Is(err, ErrNotFound):
		metrics.RecordLookup(metrics.OutcomeNotFound)
	default:
		metrics.RecordLookup(metrics.OutcomeError)
	}

	return rec, err
}

// Resolve serves a dynamic read. Only registered paths are read and every
// read goes to the store.
func (s *Service) Resolve(ctx context.Context, requestPath string) (*Record, error) {
	p, err := paths.Normalize(requestPath)
	if err != nil {
		metrics.RecordDynamicRead(metrics.OutcomeInvalid)
		return nil, errors.Wrapf(ErrNotFound, "%s is not a path", requestPath)
	}

	if !s.routes.Has(p) {
		metrics.RecordDynamicRead(metrics.OutcomeNotFound)
		return nil, errors.Wrapf(ErrNotFound, "no route registered for %s", p)
	}

	rec, err := s.Get(ctx, p)
	switch {
	case err == nil:
		metrics.RecordDynamicRead(metrics.OutcomeFound)
	case errors.Is(err, ErrNotFound):
		metrics.RecordDynamicRead(metrics.OutcomeNotFound)
	default:
		metrics.RecordDynamicRead(metrics.OutcomeError)
	}

	return rec, err
}

// Get reads the record of a canonical path.
func (s *Service) Get(ctx context.Context, canonicalPath string) (*Record, error) {
	var rec Record

	err := s.store.View(ctx, func(tx *docstore.Tx) error {
		doc, err := tx.Get(s.collection, canonicalPath)
		if err != nil {
			return err
		}

		return doc.Unmarshal(&rec)
	})

	if err != nil {
		if errors.Is(err, docstore.ErrKeyDoesNotExist) {
			return nil, errors.Wrapf(ErrNotFound, "path %s", canonicalPath)
		}

		return nil, s.storageFailure(logging.FromContext(ctx), "get", canonicalPath, err)
	}

	return &rec, nil
}

// Paths lists every stored canonical path in ascending order.
func (s *Service) Paths(ctx context.Context) ([]string, error) {
	var keys []string

	if err := s.store.View(ctx, func(tx *docstore.Tx) error {
		keys = tx.Keys(s.collection)
		return nil
	}); err != nil {
		return nil, s.storageFailure(logging.FromContext(ctx), "paths", "", err)
	}

	return keys, nil
}

func (s *Service) storageFailure(logger logr.Logger, op, path string, err error) error {
	metrics.RecordStorageFailure(op)
	logger.V(logging.DEFAULT).Error(err, "Store call failed", "operation", op, "path", path)

	return errors.Wrapf(ErrStorageFailure, "%s %s: %s", op, path, err.Error())
}
