// Package report discovers collection fields from sample documents and runs
// ad-hoc filtered and projected queries over several collections at once.
package report

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/denismitr/pathkeeper/docstore"
	"github.com/denismitr/pathkeeper/internal/logging"
	"github.com/denismitr/pathkeeper/internal/metrics"
)

var ErrStorageFailure = errors.New("report storage failure")

type Store interface {
	View(ctx context.Context, cb docstore.UserCallback) error
	Update(ctx context.Context, cb docstore.UserCallback) error
}

type Service struct {
	store       Store
	collections []string
	coerce      bool
}

// New creates a report service over collections. With coerce, condition
// values are converted to the types observed in a sample document.
func New(store Store, collections []string, coerce bool) *Service {
	return &Service{
		store:       store,
		collections: append([]string(nil), collections...),
		coerce:      coerce,
	}
}

func (s *Service) Collections() []string {
	return append([]string(nil), s.collections...)
}

// Fields returns the inferred field names of every configured collection.
// An empty collection yields an empty list.
func (s *Service) Fields(ctx context.Context) (map[string][]string, error) {
	out := make(map[string][]string, len(s.collections))

	if err := s.store.View(ctx, func(tx *docstore.Tx) error {
		for _, c := range s.collections {
			sample, err := sampleOf(ctx, tx, c)
			if err != nil {
				return err
			}
			out[c] = InferFields(sample)
		}
		return nil
	}); err != nil {
		return nil, s.storageFailure(ctx, "fields", err)
	}

	return out, nil
}

// Generate runs one query per configured collection with the conditions
// that belong to it and returns the matching documents keyed by collection.
func (s *Service) Generate(ctx context.Context, req *Request) (map[string][]json.RawMessage, error) {
	logger := logging.FromContext(ctx)
	buckets := Partition(req.Fields, req.Conditions)

	var mu sync.Mutex
	out := make(map[string][]json.RawMessage, len(s.collections))

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range s.collections {
		c := c
		g.Go(func() error {
			docs, err := s.query(gctx, c, req.Fields[c], buckets[c])
			if err != nil {
				return err
			}

			mu.Lock()
			out[c] = docs
			mu.Unlock()

			metrics.RecordReport(c)
			logger.V(logging.DEBUG).Info("Collection report ready", "collection", c, "conditions", len(buckets[c]), "documents", len(docs))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, s.storageFailure(ctx, "report", err)
	}

	return out, nil
}

func (s *Service) query(ctx context.Context, collection string, fields []string, conds Conditions) ([]json.RawMessage, error) {
	result := []json.RawMessage{}

	err := s.store.View(ctx, func(tx *docstore.Tx) error {
		if s.coerce && len(conds) > 0 {
			sample, err := sampleOf(ctx, tx, collection)
			if err != nil {
				return err
			}
			conds = Coerce(sample, conds)
		}

		opts := docstore.Find()
		for _, k := range sortedKeys(conds) {
			opts.Where(docstore.EscapeField(k), conds[k])
		}

		if len(fields) > 0 {
			opts.Project(fields...)
		}

		var docs []docstore.Document
		if err := tx.Find(ctx, collection, opts, &docs); err != nil {
			return err
		}

		for i := range docs {
			result = append(result, json.RawMessage(docs[i].Value()))
		}

		return nil
	})

	if err != nil {
		return nil, errors.Wrapf(err, "query of collection %s failed", collection)
	}

	return result, nil
}

// sampleOf returns the first document of the collection or nil when it is empty.
func sampleOf(ctx context.Context, tx *docstore.Tx, collection string) ([]byte, error) {
	doc, err := tx.FindOne(ctx, collection, nil)
	if err != nil {
		if errors.Is(err, docstore.ErrDocumentNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return doc.Value(), nil
}

func sortedKeys(c Conditions) []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Service) storageFailure(ctx context.Context, op string, err error) error {
	metrics.RecordStorageFailure(op)
	logging.FromContext(ctx).V(logging.DEFAULT).Error(err, "Report store call failed", "operation", op)

	return errors.Wrapf(ErrStorageFailure, "%s: %s", op, err.Error())
}
