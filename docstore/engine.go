package docstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/btree"
)

var ErrKeyAlreadyExists = errors.New("key already exists")
var ErrKeyDoesNotExist = errors.New("key does not exist in DB")
var ErrDatabaseAlreadyClosed = errors.New("database already closed")

const castPanic = "how could primary keys item not be of type *entry"

// InMemory can be passed to Open instead of a file path.
const InMemory = ":memory:"

type entryIterator func(ent *entry) bool

type engine struct {
	dbFile      string
	cfg         *Config
	persistence *persistence
	collections map[string]*btree.BTree
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.RWMutex
	// garbage counts replaced and deleted values still present in the file
	garbage uint64
	onError func(err error)
	closed  bool
}

func newEngine(dbFile string, cfg *Config) *engine {
	return &engine{
		dbFile:      dbFile,
		cfg:         cfg,
		collections: make(map[string]*btree.BTree),
		stopCh:      make(chan struct{}),
	}
}

func (e *engine) init() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dbFile == InMemory {
		return nil
	}

	p, err := newPersistence(e.dbFile, e.cfg)
	if err != nil {
		return err
	}

	if err := p.load(func(d deserializable) error {
		return d.deserialize(e)
	}); err != nil {
		_ = p.close()
		return errors.Wrapf(err, "could not load %s", e.dbFile)
	}

	e.persistence = p

	if e.cfg.PersistenceStrategy == Async {
		e.wg.Add(1)
		go e.asyncFlush(e.cfg.AsyncPersistenceIntervals)
	}

	if !e.cfg.DisableAutoVacuum && !e.cfg.AutoVacuumOnlyOnClose {
		e.wg.Add(1)
		go e.scheduleVacuum(e.cfg.AutoVacuumIntervals)
	}

	return nil
}

func (e *engine) asyncFlush(d time.Duration) {
	defer e.wg.Done()
	t := time.NewTicker(d)
	defer t.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-t.C:
			if err := e.persistence.sync(); err != nil {
				e.reportError(errors.Wrap(err, "async flush failed"))
			}
		}
	}
}

func (e *engine) scheduleVacuum(d time.Duration) {
	defer e.wg.Done()
	t := time.NewTicker(d)
	defer t.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-t.C:
			e.mu.Lock()
			if e.closed || e.garbage < e.cfg.AutoVacuumMinSize {
				e.mu.Unlock()
				continue
			}

			err := e.runVacuumUnderLock()
			e.mu.Unlock()

			if err != nil {
				e.reportError(errors.Wrap(err, "auto vacuum failed"))
			}
		}
	}
}

func (e *engine) reportError(err error) {
	e.mu.RLock()
	fn := e.onError
	e.mu.RUnlock()

	if fn != nil {
		fn(err)
	}
}

// runVacuumUnderLock rewrites the file with only the live entries.
func (e *engine) runVacuumUnderLock() error {
	if e.persistence == nil {
		return nil
	}

	rs := newRespSerializer(0)

	for _, name := range e.collectionNamesUnderLock() {
		var err error
		e.collections[name].Ascend(nil, func(item interface{}) bool {
			ent, ok := item.(*entry)
			if !ok {
				panic(castPanic)
			}

			var v []byte
			v, err = e.valueOf(ent)
			if err != nil {
				return false
			}

			rs.serializeSetCommand(ent, v)
			return true
		})

		if err != nil {
			return errors.Wrapf(err, "vacuum could not read collection %s", name)
		}
	}

	if err := e.persistence.writeAndSwap(rs); err != nil {
		return err
	}

	e.garbage = 0
	return nil
}

func (e *engine) close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrDatabaseAlreadyClosed
	}
	e.closed = true
	e.mu.Unlock()

	// background jobs take the lock themselves, stop them before locking
	close(e.stopCh)
	e.wg.Wait()

	e.mu.Lock()
	defer func() {
		e.collections = nil
		e.persistence = nil
		e.mu.Unlock()
	}()

	if e.persistence == nil {
		return nil
	}

	var err error
	if !e.cfg.DisableAutoVacuum {
		err = e.runVacuumUnderLock()
	}

	if cErr := e.persistence.close(); cErr != nil && err == nil {
		err = cErr
	}

	return err
}

func (e *engine) tree(collection string, create bool) *btree.BTree {
	tr := e.collections[collection]
	if tr == nil && create {
		tr = btree.New(byKeys)
		e.collections[collection] = tr
	}

	return tr
}

func (e *engine) getUnderLock(collection, key string) (*entry, error) {
	tr := e.tree(collection, false)
	if tr == nil {
		return nil, errors.Wrapf(ErrKeyDoesNotExist, "key %s does not exist in collection %s", key, collection)
	}

	found := tr.Get(&entry{key: key})
	if found == nil {
		return nil, errors.Wrapf(ErrKeyDoesNotExist, "key %s does not exist in collection %s", key, collection)
	}

	ent, ok := found.(*entry)
	if !ok {
		panic(castPanic)
	}

	return ent, nil
}

// putUnderLock inserts or replaces the entry and returns the replaced one
func (e *engine) putUnderLock(ent *entry) *entry {
	existing := e.tree(ent.collection, true).Set(ent)
	if existing == nil {
		return nil
	}

	prev, ok := existing.(*entry)
	if !ok {
		panic(castPanic)
	}

	return prev
}

func (e *engine) removeUnderLock(collection, key string) (*entry, error) {
	tr := e.tree(collection, false)
	if tr == nil {
		return nil, errors.Wrapf(ErrKeyDoesNotExist, "key %s does not exist in collection %s", key, collection)
	}

	removed := tr.Delete(&entry{key: key})
	if removed == nil {
		return nil, errors.Wrapf(ErrKeyDoesNotExist, "key %s does not exist in collection %s", key, collection)
	}

	ent, ok := removed.(*entry)
	if !ok {
		panic(castPanic)
	}

	if tr.Len() == 0 {
		delete(e.collections, collection)
	}

	return ent, nil
}

func (e *engine) valueOf(ent *entry) ([]byte, error) {
	if ent.value != nil {
		return ent.value, nil
	}

	if e.persistence == nil {
		return nil, errors.Wrapf(ErrStorageFailed, "value of key %s is not loaded", ent.key)
	}

	return e.persistence.loadValue(ent.pos)
}

func (e *engine) count(collection string) int {
	tr := e.tree(collection, false)
	if tr == nil {
		return 0
	}

	return tr.Len()
}

func (e *engine) collectionNamesUnderLock() []string {
	names := make([]string, 0, len(e.collections))
	for name := range e.collections {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// scan walks the collection in the order and bounds of q until ir returns false
func (e *engine) scan(ctx context.Context, collection string, q *FindOptions, ir entryIterator) error {
	tr := e.tree(collection, false)
	if tr == nil {
		return nil
	}

	var ctxErr error
	iter := func(item interface{}) bool {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			return false
		}

		ent, ok := item.(*entry)
		if !ok {
			panic(castPanic)
		}

		return ir(ent)
	}

	switch {
	case q.keyRange != nil:
		from, to := q.keyRange.From, q.keyRange.To
		if q.order == Descend {
			tr.Descend(&entry{key: to}, func(item interface{}) bool {
				k := item.(*entry).key
				if k >= to {
					return true
				}
				if k < from {
					return false
				}
				return iter(item)
			})
		} else {
			tr.Ascend(&entry{key: from}, func(item interface{}) bool {
				if item.(*entry).key >= to {
					return false
				}
				return iter(item)
			})
		}
	case q.prefix != "":
		if q.order == Descend {
			// no valid utf-8 key continues a prefix with 0xff
			tr.Descend(&entry{key: q.prefix + "\xff"}, func(item interface{}) bool {
				if !strings.HasPrefix(item.(*entry).key, q.prefix) {
					return false
				}
				return iter(item)
			})
		} else {
			tr.Ascend(&entry{key: q.prefix}, func(item interface{}) bool {
				if !strings.HasPrefix(item.(*entry).key, q.prefix) {
					return false
				}
				return iter(item)
			})
		}
	default:
		if q.order == Descend {
			tr.Descend(nil, iter)
		} else {
			tr.Ascend(nil, iter)
		}
	}

	return ctxErr
}
