package docstore

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/denismitr/pathkeeper/internal/lru"
	"github.com/pkg/errors"
)

var ErrDbFileWriteFailed = errors.New("database write failed")
var ErrStorageFailed = errors.New("storage error")

type valueCache interface {
	Add(key uint64, value []byte) bool
	Get(key uint64) ([]byte, bool)
	Remove(key uint64)
	Purge()
}

// persistence is an append only command log. Values are addressed by
// their offset in the file so lazily loaded entries can be read back.
type persistence struct {
	mu       sync.Mutex
	vls      ValueLoadStrategy
	strategy PersistenceStrategy
	f        *os.File
	flushes  int
	cursor   int
	cache    valueCache
}

func newPersistence(filepath string, cfg *Config) (*persistence, error) {
	f, err := os.OpenFile(filepath, os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return nil, errors.Wrapf(ErrStorageFailed, "could not open %s: %s", filepath, err.Error())
	}

	p := &persistence{
		f:        f,
		vls:      cfg.ValueLoadStrategy,
		strategy: cfg.PersistenceStrategy,
		cache:    lru.NullCache{},
	}

	if cfg.ValueLoadStrategy == LazyLoad {
		c, err := lru.NewCache(defaultCacheShards, cfg.MaxCacheSize, nil)
		if err != nil {
			_ = f.Close()
			return nil, errors.Wrap(err, "could not create value cache")
		}
		p.cache = c
	}

	return p, nil
}

func (p *persistence) close() error {
	p.mu.Lock()
	defer func() {
		p.f = nil
		p.cache.Purge()
		p.mu.Unlock()
	}()

	syncErr := p.f.Sync()
	if err := p.f.Close(); err != nil {
		return errors.Wrap(err, "could not close file")
	}

	if syncErr != nil {
		return errors.Wrap(syncErr, "could not sync file on close")
	}

	return nil
}

// load replays the file through cb. A torn command at the end of the file,
// left by an interrupted write, is cut off.
func (p *persistence) load(cb func(d deserializable) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.f.Seek(0, io.SeekStart); err != nil {
		return errors.Wrapf(ErrStorageFailed, "could not seek file %s: %s", p.f.Name(), err.Error())
	}

	prs := newRespParser(p.f, p.vls)

	n, err := prs.parse(cb)
	if err != nil {
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			return err
		}

		if tErr := p.f.Truncate(int64(n)); tErr != nil {
			return errors.Wrapf(tErr, "could not truncate file after parse error")
		}
	}

	p.cursor = n

	return nil
}

func (p *persistence) save(commands []serializable) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rs := newRespSerializer(p.cursor)
	for _, cmd := range commands {
		cmd.serialize(rs)
	}

	if err := p.writeUnderLock(&rs.buf); err != nil {
		return err
	}

	for _, pp := range rs.positions {
		pp.ent.pos = pp.pos
		if p.vls == LazyLoad {
			p.cache.Add(pp.pos.offset, pp.ent.value)
			pp.ent.value = nil
		}
	}

	return nil
}

func (p *persistence) writeUnderLock(buf *bytes.Buffer) error {
	n, err := p.f.WriteAt(buf.Bytes(), int64(p.cursor))
	if err != nil {
		if n > 0 {
			// partial write occurred, must rollback the file
			if tErr := p.f.Truncate(int64(p.cursor)); tErr != nil {
				return errors.Wrapf(ErrDbFileWriteFailed, "%s and could not truncate file %s: %s", err.Error(), p.f.Name(), tErr.Error())
			}
		}

		return errors.Wrap(ErrDbFileWriteFailed, err.Error())
	}

	if p.strategy == Sync {
		if err := p.f.Sync(); err != nil {
			_ = p.f.Truncate(int64(p.cursor))
			return errors.Wrapf(ErrDbFileWriteFailed, "could not sync file %s: %s", p.f.Name(), err.Error())
		}
	}

	p.flushes++
	p.cursor += n
	return nil
}

func (p *persistence) sync() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.f == nil {
		return nil
	}

	if err := p.f.Sync(); err != nil {
		return errors.Wrapf(err, "cannot sync file %s", p.f.Name())
	}
	return nil
}

// writeAndSwap replaces the whole file with the contents of rs.
// Entry positions are updated only when the swap succeeded.
func (p *persistence) writeAndSwap(rs *respSerializer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tmpFName := p.f.Name() + ".tmp"
	tmpF, err := os.Create(tmpFName)
	if err != nil {
		return errors.Wrapf(err, "could not create %s file for auto vacuum", tmpFName)
	}

	defer func() {
		_ = tmpF.Close()
		_ = os.RemoveAll(tmpFName)
	}()

	n, err := tmpF.Write(rs.buf.Bytes())
	if err != nil {
		return errors.Wrapf(err, "auto vacuum could not write into %s file", tmpFName)
	}

	if err := tmpF.Sync(); err != nil {
		return errors.Wrapf(err, "auto vacuum could not sync %s file", tmpFName)
	}

	oldName := p.f.Name()
	if err := p.f.Close(); err != nil {
		return errors.Wrapf(err, "auto vacuum could not close %s file to swap it", oldName)
	}

	if rnErr := os.Rename(tmpFName, oldName); rnErr != nil {
		resultErr := errors.Wrapf(rnErr, "auto vacuum could not swap %s file for %s", oldName, tmpFName)
		p.f, err = os.OpenFile(oldName, os.O_CREATE|os.O_RDWR, 0666)
		if err != nil {
			return errors.Wrapf(resultErr, "and could not reopen old file: %s", err.Error())
		}
		return resultErr
	}

	p.f, err = os.OpenFile(oldName, os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return errors.Wrapf(err, "could not reopen swapped file: %s", oldName)
	}

	p.cursor = n
	p.cache.Purge()

	for _, pp := range rs.positions {
		pp.ent.pos = pp.pos
	}

	return nil
}

// loadValue reads a value blob by its position. Callers hold at least
// the engine read lock, so the file is never swapped underneath.
func (p *persistence) loadValue(pos position) ([]byte, error) {
	if v, ok := p.cache.Get(pos.offset); ok {
		return v, nil
	}

	blob := make([]byte, pos.size)
	if _, err := p.f.ReadAt(blob, int64(pos.offset)); err != nil {
		return nil, errors.Wrapf(
			ErrStorageFailed,
			"could not read blob at offset %d in file %s: %s",
			pos.offset, p.f.Name(), err.Error(),
		)
	}

	p.cache.Add(pos.offset, blob)

	return blob, nil
}
