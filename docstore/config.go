package docstore

import (
	"time"

	"github.com/jinzhu/copier"
	"github.com/pbnjay/memory"
	"github.com/pkg/errors"
)

const defaultAutoVacuumMinSize uint64 = 1000
const defaultMaxCacheSize uint64 = 64 << 20
const defaultCacheShards = 16

var defaultAutovacuumIntervals = 10 * time.Minute
var defaultPersistenceIntervals = 1 * time.Second

type ValueLoadStrategy string
type PersistenceStrategy string

const (
	Async PersistenceStrategy = "async"
	Sync  PersistenceStrategy = "sync"
)

const (
	LazyLoad  ValueLoadStrategy = "lazy"
	EagerLoad ValueLoadStrategy = "eager"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	PersistenceStrategy       PersistenceStrategy
	ValueLoadStrategy         ValueLoadStrategy
	AsyncPersistenceIntervals time.Duration
	DisableAutoVacuum         bool
	AutoVacuumOnlyOnClose     bool
	AutoVacuumMinSize         uint64
	AutoVacuumIntervals       time.Duration
	// MaxCacheSize is the byte budget of the value cache used with LazyLoad.
	// Zero derives it from the total system memory.
	MaxCacheSize uint64
}

// withDefaults returns a copy of cfg with every unset field defaulted.
// The caller's config is never mutated.
func (cfg *Config) withDefaults() (*Config, error) {
	var out Config
	if cfg != nil {
		if err := copier.Copy(&out, cfg); err != nil {
			return nil, errors.Wrap(ErrInvalidConfig, err.Error())
		}
	}

	switch out.PersistenceStrategy {
	case "":
		out.PersistenceStrategy = Sync
	case Sync, Async:
	default:
		return nil, errors.Wrapf(ErrInvalidConfig, "unknown persistence strategy %q", out.PersistenceStrategy)
	}

	if out.PersistenceStrategy == Async && out.AsyncPersistenceIntervals == 0 {
		out.AsyncPersistenceIntervals = defaultPersistenceIntervals
	}

	switch out.ValueLoadStrategy {
	case "":
		out.ValueLoadStrategy = EagerLoad
	case EagerLoad, LazyLoad:
	default:
		return nil, errors.Wrapf(ErrInvalidConfig, "unknown value load strategy %q", out.ValueLoadStrategy)
	}

	if out.AutoVacuumIntervals == 0 {
		out.AutoVacuumIntervals = defaultAutovacuumIntervals
	}

	if out.AutoVacuumMinSize == 0 {
		out.AutoVacuumMinSize = defaultAutoVacuumMinSize
	}

	if out.MaxCacheSize == 0 {
		out.MaxCacheSize = cacheSizeFromMemory(memory.TotalMemory())
	}

	return &out, nil
}

// cacheSizeFromMemory gives the value cache 1/32 of the system memory,
// or a fixed budget when the total is unknown.
func cacheSizeFromMemory(total uint64) uint64 {
	if total == 0 {
		return defaultMaxCacheSize
	}

	size := total / 32
	if size < defaultCacheShards*1024 {
		return defaultMaxCacheSize
	}

	return size
}
