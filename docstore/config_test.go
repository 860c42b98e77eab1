package docstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_withDefaults(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		cfg, err := (*Config)(nil).withDefaults()
		require.NoError(t, err)

		assert.Equal(t, Sync, cfg.PersistenceStrategy)
		assert.Equal(t, EagerLoad, cfg.ValueLoadStrategy)
		assert.Equal(t, defaultAutovacuumIntervals, cfg.AutoVacuumIntervals)
		assert.Equal(t, defaultAutoVacuumMinSize, cfg.AutoVacuumMinSize)
		assert.NotZero(t, cfg.MaxCacheSize)
	})

	t.Run("caller config is not mutated", func(t *testing.T) {
		in := &Config{PersistenceStrategy: Async, ValueLoadStrategy: LazyLoad, MaxCacheSize: 4096}
		cfg, err := in.withDefaults()
		require.NoError(t, err)

		assert.Equal(t, defaultPersistenceIntervals, cfg.AsyncPersistenceIntervals)
		assert.Equal(t, uint64(4096), cfg.MaxCacheSize)
		assert.Equal(t, time.Duration(0), in.AsyncPersistenceIntervals)
		assert.Equal(t, time.Duration(0), in.AutoVacuumIntervals)
	})
}

func Test_cacheSizeFromMemory(t *testing.T) {
	assert.Equal(t, defaultMaxCacheSize, cacheSizeFromMemory(0))
	assert.Equal(t, defaultMaxCacheSize, cacheSizeFromMemory(1024))
	assert.Equal(t, uint64(256<<20), cacheSizeFromMemory(8<<30))
}
