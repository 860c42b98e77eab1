package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denismitr/pathkeeper/docstore"
)

func parse(t *testing.T, args ...string) (*Options, error) {
	t.Helper()

	opts := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)
	require.NoError(t, fs.Parse(args))
	require.NoError(t, opts.Complete())

	return opts, opts.Validate()
}

func TestDefaults(t *testing.T) {
	opts, err := parse(t)
	require.NoError(t, err)

	assert.Equal(t, ":5000", opts.Addr())
	assert.Equal(t, "records", opts.RecordsCollection)
	assert.Equal(t, []string{"items"}, opts.ReportCollections)

	want := &docstore.Config{
		PersistenceStrategy:       docstore.Sync,
		ValueLoadStrategy:         docstore.EagerLoad,
		AsyncPersistenceIntervals: time.Second,
		AutoVacuumIntervals:       10 * time.Minute,
	}
	if diff := cmp.Diff(want, opts.StoreConfig()); diff != "" {
		t.Errorf("unexpected store config (-want +got):\n%s", diff)
	}
}

func TestFlags(t *testing.T) {
	opts, err := parse(t,
		"--port=8080",
		"--db-path=:memory:",
		"--report-collections=orders, items,orders,,users",
		"--persistence=ASYNC",
		"--value-load=lazy",
		"--value-cache-bytes=1024",
		"--coerce-conditions",
		"-v=4",
	)
	require.NoError(t, err)

	assert.Equal(t, 8080, opts.Port)
	assert.Equal(t, docstore.InMemory, opts.DBPath)
	assert.Equal(t, []string{"orders", "items", "users"}, opts.ReportCollections)
	assert.True(t, opts.CoerceConditions)
	assert.Equal(t, 4, opts.LogVerbosity)

	cfg := opts.StoreConfig()
	assert.Equal(t, docstore.Async, cfg.PersistenceStrategy)
	assert.Equal(t, docstore.LazyLoad, cfg.ValueLoadStrategy)
	assert.Equal(t, uint64(1024), cfg.MaxCacheSize)
}

func TestValidate(t *testing.T) {
	tt := []struct {
		name string
		args []string
	}{
		{name: "port too big", args: []string{"--port=70000"}},
		{name: "port zero", args: []string{"--port=0"}},
		{name: "unknown persistence", args: []string{"--persistence=never"}},
		{name: "unknown value load", args: []string{"--value-load=sometimes"}},
		{name: "empty db path", args: []string{"--db-path="}},
		{name: "same collections", args: []string{"--records-collection=items"}},
		{name: "negative verbosity", args: []string{"-v=-1"}},
		{name: "zero vacuum interval", args: []string{"--auto-vacuum-interval=0s"}},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parse(t, tc.args...)
			assert.Error(t, err)
		})
	}
}

func TestNewOptionsIsolation(t *testing.T) {
	a, b := NewOptions(), NewOptions()
	a.ReportCollections[0] = "changed"

	if diff := cmp.Diff(NewOptions(), b, cmpopts.IgnoreUnexported(Options{})); diff != "" {
		t.Errorf("defaults shared between instances (-want +got):\n%s", diff)
	}
}
