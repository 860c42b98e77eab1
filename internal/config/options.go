package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/denismitr/pathkeeper/docstore"
	"github.com/denismitr/pathkeeper/internal/logging"
)

const (
	DefaultPort              = 5000
	DefaultDBPath            = "pathkeeper.ldb"
	DefaultRecordsCollection = "records"
	DefaultItemsCollection   = "items"
	DefaultShutdownTimeout   = 10 * time.Second
)

// Options contains the command-line configuration of the server.
type Options struct {
	//
	// HTTP.
	//
	Port            int           // Port the HTTP server listens on.
	ShutdownTimeout time.Duration // Time given to in-flight requests on shutdown.
	//
	// Collections.
	//
	RecordsCollection string   // Collection of saved path records.
	ItemsCollection   string   // Collection receiving bulk inserted items.
	ReportCollections []string // Collections served by field discovery and reports.
	CoerceConditions  bool     // Coerce report condition values to sampled field types.
	//
	// Document store.
	//
	DBPath             string
	Persistence        string
	AsyncFlushInterval time.Duration
	ValueLoad          string
	ValueCacheBytes    uint64
	DisableAutoVacuum  bool
	AutoVacuumInterval time.Duration
	//
	// Diagnostics.
	//
	LogVerbosity int  // Number for the log level verbosity.
	LogDev       bool // Human readable development logs.

	// internal
	fs *pflag.FlagSet
}

// NewOptions returns a new Options struct initialized with default values.
func NewOptions() *Options {
	return &Options{
		Port:               DefaultPort,
		ShutdownTimeout:    DefaultShutdownTimeout,
		RecordsCollection:  DefaultRecordsCollection,
		ItemsCollection:    DefaultItemsCollection,
		ReportCollections:  []string{DefaultItemsCollection},
		DBPath:             DefaultDBPath,
		Persistence:        string(docstore.Sync),
		AsyncFlushInterval: time.Second,
		ValueLoad:          string(docstore.EagerLoad),
		AutoVacuumInterval: 10 * time.Minute,
		LogVerbosity:       logging.DEFAULT,
	}
}

// AddFlags binds the Options fields to command-line flags on the given FlagSet.
func (opts *Options) AddFlags(fs *pflag.FlagSet) {
	if fs == nil {
		fs = pflag.CommandLine
	}
	opts.fs = fs

	fs.IntVar(&opts.Port, "port", opts.Port,
		"The port the HTTP server listens on.")
	fs.DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", opts.ShutdownTimeout,
		"How long in-flight requests may take once shutdown starts.")
	fs.StringVar(&opts.RecordsCollection, "records-collection", opts.RecordsCollection,
		"Collection holding saved path records.")
	fs.StringVar(&opts.ItemsCollection, "items-collection", opts.ItemsCollection,
		"Collection receiving items posted to /api/items.")
	fs.StringSliceVar(&opts.ReportCollections, "report-collections", opts.ReportCollections,
		"Comma separated collections used by field discovery and reports.")
	fs.BoolVar(&opts.CoerceConditions, "coerce-conditions", opts.CoerceConditions,
		"Convert report condition values to the type of the field in a sample document.")
	fs.StringVar(&opts.DBPath, "db-path", opts.DBPath,
		fmt.Sprintf("Database file. %q keeps everything in memory.", docstore.InMemory))
	fs.StringVar(&opts.Persistence, "persistence", opts.Persistence,
		"Persistence strategy: sync flushes every commit, async flushes periodically.")
	fs.DurationVar(&opts.AsyncFlushInterval, "async-flush-interval", opts.AsyncFlushInterval,
		"Flush interval of the async persistence strategy.")
	fs.StringVar(&opts.ValueLoad, "value-load", opts.ValueLoad,
		"Value load strategy: eager keeps documents in memory, lazy reads them from disk through a cache.")
	fs.Uint64Var(&opts.ValueCacheBytes, "value-cache-bytes", opts.ValueCacheBytes,
		"Byte budget of the lazy value cache. 0 derives it from system memory.")
	fs.BoolVar(&opts.DisableAutoVacuum, "disable-auto-vacuum", opts.DisableAutoVacuum,
		"Disables compaction of the database file.")
	fs.DurationVar(&opts.AutoVacuumInterval, "auto-vacuum-interval", opts.AutoVacuumInterval,
		"How often the database file is checked for compaction.")
	fs.IntVarP(&opts.LogVerbosity, "v", "v", opts.LogVerbosity,
		"Number for the log level verbosity.")
	fs.BoolVar(&opts.LogDev, "log-dev", opts.LogDev,
		"Human readable development logging.")
}

// Complete performs post-processing of parsed command-line arguments.
func (opts *Options) Complete() error {
	opts.Persistence = strings.ToLower(strings.TrimSpace(opts.Persistence))
	opts.ValueLoad = strings.ToLower(strings.TrimSpace(opts.ValueLoad))

	collections := make([]string, 0, len(opts.ReportCollections))
	seen := make(map[string]struct{}, len(opts.ReportCollections))
	for _, c := range opts.ReportCollections {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		collections = append(collections, c)
	}
	opts.ReportCollections = collections

	return nil
}

// Validate checks the Options for invalid or conflicting values.
func (opts *Options) Validate() error {
	if opts.Port < 1 || opts.Port > 65535 {
		return fmt.Errorf("invalid value %d for flag %q: must be between 1 and 65535", opts.Port, "port")
	}

	if opts.DBPath == "" {
		return fmt.Errorf("flag %q must not be empty", "db-path")
	}

	for name, v := range map[string]string{
		"records-collection": opts.RecordsCollection,
		"items-collection":   opts.ItemsCollection,
	} {
		if v == "" {
			return fmt.Errorf("flag %q must not be empty", name)
		}
	}

	if opts.RecordsCollection == opts.ItemsCollection {
		return fmt.Errorf("records-collection and items-collection must differ, both are %q", opts.RecordsCollection)
	}

	switch docstore.PersistenceStrategy(opts.Persistence) {
	case docstore.Sync, docstore.Async:
	default:
		return fmt.Errorf("invalid value %q for flag %q: must be sync or async", opts.Persistence, "persistence")
	}

	switch docstore.ValueLoadStrategy(opts.ValueLoad) {
	case docstore.EagerLoad, docstore.LazyLoad:
	default:
		return fmt.Errorf("invalid value %q for flag %q: must be eager or lazy", opts.ValueLoad, "value-load")
	}

	for name, d := range map[string]time.Duration{
		"async-flush-interval": opts.AsyncFlushInterval,
		"auto-vacuum-interval": opts.AutoVacuumInterval,
		"shutdown-timeout":     opts.ShutdownTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("invalid value %s for flag %q: must be positive", d, name)
		}
	}

	if opts.LogVerbosity < 0 {
		return fmt.Errorf("invalid value %d for flag %q: must be >= 0", opts.LogVerbosity, "v")
	}

	return nil
}

// StoreConfig translates the document store flags.
func (opts *Options) StoreConfig() *docstore.Config {
	return &docstore.Config{
		PersistenceStrategy:       docstore.PersistenceStrategy(opts.Persistence),
		ValueLoadStrategy:         docstore.ValueLoadStrategy(opts.ValueLoad),
		AsyncPersistenceIntervals: opts.AsyncFlushInterval,
		DisableAutoVacuum:         opts.DisableAutoVacuum,
		AutoVacuumIntervals:       opts.AutoVacuumInterval,
		MaxCacheSize:              opts.ValueCacheBytes,
	}
}

// Addr is the listen address of the HTTP server.
func (opts *Options) Addr() string {
	return fmt.Sprintf(":%d", opts.Port)
}
