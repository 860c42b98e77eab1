package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/denismitr/pathkeeper/docstore"
	"github.com/denismitr/pathkeeper/internal/config"
	"github.com/denismitr/pathkeeper/internal/logging"
	"github.com/denismitr/pathkeeper/internal/metrics"
	"github.com/denismitr/pathkeeper/internal/registry"
	"github.com/denismitr/pathkeeper/internal/report"
	"github.com/denismitr/pathkeeper/internal/server"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	opts := config.NewOptions()
	opts.AddFlags(pflag.CommandLine)
	pflag.Parse()

	if err := opts.Complete(); err != nil {
		return err
	}

	logger, err := logging.NewLogger(opts.LogVerbosity, opts.LogDev)
	if err != nil {
		return err
	}
	setupLog := logger.WithName("setup")

	if err := opts.Validate(); err != nil {
		setupLog.Error(err, "Invalid flags")
		return err
	}

	flags := make(map[string]interface{})
	pflag.VisitAll(func(f *pflag.Flag) {
		flags[f.Name] = f.Value.String()
	})
	setupLog.Info("Flags processed", "flags", flags)

	db, closeDB, err := docstore.Open(opts.DBPath, opts.StoreConfig())
	if err != nil {
		setupLog.Error(err, "Failed to open document store", "path", opts.DBPath)
		return err
	}

	storeLog := logger.WithName("docstore")
	db.OnBackgroundError(func(err error) {
		storeLog.Error(err, "Background store job failed")
	})

	defer func() {
		if err := closeDB(); err != nil {
			setupLog.Error(err, "Failed to close document store")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(reg)

	gin.SetMode(gin.ReleaseMode)
	srv := server.New(
		logger.WithName("http"),
		registry.New(db, opts.RecordsCollection, registry.NewRouteTable()),
		report.New(db, opts.ReportCollections, opts.CoerceConditions),
		server.Config{ItemsCollection: opts.ItemsCollection, Gatherer: reg},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, logger, srv.Handler(), opts); err != nil {
		setupLog.Error(err, "Server terminated with error")
		return err
	}

	setupLog.Info("Server terminated")
	return nil
}

// serve runs the HTTP server until ctx is done, then drains in-flight requests.
func serve(ctx context.Context, logger logr.Logger, h http.Handler, opts *config.Options) error {
	httpServer := &http.Server{
		Addr:    opts.Addr(),
		Handler: h,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server is running", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server failed")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", "timeout", opts.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
		defer cancel()

		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
