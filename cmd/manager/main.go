// Command manager runs the ingest daemon: the HTTP API in front of the
// dispatch pool, with partitions committed to the configured object store.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/betedge/edgelake/internal/api"
	"github.com/betedge/edgelake/internal/catalog"
	"github.com/betedge/edgelake/internal/dispatch"
	"github.com/betedge/edgelake/internal/fetch"
	"github.com/betedge/edgelake/internal/market"
	"github.com/betedge/edgelake/internal/obs"
	"github.com/betedge/edgelake/internal/ops"
	"github.com/betedge/edgelake/internal/scan"
	"github.com/betedge/edgelake/pkg/conn"
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("manager, err: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	configFlag := flag.String("config", "", "config file path (JSON); empty runs on defaults")
	flag.Parse()

	cfg, err := loadConfig(*configFlag)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Profile.Enable {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "edgelake/manager",
			ServerAddress:   cfg.Profile.ServerAddress,
			Logger:          emptyLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return errors.Wrap(err, "start profiler")
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	st, err := ops.OpenStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	provider := fetch.New(fetch.Config{
		Timeout:  cfg.Theta.Timeout(),
		Attempts: cfg.Theta.Attempts,
		ProbeURL: cfg.Theta.ProbeURL,
	})

	metrics := obs.NewMetrics()

	var (
		ledger dispatch.Ledger
		cat    *catalog.Catalog
	)
	if cfg.Catalog.Enable {
		pg, err := conn.New(conn.Option{
			Host:     cfg.Catalog.Host,
			Port:     cfg.Catalog.Port,
			User:     cfg.Catalog.User,
			Password: cfg.Catalog.Password,
			Database: cfg.Catalog.Database,
			SSLMode:  cfg.Catalog.SSLMode,
		})
		if err != nil {
			return err
		}
		defer pg.Close()

		if err := pg.Ping(ctx); err != nil {
			return err
		}

		cat, err = catalog.New(pg.DB())
		if err != nil {
			return err
		}
		ledger = cat
	}

	dispatcher, err := dispatch.New(dispatch.Config{
		Workers:     cfg.Dispatch.Workers,
		QueueSize:   cfg.Dispatch.QueueSize,
		EventBuffer: cfg.Dispatch.EventBuffer,
		Endpoints: market.Endpoints{
			ThetaBaseURL:    cfg.Theta.BaseURL,
			EarningsBaseURL: cfg.Earnings.BaseURL,
		},
		Provider: provider,
		Store:    st,
		Ledger:   ledger,
		Metrics:  metrics,
	})
	if err != nil {
		return err
	}

	onMissing, err := scan.ParseMissingPolicy(cfg.Retrieve.OnMissing)
	if err != nil {
		return err
	}

	scanner, err := scan.New(st, onMissing)
	if err != nil {
		return err
	}

	server, err := api.New(api.Config{
		Dispatcher: dispatcher,
		Scanner:    scanner,
		Checker:    provider,
		Catalog:    cat,
		Metrics:    metrics,
	})
	if err != nil {
		return err
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx)
	}()
	<-dispatcher.Running()

	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Run(ctx)
	}()

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
	}

	serveErr := make(chan error, 1)
	go func() {
		logs.Infof("manager listening on %s, store backend %s", cfg.Server.Addr, cfg.Store.Backend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		stop()
		wg.Wait()
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	}

	logs.Info("manager shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace())
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logs.Errorf("http shutdown, err: %+v", err)
	}

	wg.Wait()

	return nil
}

func loadConfig(path string) (ops.Config, error) {
	if path == "" {
		return ops.Default(), nil
	}

	return ops.Load(path)
}

type emptyLogger struct{}

func (emptyLogger) Infof(_ string, _ ...interface{})  {}
func (emptyLogger) Debugf(_ string, _ ...interface{}) {}
func (emptyLogger) Errorf(_ string, _ ...interface{}) {}
