package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/finreports/reportd/pkg/api"
	"github.com/finreports/reportd/pkg/config"
	"github.com/finreports/reportd/pkg/files"
	"github.com/finreports/reportd/pkg/gateway"
	"github.com/finreports/reportd/pkg/logging"
	"github.com/finreports/reportd/pkg/metrics"
	"github.com/finreports/reportd/pkg/models"
	"github.com/finreports/reportd/pkg/queue"
	"github.com/finreports/reportd/pkg/ratelimit"
	"github.com/finreports/reportd/pkg/report"
	"github.com/finreports/reportd/pkg/shutdown"
	"github.com/finreports/reportd/pkg/store"
	"github.com/finreports/reportd/pkg/worker"
)

func main() {
	cfgFile := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.JSON)
	logger.Info("Starting reportd", map[string]interface{}{
		"addr":    cfg.Server.Addr,
		"workers": cfg.Workers.Count,
		"queue":   cfg.Queue.Capacity,
	})

	// Report registry, populated at startup. Deployments replace or
	// extend the built-ins here.
	registry := report.NewRegistry()
	report.RegisterBuiltins(registry)

	st := store.NewMemoryStore()
	q := queue.New(cfg.Queue.Capacity)

	fm := files.NewManager(files.Config{
		BaseDir:       cfg.Files.OutputDir,
		Retention:     cfg.Files.Retention,
		SweepInterval: cfg.Files.SweepInterval,
	}, st, logger)

	gw := gateway.New(gateway.Config{
		PriorityMin:     cfg.Jobs.PriorityMin,
		PriorityMax:     cfg.Jobs.PriorityMax,
		DefaultPriority: cfg.Jobs.DefaultPriority,
	}, st, q, registry)

	pool := worker.NewPool(worker.Config{
		Size:          cfg.Workers.Count,
		RenderTimeout: cfg.Workers.RenderTimeout,
		CancelGrace:   cfg.Workers.CancelGrace,
	}, st, q, registry, fm, logger)
	gw.SetCanceller(pool)

	m := metrics.New(q.Len, st.Count)
	gw.SetRecorder(gatewayRecorder{m})
	pool.SetRecorder(poolRecorder{m})
	fm.SetRecorder(sweepRecorder{m})

	router := mux.NewRouter()
	handler := api.NewHandler(st, gw, fm, registry)
	handler.RegisterRoutes(router)
	router.Handle("/metrics", m.Handler()).Methods("GET")

	limiter := ratelimit.NewLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	router.Use(limiter.Middleware(ratelimit.IPKeyFunc))

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	fm.Start()
	pool.Start()
	limiter.Start()

	go func() {
		logger.Info("API listening", map[string]interface{}{"addr": cfg.Server.Addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	sd := shutdown.New(30 * time.Second)
	sd.Register(func(ctx context.Context) error {
		limiter.Stop()
		return nil
	})
	sd.Register(func(ctx context.Context) error {
		fm.Stop()
		return nil
	})
	sd.Register(func(ctx context.Context) error {
		pool.Stop()
		return nil
	})
	sd.Register(func(ctx context.Context) error {
		return srv.Shutdown(ctx)
	})
	sd.Wait()
}

// gatewayRecorder adapts the metrics collectors to the gateway's sink
type gatewayRecorder struct{ m *metrics.Metrics }

func (r gatewayRecorder) RecordSubmitted() {
	r.m.JobsSubmitted.Inc()
}

func (r gatewayRecorder) RecordRejected(reason string) {
	r.m.JobsRejected.WithLabelValues(reason).Inc()
}

// poolRecorder adapts the metrics collectors to the worker pool's sink
type poolRecorder struct{ m *metrics.Metrics }

func (r poolRecorder) RecordFinished(status models.JobStatus) {
	r.m.JobsFinished.WithLabelValues(string(status)).Inc()
}

func (r poolRecorder) ObserveRenderDuration(d time.Duration) {
	r.m.RenderDuration.Observe(d.Seconds())
}

// sweepRecorder adapts the metrics collectors to the file sweeper's sink
type sweepRecorder struct{ m *metrics.Metrics }

func (r sweepRecorder) AddFilesSwept(n int) {
	r.m.FilesSwept.Add(float64(n))
}
