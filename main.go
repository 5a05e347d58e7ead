package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/IliaW/link-repair-kit/config"
	"github.com/IliaW/link-repair-kit/internal/api"
	"github.com/IliaW/link-repair-kit/internal/aws_sqs"
	"github.com/IliaW/link-repair-kit/internal/bootstrap"
	"github.com/IliaW/link-repair-kit/internal/broker"
	cacheClient "github.com/IliaW/link-repair-kit/internal/cache"
	"github.com/IliaW/link-repair-kit/internal/checker"
	"github.com/IliaW/link-repair-kit/internal/model"
	"github.com/IliaW/link-repair-kit/internal/persistence"
	"github.com/IliaW/link-repair-kit/internal/redirect"
	"github.com/IliaW/link-repair-kit/internal/scanner"
	"github.com/IliaW/link-repair-kit/internal/telemetry"
	"github.com/IliaW/link-repair-kit/internal/token"
	"github.com/IliaW/link-repair-kit/internal/worker"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

var (
	cfg *config.Config
	db  *sql.DB
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg = config.MustLoad()
	bootstrap.SetupLogger(cfg, os.Stdout)
	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics := telemetry.SetupMetrics(context.Background(), cfg)
	defer metrics.Close()
	db = bootstrap.SetupDatabase(cfg.DbSettings)
	defer bootstrap.CloseDatabase(db)

	// A missing redirect table is reported on /health; redirect lookups then find nothing.
	activationErr := persistence.EnsureSchema(ctx, db)
	if activationErr != nil {
		slog.Warn("redirects are disabled until the schema is created.", slog.String("err", activationErr.Error()))
	}

	var resultCache cacheClient.ResultCache
	if cfg.CacheSettings != nil && cfg.CacheSettings.Enabled {
		mc := cacheClient.NewMemcachedClient(cfg.CacheSettings)
		defer mc.Close()
		resultCache = mc
	}
	httpClient := checker.NewHttpClient(cfg.HttpClientSettings)
	linkChecker := checker.NewHttpChecker(httpClient, cfg.CheckerSettings, resultCache, metrics.CheckerMetrics)
	linkScanner := scanner.NewScanner(persistence.NewDocumentRepository(db), linkChecker,
		cfg.SiteSettings.BaseURL, cfg.CheckerSettings.WorkersNum,
		cfg.SiteSettings.EditURLTemplate, cfg.SiteSettings.RedirectionAdminURL)

	redirects := redirect.NewService(cfg.SiteSettings.BaseURL, persistence.NewRedirectRepository(db),
		metrics.RedirectMetrics)
	if activationErr == nil {
		if err := redirects.Index.Reload(ctx); err != nil {
			slog.Warn("failed to load redirect rules.", slog.String("err", err.Error()))
		}
		go redirects.Index.Refresh(ctx, cfg.RedirectSettings.RefreshInterval)
	}

	signer := token.NewSigner(cfg.SecuritySettings.TokenSecret, cfg.SecuritySettings.TokenTtl)
	handler := api.NewHandler(linkScanner, linkChecker, redirects, signer, cfg.Version, activationErr)
	fallback, err := api.Passthrough(cfg.SiteSettings.UpstreamURL)
	if err != nil {
		slog.Error("invalid upstream url.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	server := api.NewServer(cfg.Port, api.NewRouter(handler, cfg.SiteSettings.RedirectStatus, fallback))
	slog.Info("starting application on port "+cfg.Port, slog.String("env", cfg.Env))
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", slog.String("err", err.Error()))
			stop()
		}
	}()

	var stopWorkers func()
	if cfg.WorkerSettings != nil && cfg.WorkerSettings.Enabled {
		stopWorkers = startScanWorkers(ctx, linkScanner, metrics)
	}

	<-ctx.Done()
	slog.Info("stopping server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = server.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to stop http server.", slog.String("err", err.Error()))
	}
	if stopWorkers != nil {
		stopWorkers()
	}
	slog.Info("server stopped.")
}

// startScanWorkers runs the asynchronous scan pipeline and returns a function that blocks
// until it is drained. Shutdown order:
// 1. Stop SQS Consumer by system call. Close getSqsChan
// 2. Wait till all Workers processed all messages from getSqsChan
// 3. Close sendSqsChan and kafkaChan
// 4. Wait till SQS Producer and Kafka Producer process all messages.
func startScanWorkers(ctx context.Context, s *scanner.Scanner, metrics *telemetry.MetricsProvider) func() {
	threadNum := parallelWorkers()
	getSqsChan := make(chan *string, threadNum*2) // double the size to avoid blocking
	sendSqsChan := make(chan *string, threadNum*2)
	kafkaChan := make(chan *model.BrokenLink, threadNum*2)
	kafkaDLQ := broker.NewKafkaDLQ(cfg.ServiceName, cfg.KafkaSettings.Producer)

	wg := &sync.WaitGroup{}
	wg.Add(2)
	sqs := aws_sqs.NewSQSWorker(getSqsChan, metrics.SQSMetrics, sendSqsChan, cfg, wg)
	go sqs.SQSConsumer(ctx)
	go sqs.SQSProducer()

	workerWg := &sync.WaitGroup{}
	scanWorker := &worker.ScanWorker{
		InputSqsChan:    getSqsChan,
		OutputSqsChan:   sendSqsChan,
		OutputKafkaChan: kafkaChan,
		Scanner:         s,
		Wg:              workerWg,
		KafkaDLQ:        kafkaDLQ,
		Metrics:         metrics.ScanMetrics,
	}
	for i := 0; i < threadNum; i++ {
		workerWg.Add(1)
		go scanWorker.Run(ctx)
	}

	wg.Add(1)
	kafka := broker.NewKafkaProducer(kafkaChan, metrics.KafkaMetrics, cfg.KafkaSettings.Producer, wg)
	go kafka.Run()

	return func() {
		workerWg.Wait()
		close(sendSqsChan)
		slog.Info("close sendSqsChan.")
		close(kafkaChan)
		slog.Info("close kafkaChan.")
		wg.Wait()
		kafkaDLQ.Close()
	}
}

// Set -1 to use all available CPUs
func parallelWorkers() int {
	customNumCPU := cfg.WorkerSettings.WorkersNum
	if customNumCPU == -1 {
		return runtime.NumCPU()
	}
	if customNumCPU <= 0 {
		slog.Error("workers number is 0 or less than -1")
		os.Exit(1)
	}

	return customNumCPU
}
