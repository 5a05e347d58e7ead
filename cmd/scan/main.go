package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IliaW/link-repair-kit/config"
	"github.com/IliaW/link-repair-kit/internal/bootstrap"
	"github.com/IliaW/link-repair-kit/internal/checker"
	"github.com/IliaW/link-repair-kit/internal/model"
	"github.com/IliaW/link-repair-kit/internal/persistence"
	"github.com/IliaW/link-repair-kit/internal/report"
	"github.com/IliaW/link-repair-kit/internal/scanner"
	"github.com/IliaW/link-repair-kit/internal/telemetry"
)

func main() {
	category := flag.String("category", "post", "content category to scan")
	page := flag.Int("page", 1, "page number")
	pageSize := flag.Int("page-size", -1, "documents per page, -1 scans the whole category")
	workers := flag.Int("workers", 0, "concurrent checks, 0 uses checker.workers_num from config.yaml")
	csvPath := flag.String("csv", "", "directory for the csv export, empty disables it")
	flag.Parse()

	if *category == "" {
		flag.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()
	bootstrap.SetupLogger(cfg, os.Stderr)
	db := bootstrap.SetupDatabase(cfg.DbSettings)
	defer bootstrap.CloseDatabase(db)

	workersNum := cfg.CheckerSettings.WorkersNum
	if *workers != 0 {
		workersNum = *workers
	}
	linkChecker := checker.NewHttpChecker(checker.NewHttpClient(cfg.HttpClientSettings), cfg.CheckerSettings, nil,
		telemetry.NewNoopMetrics().CheckerMetrics)
	s := scanner.NewScanner(persistence.NewDocumentRepository(db), linkChecker, cfg.SiteSettings.BaseURL, workersNum,
		cfg.SiteSettings.EditURLTemplate, cfg.SiteSettings.RedirectionAdminURL)

	start := time.Now()
	agg, err := s.Scan(ctx, model.ScanRequest{Category: *category, Page: *page, PageSize: *pageSize})
	if agg == nil {
		slog.Error("scan failed.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	if err != nil {
		slog.Warn("scan interrupted.", slog.String("err", err.Error()))
	}

	rows := agg.Snapshot()
	report.PrintTable(os.Stdout, rows)
	if *csvPath != "" {
		if err = writeExport(*csvPath, rows); err != nil {
			slog.Error("failed to write csv export.", slog.String("err", err.Error()))
		}
	}
	summary := agg.Summary()
	fmt.Println(summary.Message)
	slog.Info("scan finished.", slog.Int("checked", summary.Processed), slog.Int("total", summary.Total),
		slog.Duration("elapsed", time.Since(start)))
}

func writeExport(dir string, rows []model.ScanRow) error {
	path := dir + string(os.PathSeparator) + report.ExportFilename(time.Now())
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Error("failed to close csv file.", slog.String("err", err.Error()))
		}
	}()
	if err = report.WriteCSV(file, rows); err != nil {
		return err
	}
	slog.Info("csv export written.", slog.String("path", path))
	return nil
}
