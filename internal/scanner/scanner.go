package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/IliaW/link-repair-kit/internal/checker"
	"github.com/IliaW/link-repair-kit/internal/extractor"
	"github.com/IliaW/link-repair-kit/internal/model"
	"github.com/IliaW/link-repair-kit/internal/persistence"
	"github.com/IliaW/link-repair-kit/internal/report"
	"golang.org/x/sync/errgroup"
)

// Scanner turns the documents of a content category into rows and checks every row.
type Scanner struct {
	Source         persistence.ContentSource
	Checker        checker.Checker
	BaseHost       string
	WorkersNum     int
	EditTemplate   string
	RedirectionURL string
}

// NewScanner returns a Scanner. A workersNum of -1 uses one worker per CPU.
func NewScanner(source persistence.ContentSource, ch checker.Checker, baseURL string, workersNum int,
	editTemplate, redirectionURL string) *Scanner {
	return &Scanner{
		Source:         source,
		Checker:        ch,
		BaseHost:       extractor.HostOf(baseURL),
		WorkersNum:     workersNum,
		EditTemplate:   editTemplate,
		RedirectionURL: redirectionURL,
	}
}

// Prepare reads the requested documents and returns an aggregator holding one visible row per
// link occurrence, in document order then appearance order.
func (s *Scanner) Prepare(ctx context.Context, req model.ScanRequest) (*report.Aggregator, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	docs, err := s.Source.Documents(ctx, req)
	if err != nil {
		return nil, err
	}

	var rows []model.ScanRow
	for _, doc := range docs {
		editURL := s.editURL(doc.ID)
		for _, link := range extractor.Extract(doc, s.BaseHost) {
			row := model.ScanRow{
				RowID:    len(rows),
				Document: doc,
				Link:     link,
				EditURL:  editURL,
			}
			if link.IsInternal {
				row.RedirectionURL = s.RedirectionURL
			}
			rows = append(rows, row)
		}
	}
	slog.Debug("scan prepared.", slog.String("category", req.Category), slog.Int("documents", len(docs)),
		slog.Int("links", len(rows)))

	return report.NewAggregator(rows), nil
}

// Run checks every row of agg with a bounded pool and streams each applied update. The channel
// is closed after all started checks have returned. Once ctx is done no further check starts
// and no further result is applied.
func (s *Scanner) Run(ctx context.Context, agg *report.Aggregator) <-chan report.Update {
	updates := make(chan report.Update)
	rows := agg.Rows()

	go func() {
		defer close(updates)

		g := new(errgroup.Group)
		g.SetLimit(s.workers())
		for _, row := range rows {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				result := s.Checker.Check(ctx, row.Link.URL)
				upd, ok := agg.Apply(ctx, row.RowID, result)
				if !ok {
					return nil
				}
				select {
				case updates <- upd:
				case <-ctx.Done():
				}
				return nil
			})
		}
		_ = g.Wait()

		if ctx.Err() != nil {
			agg.Cancel()
			slog.Info("scan cancelled.", slog.Int("processed", agg.Processed()), slog.Int("total", agg.Total()))
			return
		}
		slog.Debug("scan finished.", slog.Int("total", agg.Total()), slog.Int("broken", agg.VisibleCount()))
	}()

	return updates
}

// Scan runs a full scan and blocks until every row is checked or ctx is done.
func (s *Scanner) Scan(ctx context.Context, req model.ScanRequest) (*report.Aggregator, error) {
	agg, err := s.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	for range s.Run(ctx, agg) {
	}
	return agg, ctx.Err()
}

func (s *Scanner) workers() int {
	if s.WorkersNum < 1 {
		return runtime.NumCPU()
	}
	return s.WorkersNum
}

func (s *Scanner) editURL(id int64) string {
	if s.EditTemplate == "" {
		return ""
	}
	if strings.Contains(s.EditTemplate, "%d") {
		return fmt.Sprintf(s.EditTemplate, id)
	}
	return s.EditTemplate
}
