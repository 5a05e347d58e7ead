package report

import (
	"context"
	"fmt"
	"sync"

	"github.com/IliaW/link-repair-kit/internal/model"
)

const (
	NoBrokenLinksMessage = "Congrats Broken Links Not Found !"
	LoadingStatus        = "Loading..."
)

// Update describes one applied reachability result and the aggregate state right after it.
type Update struct {
	RowID        int                      `json:"row_id"`
	Result       model.ReachabilityResult `json:"result"`
	Visible      bool                     `json:"visible"`
	VisibleCount int                      `json:"visible_count"`
	Processed    int                      `json:"processed"`
	Total        int                      `json:"total"`
}

type Summary struct {
	Total         int    `json:"total"`
	Processed     int    `json:"processed"`
	VisibleCount  int    `json:"visible_count"`
	Complete      bool   `json:"complete"`
	Cancelled     bool   `json:"cancelled"`
	NoBrokenLinks bool   `json:"no_broken_links"`
	Message       string `json:"message"`
}

// Aggregator tracks the visible rows of one scan. Rows are keyed by RowID, so results may
// arrive in any order. Healthy rows leave the visible set as soon as their result is applied.
type Aggregator struct {
	mu        sync.Mutex
	rows      []model.ScanRow
	index     map[int]int
	visible   map[int]bool
	resolved  map[int]bool
	processed int
	cancelled bool
}

// NewAggregator takes ownership of rows. RowIDs must be unique.
func NewAggregator(rows []model.ScanRow) *Aggregator {
	a := &Aggregator{
		rows:     rows,
		index:    make(map[int]int, len(rows)),
		visible:  make(map[int]bool, len(rows)),
		resolved: make(map[int]bool, len(rows)),
	}
	for i, row := range rows {
		a.index[row.RowID] = i
		a.visible[row.RowID] = true
	}
	return a
}

// Apply records the result for rowID. It returns false without changing anything when the
// aggregator was cancelled, ctx is done, the row is unknown or the row was already resolved.
func (a *Aggregator) Apply(ctx context.Context, rowID int, result model.ReachabilityResult) (Update, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ctx.Err() != nil {
		a.cancelled = true
	}
	i, ok := a.index[rowID]
	if a.cancelled || !ok || a.resolved[rowID] {
		return Update{}, false
	}

	res := result
	a.rows[i].Result = &res
	a.resolved[rowID] = true
	a.processed++
	if !result.IsBroken() {
		delete(a.visible, rowID)
	}

	return Update{
		RowID:        rowID,
		Result:       result,
		Visible:      a.visible[rowID],
		VisibleCount: len(a.visible),
		Processed:    a.processed,
		Total:        len(a.rows),
	}, true
}

// Cancel stops the aggregator from accepting results.
func (a *Aggregator) Cancel() {
	a.mu.Lock()
	a.cancelled = true
	a.mu.Unlock()
}

func (a *Aggregator) Cancelled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancelled
}

func (a *Aggregator) VisibleCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.visible)
}

func (a *Aggregator) Processed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.processed
}

func (a *Aggregator) Total() int {
	return len(a.rows)
}

// Complete reports whether every row has a result.
func (a *Aggregator) Complete() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.processed == len(a.rows)
}

// NoBrokenLinks is the terminal state: all checks finished and nothing is visible.
func (a *Aggregator) NoBrokenLinks() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.processed == len(a.rows) && len(a.visible) == 0
}

// Rows returns a copy of every row in original order, checked or not.
func (a *Aggregator) Rows() []model.ScanRow {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.ScanRow(nil), a.rows...)
}

// Snapshot returns the currently visible rows in original order.
func (a *Aggregator) Snapshot() []model.ScanRow {
	a.mu.Lock()
	defer a.mu.Unlock()
	snapshot := make([]model.ScanRow, 0, len(a.visible))
	for _, row := range a.rows {
		if a.visible[row.RowID] {
			snapshot = append(snapshot, row)
		}
	}
	return snapshot
}

func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := Summary{
		Total:        len(a.rows),
		Processed:    a.processed,
		VisibleCount: len(a.visible),
		Complete:     a.processed == len(a.rows),
		Cancelled:    a.cancelled,
	}
	s.NoBrokenLinks = s.Complete && s.VisibleCount == 0
	if s.NoBrokenLinks {
		s.Message = NoBrokenLinksMessage
	} else {
		s.Message = fmt.Sprintf("Total Links: %d", s.VisibleCount)
	}
	return s
}
