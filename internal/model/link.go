package model

import (
	"strconv"
	"time"
)

// MaxURLLength is the column width of old_url and new_url in the redirect table.
const MaxURLLength = 512

type Document struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Type   string `json:"type"`
	Status string `json:"status"`
	Body   string `json:"-"`
}

type LinkOccurrence struct {
	DocumentID int64  `json:"document_id"`
	URL        string `json:"url"`
	AnchorText string `json:"anchor_text"`
	IsInternal bool   `json:"is_internal"`
}

// ReachabilityResult holds either the numeric status of the final response or a transport
// error message. StatusCode is 0 when Error is set.
type ReachabilityResult struct {
	URL        string    `json:"url"`
	StatusCode int       `json:"status_code,omitempty"`
	Error      string    `json:"error_message,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}

func (r ReachabilityResult) IsError() bool {
	return r.Error != ""
}

// IsBroken reports whether the result is an error or a status outside [200,399].
func (r ReachabilityResult) IsBroken() bool {
	if r.IsError() {
		return true
	}
	return r.StatusCode < 200 || r.StatusCode > 399
}

func (r ReachabilityResult) String() string {
	if r.IsError() {
		return r.Error
	}
	return strconv.Itoa(r.StatusCode)
}

type RedirectRule struct {
	ID     int64  `json:"id"`
	OldURL string `json:"old_url"`
	NewURL string `json:"new_url"`
}

type ScanRequest struct {
	Category string `json:"content_category" form:"content_category"`
	Page     int    `json:"page_number" form:"page_number"`
	PageSize int    `json:"page_size" form:"page_size"`
}

// Validate normalizes the page number and rejects an empty category.
func (r *ScanRequest) Validate() error {
	if r.Category == "" {
		return &ValidationError{Field: "content_category", Message: "content category is required"}
	}
	if r.Page < 1 {
		r.Page = 1
	}
	return nil
}

// ScanRow is one LinkOccurrence of a scan with its document columns and, once checked,
// its reachability result.
type ScanRow struct {
	RowID          int                 `json:"row_id"`
	Document       Document            `json:"document"`
	Link           LinkOccurrence      `json:"link"`
	EditURL        string              `json:"edit_url,omitempty"`
	RedirectionURL string              `json:"redirection_url,omitempty"`
	Result         *ReachabilityResult `json:"result,omitempty"`
}

// ScanJob is the queue message that requests an asynchronous scan.
// Expected string format: {"scan_id": "...", "request": {"content_category": "post", "page_number": 1, "page_size": 50}}
type ScanJob struct {
	ScanID  string      `json:"scan_id"`
	Request ScanRequest `json:"request"`
}

// BrokenLink is a finding published after an asynchronous scan.
type BrokenLink struct {
	ScanID        string    `json:"scan_id"`
	DocumentID    int64     `json:"document_id"`
	DocumentTitle string    `json:"document_title"`
	URL           string    `json:"url"`
	AnchorText    string    `json:"anchor_text"`
	IsInternal    bool      `json:"is_internal"`
	StatusCode    int       `json:"status_code,omitempty"`
	Error         string    `json:"error_message,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
}

func NewBrokenLink(scanID string, row ScanRow) *BrokenLink {
	bl := &BrokenLink{
		ScanID:        scanID,
		DocumentID:    row.Document.ID,
		DocumentTitle: row.Document.Title,
		URL:           row.Link.URL,
		AnchorText:    row.Link.AnchorText,
		IsInternal:    row.Link.IsInternal,
	}
	if row.Result != nil {
		bl.StatusCode = row.Result.StatusCode
		bl.Error = row.Result.Error
		bl.CheckedAt = row.Result.CheckedAt
	}
	return bl
}
