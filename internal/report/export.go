package report

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/IliaW/link-repair-kit/internal/model"
	"github.com/gocarina/gocsv"
)

// ExportRow is one CSV line. Field order is the column order of the export.
type ExportRow struct {
	ID          string `csv:"ID"`
	Title       string `csv:"Title"`
	PostType    string `csv:"Post Type"`
	Status      string `csv:"Status"`
	Link        string `csv:"Link"`
	Redirection string `csv:"Redirection"`
	LinkText    string `csv:"Link Text"`
	Edit        string `csv:"Edit"`
	HTTPStatus  string `csv:"HTTP Status"`
}

// WriteCSV writes a header row and one row per given scan row.
func WriteCSV(w io.Writer, rows []model.ScanRow) error {
	result := make([]*ExportRow, 0, len(rows))
	for _, row := range rows {
		result = append(result, toExportRow(row))
	}
	if len(result) == 0 {
		// gocsv writes no header for an empty slice
		_, err := io.WriteString(w, strings.Join(Columns(), ",")+"\n")
		return err
	}
	return gocsv.Marshal(&result, w)
}

// Columns returns the export header in order.
func Columns() []string {
	return []string{"ID", "Title", "Post Type", "Status", "Link", "Redirection", "Link Text", "Edit", "HTTP Status"}
}

// ExportFilename embeds t, e.g. links_list_2026-10-19T08-30-00Z.csv.
func ExportFilename(t time.Time) string {
	return "links_list_" + strings.ReplaceAll(t.UTC().Format(time.RFC3339), ":", "-") + ".csv"
}

func toExportRow(row model.ScanRow) *ExportRow {
	status := LoadingStatus
	if row.Result != nil {
		status = row.Result.String()
	}
	return &ExportRow{
		ID:          strconv.FormatInt(row.Document.ID, 10),
		Title:       row.Document.Title,
		PostType:    row.Document.Type,
		Status:      row.Document.Status,
		Link:        row.Link.URL,
		Redirection: row.RedirectionURL,
		LinkText:    row.Link.AnchorText,
		Edit:        row.EditURL,
		HTTPStatus:  status,
	}
}
