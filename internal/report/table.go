package report

import (
	"io"

	"github.com/IliaW/link-repair-kit/internal/model"
	"github.com/rodaine/table"
)

// PrintTable writes rows as an aligned text table with the export columns that fit a terminal.
func PrintTable(w io.Writer, rows []model.ScanRow) {
	tbl := table.New("ID", "Title", "Link", "Link Text", "HTTP Status").WithWriter(w)
	for _, row := range rows {
		status := LoadingStatus
		if row.Result != nil {
			status = row.Result.String()
		}
		tbl.AddRow(row.Document.ID, row.Document.Title, row.Link.URL, row.Link.AnchorText, status)
	}
	tbl.Print()
}
