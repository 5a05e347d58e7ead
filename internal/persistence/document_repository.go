package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/IliaW/link-repair-kit/internal/model"
)

// PublishedStatus is the only document status included in scans.
const PublishedStatus = "publish"

// ContentSource supplies the documents of one content category.
type ContentSource interface {
	Documents(ctx context.Context, req model.ScanRequest) ([]model.Document, error)
}

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Documents returns published documents of req.Category ordered by id. A non-positive
// PageSize returns every document of the category.
func (dr *DocumentRepository) Documents(ctx context.Context, req model.ScanRequest) ([]model.Document, error) {
	query := "SELECT id, title, type, status, body FROM documents WHERE type = $1 AND status = $2 ORDER BY id"
	args := []any{req.Category, PublishedStatus}
	if req.PageSize > 0 {
		page := max(req.Page, 1)
		query += " LIMIT $3 OFFSET $4"
		args = append(args, req.PageSize, (page-1)*req.PageSize)
	}

	rows, err := dr.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("failed to get documents from the database.", slog.String("category", req.Category),
			slog.String("err", err.Error()))
		return nil, fmt.Errorf("%w: list documents: %w", ErrStorage, err)
	}
	defer func(rows *sql.Rows) {
		err = rows.Close()
		if err != nil {
			slog.Error("failed to close rows.", slog.String("err", err.Error()))
		}
	}(rows)

	var docs []model.Document
	for rows.Next() {
		var doc model.Document
		if err = rows.Scan(&doc.ID, &doc.Title, &doc.Type, &doc.Status, &doc.Body); err != nil {
			slog.Error("failed to scan document.", slog.String("err", err.Error()))
			return nil, fmt.Errorf("%w: scan document: %w", ErrStorage, err)
		}
		docs = append(docs, doc)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list documents: %w", ErrStorage, err)
	}
	slog.Debug("documents loaded.", slog.String("category", req.Category), slog.Int("size", len(docs)))

	return docs, nil
}
