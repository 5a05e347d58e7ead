package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/IliaW/link-repair-kit/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var documentColumns = []string{"id", "title", "type", "status", "body"}

func TestDocumentRepository_Paged(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDocumentRepository(db)

	mock.ExpectQuery("SELECT id, title, type, status, body FROM documents WHERE type = \\$1 AND status = \\$2 ORDER BY id LIMIT \\$3 OFFSET \\$4").
		WithArgs("post", PublishedStatus, 10, 20).
		WillReturnRows(sqlmock.NewRows(documentColumns).
			AddRow(21, "Hello", "post", "publish", `<a href="https://x.test">x</a>`))

	docs, err := repo.Documents(context.Background(), model.ScanRequest{Category: "post", Page: 3, PageSize: 10})

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, model.Document{ID: 21, Title: "Hello", Type: "post", Status: "publish",
		Body: `<a href="https://x.test">x</a>`}, docs[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_AllPages(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDocumentRepository(db)

	mock.ExpectQuery("SELECT id, title, type, status, body FROM documents WHERE type = \\$1 AND status = \\$2 ORDER BY id$").
		WithArgs("page", PublishedStatus).
		WillReturnRows(sqlmock.NewRows(documentColumns).
			AddRow(1, "A", "page", "publish", "").
			AddRow(2, "B", "page", "publish", "https://x.test"))

	docs, err := repo.Documents(context.Background(), model.ScanRequest{Category: "page", PageSize: -1})

	require.NoError(t, err)
	assert.Len(t, docs, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_QueryError(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDocumentRepository(db)

	mock.ExpectQuery("SELECT id, title").WillReturnError(errors.New("connection refused"))

	_, err := repo.Documents(context.Background(), model.ScanRequest{Category: "post"})

	assert.ErrorIs(t, err, ErrStorage)
	assert.NoError(t, mock.ExpectationsWereMet())
}
