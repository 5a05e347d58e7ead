package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IliaW/link-repair-kit/internal/model"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrStorage  = errors.New("storage failure")
)

// RedirectStorage persists redirect rules. Implementations must be safe for concurrent use.
type RedirectStorage interface {
	Insert(ctx context.Context, oldURL, newURL string) (*model.RedirectRule, error)
	DeleteByID(ctx context.Context, id int64) error
	FindByOldURL(ctx context.Context, oldURL string) (*model.RedirectRule, error)
	ListAll(ctx context.Context) ([]*model.RedirectRule, error)
}

type RedirectRepository struct {
	db *sql.DB
}

func NewRedirectRepository(db *sql.DB) *RedirectRepository {
	return &RedirectRepository{db: db}
}

// Insert stores the rule in a single statement. An existing rule with the same old_url is
// overwritten, so the last writer wins.
func (rr *RedirectRepository) Insert(ctx context.Context, oldURL, newURL string) (*model.RedirectRule, error) {
	rule := &model.RedirectRule{OldURL: oldURL, NewURL: newURL}
	err := rr.db.QueryRowContext(ctx,
		`INSERT INTO redirect_rules (old_url, new_url) VALUES ($1, $2)
		ON CONFLICT (old_url) DO UPDATE SET new_url = EXCLUDED.new_url
		RETURNING id`, oldURL, newURL).Scan(&rule.ID)
	if err != nil {
		slog.Error("failed to save redirect rule.", slog.String("old_url", oldURL),
			slog.String("err", err.Error()))
		return nil, fmt.Errorf("%w: insert redirect rule: %w", ErrStorage, err)
	}
	slog.Debug("redirect rule saved.", slog.Int64("id", rule.ID), slog.String("old_url", oldURL))

	return rule, nil
}

func (rr *RedirectRepository) DeleteByID(ctx context.Context, id int64) error {
	res, err := rr.db.ExecContext(ctx, "DELETE FROM redirect_rules WHERE id = $1", id)
	if err != nil {
		slog.Error("failed to delete redirect rule.", slog.Int64("id", id), slog.String("err", err.Error()))
		return fmt.Errorf("%w: delete redirect rule: %w", ErrStorage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: delete redirect rule: %w", ErrStorage, err)
	}
	if affected == 0 {
		slog.Debug("no redirect rule found for the given id.", slog.Int64("id", id))
		return ErrNotFound
	}

	return nil
}

// FindByOldURL returns the first rule stored for oldURL.
func (rr *RedirectRepository) FindByOldURL(ctx context.Context, oldURL string) (*model.RedirectRule, error) {
	var rule model.RedirectRule
	err := rr.db.QueryRowContext(ctx,
		"SELECT id, old_url, new_url FROM redirect_rules WHERE old_url = $1 ORDER BY id LIMIT 1", oldURL).
		Scan(&rule.ID, &rule.OldURL, &rule.NewURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		slog.Error("failed to get redirect rule from the database.", slog.String("err", err.Error()))
		return nil, fmt.Errorf("%w: find redirect rule: %w", ErrStorage, err)
	}

	return &rule, nil
}

func (rr *RedirectRepository) ListAll(ctx context.Context) ([]*model.RedirectRule, error) {
	rows, err := rr.db.QueryContext(ctx, "SELECT id, old_url, new_url FROM redirect_rules ORDER BY id")
	if err != nil {
		slog.Error("failed to get redirect rules from the database.", slog.String("err", err.Error()))
		return nil, fmt.Errorf("%w: list redirect rules: %w", ErrStorage, err)
	}
	defer func(rows *sql.Rows) {
		err = rows.Close()
		if err != nil {
			slog.Error("failed to close rows.", slog.String("err", err.Error()))
		}
	}(rows)

	var rules []*model.RedirectRule
	for rows.Next() {
		var rule model.RedirectRule
		if err = rows.Scan(&rule.ID, &rule.OldURL, &rule.NewURL); err != nil {
			slog.Error("failed to scan redirect rule.", slog.String("err", err.Error()))
			return nil, fmt.Errorf("%w: scan redirect rule: %w", ErrStorage, err)
		}
		rules = append(rules, &rule)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list redirect rules: %w", ErrStorage, err)
	}
	slog.Debug("redirect rules loaded.", slog.Int("size", len(rules)))

	return rules, nil
}
