package redirect

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/IliaW/link-repair-kit/internal/model"
	"github.com/IliaW/link-repair-kit/internal/persistence"
	"github.com/IliaW/link-repair-kit/internal/telemetry"
)

// Service manages redirect rules. Every mutation goes to the store first and is mirrored into
// the index only after the store accepted it. Mutations are serialized so the index applies
// them in the order the store committed them.
type Service struct {
	BaseURL string
	Store   persistence.RedirectStorage
	Index   *Index
	Metrics *telemetry.RedirectMetrics
	writeMu sync.Mutex
}

func NewService(baseURL string, store persistence.RedirectStorage, metrics *telemetry.RedirectMetrics) *Service {
	return &Service{
		BaseURL: baseURL,
		Store:   store,
		Index:   NewIndex(store),
		Metrics: metrics,
	}
}

// Save validates and stores a rule. Relative URLs are resolved against the site base URL.
func (s *Service) Save(ctx context.Context, oldURL, newURL string) (*model.RedirectRule, error) {
	oldURL = strings.TrimSpace(oldURL)
	newURL = strings.TrimSpace(newURL)
	if oldURL == "" {
		return nil, &model.ValidationError{Field: "old_url", Message: "old url is required"}
	}
	if newURL == "" {
		return nil, &model.ValidationError{Field: "new_url", Message: "new url is required"}
	}
	oldURL = CanonicalizeRuleURL(s.BaseURL, oldURL)
	newURL = CanonicalizeRuleURL(s.BaseURL, newURL)
	if len(oldURL) > model.MaxURLLength {
		return nil, &model.ValidationError{Field: "old_url", Message: "old url is longer than 512 characters"}
	}
	if len(newURL) > model.MaxURLLength {
		return nil, &model.ValidationError{Field: "new_url", Message: "new url is longer than 512 characters"}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	rule, err := s.Store.Insert(ctx, oldURL, newURL)
	if err != nil {
		return nil, err
	}
	s.Index.put(rule)
	s.Metrics.RuleSavedCnt(1)
	slog.Info("redirect rule saved.", slog.Int64("id", rule.ID), slog.String("old_url", rule.OldURL),
		slog.String("new_url", rule.NewURL))

	return rule, nil
}

// Delete removes the rule with the given id. A missing id returns persistence.ErrNotFound and
// leaves the rule set unchanged.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return &model.ValidationError{Field: "id", Message: "id must be a positive integer"}
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.Store.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			slog.Debug("redirect rule to delete not found.", slog.Int64("id", id))
		}
		return err
	}
	s.Index.removeID(id)
	s.Metrics.RuleDeletedCnt(1)
	slog.Info("redirect rule deleted.", slog.Int64("id", id))

	return nil
}

func (s *Service) List(ctx context.Context) ([]*model.RedirectRule, error) {
	return s.Store.ListAll(ctx)
}

// Lookup finds the rule for a request URI.
func (s *Service) Lookup(requestURI string) (*model.RedirectRule, bool) {
	return s.Index.Lookup(Canonicalize(s.BaseURL, requestURI))
}
