package redirect

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/purell"
)

const normalizeFlags = purell.FlagsSafe | purell.FlagSortQuery

// Canonicalize joins the site base URL with a request URI (path and query) and normalizes
// the result. Inbound requests and stored old_url values go through the same function, so
// rule lookup can be an exact string match.
func Canonicalize(baseURL, requestURI string) string {
	raw := strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(requestURI, "/")
	return normalize(raw)
}

// CanonicalizeRuleURL resolves a user-supplied rule URL. Absolute URLs are only normalized;
// anything else is treated as a path relative to the site root.
func CanonicalizeRuleURL(baseURL, rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if u, err := url.Parse(rawURL); err == nil && u.IsAbs() && u.Host != "" {
		return normalize(rawURL)
	}
	return Canonicalize(baseURL, rawURL)
}

func normalize(raw string) string {
	normalized, err := purell.NormalizeURLString(raw, normalizeFlags)
	if err != nil {
		slog.Debug("failed to normalize url.", slog.String("url", raw), slog.String("err", err.Error()))
		return raw
	}
	return normalized
}
