package extractor

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/IliaW/link-repair-kit/internal/model"
	"golang.org/x/net/html"
)

// linkPattern matches absolute http(s) URLs without whitespace, brackets, angle brackets or quotes.
var linkPattern = regexp.MustCompile(`(?i)\bhttps?://[^\[\]\s<>"]+\b`)

// Extract returns one LinkOccurrence per URL match in the document body, in the order the
// URLs appear. Repeated URLs produce repeated occurrences.
func Extract(doc model.Document, baseHost string) []model.LinkOccurrence {
	matches := linkPattern.FindAllString(doc.Body, -1)
	if len(matches) == 0 {
		return nil
	}

	links := make([]model.LinkOccurrence, 0, len(matches))
	for _, link := range matches {
		u, err := url.Parse(link)
		if err != nil || u.Host == "" {
			continue
		}
		links = append(links, model.LinkOccurrence{
			DocumentID: doc.ID,
			URL:        link,
			AnchorText: AnchorText(link, doc.Body),
			IsInternal: isSameHost(baseHost, u),
		})
	}

	return links
}

// AnchorText returns the tag-stripped inner text of the first <a> element whose href is
// exactly link, or "" when no anchor wraps it.
func AnchorText(link, body string) string {
	q := regexp.QuoteMeta(link)
	anchor := regexp.MustCompile(`(?is)<a\s[^>]*href\s*=\s*(?:"` + q + `"[^>]*|'` + q + `'[^>]*|` + q + `(?:\s[^>]*)?)>(.*?)</a>`)
	m := anchor.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return stripTags(m[1])
}

// IsInternal compares only the host of link against baseHost; scheme, port and path are ignored.
func IsInternal(baseHost, link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return isSameHost(baseHost, u)
}

// HostOf returns the host component of an absolute URL without the port.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func isSameHost(baseHost string, u *url.URL) bool {
	host := u.Hostname()
	return host != "" && strings.EqualFold(host, baseHost)
}

func stripTags(fragment string) string {
	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(sb.String())
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		case html.StartTagToken:
			if isRawText(z) {
				skip++
			}
		case html.EndTagToken:
			if isRawText(z) && skip > 0 {
				skip--
			}
		}
	}
}

func isRawText(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	tag := string(name)
	return tag == "script" || tag == "style"
}
