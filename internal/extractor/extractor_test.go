package extractor

import (
	"testing"

	"github.com/IliaW/link-repair-kit/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractAnchorAndBareURL(t *testing.T) {
	doc := model.Document{ID: 7, Body: `Visit <a href="https://x.test/a">here</a> and https://x.test/b`}

	links := Extract(doc, "site.test")

	require.Len(t, links, 2)
	assert.Equal(t, model.LinkOccurrence{DocumentID: 7, URL: "https://x.test/a", AnchorText: "here"}, links[0])
	assert.Equal(t, model.LinkOccurrence{DocumentID: 7, URL: "https://x.test/b", AnchorText: ""}, links[1])
}

func TestExtractEmptyBody(t *testing.T) {
	assert.Empty(t, Extract(model.Document{ID: 1}, "site.test"))
}

func TestExtractKeepsRepeatsInOrder(t *testing.T) {
	doc := model.Document{Body: "https://a.test/1 https://b.test/2 https://a.test/1 https://a.test/1"}

	links := Extract(doc, "a.test")

	require.Len(t, links, 4)
	urls := make([]string, 0, len(links))
	for _, l := range links {
		urls = append(urls, l.URL)
	}
	assert.Equal(t, []string{"https://a.test/1", "https://b.test/2", "https://a.test/1", "https://a.test/1"}, urls)
	assert.True(t, links[0].IsInternal)
	assert.False(t, links[1].IsInternal)
}

func TestExtractIsDeterministic(t *testing.T) {
	doc := model.Document{ID: 3, Body: `<p><a class="x" href='https://site.test/p?id=1'>one <b>bold</b></a> then http://other.test/q.</p>`}

	assert.Equal(t, Extract(doc, "site.test"), Extract(doc, "site.test"))
}

func TestExtractStopsAtDelimiters(t *testing.T) {
	doc := model.Document{Body: `see [https://x.test/a] or <https://x.test/b> or "https://x.test/c".`}

	links := Extract(doc, "x.test")

	require.Len(t, links, 3)
	assert.Equal(t, "https://x.test/a", links[0].URL)
	assert.Equal(t, "https://x.test/b", links[1].URL)
	assert.Equal(t, "https://x.test/c", links[2].URL)
}

func TestExtractIgnoresRelativeAndNonHTTP(t *testing.T) {
	doc := model.Document{Body: `<a href="/about">About</a> <a href="mailto:a@b.test">mail</a> ftp://files.test/x`}

	assert.Empty(t, Extract(doc, "site.test"))
}

func TestAnchorTextStripsTags(t *testing.T) {
	body := `<a href="https://x.test/a" target="_blank"><img src="i.png"> Read <em>more</em><script>alert(1)</script></a>`

	assert.Equal(t, "Read more", AnchorText("https://x.test/a", body))
}

func TestAnchorTextRequiresExactHref(t *testing.T) {
	body := `<a href="https://x.test/abc">abc</a>`

	assert.Equal(t, "", AnchorText("https://x.test/ab", body))
}

func TestIsInternalComparesHostOnly(t *testing.T) {
	assert.True(t, IsInternal("site.test", "http://site.test/a/b"))
	assert.True(t, IsInternal("site.test", "https://SITE.test:8443/"))
	assert.False(t, IsInternal("site.test", "https://www.site.test/"))
	assert.False(t, IsInternal("site.test", "not a url"))
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "site.test", HostOf("https://site.test:8080/x"))
	assert.Equal(t, "", HostOf("://bad"))
}
