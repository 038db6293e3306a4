package links

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func anchor(url string) string {
	return `<a href="` + url + `">` + url + `</a>`
}

func TestExtractSingleLink(t *testing.T) {
	markup := "look: " + anchor("https://x.com/alice/status/123")
	matches := Extract(markup)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.Equal(t, "alice", m.Handle)
	assert.Equal(t, int64(123), m.PostID)
	assert.Equal(t, "https://x.com/alice/status/123", m.Href)
	assert.Equal(t, markup[m.Start:m.End], m.Text)
	assert.Equal(t, 6, m.Start)
}

func TestExtractTwitterDomainAndCase(t *testing.T) {
	for _, url := range []string{
		"https://twitter.com/Bob/status/9",
		"http://x.com/Bob/status/9",
		"x.com/Bob/status/9",
		"HTTPS://X.COM/Bob/STATUS/9",
		"https://twitter.co/Bob/status/9",
	} {
		matches := Extract(anchor(url))
		require.Len(t, matches, 1, "url: %s", url)
		assert.Equal(t, "Bob", matches[0].Handle)
		assert.Equal(t, int64(9), matches[0].PostID)
	}
}

func TestExtractKeepsQueryStrings(t *testing.T) {
	url := "https://x.com/alice/status/123?s=20&t=abc"
	matches := Extract(anchor(url))
	require.Len(t, matches, 1)
	assert.Equal(t, url, matches[0].Href)
	assert.Equal(t, int64(123), matches[0].PostID)
}

func TestExtractSkipsNonPostLinks(t *testing.T) {
	for _, url := range []string{
		"https://example.com/alice/status/123",
		"https://x.com/alice/profile",
		"https://x.com/alice/status/notanumber",
	} {
		assert.Empty(t, Extract(anchor(url)), "url: %s", url)
	}
	assert.Empty(t, Extract("no links at all"))
	assert.Empty(t, Extract("bare https://x.com/alice/status/123 outside a tag"))
}

func TestExtractOrderAndReconstruction(t *testing.T) {
	urls := []string{
		"https://x.com/a/status/1",
		"https://twitter.com/b/status/2",
		"https://x.com/c/status/3?ref=x",
	}
	markup := "head " + anchor(urls[0]) + " mid " + anchor(urls[1]) + anchor(urls[2]) + " tail"
	matches := Extract(markup)
	require.Len(t, matches, len(urls))

	// Spans are strictly increasing and replacing every span by itself
	// reconstructs the input exactly.
	var rebuilt strings.Builder
	lastEnd := 0
	for i, m := range matches {
		assert.GreaterOrEqual(t, m.Start, lastEnd)
		if i > 0 {
			assert.Greater(t, m.Start, matches[i-1].Start)
		}
		rebuilt.WriteString(markup[lastEnd:m.Start])
		rebuilt.WriteString(m.Text)
		lastEnd = m.End
	}
	rebuilt.WriteString(markup[lastEnd:])
	assert.Equal(t, markup, rebuilt.String())
}

func TestCanonicalURL(t *testing.T) {
	assert.Equal(t, "https://x.com/alice/status/123", CanonicalURL("alice", 123))
}
