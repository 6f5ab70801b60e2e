package scraper

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestExtractMainContent_PrefersMainTag(t *testing.T) {
	html := `<html><body><header>nav stuff</header><main><p>Pantry hours: 9-5</p></main><footer>copyright</footer></body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	content, err := extractMainContent(doc)
	require.NoError(t, err)
	require.Contains(t, content, "Pantry hours")
	require.NotContains(t, content, "nav stuff")
	require.NotContains(t, content, "copyright")
}

func TestExtractMainContent_StripsBoilerplateWhenNoMainTag(t *testing.T) {
	html := `<html><body><nav>menu</nav><div class="ad-banner">buy now</div><p>Community food pantry open Tuesdays</p></body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	content, err := extractMainContent(doc)
	require.NoError(t, err)
	require.Contains(t, content, "Community food pantry")
	require.NotContains(t, content, "menu")
	require.NotContains(t, content, "buy now")
}

func TestTextLength_EmptyBodyLooksClientRendered(t *testing.T) {
	html := `<html><body><div id="root"></div><script src="app.js"></script></body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	require.Less(t, textLength(doc), minRenderedTextLength)
}

func TestCleanWhitespace(t *testing.T) {
	input := "Line one\n\n\n\nLine   two\t\twith   tabs"
	got := cleanWhitespace(input)
	require.Equal(t, "Line one\n\nLine two with tabs", got)
}
