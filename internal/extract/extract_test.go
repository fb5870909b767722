package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/repack-aggregator/internal/crawler"
)

const listingPage = `<!doctype html>
<html><body>
<table class="table-list"><tbody>
  <tr><td class="coll-1 name"><a href="/sub/1/">icon</a><a href="/torrent/1/elden-ring/">Elden Ring - FitGirl Repack</a></td></tr>
  <tr><td class="coll-1 name"><a href="/sub/2/">icon</a><a href="https://mirror.example/torrent/2/">Hades + 3 DLCs</a></td></tr>
  <tr><td class="coll-1 name"><a href="/sub/3/">icon</a><a>no link here</a></td></tr>
</tbody></table>
<div class="pagination"><ul><li><a>1</a></li><li><a href="/page/42/">42</a></li></ul></div>
</body></html>`

func listingSelectors() Selectors {
	return Selectors{
		Entry:      ".table-list tbody tr td.coll-1.name a[href]:nth-of-type(2)",
		Pagination: ".pagination > ul > li:last-child > a",
	}
}

func TestEntriesResolvesRelativeLinks(t *testing.T) {
	t.Parallel()

	ex := New(listingSelectors(), 0)
	got := ex.Entries([]byte(listingPage), "https://www.1337xx.to/user/FitGirl/1/")

	require.Equal(t, []crawler.Entry{
		{RawTitle: "Elden Ring - FitGirl Repack", Link: "https://www.1337xx.to/torrent/1/elden-ring/"},
		{RawTitle: "Hades + 3 DLCs", Link: "https://mirror.example/torrent/2/"},
	}, got)
}

func TestEntriesWithNestedTitle(t *testing.T) {
	t.Parallel()

	page := `<html><body>` + strings.Repeat(" ", 100) + `
<article class="news"><div class="article clr"><div class="article-content">
  <a href="/games/shooter/">Shooter</a>
  <a href="https://online-fix.me/games/1-game.html"><h2 class="title">Game по сети</h2></a>
</div></div></article>
</body></html>`
	ex := New(Selectors{
		Entry: "article.news > .article.clr > .article-content > a",
		Title: "h2.title",
	}, 0)

	got := ex.Entries([]byte(page), "https://online-fix.me/page/1")
	require.Equal(t, []crawler.Entry{
		{RawTitle: "Game по сети", Link: "https://online-fix.me/games/1-game.html"},
	}, got)
}

func TestEntriesUndersizedBody(t *testing.T) {
	t.Parallel()

	ex := New(listingSelectors(), 0)
	require.Empty(t, ex.Entries([]byte("<html></html>"), "https://example.com"))

	strict := New(listingSelectors(), len(listingPage)+1)
	require.Empty(t, strict.Entries([]byte(listingPage), "https://example.com"))
}

func TestEntriesSelectorMismatch(t *testing.T) {
	t.Parallel()

	ex := New(Selectors{Entry: "div.does-not-exist a"}, 0)
	require.Empty(t, ex.Entries([]byte(listingPage), "https://example.com"))
}

func TestPageCount(t *testing.T) {
	t.Parallel()

	ex := New(listingSelectors(), 0)
	n, ok := ex.PageCount([]byte(listingPage))
	require.True(t, ok)
	require.Equal(t, 42, n)

	_, ok = ex.PageCount([]byte(`<div class="pagination"><ul><li><a>next</a></li></ul></div>`))
	require.False(t, ok)

	_, ok = ex.PageCount([]byte(`<p>nothing</p>`))
	require.False(t, ok)

	noPagination := New(Selectors{Entry: "a"}, 0)
	_, ok = noPagination.PageCount([]byte(listingPage))
	require.False(t, ok)
}

func TestSelectorsValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, listingSelectors().Validate())

	tests := []struct {
		name string
		sel  Selectors
		msg  string
	}{
		{"missing entry", Selectors{}, "entry selector is required"},
		{"bad entry", Selectors{Entry: "a[href"}, "entry selector"},
		{"bad pagination", Selectors{Entry: "a", Pagination: "li:nth-child("}, "pagination selector"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.sel.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.msg)
		})
	}
}
