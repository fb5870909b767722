// Package extract pulls (title, link) pairs out of provider markup using CSS selector sets.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/JakeFAU/repack-aggregator/internal/crawler"
)

// DefaultMinBodyBytes is the size below which a page is treated as a soft-block
// or placeholder and yields nothing.
const DefaultMinBodyBytes = 100

// Selectors is the fixed, version-pinned selector contract for one provider.
type Selectors struct {
	// Entry matches one node per listing.
	Entry string
	// Title is evaluated inside Entry; empty means the Entry node's own text.
	// Entries where a non-empty Title matches nothing are skipped.
	Title string
	// Link is evaluated inside Entry; empty means the Entry node itself.
	Link string
	// LinkAttr defaults to "href".
	LinkAttr string
	// Pagination matches the node whose text is the last page number.
	Pagination string
}

// Validate compiles every non-empty selector. A failure here is a programming
// error in a provider table and should stop startup.
func (s Selectors) Validate() error {
	if strings.TrimSpace(s.Entry) == "" {
		return fmt.Errorf("entry selector is required")
	}
	for name, sel := range map[string]string{
		"entry":      s.Entry,
		"title":      s.Title,
		"link":       s.Link,
		"pagination": s.Pagination,
	} {
		if sel == "" {
			continue
		}
		if _, err := cascadia.ParseGroup(sel); err != nil {
			return fmt.Errorf("%s selector %q: %w", name, sel, err)
		}
	}
	return nil
}

// Extractor applies a selector set to fetched markup.
type Extractor struct {
	selectors    Selectors
	minBodyBytes int
}

// New builds an Extractor. minBodyBytes <= 0 falls back to DefaultMinBodyBytes.
func New(selectors Selectors, minBodyBytes int) *Extractor {
	if minBodyBytes <= 0 {
		minBodyBytes = DefaultMinBodyBytes
	}
	if selectors.LinkAttr == "" {
		selectors.LinkAttr = "href"
	}
	return &Extractor{selectors: selectors, minBodyBytes: minBodyBytes}
}

// Entries returns every (raw title, link) pair on the page. Undersized bodies,
// unparsable markup and selector mismatches all produce an empty result.
func (e *Extractor) Entries(body []byte, pageURL string) []crawler.Entry {
	if len(body) < e.minBodyBytes {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	base, _ := url.Parse(pageURL)

	var out []crawler.Entry
	doc.Find(e.selectors.Entry).Each(func(_ int, node *goquery.Selection) {
		linkNode := node
		if e.selectors.Link != "" {
			linkNode = node.Find(e.selectors.Link).First()
		}
		href, ok := linkNode.Attr(e.selectors.LinkAttr)
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}
		titleNode := node
		if e.selectors.Title != "" {
			titleNode = node.Find(e.selectors.Title).First()
			if titleNode.Length() == 0 {
				return
			}
		}
		out = append(out, crawler.Entry{
			RawTitle: strings.TrimSpace(titleNode.Text()),
			Link:     resolve(base, href),
		})
	})
	return out
}

// PageCount reads the pagination indicator. It returns ok=false when the
// selector is unset, missing from the page, or not an integer.
func (e *Extractor) PageCount(body []byte) (int, bool) {
	if e.selectors.Pagination == "" {
		return 0, false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0, false
	}
	text := strings.TrimSpace(doc.Find(e.selectors.Pagination).First().Text())
	n, err := strconv.Atoi(text)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
