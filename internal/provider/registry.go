// Package provider holds the static table of repack catalog sites and the
// adapter that drives fetch, extraction and normalization for one of them.
package provider

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/JakeFAU/repack-aggregator/internal/extract"
)

// Kind identifies one catalog site.
type Kind string

// Supported providers.
const (
	KindDODI        Kind = "dodi"
	KindFitGirl     Kind = "fitgirl"
	KindEmpress     Kind = "empress"
	KindGOG         Kind = "gog"
	KindKaOsKrew    Kind = "kaoskrew"
	KindOnlineFix   Kind = "onlinefix"
	KindTinyRepacks Kind = "tinyrepacks"
	KindXatab       Kind = "xatab"
)

// Order is the sequence in which an aggregation run visits providers.
var Order = []Kind{
	KindDODI,
	KindFitGirl,
	KindEmpress,
	KindGOG,
	KindKaOsKrew,
	KindOnlineFix,
	KindTinyRepacks,
	KindXatab,
}

const pagePlaceholder = "{page}"

// AuthSpec describes the token-then-form login used by gated sites.
type AuthSpec struct {
	TokenPath string
	LoginPath string
}

// Spec is the fixed description of one provider.
type Spec struct {
	Kind     Kind
	Repacker string
	BaseURL  string
	// IndexPath is fetched to discover the page count.
	IndexPath string
	// PagePath contains {page}. Empty means the site is a single page.
	PagePath    string
	RefererPath string
	Selectors   extract.Selectors
	Format      func(string) string
	Auth        *AuthSpec
	// Workers is the default number of concurrent page tasks.
	Workers int
}

// Gated reports whether the provider needs a login before crawling.
func (s Spec) Gated() bool { return s.Auth != nil }

// IndexURL returns the discovery page URL.
func (s Spec) IndexURL() string { return s.join(s.IndexPath) }

// PageURL returns the listing URL for page n.
func (s Spec) PageURL(n int) string {
	if s.PagePath == "" {
		return s.IndexURL()
	}
	return s.join(strings.ReplaceAll(s.PagePath, pagePlaceholder, strconv.Itoa(n)))
}

// Referer returns the fixed referer, or "" when the site needs none.
func (s Spec) Referer() string {
	if s.RefererPath == "" {
		return ""
	}
	return s.join(s.RefererPath)
}

// WithBaseURL points the spec at a different host, keeping every path.
func (s Spec) WithBaseURL(base string) Spec {
	if base != "" {
		s.BaseURL = strings.TrimRight(base, "/")
	}
	return s
}

// Validate checks the spec is internally consistent and its selectors compile.
func (s Spec) Validate() error {
	if s.Repacker == "" {
		return fmt.Errorf("provider %s: repacker label is required", s.Kind)
	}
	if !strings.HasPrefix(s.BaseURL, "http") {
		return fmt.Errorf("provider %s: base url %q must be http(s)", s.Kind, s.BaseURL)
	}
	if s.PagePath != "" && !strings.Contains(s.PagePath, pagePlaceholder) {
		return fmt.Errorf("provider %s: page path %q lacks %s", s.Kind, s.PagePath, pagePlaceholder)
	}
	if s.Auth != nil && (s.Auth.TokenPath == "" || s.Auth.LoginPath == "") {
		return fmt.Errorf("provider %s: auth requires token and login paths", s.Kind)
	}
	if err := s.Selectors.Validate(); err != nil {
		return fmt.Errorf("provider %s: %w", s.Kind, err)
	}
	return nil
}

func (s Spec) join(path string) string {
	return strings.TrimRight(s.BaseURL, "/") + path
}

var leetxSelectors = extract.Selectors{
	Entry:      ".table-list tbody tr td.coll-1.name a[href]:nth-of-type(2)",
	Pagination: ".pagination > ul > li:last-child > a",
}

func leetxUser(kind Kind, repacker, user string, format func(string) string) Spec {
	return Spec{
		Kind:      kind,
		Repacker:  repacker,
		BaseURL:   "https://www.1337xx.to",
		IndexPath: "/user/" + user + "/1",
		PagePath:  "/user/" + user + "/" + pagePlaceholder,
		Selectors: leetxSelectors,
		Format:    format,
		Workers:   4,
	}
}

var registry = map[Kind]Spec{
	KindDODI:    leetxUser(KindDODI, "DODI", "DODI", formatDODI),
	KindFitGirl: leetxUser(KindFitGirl, "FitGirl", "FitGirl", formatFitGirl),
	KindEmpress: leetxUser(KindEmpress, "0xEMPRESS", "0xEMPRESS", nil),
	KindGOG: {
		Kind:      KindGOG,
		Repacker:  "GOG",
		BaseURL:   "https://freegogpcgames.com",
		IndexPath: "/a-z-games-list/",
		Selectors: extract.Selectors{
			Entry: ".items-inner > .letter-section > .az-columns > li > a",
		},
		Format:  formatGOG,
		Workers: 1,
	},
	KindKaOsKrew: leetxUser(KindKaOsKrew, "KaOsKrew", "KaOsKrew", nil),
	KindOnlineFix: {
		Kind:        KindOnlineFix,
		Repacker:    "OnlineFix",
		BaseURL:     "https://online-fix.me",
		IndexPath:   "/page/1",
		PagePath:    "/page/" + pagePlaceholder,
		RefererPath: "/",
		Selectors: extract.Selectors{
			Entry:      "article.news > .article.clr > .article-content > a",
			Title:      "h2.title",
			Pagination: "nav.pagination.hide_onajax a:nth-last-of-type(2)",
		},
		Format: formatOnlineFix,
		Auth: &AuthSpec{
			TokenPath: "/engine/ajax/authtoken.php",
			LoginPath: "/",
		},
		Workers: 2,
	},
	KindTinyRepacks: {
		Kind:      KindTinyRepacks,
		Repacker:  "TinyRepacks",
		BaseURL:   "https://www.tiny-repacks.win",
		IndexPath: "/page/1/",
		PagePath:  "/page/" + pagePlaceholder + "/",
		Selectors: extract.Selectors{
			Entry:      "article h2.entry-title > a",
			Pagination: ".nav-links a.page-numbers:nth-last-of-type(2)",
		},
		Workers: 2,
	},
	KindXatab: {
		Kind:      KindXatab,
		Repacker:  "Xatab",
		BaseURL:   "https://byxatab.com",
		IndexPath: "/page/1",
		PagePath:  "/page/" + pagePlaceholder,
		Selectors: extract.Selectors{
			Entry:      "#dle-content .entry .entry__title > a",
			Pagination: ".pagination > a:last-of-type",
		},
		Format:  formatXatab,
		Workers: 2,
	},
}

// ErrUnknownKind is returned when a configured provider name is not registered.
var ErrUnknownKind = errors.New("unknown provider")

// ParseKind maps a configuration name to a Kind.
func ParseKind(name string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := registry[kind]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
	return kind, nil
}

// Lookup returns the registered spec for kind.
func Lookup(kind Kind) (Spec, bool) {
	spec, ok := registry[kind]
	return spec, ok
}

// ValidateRegistry validates every registered spec. Startup fails on error.
func ValidateRegistry() error {
	var errs []error
	for _, kind := range Order {
		spec, ok := registry[kind]
		if !ok {
			errs = append(errs, fmt.Errorf("provider %s: not registered", kind))
			continue
		}
		if err := spec.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
