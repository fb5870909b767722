// Package normalize turns noisy scraped titles into canonical, searchable game names.
package normalize

import (
	"regexp"
	"strings"
)

// Step is a single pure text transform.
type Step func(string) string

var (
	junkGroupPattern  = regexp.MustCompile(`(?i)[\(\[\{][^\)\]\}]*(?:repack|multi\d*|dlcs?|\bbuild\b|\bupdates?\b|v\s?\d|\bcrack(?:fix)?\b|\bfix\b|portable|\bru\b|\brus\b|\beng\b|lossless|selective|steam|gog|goldberg|codex|skidrow|plaza|empress|tenoke|\brune\b)[^\)\]\}]*[\)\]\}]`)
	junkTokenPattern  = regexp.MustCompile(`(?i)(?:\s[-–|]\s*)?(?:\b(?:fitgirl|dodi|xatab|kaoskrew|tinyrepacks?|empress|0xempress)\s+)?\b(?:re-?pack|repacks)\b(?:\s+(?:by|от)\s+\S+)?`)
	versionPattern    = regexp.MustCompile(`(?i)\s+(?:v|ver\.?\s?|build\s)\d+(?:[.\-_]\d+)*[a-z]?\b`)
	dlcPattern        = regexp.MustCompile(`(?i)\s*\+\s*(?:\d+\s+|all\s+)?(?:dlcs?|bonus(?:\s+content)?|ost|soundtrack|updates?)\b.*$`)
	freeDownload      = regexp.MustCompile(`(?i)\s*(?:free\s+download|download\s+free|torrent\s+download)\s*`)
	yearPattern       = regexp.MustCompile(`[\(\[]\s*(?:19|20)\d{2}\s*[\)\]]`)
	symbolPattern     = regexp.MustCompile(`[^\p{L}\p{N}\s'&:.\-]`)
	dotRunPattern     = regexp.MustCompile(`\.{2,}`)
	editionPattern    = regexp.MustCompile(`(?i)[\s:\-]+(?:goty|deluxe|game\s+of\s+the\s+year(?:\s+edition)?|(?:digital\s+deluxe|deluxe|ultimate|complete|definitive|gold|premium|special|collector'?s|enhanced|anniversary|legendary|standard|extended|platinum|limited|professional|remastered|director'?s|game\s+of\s+the\s+year|goty)\s+edition)\s*$`)
	dangleTailPattern = regexp.MustCompile(`[\s:\-.]+$`)
	spacePattern      = regexp.MustCompile(`\s+`)
)

// Pipeline is the fixed-order transform chain. Edition stripping must follow
// symbol stripping because edition markers usually arrive wrapped in brackets.
var Pipeline = []Step{
	RemoveTrash,
	RemoveReleaseYear,
	RemoveSymbols,
	RemoveSpecialEdition,
	RemoveDuplicateSpaces,
	strings.TrimSpace,
}

// Name canonicalizes a raw title. The pipeline is reapplied until its output is
// stable, so Name(Name(x)) == Name(x) for every x. Each changing pass either
// shortens the string or turns a symbol or tab into a plain space, so the loop
// terminates.
func Name(raw string) string {
	out := raw
	for {
		next := Pipe(out, Pipeline...)
		if next == out {
			return out
		}
		out = next
	}
}

// Pipe folds input through each step in order.
func Pipe(input string, steps ...Step) string {
	for _, step := range steps {
		input = step(input)
	}
	return input
}

// RemoveTrash strips repack tags, version strings, DLC tails and bracketed
// groups that only carry release metadata.
func RemoveTrash(s string) string {
	s = junkGroupPattern.ReplaceAllString(s, " ")
	s = junkTokenPattern.ReplaceAllString(s, " ")
	s = dlcPattern.ReplaceAllString(s, "")
	s = versionPattern.ReplaceAllString(s, " ")
	return freeDownload.ReplaceAllString(s, " ")
}

// RemoveReleaseYear strips "(2020)" style annotations.
func RemoveReleaseYear(s string) string {
	return yearPattern.ReplaceAllString(s, " ")
}

// RemoveSymbols replaces punctuation noise with spaces.
func RemoveSymbols(s string) string {
	s = symbolPattern.ReplaceAllString(s, " ")
	return dotRunPattern.ReplaceAllString(s, " ")
}

// RemoveSpecialEdition strips trailing edition suffixes, repeatedly, so
// "Deluxe Edition GOTY" loses both markers. "Edition" is only removed together
// with a known qualifier.
func RemoveSpecialEdition(s string) string {
	for {
		next := editionPattern.ReplaceAllString(s, "")
		if next == s {
			return dangleTailPattern.ReplaceAllString(next, "")
		}
		s = next
	}
}

// RemoveDuplicateSpaces collapses runs of whitespace into a single space.
func RemoveDuplicateSpaces(s string) string {
	return spacePattern.ReplaceAllString(s, " ")
}
