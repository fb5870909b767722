package provider

import (
	"regexp"
	"strings"
)

var (
	fitgirlTail   = regexp.MustCompile(`(?i)\s*[-–]\s*fitgirl\s+repacks?\s*$`)
	dodiTail      = regexp.MustCompile(`(?i)\s*(?:[-–]\s*|\[\s*)dodi\s+repacks?\s*\]?\s*$`)
	gogTail       = regexp.MustCompile(`(?i)\s*(?:\(\s*gog\s*\)|[-–]\s*free\s+gog\s+pc\s+games?)\s*$`)
	onlineFixTail = regexp.MustCompile(`(?i)\s*по\s+сети\s*$`)
	xatabTail     = regexp.MustCompile(`(?i)\s*(?:re-?pack\s+)?(?:от|by)\s+xatab\s*$`)
)

func formatFitGirl(s string) string {
	return fitgirlTail.ReplaceAllString(s, "")
}

func formatDODI(s string) string {
	return dodiTail.ReplaceAllString(s, "")
}

// formatGOG turns slug-like list entries ("the_witcher_3") into words.
func formatGOG(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	return gogTail.ReplaceAllString(s, "")
}

func formatOnlineFix(s string) string {
	return onlineFixTail.ReplaceAllString(s, "")
}

func formatXatab(s string) string {
	return xatabTail.ReplaceAllString(s, "")
}
