package intent

import (
	"regexp"
	"strings"
)

var (
	fencedBlockRe = regexp.MustCompile("(?s)```.*?(```|$)")
	htmlBlobRe    = regexp.MustCompile(`(?is)<(script|style|html|body|head|svg|iframe)\b.*(</\s*(?:script|style|html|body|head|svg|iframe)\s*>|$)`)
	tagRunRe      = regexp.MustCompile(`(?s)(<[a-zA-Z/][^>]*>\s*){3,}`)
)

// StripAttachedContext removes fenced code blocks and HTML blobs from a
// message before keyword matching. Users paste YAML, dashboards, and
// whole HTML pages alongside short instructions; without stripping, the
// pasted content dominates the keyword match and misroutes the intent.
func StripAttachedContext(message string) string {
	s := fencedBlockRe.ReplaceAllString(message, " ")
	s = htmlBlobRe.ReplaceAllString(s, " ")
	s = tagRunRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}
