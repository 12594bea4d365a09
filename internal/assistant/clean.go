package assistant

import (
	"regexp"
	"strings"
)

// Assistant replies carry retrieval-chunk markers like 【12:3†links.txt】
// pointing into the files the assistant searched. They are noise in chat.
var (
	anyMarkerRe     = regexp.MustCompile(`【\d+:\d+†[^】]+】`)
	markerRewriteRe = regexp.MustCompile(`【\d+:\d+†([^】]+)】`)

	multiSpaceRe   = regexp.MustCompile(` +`)
	multiNewlineRe = regexp.MustCompile(`\n\s*\n\s*\n`)
	spaceBeforeNL  = regexp.MustCompile(` +\n`)
	spaceAfterNL   = regexp.MustCompile(`\n +`)
)

// Cleaner strips retrieval-chunk markers from assistant responses.
type Cleaner struct {
	removeAll      bool
	fileMarkers    []*regexp.Regexp
	rewriteMarkers bool
}

// NewCleaner builds a cleaner that fully removes markers for the listed
// files ("*" removes every marker) and optionally rewrites remaining
// markers as "(filename)".
func NewCleaner(removeForFiles []string, rewriteMarkers bool) *Cleaner {
	c := &Cleaner{rewriteMarkers: rewriteMarkers}

	for _, name := range removeForFiles {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if name == "*" {
			c.removeAll = true
			return c
		}
		c.fileMarkers = append(c.fileMarkers,
			regexp.MustCompile(`【\d+:\d+†`+regexp.QuoteMeta(name)+`】`))
	}

	return c
}

// Clean returns the response with chunk markers handled and whitespace
// normalized.
func (c *Cleaner) Clean(response string) string {
	if c.removeAll {
		return strings.TrimSpace(anyMarkerRe.ReplaceAllString(response, ""))
	}

	cleaned := response
	for _, re := range c.fileMarkers {
		cleaned = re.ReplaceAllString(cleaned, "")
	}

	if c.rewriteMarkers {
		cleaned = markerRewriteRe.ReplaceAllString(cleaned, " ($1) ")
	}

	cleaned = multiSpaceRe.ReplaceAllString(cleaned, " ")
	cleaned = multiNewlineRe.ReplaceAllString(cleaned, "\n\n")
	cleaned = spaceBeforeNL.ReplaceAllString(cleaned, "\n")
	cleaned = spaceAfterNL.ReplaceAllString(cleaned, "\n")

	return strings.TrimSpace(cleaned)
}
