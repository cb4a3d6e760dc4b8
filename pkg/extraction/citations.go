package extraction

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/aurascan-ai/aurascan-engine/pkg/models"
)

// maxCitations caps how many citations one response contributes.
const maxCitations = 20

// Extraction priorities. Lower wins when the same URL appears in more than
// one form.
const (
	priorityMarkdown = 1
	priorityNumbered = 2
	priorityBare     = 3
)

var (
	// [title](url)
	markdownLinkPattern = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\s)]+)\)`)

	// [1] https://... or [1] Some source title
	bracketRefPattern = regexp.MustCompile(`(?m)^\s*\[(\d+)\]\s+(.+?)\s*$`)

	// 1. https://...  (plain numbered lists only count when they carry a URL)
	numberedURLPattern = regexp.MustCompile(`(?m)^\s*\d+\.\s+(https?://\S+)\s*$`)

	// bare URLs anywhere in the text
	bareURLPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)
)

// ExtractCitations pulls citations out of a response in strict priority
// order: markdown links first, then numbered references, then bare URLs.
// Applying the extractors in order means a URL that appears in both markdown
// and bare form is recorded once, with the title-bearing markdown form
// winning. Output is in document order per priority tier, capped at 20.
func ExtractCitations(text string) []models.Citation {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var citations []models.Citation
	seen := make(map[string]bool)

	add := func(c models.Citation) bool {
		key := dedupKey(c.Value)
		if seen[key] {
			return true
		}
		seen[key] = true
		citations = append(citations, c)
		return len(citations) < maxCitations
	}

	// Priority 1: markdown links carry titles.
	for _, m := range markdownLinkPattern.FindAllStringSubmatch(text, -1) {
		title, rawURL := strings.TrimSpace(m[1]), trimTrailingPunct(m[2])
		if !add(models.Citation{
			Type:     models.CitationTypeURL,
			Value:    rawURL,
			Title:    title,
			Domain:   domainOf(rawURL),
			Priority: priorityMarkdown,
		}) {
			return citations
		}
	}

	// Priority 2: numbered references. Bracketed entries without a URL are
	// kept as loose refs; plain "n." lines only count when they are a URL.
	for _, m := range bracketRefPattern.FindAllStringSubmatch(text, -1) {
		body := trimTrailingPunct(m[2])
		c := models.Citation{Priority: priorityNumbered}
		if strings.HasPrefix(body, "http://") || strings.HasPrefix(body, "https://") {
			c.Type = models.CitationTypeURL
			c.Value = firstToken(body)
			c.Domain = domainOf(c.Value)
		} else {
			c.Type = models.CitationTypeRef
			c.Value = body
		}
		if !add(c) {
			return citations
		}
	}
	for _, m := range numberedURLPattern.FindAllStringSubmatch(text, -1) {
		rawURL := trimTrailingPunct(m[1])
		if !add(models.Citation{
			Type:     models.CitationTypeURL,
			Value:    rawURL,
			Domain:   domainOf(rawURL),
			Priority: priorityNumbered,
		}) {
			return citations
		}
	}

	// Priority 3: bare URLs not already captured.
	for _, rawURL := range bareURLPattern.FindAllString(text, -1) {
		rawURL = trimTrailingPunct(rawURL)
		if !add(models.Citation{
			Type:     models.CitationTypeURL,
			Value:    rawURL,
			Domain:   domainOf(rawURL),
			Priority: priorityBare,
		}) {
			return citations
		}
	}

	return citations
}

// dedupKey normalizes a citation value so the same reference in different
// forms collapses to one entry.
func dedupKey(value string) string {
	return strings.ToLower(strings.TrimRight(value, "/"))
}

// trimTrailingPunct strips sentence punctuation that prose attaches to URLs.
func trimTrailingPunct(s string) string {
	return strings.TrimRight(s, ".,;:!?")
}

// firstToken returns s up to the first whitespace.
func firstToken(s string) string {
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i]
	}
	return s
}

// domainOf parses the URL host and strips a leading www. Returns empty on
// unparseable input rather than failing extraction.
func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}
