package extraction

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aurascan-ai/aurascan-engine/pkg/models"
)

// Extract runs both sub-extractors over a raw response. Empty text yields an
// empty result, not an error.
func Extract(text string, gz *Gazetteer) models.ExtractionResult {
	result := models.ExtractionResult{
		Citations: ExtractCitations(text),
	}
	result.OrgBrands, result.Competitors = ExtractMentions(text, gz)
	return result
}

// ExtractMentions matches every gazetteer entry against the response text,
// case-insensitive, and partitions matches into org brands and competitors.
// URL spans are blanked before matching so "hubspot.com" inside a link does
// not count as a second HubSpot mention. Entries that match zero times are
// omitted entirely.
func ExtractMentions(text string, gz *Gazetteer) (orgBrands, competitors []models.Mention) {
	if strings.TrimSpace(text) == "" || gz == nil {
		return nil, nil
	}

	// Blank URLs with spaces so character offsets are preserved for
	// first_pos_ratio.
	searchable := strings.ToLower(blankURLs(text))
	total := len(searchable)

	for _, entry := range gz.Entries() {
		needle := strings.ToLower(entry)
		count, first := countOccurrences(searchable, needle)
		if count == 0 {
			continue
		}

		m := models.Mention{
			Name:          entry,
			Normalized:    Normalize(entry),
			Count:         count,
			FirstPosRatio: float64(first) / float64(total),
		}
		if gz.IsOrgBrand(m.Normalized) {
			orgBrands = append(orgBrands, m)
		} else {
			competitors = append(competitors, m)
		}
	}
	return orgBrands, competitors
}

// blankURLs replaces URL spans with spaces of equal length.
func blankURLs(text string) string {
	return bareURLPattern.ReplaceAllStringFunc(text, func(m string) string {
		return strings.Repeat(" ", len(m))
	})
}

// countOccurrences counts non-overlapping boundary-delimited occurrences of
// needle in haystack and returns the offset of the first. A match must not
// be flanked by letters or digits, so "Act" never matches inside "Action".
func countOccurrences(haystack, needle string) (count, first int) {
	first = -1
	for start := 0; ; {
		i := strings.Index(haystack[start:], needle)
		if i < 0 {
			break
		}
		pos := start + i
		start = pos + len(needle)

		if !boundedAt(haystack, pos, len(needle)) {
			continue
		}
		if first < 0 {
			first = pos
		}
		count++
	}
	if first < 0 {
		first = 0
	}
	return count, first
}

// boundedAt reports whether the match at pos with the given length sits on
// word boundaries. Flanking runes are decoded properly so a multibyte letter
// next to a match still blocks it.
func boundedAt(s string, pos, length int) bool {
	if pos > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:pos])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	if end := pos + length; end < len(s) {
		r, _ := utf8.DecodeRuneInString(s[end:])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
