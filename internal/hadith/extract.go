// Package hadith implements the external Hadith API client, the response
// normalizer, and the search service that coordinates caching and
// persistence of canonical records.
//
// This file contains the prioritized-fallback field extractor and the text
// cleaning helpers. The upstream API is loosely typed: the same logical
// field arrives under several spellings depending on the source collection,
// so each target field is extracted by trying a list of candidate source
// names in order, first non-empty wins.
package hadith

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// RawRecord is one loosely-typed element of the upstream response array.
type RawRecord map[string]any

// Candidate source-field names per target field, in priority order.
var (
	textFields        = []string{"text", "hadith", "body", "content", "matn"}
	arabicFields      = []string{"arab", "arabic", "text_ar", "hadith_arabic", "ar"}
	narratorFields    = []string{"narrator", "rawi", "reported_by", "narrated_by"}
	sourceFields      = []string{"source", "book", "collection", "reference"}
	chapterFields     = []string{"chapter", "bab", "chapter_title", "section"}
	numberFields      = []string{"number", "hadith_number", "no", "id_in_book"}
	gradeFields       = []string{"grade", "degree", "hukm", "authenticity"}
	topicFields       = []string{"topic", "category", "subject", "tag"}
	keywordFields     = []string{"keywords", "tags", "terms"}
	translationFields = []string{"translation", "text_en", "english", "translated"}
	explanationFields = []string{"explanation", "sharh", "commentary", "notes"}
	sourceIDFields    = []string{"id", "hadith_id", "uid", "slug"}
)

// stringAt converts the value under key to a trimmed string. Numeric JSON
// values (float64 after decoding) are rendered without a fraction when
// integral, so numeric IDs survive the round trip.
func stringAt(r RawRecord, key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case int, int64, bool:
		return fmt.Sprintf("%v", t)
	default:
		return ""
	}
}

// firstString returns the first non-empty string value across the candidate
// keys, tried in order.
func firstString(r RawRecord, keys []string) string {
	for _, k := range keys {
		if s := stringAt(r, k); s != "" {
			return s
		}
	}
	return ""
}

// stringList returns the value under the first matching candidate key as a
// list: JSON arrays element-wise, strings split on commas. Empty elements
// are dropped.
func stringList(r RawRecord, keys []string) []string {
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case []any:
			out := make([]string, 0, len(t))
			for _, e := range t {
				if s, ok := e.(string); ok {
					if s = strings.TrimSpace(s); s != "" {
						out = append(out, s)
					}
				}
			}
			if len(out) > 0 {
				return out
			}
		case string:
			parts := strings.Split(t, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

// invisibleRE matches zero-width and directional control characters that
// frequently leak into scraped religious texts.
var invisibleRE = regexp.MustCompile("[\\x{200B}-\\x{200F}\\x{202A}-\\x{202E}\\x{2060}\\x{FEFF}]")

// cleanText trims, strips invisible control characters, and collapses
// internal whitespace runs to one space.
func cleanText(s string) string {
	s = invisibleRE.ReplaceAllString(s, "")
	s = whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
	return s
}

// cleanArabic applies cleanText and then NFKC so visually identical Arabic
// strings compare equal (ligatures and presentation forms composed).
func cleanArabic(s string) string {
	return norm.NFKC.String(cleanText(s))
}
