// Package hadith – normalization
//
// This file turns one loosely-typed upstream element into a canonical
// domain.HadithRecord: field-by-field extraction with fallbacks, text
// cleaning, grade canonicalization, keyword union, and the verified-source
// flag. A record that ends up with neither free text nor Arabic text is
// rejected rather than stored empty.
package hadith

import (
	"errors"
	"strings"

	"github.com/tbourn/go-hadith-bot/internal/domain"
)

// ErrEmptyRecord is returned by Normalize when an upstream element carries
// no usable text in any candidate field.
var ErrEmptyRecord = errors.New("record has no text")

// Canonical grade labels. Unrecognized grades pass through trimmed.
const (
	GradeSahih = "صحيح" // authentic
	GradeHasan = "حسن"  // good
	GradeDaif  = "ضعيف" // weak
	GradeMawdu = "موضوع" // fabricated
)

// gradeTable maps lowercase grade spellings (Arabic and common
// transliterations) to the canonical label.
var gradeTable = map[string]string{
	"صحيح":       GradeSahih,
	"sahih":      GradeSahih,
	"saheeh":     GradeSahih,
	"authentic":  GradeSahih,
	"حسن":        GradeHasan,
	"hasan":      GradeHasan,
	"good":       GradeHasan,
	"ضعيف":       GradeDaif,
	"daif":       GradeDaif,
	"dhaif":      GradeDaif,
	"da'if":      GradeDaif,
	"weak":       GradeDaif,
	"موضوع":      GradeMawdu,
	"mawdu":      GradeMawdu,
	"maudu":      GradeMawdu,
	"fabricated": GradeMawdu,
}

// verifiedSources is the allow-list of canonical collection names. A record
// counts as verified when its cleaned source label contains one of these as
// a substring.
var verifiedSources = []string{
	"صحيح البخاري",
	"صحيح مسلم",
	"سنن أبي داود",
	"سنن الترمذي",
	"سنن النسائي",
	"سنن ابن ماجه",
	"موطأ مالك",
	"مسند أحمد",
}

// NormalizeGrade maps a grade spelling to its canonical label. Lookups are
// case-insensitive; unmapped values are returned trimmed, unchanged.
func NormalizeGrade(s string) string {
	t := cleanText(s)
	if canonical, ok := gradeTable[strings.ToLower(t)]; ok {
		return canonical
	}
	return t
}

// IsVerifiedSource reports whether the cleaned source label names one of
// the canonical collections.
func IsVerifiedSource(source string) bool {
	s := cleanArabic(source)
	for _, v := range verifiedSources {
		if strings.Contains(s, v) {
			return true
		}
	}
	return false
}

// mergeKeywords unions the explicit keyword list with topic and narrator,
// preserving first-seen order so the serialized form is stable.
func mergeKeywords(explicit []string, topic, narrator string) string {
	seen := make(map[string]struct{}, len(explicit)+2)
	out := make([]string, 0, len(explicit)+2)
	add := func(s string) {
		s = cleanText(s)
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, k := range explicit {
		add(k)
	}
	add(topic)
	add(narrator)
	return strings.Join(out, ",")
}

// Normalize converts one raw upstream element into a canonical record.
// The returned record has no ID yet; repo.SaveHadith assigns one (or reuses
// the stored row when SourceID matches).
func Normalize(raw RawRecord) (*domain.HadithRecord, error) {
	text := cleanText(firstString(raw, textFields))
	arabic := cleanArabic(firstString(raw, arabicFields))
	if text == "" && arabic == "" {
		return nil, ErrEmptyRecord
	}

	narrator := cleanText(firstString(raw, narratorFields))
	source := cleanText(firstString(raw, sourceFields))
	topic := cleanText(firstString(raw, topicFields))

	rec := &domain.HadithRecord{
		SourceID:    firstString(raw, sourceIDFields),
		Text:        text,
		TextArabic:  arabic,
		Narrator:    narrator,
		Source:      source,
		Chapter:     cleanText(firstString(raw, chapterFields)),
		Number:      cleanText(firstString(raw, numberFields)),
		Grade:       NormalizeGrade(firstString(raw, gradeFields)),
		Topic:       topic,
		Keywords:    mergeKeywords(stringList(raw, keywordFields), topic, narrator),
		Translation: cleanText(firstString(raw, translationFields)),
		Explanation: cleanText(firstString(raw, explanationFields)),
		IsVerified:  IsVerifiedSource(source),
	}
	return rec, nil
}
