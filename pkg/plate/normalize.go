// Package plate normalizes raw OCR output into canonical Peruvian plate codes.
//
// The pipeline is deterministic and side-effect free: clean the raw text,
// validate it against the plate grammar, try data-driven corrections for
// common OCR confusions, and fall back to the cleaned text when it has a
// plausible length but no grammar match.
package plate

import (
	"regexp"
	"strings"
)

// Cleaned text outside these bounds is rejected outright.
const (
	minCleanLen = 5
	maxCleanLen = 9
)

// Fallback bounds: ungrammatical text within this range is returned as-is
// rather than rejected, so a marginal read still reaches the operator.
const (
	minFallbackLen = 5
	maxFallbackLen = 8
)

// patterns enumerates the accepted plate grammars, separators removed,
// ordered most common first.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`^[A-Z]{3}[0-9]{3}$`),           // ABC123
	regexp.MustCompile(`^[A-Z][0-9][A-Z][0-9]{3}$`),    // A1B234
	regexp.MustCompile(`^[A-Z]{2}[0-9]{4}$`),           // AB1234
	regexp.MustCompile(`^[A-Z]{4}[0-9]{2}$`),           // ABCD12
	regexp.MustCompile(`^[A-Z][0-9]{2}[A-Z][0-9]{2}$`), // A12B34
	regexp.MustCompile(`^[0-9]{3}[A-Z]{3}$`),           // 123ABC
}

// hyphenated shapes get an XXX-XXX separator on output
var (
	lettersDigits    = regexp.MustCompile(`^[A-Z]{3}[0-9]{3}$`)
	letterDigitMixed = regexp.MustCompile(`^[A-Z][0-9][A-Z][0-9]{3}$`)
)

// runCorrections is the ordered table of multi-character substitutions. Each
// entry replaces a confusable run with its digit form.
var runCorrections = []struct{ from, to string }{
	{"O0", "00"},
	{"0O", "00"},
	{"OO", "00"},
	{"II", "11"},
}

// confusables maps each character to its single designated look-alike swap.
// Both directions are present so either a letter or digit misread corrects.
var confusables = map[byte]byte{
	'O': '0', '0': 'O',
	'I': '1', '1': 'I',
	'S': '5', '5': 'S',
	'B': '8', '8': 'B',
	'Z': '2', '2': 'Z',
	'G': '6', '6': 'G',
}

var (
	invalidChars = regexp.MustCompile(`[^A-Z0-9-]`)
	dashRuns     = regexp.MustCompile(`-+`)
)

// Normalize converts raw recognized text into a canonical plate code.
// It returns "" when the text cannot plausibly be a plate.
func Normalize(raw string) string {
	cleaned := Clean(raw)
	if cleaned == "" {
		return ""
	}

	// Validation short-circuits corrections: text already matching a grammar
	// is taken at face value, even where a confusable swap would land on a
	// more common shape.
	if Valid(cleaned) {
		return Format(cleaned)
	}

	if corrected := correct(cleaned); corrected != "" {
		return Format(corrected)
	}

	// Best effort: plausible length but no grammar match.
	if len(cleaned) >= minFallbackLen && len(cleaned) <= maxFallbackLen {
		return cleaned
	}

	return ""
}

// correct returns the first confusable variant of cleaned that validates,
// or "" when none does.
func correct(cleaned string) string {
	// Multi-character runs first: a confusable pair often garbles two
	// positions at once, which single swaps cannot repair.
	for _, c := range runCorrections {
		if strings.Contains(cleaned, c.from) {
			if corrected := strings.ReplaceAll(cleaned, c.from, c.to); Valid(corrected) {
				return corrected
			}
		}
	}

	// Single-position variants, scanning left to right, first valid wins.
	for i := 0; i < len(cleaned); i++ {
		swap, ok := confusables[cleaned[i]]
		if !ok {
			continue
		}
		if variant := cleaned[:i] + string(swap) + cleaned[i+1:]; Valid(variant) {
			return variant
		}
	}

	return ""
}

// Clean uppercases the text, strips everything outside [A-Z0-9-], and
// collapses runs of dashes. It returns "" when the result is shorter than
// 5 or longer than 9 characters.
func Clean(raw string) string {
	cleaned := strings.ToUpper(strings.TrimSpace(raw))
	cleaned = invalidChars.ReplaceAllString(cleaned, "")
	cleaned = dashRuns.ReplaceAllString(cleaned, "-")

	if len(cleaned) < minCleanLen || len(cleaned) > maxCleanLen {
		return ""
	}
	return cleaned
}

// Valid reports whether the text, separators removed, matches one of the
// plate grammars.
func Valid(text string) bool {
	bare := strip(text)
	if len(bare) < 5 || len(bare) > 8 {
		return false
	}
	for _, p := range patterns {
		if p.MatchString(bare) {
			return true
		}
	}
	return false
}

// Format renders a validated code in display form: the two 6-character
// letters-leading shapes get a separator after the third character,
// everything else is returned bare.
func Format(text string) string {
	bare := strip(text)
	if len(bare) == 6 && (lettersDigits.MatchString(bare) || letterDigitMixed.MatchString(bare)) {
		return bare[:3] + "-" + bare[3:]
	}
	return bare
}

func strip(text string) string {
	return strings.NewReplacer("-", "", " ", "").Replace(text)
}
