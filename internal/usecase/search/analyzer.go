package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Analyzer turns field text or query text into index terms
type Analyzer interface {
	Tokens(text string) []string
}

// stopWords contains the English and German words dropped by TextAnalyzer
var stopWords = map[string]map[string]bool{
	"en": {
		"a": true, "an": true, "the": true, "and": true, "or": true, "of": true,
		"in": true, "on": true, "at": true, "to": true, "for": true, "with": true,
		"by": true, "from": true, "is": true, "it": true, "as": true, "be": true,
	},
	"de": {
		"der": true, "die": true, "das": true, "den": true, "dem": true, "des": true,
		"ein": true, "eine": true, "einer": true, "eines": true, "und": true, "oder": true,
		"mit": true, "von": true, "vom": true, "zum": true, "zur": true, "im": true,
		"in": true, "aus": true, "auf": true, "fur": true, "je": true, "ca": true,
	},
}

// TextAnalyzer folds accents, lowercases, drops stop words, digits and
// one-letter tokens, then reduces words to a crude lemma.
type TextAnalyzer struct {
	lang string
	stop map[string]bool
}

// NewTextAnalyzer creates an analyzer for "en" or "de"; other languages get
// folding and tokenizing without stop words or lemmas.
func NewTextAnalyzer(lang string) *TextAnalyzer {
	return &TextAnalyzer{lang: lang, stop: stopWords[lang]}
}

func (a *TextAnalyzer) Tokens(text string) []string {
	var tokens []string
	for _, word := range splitWords(fold(text)) {
		if len([]rune(word)) < 2 || a.stop[word] || isDigits(word) {
			continue
		}
		word = lemma(a.lang, word)
		if len([]rune(word)) < 2 {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// SimpleAnalyzer lowercases and splits on non letters/digits
type SimpleAnalyzer struct{}

func (SimpleAnalyzer) Tokens(text string) []string {
	return splitWords(strings.ToLower(text))
}

// KeywordAnalyzer indexes the whole lowercased value as one term
type KeywordAnalyzer struct{}

func (KeywordAnalyzer) Tokens(text string) []string {
	v := strings.ToLower(strings.TrimSpace(text))
	if v == "" {
		return nil
	}
	return []string{v}
}

// fold decomposes, strips combining marks and lowercases
func fold(s string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return norm.NFC.String(b.String())
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

// lemma strips the most common inflection suffixes. Only words long enough
// to keep a four letter stem are touched.
func lemma(lang, w string) string {
	switch lang {
	case "en":
		switch {
		case strings.HasSuffix(w, "ies") && len(w) > 4:
			return w[:len(w)-3] + "y"
		case strings.HasSuffix(w, "oes") && len(w) > 4:
			return w[:len(w)-2]
		case strings.HasSuffix(w, "ches"), strings.HasSuffix(w, "shes"),
			strings.HasSuffix(w, "xes"), strings.HasSuffix(w, "sses"):
			return w[:len(w)-2]
		case strings.HasSuffix(w, "ing") && len(w) > 6:
			return w[:len(w)-3]
		case strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") && len(w) > 3:
			return w[:len(w)-1]
		}
	case "de":
		for _, suffix := range []string{"en", "er", "es", "e", "n", "s"} {
			if strings.HasSuffix(w, suffix) && len(w)-len(suffix) >= 4 {
				return w[:len(w)-len(suffix)]
			}
		}
	}
	return w
}
