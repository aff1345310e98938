package codegen

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	wordSplit   = regexp.MustCompile(`[^A-Za-z0-9]+`)
	lowerUpper  = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	acronymWord = regexp.MustCompile(`([A-Z]+)([A-Z][a-z])`)
	titleCaser  = cases.Title(language.English)
)

// initialisms are upper-cased whole in exported names.
var initialisms = map[string]string{
	"api": "API", "id": "ID", "ids": "IDs", "url": "URL", "uri": "URI",
	"http": "HTTP", "json": "JSON", "html": "HTML", "ip": "IP", "sms": "SMS",
}

// goKeywords cannot be used as parameter names.
var goKeywords = map[string]bool{
	"break": true, "case": true, "chan": true, "const": true, "continue": true,
	"default": true, "defer": true, "else": true, "fallthrough": true, "for": true,
	"func": true, "go": true, "goto": true, "if": true, "import": true,
	"interface": true, "map": true, "package": true, "range": true, "return": true,
	"select": true, "struct": true, "switch": true, "type": true, "var": true,
}

func removeAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// splitWords breaks camelCase, PascalCase, snake_case, kebab-case and dotted
// names into lower-case words.
func splitWords(s string) []string {
	s = removeAccents(strings.TrimSpace(s))
	s = acronymWord.ReplaceAllString(s, "$1 $2")
	s = lowerUpper.ReplaceAllString(s, "$1 $2")
	var words []string
	for _, w := range wordSplit.Split(s, -1) {
		if w != "" {
			words = append(words, strings.ToLower(w))
		}
	}
	return words
}

// SnakeCase converts s to snake_case.
func SnakeCase(s string) string {
	return strings.Join(splitWords(s), "_")
}

// PascalCase converts s to an exported Go identifier.
func PascalCase(s string) string {
	var b strings.Builder
	for _, w := range splitWords(s) {
		if up, ok := initialisms[w]; ok {
			b.WriteString(up)
			continue
		}
		b.WriteString(titleCaser.String(w))
	}
	out := b.String()
	if out != "" && unicode.IsDigit(rune(out[0])) {
		out = "N" + out
	}
	return out
}

// CamelCase converts s to an unexported Go identifier that is safe as a
// parameter name.
func CamelCase(s string) string {
	words := splitWords(s)
	if len(words) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(words[0])
	for _, w := range words[1:] {
		if up, ok := initialisms[w]; ok {
			b.WriteString(up)
			continue
		}
		b.WriteString(titleCaser.String(w))
	}
	out := b.String()
	if goKeywords[out] || unicode.IsDigit(rune(out[0])) {
		out = "p" + titleCaser.String(out)
	}
	return out
}

// Singular trims a plural "s" the way Graph names its collections:
// users -> user, mailFolders -> mailFolder, but "status" stays.
func Singular(s string) string {
	switch {
	case strings.HasSuffix(s, "ies") && len(s) > 3:
		return s[:len(s)-3] + "y"
	case strings.HasSuffix(s, "sses"):
		return s[:len(s)-2]
	case strings.HasSuffix(s, "us"), strings.HasSuffix(s, "ss"):
		return s
	case strings.HasSuffix(s, "s") && len(s) > 1:
		return s[:len(s)-1]
	}
	return s
}
