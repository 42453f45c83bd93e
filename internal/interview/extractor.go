package interview

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxResumeRunes bounds the resume snapshot kept on the candidate.
	MaxResumeRunes = 5000

	nameScanLines = 5
	nameMinLen    = 6
	nameMaxLen    = 49
	nameMinWords  = 2
	nameMaxWords  = 4
)

var (
	emailPattern = regexp.MustCompile(`[\w.-]+@[\w.-]+\.\w+`)
	phonePattern = regexp.MustCompile(`(\+\d{1,3}[- ]?)?\(?\d{3}\)?[- ]?\d{3}[- ]?\d{4}`)
	introPattern = regexp.MustCompile(`(?i:my name is|i'm|i am)\s+(\p{Lu}\p{Ll}+ \p{Lu}\p{Ll}+)`)
)

// Extraction is the outcome of scanning a document.
type Extraction struct {
	Fields
	ResumeText string `json:"fullText"`
}

// Extractor recovers identity fields from unstructured text. Implementations
// must be pure and never fail; a miss is an empty field.
type Extractor interface {
	// ExtractDocument scans a whole decoded document.
	ExtractDocument(text string) Extraction
	// ExtractMessage scans a free-text chat message.
	ExtractMessage(text string) Fields
}

// PatternExtractor is the regular-expression based Extractor.
type PatternExtractor struct{}

func (PatternExtractor) ExtractDocument(text string) Extraction {
	return Extraction{
		Fields: Fields{
			Name:  findName(text),
			Email: emailPattern.FindString(text),
			Phone: phonePattern.FindString(text),
		},
		ResumeText: truncateRunes(text, MaxResumeRunes),
	}
}

func (PatternExtractor) ExtractMessage(text string) Fields {
	fields := Fields{
		Email: emailPattern.FindString(text),
		Phone: phonePattern.FindString(text),
	}
	if m := introPattern.FindStringSubmatch(text); m != nil {
		fields.Name = m[1]
	}
	return fields
}

// findName looks for a capitalised 2-4 word line near the top of the text.
func findName(text string) string {
	scanned := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if scanned == nameScanLines {
			break
		}
		scanned++

		if looksLikeName(line) {
			return line
		}
	}
	return ""
}

func looksLikeName(line string) bool {
	if emailPattern.MatchString(line) || phonePattern.MatchString(line) {
		return false
	}

	n := utf8.RuneCountInString(line)
	if n < nameMinLen || n > nameMaxLen {
		return false
	}

	words := strings.Fields(line)
	if len(words) < nameMinWords || len(words) > nameMaxWords {
		return false
	}

	for _, w := range words {
		first, _ := utf8.DecodeRuneInString(w)
		if !unicode.IsUpper(first) {
			return false
		}
	}
	return true
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
